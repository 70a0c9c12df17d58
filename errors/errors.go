package errors

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseBind     Phase = "bind"     // binding a slot to a state type
	PhaseInstall  Phase = "install"  // installing or restoring a slot value
	PhaseAccess   Phase = "access"   // reading host state through an accessor
	PhasePoll     Phase = "poll"     // resuming a wrapped host future
	PhaseSchedule Phase = "schedule" // driving a future step by step
	PhaseMemory   Phase = "memory"   // guest memory access
	PhaseHost     Phase = "host"     // host function registration
	PhaseLinking  Phase = "linking"  // guest import resolution
	PhaseRuntime  Phase = "runtime"  // host module instantiation and calls
)

// Kind categorizes the error
type Kind string

const (
	KindEmptySlot        Kind = "empty_slot"
	KindForeignGoroutine Kind = "foreign_goroutine"
	KindOutOfOrder       Kind = "out_of_order"
	KindDoubleRestore    Kind = "double_restore"
	KindTypeMismatch     Kind = "type_mismatch"
	KindNilPointer       Kind = "nil_pointer"
	KindUnbound          Kind = "unbound"
	KindCompleted        Kind = "completed"
	KindAbandoned        Kind = "abandoned"
	KindOutOfBounds      Kind = "out_of_bounds"
	KindInvalidInput     Kind = "invalid_input"
	KindNotInitialized   Kind = "not_initialized"
	KindNotFound         Kind = "not_found"
	KindRegistration     Kind = "registration"
	KindInstantiation    Kind = "instantiation"
	KindMissingImport    Kind = "missing_import"
	KindExhausted        Kind = "exhausted"
	KindTrap             Kind = "trap"
)

// Error is the structured error type used throughout the module.
// Contract violations in the binding layer are raised as panics carrying
// an *Error so that callers can recover and match them with errors.Is.
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	GoType string
	Slot   string
	Detail string
	Path   []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Slot != "" {
		b.WriteString(" slot ")
		b.WriteString(e.Slot)
	}

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.GoType != "" {
		b.WriteString(": Go type ")
		b.WriteString(e.GoType)
	}

	if e.Detail != "" {
		if e.GoType != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the field path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// GoType sets the Go type name
func (b *Builder) GoType(t string) *Builder {
	b.err.GoType = t
	return b
}

// Slot sets the slot name
func (b *Builder) Slot(name string) *Builder {
	b.err.Slot = name
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Slot contract violations

// EmptySlot reports a read of a slot with no active installation on the
// calling goroutine.
func EmptySlot(slot string) *Error {
	return &Error{
		Phase:  PhaseAccess,
		Kind:   KindEmptySlot,
		Slot:   slot,
		Detail: "no host state installed on this goroutine",
	}
}

// ForeignGoroutine reports a frame restored from a goroutine other than the
// one that installed it.
func ForeignGoroutine(slot string, owner, caller int64) *Error {
	return &Error{
		Phase:  PhaseInstall,
		Kind:   KindForeignGoroutine,
		Slot:   slot,
		Detail: fmt.Sprintf("frame installed by goroutine %d restored by goroutine %d", owner, caller),
	}
}

// OutOfOrder reports a frame restored while a different installation is on top.
func OutOfOrder(slot string) *Error {
	return &Error{
		Phase:  PhaseInstall,
		Kind:   KindOutOfOrder,
		Slot:   slot,
		Detail: "frame restored while another installation is active",
	}
}

// DoubleRestore reports a frame restored more than once.
func DoubleRestore(slot string) *Error {
	return &Error{
		Phase:  PhaseInstall,
		Kind:   KindDoubleRestore,
		Slot:   slot,
		Detail: "frame already restored",
	}
}

// TypeMismatch reports a slot claimed for two different state types.
func TypeMismatch(slot, bound, requested string) *Error {
	return &Error{
		Phase:  PhaseBind,
		Kind:   KindTypeMismatch,
		Slot:   slot,
		GoType: requested,
		Detail: fmt.Sprintf("slot already bound to %s", bound),
	}
}

// NilPointer creates a nil pointer error
func NilPointer(phase Phase, path []string, goType string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNilPointer,
		Path:   path,
		GoType: goType,
		Detail: "nil pointer",
	}
}

// Unbound reports use of a zero-value accessor or binding.
func Unbound(goType string) *Error {
	return &Error{
		Phase:  PhaseAccess,
		Kind:   KindUnbound,
		GoType: goType,
		Detail: "accessor not obtained from a binding",
	}
}

// Completed reports a resumption of a host future that already completed.
func Completed(slot string) *Error {
	return &Error{
		Phase:  PhasePoll,
		Kind:   KindCompleted,
		Slot:   slot,
		Detail: "host future polled after completion",
	}
}

// Abandoned reports a resumption of a host future that was discarded or
// unwound during a previous step.
func Abandoned(slot string) *Error {
	return &Error{
		Phase:  PhasePoll,
		Kind:   KindAbandoned,
		Slot:   slot,
		Detail: "host future polled after abandonment",
	}
}

// Recoverable errors

// OutOfBounds creates an out of bounds error for guest memory access
func OutOfBounds(offset, length uint32, size int) *Error {
	return &Error{
		Phase:  PhaseMemory,
		Kind:   KindOutOfBounds,
		Detail: fmt.Sprintf("access at offset %d length %d out of bounds (size %d)", offset, length, size),
		Value:  offset,
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// NotInitialized creates a not-initialized error
func NotInitialized(phase Phase, component string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotInitialized,
		Detail: fmt.Sprintf("%s not initialized", component),
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// Registration creates a registration error
func Registration(phase Phase, namespace, name string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindRegistration,
		Detail: fmt.Sprintf("register %s#%s", namespace, name),
		Cause:  cause,
	}
}

// Instantiation creates an instantiation error
func Instantiation(namespace string, cause error) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindInstantiation,
		Detail: fmt.Sprintf("instantiate host module %s", namespace),
		Cause:  cause,
	}
}

// Exhausted reports a scheduler that ran out of its step budget.
func Exhausted(steps int) *Error {
	return &Error{
		Phase:  PhaseSchedule,
		Kind:   KindExhausted,
		Detail: fmt.Sprintf("future still pending after %d steps", steps),
		Value:  steps,
	}
}

// Trap reports a host call that failed in a way the guest cannot observe
// as a return value. The call is aborted.
func Trap(namespace, name string, cause error) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindTrap,
		Path:   []string{namespace, name},
		Detail: "host call trapped",
		Cause:  cause,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// MissingImport is one guest import no host module provides.
type MissingImport struct {
	Namespace string
	Function  string
}

// MissingImportsError lists every unresolved guest import found while
// checking a compiled module.
type MissingImportsError struct {
	Imports []MissingImport
}

// NewMissingImportsError collects imports, sorted by namespace then name.
func NewMissingImportsError(imports ...MissingImport) *MissingImportsError {
	sorted := slices.Clone(imports)
	slices.SortFunc(sorted, func(a, b MissingImport) int {
		if c := strings.Compare(a.Namespace, b.Namespace); c != 0 {
			return c
		}
		return strings.Compare(a.Function, b.Function)
	})
	return &MissingImportsError{Imports: sorted}
}

func (e *MissingImportsError) Error() string {
	if len(e.Imports) == 0 {
		return "[linking] missing_import: no imports specified"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[linking] missing_import: %d host function(s) unresolved", len(e.Imports))
	ns := ""
	for i, imp := range e.Imports {
		if i == 0 || imp.Namespace != ns {
			ns = imp.Namespace
			fmt.Fprintf(&b, "\n  %s:", ns)
		}
		fmt.Fprintf(&b, "\n    - %s", demangleRust(imp.Function))
	}
	return b.String()
}

// Is matches any *MissingImportsError.
func (e *MissingImportsError) Is(target error) bool {
	_, ok := target.(*MissingImportsError)
	return ok
}

// demangleRust turns a legacy-mangled Rust symbol (_ZN<len><ident>...E) into
// a path. Binding-generator segments and the trailing hash are dropped.
// Anything it cannot parse is returned unchanged.
func demangleRust(name string) string {
	rest, ok := strings.CutPrefix(name, "_ZN")
	if !ok {
		return name
	}

	var parts []string
	for rest != "" && rest[0] != 'E' {
		digits := strings.IndexFunc(rest, func(r rune) bool { return r < '0' || r > '9' })
		if digits <= 0 {
			break
		}
		n, err := strconv.Atoi(rest[:digits])
		if err != nil || n > len(rest)-digits {
			break
		}
		ident := rest[digits : digits+n]
		rest = rest[digits+n:]

		if strings.HasPrefix(ident, "wit_import") || isRustHash(ident) {
			continue
		}
		parts = append(parts, ident)
	}
	if len(parts) == 0 {
		return name
	}
	return strings.Join(parts, "::")
}

// isRustHash reports whether ident is a symbol hash: 'h' and 16 hex digits.
func isRustHash(ident string) bool {
	if len(ident) != 17 || ident[0] != 'h' {
		return false
	}
	_, err := strconv.ParseUint(ident[1:], 16, 64)
	return err == nil
}
