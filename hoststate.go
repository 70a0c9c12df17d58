package hoststate

import (
	"reflect"

	"github.com/wippyai/wasm-hoststate/errors"
	"github.com/wippyai/wasm-hoststate/slot"
)

// Binding ties a slot to the state type T it carries. Accessors and
// wrappers are only obtainable from a Binding, so the type an accessor
// recovers is always the type its wrapper installed.
//
// Bind is meant to be called from generated binding code. Hand-written code
// that binds the same slot to a different type panics at Bind time.
type Binding[T any] struct {
	slot *slot.Slot
}

// Bind claims s for state type T and returns the binding.
func Bind[T any](s *slot.Slot) Binding[T] {
	if s == nil {
		panic(errors.NilPointer(errors.PhaseBind, nil, "*slot.Slot"))
	}
	s.Claim(reflect.TypeFor[T]())
	return Binding[T]{slot: s}
}

// Slot returns the bound slot.
func (b Binding[T]) Slot() *slot.Slot {
	return b.slot
}

// State returns the accessor for this binding.
func (b Binding[T]) State() State[T] {
	return State[T]{slot: b.slot}
}

// State is the typed accessor handed to generated host function bodies.
// It owns nothing: every use dereferences whatever the wrapper currently
// driving this goroutine has installed. Copies are interchangeable.
type State[T any] struct {
	slot *slot.Slot
}

// Do calls f with the currently installed state.
// It panics when no state is installed on the calling goroutine.
func (s State[T]) Do(f func(*T)) {
	f(s.current())
}

// Bound reports whether the accessor was obtained from a Binding.
func (s State[T]) Bound() bool {
	return s.slot != nil
}

// Installed reports whether state is currently installed on the calling
// goroutine. It never panics.
func (s State[T]) Installed() bool {
	if s.slot == nil {
		return false
	}
	_, ok := s.slot.Load()
	return ok
}

func (s State[T]) current() *T {
	if s.slot == nil {
		panic(errors.Unbound(reflect.TypeFor[T]().String()))
	}
	return (*T)(s.slot.Read())
}

// With calls f with the currently installed state and returns its result.
// The pointer must not be retained past f: it is only valid while the
// installing resumption step is running.
func With[T, R any](s State[T], f func(*T) R) R {
	return f(s.current())
}
