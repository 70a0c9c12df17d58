package hostmod

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	hoststate "github.com/wippyai/wasm-hoststate"
	"github.com/wippyai/wasm-hoststate/errors"
	"github.com/wippyai/wasm-hoststate/future"
)

// Config holds host module configuration.
type Config struct {
	// Metrics, when set, records every guest call.
	Metrics *Metrics

	// Scheduler configures the scheduler that drives each guest call.
	// A zero MaxSteps lets a call run until its body completes.
	Scheduler future.Config
}

// Registry holds the host functions of one binding, grouped by namespace.
// A namespace becomes a wazero host module of the same name.
type Registry[T any] struct {
	binding hoststate.Binding[T]
	funcs   map[string]map[string]*Func[T]
	mu      sync.RWMutex
}

// NewRegistry creates an empty registry whose functions run with state
// installed through b. It panics if b was not obtained from hoststate.Bind.
func NewRegistry[T any](b hoststate.Binding[T]) *Registry[T] {
	if b.Slot() == nil {
		panic(errors.Unbound("hostmod.Registry"))
	}
	return &Registry[T]{
		binding: b,
		funcs:   make(map[string]map[string]*Func[T]),
	}
}

// Register adds f under namespace. Registering the same name twice in a
// namespace is an error.
func (r *Registry[T]) Register(namespace string, f Func[T]) error {
	if namespace == "" {
		return errors.InvalidInput(errors.PhaseHost, "namespace cannot be empty")
	}
	if err := f.validate(); err != nil {
		return errors.Registration(errors.PhaseHost, namespace, f.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.funcs[namespace] == nil {
		r.funcs[namespace] = make(map[string]*Func[T])
	}
	if _, exists := r.funcs[namespace][f.Name]; exists {
		return errors.Registration(errors.PhaseHost, namespace, f.Name,
			errors.InvalidInput(errors.PhaseHost, "already registered"))
	}
	r.funcs[namespace][f.Name] = &f
	return nil
}

// Namespaces returns the registered namespaces in sorted order.
func (r *Registry[T]) Namespaces() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.funcs))
	for ns := range r.funcs {
		names = append(names, ns)
	}
	sort.Strings(names)
	return names
}

// Funcs returns the functions of namespace sorted by name.
func (r *Registry[T]) Funcs(namespace string) []Func[T] {
	r.mu.RLock()
	defer r.mu.RUnlock()

	funcs := make([]Func[T], 0, len(r.funcs[namespace]))
	for _, f := range r.funcs[namespace] {
		funcs = append(funcs, *f)
	}
	sort.Slice(funcs, func(i, j int) bool { return funcs[i].Name < funcs[j].Name })
	return funcs
}

// Lookup finds a function by namespace and name.
func (r *Registry[T]) Lookup(namespace, name string) (Func[T], bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.funcs[namespace][name]
	if !ok {
		return Func[T]{}, false
	}
	return *f, true
}

// Instantiate builds one wazero host module per namespace. Every guest call
// into those modules runs with state installed. The caller keeps ownership
// of state and must keep it valid while the modules are in use.
//
// On failure, modules instantiated so far are closed.
func (r *Registry[T]) Instantiate(ctx context.Context, rt wazero.Runtime, state *T, cfg *Config) ([]api.Module, error) {
	if state == nil {
		return nil, errors.NilPointer(errors.PhaseRuntime, []string{r.binding.Slot().Name()}, "host state")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if err := checkStruct(errors.PhaseRuntime, []string{"Config"}, cfg); err != nil {
		return nil, err
	}

	var mods []api.Module
	for _, ns := range r.Namespaces() {
		builder := rt.NewHostModuleBuilder(ns)
		funcs := r.Funcs(ns)
		for _, f := range funcs {
			builder.NewFunctionBuilder().
				WithGoModuleFunction(r.hostFunc(ns, f, state, cfg), f.Params, f.Results).
				WithName(f.Name).
				Export(f.Name)
		}

		mod, err := builder.Instantiate(ctx)
		if err != nil {
			for _, m := range mods {
				_ = m.Close(ctx)
			}
			return nil, errors.Instantiation(ns, err)
		}
		Logger().Debug("host module instantiated",
			zap.String("namespace", ns),
			zap.Int("funcs", len(funcs)))
		mods = append(mods, mod)
	}
	return mods, nil
}

// hostFunc builds the wazero entry point for f. The body is built outside
// the installation and stepped inside it; it must not read state before
// its first step.
func (r *Registry[T]) hostFunc(ns string, f Func[T], state *T, cfg *Config) api.GoModuleFunc {
	st := r.binding.State()
	sc := cfg.Scheduler
	metrics := cfg.Metrics
	return func(ctx context.Context, mod api.Module, stack []uint64) {
		var mem hoststate.Memory
		if m := NewMemory(mod.Memory()); m != nil {
			mem = m
		}

		params := make([]uint64, len(f.Params))
		copy(params, stack)

		body := hoststate.Enter(r.binding, state, f.Call(st, mem, params))
		sched := future.NewScheduler[future.Result[[]uint64]](&sc)
		res, err := sched.Run(ctx, body)
		if err == nil {
			err = res.Err
		}
		if err == nil && len(res.Value) != len(f.Results) {
			err = errors.New(errors.PhaseRuntime, errors.KindTypeMismatch).
				Path(ns, f.Name).
				Detail("body returned %d results, want %d", len(res.Value), len(f.Results)).
				Build()
		}
		if err != nil {
			Logger().Warn("host call failed",
				zap.String("namespace", ns),
				zap.String("func", f.Name),
				zap.Int("steps", sched.Steps()),
				zap.Error(err))
			metrics.observe(ns, f.Name, OutcomeTrap, sched.Steps())
			panic(errors.Trap(ns, f.Name, err))
		}

		copy(stack, res.Value)
		metrics.observe(ns, f.Name, OutcomeOk, sched.Steps())
		if ce := Logger().Check(zap.DebugLevel, "host call"); ce != nil {
			ce.Write(
				zap.String("namespace", ns),
				zap.String("func", f.Name),
				zap.Int("steps", sched.Steps()))
		}
	}
}

// CheckImports verifies that every function compiled imports is registered
// with a matching core signature. Unregistered imports are reported
// together as a *errors.MissingImportsError.
func (r *Registry[T]) CheckImports(compiled wazero.CompiledModule) error {
	var missing []errors.MissingImport
	for _, fd := range compiled.ImportedFunctions() {
		module, name, _ := fd.Import()
		f, ok := r.Lookup(module, name)
		if !ok {
			missing = append(missing, errors.MissingImport{Namespace: module, Function: name})
			continue
		}
		if !slices.Equal(fd.ParamTypes(), f.Params) || !slices.Equal(fd.ResultTypes(), f.Results) {
			return errors.New(errors.PhaseLinking, errors.KindTypeMismatch).
				Path(module, name).
				Detail("guest imports %s, host provides %s",
					coreSignature(fd.ParamTypes(), fd.ResultTypes()),
					coreSignature(f.Params, f.Results)).
				Build()
		}
	}
	if len(missing) > 0 {
		return errors.NewMissingImportsError(missing...)
	}
	return nil
}

func coreSignature(params, results []api.ValueType) string {
	names := func(ts []api.ValueType) string {
		s := make([]string, len(ts))
		for i, t := range ts {
			s[i] = api.ValueTypeName(t)
		}
		return strings.Join(s, " ")
	}
	return "(" + names(params) + ") -> (" + names(results) + ")"
}
