package main

import (
	"context"
	"fmt"
	"io"
	"math"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	hoststate "github.com/wippyai/wasm-hoststate"
	"github.com/wippyai/wasm-hoststate/atoms"
	"github.com/wippyai/wasm-hoststate/future"
	"github.com/wippyai/wasm-hoststate/hostmod"
	"github.com/wippyai/wasm-hoststate/slot"
	"github.com/wippyai/wasm-hoststate/testbed"
)

type cell struct {
	label string
	value int
}

var (
	cellSlot = slot.New("stepper")
	cells    = hoststate.Bind[cell](cellSlot)
)

type scenario struct {
	name string
	desc string
	run  func(ctx context.Context, w io.Writer, opts options) error
}

var scenarios = []scenario{
	{"a", "synchronous completion: 42 is doubled in one step", scenarioA},
	{"b", "nested wrappers on one slot restore in LIFO order", scenarioB},
	{"c", "a pending step leaves nothing installed", scenarioC},
	{"guest", "a wasm guest calls atoms host functions through wazero", scenarioGuest},
}

func lookupScenario(name string) (scenario, bool) {
	for _, s := range scenarios {
		if s.name == name {
			return s, true
		}
	}
	return scenario{}, false
}

func installed() string {
	p, ok := cellSlot.Load()
	if !ok {
		return "empty"
	}
	c := (*cell)(p)
	return fmt.Sprintf("%s=%d", c.label, c.value)
}

func read(w io.Writer, where string) int {
	v := hoststate.With(cells.State(), func(c *cell) int { return c.value })
	fmt.Fprintf(w, "    %-20s reads %s\n", where, installed())
	return v
}

// drive steps fut to completion and prints the slot around every step.
func drive[R any](ctx context.Context, w io.Writer, fut future.Future[R]) (R, error) {
	var zero R
	sched := future.NewScheduler[R](nil)
	if err := sched.Execute(ctx, fut); err != nil {
		return zero, err
	}

	var yr *future.YieldResult
	for {
		before := installed()
		sr, err := sched.Step(ctx, yr)
		if err != nil {
			return zero, err
		}
		fmt.Fprintf(w, "  step %d: %-8s slot %s -> %s\n", sched.Steps(), sr.Status, before, installed())

		switch sr.Status {
		case future.StepDone:
			return sr.Result, nil
		case future.StepContinue:
			v, opErr := sr.PendingOp.Execute(ctx)
			yr = &future.YieldResult{Value: v, Error: opErr}
		case future.StepIdle:
			yr = nil
		}
	}
}

func scenarioA(ctx context.Context, w io.Writer, _ options) error {
	body := future.Lazy(func(context.Context) int {
		return read(w, "body") * 2
	})

	v, err := drive(ctx, w, hoststate.Enter(cells, &cell{label: "S", value: 42}, body))
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "  result %d, slot %s\n", v, installed())
	return nil
}

func scenarioB(ctx context.Context, w io.Writer, _ options) error {
	body := future.Func[int](func(ctx context.Context) future.Poll[int] {
		read(w, "outer before")
		inner := hoststate.Enter(cells, &cell{label: "S2", value: 2}, future.Lazy(func(context.Context) int {
			return read(w, "inner")
		}))
		v, err := future.Block(ctx, inner)
		if err != nil {
			panic(err)
		}
		read(w, "outer after")
		return future.Ready(v)
	})

	v, err := drive(ctx, w, hoststate.Enter(cells, &cell{label: "S1", value: 1}, body))
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "  result %d, slot %s\n", v, installed())
	return nil
}

func scenarioC(ctx context.Context, w io.Writer, _ options) error {
	body := future.Then(future.Yield(), func(struct{}) future.Future[int] {
		return future.Lazy(func(context.Context) int {
			return read(w, "body") * 2
		})
	})
	h := hoststate.Enter(cells, &cell{label: "S", value: 7}, body)

	p := h.Poll(ctx)
	fmt.Fprintf(w, "  step 1: ready=%v phase=%s slot %s\n", p.Ready, h.Phase(), installed())

	if err := probe(); err != nil {
		fmt.Fprintf(w, "  read between steps: %v\n", err)
	} else {
		return fmt.Errorf("read between steps succeeded")
	}

	p = h.Poll(ctx)
	fmt.Fprintf(w, "  step 2: ready=%v value=%d phase=%s slot %s\n", p.Ready, p.Value, h.Phase(), installed())
	return nil
}

// probe reads the accessor and reports the contract violation it raises.
func probe() (err error) {
	defer func() {
		if r := recover(); r != nil {
			e, ok := r.(error)
			if !ok {
				panic(r)
			}
			err = e
		}
	}()
	hoststate.With(cells.State(), func(c *cell) int { return c.value })
	return nil
}

func scenarioGuest(ctx context.Context, w io.Writer, opts options) error {
	g, err := newGuest(ctx, opts.delay)
	if err != nil {
		return err
	}
	defer g.Close(ctx)

	errno, err := g.call(ctx, "int_float_args", api.EncodeU32(7), api.EncodeF32(1.5))
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "  int_float_args(7, 1.5) errno=%s\n", atoms.Errno(errno).Error())

	errno, err = g.call(ctx, "double_int_return_float", api.EncodeU32(21), api.EncodeU32(resultOffset))
	if err != nil {
		return err
	}
	v, _ := g.readF32(resultOffset)
	fmt.Fprintf(w, "  double_int_return_float(21) errno=%s result=%v\n", atoms.Errno(errno).Error(), v)

	for _, entry := range g.host.Entries() {
		fmt.Fprintf(w, "  log: %s\n", entry)
	}
	return g.printSteps(w)
}

// resultOffset is where the CLI asks host functions to store results.
const resultOffset = 1024

type guest struct {
	rt      wazero.Runtime
	mod     api.Module
	host    *testbed.Ctx
	reg     *hostmod.Registry[testbed.Ctx]
	funcs   []hostmod.Func[testbed.Ctx]
	metrics *prometheus.Registry
}

var guestBinding = hoststate.Bind[testbed.Ctx](slot.New("stepper-guest"))

func newGuest(ctx context.Context, delay int) (*guest, error) {
	reg := hostmod.NewRegistry(guestBinding)
	if err := atoms.Register(reg, &testbed.Atoms{Delay: delay}); err != nil {
		return nil, err
	}

	rt := wazero.NewRuntime(ctx)
	compiled, err := rt.CompileModule(ctx, testbed.AtomsGuest())
	if err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("compile guest: %w", err)
	}
	if err := reg.CheckImports(compiled); err != nil {
		rt.Close(ctx)
		return nil, err
	}

	host := testbed.NewCtx("stepper")
	metrics := prometheus.NewRegistry()
	cfg := &hostmod.Config{Metrics: hostmod.NewMetrics(metrics)}
	if _, err := reg.Instantiate(ctx, rt, host, cfg); err != nil {
		rt.Close(ctx)
		return nil, err
	}
	mod, err := rt.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName("guest"))
	if err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("instantiate guest: %w", err)
	}
	return &guest{
		rt:      rt,
		mod:     mod,
		host:    host,
		reg:     reg,
		funcs:   reg.Funcs(atoms.Namespace),
		metrics: metrics,
	}, nil
}

func (g *guest) call(ctx context.Context, name string, params ...uint64) (int32, error) {
	fn := g.mod.ExportedFunction(name)
	if fn == nil {
		return 0, fmt.Errorf("guest does not export %s", name)
	}
	res, err := fn.Call(ctx, params...)
	if err != nil {
		return 0, err
	}
	return api.DecodeI32(res[0]), nil
}

func (g *guest) readF32(offset uint32) (float32, bool) {
	bits, ok := g.mod.Memory().ReadUint32Le(offset)
	return math.Float32frombits(bits), ok
}

// printSteps writes the total resumption steps recorded per host function.
func (g *guest) printSteps(w io.Writer) error {
	families, err := g.metrics.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		if mf.GetName() != "hoststate_host_call_steps" {
			continue
		}
		for _, m := range mf.GetMetric() {
			name := ""
			for _, l := range m.GetLabel() {
				if l.GetName() == "func" {
					name = l.GetValue()
				}
			}
			h := m.GetHistogram()
			fmt.Fprintf(w, "  steps: %s=%v over %d calls\n", name, h.GetSampleSum(), h.GetSampleCount())
		}
	}
	return nil
}

func (g *guest) Close(ctx context.Context) error {
	return g.rt.Close(ctx)
}
