package hoststate

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"testing"
	"unsafe"

	rterrors "github.com/wippyai/wasm-hoststate/errors"
	"github.com/wippyai/wasm-hoststate/future"
	"github.com/wippyai/wasm-hoststate/slot"
)

type counter struct {
	value int
	reads []int
}

func catch(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			e, ok := r.(error)
			if !ok {
				panic(r)
			}
			err = e
		}
	}()
	fn()
	return nil
}

func expectViolation(t *testing.T, want *rterrors.Error, fn func()) {
	t.Helper()
	err := catch(fn)
	if err == nil {
		t.Fatalf("expected panic with %s", want.Kind)
	}
	if !errors.Is(err, want) {
		t.Fatalf("expected %s, got %v", want.Kind, err)
	}
}

func newBinding(t *testing.T) (Binding[counter], *slot.Slot) {
	t.Helper()
	s := slot.New(t.Name())
	return Bind[counter](s), s
}

// doubled reads the installed value and completes with twice it.
func doubled(st State[counter]) future.Future[int] {
	return future.Lazy(func(context.Context) int {
		return With(st, func(c *counter) int { return c.value * 2 })
	})
}

func TestScenario_SynchronousCompletion(t *testing.T) {
	b, s := newBinding(t)
	host := &counter{value: 42}

	h := Enter(b, host, doubled(b.State()))
	if h.Phase() != PhaseNotStarted {
		t.Fatalf("phase = %s, want not-started", h.Phase())
	}

	p := h.Poll(context.Background())
	if !p.Ready || p.Value != 84 {
		t.Fatalf("poll = %+v, want ready 84", p)
	}
	if h.Phase() != PhaseCompleted {
		t.Errorf("phase = %s, want completed", h.Phase())
	}
	if _, ok := s.Load(); ok {
		t.Error("slot should be empty after the step")
	}
}

func TestScenario_NestedWrappers(t *testing.T) {
	b, s := newBinding(t)
	outer := &counter{value: 1}
	inner := &counter{value: 2}

	var seen []int
	read := func() {
		b.State().Do(func(c *counter) { seen = append(seen, c.value) })
	}

	body := future.Func[int](func(ctx context.Context) future.Poll[int] {
		read()

		nested := Enter(b, inner, future.Lazy(func(context.Context) int {
			read()
			return With(b.State(), func(c *counter) int { return c.value })
		}))
		got, err := future.Block(ctx, nested)
		if err != nil {
			t.Errorf("nested: %v", err)
		}

		read()
		return future.Ready(got)
	})

	p := Enter(b, outer, body).Poll(context.Background())
	if !p.Ready || p.Value != 2 {
		t.Fatalf("poll = %+v, want ready 2", p)
	}
	want := []int{1, 2, 1}
	if len(seen) != len(want) {
		t.Fatalf("seen = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("seen = %v, want %v", seen, want)
		}
	}
	if _, ok := s.Load(); ok {
		t.Error("slot should be empty after the outer step")
	}
}

func TestScenario_PendingDoesNotLeak(t *testing.T) {
	b, s := newBinding(t)
	host := &counter{value: 7}
	st := b.State()

	body := future.Then(future.Yield(), func(struct{}) future.Future[int] {
		return doubled(st)
	})
	h := Enter(b, host, body)
	ctx := context.Background()

	if p := h.Poll(ctx); p.Ready {
		t.Fatal("first step should be pending")
	}
	if h.Phase() != PhaseSuspended {
		t.Errorf("phase = %s, want suspended", h.Phase())
	}
	if _, ok := s.Load(); ok {
		t.Fatal("slot should be empty between steps")
	}
	expectViolation(t, rterrors.EmptySlot(""), func() {
		With(st, func(c *counter) int { return c.value })
	})

	p := h.Poll(ctx)
	if !p.Ready || p.Value != 14 {
		t.Fatalf("second step = %+v, want ready 14", p)
	}
}

func TestHostFuture_RestoresPriorValue(t *testing.T) {
	b, s := newBinding(t)
	enclosing := &counter{value: -1}
	frame := s.Install(unsafe.Pointer(enclosing))
	defer frame.Restore()

	host := &counter{value: 3}
	h := Enter(b, host, future.Then(future.YieldN(3), func(struct{}) future.Future[int] {
		return doubled(b.State())
	}))

	ctx := context.Background()
	for step := 0; ; step++ {
		before, _ := s.Load()
		p := h.Poll(ctx)
		after, _ := s.Load()
		if before != after {
			t.Fatalf("step %d: slot changed from %p to %p", step, before, after)
		}
		if after != unsafe.Pointer(enclosing) {
			t.Fatalf("step %d: enclosing state not visible", step)
		}
		if p.Ready {
			if p.Value != 6 {
				t.Errorf("value = %d, want 6", p.Value)
			}
			if step != 3 {
				t.Errorf("completed on step %d, want 3", step)
			}
			break
		}
	}
}

func TestHostFuture_ForwardsOutcome(t *testing.T) {
	b, _ := newBinding(t)
	outcomes := []future.Poll[string]{
		future.Pending[string](),
		future.Pending[string](),
		future.Ready("done"),
	}
	i := 0
	inner := future.Func[string](func(context.Context) future.Poll[string] {
		p := outcomes[i]
		i++
		return p
	})

	h := Enter(b, &counter{}, inner)
	for j, want := range outcomes {
		if got := h.Poll(context.Background()); got != want {
			t.Fatalf("step %d: got %+v, want %+v", j, got, want)
		}
	}
}

func TestHostFuture_EmptyAtStartAndAfterLastStep(t *testing.T) {
	b, _ := newBinding(t)
	st := b.State()

	if st.Installed() {
		t.Fatal("nothing should be installed yet")
	}
	expectViolation(t, rterrors.EmptySlot(""), func() { st.Do(func(*counter) {}) })

	var during bool
	h := Enter(b, &counter{}, future.Lazy(func(context.Context) struct{} {
		during = st.Installed()
		return struct{}{}
	}))
	h.Poll(context.Background())

	if !during {
		t.Error("state should be installed during the step")
	}
	if st.Installed() {
		t.Error("state should not be installed after the last step")
	}
	expectViolation(t, rterrors.EmptySlot(""), func() { st.Do(func(*counter) {}) })
}

func TestHostFuture_RestoreOnPanic(t *testing.T) {
	b, s := newBinding(t)
	boom := errors.New("boom")
	h := Enter(b, &counter{}, future.Func[int](func(context.Context) future.Poll[int] {
		panic(boom)
	}))

	err := catch(func() { h.Poll(context.Background()) })
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if _, ok := s.Load(); ok {
		t.Error("slot should be restored after a panicking step")
	}
	if h.Phase() != PhaseAbandoned {
		t.Errorf("phase = %s, want abandoned", h.Phase())
	}
	expectViolation(t, rterrors.Abandoned(""), func() { h.Poll(context.Background()) })
}

func TestHostFuture_PhaseDuringStep(t *testing.T) {
	b, _ := newBinding(t)

	var h *HostFuture[counter, int]
	var seen []Phase
	steps := 0
	h = Enter(b, &counter{}, future.Func[int](func(context.Context) future.Poll[int] {
		seen = append(seen, h.Phase())
		steps++
		if steps < 2 {
			return future.Pending[int]()
		}
		return future.Ready(steps)
	}))

	ctx := context.Background()
	h.Poll(ctx)
	if h.Phase() != PhaseSuspended {
		t.Fatalf("phase after first step = %s, want suspended", h.Phase())
	}
	h.Poll(ctx)

	want := []Phase{PhaseNotStarted, PhaseSuspended}
	if len(seen) != len(want) || seen[0] != want[0] || seen[1] != want[1] {
		t.Errorf("phases seen inside steps = %v, want %v", seen, want)
	}
	if h.Phase() != PhaseCompleted {
		t.Errorf("phase = %s, want completed", h.Phase())
	}
}

func TestHostFuture_RestoreOnGoexit(t *testing.T) {
	b, s := newBinding(t)
	h := Enter(b, &counter{}, future.Func[int](func(context.Context) future.Poll[int] {
		runtime.Goexit()
		return future.Pending[int]()
	}))

	var installed bool
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() { _, installed = s.Load() }()
		h.Poll(context.Background())
	}()
	<-done

	if installed {
		t.Error("slot should be restored when the step exits the goroutine")
	}
	if s.Active() != 0 {
		t.Errorf("Active = %d, want 0", s.Active())
	}
	if h.Phase() != PhaseAbandoned {
		t.Errorf("phase = %s, want abandoned", h.Phase())
	}
}

func TestHostFuture_PollAfterCompletionPanics(t *testing.T) {
	b, _ := newBinding(t)
	h := Enter(b, &counter{value: 1}, doubled(b.State()))
	h.Poll(context.Background())

	expectViolation(t, rterrors.Completed(""), func() { h.Poll(context.Background()) })
}

type discardTracker struct {
	discarded bool
}

func (d *discardTracker) Poll(context.Context) future.Poll[int] { return future.Pending[int]() }
func (d *discardTracker) Discard()                              { d.discarded = true }

func TestHostFuture_Discard(t *testing.T) {
	b, s := newBinding(t)
	tracked := &discardTracker{}
	h := Enter(b, &counter{}, future.Future[int](tracked))

	h.Poll(context.Background())
	h.Discard()

	if !tracked.discarded {
		t.Error("inner future should be discarded")
	}
	if h.Phase() != PhaseAbandoned {
		t.Errorf("phase = %s, want abandoned", h.Phase())
	}
	if _, ok := s.Load(); ok {
		t.Error("discard must leave the slot empty")
	}
	expectViolation(t, rterrors.Abandoned(""), func() { h.Poll(context.Background()) })

	done := Enter(b, &counter{value: 1}, doubled(b.State()))
	done.Poll(context.Background())
	done.Discard()
	if done.Phase() != PhaseCompleted {
		t.Errorf("discard after completion changed phase to %s", done.Phase())
	}
}

func TestHostFuture_SchedulerDiscardsOnCancel(t *testing.T) {
	b, _ := newBinding(t)
	tracked := &discardTracker{}
	h := Enter(b, &counter{}, future.Future[int](tracked))

	ctx, cancel := context.WithCancel(context.Background())
	sched := future.NewScheduler[int](nil)
	if err := sched.Execute(ctx, h); err != nil {
		t.Fatal(err)
	}
	if _, err := sched.Step(ctx, nil); err != nil {
		t.Fatal(err)
	}
	cancel()
	if _, err := sched.Step(ctx, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
	sched.Reset()

	if !tracked.discarded {
		t.Error("reset should discard the wrapped body")
	}
	if h.Phase() != PhaseAbandoned {
		t.Errorf("phase = %s, want abandoned", h.Phase())
	}
}

func TestHostFuture_AwaitAcrossSteps(t *testing.T) {
	b, s := newBinding(t)
	host := &counter{value: 5}
	st := b.State()

	op := &constOp{value: 10}
	body := future.Then(future.Await(op), func(yr future.YieldResult) future.Future[int] {
		return future.Lazy(func(context.Context) int {
			return With(st, func(c *counter) int {
				c.reads = append(c.reads, int(yr.Value))
				return c.value + int(yr.Value)
			})
		})
	})

	got, err := future.Block(context.Background(), Enter(b, host, body))
	if err != nil {
		t.Fatal(err)
	}
	if got != 15 {
		t.Errorf("got %d, want 15", got)
	}
	if len(host.reads) != 1 || host.reads[0] != 10 {
		t.Errorf("reads = %v", host.reads)
	}
	if _, ok := s.Load(); ok {
		t.Error("slot should be empty after Block")
	}
}

type constOp struct {
	value uint64
}

func (c *constOp) CmdID() future.CommandID                 { return 1 }
func (c *constOp) Execute(context.Context) (uint64, error) { return c.value, nil }

func TestEnter_Validation(t *testing.T) {
	b, _ := newBinding(t)

	expectViolation(t, rterrors.Unbound(""), func() {
		Enter(Binding[counter]{}, &counter{}, future.Value(1))
	})
	expectViolation(t, rterrors.NilPointer(rterrors.PhasePoll, nil, ""), func() {
		Enter(b, nil, future.Value(1))
	})
	expectViolation(t, rterrors.NilPointer(rterrors.PhasePoll, nil, ""), func() {
		Enter[counter, int](b, &counter{}, nil)
	})
}

func TestBind_TypeMismatch(t *testing.T) {
	s := slot.New("shared")
	Bind[counter](s)
	Bind[counter](s)

	expectViolation(t, rterrors.TypeMismatch("", "", ""), func() { Bind[int](s) })
	expectViolation(t, rterrors.NilPointer(rterrors.PhaseBind, nil, ""), func() { Bind[int](nil) })
}

func TestState_ZeroValue(t *testing.T) {
	var st State[counter]
	if st.Bound() || st.Installed() {
		t.Fatal("zero accessor should be unbound and empty")
	}
	expectViolation(t, rterrors.Unbound(""), func() { st.Do(func(*counter) {}) })
}

func TestState_ForeignGoroutineRead(t *testing.T) {
	b, _ := newBinding(t)
	st := b.State()

	var foreign error
	h := Enter(b, &counter{value: 9}, future.Lazy(func(context.Context) int {
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			foreign = catch(func() { st.Do(func(*counter) {}) })
		}()
		wg.Wait()
		return With(st, func(c *counter) int { return c.value })
	}))

	p := h.Poll(context.Background())
	if !p.Ready || p.Value != 9 {
		t.Fatalf("poll = %+v, want ready 9", p)
	}
	if !errors.Is(foreign, rterrors.EmptySlot("")) {
		t.Errorf("foreign read: expected empty slot, got %v", foreign)
	}
}

func TestState_ReadFromIdleGoroutineDuringStep(t *testing.T) {
	b, s := newBinding(t)
	st := b.State()

	entered := make(chan struct{})
	release := make(chan struct{})
	h := Enter(b, &counter{value: 99}, future.Lazy(func(context.Context) int {
		close(entered)
		<-release
		return With(st, func(c *counter) int { return c.value })
	}))

	result := make(chan future.Poll[int])
	go func() {
		result <- h.Poll(context.Background())
	}()

	<-entered
	if s.Active() != 1 {
		t.Errorf("Active = %d while a step is running, want 1", s.Active())
	}
	expectViolation(t, rterrors.EmptySlot(""), func() {
		With(st, func(c *counter) int { return c.value })
	})
	if st.Installed() {
		t.Error("state should not be installed on this goroutine")
	}
	close(release)

	if p := <-result; !p.Ready || p.Value != 99 {
		t.Fatalf("poll = %+v, want ready 99", p)
	}
	if s.Active() != 0 {
		t.Errorf("Active = %d after the step, want 0", s.Active())
	}
}

func TestState_ConcurrentWrappers(t *testing.T) {
	b, s := newBinding(t)

	const workers = 16
	results := make([]int, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			host := &counter{value: i}
			body := future.Then(future.YieldN(2), func(struct{}) future.Future[int] {
				return doubled(b.State())
			})
			v, err := future.Block(context.Background(), Enter(b, host, body))
			if err != nil {
				t.Error(err)
				return
			}
			results[i] = v
		}()
	}
	wg.Wait()

	for i, v := range results {
		if v != i*2 {
			t.Errorf("worker %d: got %d, want %d", i, v, i*2)
		}
	}
	if s.Active() != 0 {
		t.Errorf("Active = %d, want 0", s.Active())
	}
}

func TestPhase_String(t *testing.T) {
	tests := []struct {
		p    Phase
		want string
	}{
		{PhaseNotStarted, "not-started"},
		{PhaseSuspended, "suspended"},
		{PhaseCompleted, "completed"},
		{PhaseAbandoned, "abandoned"},
		{Phase(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.p.String(); got != tt.want {
			t.Errorf("Phase(%d).String() = %q, want %q", tt.p, got, tt.want)
		}
	}
}
