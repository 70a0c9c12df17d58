package future

import (
	"context"
	"errors"
	"fmt"
	"testing"

	rterrors "github.com/wippyai/wasm-hoststate/errors"
)

type mockPendingOp struct {
	discards  int
	err       error
	result    uint64
	called    int
	discarded bool
}

func (m *mockPendingOp) CmdID() CommandID { return 7 }

func (m *mockPendingOp) Execute(ctx context.Context) (uint64, error) {
	m.called++
	return m.result, m.err
}

func (m *mockPendingOp) Discard() {
	m.discards++
	m.discarded = true
}

// stuck stays pending forever and records discards
type stuck struct {
	polls     int
	discarded bool
}

func (p *stuck) Poll(context.Context) Poll[int] {
	p.polls++
	return Pending[int]()
}

func (p *stuck) Discard() { p.discarded = true }

func TestValue_CompletesInOneStep(t *testing.T) {
	p := Value(42).Poll(context.Background())
	if !p.Ready || p.Value != 42 {
		t.Fatalf("got %+v, want Ready 42", p)
	}
}

func TestLazy(t *testing.T) {
	calls := 0
	fut := Lazy(func(context.Context) int {
		calls++
		return 3
	})
	if calls != 0 {
		t.Fatal("Lazy should not run before the first poll")
	}
	if p := fut.Poll(context.Background()); !p.Ready || p.Value != 3 || calls != 1 {
		t.Fatalf("got %+v after %d calls", p, calls)
	}
}

func TestYield(t *testing.T) {
	ctx := context.Background()
	fut := Yield()

	if p := fut.Poll(ctx); p.Ready {
		t.Fatal("first poll should be pending")
	}
	if p := fut.Poll(ctx); !p.Ready {
		t.Fatal("second poll should be ready")
	}
}

func TestYieldN(t *testing.T) {
	ctx := context.Background()
	fut := YieldN(3)
	for i := 0; i < 3; i++ {
		if fut.Poll(ctx).Ready {
			t.Fatalf("poll %d should be pending", i)
		}
	}
	if !fut.Poll(ctx).Ready {
		t.Fatal("fourth poll should be ready")
	}
}

func TestMap(t *testing.T) {
	ctx := context.Background()
	fut := Map(Then(Yield(), func(struct{}) Future[int] { return Value(21) }), func(v int) string {
		return fmt.Sprint(v * 2)
	})

	if fut.Poll(ctx).Ready {
		t.Fatal("first poll should be pending")
	}
	p := fut.Poll(ctx)
	if !p.Ready || p.Value != "42" {
		t.Fatalf("got %+v, want Ready \"42\"", p)
	}
}

func TestThen_SameStepWhenReady(t *testing.T) {
	fut := Then(Value(1), func(v int) Future[int] {
		return Then(Value(v+1), func(w int) Future[int] { return Value(w * 10) })
	})
	p := fut.Poll(context.Background())
	if !p.Ready || p.Value != 20 {
		t.Fatalf("got %+v, want Ready 20", p)
	}
}

func TestDiscardPropagation(t *testing.T) {
	t.Run("map", func(t *testing.T) {
		inner := &stuck{}
		Discard(Map[int, int](inner, func(v int) int { return v }))
		if !inner.discarded {
			t.Error("Map should forward Discard")
		}
	})

	t.Run("then before first completes", func(t *testing.T) {
		inner := &stuck{}
		Discard(Then[int, int](inner, func(int) Future[int] { return Value(0) }))
		if !inner.discarded {
			t.Error("Then should forward Discard to the first future")
		}
	})

	t.Run("then after first completes", func(t *testing.T) {
		second := &stuck{}
		fut := Then(Value(1), func(int) Future[int] { return second })
		fut.Poll(context.Background())
		Discard(fut)
		if !second.discarded {
			t.Error("Then should forward Discard to the second future")
		}
	})

	t.Run("non-discarder", func(t *testing.T) {
		Discard(Value(1))
	})
}

func TestResult(t *testing.T) {
	ok := Ok(3)
	if ok.Value != 3 || ok.Err != nil {
		t.Errorf("Ok = %+v", ok)
	}
	boom := errors.New("boom")
	fail := Fail[int](boom)
	if fail.Err != boom {
		t.Errorf("Fail = %+v", fail)
	}
}

func TestScheduler_StepBeforeExecute(t *testing.T) {
	s := NewScheduler[int](nil)
	sr, err := s.Step(context.Background(), nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if sr.ErrorKind != KindInvalid {
		t.Errorf("ErrorKind = %v, want %v", sr.ErrorKind, KindInvalid)
	}
}

func TestScheduler_ExecuteTwice(t *testing.T) {
	ctx := context.Background()
	s := NewScheduler[int](nil)
	if err := s.Execute(ctx, yieldTwo()); err != nil {
		t.Fatal(err)
	}
	if err := s.Execute(ctx, Value(1)); err == nil {
		t.Fatal("second Execute should fail while execution is in progress")
	}
	if err := s.Execute(ctx, nil); err == nil {
		t.Fatal("nil future should be rejected")
	}
}

func yieldTwo() Future[int] {
	return Map(Yield(), func(struct{}) int { return 2 })
}

func TestScheduler_IdleThenDone(t *testing.T) {
	ctx := context.Background()
	s := NewScheduler[int](nil)
	if err := s.Execute(ctx, yieldTwo()); err != nil {
		t.Fatal(err)
	}

	sr, err := s.Step(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if sr.Status != StepIdle {
		t.Fatalf("Status = %v, want idle", sr.Status)
	}

	sr, err = s.Step(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if sr.Status != StepDone || sr.Result != 2 {
		t.Fatalf("got %+v, want done 2", sr)
	}
	if s.Steps() != 2 {
		t.Errorf("Steps = %d, want 2", s.Steps())
	}

	if _, err := s.Step(ctx, nil); err == nil {
		t.Fatal("Step after completion should fail")
	}
}

func TestScheduler_AwaitRoundTrip(t *testing.T) {
	ctx := context.Background()
	op := &mockPendingOp{result: 21}
	fut := Map(Await(op), func(yr YieldResult) int { return int(yr.Value) * 2 })

	s := NewScheduler[int](nil)
	if err := s.Execute(ctx, fut); err != nil {
		t.Fatal(err)
	}

	sr, err := s.Step(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if sr.Status != StepContinue || sr.PendingOp != op {
		t.Fatalf("got %+v, want continue with op", sr)
	}

	val, opErr := sr.PendingOp.Execute(ctx)
	sr, err = s.Step(ctx, &YieldResult{Value: val, Error: opErr})
	if err != nil {
		t.Fatal(err)
	}
	if sr.Status != StepDone || sr.Result != 42 {
		t.Fatalf("got %+v, want done 42", sr)
	}
}

func TestScheduler_AwaitDeliversOpError(t *testing.T) {
	boom := errors.New("io failure")
	op := &mockPendingOp{err: boom}
	fut := Map(Await(op), func(yr YieldResult) error { return yr.Error })

	got, err := Block(context.Background(), fut)
	if err != nil {
		t.Fatal(err)
	}
	if got != boom {
		t.Fatalf("future observed %v, want %v", got, boom)
	}
}

func TestAwait_WithoutScheduler(t *testing.T) {
	p := Await(&mockPendingOp{}).Poll(context.Background())
	if !p.Ready {
		t.Fatal("Await without a scheduler should complete immediately")
	}
	if !errors.Is(p.Value.Error, rterrors.NotInitialized(rterrors.PhaseSchedule, "")) {
		t.Fatalf("expected not_initialized, got %v", p.Value.Error)
	}
}

func TestScheduler_Run(t *testing.T) {
	op1 := &mockPendingOp{result: 1}
	op2 := &mockPendingOp{result: 2}
	fut := Then(Await(op1), func(a YieldResult) Future[uint64] {
		return Map(Then(Yield(), func(struct{}) Future[YieldResult] { return Await(op2) }), func(b YieldResult) uint64 {
			return a.Value + b.Value
		})
	})

	s := NewScheduler[uint64](nil)
	got, err := s.Run(context.Background(), fut)
	if err != nil {
		t.Fatal(err)
	}
	if got != 3 {
		t.Errorf("Run = %d, want 3", got)
	}
	if op1.called != 1 || op2.called != 1 {
		t.Errorf("ops called %d/%d times, want 1/1", op1.called, op2.called)
	}
	// await, yield, await, done
	if s.Steps() != 4 {
		t.Errorf("Steps = %d, want 4", s.Steps())
	}
}

func TestScheduler_RunCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := &stuck{}
	s := NewScheduler[int](nil)
	_, err := s.Run(ctx, p)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if ClassifyError(err) != KindCanceled {
		t.Errorf("ClassifyError = %v, want %v", ClassifyError(err), KindCanceled)
	}
	if !p.discarded {
		t.Error("canceled Run should discard its future")
	}
	if p.polls != 0 {
		t.Errorf("canceled Run polled %d times", p.polls)
	}
}

func TestScheduler_MaxSteps(t *testing.T) {
	p := &stuck{}
	s := NewScheduler[int](&Config{MaxSteps: 5})
	_, err := s.Run(context.Background(), p)
	if !errors.Is(err, rterrors.Exhausted(0)) {
		t.Fatalf("expected exhausted, got %v", err)
	}
	if ClassifyError(err) != KindResourceExhausted {
		t.Errorf("ClassifyError = %v", ClassifyError(err))
	}
	if p.polls != 5 {
		t.Errorf("polls = %d, want 5", p.polls)
	}
	if !p.discarded {
		t.Error("exhausted Run should discard its future")
	}
}

type panicky struct {
	discarded bool
}

func (p *panicky) Poll(context.Context) Poll[int] { panic("poll failed") }
func (p *panicky) Discard()                       { p.discarded = true }

func TestScheduler_PanicDuringPoll(t *testing.T) {
	ctx := context.Background()
	fut := &panicky{}
	s := NewScheduler[int](nil)
	if err := s.Execute(ctx, fut); err != nil {
		t.Fatal(err)
	}

	func() {
		defer func() {
			if r := recover(); r != "poll failed" {
				t.Fatalf("recovered %v, want the poll panic", r)
			}
		}()
		s.Step(ctx, nil)
	}()

	if !fut.discarded {
		t.Error("unwound future should be discarded")
	}
	if err := s.Execute(ctx, Value(1)); err != nil {
		t.Errorf("scheduler should be reusable after unwinding: %v", err)
	}
}

func TestScheduler_ResetDiscards(t *testing.T) {
	ctx := context.Background()
	op := &mockPendingOp{}
	s := NewScheduler[YieldResult](nil)
	aw := Await(op)
	if err := s.Execute(ctx, aw); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Step(ctx, nil); err != nil {
		t.Fatal(err)
	}
	s.Reset()
	if !op.discarded {
		t.Error("Reset should discard the awaited operation")
	}
}

// registerThenPanic registers an await with the scheduler and unwinds in
// the same step.
type registerThenPanic struct {
	aw Future[YieldResult]
}

func (r *registerThenPanic) Poll(ctx context.Context) Poll[int] {
	r.aw.Poll(ctx)
	panic("unwind after register")
}

func (r *registerThenPanic) Discard() { Discard(r.aw) }

func TestScheduler_UnwindDiscardsPendingOnce(t *testing.T) {
	ctx := context.Background()
	op := &mockPendingOp{}
	s := NewScheduler[int](nil)
	if err := s.Execute(ctx, &registerThenPanic{aw: Await(op)}); err != nil {
		t.Fatal(err)
	}

	func() {
		defer func() {
			if r := recover(); r != "unwind after register" {
				t.Fatalf("recovered %v", r)
			}
		}()
		s.Step(ctx, nil)
	}()

	if op.discards != 1 {
		t.Errorf("op discarded %d times, want 1", op.discards)
	}
	if op.called != 0 {
		t.Errorf("op executed %d times, want 0", op.called)
	}
}

func TestScheduler_ResetAfterHandOutDiscardsOnce(t *testing.T) {
	ctx := context.Background()
	op := &mockPendingOp{}
	s := NewScheduler[YieldResult](nil)
	if err := s.Execute(ctx, Await(op)); err != nil {
		t.Fatal(err)
	}
	sr, err := s.Step(ctx, nil)
	if err != nil || sr.Status != StepContinue {
		t.Fatalf("step = %+v, %v", sr, err)
	}
	s.Reset()
	s.Reset()
	if op.discards != 1 {
		t.Errorf("op discarded %d times, want 1", op.discards)
	}
}

func TestScheduler_Nested(t *testing.T) {
	ctx := context.Background()
	innerOp := &mockPendingOp{result: 5}

	var outerSched Suspender
	outer := Func[uint64](func(ctx context.Context) Poll[uint64] {
		outerSched = GetScheduler(ctx)
		v, err := Block(ctx, Map(Await(innerOp), func(yr YieldResult) uint64 { return yr.Value }))
		if err != nil {
			t.Errorf("inner Block: %v", err)
		}
		if GetScheduler(ctx) != outerSched {
			t.Error("outer context should still carry the outer scheduler")
		}
		return Ready(v + 1)
	})

	s := NewScheduler[uint64](nil)
	if err := s.Execute(ctx, outer); err != nil {
		t.Fatal(err)
	}
	sr, err := s.Step(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if sr.Status != StepDone || sr.Result != 6 {
		t.Fatalf("got %+v, want done 6", sr)
	}
	if outerSched != Suspender(s) {
		t.Error("outer future should see the outer scheduler")
	}
	if innerOp.called != 1 {
		t.Errorf("inner op called %d times, want 1", innerOp.called)
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorKind
	}{
		{nil, KindUnknown},
		{context.Canceled, KindCanceled},
		{fmt.Errorf("wrapped: %w", context.DeadlineExceeded), KindTimeout},
		{rterrors.Exhausted(3), KindResourceExhausted},
		{rterrors.NotInitialized(rterrors.PhaseSchedule, "x"), KindInvalid},
		{errors.New("other"), KindUnknown},
	}
	for _, tt := range tests {
		if got := ClassifyError(tt.err); got != tt.want {
			t.Errorf("ClassifyError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestStepStatus_String(t *testing.T) {
	for status, want := range map[StepStatus]string{
		StepContinue:  "continue",
		StepIdle:      "idle",
		StepDone:      "done",
		StepStatus(9): "unknown",
	} {
		if got := status.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", status, got, want)
		}
	}
}
