package future

import (
	"context"
	"errors"
	"runtime"

	"go.uber.org/zap"

	rterrors "github.com/wippyai/wasm-hoststate/errors"
)

// ErrorKind categorizes errors for integration with external error handling.
type ErrorKind string

const (
	KindUnknown           ErrorKind = "Unknown"
	KindCanceled          ErrorKind = "Canceled"
	KindTimeout           ErrorKind = "Timeout"
	KindInternal          ErrorKind = "Internal"
	KindInvalid           ErrorKind = "Invalid"
	KindResourceExhausted ErrorKind = "ResourceExhausted"
)

func ClassifyError(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var re *rterrors.Error
	if errors.As(err, &re) {
		switch re.Kind {
		case rterrors.KindExhausted:
			return KindResourceExhausted
		case rterrors.KindNotInitialized, rterrors.KindInvalidInput:
			return KindInvalid
		}
	}
	return KindUnknown
}

type CommandID = uint16

// PendingOp represents an operation a future is waiting on. The scheduler
// executes it between steps and hands the outcome back on the next step.
//
// The future that registers an operation owns it. If the operation may hold
// resources it implements Discarder, and the owning future discards it when
// the future itself is discarded before the outcome arrives. The scheduler
// never discards operations.
type PendingOp interface {
	CmdID() CommandID
	Execute(ctx context.Context) (uint64, error)
}

type StepStatus int

const (
	StepContinue StepStatus = iota // yielded an operation, expects resume
	StepIdle                       // pending without an operation
	StepDone                       // execution complete
)

func (s StepStatus) String() string {
	switch s {
	case StepContinue:
		return "continue"
	case StepIdle:
		return "idle"
	case StepDone:
		return "done"
	default:
		return "unknown"
	}
}

type StepResult[R any] struct {
	PendingOp PendingOp
	Error     error
	Result    R
	ErrorKind ErrorKind
	Status    StepStatus
}

type YieldResult struct {
	Error error
	Value uint64
}

// Suspender is the view of a scheduler available to futures through the
// context while they are being polled.
type Suspender interface {
	SetPending(op PendingOp)
	TakeResult() (YieldResult, bool)
}

// Config holds scheduler configuration.
type Config struct {
	// MaxSteps bounds the number of steps Run performs before giving up.
	// 0 means unlimited.
	MaxSteps int `validate:"gte=0"`
}

// Scheduler drives a single future step by step, for integration with
// external event loops. It is not safe for concurrent use; every step runs
// on the calling goroutine.
type Scheduler[R any] struct {
	fut         Future[R]
	pendingOp   PendingOp
	result      YieldResult
	steps       int
	maxSteps    int
	hasResult   bool
	initialized bool
}

func NewScheduler[R any](cfg *Config) *Scheduler[R] {
	s := &Scheduler[R]{}
	if cfg != nil {
		s.maxSteps = cfg.MaxSteps
	}
	return s
}

func (s *Scheduler[R]) SetPending(op PendingOp) {
	if s.pendingOp != nil {
		Logger().Warn("SetPending: replacing unexecuted pending operation",
			zap.Uint16("previous", s.pendingOp.CmdID()),
			zap.Uint16("next", op.CmdID()))
	}
	s.pendingOp = op
}

// TakeResult hands out the result delivered with the current step, once.
func (s *Scheduler[R]) TakeResult() (YieldResult, bool) {
	if !s.hasResult {
		return YieldResult{}, false
	}
	yr := s.result
	s.result = YieldResult{}
	s.hasResult = false
	return yr, true
}

func (s *Scheduler[R]) ClearPending() {
	s.pendingOp = nil
	s.result = YieldResult{}
	s.hasResult = false
}

// Steps returns the number of steps taken by the current or last execution.
func (s *Scheduler[R]) Steps() int {
	return s.steps
}

// Execute initializes execution. Call Step to advance.
func (s *Scheduler[R]) Execute(_ context.Context, fut Future[R]) error {
	if s.initialized {
		return rterrors.InvalidInput(rterrors.PhaseSchedule, "execution already in progress")
	}
	if fut == nil {
		return rterrors.NilPointer(rterrors.PhaseSchedule, nil, "future.Future")
	}
	s.fut = fut
	s.steps = 0
	s.initialized = true
	s.ClearPending()
	return nil
}

// Step advances execution by polling the future once. Pass nil for the
// first call, or the YieldResult of the last StepContinue operation.
//
// If the poll unwinds (panic or runtime.Goexit) the future is discarded and
// the scheduler returns to its idle state before the unwinding continues.
func (s *Scheduler[R]) Step(ctx context.Context, yr *YieldResult) (StepResult[R], error) {
	if err := ctx.Err(); err != nil {
		return StepResult[R]{Error: err, ErrorKind: ClassifyError(err)}, err
	}
	if !s.initialized {
		err := rterrors.NotInitialized(rterrors.PhaseSchedule, "execution (call Execute first)")
		return StepResult[R]{Error: err, ErrorKind: KindInvalid}, err
	}

	if yr != nil {
		s.result = *yr
		s.hasResult = true
	}
	s.steps++

	returned := false
	defer func() {
		if !returned {
			Logger().Warn("Step: future unwound during poll, discarding",
				zap.Int("step", s.steps))
			s.Reset()
		}
	}()

	p := s.fut.Poll(WithScheduler(ctx, s))
	returned = true

	if p.Ready {
		s.fut = nil
		s.initialized = false
		s.ClearPending()
		s.trace(StepDone)
		return StepResult[R]{Status: StepDone, Result: p.Value}, nil
	}

	if s.pendingOp != nil {
		op := s.pendingOp
		s.pendingOp = nil
		s.trace(StepContinue)
		return StepResult[R]{Status: StepContinue, PendingOp: op}, nil
	}

	s.trace(StepIdle)
	return StepResult[R]{Status: StepIdle}, nil
}

func (s *Scheduler[R]) trace(status StepStatus) {
	if ce := Logger().Check(zap.DebugLevel, "scheduler step"); ce != nil {
		ce.Write(zap.Int("step", s.steps), zap.Stringer("status", status))
	}
}

// Reset abandons any execution in progress, discarding its future.
func (s *Scheduler[R]) Reset() {
	// the future owns any registered op and discards it itself
	s.pendingOp = nil
	if s.initialized && s.fut != nil {
		Discard(s.fut)
	}
	s.fut = nil
	s.initialized = false
	s.ClearPending()
}

// Run executes with an internal event loop. Convenience wrapper over
// Execute/Step: pending operations are executed inline and idle steps are
// re-polled after yielding the processor.
func (s *Scheduler[R]) Run(ctx context.Context, fut Future[R]) (R, error) {
	var zero R
	if err := s.Execute(ctx, fut); err != nil {
		return zero, err
	}

	var yr *YieldResult
	for {
		sr, err := s.Step(ctx, yr)
		if err != nil {
			s.Reset()
			return zero, err
		}

		switch sr.Status {
		case StepDone:
			return sr.Result, nil
		case StepContinue:
			val, opErr := sr.PendingOp.Execute(ctx)
			yr = &YieldResult{Value: val, Error: opErr}
		case StepIdle:
			yr = nil
			runtime.Gosched()
		}

		if s.maxSteps > 0 && s.steps >= s.maxSteps {
			steps := s.steps
			s.Reset()
			return zero, rterrors.Exhausted(steps)
		}
	}
}

// Block drives fut to completion on the calling goroutine.
func Block[R any](ctx context.Context, fut Future[R]) (R, error) {
	return NewScheduler[R](nil).Run(ctx, fut)
}

type ctxKeyScheduler struct{}

// WithScheduler makes s the target of Await for futures polled with the
// returned context. An inner scheduler shadows an outer one.
func WithScheduler(ctx context.Context, s Suspender) context.Context {
	return context.WithValue(ctx, ctxKeyScheduler{}, s)
}

func GetScheduler(ctx context.Context) Suspender {
	if v := ctx.Value(ctxKeyScheduler{}); v != nil {
		return v.(Suspender)
	}
	return nil
}

type awaitFuture struct {
	op    PendingOp
	sched Suspender
	done  bool
}

func (a *awaitFuture) Poll(ctx context.Context) Poll[YieldResult] {
	if a.sched == nil {
		s := GetScheduler(ctx)
		if s == nil {
			a.done = true
			return Ready(YieldResult{Error: rterrors.NotInitialized(rterrors.PhaseSchedule, "scheduler in context")})
		}
		s.SetPending(a.op)
		a.sched = s
		return Pending[YieldResult]()
	}

	yr, ok := a.sched.TakeResult()
	if !ok {
		return Pending[YieldResult]()
	}
	a.done = true
	return Ready(yr)
}

func (a *awaitFuture) Discard() {
	if a.sched != nil && !a.done {
		a.done = true
		Discard(a.op)
	}
}

// Await suspends on op: the first step registers it with the scheduler
// driving the current poll, and the future completes with the operation's
// outcome once the scheduler resumes with it.
func Await(op PendingOp) Future[YieldResult] {
	return &awaitFuture{op: op}
}
