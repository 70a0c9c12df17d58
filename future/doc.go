// Package future defines suspendable computations and a step scheduler that
// drives them.
//
// A Future is advanced by repeated calls to Poll. Each call is one
// resumption step and returns either a Ready outcome carrying the final value
// or a Pending one. Futures are plain state machines: they hold their own
// progress between steps and never block the calling goroutine.
//
// # Composition
//
//	fut := future.Then(future.Await(op), func(yr future.YieldResult) future.Future[int] {
//	    return future.Value(int(yr.Value) * 2)
//	})
//
// Map and Then poll their inner futures within the same step, so a chain of
// already-complete futures finishes in a single step.
//
// # Scheduler
//
// Scheduler drives one future with step-based control for integration with
// external event loops:
//
//	sched := future.NewScheduler[int](nil)
//	if err := sched.Execute(ctx, fut); err != nil {
//	    return err
//	}
//	sr, err := sched.Step(ctx, nil)
//	for err == nil && sr.Status != future.StepDone {
//	    var yr *future.YieldResult
//	    if sr.Status == future.StepContinue {
//	        v, opErr := sr.PendingOp.Execute(ctx)
//	        yr = &future.YieldResult{Value: v, Error: opErr}
//	    }
//	    sr, err = sched.Step(ctx, yr)
//	}
//
// Run wraps that loop. A future polled by a scheduler reaches it through the
// context (GetScheduler), which is how Await registers its PendingOp. A
// future may drive a nested scheduler inside its own step; the nested one
// shadows the outer scheduler for everything it polls.
//
// # Abandonment
//
// Futures that hold resources implement Discarder. The scheduler discards
// its future on Reset, on context cancellation inside Run, and when a poll
// unwinds by panic or runtime.Goexit. A pending operation registered through
// Await belongs to the awaiting future and is discarded with it, once.
package future
