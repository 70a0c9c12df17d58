package future

import "context"

// Poll is the outcome of one resumption step.
// Value is meaningful only when Ready is true.
type Poll[R any] struct {
	Value R
	Ready bool
}

// Ready returns a completed outcome carrying v.
func Ready[R any](v R) Poll[R] {
	return Poll[R]{Value: v, Ready: true}
}

// Pending returns a not-yet-complete outcome.
func Pending[R any]() Poll[R] {
	return Poll[R]{}
}

// Future is a suspendable computation advanced one step per Poll call.
// Polling after a Ready outcome is outside the contract.
type Future[R any] interface {
	Poll(ctx context.Context) Poll[R]
}

// Discarder is implemented by futures that hold resources which must be
// released when the future is abandoned before completion.
type Discarder interface {
	Discard()
}

// Func adapts a step function to Future.
type Func[R any] func(ctx context.Context) Poll[R]

// Poll calls f.
func (f Func[R]) Poll(ctx context.Context) Poll[R] {
	return f(ctx)
}

// Discard releases fut if it implements Discarder.
func Discard(fut any) {
	if d, ok := fut.(Discarder); ok {
		d.Discard()
	}
}

// Value returns a future that completes with v on its first step.
func Value[R any](v R) Future[R] {
	return Func[R](func(context.Context) Poll[R] {
		return Ready(v)
	})
}

// Lazy returns a future that calls fn on its first step and completes with
// the result.
func Lazy[R any](fn func(ctx context.Context) R) Future[R] {
	return Func[R](func(ctx context.Context) Poll[R] {
		return Ready(fn(ctx))
	})
}

type yieldFuture struct {
	remaining int
}

func (y *yieldFuture) Poll(context.Context) Poll[struct{}] {
	if y.remaining > 0 {
		y.remaining--
		return Pending[struct{}]()
	}
	return Ready(struct{}{})
}

// Yield returns a future that is pending on its first step and completes on
// the second, without registering any operation with the scheduler.
func Yield() Future[struct{}] {
	return &yieldFuture{remaining: 1}
}

// YieldN returns a future that stays pending for n steps.
func YieldN(n int) Future[struct{}] {
	return &yieldFuture{remaining: n}
}

type mapFuture[A, B any] struct {
	src Future[A]
	fn  func(A) B
}

func (m *mapFuture[A, B]) Poll(ctx context.Context) Poll[B] {
	p := m.src.Poll(ctx)
	if !p.Ready {
		return Pending[B]()
	}
	return Ready(m.fn(p.Value))
}

func (m *mapFuture[A, B]) Discard() {
	Discard(m.src)
}

// Map applies fn to the result of src once it completes.
func Map[A, B any](src Future[A], fn func(A) B) Future[B] {
	return &mapFuture[A, B]{src: src, fn: fn}
}

type thenFuture[A, B any] struct {
	first  Future[A]
	next   func(A) Future[B]
	second Future[B]
}

func (t *thenFuture[A, B]) Poll(ctx context.Context) Poll[B] {
	if t.second == nil {
		p := t.first.Poll(ctx)
		if !p.Ready {
			return Pending[B]()
		}
		t.second = t.next(p.Value)
		t.first = nil
	}
	return t.second.Poll(ctx)
}

func (t *thenFuture[A, B]) Discard() {
	if t.second != nil {
		Discard(t.second)
		return
	}
	Discard(t.first)
}

// Then sequences two futures: once first completes, next builds the second
// future, which is polled within the same step.
func Then[A, B any](first Future[A], next func(A) Future[B]) Future[B] {
	return &thenFuture[A, B]{first: first, next: next}
}

// Result carries the outcome of a fallible host computation.
type Result[V any] struct {
	Value V
	Err   error
}

// Ok returns a successful Result.
func Ok[V any](v V) Result[V] {
	return Result[V]{Value: v}
}

// Fail returns a failed Result.
func Fail[V any](err error) Result[V] {
	return Result[V]{Err: err}
}
