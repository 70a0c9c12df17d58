package hoststate

import (
	"context"
	"reflect"
	"unsafe"

	"github.com/wippyai/wasm-hoststate/errors"
	"github.com/wippyai/wasm-hoststate/future"
	"github.com/wippyai/wasm-hoststate/slot"
)

// Phase is the lifecycle position of a HostFuture.
type Phase uint8

const (
	PhaseNotStarted Phase = iota
	PhaseSuspended
	PhaseCompleted
	PhaseAbandoned // discarded, or unwound during a step
)

func (p Phase) String() string {
	switch p {
	case PhaseNotStarted:
		return "not-started"
	case PhaseSuspended:
		return "suspended"
	case PhaseCompleted:
		return "completed"
	case PhaseAbandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}

// HostFuture wraps a generated host function body. Every Poll installs the
// borrowed state into the slot, polls the body exactly once and restores
// the slot before returning, whatever way the step ends.
type HostFuture[T, R any] struct {
	state   *T
	slot    *slot.Slot
	inner   future.Future[R]
	phase   Phase
	polling bool
}

// Enter wraps inner so that it runs with state installed in the binding's
// slot. The caller keeps ownership of state and must keep it alive until
// the future completes or is discarded.
func Enter[T, R any](b Binding[T], state *T, inner future.Future[R]) *HostFuture[T, R] {
	if b.slot == nil {
		panic(errors.Unbound(reflect.TypeFor[T]().String()))
	}
	if state == nil {
		panic(errors.NilPointer(errors.PhasePoll, []string{b.slot.Name()}, reflect.TypeFor[*T]().String()))
	}
	if inner == nil {
		panic(errors.NilPointer(errors.PhasePoll, []string{b.slot.Name()}, "future.Future"))
	}
	return &HostFuture[T, R]{
		state: state,
		slot:  b.slot,
		inner: inner,
	}
}

// Poll performs one resumption step. The outcome is the body's outcome,
// unchanged. Polling a completed or abandoned future panics.
func (h *HostFuture[T, R]) Poll(ctx context.Context) future.Poll[R] {
	switch h.phase {
	case PhaseCompleted:
		panic(errors.Completed(h.slot.Name()))
	case PhaseAbandoned:
		panic(errors.Abandoned(h.slot.Name()))
	}

	frame := h.slot.Install(unsafe.Pointer(h.state))
	defer frame.Restore()
	defer h.settle()

	h.polling = true
	p := h.inner.Poll(ctx)
	h.polling = false
	if p.Ready {
		h.phase = PhaseCompleted
		h.inner = nil
		h.state = nil
	} else {
		h.phase = PhaseSuspended
	}
	return p
}

// settle marks the future abandoned when its step unwound.
func (h *HostFuture[T, R]) settle() {
	if h.polling {
		h.polling = false
		h.phase = PhaseAbandoned
	}
}

// Phase returns the current lifecycle phase. While a step is running it
// reports the phase the step started from.
func (h *HostFuture[T, R]) Phase() Phase {
	return h.phase
}

// Discard abandons the future. The slot needs no cleanup: it was restored
// when the last step returned.
func (h *HostFuture[T, R]) Discard() {
	if h.phase == PhaseCompleted {
		return
	}
	if h.inner != nil {
		future.Discard(h.inner)
	}
	h.phase = PhaseAbandoned
	h.inner = nil
	h.state = nil
}
