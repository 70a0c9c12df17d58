// Package hoststate gives generated host function bodies scoped access to
// externally owned host state while they run as suspendable operations.
//
// Host state is never threaded through generated signatures. Instead, a
// wrapper installs a reference to it into a goroutine-bound slot for the
// duration of each resumption step, and the body reads it back through a
// typed accessor.
//
// # Architecture Overview
//
//	hoststate/           Binding, State accessor, HostFuture wrapper, Memory
//	├── slot/            Goroutine-bound slot and installation frames
//	├── future/          Future/Poll contract, combinators, step Scheduler
//	├── errors/          Structured errors and panic values
//	├── atoms/           Generated-style binding for the atoms interface
//	├── hostmod/         Host function registry and wazero host modules
//	└── testbed/         Guest module fixture and end-to-end tests
//
// # Quick Start
//
// Declare a slot once and bind it to the state type:
//
//	var ctxSlot = slot.New("my-host")
//	var binding = hoststate.Bind[Host](ctxSlot)
//
// A generated body receives the accessor and reads state through it:
//
//	func double(s hoststate.State[Host], v uint32) future.Future[float32] {
//	    return future.Lazy(func(context.Context) float32 {
//	        return hoststate.With(s, func(h *Host) float32 {
//	            return float32(v) * h.Scale
//	        })
//	    })
//	}
//
// The caller wraps the body and drives it:
//
//	host := &Host{Scale: 2}
//	fut := hoststate.Enter(binding, host, double(binding.State(), 21))
//	v, err := future.Block(ctx, fut)
//
// # Lifetime
//
// The reference is installed only while HostFuture.Poll runs. It is removed
// before Poll returns, including when the body panics or calls
// runtime.Goexit. Reading the accessor outside that extent panics with an
// *errors.Error of kind KindEmptySlot.
//
// Nested wrappers on the same slot stack: an inner wrapper's step sees its
// own state, and the outer state is visible again once that step returns.
//
// # Goroutines
//
// A slot holds one cell per goroutine. Installing state on one goroutine is
// invisible to every other goroutine, so an accessor used from a goroutine
// the wrapper is not driving finds an empty cell and panics.
package hoststate
