// Package errors provides structured error types for the host-state binding layer.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries the slot name, Go type, field path and cause chain.
//
// Two families of errors exist. Contract violations of the binding layer
// (reading an empty slot, restoring a frame out of order, resuming a completed
// host future) are programmer errors and are raised as panics whose value is
// an *Error:
//
//	defer func() {
//		if r := recover(); r != nil {
//			if err, ok := r.(error); ok && errors.Is(err, errors.EmptySlot("")) {
//				// binding-layer bug
//			}
//		}
//	}()
//
// Everything else (guest memory bounds, registration, instantiation) is
// returned as an ordinary error. Use the Builder for ad hoc construction:
//
//	err := errors.New(errors.PhaseHost, errors.KindInvalidInput).
//		Path("atoms", "double_int_return_float").
//		Detail("function name cannot be empty").
//		Build()
//
// All errors implement the standard error interface and support errors.Is/As.
// Is matches on Phase and Kind only.
package errors
