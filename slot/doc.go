// Package slot provides goroutine-bound storage cells for type-erased host
// state references.
//
// A Slot is the Go counterpart of a thread-local context channel. It is
// declared once, usually as a package-level variable, and lives for the
// process lifetime:
//
//	var hostSlot = slot.New("atoms")
//
// Every goroutine sees its own cell of the slot. A cell is either empty or
// holds an opaque unsafe.Pointer; the slot never knows the real type behind
// it. Type recovery happens in exactly one trusted place, the typed accessor
// of the hoststate package.
//
// # Installation Frames
//
// Install overwrites the calling goroutine's cell and returns a Frame that
// remembers the previous value. Restoring the frame puts that value back:
//
//	frame := hostSlot.Install(unsafe.Pointer(state))
//	defer frame.Restore()
//
// Frames nest. Because every restore happens on the way out of the call that
// installed it, installations form a stack without any stack object:
// the innermost installation is always the one a Read observes.
//
// # Contract Violations
//
// Reading an empty cell, restoring a frame twice, restoring it from another
// goroutine or restoring it while a different installation sits on top are
// binding-layer bugs. They panic with an *errors.Error; they are never
// returned as errors.
//
// # Thread Safety
//
// A Slot may be shared by any number of goroutines; cells never interact.
// Frames must be restored on the goroutine that created them.
package slot
