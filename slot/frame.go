package slot

import (
	"unsafe"

	"github.com/wippyai/wasm-hoststate/errors"
)

// Frame records one installation: the value it replaced and the value it
// installed. Restore must be called exactly once, on the installing goroutine,
// after every installation nested inside it has been restored.
type Frame struct {
	slot     *Slot
	prev     unsafe.Pointer
	cur      unsafe.Pointer
	owner    int64
	restored bool
}

// Restore puts the replaced value back into the goroutine's cell.
func (f *Frame) Restore() {
	if f.slot == nil {
		panic(errors.NilPointer(errors.PhaseInstall, nil, "*slot.Slot"))
	}
	if f.restored {
		panic(errors.DoubleRestore(f.slot.name))
	}
	id := goroutineID()
	if id != f.owner {
		panic(errors.ForeignGoroutine(f.slot.name, f.owner, id))
	}
	if f.slot.peek(id) != f.cur {
		panic(errors.OutOfOrder(f.slot.name))
	}
	f.restored = true
	f.slot.swap(id, f.prev)
}

// Previous returns the value this frame replaced; nil means the cell was empty.
func (f *Frame) Previous() unsafe.Pointer {
	return f.prev
}

// Restored reports whether Restore has run.
func (f *Frame) Restored() bool {
	return f.restored
}
