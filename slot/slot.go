package slot

import (
	"reflect"
	"sync"
	"unsafe"

	"github.com/wippyai/wasm-hoststate/errors"
)

// Slot is a goroutine-bound cell holding an opaque host state reference.
// The zero value is not usable; create slots with New.
type Slot struct {
	cells map[int64]unsafe.Pointer
	elem  reflect.Type
	name  string
	mu    sync.RWMutex
	bind  sync.Mutex
}

// New creates a slot. The name only appears in diagnostics.
func New(name string) *Slot {
	return &Slot{
		name:  name,
		cells: make(map[int64]unsafe.Pointer),
	}
}

// Name returns the slot name.
func (s *Slot) Name() string {
	return s.name
}

// Replace stores p in the calling goroutine's cell and returns the value it
// held before. Storing nil empties the cell.
func (s *Slot) Replace(p unsafe.Pointer) unsafe.Pointer {
	return s.swap(goroutineID(), p)
}

// Restore writes back a value previously returned by Replace.
func (s *Slot) Restore(prev unsafe.Pointer) {
	s.swap(goroutineID(), prev)
}

// Load returns the calling goroutine's current value and whether one is installed.
func (s *Slot) Load() (unsafe.Pointer, bool) {
	id := goroutineID()
	s.mu.RLock()
	p, ok := s.cells[id]
	s.mu.RUnlock()
	return p, ok
}

// Read returns the calling goroutine's current value.
// It panics with an empty_slot error when nothing is installed.
func (s *Slot) Read() unsafe.Pointer {
	p, ok := s.Load()
	if !ok {
		panic(errors.EmptySlot(s.name))
	}
	return p
}

// Install stores p in the calling goroutine's cell and returns the frame
// that undoes it. p must not be nil.
func (s *Slot) Install(p unsafe.Pointer) Frame {
	if p == nil {
		panic(errors.NilPointer(errors.PhaseInstall, []string{s.name}, "unsafe.Pointer"))
	}
	id := goroutineID()
	return Frame{
		slot:  s,
		prev:  s.swap(id, p),
		cur:   p,
		owner: id,
	}
}

// Active returns the number of goroutines with a value currently installed.
func (s *Slot) Active() int {
	s.mu.RLock()
	n := len(s.cells)
	s.mu.RUnlock()
	return n
}

// Claim records t as the state type carried by the slot. The first claim
// wins; claiming a different type afterwards panics with type_mismatch.
func (s *Slot) Claim(t reflect.Type) {
	s.bind.Lock()
	defer s.bind.Unlock()

	if s.elem == nil {
		s.elem = t
		return
	}
	if s.elem != t {
		panic(errors.TypeMismatch(s.name, s.elem.String(), t.String()))
	}
}

// Elem returns the claimed state type, or nil if the slot is unclaimed.
func (s *Slot) Elem() reflect.Type {
	s.bind.Lock()
	defer s.bind.Unlock()
	return s.elem
}

func (s *Slot) swap(id int64, p unsafe.Pointer) unsafe.Pointer {
	s.mu.Lock()
	prev := s.cells[id]
	if p == nil {
		delete(s.cells, id)
	} else {
		s.cells[id] = p
	}
	s.mu.Unlock()
	return prev
}

func (s *Slot) peek(id int64) unsafe.Pointer {
	s.mu.RLock()
	p := s.cells[id]
	s.mu.RUnlock()
	return p
}
