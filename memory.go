package hoststate

import (
	"encoding/binary"
	"math"

	"github.com/wippyai/wasm-hoststate/errors"
)

// Memory represents guest linear memory as seen by generated host stubs.
// Multi-byte values are little-endian.
type Memory interface {
	Read(offset uint32, length uint32) ([]byte, error)
	Write(offset uint32, data []byte) error
	ReadU8(offset uint32) (uint8, error)
	ReadU16(offset uint32) (uint16, error)
	ReadU32(offset uint32) (uint32, error)
	ReadU64(offset uint32) (uint64, error)
	WriteU8(offset uint32, value uint8) error
	WriteU16(offset uint32, value uint16) error
	WriteU32(offset uint32, value uint32) error
	WriteU64(offset uint32, value uint64) error
}

// MemorySizer provides the current size of guest memory in bytes.
type MemorySizer interface {
	Size() uint32
}

// ReadF32 reads an f32 through m.
func ReadF32(m Memory, offset uint32) (float32, error) {
	bits, err := m.ReadU32(offset)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(bits), nil
}

// WriteF32 writes an f32 through m.
func WriteF32(m Memory, offset uint32, v float32) error {
	return m.WriteU32(offset, math.Float32bits(v))
}

// SliceMemory is a fixed-size Memory backed by a byte slice.
// Reads return views into the backing slice.
type SliceMemory struct {
	buf []byte
}

// NewSliceMemory allocates a zeroed memory of size bytes.
func NewSliceMemory(size uint32) *SliceMemory {
	return &SliceMemory{buf: make([]byte, size)}
}

func (m *SliceMemory) bounds(offset, length uint32) ([]byte, error) {
	end := uint64(offset) + uint64(length)
	if end > uint64(len(m.buf)) {
		return nil, errors.OutOfBounds(offset, length, len(m.buf))
	}
	return m.buf[offset:end], nil
}

func (m *SliceMemory) Read(offset uint32, length uint32) ([]byte, error) {
	return m.bounds(offset, length)
}

func (m *SliceMemory) Write(offset uint32, data []byte) error {
	dst, err := m.bounds(offset, uint32(len(data)))
	if err != nil {
		return err
	}
	copy(dst, data)
	return nil
}

func (m *SliceMemory) ReadU8(offset uint32) (uint8, error) {
	b, err := m.bounds(offset, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (m *SliceMemory) ReadU16(offset uint32) (uint16, error) {
	b, err := m.bounds(offset, 2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (m *SliceMemory) ReadU32(offset uint32) (uint32, error) {
	b, err := m.bounds(offset, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (m *SliceMemory) ReadU64(offset uint32) (uint64, error) {
	b, err := m.bounds(offset, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (m *SliceMemory) WriteU8(offset uint32, value uint8) error {
	b, err := m.bounds(offset, 1)
	if err != nil {
		return err
	}
	b[0] = value
	return nil
}

func (m *SliceMemory) WriteU16(offset uint32, value uint16) error {
	b, err := m.bounds(offset, 2)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(b, value)
	return nil
}

func (m *SliceMemory) WriteU32(offset uint32, value uint32) error {
	b, err := m.bounds(offset, 4)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(b, value)
	return nil
}

func (m *SliceMemory) WriteU64(offset uint32, value uint64) error {
	b, err := m.bounds(offset, 8)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(b, value)
	return nil
}

func (m *SliceMemory) Size() uint32 {
	return uint32(len(m.buf))
}

var _ Memory = (*SliceMemory)(nil)
var _ MemorySizer = (*SliceMemory)(nil)
