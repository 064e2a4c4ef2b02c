package engine

import (
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/syngen"
	"github.com/wippyai/syngen/errors"
)

// WazeroMemory wraps wazero memory to implement syngen.Memory
type WazeroMemory struct {
	mem api.Memory
}

// NewMemory wraps a module's linear memory.
func NewMemory(mem api.Memory) *WazeroMemory {
	return &WazeroMemory{mem: mem}
}

func outOfBounds(op string, offset, length uint32) error {
	return errors.New(errors.PhaseForeign, errors.KindOutOfBounds).
		Detail("%s out of bounds: offset=%d, length=%d", op, offset, length).
		Build()
}

func (m *WazeroMemory) Read(offset uint32, length uint32) ([]byte, error) {
	data, ok := m.mem.Read(offset, length)
	if !ok {
		return nil, outOfBounds("read", offset, length)
	}
	return data, nil
}

func (m *WazeroMemory) Write(offset uint32, data []byte) error {
	if !m.mem.Write(offset, data) {
		return outOfBounds("write", offset, uint32(len(data)))
	}
	return nil
}

func (m *WazeroMemory) ReadU8(offset uint32) (uint8, error) {
	v, ok := m.mem.ReadByte(offset)
	if !ok {
		return 0, outOfBounds("read", offset, 1)
	}
	return v, nil
}

func (m *WazeroMemory) ReadU32(offset uint32) (uint32, error) {
	v, ok := m.mem.ReadUint32Le(offset)
	if !ok {
		return 0, outOfBounds("read", offset, 4)
	}
	return v, nil
}

func (m *WazeroMemory) ReadU64(offset uint32) (uint64, error) {
	v, ok := m.mem.ReadUint64Le(offset)
	if !ok {
		return 0, outOfBounds("read", offset, 8)
	}
	return v, nil
}

func (m *WazeroMemory) WriteU8(offset uint32, value uint8) error {
	if !m.mem.WriteByte(offset, value) {
		return outOfBounds("write", offset, 1)
	}
	return nil
}

func (m *WazeroMemory) WriteU32(offset uint32, value uint32) error {
	if !m.mem.WriteUint32Le(offset, value) {
		return outOfBounds("write", offset, 4)
	}
	return nil
}

func (m *WazeroMemory) WriteU64(offset uint32, value uint64) error {
	if !m.mem.WriteUint64Le(offset, value) {
		return outOfBounds("write", offset, 8)
	}
	return nil
}

func (m *WazeroMemory) Size() uint32 {
	if m.mem == nil {
		return 0
	}
	return m.mem.Size()
}

var _ syngen.Memory = (*WazeroMemory)(nil)
var _ syngen.MemorySizer = (*WazeroMemory)(nil)
