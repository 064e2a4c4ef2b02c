package syngen

import (
	"encoding/binary"
	"fmt"
	"sync"
)

// Memory represents a foreign memory domain addressed by 32-bit offsets.
type Memory interface {
	Read(offset uint32, length uint32) ([]byte, error)
	Write(offset uint32, data []byte) error
	ReadU8(offset uint32) (uint8, error)
	ReadU32(offset uint32) (uint32, error)
	ReadU64(offset uint32) (uint64, error)
	WriteU8(offset uint32, value uint8) error
	WriteU32(offset uint32, value uint32) error
	WriteU64(offset uint32, value uint64) error
}

// MemorySizer provides the current size of a memory domain in bytes.
type MemorySizer interface {
	Size() uint32
}

// Allocator allocates memory inside a foreign memory domain
type Allocator interface {
	Alloc(size, align uint32) (uint32, error)
	Free(ptr, size, align uint32)
}

// Bytes is a host-owned Memory backed by a Go byte slice.
// Offset 0 is never handed out by its allocator so it can serve as null.
type Bytes struct {
	buf  []byte
	next uint32
	mu   sync.RWMutex
}

// NewBytes creates a host-owned memory of the given size.
func NewBytes(size uint32) *Bytes {
	return &Bytes{buf: make([]byte, size), next: 8}
}

func (b *Bytes) Read(offset uint32, length uint32) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	end := uint64(offset) + uint64(length)
	if end > uint64(len(b.buf)) {
		return nil, fmt.Errorf("read out of bounds: offset=%d, length=%d", offset, length)
	}
	out := make([]byte, length)
	copy(out, b.buf[offset:end])
	return out, nil
}

func (b *Bytes) Write(offset uint32, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	end := uint64(offset) + uint64(len(data))
	if end > uint64(len(b.buf)) {
		return fmt.Errorf("write out of bounds: offset=%d, length=%d", offset, len(data))
	}
	copy(b.buf[offset:end], data)
	return nil
}

func (b *Bytes) ReadU8(offset uint32) (uint8, error) {
	data, err := b.Read(offset, 1)
	if err != nil {
		return 0, err
	}
	return data[0], nil
}

func (b *Bytes) ReadU32(offset uint32) (uint32, error) {
	data, err := b.Read(offset, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(data), nil
}

func (b *Bytes) ReadU64(offset uint32) (uint64, error) {
	data, err := b.Read(offset, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(data), nil
}

func (b *Bytes) WriteU8(offset uint32, value uint8) error {
	return b.Write(offset, []byte{value})
}

func (b *Bytes) WriteU32(offset uint32, value uint32) error {
	return b.Write(offset, binary.LittleEndian.AppendUint32(nil, value))
}

func (b *Bytes) WriteU64(offset uint32, value uint64) error {
	return b.Write(offset, binary.LittleEndian.AppendUint64(nil, value))
}

// Size returns the capacity of the memory in bytes.
func (b *Bytes) Size() uint32 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return uint32(len(b.buf))
}

// Alloc hands out memory with a bump pointer. Free is a no-op; the
// whole region is reclaimed when the Bytes value is dropped.
func (b *Bytes) Alloc(size, align uint32) (uint32, error) {
	if align == 0 {
		align = 1
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	ptr := (b.next + align - 1) &^ (align - 1)
	if uint64(ptr)+uint64(size) > uint64(len(b.buf)) {
		return 0, fmt.Errorf("failed to allocate %d bytes (align %d)", size, align)
	}
	b.next = ptr + size
	return ptr, nil
}

func (b *Bytes) Free(ptr, size, align uint32) {}

// ReadCString reads a NUL-terminated string starting at offset.
func ReadCString(mem Memory, offset uint32) (string, error) {
	var out []byte
	for {
		c, err := mem.ReadU8(offset)
		if err != nil {
			return "", err
		}
		if c == 0 {
			return string(out), nil
		}
		out = append(out, c)
		offset++
	}
}

var (
	_ Memory      = (*Bytes)(nil)
	_ MemorySizer = (*Bytes)(nil)
	_ Allocator   = (*Bytes)(nil)
)
