package abi

import (
	"fmt"

	"github.com/wippyai/syngen"
)

// Ptr is an address in the foreign memory domain. Handles to foreign
// objects are Ptr values as well.
type Ptr uint32

// Null is the null foreign pointer.
const Null Ptr = 0

// IsNull reports whether p is the null pointer.
func (p Ptr) IsNull() bool { return p == Null }

// Addr is the invocation address of a registered callback.
type Addr uint64

// ElemType tags the element kind of a foreign array.
type ElemType uint32

const (
	ElemFloat   ElemType = 1
	ElemInt     ElemType = 2
	ElemString  ElemType = 3
	ElemPointer ElemType = 4
	ElemVoid    ElemType = 5
)

func (t ElemType) String() string {
	switch t {
	case ElemFloat:
		return "float"
	case ElemInt:
		return "int"
	case ElemString:
		return "string"
	case ElemPointer:
		return "pointer"
	case ElemVoid:
		return "void"
	default:
		return fmt.Sprintf("elem(%d)", uint32(t))
	}
}

// Stride is the byte width of one element.
const Stride = 4

// ArraySize is the encoded size of an Array descriptor.
const ArraySize = 16

// Array is the foreign array descriptor.
type Array struct {
	Size  int32
	Type  ElemType
	Data  Ptr
	Owner bool
}

// DecodeArray reads a descriptor stored at ptr.
func DecodeArray(mem syngen.Memory, ptr uint32) (Array, error) {
	raw, err := mem.Read(ptr, ArraySize)
	if err != nil {
		return Array{}, err
	}
	return Array{
		Size:  int32(le32(raw[0:4])),
		Type:  ElemType(le32(raw[4:8])),
		Data:  Ptr(le32(raw[8:12])),
		Owner: raw[12] != 0,
	}, nil
}

// Encode writes the descriptor at ptr.
func (a Array) Encode(mem syngen.Memory, ptr uint32) error {
	raw := make([]byte, ArraySize)
	put32(raw[0:4], uint32(a.Size))
	put32(raw[4:8], uint32(a.Type))
	put32(raw[8:12], uint32(a.Data))
	if a.Owner {
		raw[12] = 1
	}
	return mem.Write(ptr, raw)
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func put32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}
