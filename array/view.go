// Package array wraps foreign array descriptors in typed, bounds-checked views.
//
// A View never copies on access: reads and writes go straight to the
// foreign buffer. The Float32s, Int32s, Strings and Handles methods produce
// host-owned copies that stay valid after the view is released.
package array

import (
	"context"
	"fmt"
	"iter"
	"math"
	"strconv"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/syngen"
	"github.com/wippyai/syngen/abi"
	"github.com/wippyai/syngen/errors"
)

// Freer releases foreign array descriptors.
type Freer interface {
	FreeArray(ctx context.Context, arr abi.Array) error
	FreeArrayDeep(ctx context.Context, arr abi.Array) error
}

// View is a typed window over a foreign buffer.
type View struct {
	mem      syngen.Memory
	freer    Freer
	desc     abi.Array
	own      abi.Ownership
	released atomic.Bool
}

// Wrap creates a view over desc. A nil freer is only valid for NotOwned views.
func Wrap(mem syngen.Memory, freer Freer, desc abi.Array, own abi.Ownership) *View {
	if desc.Size < 0 {
		desc.Size = 0
	}
	return &View{mem: mem, freer: freer, desc: desc, own: own}
}

// FromEntry wraps an array returned by the named entry point, looking up
// its ownership in the per-entry table.
func FromEntry(eng abi.MemoryEngine, entry string, desc abi.Array) *View {
	return Wrap(eng.Memory(), eng, desc, abi.OwnershipFor(entry, desc))
}

// Len returns the number of elements.
func (v *View) Len() int { return int(v.desc.Size) }

// Kind returns the element kind.
func (v *View) Kind() abi.ElemType { return v.desc.Type }

// Ownership returns what Release will free.
func (v *View) Ownership() abi.Ownership { return v.own }

// Descriptor returns the wrapped descriptor.
func (v *View) Descriptor() abi.Array { return v.desc }

// Released reports whether Release has been called.
func (v *View) Released() bool { return v.released.Load() }

func (v *View) addr(i int, kinds ...abi.ElemType) (uint32, error) {
	if v.released.Load() {
		return 0, errors.Released(errors.PhaseArray, "array view")
	}
	if i < 0 || i >= v.Len() {
		return 0, errors.OutOfBounds(errors.PhaseArray, nil, i, v.Len())
	}
	for _, k := range kinds {
		if v.desc.Type == k {
			return uint32(v.desc.Data) + uint32(i)*abi.Stride, nil
		}
	}
	return 0, errors.TypeMismatch(errors.PhaseArray, []string{strconv.Itoa(i)}, v.desc.Type.String(),
		"element kind does not match accessor")
}

// Float32 reads element i of a float view.
func (v *View) Float32(i int) (float32, error) {
	a, err := v.addr(i, abi.ElemFloat)
	if err != nil {
		return 0, err
	}
	bits, err := v.mem.ReadU32(a)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(bits), nil
}

// SetFloat32 writes element i of a float view.
func (v *View) SetFloat32(i int, f float32) error {
	a, err := v.addr(i, abi.ElemFloat)
	if err != nil {
		return err
	}
	return v.mem.WriteU32(a, math.Float32bits(f))
}

// Int32 reads element i of an int view.
func (v *View) Int32(i int) (int32, error) {
	a, err := v.addr(i, abi.ElemInt)
	if err != nil {
		return 0, err
	}
	u, err := v.mem.ReadU32(a)
	if err != nil {
		return 0, err
	}
	return int32(u), nil
}

// SetInt32 writes element i of an int view.
func (v *View) SetInt32(i int, n int32) error {
	a, err := v.addr(i, abi.ElemInt)
	if err != nil {
		return err
	}
	return v.mem.WriteU32(a, uint32(n))
}

// String decodes element i of a string view as a NUL-terminated string.
func (v *View) String(i int) (string, error) {
	a, err := v.addr(i, abi.ElemString)
	if err != nil {
		return "", err
	}
	p, err := v.mem.ReadU32(a)
	if err != nil {
		return "", err
	}
	if p == 0 {
		return "", errors.MissingData(errors.PhaseArray, []string{strconv.Itoa(i)}, "")
	}
	return syngen.ReadCString(v.mem, p)
}

// Handle decodes element i of a pointer view as a foreign handle.
func (v *View) Handle(i int) (abi.Ptr, error) {
	a, err := v.addr(i, abi.ElemPointer, abi.ElemVoid)
	if err != nil {
		return abi.Null, err
	}
	p, err := v.mem.ReadU32(a)
	if err != nil {
		return abi.Null, err
	}
	return abi.Ptr(p), nil
}

// Get decodes element i according to the view's kind.
func (v *View) Get(i int) (any, error) {
	switch v.desc.Type {
	case abi.ElemFloat:
		return v.Float32(i)
	case abi.ElemInt:
		return v.Int32(i)
	case abi.ElemString:
		return v.String(i)
	default:
		return v.Handle(i)
	}
}

// Set encodes x into element i. Only numeric views are writable.
func (v *View) Set(i int, x any) error {
	switch v.desc.Type {
	case abi.ElemFloat:
		switch n := x.(type) {
		case float32:
			return v.SetFloat32(i, n)
		case float64:
			return v.SetFloat32(i, float32(n))
		}
	case abi.ElemInt:
		switch n := x.(type) {
		case int32:
			return v.SetInt32(i, n)
		case int:
			return v.SetInt32(i, int32(n))
		}
	}
	return errors.New(errors.PhaseArray, errors.KindTypeMismatch).
		Path(strconv.Itoa(i)).
		GoType(fmt.Sprintf("%T", x)).
		Detail("cannot store into %s array", v.desc.Type).
		Build()
}

// All iterates over decoded elements, stopping at the first decode error.
func (v *View) All() iter.Seq2[int, any] {
	return func(yield func(int, any) bool) {
		for i := 0; i < v.Len(); i++ {
			x, err := v.Get(i)
			if err != nil {
				return
			}
			if !yield(i, x) {
				return
			}
		}
	}
}

// Float32s copies a float view into a host slice.
func (v *View) Float32s() ([]float32, error) {
	out := make([]float32, v.Len())
	for i := range out {
		f, err := v.Float32(i)
		if err != nil {
			return nil, err
		}
		out[i] = f
	}
	return out, nil
}

// Int32s copies an int view into a host slice.
func (v *View) Int32s() ([]int32, error) {
	out := make([]int32, v.Len())
	for i := range out {
		n, err := v.Int32(i)
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}

// Strings copies a string view into a host slice.
func (v *View) Strings() ([]string, error) {
	out := make([]string, v.Len())
	for i := range out {
		s, err := v.String(i)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

// Handles copies a pointer view into a host slice.
func (v *View) Handles() ([]abi.Ptr, error) {
	out := make([]abi.Ptr, v.Len())
	for i := range out {
		p, err := v.Handle(i)
		if err != nil {
			return nil, err
		}
		out[i] = p
	}
	return out, nil
}

// CopyFrom writes src into a float view. src must have the view's length.
func (v *View) CopyFrom(src []float32) error {
	if len(src) != v.Len() {
		return errors.InvalidInput(errors.PhaseArray, "source length "+strconv.Itoa(len(src))+
			" does not match view length "+strconv.Itoa(v.Len()))
	}
	for i, f := range src {
		if err := v.SetFloat32(i, f); err != nil {
			return err
		}
	}
	return nil
}

// Release frees the array according to its ownership. Calls after the
// first are no-ops.
func (v *View) Release(ctx context.Context) error {
	if !v.released.CompareAndSwap(false, true) {
		return nil
	}
	switch v.own {
	case abi.Shallow:
		return v.freer.FreeArray(ctx, v.desc)
	case abi.Deep:
		return v.freer.FreeArrayDeep(ctx, v.desc)
	}
	return nil
}

// ReleaseDeep frees the array and every element it references. Only views
// created with Deep ownership may be deep-freed; anything else is refused
// without touching foreign memory.
func (v *View) ReleaseDeep(ctx context.Context) error {
	if v.own != abi.Deep {
		Logger().Error("deep free refused",
			zap.Stringer("ownership", v.own),
			zap.Int("len", v.Len()))
		return errors.Contract(errors.PhaseArray, "deep free of "+v.own.String()+" array")
	}
	return v.Release(ctx)
}
