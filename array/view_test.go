package array

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/wippyai/syngen"
	"github.com/wippyai/syngen/abi"
	"github.com/wippyai/syngen/enginetest"
	serrors "github.com/wippyai/syngen/errors"
)

func hostFloats(t *testing.T, values ...float32) (*syngen.Bytes, abi.Array) {
	t.Helper()
	mem := syngen.NewBytes(1024)
	data, err := mem.Alloc(uint32(len(values))*abi.Stride, 4)
	if err != nil {
		t.Fatal(err)
	}
	for i, f := range values {
		if err := mem.WriteU32(data+uint32(i)*abi.Stride, math.Float32bits(f)); err != nil {
			t.Fatal(err)
		}
	}
	return mem, abi.Array{Size: int32(len(values)), Type: abi.ElemFloat, Data: abi.Ptr(data)}
}

func TestView_Float32(t *testing.T) {
	mem, desc := hostFloats(t, 1.5, -2, 3.25)
	v := Wrap(mem, nil, desc, abi.NotOwned)

	if v.Len() != 3 || v.Kind() != abi.ElemFloat {
		t.Fatalf("Len=%d Kind=%v", v.Len(), v.Kind())
	}
	f, err := v.Float32(2)
	if err != nil || f != 3.25 {
		t.Fatalf("Float32(2) = %v, %v", f, err)
	}
	if err := v.SetFloat32(1, 7); err != nil {
		t.Fatal(err)
	}
	got, err := v.Float32s()
	if err != nil {
		t.Fatal(err)
	}
	want := []float32{1.5, 7, 3.25}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Float32s()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestView_BoundsChecked(t *testing.T) {
	mem, desc := hostFloats(t, 1, 2)
	v := Wrap(mem, nil, desc, abi.NotOwned)

	for _, i := range []int{-1, 2, 100} {
		_, err := v.Float32(i)
		if !errors.Is(err, &serrors.Error{Phase: serrors.PhaseArray, Kind: serrors.KindOutOfBounds}) {
			t.Errorf("Float32(%d) error = %v, want out_of_bounds", i, err)
		}
	}
	if err := v.Set(5, float32(1)); err == nil {
		t.Error("Set beyond length should fail")
	}
}

func TestView_KindMismatch(t *testing.T) {
	mem, desc := hostFloats(t, 1)
	v := Wrap(mem, nil, desc, abi.NotOwned)

	if _, err := v.String(0); !errors.Is(err, &serrors.Error{Phase: serrors.PhaseArray, Kind: serrors.KindTypeMismatch}) {
		t.Errorf("String on float view error = %v", err)
	}
	if err := v.Set(0, "x"); err == nil {
		t.Error("storing a string into a float view should fail")
	}
}

func TestView_Empty(t *testing.T) {
	v := Wrap(syngen.NewBytes(16), nil, abi.Array{Type: abi.ElemFloat}, abi.NotOwned)
	if v.Len() != 0 {
		t.Fatalf("Len = %d", v.Len())
	}
	got, err := v.Float32s()
	if err != nil || len(got) != 0 {
		t.Fatalf("Float32s = %v, %v", got, err)
	}
	n := 0
	for range v.All() {
		n++
	}
	if n != 0 {
		t.Errorf("All yielded %d elements", n)
	}
}

func TestView_CopyFrom(t *testing.T) {
	mem, desc := hostFloats(t, 0, 0, 0)
	v := Wrap(mem, nil, desc, abi.NotOwned)
	if err := v.CopyFrom([]float32{4, 5, 6}); err != nil {
		t.Fatal(err)
	}
	if f, _ := v.Float32(2); f != 6 {
		t.Errorf("Float32(2) = %v, want 6", f)
	}
	if err := v.CopyFrom([]float32{1}); err == nil {
		t.Error("CopyFrom with wrong length should fail")
	}
}

func TestView_StringsDeepRelease(t *testing.T) {
	ctx := context.Background()
	eng := enginetest.New(nil)
	props, _ := eng.CreateProperties(ctx)
	_ = eng.AddProperty(ctx, props, "alpha", "1")
	_ = eng.AddProperty(ctx, props, "beta", "2")

	desc, _ := eng.GetKeys(ctx, props)
	v := FromEntry(eng, abi.EntryGetKeys, desc)
	if v.Ownership() != abi.Deep {
		t.Fatalf("Ownership = %v, want deep", v.Ownership())
	}

	keys, err := v.Strings()
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 2 || keys[0] != "alpha" || keys[1] != "beta" {
		t.Fatalf("Strings = %v", keys)
	}

	for i := 0; i < 3; i++ {
		if err := v.Release(ctx); err != nil {
			t.Fatal(err)
		}
	}
	if got := eng.Calls(abi.EntryFreeArrayDeep); got != 1 {
		t.Errorf("free_array_deep calls = %d, want 1", got)
	}
	if eng.DoubleFrees() != 0 || eng.LiveArrays() != 0 {
		t.Errorf("DoubleFrees=%d LiveArrays=%d", eng.DoubleFrees(), eng.LiveArrays())
	}

	// the copy outlives the view
	if keys[1] != "beta" {
		t.Error("host copy changed after release")
	}
	if _, err := v.String(0); !errors.Is(err, &serrors.Error{Phase: serrors.PhaseArray, Kind: serrors.KindReleased}) {
		t.Errorf("access after release error = %v", err)
	}
}

func TestView_HandlesShallowRelease(t *testing.T) {
	ctx := context.Background()
	eng := enginetest.New(nil)
	root, _ := eng.CreateProperties(ctx)
	a, _ := eng.CreateProperties(ctx)
	b, _ := eng.CreateProperties(ctx)
	_ = eng.AddToChildArray(ctx, root, "items", a)
	_ = eng.AddToChildArray(ctx, root, "items", b)

	desc, _ := eng.GetChildArray(ctx, root, "items")
	v := FromEntry(eng, abi.EntryGetChildArray, desc)
	handles, err := v.Handles()
	if err != nil {
		t.Fatal(err)
	}
	if len(handles) != 2 || handles[0] != a || handles[1] != b {
		t.Fatalf("Handles = %v, want [%d %d]", handles, a, b)
	}
	if err := v.Release(ctx); err != nil {
		t.Fatal(err)
	}
	if eng.Calls(abi.EntryFreeArray) != 1 || eng.Calls(abi.EntryFreeArrayDeep) != 0 {
		t.Error("child array must be freed shallowly")
	}
}

func TestView_NotOwnedNeverFreed(t *testing.T) {
	ctx := context.Background()
	eng := enginetest.New(nil)
	desc := abi.Array{Size: 1, Type: abi.ElemString, Data: 64}
	v := Wrap(eng.Memory(), eng, desc, abi.NotOwned)

	err := v.ReleaseDeep(ctx)
	if !errors.Is(err, &serrors.Error{Phase: serrors.PhaseArray, Kind: serrors.KindContract}) {
		t.Fatalf("ReleaseDeep on not-owned view error = %v, want contract", err)
	}
	if err := v.Release(ctx); err != nil {
		t.Fatal(err)
	}
	if eng.Calls(abi.EntryFreeArray)+eng.Calls(abi.EntryFreeArrayDeep) != 0 {
		t.Error("not-owned view reached the engine's free entry points")
	}
}

func TestView_IntAndAll(t *testing.T) {
	ctx := context.Background()
	eng := enginetest.New(nil)
	desc, _ := eng.GetAllDevices(ctx)
	v := FromEntry(eng, abi.EntryGetAllDevices, desc)
	defer v.Release(ctx)

	var seen []int32
	for i, x := range v.All() {
		n, ok := x.(int32)
		if !ok {
			t.Fatalf("element %d has type %T", i, x)
		}
		seen = append(seen, n)
	}
	if len(seen) != 3 || seen[2] != 2 {
		t.Errorf("All yielded %v", seen)
	}
	if err := v.Set(0, 9); err != nil {
		t.Fatal(err)
	}
	if n, _ := v.Int32(0); n != 9 {
		t.Errorf("Int32(0) = %d, want 9", n)
	}
}
