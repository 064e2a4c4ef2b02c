package props

import (
	"context"
	"strconv"

	"go.uber.org/zap"

	"github.com/wippyai/syngen"
	"github.com/wippyai/syngen/abi"
	"github.com/wippyai/syngen/array"
	"github.com/wippyai/syngen/errors"
	"github.com/wippyai/syngen/resource"
)

// Reflect mirrors an existing foreign tree without taking ownership of it.
// The whole tree is read eagerly; every key enumeration array is freed
// before Reflect returns.
func Reflect(ctx context.Context, eng abi.PropertyEngine, ptr abi.Ptr) (*Tree, error) {
	if ptr.IsNull() {
		return nil, errors.MissingData(errors.PhaseReflect, nil, "properties")
	}
	t, err := reflectNode(ctx, eng, ptr, nil, nil)
	if err != nil {
		return nil, err
	}
	Logger().Debug("property tree reflected", zap.Uint32("ptr", uint32(ptr)))
	return t, nil
}

// Adopt mirrors a foreign tree that the caller received ownership of,
// such as a run report. Releasing the returned root destroys the tree.
func Adopt(ctx context.Context, eng abi.PropertyEngine, ptr abi.Ptr, opts ...Option) (*Tree, error) {
	t, err := Reflect(ctx, eng, ptr)
	if err != nil {
		if !ptr.IsNull() {
			_ = eng.DestroyProperties(ctx, ptr)
		}
		return nil, err
	}
	o := applyOptions(opts)
	h, err := resource.New(o.table, resource.KindProperties, ptr, eng.DestroyProperties)
	if err != nil {
		return nil, err
	}
	t.handle = h
	t.table = o.table
	return t, nil
}

func reflectNode(ctx context.Context, eng abi.PropertyEngine, ptr abi.Ptr, root *Tree, path []string) (*Tree, error) {
	t := &Tree{eng: eng, ptr: ptr, path: path, root: root}
	if root == nil {
		t.root = t
	}
	mem := eng.Memory()

	keys, err := readKeys(ctx, eng, abi.EntryGetKeys, eng.GetKeys, ptr)
	if err != nil {
		return nil, err
	}
	for _, k := range keys {
		sp, err := eng.GetProperty(ctx, ptr, k)
		if err != nil {
			return nil, errors.Foreign(abi.EntryGetProperty, err)
		}
		if sp.IsNull() {
			return nil, errors.MissingData(errors.PhaseReflect, t.at(k), abi.EntryGetProperty)
		}
		s, err := syngen.ReadCString(mem, uint32(sp))
		if err != nil {
			return nil, errors.Wrap(errors.PhaseReflect, errors.KindOutOfBounds, err, "read property "+k)
		}
		t.scalars.set(k, s)
	}

	keys, err = readKeys(ctx, eng, abi.EntryGetChildKeys, eng.GetChildKeys, ptr)
	if err != nil {
		return nil, err
	}
	for _, k := range keys {
		cp, err := eng.GetChild(ctx, ptr, k)
		if err != nil {
			return nil, errors.Foreign(abi.EntryGetChild, err)
		}
		if cp.IsNull() {
			return nil, errors.MissingData(errors.PhaseReflect, t.at(k), abi.EntryGetChild)
		}
		child, err := reflectNode(ctx, eng, cp, t.root, t.at(k))
		if err != nil {
			return nil, err
		}
		t.children.set(k, child)
	}

	keys, err = readKeys(ctx, eng, abi.EntryGetArrayKeys, eng.GetArrayKeys, ptr)
	if err != nil {
		return nil, err
	}
	for _, k := range keys {
		desc, err := eng.GetArray(ctx, ptr, k)
		if err != nil {
			return nil, errors.Foreign(abi.EntryGetArray, err)
		}
		items, err := drain(ctx, eng, abi.EntryGetArray, desc, (*array.View).Strings)
		if err != nil {
			return nil, err
		}
		t.arrays.set(k, items)
	}

	keys, err = readKeys(ctx, eng, abi.EntryGetChildArrayKeys, eng.GetChildArrayKeys, ptr)
	if err != nil {
		return nil, err
	}
	for _, k := range keys {
		desc, err := eng.GetChildArray(ctx, ptr, k)
		if err != nil {
			return nil, errors.Foreign(abi.EntryGetChildArray, err)
		}
		ptrs, err := drain(ctx, eng, abi.EntryGetChildArray, desc, (*array.View).Handles)
		if err != nil {
			return nil, err
		}
		items := make([]*Tree, 0, len(ptrs))
		for i, cp := range ptrs {
			if cp.IsNull() {
				return nil, errors.MissingData(errors.PhaseReflect, t.at(k, strconv.Itoa(i)), abi.EntryGetChildArray)
			}
			child, err := reflectNode(ctx, eng, cp, t.root, t.at(k, strconv.Itoa(i)))
			if err != nil {
				return nil, err
			}
			items = append(items, child)
		}
		t.childArrays.set(k, items)
	}
	return t, nil
}

func readKeys(ctx context.Context, eng abi.PropertyEngine, entry string,
	get func(context.Context, abi.Ptr) (abi.Array, error), ptr abi.Ptr,
) ([]string, error) {
	desc, err := get(ctx, ptr)
	if err != nil {
		return nil, errors.Foreign(entry, err)
	}
	return drain(ctx, eng, entry, desc, (*array.View).Strings)
}

// drain copies a returned array out and releases it per the entry's
// ownership rule, even when copying fails.
func drain[T any](ctx context.Context, eng abi.MemoryEngine, entry string, desc abi.Array,
	read func(*array.View) ([]T, error),
) ([]T, error) {
	v := array.FromEntry(eng, entry, desc)
	items, err := read(v)
	if rerr := v.Release(ctx); err == nil && rerr != nil {
		err = rerr
	}
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}
