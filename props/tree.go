package props

import (
	"context"
	"slices"
	"strconv"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/syngen/abi"
	"github.com/wippyai/syngen/errors"
	"github.com/wippyai/syngen/resource"
)

// namespace identifies which of a node's four key spaces holds a key.
type namespace uint8

const (
	nsNone namespace = iota
	nsScalar
	nsChild
	nsArray
	nsChildArray
)

func (n namespace) String() string {
	switch n {
	case nsScalar:
		return "scalar"
	case nsChild:
		return "child"
	case nsArray:
		return "array"
	case nsChildArray:
		return "child array"
	}
	return "none"
}

// ordered is an insertion-ordered string map.
type ordered[T any] struct {
	vals map[string]T
	keys []string
}

func (o *ordered[T]) get(key string) (T, bool) {
	v, ok := o.vals[key]
	return v, ok
}

func (o *ordered[T]) set(key string, v T) {
	if o.vals == nil {
		o.vals = make(map[string]T)
	}
	if _, ok := o.vals[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.vals[key] = v
}

// Tree mirrors one foreign property tree node. Every node of a tree
// shares the root's lifetime: once the root is released, every node
// reports released.
//
// A tree is not safe for concurrent mutation.
type Tree struct {
	eng    abi.PropertyEngine
	root   *Tree
	handle *resource.Handle
	table  *resource.Table
	path   []string
	ptr    abi.Ptr

	scalars     ordered[string]
	children    ordered[*Tree]
	arrays      ordered[[]string]
	childArrays ordered[[]*Tree]

	// set on the root only
	released atomic.Bool
}

// Option configures how trees are created.
type Option func(*options)

type options struct {
	table *resource.Table
}

// WithTable registers owned trees in an ownership table.
func WithTable(t *resource.Table) Option {
	return func(o *options) { o.table = t }
}

func applyOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// New creates an empty, owned tree.
func New(ctx context.Context, eng abi.PropertyEngine, opts ...Option) (*Tree, error) {
	return newOwned(ctx, eng, applyOptions(opts), nil)
}

func newOwned(ctx context.Context, eng abi.PropertyEngine, o options, path []string) (*Tree, error) {
	ptr, err := eng.CreateProperties(ctx)
	if err != nil {
		return nil, errors.Foreign(abi.EntryCreateProperties, err)
	}
	if ptr.IsNull() {
		return nil, errors.MissingData(errors.PhaseBuild, path, abi.EntryCreateProperties)
	}
	h, err := resource.New(o.table, resource.KindProperties, ptr, eng.DestroyProperties)
	if err != nil {
		return nil, err
	}
	t := &Tree{eng: eng, handle: h, table: o.table, ptr: ptr, path: path}
	t.root = t
	return t, nil
}

// Build creates an owned tree populated from m. Null values are skipped,
// mappings become children, sequences of mappings become child arrays and
// other sequences become string arrays. On failure everything created so
// far is destroyed.
func Build(ctx context.Context, eng abi.PropertyEngine, m *Map, opts ...Option) (*Tree, error) {
	o := applyOptions(opts)
	t, err := buildNode(ctx, eng, o, m, nil)
	if err != nil {
		return nil, err
	}
	Logger().Debug("property tree built",
		zap.Uint32("ptr", uint32(t.ptr)),
		zap.Int("keys", m.Len()))
	return t, nil
}

// BuildAny converts loose Go data with FromGo and builds it.
func BuildAny(ctx context.Context, eng abi.PropertyEngine, x any, opts ...Option) (*Tree, error) {
	v, err := FromGo(x)
	if err != nil {
		return nil, err
	}
	switch v.Kind() {
	case KindNull:
		return Build(ctx, eng, NewMap(), opts...)
	case KindMapping:
		return Build(ctx, eng, v.Map(), opts...)
	}
	return nil, errors.UnsupportedValue(errors.PhaseBuild, nil, x)
}

func buildNode(ctx context.Context, eng abi.PropertyEngine, o options, m *Map, path []string) (*Tree, error) {
	t, err := newOwned(ctx, eng, o, path)
	if err != nil {
		return nil, err
	}
	for key, v := range m.All() {
		if err := t.addValue(ctx, o, key, v); err != nil {
			_ = t.Release(ctx)
			return nil, err
		}
	}
	return t, nil
}

func (t *Tree) addValue(ctx context.Context, o options, key string, v Value) error {
	switch v.Kind() {
	case KindNull:
		return nil
	case KindScalar:
		return t.AddProperty(ctx, key, v.Raw())
	case KindMapping:
		_, err := t.addChild(ctx, o, key, v.Map())
		return err
	}
	for i, item := range v.Items() {
		switch item.Kind() {
		case KindNull:
			continue
		case KindMapping:
			if _, err := t.addToChildArray(ctx, o, key, item.Map()); err != nil {
				return err
			}
		case KindScalar:
			if err := t.AddToArray(ctx, key, item.Raw()); err != nil {
				return err
			}
		default:
			return errors.UnsupportedValue(errors.PhaseBuild, t.at(key, strconv.Itoa(i)), item)
		}
	}
	return nil
}

// AddProperty sets a scalar under key.
func (t *Tree) AddProperty(ctx context.Context, key string, value any) error {
	if err := t.check(key, nsScalar); err != nil {
		return err
	}
	text, ok := FormatScalar(value)
	if !ok {
		return errors.UnsupportedValue(errors.PhaseBuild, t.at(key), value)
	}
	if err := t.eng.AddProperty(ctx, t.ptr, key, text); err != nil {
		return errors.Foreign(abi.EntryAddProperty, err)
	}
	t.scalars.set(key, text)
	return nil
}

// AddToArray appends a scalar to the string array under key.
func (t *Tree) AddToArray(ctx context.Context, key string, value any) error {
	if err := t.check(key, nsArray); err != nil {
		return err
	}
	text, ok := FormatScalar(value)
	if !ok {
		return errors.UnsupportedValue(errors.PhaseBuild, t.at(key), value)
	}
	if err := t.eng.AddToArray(ctx, t.ptr, key, text); err != nil {
		return errors.Foreign(abi.EntryAddToArray, err)
	}
	items, _ := t.arrays.get(key)
	t.arrays.set(key, append(items, text))
	return nil
}

// AddChild builds m and attaches it under key. The parent owns the child
// from then on.
func (t *Tree) AddChild(ctx context.Context, key string, m *Map) (*Tree, error) {
	return t.addChild(ctx, t.options(), key, m)
}

// AddToChildArray builds m and appends it to the child array under key.
func (t *Tree) AddToChildArray(ctx context.Context, key string, m *Map) (*Tree, error) {
	return t.addToChildArray(ctx, t.options(), key, m)
}

func (t *Tree) addChild(ctx context.Context, o options, key string, m *Map) (*Tree, error) {
	if _, dup := t.children.get(key); dup {
		return nil, errors.KeyCollision(t.path, key, nsChild.String())
	}
	if err := t.check(key, nsChild); err != nil {
		return nil, err
	}
	child, err := buildNode(ctx, t.eng, o, m, t.at(key))
	if err != nil {
		return nil, err
	}
	if err := t.eng.AddChild(ctx, t.ptr, key, child.ptr); err != nil {
		_ = child.Release(ctx)
		return nil, errors.Foreign(abi.EntryAddChild, err)
	}
	t.attach(child)
	t.children.set(key, child)
	return child, nil
}

func (t *Tree) addToChildArray(ctx context.Context, o options, key string, m *Map) (*Tree, error) {
	if err := t.check(key, nsChildArray); err != nil {
		return nil, err
	}
	items, _ := t.childArrays.get(key)
	child, err := buildNode(ctx, t.eng, o, m, t.at(key, strconv.Itoa(len(items))))
	if err != nil {
		return nil, err
	}
	if err := t.eng.AddToChildArray(ctx, t.ptr, key, child.ptr); err != nil {
		_ = child.Release(ctx)
		return nil, errors.Foreign(abi.EntryAddToChildArray, err)
	}
	t.attach(child)
	t.childArrays.set(key, append(items, child))
	return child, nil
}

// attach hands the child's subtree over to t's root.
func (t *Tree) attach(child *Tree) {
	child.handle.Disown()
	child.handle = nil
	child.walk(func(n *Tree) { n.root = t.root })
}

func (t *Tree) walk(fn func(*Tree)) {
	fn(t)
	for _, k := range t.children.keys {
		c, _ := t.children.get(k)
		c.walk(fn)
	}
	for _, k := range t.childArrays.keys {
		cs, _ := t.childArrays.get(k)
		for _, c := range cs {
			c.walk(fn)
		}
	}
}

// check rejects mutation of released trees and keys already used by a
// different namespace.
func (t *Tree) check(key string, ns namespace) error {
	if t.Released() {
		return errors.Released(errors.PhaseBuild, "property tree")
	}
	if existing := t.namespaceOf(key); existing != nsNone && existing != ns {
		return errors.KeyCollision(t.path, key, existing.String())
	}
	return nil
}

func (t *Tree) namespaceOf(key string) namespace {
	if _, ok := t.scalars.get(key); ok {
		return nsScalar
	}
	if _, ok := t.children.get(key); ok {
		return nsChild
	}
	if _, ok := t.arrays.get(key); ok {
		return nsArray
	}
	if _, ok := t.childArrays.get(key); ok {
		return nsChildArray
	}
	return nsNone
}

func (t *Tree) options() options {
	return options{table: t.root.table}
}

func (t *Tree) at(keys ...string) []string {
	return append(slices.Clone(t.path), keys...)
}

// Ptr returns the foreign pointer of this node, or abi.Null once the tree
// has been released.
func (t *Tree) Ptr() abi.Ptr {
	if t.Released() {
		return abi.Null
	}
	return t.ptr
}

// Path returns the key path from the root to this node.
func (t *Tree) Path() []string { return slices.Clone(t.path) }

// Owned reports whether this node destroys the foreign tree on Release.
func (t *Tree) Owned() bool { return t.handle.Live() }

// Released reports whether the tree this node belongs to is gone.
func (t *Tree) Released() bool { return t.root.released.Load() }

// Release destroys the foreign tree if this node is an owning root.
// Children are destroyed with their root; releasing a child or a
// non-owning tree only marks the host side released. Release is
// idempotent.
func (t *Tree) Release(ctx context.Context) error {
	if t.root != t {
		return nil
	}
	if !t.released.CompareAndSwap(false, true) {
		return nil
	}
	if t.handle == nil {
		return nil
	}
	Logger().Debug("releasing property tree", zap.Uint32("ptr", uint32(t.ptr)))
	return t.handle.Release(ctx)
}
