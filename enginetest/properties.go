package enginetest

import (
	"context"

	"github.com/wippyai/syngen/abi"
)

type node struct {
	scalarKeys []string
	scalars    map[string]string
	childKeys  []string
	children   map[string]abi.Ptr
	arrayKeys  []string
	arrays     map[string][]string
	caKeys     []string
	childArr   map[string][]abi.Ptr
	attached   bool
}

func newNode() *node {
	return &node{
		scalars:  make(map[string]string),
		children: make(map[string]abi.Ptr),
		arrays:   make(map[string][]string),
		childArr: make(map[string][]abi.Ptr),
	}
}

// CreateProperties allocates an empty property tree.
func (e *Engine) CreateProperties(_ context.Context) (abi.Ptr, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.count(abi.EntryCreateProperties) {
		return abi.Null, nil
	}
	p := e.alloc(4)
	e.trees[p] = newNode()
	return p, nil
}

// DestroyProperties destroys a tree and every node attached beneath it.
func (e *Engine) DestroyProperties(_ context.Context, props abi.Ptr) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.count(abi.EntryDestroyProperties)
	n, ok := e.trees[props]
	if !ok || n.attached {
		e.doubleFrees++
		return nil
	}
	e.destroyed[props]++
	e.destroyTree(props)
	return nil
}

// Caller holds e.mu.
func (e *Engine) destroyTree(p abi.Ptr) {
	n, ok := e.trees[p]
	if !ok {
		return
	}
	delete(e.trees, p)
	for _, c := range n.children {
		e.destroyTree(c)
	}
	for _, cs := range n.childArr {
		for _, c := range cs {
			e.destroyTree(c)
		}
	}
}

// AddProperty sets a scalar.
func (e *Engine) AddProperty(_ context.Context, props abi.Ptr, key, value string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.count(abi.EntryAddProperty)
	n, ok := e.trees[props]
	if !ok {
		return nil
	}
	if _, exists := n.scalars[key]; !exists {
		n.scalarKeys = append(n.scalarKeys, key)
	}
	n.scalars[key] = value
	return nil
}

// AddChild attaches child under key; the parent takes ownership.
func (e *Engine) AddChild(_ context.Context, props abi.Ptr, key string, child abi.Ptr) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.count(abi.EntryAddChild)
	n, ok := e.trees[props]
	c, cok := e.trees[child]
	if !ok || !cok {
		return nil
	}
	if _, exists := n.children[key]; !exists {
		n.childKeys = append(n.childKeys, key)
	}
	c.attached = true
	n.children[key] = child
	return nil
}

// AddToArray appends a string to the array under key.
func (e *Engine) AddToArray(_ context.Context, props abi.Ptr, key, value string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.count(abi.EntryAddToArray)
	n, ok := e.trees[props]
	if !ok {
		return nil
	}
	if _, exists := n.arrays[key]; !exists {
		n.arrayKeys = append(n.arrayKeys, key)
	}
	n.arrays[key] = append(n.arrays[key], value)
	return nil
}

// AddToChildArray appends child to the child array under key.
func (e *Engine) AddToChildArray(_ context.Context, props abi.Ptr, key string, child abi.Ptr) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.count(abi.EntryAddToChildArray)
	n, ok := e.trees[props]
	c, cok := e.trees[child]
	if !ok || !cok {
		return nil
	}
	if _, exists := n.childArr[key]; !exists {
		n.caKeys = append(n.caKeys, key)
	}
	c.attached = true
	n.childArr[key] = append(n.childArr[key], child)
	return nil
}

func (e *Engine) keys(entry string, props abi.Ptr, pick func(*node) []string) (abi.Array, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.count(entry)
	var keys []string
	if n, ok := e.trees[props]; ok {
		keys = pick(n)
	}
	return e.stringArray(keys, true), nil
}

// GetKeys enumerates scalar keys.
func (e *Engine) GetKeys(_ context.Context, props abi.Ptr) (abi.Array, error) {
	return e.keys(abi.EntryGetKeys, props, func(n *node) []string { return n.scalarKeys })
}

// GetChildKeys enumerates child keys.
func (e *Engine) GetChildKeys(_ context.Context, props abi.Ptr) (abi.Array, error) {
	return e.keys(abi.EntryGetChildKeys, props, func(n *node) []string { return n.childKeys })
}

// GetArrayKeys enumerates array keys.
func (e *Engine) GetArrayKeys(_ context.Context, props abi.Ptr) (abi.Array, error) {
	return e.keys(abi.EntryGetArrayKeys, props, func(n *node) []string { return n.arrayKeys })
}

// GetChildArrayKeys enumerates child array keys.
func (e *Engine) GetChildArrayKeys(_ context.Context, props abi.Ptr) (abi.Array, error) {
	return e.keys(abi.EntryGetChildArrayKeys, props, func(n *node) []string { return n.caKeys })
}

// GetProperty returns the scalar under key as a C string.
func (e *Engine) GetProperty(_ context.Context, props abi.Ptr, key string) (abi.Ptr, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.count(abi.EntryGetProperty) {
		return abi.Null, nil
	}
	n, ok := e.trees[props]
	if !ok {
		return abi.Null, nil
	}
	v, ok := n.scalars[key]
	if !ok {
		return abi.Null, nil
	}
	return e.cstring(v), nil
}

// GetChild returns the child under key.
func (e *Engine) GetChild(_ context.Context, props abi.Ptr, key string) (abi.Ptr, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.count(abi.EntryGetChild) {
		return abi.Null, nil
	}
	if n, ok := e.trees[props]; ok {
		return n.children[key], nil
	}
	return abi.Null, nil
}

// GetArray returns the string array under key. Element strings belong to
// the tree.
func (e *Engine) GetArray(_ context.Context, props abi.Ptr, key string) (abi.Array, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.count(abi.EntryGetArray)
	var items []string
	if n, ok := e.trees[props]; ok {
		items = n.arrays[key]
	}
	return e.stringArray(items, false), nil
}

// GetChildArray returns the child handles under key.
func (e *Engine) GetChildArray(_ context.Context, props abi.Ptr, key string) (abi.Array, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.count(abi.EntryGetChildArray)
	var items []abi.Ptr
	if n, ok := e.trees[props]; ok {
		items = n.childArr[key]
	}
	return e.pointerArray(items), nil
}

// config is a detached snapshot of a property tree.
type config struct {
	scalars     map[string]string
	children    map[string]*config
	arrays      map[string][]string
	childArrays map[string][]*config
}

// Caller holds e.mu.
func (e *Engine) snapshot(p abi.Ptr) *config {
	n, ok := e.trees[p]
	if !ok {
		return nil
	}
	c := &config{
		scalars:     make(map[string]string, len(n.scalars)),
		children:    make(map[string]*config, len(n.children)),
		arrays:      make(map[string][]string, len(n.arrays)),
		childArrays: make(map[string][]*config, len(n.childArr)),
	}
	for k, v := range n.scalars {
		c.scalars[k] = v
	}
	for k, v := range n.children {
		c.children[k] = e.snapshot(v)
	}
	for k, v := range n.arrays {
		c.arrays[k] = append([]string(nil), v...)
	}
	for k, vs := range n.childArr {
		for _, v := range vs {
			c.childArrays[k] = append(c.childArrays[k], e.snapshot(v))
		}
	}
	return c
}

func (c *config) scalar(key, def string) string {
	if c == nil {
		return def
	}
	if v, ok := c.scalars[key]; ok {
		return v
	}
	return def
}

func (c *config) list(key string) []*config {
	if c == nil {
		return nil
	}
	return c.childArrays[key]
}
