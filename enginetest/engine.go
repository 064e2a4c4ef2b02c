// Package enginetest provides an in-process abi.Engine for tests.
//
// The fake keeps its objects in Go maps but allocates every handle, string
// and array it hands out inside a syngen.Bytes memory, so bridge code reads
// results exactly as it would from a real engine. Every destroy and free is
// counted per pointer; freeing something twice is recorded as a double
// free instead of corrupting state.
package enginetest

import (
	"context"
	"math"
	"strconv"
	"sync"

	"github.com/wippyai/syngen"
	"github.com/wippyai/syngen/abi"
)

// DefaultMemorySize is the size of the fake engine's memory domain.
const DefaultMemorySize = 8 << 20

// Engine is a fake foreign engine.
type Engine struct {
	mem        *syngen.Bytes
	dispatcher abi.Dispatcher

	mu          sync.Mutex
	trees       map[abi.Ptr]*node
	networks    map[abi.Ptr]*config
	envs        map[abi.Ptr]*config
	states      map[abi.Ptr]*state
	arrays      map[abi.Ptr]liveArray
	files       map[string]any
	callbacks   map[string]map[string]abi.Addr
	calls       map[string]int
	destroyed   map[abi.Ptr]int
	nullOn      map[string]bool
	doubleFrees int
	flags       map[string]bool
	ioResults   map[string][]float32
	interrupts  int
}

type liveArray struct {
	elems []abi.Ptr
	deep  bool
}

// New creates a fake engine. d receives callback invocations during runs
// and state builds; it may be nil.
func New(d abi.Dispatcher) *Engine {
	return &Engine{
		mem:        syngen.NewBytes(DefaultMemorySize),
		dispatcher: d,
		trees:      make(map[abi.Ptr]*node),
		networks:   make(map[abi.Ptr]*config),
		envs:       make(map[abi.Ptr]*config),
		states:     make(map[abi.Ptr]*state),
		arrays:     make(map[abi.Ptr]liveArray),
		files:      make(map[string]any),
		callbacks:  make(map[string]map[string]abi.Addr),
		calls:      make(map[string]int),
		destroyed:  make(map[abi.Ptr]int),
		nullOn:     make(map[string]bool),
		flags:      make(map[string]bool),
		ioResults:  make(map[string][]float32),
	}
}

// SetDispatcher replaces the callback dispatcher.
func (e *Engine) SetDispatcher(d abi.Dispatcher) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dispatcher = d
}

// Memory returns the fake's memory domain.
func (e *Engine) Memory() syngen.Memory { return e.mem }

// ReturnNull makes entry return a null pointer from now on.
func (e *Engine) ReturnNull(entry string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nullOn[entry] = true
}

// Calls returns how many times entry was invoked.
func (e *Engine) Calls(entry string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[entry]
}

// Destroyed returns how many times ptr was passed to a destroy entry point
// while it was live.
func (e *Engine) Destroyed(ptr abi.Ptr) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.destroyed[ptr]
}

// DoubleFrees returns the number of destroy or free calls on objects that
// were no longer live, plus deep frees of arrays whose elements the engine
// still owns.
func (e *Engine) DoubleFrees() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.doubleFrees
}

// LiveArrays returns the number of arrays handed out and not yet freed.
func (e *Engine) LiveArrays() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.arrays)
}

// LiveTrees returns the number of live property tree nodes.
func (e *Engine) LiveTrees() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.trees)
}

// LiveObjects returns the number of live networks, environments and states.
func (e *Engine) LiveObjects() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.networks) + len(e.envs) + len(e.states)
}

// Callback returns the address registered under name in namespace.
func (e *Engine) Callback(namespace, name string) (abi.Addr, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	addr, ok := e.callbacks[namespace][name]
	return addr, ok
}

// Flag returns a diagnostics toggle set through the engine.
func (e *Engine) Flag(entry string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.flags[entry]
}

// IOResult returns the buffer contents an IO callback left behind during
// the last run, keyed by callback name and layer id.
func (e *Engine) IOResult(name string, id int) []float32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ioResults[name+"#"+strconv.Itoa(id)]
}

// Interrupts returns the number of interrupt requests received.
func (e *Engine) Interrupts() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.interrupts
}

// count records a call and reports whether the entry should return null.
// Caller holds e.mu.
func (e *Engine) count(entry string) bool {
	e.calls[entry]++
	return e.nullOn[entry]
}

// Caller holds e.mu.
func (e *Engine) alloc(size uint32) abi.Ptr {
	if size < 4 {
		size = 4
	}
	p, err := e.mem.Alloc(size, 4)
	if err != nil {
		panic("enginetest: " + err.Error())
	}
	return abi.Ptr(p)
}

// Caller holds e.mu.
func (e *Engine) cstring(s string) abi.Ptr {
	p := e.alloc(uint32(len(s) + 1))
	_ = e.mem.Write(uint32(p), append([]byte(s), 0))
	return p
}

// Caller holds e.mu.
func (e *Engine) stringArray(items []string, deep bool) abi.Array {
	data := e.alloc(uint32(len(items)) * abi.Stride)
	elems := make([]abi.Ptr, len(items))
	for i, s := range items {
		elems[i] = e.cstring(s)
		_ = e.mem.WriteU32(uint32(data)+uint32(i)*abi.Stride, uint32(elems[i]))
	}
	e.arrays[data] = liveArray{elems: elems, deep: deep}
	return abi.Array{Size: int32(len(items)), Type: abi.ElemString, Data: data, Owner: true}
}

// Caller holds e.mu.
func (e *Engine) pointerArray(items []abi.Ptr) abi.Array {
	data := e.alloc(uint32(len(items)) * abi.Stride)
	for i, p := range items {
		_ = e.mem.WriteU32(uint32(data)+uint32(i)*abi.Stride, uint32(p))
	}
	e.arrays[data] = liveArray{}
	return abi.Array{Size: int32(len(items)), Type: abi.ElemPointer, Data: data, Owner: true}
}

// Caller holds e.mu.
func (e *Engine) intArray(items []int32) abi.Array {
	data := e.alloc(uint32(len(items)) * abi.Stride)
	for i, n := range items {
		_ = e.mem.WriteU32(uint32(data)+uint32(i)*abi.Stride, uint32(n))
	}
	e.arrays[data] = liveArray{}
	return abi.Array{Size: int32(len(items)), Type: abi.ElemInt, Data: data, Owner: true}
}

// Caller holds e.mu.
func (e *Engine) floatBuffer(values []float32) abi.Ptr {
	data := e.alloc(uint32(len(values)) * abi.Stride)
	for i, f := range values {
		_ = e.mem.WriteU32(uint32(data)+uint32(i)*abi.Stride, math.Float32bits(f))
	}
	return data
}

// Caller holds e.mu.
func (e *Engine) intBuffer(values []int32) abi.Ptr {
	data := e.alloc(uint32(len(values)) * abi.Stride)
	for i, n := range values {
		_ = e.mem.WriteU32(uint32(data)+uint32(i)*abi.Stride, uint32(n))
	}
	return data
}

func (e *Engine) readFloats(data abi.Ptr, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		bits, _ := e.mem.ReadU32(uint32(data) + uint32(i)*abi.Stride)
		out[i] = math.Float32frombits(bits)
	}
	return out
}

// FreeArray releases the array's buffer.
func (e *Engine) FreeArray(_ context.Context, arr abi.Array) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.count(abi.EntryFreeArray)
	if _, ok := e.arrays[arr.Data]; !ok {
		e.doubleFrees++
		return nil
	}
	delete(e.arrays, arr.Data)
	return nil
}

// FreeArrayDeep releases the array's buffer and its elements.
func (e *Engine) FreeArrayDeep(_ context.Context, arr abi.Array) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.count(abi.EntryFreeArrayDeep)
	la, ok := e.arrays[arr.Data]
	if !ok || !la.deep {
		e.doubleFrees++
		return nil
	}
	delete(e.arrays, arr.Data)
	return nil
}

var _ abi.Engine = (*Engine)(nil)
