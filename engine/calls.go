package engine

import (
	"context"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/syngen/abi"
	"github.com/wippyai/syngen/errors"
)

// Guest calling convention (wasm32 C ABI): pointers, int and bool are
// i32, callback addresses are i64. Array results are written through a
// return pointer passed as the first argument, and arrays passed by value
// are passed by reference to a copy.

func (e *WasmEngine) fn(name string) (api.Function, error) {
	if e.module == nil {
		return nil, errors.Released(errors.PhaseForeign, "engine")
	}
	fn, ok := e.fns[name]
	if !ok {
		return nil, errors.NotFound(errors.PhaseForeign, "export", name)
	}
	return fn, nil
}

// acquire serializes guest calls. While a trampoline is dispatching a
// callback the outer call holds e.mu, so calls made from the callback
// take e.reentry instead and use the second scratch region. The returned
// base is the scratch region the caller may use.
func (e *WasmEngine) acquire() (release func(), base uint32) {
	for {
		if e.callbacks.Load() == 0 {
			e.mu.Lock()
			return e.mu.Unlock, e.scratch
		}
		e.reentry.Lock()
		if e.callbacks.Load() > 0 {
			return e.reentry.Unlock, e.scratch + scratchSize/2
		}
		e.reentry.Unlock()
	}
}

// call runs one guest function with string arguments copied into guest
// memory for the duration of the call.
func (e *WasmEngine) call(ctx context.Context, name string, strs []string, build func(strs []uint64) []uint64) ([]uint64, error) {
	release, _ := e.acquire()
	defer release()
	return e.callLocked(ctx, name, strs, build)
}

// Caller holds e.mu or, inside a callback, e.reentry.
func (e *WasmEngine) callLocked(ctx context.Context, name string, strs []string, build func(strs []uint64) []uint64) ([]uint64, error) {
	fn, err := e.fn(name)
	if err != nil {
		return nil, err
	}
	ptrs := make([]uint64, len(strs))
	for i, s := range strs {
		p, err := e.cstring(ctx, s)
		if err != nil {
			return nil, err
		}
		defer e.alloc.freeCtx(ctx, p, uint32(len(s)+1))
		ptrs[i] = api.EncodeU32(p)
	}
	res, err := fn.Call(ctx, build(ptrs)...)
	if err != nil {
		return nil, errors.Foreign(name, err)
	}
	return res, nil
}

// Caller holds e.mu or e.reentry.
func (e *WasmEngine) cstring(ctx context.Context, s string) (uint32, error) {
	p, err := e.alloc.allocCtx(ctx, uint32(len(s)+1))
	if err != nil {
		return 0, err
	}
	buf := make([]byte, len(s)+1)
	copy(buf, s)
	if err := e.memory.Write(p, buf); err != nil {
		e.alloc.freeCtx(ctx, p, uint32(len(buf)))
		return 0, err
	}
	return p, nil
}

func ptrArg(p abi.Ptr) uint64 { return api.EncodeU32(uint32(p)) }

func boolArg(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

func (e *WasmEngine) ptrResult(ctx context.Context, name string, strs []string, build func([]uint64) []uint64) (abi.Ptr, error) {
	res, err := e.call(ctx, name, strs, build)
	if err != nil {
		return abi.Null, err
	}
	return abi.Ptr(api.DecodeU32(res[0])), nil
}

func (e *WasmEngine) boolResult(ctx context.Context, name string, strs []string, build func([]uint64) []uint64) (bool, error) {
	res, err := e.call(ctx, name, strs, build)
	if err != nil {
		return false, err
	}
	return api.DecodeU32(res[0]) != 0, nil
}

func (e *WasmEngine) int32Result(ctx context.Context, name string) (int32, error) {
	res, err := e.call(ctx, name, nil, noArgs)
	if err != nil {
		return 0, err
	}
	return api.DecodeI32(res[0]), nil
}

func (e *WasmEngine) arrayResult(ctx context.Context, name string, strs []string, build func([]uint64) []uint64) (abi.Array, error) {
	release, ret := e.acquire()
	defer release()

	_, err := e.callLocked(ctx, name, strs, func(ptrs []uint64) []uint64 {
		return append([]uint64{api.EncodeU32(ret)}, build(ptrs)...)
	})
	if err != nil {
		return abi.Array{}, err
	}
	desc, err := abi.DecodeArray(e.memory, ret)
	if err != nil {
		return abi.Array{}, errors.Foreign(name, err)
	}
	return desc, nil
}

func noArgs([]uint64) []uint64 { return nil }

func (e *WasmEngine) voidCall(ctx context.Context, name string, strs []string, build func([]uint64) []uint64) error {
	_, err := e.call(ctx, name, strs, build)
	return err
}

func (e *WasmEngine) freeArray(ctx context.Context, name string, arr abi.Array) error {
	release, base := e.acquire()
	defer release()
	if e.module == nil {
		return errors.Released(errors.PhaseForeign, "engine")
	}
	arg := base + abi.ArraySize
	if err := arr.Encode(e.memory, arg); err != nil {
		return errors.Foreign(name, err)
	}
	_, err := e.callLocked(ctx, name, nil, func([]uint64) []uint64 {
		return []uint64{api.EncodeU32(arg)}
	})
	return err
}
