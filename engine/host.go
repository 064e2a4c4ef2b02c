package engine

import (
	"context"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/syngen/abi"
)

// HostModuleName is the import module providing callback trampolines.
// Each trampoline takes the callback address (i64) followed by the
// callback id, buffer length and buffer pointers (i32).
const HostModuleName = "syngen_host"

// Trampoline names exported by HostModuleName.
const (
	TrampolineIO             = "call_io"
	TrampolineWeight         = "call_weight"
	TrampolineIndicesWeight  = "call_indices_weight"
	TrampolineDistanceWeight = "call_distance_weight"
	TrampolineDelayWeight    = "call_delay_weight"
)

func trampolineParams(buffers int) []api.ValueType {
	params := []api.ValueType{api.ValueTypeI64, api.ValueTypeI32, api.ValueTypeI32}
	for range buffers {
		params = append(params, api.ValueTypeI32)
	}
	return params
}

// trampoline decodes the common prefix and hands it to fn together
// with the buffer pointers.
func (e *WasmEngine) trampoline(name string, fn func(ctx context.Context, d abi.Dispatcher, addr abi.Addr, id, size int32, bufs []abi.Ptr)) api.GoModuleFunc {
	return func(ctx context.Context, _ api.Module, stack []uint64) {
		d := e.currentDispatcher()
		if d == nil {
			Logger().Warn("callback invoked with no dispatcher", zap.String("trampoline", name))
			return
		}
		e.deliverInterrupt(ctx)

		bufs := make([]abi.Ptr, len(stack)-3)
		for i := range bufs {
			bufs[i] = abi.Ptr(api.DecodeU32(stack[3+i]))
		}
		e.callbacks.Add(1)
		defer func() {
			e.reentry.Lock()
			e.callbacks.Add(-1)
			e.reentry.Unlock()
		}()
		fn(ctx, d, abi.Addr(stack[0]), api.DecodeI32(stack[1]), api.DecodeI32(stack[2]), bufs)
	}
}

func (e *WasmEngine) instantiateHost(ctx context.Context) error {
	b := e.runtime.NewHostModuleBuilder(HostModuleName)

	b.NewFunctionBuilder().
		WithGoModuleFunction(e.trampoline(TrampolineIO,
			func(ctx context.Context, d abi.Dispatcher, addr abi.Addr, id, size int32, bufs []abi.Ptr) {
				d.DispatchIO(ctx, addr, id, size, bufs[0])
			}), trampolineParams(1), nil).
		Export(TrampolineIO)

	b.NewFunctionBuilder().
		WithGoModuleFunction(e.trampoline(TrampolineWeight,
			func(ctx context.Context, d abi.Dispatcher, addr abi.Addr, id, size int32, bufs []abi.Ptr) {
				d.DispatchWeight(ctx, addr, id, size, bufs[0])
			}), trampolineParams(1), nil).
		Export(TrampolineWeight)

	b.NewFunctionBuilder().
		WithGoModuleFunction(e.trampoline(TrampolineIndicesWeight,
			func(ctx context.Context, d abi.Dispatcher, addr abi.Addr, id, size int32, bufs []abi.Ptr) {
				d.DispatchIndicesWeight(ctx, addr, id, size, bufs[0], bufs[1], bufs[2])
			}), trampolineParams(3), nil).
		Export(TrampolineIndicesWeight)

	b.NewFunctionBuilder().
		WithGoModuleFunction(e.trampoline(TrampolineDistanceWeight,
			func(ctx context.Context, d abi.Dispatcher, addr abi.Addr, id, size int32, bufs []abi.Ptr) {
				d.DispatchDistanceWeight(ctx, addr, id, size, bufs[0], bufs[1])
			}), trampolineParams(2), nil).
		Export(TrampolineDistanceWeight)

	b.NewFunctionBuilder().
		WithGoModuleFunction(e.trampoline(TrampolineDelayWeight,
			func(ctx context.Context, d abi.Dispatcher, addr abi.Addr, id, size int32, bufs []abi.Ptr) {
				d.DispatchDelayWeight(ctx, addr, id, size, bufs[0], bufs[1])
			}), trampolineParams(2), nil).
		Export(TrampolineDelayWeight)

	_, err := b.Instantiate(ctx)
	return err
}

// deliverInterrupt forwards a pending Interrupt to the guest. It runs on
// the goroutine that is inside a guest call, so the reentrant call is
// safe without taking e.mu.
func (e *WasmEngine) deliverInterrupt(ctx context.Context) {
	if !e.interrupt.CompareAndSwap(true, false) {
		return
	}
	fn := e.fns[abi.EntryInterrupt]
	if fn == nil {
		return
	}
	if _, err := fn.Call(ctx); err != nil {
		Logger().Warn("interrupt failed", zap.Error(err))
	}
}
