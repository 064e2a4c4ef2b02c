package engine

import (
	"context"

	"go.uber.org/zap"

	"github.com/wippyai/syngen/abi"
)

func propsArg(p abi.Ptr) func([]uint64) []uint64 {
	return func([]uint64) []uint64 { return []uint64{ptrArg(p)} }
}

func propsAndStrings(p abi.Ptr) func([]uint64) []uint64 {
	return func(s []uint64) []uint64 { return append([]uint64{ptrArg(p)}, s...) }
}

// Property trees

func (e *WasmEngine) CreateProperties(ctx context.Context) (abi.Ptr, error) {
	return e.ptrResult(ctx, abi.EntryCreateProperties, nil, noArgs)
}

func (e *WasmEngine) DestroyProperties(ctx context.Context, props abi.Ptr) error {
	return e.voidCall(ctx, abi.EntryDestroyProperties, nil, propsArg(props))
}

func (e *WasmEngine) AddProperty(ctx context.Context, props abi.Ptr, key, value string) error {
	return e.voidCall(ctx, abi.EntryAddProperty, []string{key, value}, propsAndStrings(props))
}

func (e *WasmEngine) AddToArray(ctx context.Context, props abi.Ptr, key, value string) error {
	return e.voidCall(ctx, abi.EntryAddToArray, []string{key, value}, propsAndStrings(props))
}

func (e *WasmEngine) AddChild(ctx context.Context, props abi.Ptr, key string, child abi.Ptr) error {
	return e.voidCall(ctx, abi.EntryAddChild, []string{key}, func(s []uint64) []uint64 {
		return []uint64{ptrArg(props), s[0], ptrArg(child)}
	})
}

func (e *WasmEngine) AddToChildArray(ctx context.Context, props abi.Ptr, key string, child abi.Ptr) error {
	return e.voidCall(ctx, abi.EntryAddToChildArray, []string{key}, func(s []uint64) []uint64 {
		return []uint64{ptrArg(props), s[0], ptrArg(child)}
	})
}

func (e *WasmEngine) GetKeys(ctx context.Context, props abi.Ptr) (abi.Array, error) {
	return e.arrayResult(ctx, abi.EntryGetKeys, nil, propsArg(props))
}

func (e *WasmEngine) GetChildKeys(ctx context.Context, props abi.Ptr) (abi.Array, error) {
	return e.arrayResult(ctx, abi.EntryGetChildKeys, nil, propsArg(props))
}

func (e *WasmEngine) GetArrayKeys(ctx context.Context, props abi.Ptr) (abi.Array, error) {
	return e.arrayResult(ctx, abi.EntryGetArrayKeys, nil, propsArg(props))
}

func (e *WasmEngine) GetChildArrayKeys(ctx context.Context, props abi.Ptr) (abi.Array, error) {
	return e.arrayResult(ctx, abi.EntryGetChildArrayKeys, nil, propsArg(props))
}

func (e *WasmEngine) GetProperty(ctx context.Context, props abi.Ptr, key string) (abi.Ptr, error) {
	return e.ptrResult(ctx, abi.EntryGetProperty, []string{key}, propsAndStrings(props))
}

func (e *WasmEngine) GetChild(ctx context.Context, props abi.Ptr, key string) (abi.Ptr, error) {
	return e.ptrResult(ctx, abi.EntryGetChild, []string{key}, propsAndStrings(props))
}

func (e *WasmEngine) GetArray(ctx context.Context, props abi.Ptr, key string) (abi.Array, error) {
	return e.arrayResult(ctx, abi.EntryGetArray, []string{key}, propsAndStrings(props))
}

func (e *WasmEngine) GetChildArray(ctx context.Context, props abi.Ptr, key string) (abi.Array, error) {
	return e.arrayResult(ctx, abi.EntryGetChildArray, []string{key}, propsAndStrings(props))
}

// Networks, environments and states

func (e *WasmEngine) CreateNetwork(ctx context.Context, props abi.Ptr) (abi.Ptr, error) {
	return e.ptrResult(ctx, abi.EntryCreateNetwork, nil, propsArg(props))
}

func (e *WasmEngine) LoadNet(ctx context.Context, path string) (abi.Ptr, error) {
	return e.ptrResult(ctx, abi.EntryLoadNet, []string{path}, passStrings)
}

func (e *WasmEngine) SaveNet(ctx context.Context, net abi.Ptr, path string) (bool, error) {
	return e.boolResult(ctx, abi.EntrySaveNet, []string{path}, propsAndStrings(net))
}

func (e *WasmEngine) DestroyNetwork(ctx context.Context, net abi.Ptr) error {
	return e.voidCall(ctx, abi.EntryDestroyNetwork, nil, propsArg(net))
}

func (e *WasmEngine) CreateEnvironment(ctx context.Context, props abi.Ptr) (abi.Ptr, error) {
	return e.ptrResult(ctx, abi.EntryCreateEnvironment, nil, propsArg(props))
}

func (e *WasmEngine) LoadEnv(ctx context.Context, path string) (abi.Ptr, error) {
	return e.ptrResult(ctx, abi.EntryLoadEnv, []string{path}, passStrings)
}

func (e *WasmEngine) SaveEnv(ctx context.Context, env abi.Ptr, path string) (bool, error) {
	return e.boolResult(ctx, abi.EntrySaveEnv, []string{path}, propsAndStrings(env))
}

func (e *WasmEngine) DestroyEnvironment(ctx context.Context, env abi.Ptr) error {
	return e.voidCall(ctx, abi.EntryDestroyEnv, nil, propsArg(env))
}

func (e *WasmEngine) BuildState(ctx context.Context, net abi.Ptr) (abi.Ptr, error) {
	return e.ptrResult(ctx, abi.EntryBuildState, nil, propsArg(net))
}

func (e *WasmEngine) BuildLoadState(ctx context.Context, net abi.Ptr, path string) (abi.Ptr, error) {
	return e.ptrResult(ctx, abi.EntryBuildLoadState, []string{path}, propsAndStrings(net))
}

func (e *WasmEngine) LoadState(ctx context.Context, state abi.Ptr, path string) (bool, error) {
	return e.boolResult(ctx, abi.EntryLoadState, []string{path}, propsAndStrings(state))
}

func (e *WasmEngine) SaveState(ctx context.Context, state abi.Ptr, path string) (bool, error) {
	return e.boolResult(ctx, abi.EntrySaveState, []string{path}, propsAndStrings(state))
}

func (e *WasmEngine) DestroyState(ctx context.Context, state abi.Ptr) error {
	return e.voidCall(ctx, abi.EntryDestroyState, nil, propsArg(state))
}

// Data extraction

func (e *WasmEngine) GetNeuronData(ctx context.Context, state abi.Ptr, structure, layer, key string) (abi.Array, error) {
	return e.arrayResult(ctx, abi.EntryGetNeuronData, []string{structure, layer, key}, propsAndStrings(state))
}

func (e *WasmEngine) GetLayerData(ctx context.Context, state abi.Ptr, structure, layer, key string) (abi.Array, error) {
	return e.arrayResult(ctx, abi.EntryGetLayerData, []string{structure, layer, key}, propsAndStrings(state))
}

func (e *WasmEngine) GetConnectionData(ctx context.Context, state abi.Ptr, connection, key string) (abi.Array, error) {
	return e.arrayResult(ctx, abi.EntryGetConnectionData, []string{connection, key}, propsAndStrings(state))
}

func (e *WasmEngine) GetWeightMatrix(ctx context.Context, state abi.Ptr, connection, key string) (abi.Array, error) {
	return e.arrayResult(ctx, abi.EntryGetWeightMatrix, []string{connection, key}, propsAndStrings(state))
}

// Runs

func (e *WasmEngine) Run(ctx context.Context, net, env, state, args abi.Ptr) (abi.Ptr, error) {
	return e.ptrResult(ctx, abi.EntryRun, nil, func([]uint64) []uint64 {
		return []uint64{ptrArg(net), ptrArg(env), ptrArg(state), ptrArg(args)}
	})
}

// Interrupt asks a running simulation to stop. While a run is in
// progress the request is delivered at the guest's next callback; when
// the engine is idle it is forwarded immediately. Builds without the
// interrupt export ignore it.
func (e *WasmEngine) Interrupt(ctx context.Context) error {
	if _, ok := e.fns[abi.EntryInterrupt]; !ok {
		Logger().Debug("interrupt not supported by engine")
		return nil
	}
	if !e.mu.TryLock() {
		e.interrupt.Store(true)
		return nil
	}
	defer e.mu.Unlock()
	_, err := e.callLocked(ctx, abi.EntryInterrupt, nil, noArgs)
	return err
}

// Devices and diagnostics

func (e *WasmEngine) GetCPU(ctx context.Context) (int32, error) {
	return e.int32Result(ctx, abi.EntryGetCPU)
}

func (e *WasmEngine) GetGPUs(ctx context.Context) (abi.Array, error) {
	return e.arrayResult(ctx, abi.EntryGetGPUs, nil, noArgs)
}

func (e *WasmEngine) GetAllDevices(ctx context.Context) (abi.Array, error) {
	return e.arrayResult(ctx, abi.EntryGetAllDevices, nil, noArgs)
}

func (e *WasmEngine) SetSuppressOutput(ctx context.Context, on bool) error {
	return e.voidCall(ctx, abi.EntrySetSuppressOutput, nil, boolArgs(on))
}

func (e *WasmEngine) SetWarnings(ctx context.Context, on bool) error {
	return e.voidCall(ctx, abi.EntrySetWarnings, nil, boolArgs(on))
}

func (e *WasmEngine) SetDebug(ctx context.Context, on bool) error {
	return e.voidCall(ctx, abi.EntrySetDebug, nil, boolArgs(on))
}

// GetMPIRank returns 0 for builds without MPI.
func (e *WasmEngine) GetMPIRank(ctx context.Context) (int32, error) {
	if _, ok := e.fns[abi.EntryGetMPIRank]; !ok {
		return 0, nil
	}
	return e.int32Result(ctx, abi.EntryGetMPIRank)
}

// GetMPISize returns 1 for builds without MPI.
func (e *WasmEngine) GetMPISize(ctx context.Context) (int32, error) {
	if _, ok := e.fns[abi.EntryGetMPISize]; !ok {
		return 1, nil
	}
	return e.int32Result(ctx, abi.EntryGetMPISize)
}

// Callbacks

func (e *WasmEngine) addCallback(ctx context.Context, entry, name string, addr abi.Addr) error {
	err := e.voidCall(ctx, entry, []string{name}, func(s []uint64) []uint64 {
		return []uint64{s[0], uint64(addr)}
	})
	if err == nil {
		Logger().Debug("callback forwarded",
			zap.String("entry", entry),
			zap.String("name", name),
			zap.Uint64("addr", uint64(addr)))
	}
	return err
}

func (e *WasmEngine) AddIOCallback(ctx context.Context, name string, addr abi.Addr) error {
	return e.addCallback(ctx, abi.EntryAddIOCallback, name, addr)
}

func (e *WasmEngine) AddWeightCallback(ctx context.Context, name string, addr abi.Addr) error {
	return e.addCallback(ctx, abi.EntryAddWeightCallback, name, addr)
}

func (e *WasmEngine) AddIndicesWeightCallback(ctx context.Context, name string, addr abi.Addr) error {
	return e.addCallback(ctx, abi.EntryAddIndicesWeightCallback, name, addr)
}

func (e *WasmEngine) AddDistanceWeightCallback(ctx context.Context, name string, addr abi.Addr) error {
	return e.addCallback(ctx, abi.EntryAddDistanceWeightCallback, name, addr)
}

func (e *WasmEngine) AddDelayWeightCallback(ctx context.Context, name string, addr abi.Addr) error {
	return e.addCallback(ctx, abi.EntryAddDelayWeightCallback, name, addr)
}

// Arrays

func (e *WasmEngine) FreeArray(ctx context.Context, arr abi.Array) error {
	return e.freeArray(ctx, abi.EntryFreeArray, arr)
}

func (e *WasmEngine) FreeArrayDeep(ctx context.Context, arr abi.Array) error {
	return e.freeArray(ctx, abi.EntryFreeArrayDeep, arr)
}

func passStrings(s []uint64) []uint64 { return s }

func boolArgs(on bool) func([]uint64) []uint64 {
	return func([]uint64) []uint64 { return []uint64{boolArg(on)} }
}
