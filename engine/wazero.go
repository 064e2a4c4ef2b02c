package engine

import (
	"context"
	"io"
	"os"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/syngen"
	"github.com/wippyai/syngen/abi"
	"github.com/wippyai/syngen/errors"
)

// GuestModuleName is the instance name of the loaded engine.
const GuestModuleName = "syngen"

// Config holds configuration for engine creation
type Config struct {
	// MemoryLimitPages sets the maximum guest memory in pages (64KB each).
	// 0 means the wazero default.
	MemoryLimitPages uint32

	// Stdout and Stderr receive the engine's console output. Nil discards.
	Stdout io.Writer
	Stderr io.Writer

	// FSRoot is mounted as the guest's root directory so that network,
	// environment and state files resolve relative to it. Empty means
	// no filesystem access.
	FSRoot string
}

// WasmEngine runs a WebAssembly build of the engine under wazero and
// implements abi.Engine on top of its exports.
//
// Calls into the guest are serialized. Callbacks the guest makes while a
// call is in progress are dispatched on the calling goroutine and may call
// back into the engine, for example to read neuron data during a run.
type WasmEngine struct {
	runtime wazero.Runtime
	module  api.Module
	memory  *WazeroMemory
	alloc   *guestAllocator
	fns     map[string]api.Function

	dispatcher atomic.Pointer[dispatcherRef]
	interrupt  atomic.Bool

	mu      sync.Mutex
	scratch uint32

	// callbacks counts trampolines in progress; reentry serializes the
	// engine calls they make.
	callbacks atomic.Int32
	reentry   sync.Mutex
}

type dispatcherRef struct{ d abi.Dispatcher }

// LoadFile reads and loads a guest engine from path.
func LoadFile(ctx context.Context, path string, cfg *Config) (*WasmEngine, error) {
	wasmBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Load("read "+path, err)
	}
	return Load(ctx, wasmBytes, cfg)
}

// Load compiles and instantiates a guest engine. The guest may import
// WASI preview1 and the callback trampolines of HostModuleName.
func Load(ctx context.Context, wasmBytes []byte, cfg *Config) (*WasmEngine, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	runtimeCfg := wazero.NewRuntimeConfig()
	if cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}
	rt := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)
	e := &WasmEngine{runtime: rt}

	if err := e.load(ctx, wasmBytes, cfg); err != nil {
		_ = rt.Close(ctx)
		return nil, err
	}
	Logger().Info("engine loaded",
		zap.Int("exports", len(e.fns)),
		zap.Uint32("memory", e.memory.Size()))
	return e, nil
}

func (e *WasmEngine) load(ctx context.Context, wasmBytes []byte, cfg *Config) error {
	compiled, err := e.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return errors.Load("compile engine", err)
	}
	if err := instantiateWASI(ctx, e.runtime); err != nil {
		return errors.Instantiation(err)
	}
	if err := e.instantiateHost(ctx); err != nil {
		return errors.Instantiation(err)
	}

	modCfg := wazero.NewModuleConfig().
		WithName(GuestModuleName).
		WithStartFunctions("_initialize")
	if cfg.Stdout != nil {
		modCfg = modCfg.WithStdout(cfg.Stdout)
	}
	if cfg.Stderr != nil {
		modCfg = modCfg.WithStderr(cfg.Stderr)
	}
	if cfg.FSRoot != "" {
		modCfg = modCfg.WithFSConfig(wazero.NewFSConfig().WithDirMount(cfg.FSRoot, "/"))
	}

	mod, err := e.runtime.InstantiateModule(ctx, compiled, modCfg)
	if err != nil {
		return errors.Instantiation(err)
	}
	e.module = mod
	return e.bindExports(ctx)
}

// bindExports resolves every entry point and fails listing all that are
// missing.
func (e *WasmEngine) bindExports(ctx context.Context) error {
	var missing []string
	mem := e.module.Memory()
	if mem == nil {
		missing = append(missing, "memory")
	}

	e.fns = make(map[string]api.Function, len(requiredExports)+len(optionalExports))
	for _, name := range requiredExports {
		fn := e.module.ExportedFunction(name)
		if fn == nil {
			missing = append(missing, name)
			continue
		}
		e.fns[name] = fn
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return &errors.MissingExportsError{Exports: missing}
	}
	for _, name := range optionalExports {
		if fn := e.module.ExportedFunction(name); fn != nil {
			e.fns[name] = fn
		}
	}

	e.memory = &WazeroMemory{mem: mem}
	e.alloc = &guestAllocator{mallocFn: e.fns[exportMalloc], freeFn: e.fns[exportFree]}
	scratch, err := e.alloc.allocCtx(ctx, scratchSize)
	if err != nil {
		return errors.Instantiation(err)
	}
	e.scratch = scratch
	return nil
}

// Memory returns the guest's linear memory.
func (e *WasmEngine) Memory() syngen.Memory { return e.memory }

// Allocator returns the guest heap allocator.
func (e *WasmEngine) Allocator() syngen.Allocator { return e.alloc }

// SetDispatcher sets the target of callback trampolines.
func (e *WasmEngine) SetDispatcher(d abi.Dispatcher) {
	e.dispatcher.Store(&dispatcherRef{d: d})
}

func (e *WasmEngine) currentDispatcher() abi.Dispatcher {
	if ref := e.dispatcher.Load(); ref != nil {
		return ref.d
	}
	return nil
}

// Close releases the runtime and everything the guest allocated.
func (e *WasmEngine) Close(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.runtime == nil {
		return nil
	}
	err := e.runtime.Close(ctx)
	e.runtime = nil
	e.module = nil
	e.fns = nil
	return err
}

var _ abi.Engine = (*WasmEngine)(nil)
