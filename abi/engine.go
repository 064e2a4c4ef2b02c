package abi

import (
	"context"

	"github.com/wippyai/syngen"
)

// Entry point names exported by the engine.
const (
	EntryCreateProperties  = "create_properties"
	EntryDestroyProperties = "destroy"
	EntryAddProperty       = "add_property"
	EntryAddChild          = "add_child"
	EntryAddToArray        = "add_to_array"
	EntryAddToChildArray   = "add_to_child_array"
	EntryGetKeys           = "get_keys"
	EntryGetChildKeys      = "get_child_keys"
	EntryGetArrayKeys      = "get_array_keys"
	EntryGetChildArrayKeys = "get_child_array_keys"
	EntryGetProperty       = "get_property"
	EntryGetChild          = "get_child"
	EntryGetArray          = "get_array"
	EntryGetChildArray     = "get_child_array"

	EntryCreateNetwork     = "create_network"
	EntryLoadNet           = "load_net"
	EntrySaveNet           = "save_net"
	EntryDestroyNetwork    = "destroy_network"
	EntryCreateEnvironment = "create_environment"
	EntryLoadEnv           = "load_env"
	EntrySaveEnv           = "save_env"
	EntryDestroyEnv        = "destroy_environment"
	EntryBuildState        = "build_state"
	EntryBuildLoadState    = "build_load_state"
	EntryLoadState         = "load_state"
	EntrySaveState         = "save_state"
	EntryDestroyState      = "destroy_state"

	EntryGetNeuronData     = "get_neuron_data"
	EntryGetLayerData      = "get_layer_data"
	EntryGetConnectionData = "get_connection_data"
	EntryGetWeightMatrix   = "get_weight_matrix"

	EntryRun       = "run"
	EntryInterrupt = "interrupt_engine"

	EntryGetCPU            = "get_cpu"
	EntryGetGPUs           = "get_gpus"
	EntryGetAllDevices     = "get_all_devices"
	EntrySetSuppressOutput = "set_suppress_output"
	EntrySetWarnings       = "set_warnings"
	EntrySetDebug          = "set_debug"
	EntryGetMPIRank        = "get_mpi_rank"
	EntryGetMPISize        = "get_mpi_size"

	EntryAddIOCallback             = "add_io_callback"
	EntryAddWeightCallback         = "add_weight_callback"
	EntryAddIndicesWeightCallback  = "add_indices_weight_callback"
	EntryAddDistanceWeightCallback = "add_distance_weight_callback"
	EntryAddDelayWeightCallback    = "add_delay_weight_callback"

	EntryFreeArray     = "free_array"
	EntryFreeArrayDeep = "free_array_deep"
)

// MemoryEngine exposes the engine's memory domain and array release.
type MemoryEngine interface {
	Memory() syngen.Memory
	FreeArray(ctx context.Context, arr Array) error
	FreeArrayDeep(ctx context.Context, arr Array) error
}

// PropertyEngine covers property tree creation, population and reflection.
type PropertyEngine interface {
	MemoryEngine

	CreateProperties(ctx context.Context) (Ptr, error)
	DestroyProperties(ctx context.Context, props Ptr) error

	AddProperty(ctx context.Context, props Ptr, key, value string) error
	AddChild(ctx context.Context, props Ptr, key string, child Ptr) error
	AddToArray(ctx context.Context, props Ptr, key, value string) error
	AddToChildArray(ctx context.Context, props Ptr, key string, child Ptr) error

	GetKeys(ctx context.Context, props Ptr) (Array, error)
	GetChildKeys(ctx context.Context, props Ptr) (Array, error)
	GetArrayKeys(ctx context.Context, props Ptr) (Array, error)
	GetChildArrayKeys(ctx context.Context, props Ptr) (Array, error)

	// GetProperty returns a pointer to a NUL-terminated string owned by the tree.
	GetProperty(ctx context.Context, props Ptr, key string) (Ptr, error)
	GetChild(ctx context.Context, props Ptr, key string) (Ptr, error)
	GetArray(ctx context.Context, props Ptr, key string) (Array, error)
	GetChildArray(ctx context.Context, props Ptr, key string) (Array, error)
}

// SessionEngine covers networks, environments, states and runs.
type SessionEngine interface {
	CreateNetwork(ctx context.Context, props Ptr) (Ptr, error)
	LoadNet(ctx context.Context, path string) (Ptr, error)
	SaveNet(ctx context.Context, net Ptr, path string) (bool, error)
	DestroyNetwork(ctx context.Context, net Ptr) error

	CreateEnvironment(ctx context.Context, props Ptr) (Ptr, error)
	LoadEnv(ctx context.Context, path string) (Ptr, error)
	SaveEnv(ctx context.Context, env Ptr, path string) (bool, error)
	DestroyEnvironment(ctx context.Context, env Ptr) error

	BuildState(ctx context.Context, net Ptr) (Ptr, error)
	BuildLoadState(ctx context.Context, net Ptr, path string) (Ptr, error)
	LoadState(ctx context.Context, state Ptr, path string) (bool, error)
	SaveState(ctx context.Context, state Ptr, path string) (bool, error)
	DestroyState(ctx context.Context, state Ptr) error

	GetNeuronData(ctx context.Context, state Ptr, structure, layer, key string) (Array, error)
	GetLayerData(ctx context.Context, state Ptr, structure, layer, key string) (Array, error)
	GetConnectionData(ctx context.Context, state Ptr, connection, key string) (Array, error)
	GetWeightMatrix(ctx context.Context, state Ptr, connection, key string) (Array, error)

	// Run returns the report tree, or Null when the run failed.
	Run(ctx context.Context, net, env, state, args Ptr) (Ptr, error)
	Interrupt(ctx context.Context) error
}

// DeviceEngine covers device queries and diagnostics toggles.
type DeviceEngine interface {
	GetCPU(ctx context.Context) (int32, error)
	GetGPUs(ctx context.Context) (Array, error)
	GetAllDevices(ctx context.Context) (Array, error)
	SetSuppressOutput(ctx context.Context, on bool) error
	SetWarnings(ctx context.Context, on bool) error
	SetDebug(ctx context.Context, on bool) error
	GetMPIRank(ctx context.Context) (int32, error)
	GetMPISize(ctx context.Context) (int32, error)
}

// CallbackEngine receives callback addresses by name.
type CallbackEngine interface {
	AddIOCallback(ctx context.Context, name string, addr Addr) error
	AddWeightCallback(ctx context.Context, name string, addr Addr) error
	AddIndicesWeightCallback(ctx context.Context, name string, addr Addr) error
	AddDistanceWeightCallback(ctx context.Context, name string, addr Addr) error
	AddDelayWeightCallback(ctx context.Context, name string, addr Addr) error
}

// Engine is the full set of foreign entry points.
type Engine interface {
	PropertyEngine
	SessionEngine
	DeviceEngine
	CallbackEngine
}

// Dispatcher is called by the engine when it invokes a callback address.
// Implementations must be safe for concurrent use from engine threads.
type Dispatcher interface {
	DispatchIO(ctx context.Context, addr Addr, id, size int32, buf Ptr)
	DispatchWeight(ctx context.Context, addr Addr, id, size int32, weights Ptr)
	DispatchIndicesWeight(ctx context.Context, addr Addr, id, size int32, weights, from, to Ptr)
	DispatchDistanceWeight(ctx context.Context, addr Addr, id, size int32, weights, distances Ptr)
	DispatchDelayWeight(ctx context.Context, addr Addr, id, size int32, weights, delays Ptr)
}

// Callback namespaces. A name is unique within its namespace only.
const (
	NamespaceIO             = "io"
	NamespaceWeight         = "weight"
	NamespaceIndicesWeight  = "indices_weight"
	NamespaceDistanceWeight = "distance_weight"
	NamespaceDelayWeight    = "delay_weight"
)
