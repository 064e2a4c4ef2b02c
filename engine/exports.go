package engine

import "github.com/wippyai/syngen/abi"

// Guest heap exports.
const (
	exportMalloc = "malloc"
	exportFree   = "free"
)

// scratchSize covers a returned array descriptor plus one passed by
// reference, once for top-level calls and once for calls made from a
// callback.
const scratchSize = 4 * abi.ArraySize

var requiredExports = []string{
	exportMalloc,
	exportFree,

	abi.EntryCreateProperties,
	abi.EntryDestroyProperties,
	abi.EntryAddProperty,
	abi.EntryAddChild,
	abi.EntryAddToArray,
	abi.EntryAddToChildArray,
	abi.EntryGetKeys,
	abi.EntryGetChildKeys,
	abi.EntryGetArrayKeys,
	abi.EntryGetChildArrayKeys,
	abi.EntryGetProperty,
	abi.EntryGetChild,
	abi.EntryGetArray,
	abi.EntryGetChildArray,

	abi.EntryCreateNetwork,
	abi.EntryLoadNet,
	abi.EntrySaveNet,
	abi.EntryDestroyNetwork,
	abi.EntryCreateEnvironment,
	abi.EntryLoadEnv,
	abi.EntrySaveEnv,
	abi.EntryDestroyEnv,
	abi.EntryBuildState,
	abi.EntryBuildLoadState,
	abi.EntryLoadState,
	abi.EntrySaveState,
	abi.EntryDestroyState,

	abi.EntryGetNeuronData,
	abi.EntryGetLayerData,
	abi.EntryGetConnectionData,
	abi.EntryGetWeightMatrix,
	abi.EntryRun,

	abi.EntryGetCPU,
	abi.EntryGetGPUs,
	abi.EntryGetAllDevices,
	abi.EntrySetSuppressOutput,
	abi.EntrySetWarnings,
	abi.EntrySetDebug,

	abi.EntryAddIOCallback,
	abi.EntryAddWeightCallback,
	abi.EntryAddIndicesWeightCallback,
	abi.EntryAddDistanceWeightCallback,
	abi.EntryAddDelayWeightCallback,

	abi.EntryFreeArray,
	abi.EntryFreeArrayDeep,
}

// Builds without MPI or interrupt support may omit these.
var optionalExports = []string{
	abi.EntryInterrupt,
	abi.EntryGetMPIRank,
	abi.EntryGetMPISize,
}
