// Package engine runs a WebAssembly build of the simulation engine under
// wazero and exposes its exports as an abi.Engine.
//
// # Guest Contract
//
// The guest is a wasm32 module (typically built with a WASI toolchain as a
// reactor) exporting memory, malloc, free and the entry points named in
// package abi. interrupt_engine, get_mpi_rank and get_mpi_size are
// optional.
//
// Entry points follow the C ABI for wasm32:
//
//	Host type       Core type
//	─────────────────────────
//	abi.Ptr         i32
//	int32, bool     i32
//	abi.Addr        i64
//	string          i32 pointer to a NUL-terminated copy
//	abi.Array       i32 pointer to a 16-byte descriptor
//
// Functions returning an array take a return pointer as their first
// parameter. free_array and free_array_deep receive a pointer to a copy of
// the descriptor.
//
// # Callbacks
//
// The guest imports its callback trampolines from HostModuleName. Each
// takes the callback address, the callback id, the buffer length and the
// buffer pointers, and is routed to the abi.Dispatcher installed with
// SetDispatcher:
//
//	call_io(addr i64, id i32, size i32, buf i32)
//	call_weight(addr i64, id i32, size i32, weights i32)
//	call_indices_weight(addr i64, id i32, size i32, weights i32, from i32, to i32)
//	call_distance_weight(addr i64, id i32, size i32, weights i32, distances i32)
//	call_delay_weight(addr i64, id i32, size i32, weights i32, delays i32)
//
// # Concurrency
//
// Guest calls are serialized by the engine. Callbacks run on the goroutine
// that made the guest call. Interrupt does not wait for a running call; the
// request is delivered to the guest at its next callback.
package engine
