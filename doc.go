// Package syngen is a host-side bridge to the synaptogenesis neural
// simulation engine.
//
// The engine lives in a foreign memory domain and is reachable only
// through a fixed set of entry points. This module configures, drives and
// introspects it without exposing the engine's memory layout to callers.
//
// # Architecture Overview
//
//	syngen/          Root package with the Memory and Allocator interfaces
//	├── abi/         Foreign entry points, array descriptors, ownership table
//	├── array/       Typed array views over foreign buffers
//	├── resource/    Single-owner handles and the live handle table
//	├── props/       Configuration values and the property tree bridge
//	├── callback/    Callback dispatch registry and built-in weight shapers
//	├── session/     Environment, Network and State sessions
//	├── engine/      wazero backend running a guest build of the engine
//	├── enginetest/  In-process fake engine for tests
//	├── store/       SQLite archive of run reports
//	└── errors/      Structured error types
//
// # Quick Start
//
//	eng, err := engine.LoadFile(ctx, "syngen.wasm", &engine.Config{FSRoot: "."})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Close(ctx)
//
//	client, err := session.New(ctx, eng, session.WithRegistry(callback.Default()))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	netConfig, _ := props.LoadFile("network.json")
//	envConfig, _ := props.LoadFile("environment.json")
//
//	net, err := client.NewNetwork(ctx, netConfig)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer net.Close(ctx)
//
//	report, err := net.RunConfig(ctx, envConfig, props.NewMap())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer report.Release(ctx)
//	fmt.Println(report)
//
// # Thread Safety
//
// Sessions are single-threaded: create, build, reflect and run calls block
// until the engine returns. Registered callbacks may be invoked from engine
// worker threads during a run and are dispatched without taking locks.
package syngen
