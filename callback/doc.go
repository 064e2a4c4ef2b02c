// Package callback lets the engine call back into Go.
//
// Host callables are registered by name in one of five namespaces, one per
// signature. The engine never sees a Go function: it is given an opaque
// address, and when it invokes that address the bound Dispatcher looks the
// callable up, copies the engine buffers into host slices, calls it and
// writes the slices back.
//
//	reg := callback.NewRegistry()
//	_ = reg.Bind(ctx, eng)
//	_, _ = reg.RegisterIO(ctx, "retina", func(id int32, data []float32) {
//	    copy(data, frame)
//	})
//
// Dispatch may arrive on any goroutine, concurrently with registration.
package callback
