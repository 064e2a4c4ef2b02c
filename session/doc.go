// Package session sequences the lifetime of engine objects.
//
// A Client owns the ownership table and callback registry shared by its
// sessions. Environments and networks each own exactly one engine handle,
// plus the property tree they were created from; a network also owns the
// state built from it. Close releases the tree, then the object, then the
// state, and is safe to call more than once.
//
//	c, err := session.New(ctx, eng, session.WithLogger(log))
//	net, err := c.NewNetwork(ctx, netConfig)
//	defer net.Close(ctx)
//	report, err := net.RunConfig(ctx, envConfig, args)
//	if errors.Is(err, session.ErrEngineFailure) {
//	    // retry or give up
//	}
//	defer report.Release(ctx)
package session
