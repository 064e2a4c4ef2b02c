package session

import (
	"context"

	"go.uber.org/zap"

	"github.com/wippyai/syngen/abi"
	"github.com/wippyai/syngen/errors"
	"github.com/wippyai/syngen/props"
	"github.com/wippyai/syngen/resource"
)

// Environment owns one foreign environment.
type Environment struct {
	c      *Client
	handle *resource.Handle
	bridge *props.Tree
}

// LoadEnvironment loads a saved environment. A failed load yields an
// environment whose Valid reports false.
func (c *Client) LoadEnvironment(ctx context.Context, path string) (*Environment, error) {
	ptr, err := c.eng.LoadEnv(ctx, path)
	if err != nil {
		return nil, errors.Foreign(abi.EntryLoadEnv, err)
	}
	h, err := c.owned(resource.KindEnvironment, ptr, c.eng.DestroyEnvironment)
	if err != nil {
		return nil, err
	}
	c.log.Debug("environment loaded", zap.String("path", path), zap.Bool("valid", h.Live()))
	return &Environment{c: c, handle: h}, nil
}

// NewEnvironment creates an environment from a configuration mapping. The
// property tree used to create it is kept and released with it.
func (c *Client) NewEnvironment(ctx context.Context, m *props.Map) (*Environment, error) {
	bridge, err := c.Properties(ctx, m)
	if err != nil {
		return nil, err
	}
	ptr, err := c.eng.CreateEnvironment(ctx, bridge.Ptr())
	if err != nil {
		_ = bridge.Release(ctx)
		return nil, errors.Foreign(abi.EntryCreateEnvironment, err)
	}
	h, err := c.owned(resource.KindEnvironment, ptr, c.eng.DestroyEnvironment)
	if err != nil {
		_ = bridge.Release(ctx)
		return nil, err
	}
	return &Environment{c: c, handle: h, bridge: bridge}, nil
}

// Valid reports whether the environment holds a live foreign object.
func (e *Environment) Valid() bool { return e.handle.Live() }

// Ptr returns the foreign pointer, or abi.Null.
func (e *Environment) Ptr() abi.Ptr { return e.handle.Ptr() }

// Properties returns the configuration the environment was created from,
// or nil for loaded environments.
func (e *Environment) Properties() *props.Tree { return e.bridge }

// Save writes the environment to path.
func (e *Environment) Save(ctx context.Context, path string) error {
	ptr, err := e.handle.Require()
	if err != nil {
		return err
	}
	ok, err := e.c.eng.SaveEnv(ctx, ptr, path)
	if err != nil {
		return errors.Foreign(abi.EntrySaveEnv, err)
	}
	if !ok {
		return errors.EngineFailure(abi.EntrySaveEnv, "could not save environment to "+path)
	}
	return nil
}

// Close releases the configuration tree, then the environment. Close is
// idempotent.
func (e *Environment) Close(ctx context.Context) error {
	var first error
	if e.bridge != nil {
		first = e.bridge.Release(ctx)
	}
	if err := e.handle.Release(ctx); err != nil && first == nil {
		first = err
	}
	return first
}
