package session

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/syngen/abi"
	"github.com/wippyai/syngen/errors"
	"github.com/wippyai/syngen/props"
	"github.com/wippyai/syngen/resource"
)

// Network owns one foreign network and at most one state built from it.
type Network struct {
	c      *Client
	handle *resource.Handle
	bridge *props.Tree

	mu      sync.Mutex
	state   *resource.Handle
	running bool
}

// LoadNetwork loads a saved network. A failed load yields a network whose
// Valid reports false.
func (c *Client) LoadNetwork(ctx context.Context, path string) (*Network, error) {
	ptr, err := c.eng.LoadNet(ctx, path)
	if err != nil {
		return nil, errors.Foreign(abi.EntryLoadNet, err)
	}
	h, err := c.owned(resource.KindNetwork, ptr, c.eng.DestroyNetwork)
	if err != nil {
		return nil, err
	}
	c.log.Debug("network loaded", zap.String("path", path), zap.Bool("valid", h.Live()))
	return &Network{c: c, handle: h}, nil
}

// NewNetwork creates a network from a configuration mapping.
func (c *Client) NewNetwork(ctx context.Context, m *props.Map) (*Network, error) {
	bridge, err := c.Properties(ctx, m)
	if err != nil {
		return nil, err
	}
	ptr, err := c.eng.CreateNetwork(ctx, bridge.Ptr())
	if err != nil {
		_ = bridge.Release(ctx)
		return nil, errors.Foreign(abi.EntryCreateNetwork, err)
	}
	h, err := c.owned(resource.KindNetwork, ptr, c.eng.DestroyNetwork)
	if err != nil {
		_ = bridge.Release(ctx)
		return nil, err
	}
	return &Network{c: c, handle: h, bridge: bridge}, nil
}

// Valid reports whether the network holds a live foreign object.
func (n *Network) Valid() bool { return n.handle.Live() }

// Ptr returns the foreign pointer, or abi.Null.
func (n *Network) Ptr() abi.Ptr { return n.handle.Ptr() }

// Properties returns the configuration the network was created from, or
// nil for loaded networks.
func (n *Network) Properties() *props.Tree { return n.bridge }

// Save writes the network to path.
func (n *Network) Save(ctx context.Context, path string) error {
	ptr, err := n.handle.Require()
	if err != nil {
		return err
	}
	ok, err := n.c.eng.SaveNet(ctx, ptr, path)
	if err != nil {
		return errors.Foreign(abi.EntrySaveNet, err)
	}
	if !ok {
		return errors.EngineFailure(abi.EntrySaveNet, "could not save network to "+path)
	}
	return nil
}

// State returns the network's state, building it on first use.
func (n *Network) State(ctx context.Context) (abi.Ptr, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.stateLocked(ctx)
}

func (n *Network) stateLocked(ctx context.Context) (abi.Ptr, error) {
	if n.state.Live() {
		return n.state.Ptr(), nil
	}
	if err := n.buildLocked(ctx, ""); err != nil {
		return abi.Null, err
	}
	return n.state.Ptr(), nil
}

// BuildState builds a fresh state, destroying the current one first. With
// a non-empty path the state is loaded from that file.
func (n *Network) BuildState(ctx context.Context, path string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.idleLocked("rebuild state"); err != nil {
		return err
	}
	return n.buildLocked(ctx, path)
}

func (n *Network) buildLocked(ctx context.Context, path string) error {
	net, err := n.handle.Require()
	if err != nil {
		return err
	}
	if err := n.state.Release(ctx); err != nil {
		return err
	}
	n.state = nil

	var ptr abi.Ptr
	entry := abi.EntryBuildState
	if path == "" {
		ptr, err = n.c.eng.BuildState(ctx, net)
	} else {
		entry = abi.EntryBuildLoadState
		ptr, err = n.c.eng.BuildLoadState(ctx, net, path)
	}
	if err != nil {
		return errors.Foreign(entry, err)
	}
	if ptr.IsNull() {
		return errors.EngineFailure(entry, "engine returned no state")
	}
	h, err := resource.New(n.c.table, resource.KindState, ptr, n.c.eng.DestroyState)
	if err != nil {
		return err
	}
	n.state = h
	n.c.log.Debug("state built", zap.String("entry", entry), zap.Uint32("state", uint32(ptr)))
	return nil
}

// LoadState restores the state from path, building it from the file when
// no state exists yet.
func (n *Network) LoadState(ctx context.Context, path string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.idleLocked("load state"); err != nil {
		return err
	}
	if !n.state.Live() {
		return n.buildLocked(ctx, path)
	}
	ok, err := n.c.eng.LoadState(ctx, n.state.Ptr(), path)
	if err != nil {
		return errors.Foreign(abi.EntryLoadState, err)
	}
	if !ok {
		return errors.EngineFailure(abi.EntryLoadState, "could not load state from "+path)
	}
	return nil
}

// SaveState writes the state to path, building it first if needed.
func (n *Network) SaveState(ctx context.Context, path string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	st, err := n.stateLocked(ctx)
	if err != nil {
		return err
	}
	ok, err := n.c.eng.SaveState(ctx, st, path)
	if err != nil {
		return errors.Foreign(abi.EntrySaveState, err)
	}
	if !ok {
		return errors.EngineFailure(abi.EntrySaveState, "could not save state to "+path)
	}
	return nil
}

// Run runs the network in env with the given arguments and returns the
// engine's report. The report is owned by the caller. A run that yields
// no report fails with an error matching ErrEngineFailure.
//
// The network is not locked while the engine runs, so callbacks may read
// its data. Rebuilding or loading the state, closing the network and
// starting a second run fail until the run returns.
func (n *Network) Run(ctx context.Context, env *Environment, args *props.Map) (*props.Tree, error) {
	net, envPtr, st, argTree, err := n.beginRun(ctx, env, args)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = argTree.Release(ctx)
		n.mu.Lock()
		n.running = false
		n.mu.Unlock()
	}()

	n.c.log.Info("running network", zap.Uint32("network", uint32(net)), zap.Uint32("environment", uint32(envPtr)))
	report, err := n.c.eng.Run(ctx, net, envPtr, st, argTree.Ptr())
	if err != nil {
		return nil, errors.Foreign(abi.EntryRun, err)
	}
	if report.IsNull() {
		n.c.log.Warn("run produced no report")
		return nil, ErrEngineFailure
	}
	return props.Adopt(ctx, n.c.eng, report, props.WithTable(n.c.table))
}

func (n *Network) beginRun(ctx context.Context, env *Environment, args *props.Map) (net, envPtr, st abi.Ptr, argTree *props.Tree, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if err = n.idleLocked("run"); err != nil {
		return
	}
	if net, err = n.handle.Require(); err != nil {
		return
	}
	if env == nil {
		err = errors.Released(errors.PhaseSession, "environment")
		return
	}
	if envPtr, err = env.handle.Require(); err != nil {
		return
	}
	if st, err = n.stateLocked(ctx); err != nil {
		return
	}
	if argTree, err = n.c.Properties(ctx, args); err != nil {
		return
	}
	n.running = true
	return
}

func (n *Network) idleLocked(op string) error {
	if n.running {
		return errors.Contract(errors.PhaseSession, "cannot "+op+" while the network is running")
	}
	return nil
}

// RunConfig builds a temporary environment from envConfig, runs in it and
// closes it again.
func (n *Network) RunConfig(ctx context.Context, envConfig, args *props.Map) (*props.Tree, error) {
	env, err := n.c.NewEnvironment(ctx, envConfig)
	if err != nil {
		return nil, err
	}
	defer env.Close(ctx)
	return n.Run(ctx, env, args)
}

// Close releases the configuration tree, the network and then its state.
// Close is idempotent. It fails while a run is in progress.
func (n *Network) Close(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.idleLocked("close"); err != nil {
		return err
	}

	var first error
	keep := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}
	if n.bridge != nil {
		keep(n.bridge.Release(ctx))
	}
	keep(n.handle.Release(ctx))
	keep(n.state.Release(ctx))
	return first
}
