package session

import (
	"context"

	"go.uber.org/zap"

	"github.com/wippyai/syngen/abi"
	"github.com/wippyai/syngen/callback"
	"github.com/wippyai/syngen/errors"
	"github.com/wippyai/syngen/props"
	"github.com/wippyai/syngen/resource"
)

// ErrEngineFailure matches errors returned when a run produces no report.
var ErrEngineFailure = errors.EngineFailure(abi.EntryRun, "run produced no report")

// Config holds engine-wide switches applied when a client starts.
type Config struct {
	SuppressOutput bool
	Warnings       bool
	Debug          bool
}

// DefaultConfig returns the engine's own defaults.
func DefaultConfig() Config {
	return Config{Warnings: true}
}

// Client bundles an engine with the bookkeeping shared by its sessions.
type Client struct {
	eng      abi.Engine
	table    *resource.Table
	registry *callback.Registry
	log      *zap.Logger
	config   Config
}

// Option configures a Client.
type Option func(*Client)

// WithRegistry binds r instead of the process-wide callback registry.
func WithRegistry(r *callback.Registry) Option {
	return func(c *Client) { c.registry = r }
}

// WithLogger sets the client's logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithTable shares an ownership table between clients.
func WithTable(t *resource.Table) Option {
	return func(c *Client) { c.table = t }
}

// WithConfig overrides DefaultConfig.
func WithConfig(cfg Config) Option {
	return func(c *Client) { c.config = cfg }
}

// New creates a client for eng, applies the engine switches and binds the
// callback registry when eng accepts a dispatcher.
func New(ctx context.Context, eng abi.Engine, opts ...Option) (*Client, error) {
	c := &Client{
		eng:    eng,
		config: DefaultConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.table == nil {
		c.table = resource.NewTable()
	}
	if c.registry == nil {
		c.registry = callback.Default()
	}
	if c.log == nil {
		c.log = Logger()
	}

	if err := c.apply(ctx, c.config); err != nil {
		return nil, err
	}
	if t, ok := eng.(callback.Target); ok {
		if err := c.registry.Bind(ctx, t); err != nil {
			return nil, err
		}
	}
	c.log.Debug("session client ready",
		zap.Int("callbacks", c.registry.Len()),
		zap.Bool("debug", c.config.Debug))
	return c, nil
}

func (c *Client) apply(ctx context.Context, cfg Config) error {
	if err := c.eng.SetSuppressOutput(ctx, cfg.SuppressOutput); err != nil {
		return errors.Foreign(abi.EntrySetSuppressOutput, err)
	}
	if err := c.eng.SetWarnings(ctx, cfg.Warnings); err != nil {
		return errors.Foreign(abi.EntrySetWarnings, err)
	}
	if err := c.eng.SetDebug(ctx, cfg.Debug); err != nil {
		return errors.Foreign(abi.EntrySetDebug, err)
	}
	return nil
}

// Engine returns the underlying engine.
func (c *Client) Engine() abi.Engine { return c.eng }

// Registry returns the bound callback registry.
func (c *Client) Registry() *callback.Registry { return c.registry }

// Table returns the ownership table of every handle the client created.
func (c *Client) Table() *resource.Table { return c.table }

// Properties builds an owned property tree registered in the client's table.
func (c *Client) Properties(ctx context.Context, m *props.Map) (*props.Tree, error) {
	return props.Build(ctx, c.eng, m, props.WithTable(c.table))
}

// owned wraps a pointer returned by a load or create call. A null pointer
// gives a null handle rather than an error.
func (c *Client) owned(kind resource.Kind, ptr abi.Ptr, destroy resource.DestroyFunc) (*resource.Handle, error) {
	if ptr.IsNull() {
		c.log.Warn("engine returned a null handle", zap.Stringer("kind", kind))
	}
	return resource.New(c.table, kind, ptr, destroy)
}
