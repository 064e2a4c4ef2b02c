package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wippyai/syngen/abi"
	"github.com/wippyai/syngen/callback"
	"github.com/wippyai/syngen/props"
	"github.com/wippyai/syngen/session"
	"github.com/wippyai/syngen/store"
)

type runner struct {
	client  *session.Client
	archive *store.Archive
	log     *zap.Logger
	opts    options
	running atomic.Bool
}

type result struct {
	report  *props.Map
	id      uuid.UUID
	elapsed time.Duration
}

func newRunner(ctx context.Context, eng abi.Engine, opts options, log *zap.Logger) (*runner, error) {
	registry := callback.NewRegistry()
	if err := registry.RegisterBuiltins(ctx); err != nil {
		return nil, err
	}

	cfg := session.DefaultConfig()
	cfg.SuppressOutput = opts.quiet
	cfg.Debug = opts.debug
	client, err := session.New(ctx, eng,
		session.WithRegistry(registry),
		session.WithLogger(log.Named("session")),
		session.WithConfig(cfg))
	if err != nil {
		return nil, err
	}

	r := &runner{client: client, log: log, opts: opts}
	if opts.archive != "" {
		r.archive = store.NewArchive(opts.archive)
		if err := r.archive.Init(ctx); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// runOnce loads the configuration files, runs the network once and
// archives the report when an archive is configured.
func (r *runner) runOnce(ctx context.Context) (result, error) {
	netCfg, err := props.LoadFile(r.opts.network)
	if err != nil {
		return result{}, err
	}
	envCfg, err := props.LoadFile(r.opts.environment)
	if err != nil {
		return result{}, err
	}
	args := props.NewMap()
	if r.opts.args != "" {
		if args, err = props.LoadFile(r.opts.args); err != nil {
			return result{}, err
		}
	}

	net, err := r.client.NewNetwork(ctx, netCfg)
	if err != nil {
		return result{}, err
	}
	defer net.Close(ctx)

	if r.opts.state != "" {
		if err := net.BuildState(ctx, r.opts.state); err != nil {
			return result{}, err
		}
	}

	start := time.Now()
	r.running.Store(true)
	tree, err := net.RunConfig(ctx, envCfg, args)
	r.running.Store(false)
	if err != nil {
		return result{}, err
	}
	defer tree.Release(ctx)

	res := result{report: tree.Value(), elapsed: time.Since(start)}
	r.log.Info("run finished",
		zap.String("network", r.opts.network),
		zap.Duration("elapsed", res.elapsed))

	if r.archive != nil {
		res.id, err = r.archive.Save(ctx, store.Run{
			Network:     filepath.Base(r.opts.network),
			Environment: filepath.Base(r.opts.environment),
			Report:      res.report,
		})
		if err != nil {
			return result{}, err
		}
		r.log.Info("run archived", zap.Stringer("id", res.id))
	}
	return res, nil
}

func (r *runner) title(res result) string {
	if res.id != uuid.Nil {
		return "Run " + res.id.String()
	}
	return filepath.Base(r.opts.network) + " in " + filepath.Base(r.opts.environment)
}

// interrupt stops the run in progress and reports whether there was one.
func (r *runner) interrupt(ctx context.Context) bool {
	if !r.running.Load() {
		return false
	}
	if err := r.client.Interrupt(ctx); err != nil {
		r.log.Warn("interrupt failed", zap.Error(err))
	} else {
		r.log.Info("interrupt requested")
	}
	return true
}

func (r *runner) handleSignals(ctx context.Context) (context.Context, func()) {
	return signalContext(ctx, r.interrupt)
}

func (r *runner) Close() error {
	if r.archive == nil {
		return nil
	}
	return r.archive.Close()
}

// renderReport formats a report the way props.Tree prints itself.
func renderReport(report *props.Map) (string, error) {
	raw, err := report.MarshalJSON()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "    "); err != nil {
		return "", err
	}
	return buf.String(), nil
}
