package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/syngen/array"
	"github.com/wippyai/syngen/callback"
	"github.com/wippyai/syngen/engine"
	"github.com/wippyai/syngen/props"
	"github.com/wippyai/syngen/session"
	"github.com/wippyai/syngen/store"
)

type options struct {
	wasm        string
	network     string
	environment string
	args        string
	state       string
	fsRoot      string
	archive     string
	show        string
	memoryPages uint
	list        bool
	watch       bool
	interactive bool
	verbose     bool
	quiet       bool
	debug       bool
}

func main() {
	var opts options
	flag.StringVar(&opts.wasm, "wasm", "", "Path to the engine wasm build")
	flag.StringVar(&opts.network, "net", "", "Network configuration (JSON)")
	flag.StringVar(&opts.environment, "env", "", "Environment configuration (JSON)")
	flag.StringVar(&opts.args, "args", "", "Run arguments (JSON, optional)")
	flag.StringVar(&opts.state, "state", "", "State file to load before running")
	flag.StringVar(&opts.fsRoot, "fsroot", ".", "Directory mounted as the engine's filesystem root")
	flag.StringVar(&opts.archive, "archive", "", "SQLite archive for run reports")
	flag.StringVar(&opts.show, "show", "", "Show an archived run by ID")
	flag.UintVar(&opts.memoryPages, "memory", 0, "Engine memory limit in 64KB pages (0 = default)")
	flag.BoolVar(&opts.list, "list", false, "List archived runs and exit")
	flag.BoolVar(&opts.watch, "watch", false, "Re-run when configuration files change")
	flag.BoolVar(&opts.interactive, "i", false, "Explore the report in an interactive TUI")
	flag.BoolVar(&opts.verbose, "v", false, "Verbose (development) logging")
	flag.BoolVar(&opts.quiet, "quiet", false, "Suppress engine console output")
	flag.BoolVar(&opts.debug, "debug", false, "Enable engine debug output")
	flag.Parse()

	log, err := newLogger(opts.verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	installLogger(log)

	if err := dispatch(opts, log); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: syngen -wasm <engine.wasm> -net <network.json> -env <environment.json> [-args <args.json>]")
	fmt.Fprintln(os.Stderr, "       syngen ... -archive runs.db  (archive the report)")
	fmt.Fprintln(os.Stderr, "       syngen ... -watch            (re-run on config changes)")
	fmt.Fprintln(os.Stderr, "       syngen ... -i                (interactive report explorer)")
	fmt.Fprintln(os.Stderr, "       syngen -archive runs.db -list")
	fmt.Fprintln(os.Stderr, "       syngen -archive runs.db -show <id> [-i]")
}

func dispatch(opts options, log *zap.Logger) error {
	ctx := context.Background()

	if opts.list || opts.show != "" {
		if opts.archive == "" {
			usage()
			return fmt.Errorf("-list and -show need -archive")
		}
		a := store.NewArchive(opts.archive)
		if err := a.Init(ctx); err != nil {
			return err
		}
		defer a.Close()
		if opts.list {
			return listRuns(ctx, a, os.Stdout)
		}
		run, err := showRun(ctx, a, opts.show)
		if err != nil {
			return err
		}
		return present(run.Report, "Run "+run.ID.String(), opts.interactive, log)
	}

	if opts.wasm == "" || opts.network == "" || opts.environment == "" {
		usage()
		os.Exit(1)
	}

	cfg := &engine.Config{
		MemoryLimitPages: uint32(opts.memoryPages),
		Stdout:           os.Stdout,
		Stderr:           os.Stderr,
		FSRoot:           opts.fsRoot,
	}
	eng, err := engine.LoadFile(ctx, opts.wasm, cfg)
	if err != nil {
		return err
	}
	defer eng.Close(ctx)

	r, err := newRunner(ctx, eng, opts, log)
	if err != nil {
		return err
	}
	defer r.Close()

	ctx, stop := r.handleSignals(ctx)
	defer stop()

	if opts.watch {
		return r.watch(ctx)
	}
	res, err := r.runOnce(ctx)
	if err != nil {
		return err
	}
	return present(res.report, r.title(res), opts.interactive, log)
}

// present prints the report, or opens the explorer when asked and stdout
// is a terminal.
func present(report *props.Map, title string, interactive bool, log *zap.Logger) error {
	if interactive {
		if term.IsTerminal(int(os.Stdout.Fd())) {
			return runInteractive(report, title)
		}
		log.Warn("stdout is not a terminal, printing report instead")
	}
	data, err := renderReport(report)
	if err != nil {
		return err
	}
	fmt.Println(data)
	return nil
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return cfg.Build()
}

func installLogger(log *zap.Logger) {
	array.SetLogger(log.Named("array"))
	callback.SetLogger(log.Named("callback"))
	engine.SetLogger(log.Named("engine"))
	props.SetLogger(log.Named("props"))
	session.SetLogger(log.Named("session"))
	store.SetLogger(log.Named("store"))
}

// signalContext interrupts the run in progress on SIGINT, or cancels the
// returned context when nothing is running.
func signalContext(ctx context.Context, interrupt func(context.Context) bool) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-sigs:
				if !interrupt(ctx) {
					cancel()
					return
				}
			}
		}
	}()
	return ctx, func() {
		signal.Stop(sigs)
		cancel()
	}
}
