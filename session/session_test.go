package session

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/wippyai/syngen/abi"
	"github.com/wippyai/syngen/callback"
	"github.com/wippyai/syngen/enginetest"
	serrors "github.com/wippyai/syngen/errors"
	"github.com/wippyai/syngen/props"
)

func kindOf(err error) serrors.Kind {
	var e *serrors.Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func newClient(t *testing.T) (*Client, *enginetest.Engine) {
	t.Helper()
	eng := enginetest.New(nil)
	c, err := New(context.Background(), eng, WithRegistry(callback.NewRegistry()))
	if err != nil {
		t.Fatal(err)
	}
	return c, eng
}

func netConfig() *props.Map {
	layer := props.NewMap().Set("name", props.String("input")).Set("size", props.Int(4))
	structure := props.NewMap().
		Set("name", props.String("main")).
		Set("layers", props.Seq(props.Mapping(layer)))
	conn := props.NewMap().
		Set("name", props.String("c0")).
		Set("size", props.Int(3)).
		Set("weight", props.Float(1)).
		Set("distance callback", props.String(callback.GaussianName))
	return props.NewMap().
		Set("structures", props.Seq(props.Mapping(structure))).
		Set("connections", props.Seq(props.Mapping(conn)))
}

func TestClient_AppliesConfig(t *testing.T) {
	eng := enginetest.New(nil)
	_, err := New(context.Background(), eng,
		WithRegistry(callback.NewRegistry()),
		WithConfig(Config{SuppressOutput: true, Debug: true}))
	if err != nil {
		t.Fatal(err)
	}
	if !eng.Flag(abi.EntrySetSuppressOutput) || !eng.Flag(abi.EntrySetDebug) || eng.Flag(abi.EntrySetWarnings) {
		t.Error("config not applied")
	}
}

func TestNetwork_RunWithCallbacks(t *testing.T) {
	ctx := context.Background()
	c, eng := newClient(t)
	if err := c.Registry().RegisterBuiltins(ctx); err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	seen := map[string]int{}
	envConfig, err := c.Registry().InputModule(ctx, "main", []string{"input", "aux"}, "feed",
		func(layer string, data []float32) {
			mu.Lock()
			seen[layer]++
			mu.Unlock()
			for i := range data {
				data[i] = 0.5
			}
		}, true)
	if err != nil {
		t.Fatal(err)
	}
	env := props.NewMap().Set("modules", props.Seq(props.Mapping(envConfig)))

	net, err := c.NewNetwork(ctx, netConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer net.Close(ctx)

	report, err := net.RunConfig(ctx, env, props.NewMap().Set("iterations", props.Int(3)))
	if err != nil {
		t.Fatal(err)
	}
	if s, _ := report.Property("iterations"); s != "3" {
		t.Errorf("iterations = %q", s)
	}
	if seen["input"] != 3 || seen["aux"] != 3 {
		t.Errorf("callback calls = %v", seen)
	}
	if got := eng.IOResult("feed", 1); len(got) != 4 || got[0] != 0.5 {
		t.Errorf("io result = %v", got)
	}
	callbacks, ok := report.Array("callbacks")
	if !ok || len(callbacks) != 2 {
		t.Errorf("callbacks = %v, %v", callbacks, ok)
	}

	w, err := net.WeightMatrix(ctx, "c0", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(w) != 3 || w[0] != 1 || !(w[1] < w[0] && w[2] < w[1]) {
		t.Errorf("gaussian weights = %v", w)
	}
	delays, err := net.ConnectionData(ctx, "c0", "delays")
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(delays, []float32{1, 2, 3}) {
		t.Errorf("delays = %v", delays)
	}

	if err := report.Release(ctx); err != nil {
		t.Fatal(err)
	}
	if n := eng.Calls(abi.EntryBuildState); n != 1 {
		t.Errorf("build_state called %d times", n)
	}
}

func TestNetwork_CallbackReadsDataDuringRun(t *testing.T) {
	ctx := context.Background()
	c, _ := newClient(t)

	var (
		net     *Network
		mu      sync.Mutex
		reads   [][]float32
		readErr []error
		mutErr  []error
	)
	envConfig, err := c.Registry().OutputModule(ctx, "main", []string{"input"}, "monitor",
		func(layer string, _ []float32) {
			data, err := net.NeuronData(ctx, "main", layer, "output")
			buildErr := net.BuildState(ctx, "")
			closeErr := net.Close(ctx)
			mu.Lock()
			defer mu.Unlock()
			reads = append(reads, data)
			readErr = append(readErr, err)
			mutErr = append(mutErr, buildErr, closeErr)
		})
	if err != nil {
		t.Fatal(err)
	}
	env := props.NewMap().Set("modules", props.Seq(props.Mapping(envConfig)))

	net, err = c.NewNetwork(ctx, netConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer net.Close(ctx)

	type result struct {
		report *props.Tree
		err    error
	}
	done := make(chan result, 1)
	go func() {
		r, err := net.RunConfig(ctx, env, props.NewMap().Set("iterations", props.Int(2)))
		done <- result{r, err}
	}()

	var r result
	select {
	case r = <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("run blocked on a callback reading network data")
	}
	if r.err != nil {
		t.Fatal(r.err)
	}
	defer r.report.Release(ctx)

	if len(reads) != 2 {
		t.Fatalf("callback ran %d times, want 2", len(reads))
	}
	for i, err := range readErr {
		if err != nil {
			t.Errorf("read %d: %v", i, err)
		}
		if len(reads[i]) != 4 {
			t.Errorf("read %d = %v, want 4 values", i, reads[i])
		}
	}
	for _, err := range mutErr {
		if kindOf(err) != serrors.KindContract {
			t.Errorf("mutation during run: %v, want contract error", err)
		}
	}
	if !net.Valid() {
		t.Error("network closed during run")
	}
	if _, err := net.NeuronData(ctx, "main", "input", "output"); err != nil {
		t.Errorf("read after run: %v", err)
	}
}

func TestNetwork_RunNilEnvironment(t *testing.T) {
	ctx := context.Background()
	c, _ := newClient(t)
	net, err := c.NewNetwork(ctx, netConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer net.Close(ctx)

	if _, err := net.Run(ctx, nil, nil); kindOf(err) != serrors.KindReleased {
		t.Errorf("Run(nil env) = %v, want released", err)
	}
	// The failed run must not leave the network marked as running.
	if err := net.BuildState(ctx, ""); err != nil {
		t.Errorf("BuildState after failed run: %v", err)
	}
}

func TestNetwork_RunEmptyReport(t *testing.T) {
	ctx := context.Background()
	c, _ := newClient(t)
	net, err := c.NewNetwork(ctx, netConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer net.Close(ctx)

	report, err := net.RunConfig(ctx, props.NewMap(), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer report.Release(ctx)

	// No callback layers ran, but the enumerated keys still map to
	// empty sequences.
	v := report.Value()
	cb, ok := v.Get("callbacks")
	if !ok || cb.Kind() != props.KindSequence || len(cb.Items()) != 0 {
		t.Errorf("callbacks = %+v, %v", cb, ok)
	}
	layers, ok := v.Get("layers")
	if !ok || len(layers.Items()) != 0 {
		t.Errorf("layers = %+v, %v", layers, ok)
	}
}

func TestNetwork_RunFailure(t *testing.T) {
	ctx := context.Background()
	c, eng := newClient(t)
	net, err := c.NewNetwork(ctx, netConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer net.Close(ctx)
	env, err := c.NewEnvironment(ctx, props.NewMap())
	if err != nil {
		t.Fatal(err)
	}
	defer env.Close(ctx)

	eng.ReturnNull(abi.EntryRun)
	_, err = net.Run(ctx, env, nil)
	if !errors.Is(err, ErrEngineFailure) {
		t.Fatalf("err = %v", err)
	}
	if kindOf(err) != serrors.KindEngineFailure {
		t.Errorf("kind = %v", kindOf(err))
	}
}

func TestNetwork_CloseIsIdempotent(t *testing.T) {
	ctx := context.Background()
	c, eng := newClient(t)
	net, err := c.NewNetwork(ctx, netConfig())
	if err != nil {
		t.Fatal(err)
	}
	st, err := net.State(ctx)
	if err != nil {
		t.Fatal(err)
	}
	netPtr := net.Ptr()
	bridgePtr := net.Properties().Ptr()

	for i := 0; i < 3; i++ {
		if err := net.Close(ctx); err != nil {
			t.Fatal(err)
		}
	}
	for name, p := range map[string]abi.Ptr{"network": netPtr, "state": st, "properties": bridgePtr} {
		if n := eng.Destroyed(p); n != 1 {
			t.Errorf("%s destroyed %d times, want 1", name, n)
		}
	}
	if eng.DoubleFrees() != 0 || eng.LiveObjects() != 0 {
		t.Errorf("doubleFrees=%d live=%d", eng.DoubleFrees(), eng.LiveObjects())
	}
	if c.Table().Len() != 0 {
		t.Errorf("table holds %d handles", c.Table().Len())
	}

	if net.Valid() {
		t.Error("closed network still valid")
	}
	if _, err := net.State(ctx); kindOf(err) != serrors.KindReleased {
		t.Errorf("State after close: %v", err)
	}
	if err := net.Save(ctx, "net.bin"); kindOf(err) != serrors.KindReleased {
		t.Errorf("Save after close: %v", err)
	}
}

func TestNetwork_BuildStateReplacesOld(t *testing.T) {
	ctx := context.Background()
	c, eng := newClient(t)
	net, err := c.NewNetwork(ctx, netConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer net.Close(ctx)

	first, err := net.State(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := net.SaveState(ctx, "state.bin"); err != nil {
		t.Fatal(err)
	}
	if err := net.BuildState(ctx, "state.bin"); err != nil {
		t.Fatal(err)
	}
	second, err := net.State(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if first == second {
		t.Fatal("state was not rebuilt")
	}
	if n := eng.Destroyed(first); n != 1 {
		t.Errorf("old state destroyed %d times", n)
	}
	if err := net.LoadState(ctx, "state.bin"); err != nil {
		t.Fatal(err)
	}
	if err := net.LoadState(ctx, "missing.bin"); kindOf(err) != serrors.KindEngineFailure {
		t.Errorf("LoadState(missing) = %v", err)
	}
}

func TestLoad_NullHandleIsInvalid(t *testing.T) {
	ctx := context.Background()
	c, eng := newClient(t)

	net, err := c.LoadNetwork(ctx, "nowhere.net")
	if err != nil {
		t.Fatal(err)
	}
	if net.Valid() {
		t.Error("network from failed load is valid")
	}
	if err := net.Close(ctx); err != nil {
		t.Fatal(err)
	}
	if eng.DoubleFrees() != 0 || eng.Calls(abi.EntryDestroyNetwork) != 0 {
		t.Error("null network reached destroy")
	}

	// Round trip through the fake's file store.
	orig, err := c.NewEnvironment(ctx, props.NewMap().Set("name", props.String("e")))
	if err != nil {
		t.Fatal(err)
	}
	defer orig.Close(ctx)
	if err := orig.Save(ctx, "env.json"); err != nil {
		t.Fatal(err)
	}
	env, err := c.LoadEnvironment(ctx, "env.json")
	if err != nil {
		t.Fatal(err)
	}
	defer env.Close(ctx)
	if !env.Valid() || env.Properties() != nil {
		t.Error("loaded environment should be valid and own no properties")
	}
}

func TestClient_OwnershipExclusive(t *testing.T) {
	ctx := context.Background()
	c, _ := newClient(t)
	a, err := c.NewNetwork(ctx, netConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close(ctx)
	b, err := c.NewNetwork(ctx, netConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close(ctx)

	seen := map[abi.Ptr]bool{}
	for _, p := range []abi.Ptr{a.Ptr(), b.Ptr(), a.Properties().Ptr(), b.Properties().Ptr()} {
		if seen[p] {
			t.Fatalf("pointer %v owned twice", p)
		}
		seen[p] = true
		h, ok := c.Table().Owner(p)
		if !ok || !h.Live() {
			t.Errorf("pointer %v has no live owner", p)
		}
	}
}

func TestClient_Devices(t *testing.T) {
	ctx := context.Background()
	c, eng := newClient(t)

	gpus, err := c.GPUs(ctx)
	if err != nil || !slices.Equal(gpus, []int32{1, 2}) {
		t.Errorf("GPUs = %v, %v", gpus, err)
	}
	all, err := c.AllDevices(ctx)
	if err != nil || len(all) != 3 {
		t.Errorf("AllDevices = %v, %v", all, err)
	}
	if eng.LiveArrays() != 0 {
		t.Errorf("%d device arrays leaked", eng.LiveArrays())
	}
	if size, err := c.MPISize(ctx); err != nil || size != 1 {
		t.Errorf("MPISize = %d, %v", size, err)
	}
	if err := c.Interrupt(ctx); err != nil {
		t.Fatal(err)
	}
	if eng.Interrupts() != 1 {
		t.Errorf("interrupts = %d", eng.Interrupts())
	}
}
