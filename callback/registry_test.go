package callback

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/wippyai/syngen"
	"github.com/wippyai/syngen/abi"
	"github.com/wippyai/syngen/enginetest"
	serrors "github.com/wippyai/syngen/errors"
)

func kindOf(err error) serrors.Kind {
	var e *serrors.Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func putFloats(t *testing.T, mem *syngen.Bytes, vals ...float32) abi.Ptr {
	t.Helper()
	p, err := mem.Alloc(uint32(len(vals)+1)*abi.Stride, 4)
	if err != nil {
		t.Fatal(err)
	}
	for i, f := range vals {
		if err := mem.WriteU32(p+uint32(i)*abi.Stride, math.Float32bits(f)); err != nil {
			t.Fatal(err)
		}
	}
	return abi.Ptr(p)
}

func putInts(t *testing.T, mem *syngen.Bytes, vals ...int32) abi.Ptr {
	t.Helper()
	p, err := mem.Alloc(uint32(len(vals)+1)*abi.Stride, 4)
	if err != nil {
		t.Fatal(err)
	}
	for i, n := range vals {
		if err := mem.WriteU32(p+uint32(i)*abi.Stride, uint32(n)); err != nil {
			t.Fatal(err)
		}
	}
	return abi.Ptr(p)
}

func getFloats(t *testing.T, mem *syngen.Bytes, p abi.Ptr, n int) []float32 {
	t.Helper()
	out := make([]float32, n)
	for i := range out {
		bits, err := mem.ReadU32(uint32(p) + uint32(i)*abi.Stride)
		if err != nil {
			t.Fatal(err)
		}
		out[i] = math.Float32frombits(bits)
	}
	return out
}

func TestRegistry_DuplicateRejectedBeforeEngine(t *testing.T) {
	ctx := context.Background()
	eng := enginetest.New(nil)
	reg := NewRegistry()
	if err := reg.Bind(ctx, eng); err != nil {
		t.Fatal(err)
	}

	addr, err := reg.RegisterIO(ctx, "retina", func(int32, []float32) {})
	if err != nil {
		t.Fatal(err)
	}
	_, err = reg.RegisterIO(ctx, "retina", func(int32, []float32) {})
	if kindOf(err) != serrors.KindDuplicate {
		t.Fatalf("err = %v", err)
	}
	if n := eng.Calls(abi.EntryAddIOCallback); n != 1 {
		t.Errorf("add_io_callback called %d times, want 1", n)
	}
	if got, ok := eng.Callback(abi.NamespaceIO, "retina"); !ok || got != addr {
		t.Errorf("engine holds %v, %v; want %v", got, ok, addr)
	}

	// Same name in another namespace is a different callback.
	other, err := reg.RegisterWeight(ctx, "retina", func(int32, []float32) {})
	if err != nil {
		t.Fatal(err)
	}
	if other == addr || other == 0 {
		t.Errorf("addresses %v and %v not distinct", addr, other)
	}
}

func TestRegistry_BindForwardsEarlierRegistrations(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry()
	if err := reg.RegisterBuiltins(ctx); err != nil {
		t.Fatal(err)
	}
	eng := enginetest.New(nil)
	if err := reg.Bind(ctx, eng); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{GaussianName, MexicanHatName} {
		rec, ok := reg.Lookup(DistanceWeight, name)
		if !ok {
			t.Fatalf("%s not registered", name)
		}
		if addr, ok := eng.Callback(abi.NamespaceDistanceWeight, name); !ok || addr != rec.Addr {
			t.Errorf("%s: engine addr %v, want %v", name, addr, rec.Addr)
		}
	}
	if len(reg.Records()) != 2 || reg.Records()[0].Name != GaussianName {
		t.Errorf("records = %+v", reg.Records())
	}
}

type rejectingTarget struct {
	*enginetest.Engine
}

func (rejectingTarget) AddIOCallback(context.Context, string, abi.Addr) error {
	return fmt.Errorf("engine rejected callback")
}

func TestRegistry_PartialForwardKeepsRecord(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry()
	good := enginetest.New(nil)
	if err := reg.Bind(ctx, good); err != nil {
		t.Fatal(err)
	}
	if err := reg.Bind(ctx, rejectingTarget{enginetest.New(nil)}); err != nil {
		t.Fatal(err)
	}

	var calls atomic.Int32
	addr, err := reg.RegisterIO(ctx, "feed", func(int32, []float32) { calls.Add(1) })
	if kindOf(err) != serrors.KindRegistration {
		t.Fatalf("err = %v, want registration error", err)
	}
	if addr == 0 {
		t.Fatal("no address returned for a callback one engine accepted")
	}
	got, ok := good.Callback(abi.NamespaceIO, "feed")
	if !ok || got != addr {
		t.Fatalf("engine addr = %v, %v; want %v", got, ok, addr)
	}
	if rec, ok := reg.Lookup(IO, "feed"); !ok || rec.Addr != addr {
		t.Fatalf("lookup = %+v, %v", rec, ok)
	}

	mem := syngen.NewBytes(256)
	reg.Dispatcher(mem).DispatchIO(ctx, addr, 0, 0, 0)
	if calls.Load() != 1 {
		t.Errorf("dispatch to accepted address ran %d times", calls.Load())
	}

	// A registration no engine accepts is not kept.
	only := NewRegistry()
	if err := only.Bind(ctx, rejectingTarget{enginetest.New(nil)}); err != nil {
		t.Fatal(err)
	}
	if _, err := only.RegisterIO(ctx, "feed", func(int32, []float32) {}); err == nil {
		t.Fatal("expected error when every engine rejects")
	}
	if _, ok := only.Lookup(IO, "feed"); ok {
		t.Error("rejected callback recorded")
	}
}

func TestRegistry_RegisterChecksSignature(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Register(context.Background(), DelayWeight, "d", func(int32, []float32) {})
	if kindOf(err) != serrors.KindTypeMismatch {
		t.Fatalf("err = %v", err)
	}
	if _, err := reg.Register(context.Background(), DelayWeight, "d", func(int32, []float32, []int32) {}); err != nil {
		t.Fatal(err)
	}
	if _, err := reg.RegisterIO(context.Background(), "", func(int32, []float32) {}); kindOf(err) != serrors.KindInvalidInput {
		t.Errorf("empty name err = %v", err)
	}
}

func TestDispatch_IOWritesBack(t *testing.T) {
	ctx := context.Background()
	mem := syngen.NewBytes(4096)
	reg := NewRegistry()
	var gotID int32
	addr, err := reg.RegisterIO(ctx, "double", func(id int32, data []float32) {
		gotID = id
		for i := range data {
			data[i] *= 2
		}
	})
	if err != nil {
		t.Fatal(err)
	}

	buf := putFloats(t, mem, 1, 2, 3)
	reg.Dispatcher(mem).DispatchIO(ctx, addr, 7, 3, buf)

	if gotID != 7 {
		t.Errorf("id = %d", gotID)
	}
	got := getFloats(t, mem, buf, 4)
	want := []float32{2, 4, 6, 0}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("buf[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestDispatch_IndicesAndDelays(t *testing.T) {
	ctx := context.Background()
	mem := syngen.NewBytes(4096)
	reg := NewRegistry()

	idx, _ := reg.RegisterIndicesWeight(ctx, "idx", func(_ int32, w []float32, from, to []int32) {
		for i := range w {
			w[i] = float32(from[i]*10 + to[i])
		}
	})
	delay, _ := reg.RegisterDelayWeight(ctx, "delay", func(_ int32, w []float32, delays []int32) {
		for i := range w {
			w[i] = float32(delays[i])
			delays[i]++
		}
	})

	d := reg.Dispatcher(mem)
	w := putFloats(t, mem, 0, 0)
	d.DispatchIndicesWeight(ctx, idx, 0, 2, w, putInts(t, mem, 1, 2), putInts(t, mem, 5, 6))
	if got := getFloats(t, mem, w, 2); got[0] != 15 || got[1] != 26 {
		t.Errorf("indices weights = %v", got)
	}

	dl := putInts(t, mem, 3, 4)
	d.DispatchDelayWeight(ctx, delay, 0, 2, w, dl)
	if got := getFloats(t, mem, w, 2); got[0] != 3 || got[1] != 4 {
		t.Errorf("delay weights = %v", got)
	}
	if n, _ := mem.ReadU32(uint32(dl)); n != 4 {
		t.Errorf("delay not written back: %d", n)
	}
}

func TestDispatch_UnknownAddressAndPanic(t *testing.T) {
	ctx := context.Background()
	mem := syngen.NewBytes(4096)
	reg := NewRegistry()
	addr, _ := reg.RegisterIO(ctx, "boom", func(_ int32, data []float32) {
		data[0] = 99
		panic("boom")
	})
	buf := putFloats(t, mem, 1)
	d := reg.Dispatcher(mem)

	d.DispatchIO(ctx, addr+100, 0, 1, buf)
	d.DispatchWeight(ctx, addr, 0, 1, buf) // wrong namespace
	d.DispatchIO(ctx, addr, 0, 1, buf)

	if got := getFloats(t, mem, buf, 1); got[0] != 1 {
		t.Errorf("buffer changed to %v", got[0])
	}
}

func TestDispatch_ConcurrentWithRegistration(t *testing.T) {
	ctx := context.Background()
	mem := syngen.NewBytes(1 << 16)
	reg := NewRegistry()
	var calls atomic.Int64
	addr, err := reg.RegisterIO(ctx, "count", func(_ int32, data []float32) {
		calls.Add(1)
		data[0]++
	})
	if err != nil {
		t.Fatal(err)
	}
	d := reg.Dispatcher(mem)

	bufs := make([]abi.Ptr, 8)
	for i := range bufs {
		bufs[i] = putFloats(t, mem, 0)
	}

	var wg sync.WaitGroup
	for _, buf := range bufs {
		wg.Add(1)
		go func(buf abi.Ptr) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				d.DispatchIO(ctx, addr, 0, 1, buf)
			}
		}(buf)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			if _, err := reg.RegisterWeight(ctx, fmt.Sprintf("w%d", i), func(int32, []float32) {}); err != nil {
				t.Error(err)
			}
		}
	}()
	wg.Wait()

	if n := calls.Load(); n != 800 {
		t.Errorf("calls = %d, want 800", n)
	}
	for _, buf := range bufs {
		if got := getFloats(t, mem, buf, 1); got[0] != 100 {
			t.Errorf("buffer = %v, want 100", got[0])
		}
	}
	if reg.Len() != 51 {
		t.Errorf("Len = %d", reg.Len())
	}
}

func TestInputModule(t *testing.T) {
	ctx := context.Background()
	mem := syngen.NewBytes(4096)
	reg := NewRegistry()
	var seen string
	m, err := reg.InputModule(ctx, "vision", []string{"red", "green"}, "camera", func(layer string, data []float32) {
		seen = layer
		data[0] = 1
	}, true)
	if err != nil {
		t.Fatal(err)
	}

	b, err := m.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	want := `{"type":"callback","clear":true,"layers":[` +
		`{"structure":"vision","layer":"red","input":true,"function":"camera","id":0},` +
		`{"structure":"vision","layer":"green","input":true,"function":"camera","id":1}]}`
	if string(b) != want {
		t.Errorf("module = %s", b)
	}

	rec, ok := reg.Lookup(IO, "camera")
	if !ok {
		t.Fatal("camera not registered")
	}
	buf := putFloats(t, mem, 0)
	reg.Dispatcher(mem).DispatchIO(ctx, rec.Addr, 1, 1, buf)
	if seen != "green" {
		t.Errorf("layer = %q", seen)
	}

	out, err := reg.OutputModule(ctx, "vision", []string{"red"}, "monitor", func(string, []float32) {})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := out.Get("clear"); ok {
		t.Error("output module has a clear flag")
	}
}
