package callback

import (
	"cmp"
	"context"
	goerrors "errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/syngen"
	"github.com/wippyai/syngen/abi"
	"github.com/wippyai/syngen/errors"
)

// Namespace separates callback names by signature.
type Namespace string

const (
	IO             Namespace = abi.NamespaceIO
	Weight         Namespace = abi.NamespaceWeight
	IndicesWeight  Namespace = abi.NamespaceIndicesWeight
	DistanceWeight Namespace = abi.NamespaceDistanceWeight
	DelayWeight    Namespace = abi.NamespaceDelayWeight
)

// Host callable signatures. Buffers are host copies of engine memory;
// whatever the callable leaves in them is written back.
type (
	IOFunc             func(id int32, data []float32)
	WeightFunc         func(id int32, weights []float32)
	IndicesWeightFunc  func(id int32, weights []float32, from, to []int32)
	DistanceWeightFunc func(id int32, weights, distances []float32)
	DelayWeightFunc    func(id int32, weights []float32, delays []int32)
)

// Record is one registered callback.
type Record struct {
	Namespace Namespace
	Name      string
	Addr      abi.Addr
	fn        any
}

// Target is an engine that callbacks can be bound to.
type Target interface {
	abi.CallbackEngine
	Memory() syngen.Memory
	SetDispatcher(d abi.Dispatcher)
}

type snapshot struct {
	byAddr map[abi.Addr]*Record
	byName map[Namespace]map[string]*Record
}

// Registry maps callback names to host callables and hands the engine a
// stable address for each. Records live as long as the registry.
//
// Registration is serialized; dispatch reads an immutable snapshot and
// never blocks on a registering goroutine.
type Registry struct {
	mu      sync.Mutex
	targets []Target
	next    abi.Addr
	snap    atomic.Pointer[snapshot]
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	r := &Registry{next: 1}
	r.snap.Store(&snapshot{
		byAddr: make(map[abi.Addr]*Record),
		byName: make(map[Namespace]map[string]*Record),
	})
	return r
}

var (
	defaultRegistry *Registry
	defaultOnce     sync.Once
)

// Default returns the process-wide registry.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// Bind installs the registry as t's dispatcher and forwards every
// existing registration to it. Later registrations reach all bound
// engines.
func (r *Registry) Bind(ctx context.Context, t Target) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t.SetDispatcher(r.Dispatcher(t.Memory()))
	snap := r.snap.Load()
	for _, rec := range sortedRecords(snap) {
		if err := forward(ctx, t, rec); err != nil {
			return err
		}
	}
	r.targets = append(r.targets, t)
	Logger().Debug("callback registry bound", zap.Int("callbacks", len(snap.byAddr)))
	return nil
}

// RegisterIO registers an input/output callback.
func (r *Registry) RegisterIO(ctx context.Context, name string, fn IOFunc) (abi.Addr, error) {
	return r.register(ctx, IO, name, fn)
}

// RegisterWeight registers a weight initialization callback.
func (r *Registry) RegisterWeight(ctx context.Context, name string, fn WeightFunc) (abi.Addr, error) {
	return r.register(ctx, Weight, name, fn)
}

// RegisterIndicesWeight registers a callback that also receives source and
// destination indices.
func (r *Registry) RegisterIndicesWeight(ctx context.Context, name string, fn IndicesWeightFunc) (abi.Addr, error) {
	return r.register(ctx, IndicesWeight, name, fn)
}

// RegisterDistanceWeight registers a callback that also receives distances.
func (r *Registry) RegisterDistanceWeight(ctx context.Context, name string, fn DistanceWeightFunc) (abi.Addr, error) {
	return r.register(ctx, DistanceWeight, name, fn)
}

// RegisterDelayWeight registers a callback that also receives delays.
func (r *Registry) RegisterDelayWeight(ctx context.Context, name string, fn DelayWeightFunc) (abi.Addr, error) {
	return r.register(ctx, DelayWeight, name, fn)
}

// Register registers fn under ns. fn must have the signature of ns.
//
// When some but not all bound engines reject the registration, the
// callback stays registered for those that accepted it and the returned
// error joins the rejections.
func (r *Registry) Register(ctx context.Context, ns Namespace, name string, fn any) (abi.Addr, error) {
	if !accepts(ns, fn) {
		return 0, errors.TypeMismatch(errors.PhaseCallback, []string{string(ns), name},
			fmt.Sprintf("%T", fn), "callable does not match namespace signature")
	}
	return r.register(ctx, ns, name, fn)
}

func accepts(ns Namespace, fn any) bool {
	switch fn.(type) {
	case IOFunc, WeightFunc, func(int32, []float32):
		return ns == IO || ns == Weight
	case IndicesWeightFunc, func(int32, []float32, []int32, []int32):
		return ns == IndicesWeight
	case DistanceWeightFunc, func(int32, []float32, []float32):
		return ns == DistanceWeight
	case DelayWeightFunc, func(int32, []float32, []int32):
		return ns == DelayWeight
	}
	return false
}

func (r *Registry) register(ctx context.Context, ns Namespace, name string, fn any) (abi.Addr, error) {
	if fn == nil || name == "" {
		return 0, errors.InvalidInput(errors.PhaseCallback, "callback needs a name and a callable")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.snap.Load()
	if _, dup := old.byName[ns][name]; dup {
		return 0, errors.Duplicate(errors.PhaseCallback, string(ns), name)
	}

	// Every bound engine gets the registration. Once any of them holds the
	// address the record is kept so its callbacks resolve, and the other
	// failures are reported together.
	rec := &Record{Namespace: ns, Name: name, Addr: r.next, fn: normalize(fn)}
	var errs []error
	for _, t := range r.targets {
		if err := forward(ctx, t, rec); err != nil {
			errs = append(errs, err)
		}
	}
	if len(r.targets) > 0 && len(errs) == len(r.targets) {
		return 0, goerrors.Join(errs...)
	}
	r.next++

	next := &snapshot{
		byAddr: maps.Clone(old.byAddr),
		byName: maps.Clone(old.byName),
	}
	next.byAddr[rec.Addr] = rec
	names := maps.Clone(next.byName[ns])
	if names == nil {
		names = make(map[string]*Record)
	}
	names[name] = rec
	next.byName[ns] = names
	r.snap.Store(next)

	Logger().Debug("callback registered",
		zap.String("namespace", string(ns)),
		zap.String("name", name),
		zap.Uint64("addr", uint64(rec.Addr)))
	if len(errs) > 0 {
		Logger().Warn("callback not forwarded to every engine",
			zap.String("name", name),
			zap.Int("failed", len(errs)),
			zap.Int("engines", len(r.targets)))
		return rec.Addr, goerrors.Join(errs...)
	}
	return rec.Addr, nil
}

func normalize(fn any) any {
	switch f := fn.(type) {
	case func(int32, []float32):
		return IOFunc(f)
	case WeightFunc:
		return IOFunc(f)
	case func(int32, []float32, []int32, []int32):
		return IndicesWeightFunc(f)
	case func(int32, []float32, []float32):
		return DistanceWeightFunc(f)
	case func(int32, []float32, []int32):
		return DelayWeightFunc(f)
	}
	return fn
}

func forward(ctx context.Context, t Target, rec *Record) error {
	var err error
	switch rec.Namespace {
	case IO:
		err = t.AddIOCallback(ctx, rec.Name, rec.Addr)
	case Weight:
		err = t.AddWeightCallback(ctx, rec.Name, rec.Addr)
	case IndicesWeight:
		err = t.AddIndicesWeightCallback(ctx, rec.Name, rec.Addr)
	case DistanceWeight:
		err = t.AddDistanceWeightCallback(ctx, rec.Name, rec.Addr)
	case DelayWeight:
		err = t.AddDelayWeightCallback(ctx, rec.Name, rec.Addr)
	default:
		return errors.NotFound(errors.PhaseCallback, "namespace", string(rec.Namespace))
	}
	if err != nil {
		return errors.Registration(string(rec.Namespace), rec.Name, err)
	}
	return nil
}

// Lookup returns the record registered under ns and name.
func (r *Registry) Lookup(ns Namespace, name string) (Record, bool) {
	rec, ok := r.snap.Load().byName[ns][name]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// Records lists all registrations in address order.
func (r *Registry) Records() []Record {
	recs := sortedRecords(r.snap.Load())
	out := make([]Record, len(recs))
	for i, rec := range recs {
		out[i] = *rec
	}
	return out
}

// Len returns the number of registrations.
func (r *Registry) Len() int { return len(r.snap.Load().byAddr) }

func sortedRecords(s *snapshot) []*Record {
	out := make([]*Record, 0, len(s.byAddr))
	for _, rec := range s.byAddr {
		out = append(out, rec)
	}
	slices.SortFunc(out, func(a, b *Record) int { return cmp.Compare(a.Addr, b.Addr) })
	return out
}
