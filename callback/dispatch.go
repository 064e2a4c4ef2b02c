package callback

import (
	"context"

	"go.uber.org/zap"

	"github.com/wippyai/syngen"
	"github.com/wippyai/syngen/abi"
	"github.com/wippyai/syngen/array"
)

// Dispatcher returns the entry points an engine calls with a callback
// address. Buffers are read from and written back to mem.
func (r *Registry) Dispatcher(mem syngen.Memory) abi.Dispatcher {
	return &dispatcher{r: r, mem: mem}
}

type dispatcher struct {
	r   *Registry
	mem syngen.Memory
}

var _ abi.Dispatcher = (*dispatcher)(nil)

func (d *dispatcher) lookup(addr abi.Addr, ns Namespace) *Record {
	rec, ok := d.r.snap.Load().byAddr[addr]
	if !ok || rec.Namespace != ns {
		Logger().Error("dispatch to unknown callback address",
			zap.Uint64("addr", uint64(addr)),
			zap.String("namespace", string(ns)))
		return nil
	}
	return rec
}

// buffer is a host copy of one engine buffer.
type buffer struct {
	view   *array.View
	floats []float32
	ints   []int32
}

func (d *dispatcher) floats(size int32, ptr abi.Ptr) (*buffer, error) {
	v := array.Wrap(d.mem, nil, abi.Array{Size: size, Type: abi.ElemFloat, Data: ptr}, abi.NotOwned)
	data, err := v.Float32s()
	if err != nil {
		return nil, err
	}
	return &buffer{view: v, floats: data}, nil
}

func (d *dispatcher) ints(size int32, ptr abi.Ptr) (*buffer, error) {
	v := array.Wrap(d.mem, nil, abi.Array{Size: size, Type: abi.ElemInt, Data: ptr}, abi.NotOwned)
	data, err := v.Int32s()
	if err != nil {
		return nil, err
	}
	return &buffer{view: v, ints: data}, nil
}

func (b *buffer) writeBack() error {
	if b.ints == nil {
		return b.view.CopyFrom(b.floats)
	}
	for i, n := range b.ints {
		if err := b.view.SetInt32(i, n); err != nil {
			return err
		}
	}
	return nil
}

// invoke reads the buffers, runs fn and writes every buffer back. A
// panicking callable is logged and its buffers are left untouched.
func (d *dispatcher) invoke(rec *Record, id, size int32, read func() ([]*buffer, error), fn func([]*buffer)) {
	log := Logger().With(
		zap.String("namespace", string(rec.Namespace)),
		zap.String("name", rec.Name),
		zap.Int32("id", id),
		zap.Int32("size", size))
	if size < 0 {
		log.Error("negative buffer size")
		return
	}
	bufs, err := read()
	if err != nil {
		log.Error("reading callback buffers", zap.Error(err))
		return
	}

	ok := func() (ok bool) {
		defer func() {
			if p := recover(); p != nil {
				log.Error("callback panicked", zap.Any("panic", p))
			}
		}()
		fn(bufs)
		return true
	}()
	if !ok {
		return
	}

	for _, b := range bufs {
		if err := b.writeBack(); err != nil {
			log.Error("writing callback buffers", zap.Error(err))
			return
		}
	}
}

func (d *dispatcher) DispatchIO(_ context.Context, addr abi.Addr, id, size int32, buf abi.Ptr) {
	d.dispatchFloat(addr, IO, id, size, buf)
}

func (d *dispatcher) DispatchWeight(_ context.Context, addr abi.Addr, id, size int32, weights abi.Ptr) {
	d.dispatchFloat(addr, Weight, id, size, weights)
}

func (d *dispatcher) dispatchFloat(addr abi.Addr, ns Namespace, id, size int32, ptr abi.Ptr) {
	rec := d.lookup(addr, ns)
	if rec == nil {
		return
	}
	fn := rec.fn.(IOFunc)
	d.invoke(rec, id, size,
		func() ([]*buffer, error) {
			b, err := d.floats(size, ptr)
			return []*buffer{b}, err
		},
		func(b []*buffer) { fn(id, b[0].floats) })
}

func (d *dispatcher) DispatchIndicesWeight(_ context.Context, addr abi.Addr, id, size int32, weights, from, to abi.Ptr) {
	rec := d.lookup(addr, IndicesWeight)
	if rec == nil {
		return
	}
	fn := rec.fn.(IndicesWeightFunc)
	d.invoke(rec, id, size,
		func() ([]*buffer, error) {
			w, err := d.floats(size, weights)
			if err != nil {
				return nil, err
			}
			f, err := d.ints(size, from)
			if err != nil {
				return nil, err
			}
			t, err := d.ints(size, to)
			if err != nil {
				return nil, err
			}
			return []*buffer{w, f, t}, nil
		},
		func(b []*buffer) { fn(id, b[0].floats, b[1].ints, b[2].ints) })
}

func (d *dispatcher) DispatchDistanceWeight(_ context.Context, addr abi.Addr, id, size int32, weights, distances abi.Ptr) {
	rec := d.lookup(addr, DistanceWeight)
	if rec == nil {
		return
	}
	fn := rec.fn.(DistanceWeightFunc)
	d.invoke(rec, id, size,
		func() ([]*buffer, error) {
			w, err := d.floats(size, weights)
			if err != nil {
				return nil, err
			}
			ds, err := d.floats(size, distances)
			if err != nil {
				return nil, err
			}
			return []*buffer{w, ds}, nil
		},
		func(b []*buffer) { fn(id, b[0].floats, b[1].floats) })
}

func (d *dispatcher) DispatchDelayWeight(_ context.Context, addr abi.Addr, id, size int32, weights, delays abi.Ptr) {
	rec := d.lookup(addr, DelayWeight)
	if rec == nil {
		return
	}
	fn := rec.fn.(DelayWeightFunc)
	d.invoke(rec, id, size,
		func() ([]*buffer, error) {
			w, err := d.floats(size, weights)
			if err != nil {
				return nil, err
			}
			ds, err := d.ints(size, delays)
			if err != nil {
				return nil, err
			}
			return []*buffer{w, ds}, nil
		},
		func(b []*buffer) { fn(id, b[0].floats, b[1].ints) })
}
