package session

import (
	"context"

	"github.com/wippyai/syngen/abi"
	"github.com/wippyai/syngen/array"
	"github.com/wippyai/syngen/errors"
)

// DefaultWeightKey is the weight matrix read when no key is given.
const DefaultWeightKey = "weights"

// NeuronData copies the per-neuron values stored under key for a layer.
func (n *Network) NeuronData(ctx context.Context, structure, layer, key string) ([]float32, error) {
	return n.read(ctx, abi.EntryGetNeuronData, func(st abi.Ptr) (abi.Array, error) {
		return n.c.eng.GetNeuronData(ctx, st, structure, layer, key)
	})
}

// LayerData copies the per-layer values stored under key for a layer.
func (n *Network) LayerData(ctx context.Context, structure, layer, key string) ([]float32, error) {
	return n.read(ctx, abi.EntryGetLayerData, func(st abi.Ptr) (abi.Array, error) {
		return n.c.eng.GetLayerData(ctx, st, structure, layer, key)
	})
}

// ConnectionData copies a per-connection buffer such as "weights",
// "distances" or "delays". Integer buffers are converted.
func (n *Network) ConnectionData(ctx context.Context, connection, key string) ([]float32, error) {
	return n.read(ctx, abi.EntryGetConnectionData, func(st abi.Ptr) (abi.Array, error) {
		return n.c.eng.GetConnectionData(ctx, st, connection, key)
	})
}

// WeightMatrix copies a connection's weight matrix. An empty key reads
// DefaultWeightKey.
func (n *Network) WeightMatrix(ctx context.Context, connection, key string) ([]float32, error) {
	if key == "" {
		key = DefaultWeightKey
	}
	return n.read(ctx, abi.EntryGetWeightMatrix, func(st abi.Ptr) (abi.Array, error) {
		return n.c.eng.GetWeightMatrix(ctx, st, connection, key)
	})
}

func (n *Network) read(ctx context.Context, entry string, get func(abi.Ptr) (abi.Array, error)) ([]float32, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	st, err := n.stateLocked(ctx)
	if err != nil {
		return nil, err
	}
	desc, err := get(st)
	if err != nil {
		return nil, errors.Foreign(entry, err)
	}
	v := array.FromEntry(n.c.eng, entry, desc)
	defer v.Release(ctx)
	return floats(v)
}

func floats(v *array.View) ([]float32, error) {
	switch v.Kind() {
	case abi.ElemInt:
		ints, err := v.Int32s()
		if err != nil {
			return nil, err
		}
		out := make([]float32, len(ints))
		for i, x := range ints {
			out[i] = float32(x)
		}
		return out, nil
	case abi.ElemVoid:
		if v.Len() == 0 {
			return []float32{}, nil
		}
	}
	return v.Float32s()
}
