package callback

import (
	"context"

	"github.com/wippyai/syngen/props"
)

// LayerFunc receives the buffer of one layer of a custom IO module.
type LayerFunc func(layer string, data []float32)

// InputModule registers an IO callback named name that feeds the given
// layers of structure, and returns the matching environment module.
// The callback id of each layer is its index in layers.
func (r *Registry) InputModule(ctx context.Context, structure string, layers []string, name string, fn LayerFunc, clear bool) (*props.Map, error) {
	m, err := r.ioModule(ctx, structure, layers, name, fn, "input")
	if err != nil {
		return nil, err
	}
	return props.NewMap().
		Set("type", props.String("callback")).
		Set("clear", props.Bool(clear)).
		Set("layers", m), nil
}

// OutputModule registers an IO callback named name that receives the
// output of the given layers of structure.
func (r *Registry) OutputModule(ctx context.Context, structure string, layers []string, name string, fn LayerFunc) (*props.Map, error) {
	m, err := r.ioModule(ctx, structure, layers, name, fn, "output")
	if err != nil {
		return nil, err
	}
	return props.NewMap().
		Set("type", props.String("callback")).
		Set("layers", m), nil
}

func (r *Registry) ioModule(ctx context.Context, structure string, layers []string, name string, fn LayerFunc, direction string) (props.Value, error) {
	names := append([]string(nil), layers...)
	_, err := r.RegisterIO(ctx, name, func(id int32, data []float32) {
		if id < 0 || int(id) >= len(names) {
			return
		}
		fn(names[id], data)
	})
	if err != nil {
		return props.Value{}, err
	}

	items := make([]props.Value, len(names))
	for i, layer := range names {
		items[i] = props.Mapping(props.NewMap().
			Set("structure", props.String(structure)).
			Set("layer", props.String(layer)).
			Set(direction, props.Bool(true)).
			Set("function", props.String(name)).
			Set("id", props.Int(int64(i))))
	}
	return props.Seq(items...), nil
}
