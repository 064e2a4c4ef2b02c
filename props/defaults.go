package props

// FillIn returns a copy of props with every key of defaults that props
// lacks. Nested mappings present on both sides are merged recursively;
// everything else in props wins.
func FillIn(defaults, props *Map) *Map {
	out := props.Clone()
	if out == nil {
		out = NewMap()
	}
	for k, dv := range defaults.All() {
		pv, ok := out.Get(k)
		switch {
		case !ok:
			out.Set(k, dv.Clone())
		case dv.Kind() == KindMapping && pv.Kind() == KindMapping:
			out.Set(k, Mapping(FillIn(dv.Map(), pv.Map())))
		}
	}
	return out
}

// Factory produces property mappings from defaults and an optional
// post-processing step.
type Factory struct {
	Defaults *Map
	Finish   func(*Map)
}

// Build fills props in from the defaults and applies Finish.
func (f Factory) Build(props *Map) *Map {
	out := FillIn(f.Defaults, props)
	if f.Finish != nil {
		f.Finish(out)
	}
	return out
}

// ConnectionFactory produces connection mappings. Finish receives the
// names of the connected layers.
type ConnectionFactory struct {
	Defaults *Map
	Finish   func(from, to string, props *Map)
}

// Build fills props in and applies Finish.
func (f ConnectionFactory) Build(from, to string, props *Map) *Map {
	out := FillIn(f.Defaults, props)
	if f.Finish != nil {
		f.Finish(from, to, out)
	}
	return out
}
