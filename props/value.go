package props

import (
	"encoding/json"
	"fmt"
	"iter"
	"math"
	"reflect"
	"slices"
	"strconv"

	"github.com/wippyai/syngen/errors"
)

// Kind tags the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindScalar
	KindSequence
	KindMapping
)

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindSequence:
		return "sequence"
	case KindMapping:
		return "mapping"
	default:
		return "null"
	}
}

// Value is a configuration value: null, scalar, sequence or mapping.
// The zero Value is null.
type Value struct {
	scalar any
	m      *Map
	seq    []Value
	kind   Kind
}

// Null returns the null value.
func Null() Value { return Value{} }

// Scalar wraps a scalar. The payload is checked when the value is built
// into a tree; only strings, booleans and numbers are accepted there.
func Scalar(v any) Value { return Value{kind: KindScalar, scalar: v} }

// String wraps a string scalar.
func String(s string) Value { return Scalar(s) }

// Bool wraps a boolean scalar.
func Bool(b bool) Value { return Scalar(b) }

// Int wraps an integer scalar.
func Int(n int64) Value { return Scalar(n) }

// Float wraps a floating point scalar.
func Float(f float64) Value { return Scalar(f) }

// Seq wraps an ordered sequence.
func Seq(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: KindSequence, seq: items}
}

// Mapping wraps a nested mapping. A nil map is null.
func Mapping(m *Map) Value {
	if m == nil {
		return Value{}
	}
	return Value{kind: KindMapping, m: m}
}

// Kind returns the variant tag.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Raw returns the scalar payload.
func (v Value) Raw() any { return v.scalar }

// Items returns the elements of a sequence.
func (v Value) Items() []Value { return v.seq }

// Map returns the mapping of a mapping value.
func (v Value) Map() *Map { return v.m }

// Text returns the canonical string form of a scalar.
func (v Value) Text() (string, bool) {
	if v.kind != KindScalar {
		return "", false
	}
	return FormatScalar(v.scalar)
}

// FormatScalar renders a scalar the way it crosses the bridge: booleans
// become "true"/"false", numbers use Go's default formatting.
func FormatScalar(x any) (string, bool) {
	switch s := x.(type) {
	case string:
		return s, true
	case bool:
		if s {
			return "true", true
		}
		return "false", true
	case json.Number:
		return s.String(), true
	case float32:
		if math.IsNaN(float64(s)) || math.IsInf(float64(s), 0) {
			return fmt.Sprint(s), true
		}
		return strconv.FormatFloat(float64(s), 'g', -1, 32), true
	case float64:
		return fmt.Sprint(s), true
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(s), true
	}
	return "", false
}

// Equal reports whether two values are structurally equal, comparing
// scalars by their canonical text.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindScalar:
		a, aok := v.Text()
		b, bok := o.Text()
		return aok && bok && a == b
	case KindSequence:
		return slices.EqualFunc(v.seq, o.seq, Value.Equal)
	case KindMapping:
		return v.m.Equal(o.m)
	}
	return true
}

// Clone returns a deep copy.
func (v Value) Clone() Value {
	switch v.kind {
	case KindSequence:
		items := make([]Value, len(v.seq))
		for i, x := range v.seq {
			items[i] = x.Clone()
		}
		return Value{kind: KindSequence, seq: items}
	case KindMapping:
		return Mapping(v.m.Clone())
	}
	return v
}

// Map is a string-keyed mapping that iterates in insertion order.
type Map struct {
	vals map[string]Value
	keys []string
}

// NewMap creates an empty mapping.
func NewMap() *Map {
	return &Map{vals: make(map[string]Value)}
}

// Set stores v under key. Replacing a key keeps its original position.
func (m *Map) Set(key string, v Value) *Map {
	if _, ok := m.vals[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.vals[key] = v
	return m
}

// Get returns the value under key.
func (m *Map) Get(key string) (Value, bool) {
	if m == nil {
		return Value{}, false
	}
	v, ok := m.vals[key]
	return v, ok
}

// Delete removes key.
func (m *Map) Delete(key string) {
	if _, ok := m.vals[key]; !ok {
		return
	}
	delete(m.vals, key)
	m.keys = slices.DeleteFunc(m.keys, func(k string) bool { return k == key })
}

// Keys returns the keys in insertion order.
func (m *Map) Keys() []string {
	if m == nil {
		return nil
	}
	return slices.Clone(m.keys)
}

// Len returns the number of keys.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// All iterates over entries in insertion order.
func (m *Map) All() iter.Seq2[string, Value] {
	return func(yield func(string, Value) bool) {
		if m == nil {
			return
		}
		for _, k := range m.keys {
			if !yield(k, m.vals[k]) {
				return
			}
		}
	}
}

// Clone returns a deep copy.
func (m *Map) Clone() *Map {
	if m == nil {
		return nil
	}
	out := NewMap()
	for k, v := range m.All() {
		out.Set(k, v.Clone())
	}
	return out
}

// Equal reports whether both mappings hold equal values under the same
// keys in the same order.
func (m *Map) Equal(o *Map) bool {
	if m.Len() != o.Len() {
		return false
	}
	if !slices.Equal(m.Keys(), o.Keys()) {
		return false
	}
	for k, v := range m.All() {
		ov, _ := o.Get(k)
		if !v.Equal(ov) {
			return false
		}
	}
	return true
}

// FromGo converts loose Go data into a Value. Maps must have string keys
// and are ordered by key; slices and arrays become sequences. Anything
// that is not a string, boolean or number at the leaves is rejected with
// the key path of the offending value.
func FromGo(x any) (Value, error) {
	return fromGo(x, nil)
}

// MapOf converts a Go map into an ordered Map.
func MapOf(x map[string]any) (*Map, error) {
	v, err := FromGo(x)
	if err != nil {
		return nil, err
	}
	if v.IsNull() {
		return NewMap(), nil
	}
	return v.Map(), nil
}

func fromGo(x any, path []string) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Value{}, nil
	case Value:
		return t, nil
	case *Map:
		return Mapping(t), nil
	case []byte:
		return Value{}, errors.UnsupportedValue(errors.PhaseBuild, path, x)
	}
	if _, ok := FormatScalar(x); ok {
		return Scalar(x), nil
	}

	rv := reflect.ValueOf(x)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return Value{}, nil
		}
		return fromGo(rv.Elem().Interface(), path)
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return Value{}, errors.UnsupportedValue(errors.PhaseBuild, path, x)
		}
		if rv.IsNil() {
			return Value{}, nil
		}
		keys := make([]string, 0, rv.Len())
		for _, k := range rv.MapKeys() {
			keys = append(keys, k.String())
		}
		slices.Sort(keys)
		m := NewMap()
		for _, k := range keys {
			v, err := fromGo(rv.MapIndex(reflect.ValueOf(k).Convert(rv.Type().Key())).Interface(), append(path, k))
			if err != nil {
				return Value{}, err
			}
			m.Set(k, v)
		}
		return Mapping(m), nil
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return Value{}, nil
		}
		items := make([]Value, rv.Len())
		for i := range items {
			v, err := fromGo(rv.Index(i).Interface(), append(path, strconv.Itoa(i)))
			if err != nil {
				return Value{}, err
			}
			items[i] = v
		}
		return Seq(items...), nil
	case reflect.String:
		return Scalar(rv.String()), nil
	case reflect.Bool:
		return Scalar(rv.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Scalar(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return Scalar(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return Scalar(rv.Float()), nil
	}
	return Value{}, errors.UnsupportedValue(errors.PhaseBuild, path, x)
}
