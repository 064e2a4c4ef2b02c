package props

import (
	"bytes"
	"encoding/json"
	"slices"
)

// Property returns the scalar stored under key.
func (t *Tree) Property(key string) (string, bool) { return t.scalars.get(key) }

// Child returns the child stored under key.
func (t *Tree) Child(key string) (*Tree, bool) { return t.children.get(key) }

// Array returns a copy of the string array stored under key.
func (t *Tree) Array(key string) ([]string, bool) {
	items, ok := t.arrays.get(key)
	return slices.Clone(items), ok
}

// ChildArray returns the children stored under key.
func (t *Tree) ChildArray(key string) ([]*Tree, bool) {
	items, ok := t.childArrays.get(key)
	return slices.Clone(items), ok
}

// PropertyKeys lists scalar keys in foreign order.
func (t *Tree) PropertyKeys() []string { return slices.Clone(t.scalars.keys) }

// ChildKeys lists child keys in foreign order.
func (t *Tree) ChildKeys() []string { return slices.Clone(t.children.keys) }

// ArrayKeys lists array keys in foreign order.
func (t *Tree) ArrayKeys() []string { return slices.Clone(t.arrays.keys) }

// ChildArrayKeys lists child array keys in foreign order.
func (t *Tree) ChildArrayKeys() []string { return slices.Clone(t.childArrays.keys) }

// Value converts the tree to a mapping. Scalars come first, then
// children, arrays and child arrays, each in foreign key order. A key
// whose array came back empty maps to an empty sequence.
func (t *Tree) Value() *Map {
	m := NewMap()
	for _, k := range t.scalars.keys {
		s, _ := t.scalars.get(k)
		m.Set(k, String(s))
	}
	for _, k := range t.children.keys {
		c, _ := t.children.get(k)
		m.Set(k, Mapping(c.Value()))
	}
	for _, k := range t.arrays.keys {
		items, _ := t.arrays.get(k)
		vs := make([]Value, len(items))
		for i, s := range items {
			vs[i] = String(s)
		}
		m.Set(k, Seq(vs...))
	}
	for _, k := range t.childArrays.keys {
		items, _ := t.childArrays.get(k)
		vs := make([]Value, len(items))
		for i, c := range items {
			vs[i] = Mapping(c.Value())
		}
		m.Set(k, Seq(vs...))
	}
	return m
}

// MarshalJSON renders the tree's mapping.
func (t *Tree) MarshalJSON() ([]byte, error) {
	return t.Value().MarshalJSON()
}

// String renders the tree as JSON indented by four spaces.
func (t *Tree) String() string {
	b, err := json.MarshalIndent(t, "", "    ")
	if err != nil {
		return "{}"
	}
	return string(b)
}

// MarshalJSON writes the mapping with keys in insertion order.
func (m *Map) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := m.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *Map) encode(buf *bytes.Buffer) error {
	buf.WriteByte('{')
	for i, k := range m.Keys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		v, _ := m.Get(k)
		if err := v.encode(buf); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

// MarshalJSON writes the value; scalars keep their JSON type.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v Value) encode(buf *bytes.Buffer) error {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindMapping:
		return v.m.encode(buf)
	case KindSequence:
		buf.WriteByte('[')
		for i, item := range v.seq {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := item.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	default:
		b, err := json.Marshal(v.scalar)
		if err != nil {
			return err
		}
		buf.Write(b)
	}
	return nil
}
