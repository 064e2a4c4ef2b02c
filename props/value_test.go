package props

import (
	"slices"
	"strings"
	"testing"
)

func TestFormatScalar(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{true, "true"},
		{false, "false"},
		{42, "42"},
		{int64(-7), "-7"},
		{uint8(9), "9"},
		{0.5, "0.5"},
		{float32(0.1), "0.1"},
		{1e21, "1e+21"},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		got, ok := FormatScalar(tt.in)
		if !ok || got != tt.want {
			t.Errorf("FormatScalar(%#v) = %q, %v; want %q", tt.in, got, ok, tt.want)
		}
	}
	if _, ok := FormatScalar([]int{1}); ok {
		t.Error("slice accepted as scalar")
	}
}

func TestFromGo_SortsMapKeys(t *testing.T) {
	v, err := FromGo(map[string]any{"b": 1, "a": []string{"x"}, "c": nil})
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(v.Map().Keys(), []string{"a", "b", "c"}) {
		t.Errorf("keys = %v", v.Map().Keys())
	}
	if c, _ := v.Map().Get("c"); !c.IsNull() {
		t.Error("nil did not become null")
	}
}

func TestFromGo_UnsupportedPath(t *testing.T) {
	_, err := FromGo(map[string]any{"outer": []any{1, func() {}}})
	if err == nil || !strings.Contains(err.Error(), "outer") {
		t.Fatalf("err = %v", err)
	}
}

func TestMap_SetKeepsPosition(t *testing.T) {
	m := NewMap().Set("a", Int(1)).Set("b", Int(2)).Set("a", Int(3))
	if !slices.Equal(m.Keys(), []string{"a", "b"}) {
		t.Errorf("keys = %v", m.Keys())
	}
	m.Delete("a")
	if !slices.Equal(m.Keys(), []string{"b"}) {
		t.Errorf("keys after delete = %v", m.Keys())
	}
}

func TestDecodeJSON_KeepsOrder(t *testing.T) {
	m, err := ParseJSON([]byte(`{"z": 1.0, "a": {"y": true, "b": null}, "list": [1, "two"]}`))
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(m.Keys(), []string{"z", "a", "list"}) {
		t.Errorf("keys = %v", m.Keys())
	}
	z, _ := m.Get("z")
	if s, _ := z.Text(); s != "1.0" {
		t.Errorf("z = %q, want source text", s)
	}
	a, _ := m.Get("a")
	if !slices.Equal(a.Map().Keys(), []string{"y", "b"}) {
		t.Errorf("nested keys = %v", a.Map().Keys())
	}
	b, err := m.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	if got := string(b); got != `{"z":1.0,"a":{"y":true,"b":null},"list":[1,"two"]}` {
		t.Errorf("MarshalJSON = %s", got)
	}

	if _, err := ParseJSON([]byte(`[1]`)); err == nil {
		t.Error("array accepted as top-level config")
	}
	if _, err := ParseJSON([]byte(`{"a":`)); err == nil {
		t.Error("truncated JSON accepted")
	}
}

func TestFillIn(t *testing.T) {
	defaults := NewMap().
		Set("rate", Float(0.1)).
		Set("neuron", Mapping(NewMap().Set("type", String("izhikevich")).Set("a", Float(0.02))))
	props := NewMap().
		Set("rate", Float(0.5)).
		Set("neuron", Mapping(NewMap().Set("a", Float(0.1))))

	out := FillIn(defaults, props)
	if r, _ := out.Get("rate"); !r.Equal(Float(0.5)) {
		t.Errorf("rate = %v", r.Raw())
	}
	n, _ := out.Get("neuron")
	if typ, _ := n.Map().Get("type"); !typ.Equal(String("izhikevich")) {
		t.Errorf("neuron.type = %v", typ.Raw())
	}
	if a, _ := n.Map().Get("a"); !a.Equal(Float(0.1)) {
		t.Errorf("neuron.a = %v", a.Raw())
	}
	if pn, _ := props.Get("neuron"); pn.Map().Len() != 1 {
		t.Error("FillIn mutated its input")
	}
}
