package props

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/wippyai/syngen/abi"
	"github.com/wippyai/syngen/enginetest"
	serrors "github.com/wippyai/syngen/errors"
	"github.com/wippyai/syngen/resource"
)

func kindOf(err error) serrors.Kind {
	var e *serrors.Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func networkConfig() *Map {
	layer := NewMap().Set("name", String("a")).Set("size", Int(4))
	structure := NewMap().
		Set("name", String("s")).
		Set("layers", Seq(Mapping(layer)))
	return NewMap().
		Set("name", String("net")).
		Set("count", Int(3)).
		Set("skip", Null()).
		Set("enabled", Bool(true)).
		Set("structures", Seq(Mapping(structure))).
		Set("tags", Seq(String("x"), Float(0.5))).
		Set("child", Mapping(NewMap().Set("k", String("v")))).
		Set("rate", Float(0.25))
}

func TestBuild_RoundTrip(t *testing.T) {
	ctx := context.Background()
	eng := enginetest.New(nil)

	tree, err := Build(ctx, eng, networkConfig())
	if err != nil {
		t.Fatal(err)
	}
	back, err := Reflect(ctx, eng, tree.Ptr())
	if err != nil {
		t.Fatal(err)
	}

	got := back.Value()
	wantKeys := []string{"name", "count", "enabled", "rate", "child", "tags", "structures"}
	if !slices.Equal(got.Keys(), wantKeys) {
		t.Fatalf("keys = %v, want %v", got.Keys(), wantKeys)
	}
	if v, _ := got.Get("enabled"); !v.Equal(String("true")) {
		t.Errorf("enabled = %v", v.Raw())
	}
	if v, _ := got.Get("rate"); !v.Equal(String("0.25")) {
		t.Errorf("rate = %v", v.Raw())
	}
	if v, _ := got.Get("tags"); !v.Equal(Seq(String("x"), String("0.5"))) {
		t.Errorf("tags = %s", mustJSON(t, v))
	}
	structures, _ := back.ChildArray("structures")
	if len(structures) != 1 {
		t.Fatalf("structures = %d", len(structures))
	}
	layers, _ := structures[0].ChildArray("layers")
	if size, _ := layers[0].Property("size"); size != "4" {
		t.Errorf("layer size = %q", size)
	}
	if !slices.Equal(layers[0].Path(), []string{"structures", "0", "layers", "0"}) {
		t.Errorf("path = %v", layers[0].Path())
	}
	if _, ok := got.Get("skip"); ok {
		t.Error("null value was sent to the engine")
	}

	if n := eng.LiveArrays(); n != 0 {
		t.Errorf("%d arrays leaked by reflection", n)
	}
	if err := back.Release(ctx); err != nil {
		t.Fatal(err)
	}
	if n := eng.Destroyed(tree.Ptr()); n != 0 {
		t.Errorf("reflected view destroyed the tree %d times", n)
	}

	ptr := tree.Ptr()
	if err := tree.Release(ctx); err != nil {
		t.Fatal(err)
	}
	if err := tree.Release(ctx); err != nil {
		t.Fatal(err)
	}
	if n := eng.Destroyed(ptr); n != 1 {
		t.Errorf("destroyed %d times, want 1", n)
	}
	if eng.LiveTrees() != 0 || eng.DoubleFrees() != 0 {
		t.Errorf("live=%d doubleFrees=%d", eng.LiveTrees(), eng.DoubleFrees())
	}
}

func TestBuild_UnsupportedValueCleansUp(t *testing.T) {
	ctx := context.Background()
	eng := enginetest.New(nil)

	m := NewMap().
		Set("ok", String("1")).
		Set("c", Mapping(NewMap().Set("bad", Scalar(struct{}{}))))
	_, err := Build(ctx, eng, m)
	if kindOf(err) != serrors.KindUnsupported {
		t.Fatalf("err = %v", err)
	}
	var e *serrors.Error
	errors.As(err, &e)
	if !slices.Equal(e.Path, []string{"c", "bad"}) {
		t.Errorf("path = %v", e.Path)
	}
	if eng.LiveTrees() != 0 || eng.DoubleFrees() != 0 {
		t.Errorf("live=%d doubleFrees=%d", eng.LiveTrees(), eng.DoubleFrees())
	}
}

func TestBuildAny_RejectsBeforeForeignCalls(t *testing.T) {
	eng := enginetest.New(nil)
	_, err := BuildAny(context.Background(), eng, map[string]any{
		"a": map[string]any{"b": make(chan int)},
	})
	if kindOf(err) != serrors.KindUnsupported {
		t.Fatalf("err = %v", err)
	}
	if n := eng.Calls(abi.EntryCreateProperties); n != 0 {
		t.Errorf("create_properties called %d times", n)
	}
}

func TestTree_KeyCollision(t *testing.T) {
	ctx := context.Background()
	eng := enginetest.New(nil)
	tree, err := New(ctx, eng)
	if err != nil {
		t.Fatal(err)
	}
	defer tree.Release(ctx)

	if err := tree.AddProperty(ctx, "a", 1); err != nil {
		t.Fatal(err)
	}
	if err := tree.AddProperty(ctx, "a", 2); err != nil {
		t.Fatalf("overwriting a scalar: %v", err)
	}
	if err := tree.AddToArray(ctx, "a", "x"); kindOf(err) != serrors.KindKeyCollision {
		t.Errorf("AddToArray err = %v", err)
	}
	if _, err := tree.AddChild(ctx, "a", NewMap()); kindOf(err) != serrors.KindKeyCollision {
		t.Errorf("AddChild err = %v", err)
	}
	if n := eng.Calls(abi.EntryAddToArray); n != 0 {
		t.Errorf("add_to_array reached the engine %d times", n)
	}
	if n := eng.Calls(abi.EntryCreateProperties); n != 1 {
		t.Errorf("create_properties called %d times, want 1", n)
	}
}

func TestTree_ChildrenShareRootLifetime(t *testing.T) {
	ctx := context.Background()
	eng := enginetest.New(nil)
	tree, err := New(ctx, eng)
	if err != nil {
		t.Fatal(err)
	}
	child, err := tree.AddChild(ctx, "c", NewMap().Set("x", Int(1)))
	if err != nil {
		t.Fatal(err)
	}
	if child.Owned() {
		t.Error("attached child still owns its foreign node")
	}
	if err := child.Release(ctx); err != nil {
		t.Fatal(err)
	}
	if child.Released() {
		t.Error("releasing a child released the tree")
	}
	if err := child.AddProperty(ctx, "y", "2"); err != nil {
		t.Fatal(err)
	}

	if err := tree.Release(ctx); err != nil {
		t.Fatal(err)
	}
	if !child.Released() || !child.Ptr().IsNull() {
		t.Error("child outlived its root")
	}
	if err := child.AddProperty(ctx, "z", "3"); kindOf(err) != serrors.KindReleased {
		t.Errorf("err = %v", err)
	}
	if eng.LiveTrees() != 0 || eng.DoubleFrees() != 0 {
		t.Errorf("live=%d doubleFrees=%d", eng.LiveTrees(), eng.DoubleFrees())
	}
}

func TestTree_OwnershipTable(t *testing.T) {
	ctx := context.Background()
	eng := enginetest.New(nil)
	table := resource.NewTable()

	tree, err := Build(ctx, eng, networkConfig(), WithTable(table))
	if err != nil {
		t.Fatal(err)
	}
	if n := table.Len(); n != 1 {
		t.Errorf("table holds %d handles, want only the root", n)
	}
	if _, ok := table.Owner(tree.Ptr()); !ok {
		t.Error("root not registered")
	}
	if err := tree.Release(ctx); err != nil {
		t.Fatal(err)
	}
	if n := table.Len(); n != 0 {
		t.Errorf("table holds %d handles after release", n)
	}
}

func TestReflect_MissingData(t *testing.T) {
	ctx := context.Background()
	eng := enginetest.New(nil)
	tree, err := Build(ctx, eng, NewMap().Set("a", String("1")))
	if err != nil {
		t.Fatal(err)
	}
	defer tree.Release(ctx)

	eng.ReturnNull(abi.EntryGetProperty)
	_, err = Reflect(ctx, eng, tree.Ptr())
	if kindOf(err) != serrors.KindMissingData {
		t.Fatalf("err = %v", err)
	}
	if n := eng.LiveArrays(); n != 0 {
		t.Errorf("%d key arrays leaked on failure", n)
	}

	if _, err := Reflect(ctx, eng, abi.Null); kindOf(err) != serrors.KindMissingData {
		t.Errorf("Reflect(null) err = %v", err)
	}
}

func TestReflect_EmptyNamespaces(t *testing.T) {
	ctx := context.Background()
	eng := enginetest.New(nil)
	tree, err := Build(ctx, eng, networkConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer tree.Release(ctx)

	built, ok := tree.Child("child")
	if !ok {
		t.Fatal("child not built")
	}
	child, err := Reflect(ctx, eng, built.Ptr())
	if err != nil {
		t.Fatalf("reflect node without arrays: %v", err)
	}
	if keys := child.ArrayKeys(); len(keys) != 0 {
		t.Errorf("array keys = %v, want none", keys)
	}
	if keys := child.ChildArrayKeys(); len(keys) != 0 {
		t.Errorf("child array keys = %v, want none", keys)
	}
	if keys := child.ChildKeys(); len(keys) != 0 {
		t.Errorf("child keys = %v, want none", keys)
	}
	if _, ok := child.Array("k"); ok {
		t.Error("scalar key reported as array")
	}
	if !slices.Equal(child.PropertyKeys(), []string{"k"}) {
		t.Errorf("property keys = %v", child.PropertyKeys())
	}
	if n := eng.LiveArrays(); n != 0 {
		t.Errorf("%d key arrays left after reflect", n)
	}

	empty, err := Build(ctx, eng, NewMap())
	if err != nil {
		t.Fatal(err)
	}
	defer empty.Release(ctx)
	back, err := Reflect(ctx, eng, empty.Ptr())
	if err != nil {
		t.Fatalf("reflect empty node: %v", err)
	}
	if v := back.Value(); len(v.Keys()) != 0 {
		t.Errorf("empty node reflects as %v", v.Keys())
	}
	if n := eng.LiveArrays(); n != 0 {
		t.Errorf("%d key arrays left after reflecting empty node", n)
	}
}

func TestAdopt_DestroysOnRelease(t *testing.T) {
	ctx := context.Background()
	eng := enginetest.New(nil)
	ptr, err := eng.CreateProperties(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := eng.AddProperty(ctx, ptr, "status", "ok"); err != nil {
		t.Fatal(err)
	}

	report, err := Adopt(ctx, eng, ptr)
	if err != nil {
		t.Fatal(err)
	}
	if s, _ := report.Property("status"); s != "ok" {
		t.Errorf("status = %q", s)
	}
	if !report.Owned() {
		t.Error("adopted tree is not owned")
	}
	if err := report.Release(ctx); err != nil {
		t.Fatal(err)
	}
	if n := eng.Destroyed(ptr); n != 1 {
		t.Errorf("destroyed %d times, want 1", n)
	}
}

func TestTree_String(t *testing.T) {
	ctx := context.Background()
	eng := enginetest.New(nil)
	m := NewMap().
		Set("arr", Seq(String("x"))).
		Set("c", Mapping(NewMap().Set("k", Int(2)))).
		Set("z", String("1"))
	tree, err := Build(ctx, eng, m)
	if err != nil {
		t.Fatal(err)
	}
	defer tree.Release(ctx)

	want := `{
    "z": "1",
    "c": {
        "k": "2"
    },
    "arr": [
        "x"
    ]
}`
	if got := tree.String(); got != want {
		t.Errorf("String() =\n%s\nwant\n%s", got, want)
	}
}

func mustJSON(t *testing.T, v Value) string {
	t.Helper()
	b, err := v.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}
