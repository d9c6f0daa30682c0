package engine

import "testing"

func TestContextBuilder(t *testing.T) {
	b := NewContextBuilder()
	b.Set("data", "frame").Set("Amount", []any{1, 2}).Set("Year", []any{2020, 2021})
	b.Set("data", "replaced")
	b.Delete("Year")
	b.Delete("missing")

	ctx := b.Build()

	keys := ctx.Keys()
	if len(keys) != 2 || keys[0] != "data" || keys[1] != "Amount" {
		t.Fatalf("Keys() = %v, want [data Amount]", keys)
	}

	data, ok := ctx.Data()
	if !ok || data != "replaced" {
		t.Errorf("Data() = %v, %v", data, ok)
	}

	keys[0] = "mutated"
	if ctx.Keys()[0] != "data" {
		t.Error("Keys() must return a copy")
	}

	m := ctx.Map()
	delete(m, "Amount")
	if _, ok := ctx.Get("Amount"); !ok {
		t.Error("Map() must return a copy")
	}
}

func TestNewResolvedContext(t *testing.T) {
	ctx := NewResolvedContext(map[string]any{"b": 2, "a": 1, "c": 3})
	keys := ctx.Keys()
	want := []string{"a", "b", "c"}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("Keys() = %v, want %v", keys, want)
		}
	}
	if ctx.Len() != 3 {
		t.Errorf("Len() = %d, want 3", ctx.Len())
	}
}

func TestResolvedContext_Nil(t *testing.T) {
	var ctx *ResolvedContext
	if _, ok := ctx.Get("x"); ok {
		t.Error("nil context should not contain entries")
	}
	if ctx.Len() != 0 || ctx.Keys() != nil || len(ctx.Map()) != 0 {
		t.Error("nil context should be empty")
	}
}
