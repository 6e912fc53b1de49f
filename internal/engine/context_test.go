package engine

import "testing"

func TestNewContext_TriggerWins(t *testing.T) {
	ctx := NewContext(
		map[string]any{"a": 1, "b": 2},
		map[string]any{"b": 20, "c": 30},
	)

	if v, _ := ctx.Lookup("a"); v != 1 {
		t.Errorf("expected default a=1, got %v", v)
	}
	// Trigger перекрывает defaults
	if v, _ := ctx.Lookup("b"); v != 20 {
		t.Errorf("expected trigger b=20, got %v", v)
	}
	if v, _ := ctx.Lookup("c"); v != 30 {
		t.Errorf("expected trigger c=30, got %v", v)
	}
}

func TestContext_Lookup(t *testing.T) {
	ctx := NewContext(map[string]any{
		"device": map[string]any{
			"meta": map[string]any{"id": "d-1"},
		},
	}, nil)

	if v, ok := ctx.Lookup("device.meta.id"); !ok || v != "d-1" {
		t.Errorf("expected d-1, got %v (ok=%v)", v, ok)
	}
	if _, ok := ctx.Lookup("device.meta.missing"); ok {
		t.Error("expected miss for absent leaf")
	}
	if _, ok := ctx.Lookup("device.meta.id.deeper"); ok {
		t.Error("expected miss when traversing through scalar")
	}
}

func TestContext_Flatten(t *testing.T) {
	ctx := NewContext(map[string]any{
		"a": 1,
		"b": map[string]any{"c": 2},
	}, nil)

	flat := ctx.Flatten()
	if flat["a"] != 1 {
		t.Errorf("expected a=1, got %v", flat["a"])
	}
	if flat["b.c"] != 2 {
		t.Errorf("expected b.c=2, got %v", flat["b.c"])
	}
	// Узел-map тоже присутствует под своим путём
	if _, ok := flat["b"].(map[string]any); !ok {
		t.Errorf("expected b to be present as map, got %v", flat["b"])
	}
}

func TestContext_SnapshotIsDeepCopy(t *testing.T) {
	ctx := NewContext(map[string]any{
		"nested": map[string]any{"v": "before"},
	}, nil)

	snap := ctx.Snapshot()

	// Мутация контекста после снимка не видна в снимке
	nested, _ := ctx.Lookup("nested")
	nested.(map[string]any)["v"] = "after"

	if snap["nested"].(map[string]any)["v"] != "before" {
		t.Error("snapshot should not observe later mutations")
	}
}
