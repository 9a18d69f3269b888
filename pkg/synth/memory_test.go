package synth

import "testing"

func TestMemoryOrderAndMerge(t *testing.T) {
	m := NewMemory()
	m.Set("b", 1)
	m.Set("a", 2)
	m.Merge(map[string]any{"b": 3})

	keys := m.Keys()
	if len(keys) != 2 || keys[0] != "b" || keys[1] != "a" {
		t.Fatalf("keys = %v, want [b a]", keys)
	}

	if v, _ := m.Get("b"); v != 3 {
		t.Fatalf("merge right operand must win, got %v", v)
	}
}

func TestMemoryGetDefault(t *testing.T) {
	m := NewMemory()

	if v := m.GetDefault("missing", "fallback"); v != "fallback" {
		t.Fatalf("GetDefault = %v", v)
	}

	m.Set("present", 42)
	if v := m.GetDefault("present", 0); v != 42 {
		t.Fatalf("GetDefault = %v", v)
	}
}

func TestMemoryAppend(t *testing.T) {
	m := NewMemory()

	if err := m.Append("list", "one"); err != nil {
		t.Fatalf("append to absent key: %v", err)
	}
	if err := m.Append("list", "two"); err != nil {
		t.Fatalf("append: %v", err)
	}

	v, _ := m.Get("list")
	list := v.([]any)
	if len(list) != 2 || list[0] != "one" || list[1] != "two" {
		t.Fatalf("list = %v", list)
	}

	m.Set("scalar", 1)
	if err := m.Append("scalar", 2); err == nil {
		t.Fatal("expected error appending to a non-list")
	}
}

func TestMemorySnapshotIsolation(t *testing.T) {
	m := NewMemory()
	m.Set("k", "v")

	snap := m.Snapshot()
	snap["k"] = "changed"
	snap["new"] = true

	if v, _ := m.Get("k"); v != "v" {
		t.Fatalf("snapshot mutation leaked into memory: %v", v)
	}
	if _, ok := m.Get("new"); ok {
		t.Fatal("snapshot insertion leaked into memory")
	}
}

func TestDeepCopy(t *testing.T) {
	original := map[string]any{"nested": []any{map[string]any{"a": float64(1)}}}

	copied := deepCopy(original).(map[string]any)
	copied["nested"].([]any)[0].(map[string]any)["a"] = float64(9)

	if original["nested"].([]any)[0].(map[string]any)["a"] != float64(1) {
		t.Fatal("deepCopy shares nested structure")
	}
}
