package synth

import "testing"

func TestScriptUDFReturnsValue(t *testing.T) {
	fn := ScriptUDF(`return memory.x + memory.y;`)

	got, err := fn(map[string]any{"x": int64(2), "y": int64(3)})
	if err != nil {
		t.Fatalf("script udf: %v", err)
	}
	if got != int64(5) {
		t.Fatalf("result = %v (%T)", got, got)
	}
}

func TestScriptUDFHelpers(t *testing.T) {
	fn := ScriptUDF(`
		var parsed = jsonParse(memory.raw);
		return JSON_stringify({count: parsed.items.length});
	`)

	got, err := fn(map[string]any{"raw": `{"items": [1, 2, 3]}`})
	if err != nil {
		t.Fatalf("script udf: %v", err)
	}
	if got != `{"count":3}` {
		t.Fatalf("result = %v", got)
	}
}

func TestScriptUDFSyntaxError(t *testing.T) {
	fn := ScriptUDF(`return (;`)

	if _, err := fn(map[string]any{}); err == nil {
		t.Fatal("expected syntax error")
	}
}
