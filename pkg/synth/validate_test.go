package synth

import "testing"

func TestValidateSchemaObject(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name": map[string]any{"type": "string"},
		},
		"required": []any{"name"},
	}

	if err := validateSchema(map[string]any{"name": "ok"}, schema); err != nil {
		t.Fatalf("valid instance rejected: %v", err)
	}

	if err := validateSchema(map[string]any{"name": float64(1)}, schema); err == nil {
		t.Fatal("wrong type accepted")
	}

	if err := validateSchema(map[string]any{}, schema); err == nil {
		t.Fatal("missing required accepted")
	}
}

func TestValidateSchemaArray(t *testing.T) {
	schema := map[string]any{
		"type":  "array",
		"items": map[string]any{"type": "string"},
	}

	if err := validateSchema([]any{"a", "b"}, schema); err != nil {
		t.Fatalf("valid array rejected: %v", err)
	}
	if err := validateSchema([]any{"a", float64(2)}, schema); err == nil {
		t.Fatal("mixed array accepted")
	}
}

func TestSchemaIsString(t *testing.T) {
	if !schemaIsString(map[string]any{"type": "string"}) {
		t.Fatal("string schema not detected")
	}
	if schemaIsString(map[string]any{"type": "object"}) {
		t.Fatal("object schema detected as string")
	}
	if schemaIsString(nil) {
		t.Fatal("nil schema detected as string")
	}
}
