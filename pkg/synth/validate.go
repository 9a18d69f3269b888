package synth

import (
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// jsonschemaPrelude pins validation to draft-04, matching the dialect the
// pipeline documents are written against.
const jsonschemaPrelude = "http://json-schema.org/draft-04/schema#"

// validateSchema validates a decoded JSON instance against the output's
// schema with the draft-04 prelude applied.
func validateSchema(instance any, schema map[string]any) error {
	doc := make(map[string]any, len(schema)+1)
	doc["$schema"] = jsonschemaPrelude
	for k, v := range schema {
		doc[k] = v
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("output.schema.json", doc); err != nil {
		return fmt.Errorf("add schema resource: %w", err)
	}

	compiled, err := compiler.Compile("output.schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}

	if err := compiled.Validate(instance); err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}

	return nil
}

// schemaIsString reports whether the schema accepts the raw streamed text
// verbatim (top-level type "string").
func schemaIsString(schema map[string]any) bool {
	t, _ := schema["type"].(string)
	return t == "string"
}
