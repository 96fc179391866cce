package typeguard

import (
	"encoding/json"
	"fmt"

	"github.com/kaptinlin/jsonschema"
)

// SchemaValidator checks raw tool-call arguments against a JSON schema before
// anything downstream reads them.
type SchemaValidator struct {
	schema *jsonschema.Schema
}

// NewSchemaValidator compiles schema (a JSON schema document)
func NewSchemaValidator(schema []byte) (*SchemaValidator, error) {
	compiler := jsonschema.NewCompiler()
	compiled, err := compiler.Compile(schema)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &SchemaValidator{schema: compiled}, nil
}

// Decode validates data and decodes it into a generic object
func (v *SchemaValidator) Decode(data []byte) (map[string]any, error) {
	result := v.schema.ValidateJSON(data)
	if !result.IsValid() {
		return nil, fmt.Errorf("schema validation failed: %v", result.Errors)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return out, nil
}
