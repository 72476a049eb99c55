package catalog_test

import (
	"encoding/json"
	"testing"

	"github.com/hookline/hookline/catalog"
)

func TestValidatorNilSchema(t *testing.T) {
	v := catalog.NewValidator()

	if err := v.Validate(nil, map[string]any{"key": "value"}); err != nil {
		t.Fatal("nil schema should skip validation, got:", err)
	}
}

func TestValidatorValidPayload(t *testing.T) {
	v := catalog.NewValidator()

	schema := json.RawMessage(`{
		"type": "object",
		"properties": {
			"amount":   {"type": "number"},
			"currency": {"type": "string"}
		},
		"required": ["amount", "currency"]
	}`)

	data := map[string]any{
		"amount":   100.50,
		"currency": "USD",
	}

	if err := v.Validate(schema, data); err != nil {
		t.Fatal("valid payload should pass, got:", err)
	}
}

func TestValidatorMissingRequired(t *testing.T) {
	v := catalog.NewValidator()

	schema := json.RawMessage(`{
		"type": "object",
		"properties": {"name": {"type": "string"}},
		"required": ["name"]
	}`)

	if err := v.Validate(schema, map[string]any{"other": "value"}); err == nil {
		t.Fatal("expected validation error for missing required field")
	}
}

func TestValidatorWrongType(t *testing.T) {
	v := catalog.NewValidator()

	schema := json.RawMessage(`{
		"type": "object",
		"properties": {"count": {"type": "integer"}}
	}`)

	if err := v.Validate(schema, map[string]any{"count": "not-a-number"}); err == nil {
		t.Fatal("expected validation error for wrong type")
	}
}

func TestValidatorCompileRejectsMalformedSchema(t *testing.T) {
	v := catalog.NewValidator()

	if err := v.Compile(json.RawMessage(`{"type": 42}`)); err == nil {
		t.Fatal("expected compile error for malformed schema")
	}
}

func TestValidatorCaching(t *testing.T) {
	v := catalog.NewValidator()

	schema := json.RawMessage(`{
		"type": "object",
		"properties": {"x": {"type": "string"}}
	}`)

	data := map[string]any{"x": "hello"}

	// First call compiles the schema.
	if err := v.Validate(schema, data); err != nil {
		t.Fatal(err)
	}

	// Second call should use cached schema.
	if err := v.Validate(schema, data); err != nil {
		t.Fatal(err)
	}
}
