package identity

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/idscan/constants"
)

const resultSchemaURL = "mem://idscan/result.json"

// BuildResultJSONSchema describes the serialized Result.
func BuildResultJSONSchema() map[string]any {
	nonEmpty := map[string]any{"type": "string", "minLength": 1}
	types := make([]any, 0, 2)
	for _, dt := range constants.DocumentTypes() {
		types = append(types, string(dt))
	}
	return map[string]any{
		"$schema":              "https://json-schema.org/draft/2020-12/schema",
		"type":                 "object",
		"additionalProperties": false,
		"required":             []any{"name", "document_number", "expiration_date", "document_type"},
		"properties": map[string]any{
			"name":            nonEmpty,
			"document_number": nonEmpty,
			// ISO date, the sentinel, or the raw token when it could not be parsed.
			"expiration_date": map[string]any{
				"anyOf": []any{
					map[string]any{"type": "string", "pattern": `^\d+-\d{2,}-\d{2,}$`},
					map[string]any{"const": constants.NotFound},
					nonEmpty,
				},
			},
			"document_type": map[string]any{"type": "string", "enum": types},
			"matched_rules": map[string]any{
				"type":                 "object",
				"propertyNames":        map[string]any{"enum": []any{"name", "document_number", "expiration_date"}},
				"additionalProperties": nonEmpty,
			},
		},
	}
}

var compiledResultSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	raw, err := json.Marshal(BuildResultJSONSchema())
	if err != nil {
		return nil, fmt.Errorf("marshal result schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(resultSchemaURL, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("add result schema: %w", err)
	}
	s, err := c.Compile(resultSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile result schema: %w", err)
	}
	return s, nil
})

// ValidateResultJSON checks serialized result bytes against the result schema.
func ValidateResultJSON(data []byte) error {
	schema, err := compiledResultSchema()
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("decode result json: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("result json invalid: %w", err)
	}
	return nil
}
