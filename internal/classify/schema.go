package classify

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// BuildClassificationJSONSchema returns a JSON-Schema (draft 2020-12 subset)
// as a generic map. We embed it in the prompt as an output constraint and
// also use it locally to validate what came back.
func BuildClassificationJSONSchema(allowedTypes []string) map[string]any {
	strProp := func() map[string]any { return map[string]any{"type": "string"} }
	detail := func(props ...string) map[string]any {
		p := map[string]any{}
		for _, name := range props {
			p[name] = strProp()
		}
		return map[string]any{
			"type":                 "object",
			"additionalProperties": false,
			"properties":           p,
		}
	}

	props := map[string]any{
		"type":    map[string]any{"type": "string", "enum": allowedTypes},
		"title":   map[string]any{"type": "string", "minLength": 1},
		"summary": strProp(),
		"fields": map[string]any{
			"type":                 "object",
			"additionalProperties": map[string]any{"type": "string"},
		},
		"event":    detail("title", "date", "time", "location"),
		"contact":  detail("title", "name", "phone", "email"),
		"expense":  detail("title", "merchant", "amount", "currency", "date"),
		"address":  detail("title", "address", "city", "country"),
		"note":     detail("title", "text"),
		"document": detail("title", "subject", "date"),
	}

	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           props,
		"required":             []string{"type"},
	}
}

// ValidateJSONAgainstSchema compiles the schema map and validates doc.
func ValidateJSONAgainstSchema(schema map[string]any, doc []byte) error {
	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource("classification.json", bytes.NewReader(schemaJSON)); err != nil {
		return fmt.Errorf("add schema resource: %w", err)
	}
	compiled, err := c.Compile("classification.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}

	var v any
	if err := json.Unmarshal(doc, &v); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	return compiled.Validate(v)
}
