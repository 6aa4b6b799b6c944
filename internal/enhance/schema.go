package enhance

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// responseSchema is what the model must return.
var responseSchema = map[string]any{
	"type":     "object",
	"required": []string{"transactions", "confidence"},
	"properties": map[string]any{
		"confidence": map[string]any{"type": "number", "minimum": 0, "maximum": 1},
		"transactions": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":     "object",
				"required": []string{"date", "amount", "description"},
				"properties": map[string]any{
					"date":        map[string]any{"type": "string", "pattern": `^\d{4}-\d{2}-\d{2}$`},
					"amount":      map[string]any{"type": "number"},
					"description": map[string]any{"type": "string", "minLength": 1},
					"merchant":    map[string]any{"type": "string"},
					"reference":   map[string]any{"type": "string"},
					"balance":     map[string]any{"type": "number"},
					"direction":   map[string]any{"enum": []string{"debit", "credit"}},
				},
			},
		},
	},
}

func compileSchema(schemaMap map[string]any) (*jsonschema.Schema, error) {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("enhance.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("enhance.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

func validate(schema *jsonschema.Schema, data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}

// cleanMarkdownWrapper strips a ```json fence and any text around the
// outermost JSON object.
func cleanMarkdownWrapper(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```JSON")
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	}
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start >= 0 && end > start {
		content = content[start : end+1]
	}
	return strings.TrimSpace(content)
}
