package llm

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// BuildDocumentJSONSchema describes the extraction payload. It is sent
// to the model as a structured-output constraint and used locally to
// validate the response.
func BuildDocumentJSONSchema() map[string]any {
	candidate := map[string]any{
		"type":     "object",
		"required": []string{"text"},
		"properties": map[string]any{
			"text":     map[string]any{"type": "string"},
			"is_red":   map[string]any{"type": "boolean"},
			"position": map[string]any{"type": "string"},
		},
	}
	item := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"qty":            map[string]any{"type": "number"},
			"price":          map[string]any{"type": "number"},
			"unit":           map[string]any{"type": "string"},
			"raw_style_text": map[string]any{"type": "string"},
			"description":    map[string]any{"type": "string"},
		},
	}

	return map[string]any{
		"type":     "object",
		"required": []string{"supplier_name", "style_candidates", "items"},
		"properties": map[string]any{
			"delivery_date":         map[string]any{"type": "string"},
			"buyer_name":            map[string]any{"type": "string"},
			"supplier_name":         map[string]any{"type": "string"},
			"delivery_order_number": map[string]any{"type": "string"},
			"final_selected_style":  map[string]any{"type": "string"},
			"style_candidates":      map[string]any{"type": "array", "items": candidate},
			"items":                 map[string]any{"type": "array", "items": item},
		},
	}
}

func BuildDecisionJSONSchema() map[string]any {
	direct := map[string]any{
		"type":     "object",
		"required": []string{"record_id", "ocr_index"},
		"properties": map[string]any{
			"record_id": map[string]any{"type": "string"},
			"ocr_index": map[string]any{"type": "integer"},
		},
	}
	merge := map[string]any{
		"type":     "object",
		"required": []string{"record_id", "ocr_indices"},
		"properties": map[string]any{
			"record_id":   map[string]any{"type": "string"},
			"ocr_indices": map[string]any{"type": "array", "items": map[string]any{"type": "integer"}},
		},
	}

	return map[string]any{
		"type":     "object",
		"required": []string{"status"},
		"properties": map[string]any{
			"status":         map[string]any{"type": "string", "enum": []string{"success", "fail"}},
			"direct_matches": map[string]any{"type": "array", "items": direct},
			"merge_matches":  map[string]any{"type": "array", "items": merge},
			"split_matches":  map[string]any{"type": "array", "items": direct},
			"reason":         map[string]any{"type": "string"},
		},
	}
}

func ValidateJSONAgainstSchema(schema map[string]any, raw []byte) error {
	blob, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(blob)); err != nil {
		return fmt.Errorf("add schema resource: %w", err)
	}
	compiled, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}

	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return compiled.Validate(value)
}
