package export

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const datasetSchemaURL = "dataset_row.json"

// datasetRowSchema constrains the rows handed to the fine-tuning pipeline.
var datasetRowSchema = map[string]any{
	"$schema":  "https://json-schema.org/draft/2020-12/schema",
	"type":     "object",
	"required": []string{"doc_id", "input_text", "target_text", "candidates", "meta"},
	"properties": map[string]any{
		"doc_id":      map[string]any{"type": "string", "minLength": 1},
		"input_text":  map[string]any{"type": "string"},
		"target_text": map[string]any{"type": "string"},
		"candidates": map[string]any{
			"type":                 "object",
			"additionalProperties": map[string]any{"type": "string"},
		},
		"meta": map[string]any{
			"type":     "object",
			"required": []string{"source_image", "candidates_keys", "multi_hyp_mode", "selected_candidates"},
			"properties": map[string]any{
				"source_image":        map[string]any{"type": "string"},
				"candidates_keys":     map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				"multi_hyp_mode":      map[string]any{"enum": []string{"concat", "best", "fuse"}},
				"selected_candidates": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			},
		},
	},
}

// rowValidator checks dataset rows against datasetRowSchema.
type rowValidator struct {
	schema *jsonschema.Schema
}

func newRowValidator() (*rowValidator, error) {
	b, err := json.Marshal(datasetRowSchema)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(datasetSchemaURL, bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile(datasetSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &rowValidator{schema: schema}, nil
}

// Validate round-trips row through JSON and validates the generic document.
func (v *rowValidator) Validate(row DatasetRow) error {
	data, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("marshal row: %w", err)
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("unmarshal row: %w", err)
	}
	if err := v.schema.Validate(doc); err != nil {
		return fmt.Errorf("dataset row %s does not match schema: %w", row.DocID, err)
	}
	return nil
}
