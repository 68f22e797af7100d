// Package schema validates raw export request bodies against a JSON
// Schema before they are decoded into an entity.ExportRequest. Schema
// validation catches shape errors (wrong types, unknown keys) early with
// precise paths; semantic checks stay in entity.ExportRequest.Validate.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/artisthq/exportd/constants"
	"github.com/artisthq/exportd/internal/common"
)

// BuildExportRequestSchema returns a JSON-Schema (draft 2020-12 subset) for
// the request body as a generic map.
func BuildExportRequestSchema() map[string]any {
	datetime := map[string]any{"type": "string", "format": "date-time"}

	var types []string
	for _, t := range constants.AllExportTypes() {
		types = append(types, string(t))
	}

	props := map[string]any{
		"export_type": map[string]any{"type": "string", "enum": types},
		"date_from":   datetime,
		"date_to":     datetime,
		"filters": map[string]any{
			"type":                 "object",
			"additionalProperties": map[string]any{"type": "string"},
		},
		"fields": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string", "minLength": 1},
		},
		"privacy_level": map[string]any{
			"type": "string",
			"enum": []string{
				string(constants.PrivacyLevelPublic),
				string(constants.PrivacyLevelInternal),
				string(constants.PrivacyLevelStrict),
			},
		},
		"format": map[string]any{
			"type": "string",
			"enum": []string{string(constants.FormatCSV), string(constants.FormatXLSX)},
		},
		"no_headers": map[string]any{"type": "boolean"},
	}

	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           props,
		"required":             []string{"export_type", "privacy_level"},
	}
}

var (
	compileOnce sync.Once
	compiled    *jsonschema.Schema
	compileErr  error
)

func requestSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		b, err := json.Marshal(BuildExportRequestSchema())
		if err != nil {
			compileErr = fmt.Errorf("marshal schema: %w", err)
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("export_request.json", bytes.NewReader(b)); err != nil {
			compileErr = fmt.Errorf("add schema: %w", err)
			return
		}
		compiled, compileErr = compiler.Compile("export_request.json")
	})
	return compiled, compileErr
}

// ValidateExportRequest checks a raw JSON body against the request schema.
// Shape violations come back wrapped in common.ErrValidation.
func ValidateExportRequest(data []byte) error {
	s, err := requestSchema()
	if err != nil {
		return common.WrapError(err, "request schema")
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return common.ValidationErrorf("body is not valid JSON: %v", err)
	}
	if err := s.Validate(v); err != nil {
		return common.ValidationErrorf("body does not match request schema: %v", err)
	}
	return nil
}
