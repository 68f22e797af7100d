// Package pipeline holds the pure per-row transforms between a data source
// and a writer: privacy redaction, allow-list field mapping, and value
// formatting. No I/O happens here.
package pipeline

import (
	"github.com/artisthq/exportd/constants"
	"github.com/artisthq/exportd/internal/entity"
)

// RowPipeline turns one raw source record into one formatted output row.
//
// Order matters: redaction runs on source field names before mapping, so a
// rename can never bypass the filter; a second pass after mapping also
// catches sensitive sets configured against output names.
type RowPipeline struct {
	Mapping   entity.FieldMapping
	Sensitive map[string]struct{}
	Marker    string

	// OnFallback, if set, is called with the output column name whenever a
	// value could not be formatted and the placeholder was substituted.
	OnFallback func(field string)
}

// NewRowPipeline wires the standard pipeline for a validated request.
func NewRowPipeline(req *entity.ExportRequest) *RowPipeline {
	return &RowPipeline{
		Mapping:   req.Mapping(),
		Sensitive: entity.SensitiveFields(req.PrivacyLevel),
		Marker:    constants.RedactionMarker,
	}
}

// Header returns the output column names in declared order.
func (p *RowPipeline) Header() []string {
	return p.Mapping.Targets()
}

// Apply runs redact -> map -> redact -> format for a single record.
func (p *RowPipeline) Apply(rec entity.Record) entity.Row {
	redacted := Redact(rec, p.Sensitive, p.Marker)
	mapped := ApplyMapping(redacted, p.Mapping)
	mapped = Redact(mapped, p.Sensitive, p.Marker)

	row := make(entity.Row, len(mapped))
	for k, v := range mapped {
		s, ok := FormatValue(v)
		if !ok && p.OnFallback != nil {
			p.OnFallback(k)
		}
		row[k] = s
	}
	return row
}
