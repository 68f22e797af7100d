package entity

import (
	"time"

	"github.com/artisthq/exportd/constants"
	"github.com/artisthq/exportd/internal/common"
)

// ExportRequest describes one export intent. Built once from API/CLI input,
// validated immediately, never mutated afterwards.
type ExportRequest struct {
	ExportType   constants.ExportType   `json:"export_type"`
	DateFrom     time.Time              `json:"date_from,omitzero"`
	DateTo       time.Time              `json:"date_to,omitzero"`
	Filters      map[string]string      `json:"filters,omitempty"`
	Fields       []string               `json:"fields,omitempty"`
	PrivacyLevel constants.PrivacyLevel `json:"privacy_level"`
	Format       constants.Format       `json:"format,omitempty"`
	NoHeaders    bool                   `json:"no_headers,omitempty"`
}

// Normalize fills defaults: CSV format, default field set for the type.
// Call after Validate.
func (r *ExportRequest) Normalize() {
	if r.Format == "" {
		r.Format = constants.FormatCSV
	}
	if len(r.Fields) == 0 {
		r.Fields = DefaultFields(r.ExportType)
	}
}

// Validate checks the request before any job is created. Every failure wraps
// common.ErrValidation so the surfaces can map it to 422 / a distinct exit code.
func (r *ExportRequest) Validate() error {
	if _, ok := constants.ParseExportType(string(r.ExportType)); !ok {
		return common.ValidationErrorf("unknown export_type %q", r.ExportType)
	}
	if _, ok := constants.ParsePrivacyLevel(string(r.PrivacyLevel)); !ok {
		return common.ValidationErrorf("unknown privacy_level %q", r.PrivacyLevel)
	}
	if _, ok := constants.ParseFormat(string(r.Format)); !ok {
		return common.ValidationErrorf("unknown format %q", r.Format)
	}
	if !r.DateFrom.IsZero() && !r.DateTo.IsZero() && r.DateTo.Before(r.DateFrom) {
		return common.ValidationErrorf("date_from %s is after date_to %s",
			r.DateFrom.Format(time.RFC3339), r.DateTo.Format(time.RFC3339))
	}
	for _, f := range r.Fields {
		if !IsPermittedField(r.ExportType, f) {
			return common.ValidationErrorf("field %q is not exportable for %s", f, r.ExportType)
		}
	}
	for k := range r.Filters {
		if !IsPermittedField(r.ExportType, k) {
			return common.ValidationErrorf("filter field %q is not known for %s", k, r.ExportType)
		}
	}
	return nil
}

// Mapping returns the identity field mapping for the request's field list.
func (r *ExportRequest) Mapping() FieldMapping {
	fields := r.Fields
	if len(fields) == 0 {
		fields = DefaultFields(r.ExportType)
	}
	return IdentityMapping(fields)
}
