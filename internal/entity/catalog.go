package entity

import "github.com/artisthq/exportd/constants"

// Field catalogs per export type. defaultFields is what an empty request
// exports; permittedFields is the full set a caller may name explicitly.
// Anything outside the permitted set is rejected at validation time, so new
// source columns never leak into existing export configurations by default.

var defaultFields = map[constants.ExportType][]string{
	constants.ExportTypeEvaluationResults: {
		"test_id", "model", "score", "passed", "duration_ms", "started_at", "suite",
	},
	constants.ExportTypePerformanceMetrics: {
		"metric_name", "value", "unit", "recorded_at", "component",
	},
	constants.ExportTypeAgentInteractions: {
		"interaction_id", "agent_name", "started_at", "duration_ms", "token_count", "outcome",
	},
}

var permittedFields = map[constants.ExportType][]string{
	constants.ExportTypeEvaluationResults: {
		"test_id", "model", "score", "passed", "duration_ms", "started_at", "suite",
		"error_message", "prompt", "response", "user_id", "api_key",
	},
	constants.ExportTypePerformanceMetrics: {
		"metric_name", "value", "unit", "recorded_at", "component",
		"host", "user_id", "ip_address",
	},
	constants.ExportTypeAgentInteractions: {
		"interaction_id", "agent_name", "started_at", "duration_ms", "token_count", "outcome",
		"prompt", "response", "user_id", "user_email", "session_token",
	},
}

// DefaultFields returns the field set used when a request names none.
func DefaultFields(t constants.ExportType) []string {
	fields := defaultFields[t]
	out := make([]string, len(fields))
	copy(out, fields)
	return out
}

// IsPermittedField reports whether field may be requested for export type t.
func IsPermittedField(t constants.ExportType, field string) bool {
	for _, f := range permittedFields[t] {
		if f == field {
			return true
		}
	}
	return false
}
