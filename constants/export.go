package constants

import "strings"

// ExportType identifies which record store an export pulls from.
type ExportType string

const (
	ExportTypeEvaluationResults  ExportType = "evaluation_results"
	ExportTypePerformanceMetrics ExportType = "performance_metrics"
	ExportTypeAgentInteractions  ExportType = "agent_interactions"
)

var allExportTypes = []ExportType{
	ExportTypeEvaluationResults,
	ExportTypePerformanceMetrics,
	ExportTypeAgentInteractions,
}

// AllExportTypes returns the known export types.
func AllExportTypes() []ExportType {
	out := make([]ExportType, len(allExportTypes))
	copy(out, allExportTypes)
	return out
}

// ParseExportType normalizes and validates an export type string.
func ParseExportType(s string) (ExportType, bool) {
	t := ExportType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range allExportTypes {
		if t == known {
			return known, true
		}
	}
	return "", false
}

// PrivacyLevel selects which sensitive-field set the privacy filter applies.
// Strictness grows left to right: public < internal < strict. A stricter
// level redacts a superset of what the weaker levels redact.
type PrivacyLevel string

const (
	PrivacyLevelPublic   PrivacyLevel = "public"
	PrivacyLevelInternal PrivacyLevel = "internal"
	PrivacyLevelStrict   PrivacyLevel = "strict"
)

var privacyRank = map[PrivacyLevel]int{
	PrivacyLevelPublic:   0,
	PrivacyLevelInternal: 1,
	PrivacyLevelStrict:   2,
}

// ParsePrivacyLevel normalizes and validates a privacy level string.
func ParsePrivacyLevel(s string) (PrivacyLevel, bool) {
	l := PrivacyLevel(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := privacyRank[l]; !ok {
		return "", false
	}
	return l, true
}

// AtLeastAsStrict reports whether l redacts at least as much as floor.
func (l PrivacyLevel) AtLeastAsStrict(floor PrivacyLevel) bool {
	return privacyRank[l] >= privacyRank[floor]
}

// Format is the artifact serialization format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat normalizes and validates a format string. Empty defaults to CSV.
func ParseFormat(s string) (Format, bool) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatCSV:
		return FormatCSV, true
	case FormatXLSX:
		return FormatXLSX, true
	}
	return "", false
}

// Extension returns the artifact file extension for the format.
func (f Format) Extension() string {
	if f == FormatXLSX {
		return ".xlsx"
	}
	return ".csv"
}

// ContentType returns the HTTP content type for download responses.
func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv"
}

// RedactionMarker replaces sensitive values in exported rows.
const RedactionMarker = "[REDACTED]"
