package metrics

// Collector is the interface for metrics collection around export jobs.
// Implementations are the Prometheus-backed collector and a no-op used by
// tests and the CLI.
type Collector interface {
	// JobFinished records a job reaching a terminal state.
	JobFinished(exportType string, status string, durationMs int64)
	// AddRecords adds to the written-record counter for an export type.
	AddRecords(exportType string, n int64)
	// AddBytes adds to the written-byte counter for an export type.
	AddBytes(exportType string, n int64)
	// SetActiveJobs sets the currently-processing job gauge.
	SetActiveJobs(n int64)
	// RecordFallback counts a per-row formatting fallback for a field.
	RecordFallback(field string)
}
