package metrics

// NoopCollector is a no-op implementation used by tests and the CLI.
type NoopCollector struct{}

// NewNoopCollector creates a no-op collector
func NewNoopCollector() *NoopCollector {
	return &NoopCollector{}
}

func (n *NoopCollector) JobFinished(exportType string, status string, durationMs int64) {}

func (n *NoopCollector) AddRecords(exportType string, count int64) {}

func (n *NoopCollector) AddBytes(exportType string, count int64) {}

func (n *NoopCollector) SetActiveJobs(count int64) {}

func (n *NoopCollector) RecordFallback(field string) {}
