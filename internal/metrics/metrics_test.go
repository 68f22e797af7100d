package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusCollectorJobFinished(t *testing.T) {
	collector := NewCollector()

	collector.JobFinished("evaluation_results", "COMPLETED", 1200)
	collector.JobFinished("evaluation_results", "COMPLETED", 800)
	collector.JobFinished("evaluation_results", "FAILED", 50)
	collector.JobFinished("agent_interactions", "COMPLETED", 300)

	if got := testutil.CollectAndCount(collector.jobsTotal); got != 3 {
		t.Errorf("expected 3 metric series, got %d", got)
	}

	completed := testutil.ToFloat64(collector.jobsTotal.WithLabelValues("evaluation_results", "COMPLETED"))
	if completed != 2 {
		t.Errorf("expected 2 completed evaluation_results jobs, got %f", completed)
	}

	failed := testutil.ToFloat64(collector.jobsTotal.WithLabelValues("evaluation_results", "FAILED"))
	if failed != 1 {
		t.Errorf("expected 1 failed evaluation_results job, got %f", failed)
	}
}

func TestPrometheusCollectorCounters(t *testing.T) {
	collector := NewCollector()

	collector.AddRecords("performance_metrics", 500)
	collector.AddRecords("performance_metrics", 250)
	collector.AddBytes("performance_metrics", 1024)
	collector.RecordFallback("payload")
	collector.SetActiveJobs(3)

	if got := testutil.ToFloat64(collector.recordsTotal.WithLabelValues("performance_metrics")); got != 750 {
		t.Errorf("expected 750 records, got %f", got)
	}
	if got := testutil.ToFloat64(collector.bytesTotal.WithLabelValues("performance_metrics")); got != 1024 {
		t.Errorf("expected 1024 bytes, got %f", got)
	}
	if got := testutil.ToFloat64(collector.fallbacksTotal.WithLabelValues("payload")); got != 1 {
		t.Errorf("expected 1 fallback, got %f", got)
	}
	if got := testutil.ToFloat64(collector.activeJobs); got != 3 {
		t.Errorf("expected 3 active jobs, got %f", got)
	}
}
