package engine

import (
	"context"
	"time"
)

// RunJanitor periodically deletes finished jobs older than the retention
// window together with their artifacts. Blocks until ctx is done.
func (e *Engine) RunJanitor(ctx context.Context, retention, interval time.Duration) error {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			e.Sweep(ctx, retention)
		}
	}
}

// Sweep runs one retention pass.
func (e *Engine) Sweep(ctx context.Context, retention time.Duration) {
	cutoff := time.Now().UTC().Add(-retention)
	removed, err := e.repo.DeleteFinishedBefore(ctx, cutoff)
	if err != nil {
		e.logger.Error("retention sweep failed", "err", err)
		return
	}
	for _, job := range removed {
		e.artifacts.Remove(job.ID, job.Request.Format)
	}
	if len(removed) > 0 {
		e.logger.Info("retention sweep", "removed", len(removed), "cutoff", cutoff)
	}
}
