// Package repository is the synchronized job registry behind the export
// engine. Implementations (in-memory, SQLite, Postgres) all enforce the
// same lifecycle rules so pipeline logic never has to: terminal states are
// immutable and progress never decreases.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/artisthq/exportd/internal/entity"
)

// ErrIllegalTransition is returned when an update would move a job out of a
// terminal state or skip a lifecycle step.
var ErrIllegalTransition = errors.New("illegal job status transition")

type ExportJobRepository interface {
	Create(ctx context.Context, job *entity.ExportJob) error
	Get(ctx context.Context, id uuid.UUID) (*entity.ExportJob, error)
	ListByCaller(ctx context.Context, callerID string) ([]*entity.ExportJob, error)

	// MarkProcessing moves PENDING -> PROCESSING.
	MarkProcessing(ctx context.Context, id uuid.UUID, startedAt time.Time) error
	// UpdateProgress raises progress while PROCESSING; lower values are ignored.
	UpdateProgress(ctx context.Context, id uuid.UUID, progress int) error
	// MarkCompleted moves PROCESSING -> COMPLETED and records the artifact.
	MarkCompleted(ctx context.Context, id uuid.UUID, recordCount, fileSizeBytes int64, filePath string, completedAt time.Time) error
	// MarkFailed moves PENDING|PROCESSING -> FAILED with an error detail.
	MarkFailed(ctx context.Context, id uuid.UUID, detail string, completedAt time.Time) error

	// DeleteFinishedBefore removes terminal jobs whose completion is older
	// than the cutoff and returns them so the caller can remove artifacts.
	DeleteFinishedBefore(ctx context.Context, cutoff time.Time) ([]*entity.ExportJob, error)
}

func clampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
