package repository

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/artisthq/exportd/constants"
	"github.com/artisthq/exportd/internal/common"
	"github.com/artisthq/exportd/internal/entity"
)

// MemoryJobRepository keeps jobs in a process-local map. Default backend;
// suitable for single-process deployments and tests.
type MemoryJobRepository struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]*entity.ExportJob
	log  *slog.Logger
}

func NewMemoryJobRepository(log *slog.Logger) *MemoryJobRepository {
	if log == nil {
		log = slog.Default()
	}
	return &MemoryJobRepository{jobs: make(map[uuid.UUID]*entity.ExportJob), log: log}
}

func copyJob(j *entity.ExportJob) *entity.ExportJob {
	c := *j
	return &c
}

func (r *MemoryJobRepository) Create(_ context.Context, job *entity.ExportJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = copyJob(job)
	r.log.Info("export_job created", "job_id", job.ID, "caller", job.CallerID, "type", job.Request.ExportType)
	return nil
}

func (r *MemoryJobRepository) Get(_ context.Context, id uuid.UUID) (*entity.ExportJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return copyJob(j), nil
}

func (r *MemoryJobRepository) ListByCaller(_ context.Context, callerID string) ([]*entity.ExportJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*entity.ExportJob
	for _, j := range r.jobs {
		if j.CallerID == callerID {
			out = append(out, copyJob(j))
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.After(out[k].CreatedAt) })
	return out, nil
}

func (r *MemoryJobRepository) MarkProcessing(_ context.Context, id uuid.UUID, startedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return common.ErrNotFound
	}
	if j.Status != constants.JobStatusPending {
		return ErrIllegalTransition
	}
	j.Status = constants.JobStatusProcessing
	j.StartedAt = &startedAt
	r.log.Info("export_job processing", "job_id", id)
	return nil
}

func (r *MemoryJobRepository) UpdateProgress(_ context.Context, id uuid.UUID, progress int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return common.ErrNotFound
	}
	if j.Status != constants.JobStatusProcessing {
		return ErrIllegalTransition
	}
	if p := clampProgress(progress); p > j.Progress {
		j.Progress = p
	}
	return nil
}

func (r *MemoryJobRepository) MarkCompleted(_ context.Context, id uuid.UUID, recordCount, fileSizeBytes int64, filePath string, completedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return common.ErrNotFound
	}
	if j.Status != constants.JobStatusProcessing {
		return ErrIllegalTransition
	}
	j.Status = constants.JobStatusCompleted
	j.Progress = 100
	j.RecordCount = &recordCount
	j.FileSizeBytes = &fileSizeBytes
	j.FilePath = &filePath
	j.CompletedAt = &completedAt
	r.log.Info("export_job completed", "job_id", id, "records", recordCount, "bytes", fileSizeBytes)
	return nil
}

func (r *MemoryJobRepository) MarkFailed(_ context.Context, id uuid.UUID, detail string, completedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return common.ErrNotFound
	}
	if j.Status.IsTerminal() {
		return ErrIllegalTransition
	}
	j.Status = constants.JobStatusFailed
	j.ErrorDetail = &detail
	j.CompletedAt = &completedAt
	r.log.Warn("export_job failed", "job_id", id, "error", detail)
	return nil
}

func (r *MemoryJobRepository) DeleteFinishedBefore(_ context.Context, cutoff time.Time) ([]*entity.ExportJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed []*entity.ExportJob
	for id, j := range r.jobs {
		if j.Status.IsTerminal() && j.CompletedAt != nil && j.CompletedAt.Before(cutoff) {
			removed = append(removed, copyJob(j))
			delete(r.jobs, id)
		}
	}
	return removed, nil
}
