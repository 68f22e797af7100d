// Package engine orchestrates export jobs: it validates and authorizes
// requests, enforces the per-caller concurrency cap, runs each job's
// source -> pipeline -> writer chain on its own worker goroutine, and keeps
// the job registry and artifact store consistent with each other.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/artisthq/exportd/constants"
	"github.com/artisthq/exportd/internal/common"
	"github.com/artisthq/exportd/internal/entity"
	"github.com/artisthq/exportd/internal/export"
	"github.com/artisthq/exportd/internal/metrics"
	"github.com/artisthq/exportd/internal/pipeline"
	"github.com/artisthq/exportd/internal/repository"
	"github.com/artisthq/exportd/internal/source"
)

// Config tunes job execution.
type Config struct {
	ChunkSize        int
	MaxJobsPerCaller int
	// JobTimeout is the wall-clock ceiling per job; exceeding it is
	// treated like a cancellation.
	JobTimeout time.Duration
}

func (c Config) chunkSize() int {
	if c.ChunkSize <= 0 {
		return 1000
	}
	return c.ChunkSize
}

func (c Config) maxJobs() int {
	if c.MaxJobsPerCaller <= 0 {
		return 3
	}
	return c.MaxJobsPerCaller
}

// Engine is the export job engine. Safe for concurrent use.
type Engine struct {
	repo      repository.ExportJobRepository
	sources   map[constants.ExportType]source.DataSource
	artifacts *ArtifactStore
	collector metrics.Collector
	logger    *slog.Logger
	cfg       Config

	// mu guards the per-caller active counters and the cancel table. The
	// counter is reserved at submission, inside the same critical section
	// as the cap check, so concurrent submissions cannot exceed the cap.
	mu          sync.Mutex
	active      map[string]int
	totalActive int64
	cancels     map[uuid.UUID]context.CancelFunc
	cancelled   map[uuid.UUID]bool

	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup
}

func New(repo repository.ExportJobRepository, sources map[constants.ExportType]source.DataSource,
	artifacts *ArtifactStore, collector metrics.Collector, logger *slog.Logger, cfg Config) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if collector == nil {
		collector = metrics.NewNoopCollector()
	}
	baseCtx, baseCancel := context.WithCancel(context.Background())
	return &Engine{
		repo:       repo,
		sources:    sources,
		artifacts:  artifacts,
		collector:  collector,
		logger:     logger,
		cfg:        cfg,
		active:     make(map[string]int),
		cancels:    make(map[uuid.UUID]context.CancelFunc),
		cancelled:  make(map[uuid.UUID]bool),
		baseCtx:    baseCtx,
		baseCancel: baseCancel,
	}
}

// Submit validates, authorizes and dispatches one export job. Each call
// creates an independent job; identical requests are not deduplicated.
func (e *Engine) Submit(ctx context.Context, caller entity.Caller, req entity.ExportRequest) (*entity.ExportJob, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	req.Normalize()
	if err := caller.Authorize(&req); err != nil {
		return nil, err
	}
	src, ok := e.sources[req.ExportType]
	if !ok {
		return nil, fmt.Errorf("%w: no data source for %s", common.ErrDataSource, req.ExportType)
	}

	if err := e.reserve(caller.ID); err != nil {
		return nil, err
	}

	job := entity.NewExportJob(caller.ID, req)
	if err := e.repo.Create(ctx, job); err != nil {
		e.release(caller.ID)
		return nil, common.WrapError(err, "create job")
	}

	jobCtx, cancel := context.WithTimeout(e.baseCtx, e.jobTimeout())
	e.mu.Lock()
	e.cancels[job.ID] = cancel
	e.mu.Unlock()

	e.wg.Add(1)
	go e.run(jobCtx, src, job)

	e.logger.Info("export submitted", "job_id", job.ID, "caller", caller.ID,
		"type", req.ExportType, "format", req.Format, "privacy", req.PrivacyLevel)
	return job, nil
}

func (e *Engine) jobTimeout() time.Duration {
	if e.cfg.JobTimeout <= 0 {
		return 10 * time.Minute
	}
	return e.cfg.JobTimeout
}

func (e *Engine) reserve(callerID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active[callerID] >= e.cfg.maxJobs() {
		return fmt.Errorf("%w: caller %s already has %d jobs in flight",
			common.ErrCapacity, callerID, e.active[callerID])
	}
	e.active[callerID]++
	e.totalActive++
	e.collector.SetActiveJobs(e.totalActive)
	return nil
}

func (e *Engine) release(callerID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active[callerID] > 0 {
		e.active[callerID]--
	}
	if e.active[callerID] == 0 {
		delete(e.active, callerID)
	}
	e.totalActive--
	e.collector.SetActiveJobs(e.totalActive)
}

// run executes one job to its terminal state.
func (e *Engine) run(jobCtx context.Context, src source.DataSource, job *entity.ExportJob) {
	defer e.wg.Done()
	defer e.release(job.CallerID)
	defer func() {
		e.mu.Lock()
		if cancel, ok := e.cancels[job.ID]; ok {
			cancel()
			delete(e.cancels, job.ID)
		}
		delete(e.cancelled, job.ID)
		e.mu.Unlock()
	}()

	// Registry updates must survive job cancellation, so they use a
	// context detached from the job's.
	bgCtx := context.WithoutCancel(e.baseCtx)
	start := time.Now()

	if err := e.repo.MarkProcessing(bgCtx, job.ID, start.UTC()); err != nil {
		e.logger.Error("mark processing failed", "job_id", job.ID, "err", err)
		// Best effort: a job stuck in PENDING forever strands pollers, so
		// push it to a terminal state with the dispatch error.
		detail := "dispatch failed: " + err.Error()
		if markErr := e.repo.MarkFailed(bgCtx, job.ID, detail, time.Now().UTC()); markErr != nil {
			e.logger.Error("mark failed failed", "job_id", job.ID, "err", markErr)
		}
		e.collector.JobFinished(string(job.Request.ExportType), string(constants.JobStatusFailed), time.Since(start).Milliseconds())
		return
	}

	res, err := e.execute(jobCtx, bgCtx, src, job)
	duration := time.Since(start)

	if err != nil {
		e.artifacts.Remove(job.ID, job.Request.Format)
		detail := e.failureDetail(job.ID, jobCtx, err)
		if markErr := e.repo.MarkFailed(bgCtx, job.ID, detail, time.Now().UTC()); markErr != nil {
			e.logger.Error("mark failed failed", "job_id", job.ID, "err", markErr)
		}
		e.collector.JobFinished(string(job.Request.ExportType), string(constants.JobStatusFailed), duration.Milliseconds())
		e.logger.Warn("export failed", "job_id", job.ID, "detail", detail, "elapsed_ms", duration.Milliseconds())
		return
	}

	finalPath, err := e.artifacts.Promote(job.ID, job.Request.Format)
	if err != nil {
		e.artifacts.Remove(job.ID, job.Request.Format)
		if markErr := e.repo.MarkFailed(bgCtx, job.ID, err.Error(), time.Now().UTC()); markErr != nil {
			e.logger.Error("mark failed failed", "job_id", job.ID, "err", markErr)
		}
		e.collector.JobFinished(string(job.Request.ExportType), string(constants.JobStatusFailed), duration.Milliseconds())
		return
	}

	if err := e.repo.MarkCompleted(bgCtx, job.ID, res.RecordCount, res.ByteCount, finalPath, time.Now().UTC()); err != nil {
		e.logger.Error("mark completed failed", "job_id", job.ID, "err", err)
		return
	}
	e.collector.JobFinished(string(job.Request.ExportType), string(constants.JobStatusCompleted), duration.Milliseconds())
	e.collector.AddRecords(string(job.Request.ExportType), res.RecordCount)
	e.collector.AddBytes(string(job.Request.ExportType), res.ByteCount)
	e.logger.Info("export completed", "job_id", job.ID,
		"records", res.RecordCount, "bytes", res.ByteCount, "elapsed_ms", duration.Milliseconds())
}

// execute streams records through the pipeline into the partial artifact.
func (e *Engine) execute(jobCtx, bgCtx context.Context, src source.DataSource, job *entity.ExportJob) (export.Result, error) {
	req := job.Request

	it, err := src.Fetch(jobCtx, source.Query{
		Type:     req.ExportType,
		DateFrom: req.DateFrom,
		DateTo:   req.DateTo,
		Filters:  req.Filters,
	})
	if err != nil {
		if !errors.Is(err, common.ErrDataSource) {
			err = fmt.Errorf("%w: %v", common.ErrDataSource, err)
		}
		return export.Result{}, err
	}
	defer it.Close()

	p := pipeline.NewRowPipeline(&req)
	p.OnFallback = func(field string) {
		e.collector.RecordFallback(field)
		e.logger.Debug("value fallback", "job_id", job.ID, "field", field)
	}

	sink, err := e.artifacts.Create(job.ID, req.Format)
	if err != nil {
		return export.Result{}, err
	}
	defer sink.Close()

	total := it.EstimatedTotal()
	var chunks int64
	w := export.ForFormat(req.Format, export.Config{
		ChunkSize:      e.cfg.chunkSize(),
		IncludeHeaders: !req.NoHeaders,
		OnChunk: func(written int64) {
			chunks++
			if err := e.repo.UpdateProgress(bgCtx, job.ID, progressFor(written, total, chunks)); err != nil {
				e.logger.Warn("progress update failed", "job_id", job.ID, "err", err)
			}
		},
	})

	res, err := w.Write(jobCtx, p.Header(), &pipelineRows{it: it, p: p}, sink)
	if err != nil {
		return res, err
	}
	if err := sink.Sync(); err != nil {
		return res, fmt.Errorf("%w: sync: %v", common.ErrSink, err)
	}
	return res, nil
}

// progressFor maps written records to a 0-100 value. When the source cannot
// estimate a total, progress advances on a chunk-count proxy and holds
// below 100 until completion forces it.
func progressFor(written, total, chunks int64) int {
	if total > 0 {
		p := int(written * 100 / total)
		if p > 99 {
			p = 99
		}
		return p
	}
	p := int(chunks * 5)
	if p > 95 {
		p = 95
	}
	return p
}

// failureDetail classifies an execution error into the detail string stored
// on the job, keeping cancellations distinguishable from real failures.
func (e *Engine) failureDetail(id uuid.UUID, jobCtx context.Context, err error) string {
	e.mu.Lock()
	byCaller := e.cancelled[id]
	e.mu.Unlock()

	switch {
	case byCaller:
		return "cancelled: stopped by caller request"
	case errors.Is(jobCtx.Err(), context.DeadlineExceeded):
		return "cancelled: job exceeded the configured timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled: engine shutting down"
	case errors.Is(err, common.ErrSink):
		return "sink failure: " + err.Error()
	case errors.Is(err, common.ErrDataSource):
		return "data source failure: " + err.Error()
	default:
		return err.Error()
	}
}

// Cancel stops a caller's in-flight job. The worker observes the cancelled
// context, deletes the partial artifact and marks the job failed with a
// distinct cancellation detail.
func (e *Engine) Cancel(ctx context.Context, callerID string, id uuid.UUID) error {
	job, err := e.Get(ctx, callerID, id)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return fmt.Errorf("%w: job already %s", common.ErrConflict, job.Status)
	}

	e.mu.Lock()
	cancel, ok := e.cancels[id]
	if ok {
		e.cancelled[id] = true
	}
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: job %s has no running worker", common.ErrConflict, id)
	}
	cancel()
	e.logger.Info("export cancel requested", "job_id", id, "caller", callerID)
	return nil
}

// Get returns a job if it belongs to the caller. Other callers' jobs are
// indistinguishable from missing ones.
func (e *Engine) Get(ctx context.Context, callerID string, id uuid.UUID) (*entity.ExportJob, error) {
	job, err := e.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.CallerID != callerID {
		return nil, common.ErrNotFound
	}
	return job, nil
}

// List returns the caller's jobs, newest first.
func (e *Engine) List(ctx context.Context, callerID string) ([]*entity.ExportJob, error) {
	return e.repo.ListByCaller(ctx, callerID)
}

// Artifact returns the path and format of a completed job's artifact.
func (e *Engine) Artifact(ctx context.Context, callerID string, id uuid.UUID) (string, constants.Format, error) {
	job, err := e.Get(ctx, callerID, id)
	if err != nil {
		return "", "", err
	}
	switch job.Status {
	case constants.JobStatusCompleted:
		if job.FilePath == nil {
			return "", "", common.ErrNotFound
		}
		return *job.FilePath, job.Request.Format, nil
	case constants.JobStatusFailed:
		return "", "", fmt.Errorf("%w: job failed, no artifact", common.ErrNotFound)
	default:
		return "", "", fmt.Errorf("%w: job is %s", common.ErrConflict, job.Status)
	}
}

// Close cancels outstanding jobs and waits for workers to drain, honoring
// the context deadline.
func (e *Engine) Close(ctx context.Context) error {
	e.baseCancel()
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
