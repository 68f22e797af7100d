package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artisthq/exportd/constants"
	"github.com/artisthq/exportd/internal/common"
	"github.com/artisthq/exportd/internal/entity"
	"github.com/artisthq/exportd/internal/repository"
	"github.com/artisthq/exportd/internal/source"
)

type fixture struct {
	engine *Engine
	repo   repository.ExportJobRepository
	dir    string
}

func newFixture(t *testing.T, src source.DataSource, cfg Config) *fixture {
	t.Helper()
	dir := t.TempDir()
	store, err := NewArtifactStore(dir)
	require.NoError(t, err)
	repo := repository.NewMemoryJobRepository(nil)

	sources := map[constants.ExportType]source.DataSource{
		constants.ExportTypeEvaluationResults:  src,
		constants.ExportTypePerformanceMetrics: src,
		constants.ExportTypeAgentInteractions:  src,
	}
	e := New(repo, sources, store, nil, nil, cfg)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		e.Close(ctx)
	})
	return &fixture{engine: e, repo: repo, dir: dir}
}

func waitTerminal(t *testing.T, repo repository.ExportJobRepository, job *entity.ExportJob) *entity.ExportJob {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		got, err := repo.Get(context.Background(), job.ID)
		require.NoError(t, err)
		if got.Status.IsTerminal() {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s never reached a terminal state", job.ID)
	return nil
}

func publicCaller() entity.Caller {
	return entity.Caller{ID: "alice", PrivacyFloor: constants.PrivacyLevelPublic}
}

func evalRequest(fields ...string) entity.ExportRequest {
	return entity.ExportRequest{
		ExportType:   constants.ExportTypeEvaluationResults,
		PrivacyLevel: constants.PrivacyLevelPublic,
		Fields:       fields,
	}
}

func TestSubmitBasicExportCompletes(t *testing.T) {
	src := &source.Static{Records: []entity.Record{
		{"test_id": "t1", "model": "gpt-5", "score": 95.5},
		{"test_id": "t2", "model": "claude", "score": 0},
	}}
	f := newFixture(t, src, Config{})

	job, err := f.engine.Submit(context.Background(), publicCaller(), evalRequest("test_id", "model", "score"))
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusPending, job.Status)

	got := waitTerminal(t, f.repo, job)
	require.Equal(t, constants.JobStatusCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)
	require.NotNil(t, got.RecordCount)
	assert.Equal(t, int64(2), *got.RecordCount)
	require.NotNil(t, got.FilePath)

	data, err := os.ReadFile(*got.FilePath)
	require.NoError(t, err)
	assert.Equal(t, "test_id,model,score\nt1,gpt-5,95.5\nt2,claude,0\n", string(data))
	require.NotNil(t, got.FileSizeBytes)
	assert.Equal(t, int64(len(data)), *got.FileSizeBytes)
}

func TestSubmitRedactsSensitiveFields(t *testing.T) {
	src := &source.Static{Records: []entity.Record{
		{"test_id": "t1", "api_key": "sk-secret", "user_id": "u-42"},
	}}
	f := newFixture(t, src, Config{})

	req := evalRequest("test_id", "api_key", "user_id")
	req.PrivacyLevel = constants.PrivacyLevelInternal

	job, err := f.engine.Submit(context.Background(), publicCaller(), req)
	require.NoError(t, err)
	got := waitTerminal(t, f.repo, job)
	require.Equal(t, constants.JobStatusCompleted, got.Status)

	data, err := os.ReadFile(*got.FilePath)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "sk-secret")
	assert.NotContains(t, string(data), "u-42")
	assert.Equal(t, "test_id,api_key,user_id\nt1,[REDACTED],[REDACTED]\n", string(data))
}

func TestSubmitValidationRejectedBeforeJobCreation(t *testing.T) {
	f := newFixture(t, &source.Static{}, Config{})

	req := evalRequest()
	req.ExportType = "no_such_type"
	_, err := f.engine.Submit(context.Background(), publicCaller(), req)
	assert.ErrorIs(t, err, common.ErrValidation)

	req = evalRequest()
	req.DateFrom = time.Now()
	req.DateTo = time.Now().Add(-time.Hour)
	_, err = f.engine.Submit(context.Background(), publicCaller(), req)
	assert.ErrorIs(t, err, common.ErrValidation)

	req = evalRequest("not_a_field")
	_, err = f.engine.Submit(context.Background(), publicCaller(), req)
	assert.ErrorIs(t, err, common.ErrValidation)

	jobs, err := f.engine.List(context.Background(), "alice")
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestSubmitAuthorizationRejected(t *testing.T) {
	f := newFixture(t, &source.Static{}, Config{})

	restricted := entity.Caller{ID: "bob", PrivacyFloor: constants.PrivacyLevelStrict}
	_, err := f.engine.Submit(context.Background(), restricted, evalRequest())
	assert.ErrorIs(t, err, common.ErrUnauthorized)

	typed := entity.Caller{
		ID:           "carol",
		PrivacyFloor: constants.PrivacyLevelPublic,
		AllowedTypes: []constants.ExportType{constants.ExportTypePerformanceMetrics},
	}
	_, err = f.engine.Submit(context.Background(), typed, evalRequest())
	assert.ErrorIs(t, err, common.ErrUnauthorized)
}

// blockingSource parks its iterator until release is closed.
type blockingSource struct {
	release chan struct{}
}

func (b *blockingSource) Fetch(context.Context, source.Query) (source.Iterator, error) {
	return &blockingIterator{release: b.release}, nil
}

type blockingIterator struct {
	release chan struct{}
}

func (it *blockingIterator) Next(ctx context.Context) (entity.Record, bool, error) {
	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case <-it.release:
		return nil, false, nil
	}
}

func (it *blockingIterator) EstimatedTotal() int64 { return -1 }
func (it *blockingIterator) Close() error          { return nil }

func TestConcurrencyCapRejectsAtSubmission(t *testing.T) {
	release := make(chan struct{})
	f := newFixture(t, &blockingSource{release: release}, Config{MaxJobsPerCaller: 1})

	first, err := f.engine.Submit(context.Background(), publicCaller(), evalRequest())
	require.NoError(t, err)

	_, err = f.engine.Submit(context.Background(), publicCaller(), evalRequest())
	assert.ErrorIs(t, err, common.ErrCapacity)

	// A different caller has an independent budget.
	other := entity.Caller{ID: "bob", PrivacyFloor: constants.PrivacyLevelPublic}
	second, err := f.engine.Submit(context.Background(), other, evalRequest())
	require.NoError(t, err)

	close(release)
	waitTerminal(t, f.repo, first)
	waitTerminal(t, f.repo, second)

	// Capacity frees up once the worker finishes; the counter is released
	// just after the terminal status lands, so retry briefly.
	require.Eventually(t, func() bool {
		_, err := f.engine.Submit(context.Background(), publicCaller(), evalRequest())
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)
}

func TestIdenticalSubmissionsAreIndependentJobs(t *testing.T) {
	f := newFixture(t, &source.Static{}, Config{})

	a, err := f.engine.Submit(context.Background(), publicCaller(), evalRequest())
	require.NoError(t, err)
	b, err := f.engine.Submit(context.Background(), publicCaller(), evalRequest())
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
}

// faultySource yields a few records then fails mid-stream.
type faultySource struct{ after int }

func (s *faultySource) Fetch(context.Context, source.Query) (source.Iterator, error) {
	return &faultyIterator{after: s.after}, nil
}

type faultyIterator struct{ after, yielded int }

func (it *faultyIterator) Next(ctx context.Context) (entity.Record, bool, error) {
	if it.yielded >= it.after {
		return nil, false, fmt.Errorf("%w: connection reset", common.ErrDataSource)
	}
	it.yielded++
	return entity.Record{"test_id": fmt.Sprintf("t%d", it.yielded)}, true, nil
}

func (it *faultyIterator) EstimatedTotal() int64 { return -1 }
func (it *faultyIterator) Close() error          { return nil }

func TestDataSourceFailureDiscardsPartialArtifact(t *testing.T) {
	f := newFixture(t, &faultySource{after: 3}, Config{ChunkSize: 1})

	job, err := f.engine.Submit(context.Background(), publicCaller(), evalRequest("test_id"))
	require.NoError(t, err)

	got := waitTerminal(t, f.repo, job)
	require.Equal(t, constants.JobStatusFailed, got.Status)
	require.NotNil(t, got.ErrorDetail)
	assert.Contains(t, *got.ErrorDetail, "data source failure")
	assert.Nil(t, got.FilePath)

	entries, err := os.ReadDir(f.dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "partial artifact must be deleted")

	_, _, err = f.engine.Artifact(context.Background(), "alice", job.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestCancelMarksJobWithDistinctDetail(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	f := newFixture(t, &blockingSource{release: release}, Config{})

	job, err := f.engine.Submit(context.Background(), publicCaller(), evalRequest())
	require.NoError(t, err)

	// Wait for the worker to pick the job up before cancelling.
	require.Eventually(t, func() bool {
		got, err := f.repo.Get(context.Background(), job.ID)
		return err == nil && got.Status == constants.JobStatusProcessing
	}, 5*time.Second, 5*time.Millisecond)

	require.NoError(t, f.engine.Cancel(context.Background(), "alice", job.ID))

	got := waitTerminal(t, f.repo, job)
	require.Equal(t, constants.JobStatusFailed, got.Status)
	require.NotNil(t, got.ErrorDetail)
	assert.Contains(t, *got.ErrorDetail, "cancelled")
	assert.Contains(t, *got.ErrorDetail, "caller request")

	entries, err := os.ReadDir(f.dir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	// Cancelling a terminal job is a conflict.
	assert.ErrorIs(t, f.engine.Cancel(context.Background(), "alice", job.ID), common.ErrConflict)
}

func TestTimeoutIsReportedAsCancellation(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	f := newFixture(t, &blockingSource{release: release}, Config{JobTimeout: 50 * time.Millisecond})

	job, err := f.engine.Submit(context.Background(), publicCaller(), evalRequest())
	require.NoError(t, err)

	got := waitTerminal(t, f.repo, job)
	require.Equal(t, constants.JobStatusFailed, got.Status)
	require.NotNil(t, got.ErrorDetail)
	assert.Contains(t, *got.ErrorDetail, "timeout")
}

func TestArtifactUnavailableWhileProcessing(t *testing.T) {
	release := make(chan struct{})
	f := newFixture(t, &blockingSource{release: release}, Config{})

	job, err := f.engine.Submit(context.Background(), publicCaller(), evalRequest())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := f.repo.Get(context.Background(), job.ID)
		return err == nil && got.Status == constants.JobStatusProcessing
	}, 5*time.Second, 5*time.Millisecond)

	_, _, err = f.engine.Artifact(context.Background(), "alice", job.ID)
	assert.ErrorIs(t, err, common.ErrConflict)

	close(release)
	got := waitTerminal(t, f.repo, job)
	require.Equal(t, constants.JobStatusCompleted, got.Status)

	path, format, err := f.engine.Artifact(context.Background(), "alice", job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.FormatCSV, format)
	assert.FileExists(t, path)
}

func TestGetHidesOtherCallersJobs(t *testing.T) {
	f := newFixture(t, &source.Static{}, Config{})

	job, err := f.engine.Submit(context.Background(), publicCaller(), evalRequest())
	require.NoError(t, err)
	waitTerminal(t, f.repo, job)

	_, err = f.engine.Get(context.Background(), "mallory", job.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestSweepRemovesExpiredArtifacts(t *testing.T) {
	src := &source.Static{Records: []entity.Record{{"test_id": "t1"}}}
	f := newFixture(t, src, Config{})

	job, err := f.engine.Submit(context.Background(), publicCaller(), evalRequest("test_id"))
	require.NoError(t, err)
	got := waitTerminal(t, f.repo, job)
	require.Equal(t, constants.JobStatusCompleted, got.Status)
	require.NotNil(t, got.FilePath)
	assert.FileExists(t, *got.FilePath)

	// Negative retention puts the cutoff in the future, expiring everything.
	f.engine.Sweep(context.Background(), -time.Second)

	_, err = f.repo.Get(context.Background(), job.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
	assert.NoFileExists(t, *got.FilePath)
}

func TestXLSXArtifactPath(t *testing.T) {
	src := &source.Static{Records: []entity.Record{{"test_id": "t1"}}}
	f := newFixture(t, src, Config{})

	req := evalRequest("test_id")
	req.Format = constants.FormatXLSX
	job, err := f.engine.Submit(context.Background(), publicCaller(), req)
	require.NoError(t, err)

	got := waitTerminal(t, f.repo, job)
	require.Equal(t, constants.JobStatusCompleted, got.Status)
	require.NotNil(t, got.FilePath)
	assert.Equal(t, ".xlsx", filepath.Ext(*got.FilePath))
}

// dispatchFailRepo delegates to a real backend but refuses the
// pending -> processing transition.
type dispatchFailRepo struct {
	repository.ExportJobRepository
}

func (r *dispatchFailRepo) MarkProcessing(context.Context, uuid.UUID, time.Time) error {
	return errors.New("registry unavailable")
}

func TestDispatchFailureMarksJobFailed(t *testing.T) {
	store, err := NewArtifactStore(t.TempDir())
	require.NoError(t, err)
	mem := repository.NewMemoryJobRepository(nil)
	sources := map[constants.ExportType]source.DataSource{
		constants.ExportTypeEvaluationResults: &source.Static{},
	}
	e := New(&dispatchFailRepo{ExportJobRepository: mem}, sources, store, nil, nil, Config{})
	t.Cleanup(func() { e.Close(context.Background()) })

	job, err := e.Submit(context.Background(), publicCaller(), evalRequest())
	require.NoError(t, err)

	// The job must not stay PENDING forever when dispatch cannot record it.
	got := waitTerminal(t, mem, job)
	require.Equal(t, constants.JobStatusFailed, got.Status)
	require.NotNil(t, got.ErrorDetail)
	assert.Contains(t, *got.ErrorDetail, "dispatch failed")
	assert.Contains(t, *got.ErrorDetail, "registry unavailable")
}

func TestProgressForKnownAndUnknownTotals(t *testing.T) {
	assert.Equal(t, 50, progressFor(50, 100, 1))
	assert.Equal(t, 99, progressFor(100, 100, 1), "held below 100 until completion")
	assert.Equal(t, 10, progressFor(2000, -1, 2))
	assert.Equal(t, 95, progressFor(1e6, -1, 400))
}

func TestSubmitUnknownSourceType(t *testing.T) {
	dir := t.TempDir()
	store, err := NewArtifactStore(dir)
	require.NoError(t, err)
	e := New(repository.NewMemoryJobRepository(nil), nil, store, nil, nil, Config{})
	t.Cleanup(func() { e.Close(context.Background()) })

	_, err = e.Submit(context.Background(), publicCaller(), evalRequest())
	assert.ErrorIs(t, err, common.ErrDataSource)
	assert.False(t, errors.Is(err, common.ErrValidation))
}
