package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artisthq/exportd/constants"
	"github.com/artisthq/exportd/internal/common"
	"github.com/artisthq/exportd/internal/entity"
)

// The lifecycle contract must hold for every backend, so the suite runs
// against both the memory and the sqlite implementations.
func backends(t *testing.T) map[string]ExportJobRepository {
	t.Helper()
	sqliteRepo, err := NewSQLiteJobRepository(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { sqliteRepo.Close() })
	return map[string]ExportJobRepository{
		"memory": NewMemoryJobRepository(nil),
		"sqlite": sqliteRepo,
	}
}

func newJob(caller string) *entity.ExportJob {
	req := entity.ExportRequest{
		ExportType:   constants.ExportTypeEvaluationResults,
		PrivacyLevel: constants.PrivacyLevelInternal,
		Format:       constants.FormatCSV,
	}
	return entity.NewExportJob(caller, req)
}

func TestJobLifecycle(t *testing.T) {
	for name, repo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			job := newJob("alice")
			require.NoError(t, repo.Create(ctx, job))

			got, err := repo.Get(ctx, job.ID)
			require.NoError(t, err)
			assert.Equal(t, constants.JobStatusPending, got.Status)
			assert.Equal(t, job.Request.ExportType, got.Request.ExportType)

			require.NoError(t, repo.MarkProcessing(ctx, job.ID, time.Now()))
			require.NoError(t, repo.UpdateProgress(ctx, job.ID, 40))
			require.NoError(t, repo.MarkCompleted(ctx, job.ID, 123, 4567, "/tmp/a.csv", time.Now()))

			got, err = repo.Get(ctx, job.ID)
			require.NoError(t, err)
			assert.Equal(t, constants.JobStatusCompleted, got.Status)
			assert.Equal(t, 100, got.Progress)
			require.NotNil(t, got.RecordCount)
			assert.Equal(t, int64(123), *got.RecordCount)
			require.NotNil(t, got.FileSizeBytes)
			assert.Equal(t, int64(4567), *got.FileSizeBytes)
			require.NotNil(t, got.FilePath)
			assert.Equal(t, "/tmp/a.csv", *got.FilePath)
			require.NotNil(t, got.CompletedAt)
		})
	}
}

func TestTerminalStatesAreImmutable(t *testing.T) {
	for name, repo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			job := newJob("alice")
			require.NoError(t, repo.Create(ctx, job))
			require.NoError(t, repo.MarkProcessing(ctx, job.ID, time.Now()))
			require.NoError(t, repo.MarkFailed(ctx, job.ID, "sink write failure", time.Now()))

			assert.ErrorIs(t, repo.MarkProcessing(ctx, job.ID, time.Now()), ErrIllegalTransition)
			assert.ErrorIs(t, repo.MarkCompleted(ctx, job.ID, 1, 1, "x", time.Now()), ErrIllegalTransition)
			assert.ErrorIs(t, repo.MarkFailed(ctx, job.ID, "again", time.Now()), ErrIllegalTransition)

			got, err := repo.Get(ctx, job.ID)
			require.NoError(t, err)
			assert.Equal(t, constants.JobStatusFailed, got.Status)
			require.NotNil(t, got.ErrorDetail)
			assert.Equal(t, "sink write failure", *got.ErrorDetail)
		})
	}
}

func TestProgressIsMonotonic(t *testing.T) {
	for name, repo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			job := newJob("alice")
			require.NoError(t, repo.Create(ctx, job))
			require.NoError(t, repo.MarkProcessing(ctx, job.ID, time.Now()))

			require.NoError(t, repo.UpdateProgress(ctx, job.ID, 60))
			require.NoError(t, repo.UpdateProgress(ctx, job.ID, 30))

			got, err := repo.Get(ctx, job.ID)
			require.NoError(t, err)
			assert.Equal(t, 60, got.Progress)
		})
	}
}

func TestPendingCanFailDirectly(t *testing.T) {
	// Submission-time dispatch failures fail the job without it ever processing.
	for name, repo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			job := newJob("alice")
			require.NoError(t, repo.Create(ctx, job))
			require.NoError(t, repo.MarkFailed(ctx, job.ID, "dispatch failed", time.Now()))
		})
	}
}

func TestDeleteFinishedBeforeSubSecondCutoff(t *testing.T) {
	// SQLite stores timestamps as TEXT and compares them lexicographically,
	// so fractional seconds must be fixed-width: a trimmed ".5Z" would sort
	// after ".51Z" and survive a cutoff it is actually older than.
	repo, err := NewSQLiteJobRepository(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	ctx := context.Background()
	completed := time.Date(2026, 5, 1, 12, 0, 0, 500_000_000, time.UTC)
	cutoff := completed.Add(10 * time.Millisecond)

	job := newJob("alice")
	require.NoError(t, repo.Create(ctx, job))
	require.NoError(t, repo.MarkProcessing(ctx, job.ID, completed.Add(-time.Second)))
	require.NoError(t, repo.MarkCompleted(ctx, job.ID, 1, 1, "/tmp/sub.csv", completed))

	removed, err := repo.DeleteFinishedBefore(ctx, cutoff)
	require.NoError(t, err)
	require.Len(t, removed, 1)
	assert.Equal(t, job.ID, removed[0].ID)
}

func TestGetUnknownJob(t *testing.T) {
	for name, repo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := repo.Get(context.Background(), uuid.New())
			assert.ErrorIs(t, err, common.ErrNotFound)
		})
	}
}

func TestListByCaller(t *testing.T) {
	for name, repo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			a1, a2, b := newJob("alice"), newJob("alice"), newJob("bob")
			// Distinct creation times so ordering is deterministic.
			a1.CreatedAt = time.Now().UTC().Add(-2 * time.Minute)
			a2.CreatedAt = time.Now().UTC().Add(-1 * time.Minute)
			for _, j := range []*entity.ExportJob{a1, a2, b} {
				require.NoError(t, repo.Create(ctx, j))
			}

			jobs, err := repo.ListByCaller(ctx, "alice")
			require.NoError(t, err)
			require.Len(t, jobs, 2)
			assert.Equal(t, a2.ID, jobs[0].ID)
			assert.Equal(t, a1.ID, jobs[1].ID)
		})
	}
}

func TestDeleteFinishedBefore(t *testing.T) {
	for name, repo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			old := newJob("alice")
			require.NoError(t, repo.Create(ctx, old))
			require.NoError(t, repo.MarkProcessing(ctx, old.ID, time.Now()))
			require.NoError(t, repo.MarkCompleted(ctx, old.ID, 1, 1, "/tmp/old.csv", time.Now().Add(-48*time.Hour)))

			fresh := newJob("alice")
			require.NoError(t, repo.Create(ctx, fresh))

			removed, err := repo.DeleteFinishedBefore(ctx, time.Now().Add(-24*time.Hour))
			require.NoError(t, err)
			require.Len(t, removed, 1)
			assert.Equal(t, old.ID, removed[0].ID)

			_, err = repo.Get(ctx, old.ID)
			assert.ErrorIs(t, err, common.ErrNotFound)
			_, err = repo.Get(ctx, fresh.ID)
			assert.NoError(t, err)
		})
	}
}
