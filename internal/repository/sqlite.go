package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/artisthq/exportd/constants"
	"github.com/artisthq/exportd/internal/common"
	"github.com/artisthq/exportd/internal/entity"
)

// sqliteTimeFormat is RFC 3339 with fixed-width nanoseconds. Timestamps are
// stored as TEXT and compared lexicographically, so the width must not vary:
// RFC3339Nano trims trailing zeros, which breaks sub-second ordering
// (".5Z" sorts after ".51Z"). All values are stored in UTC.
const sqliteTimeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteJobRepository persists jobs in SQLite so the registry survives
// restarts without needing a database server. Lifecycle rules are enforced
// in the UPDATE predicates: a statement that matches zero rows means the
// job is missing or the transition is illegal.
type SQLiteJobRepository struct {
	db  *sql.DB
	log *slog.Logger
}

func NewSQLiteJobRepository(dbPath string, log *slog.Logger) (*SQLiteJobRepository, error) {
	if log == nil {
		log = slog.Default()
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	r := &SQLiteJobRepository{db: db, log: log}
	if err := r.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return r, nil
}

func (r *SQLiteJobRepository) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS export_job (
		id TEXT PRIMARY KEY,
		caller_id TEXT NOT NULL,
		request TEXT NOT NULL,
		status TEXT NOT NULL,
		progress INTEGER NOT NULL DEFAULT 0,
		record_count INTEGER,
		file_size_bytes INTEGER,
		file_path TEXT,
		error_detail TEXT,
		created_at DATETIME NOT NULL,
		started_at DATETIME,
		completed_at DATETIME
	);
	CREATE INDEX IF NOT EXISTS idx_export_job_caller ON export_job(caller_id);
	CREATE INDEX IF NOT EXISTS idx_export_job_completed ON export_job(completed_at);
	`
	_, err := r.db.Exec(schema)
	return err
}

func (r *SQLiteJobRepository) Close() error { return r.db.Close() }

func (r *SQLiteJobRepository) Create(ctx context.Context, job *entity.ExportJob) error {
	reqJSON, err := json.Marshal(job.Request)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO export_job (id, caller_id, request, status, progress, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		job.ID.String(), job.CallerID, string(reqJSON), string(job.Status), job.Progress,
		job.CreatedAt.UTC().Format(sqliteTimeFormat))
	if err != nil {
		r.log.Error("export_job create failed", "job_id", job.ID, "err", err)
		return err
	}
	r.log.Info("export_job created", "job_id", job.ID, "caller", job.CallerID, "type", job.Request.ExportType)
	return nil
}

const jobColumns = `id, caller_id, request, status, progress, record_count,
	file_size_bytes, file_path, error_detail, created_at, started_at, completed_at`

func (r *SQLiteJobRepository) Get(ctx context.Context, id uuid.UUID) (*entity.ExportJob, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+jobColumns+" FROM export_job WHERE id = ?", id.String())
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, common.ErrNotFound
	}
	return job, err
}

func (r *SQLiteJobRepository) ListByCaller(ctx context.Context, callerID string) ([]*entity.ExportJob, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+jobColumns+" FROM export_job WHERE caller_id = ? ORDER BY created_at DESC", callerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*entity.ExportJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*entity.ExportJob, error) {
	var (
		idStr, callerID, reqJSON, status string
		progress                         int
		recordCount, fileSizeBytes       sql.NullInt64
		filePath, errorDetail            sql.NullString
		createdAt                        string
		startedAt, completedAt           sql.NullString
	)
	if err := row.Scan(&idStr, &callerID, &reqJSON, &status, &progress,
		&recordCount, &fileSizeBytes, &filePath, &errorDetail,
		&createdAt, &startedAt, &completedAt); err != nil {
		return nil, err
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("parse job id: %w", err)
	}
	job := &entity.ExportJob{
		ID:       id,
		CallerID: callerID,
		Status:   constants.JobStatus(status),
		Progress: progress,
	}
	if err := json.Unmarshal([]byte(reqJSON), &job.Request); err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}
	if job.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if recordCount.Valid {
		job.RecordCount = &recordCount.Int64
	}
	if fileSizeBytes.Valid {
		job.FileSizeBytes = &fileSizeBytes.Int64
	}
	if filePath.Valid {
		job.FilePath = &filePath.String
	}
	if errorDetail.Valid {
		job.ErrorDetail = &errorDetail.String
	}
	if startedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, startedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse started_at: %w", err)
		}
		job.StartedAt = &t
	}
	if completedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, completedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse completed_at: %w", err)
		}
		job.CompletedAt = &t
	}
	return job, nil
}

// conditionalUpdate runs an UPDATE whose WHERE encodes the legal transition
// and converts "no rows" into missing-vs-illegal.
func (r *SQLiteJobRepository) conditionalUpdate(ctx context.Context, id uuid.UUID, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var exists int
		if err := r.db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM export_job WHERE id = ?", id.String()).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return common.ErrNotFound
		}
		return ErrIllegalTransition
	}
	return nil
}

func (r *SQLiteJobRepository) MarkProcessing(ctx context.Context, id uuid.UUID, startedAt time.Time) error {
	err := r.conditionalUpdate(ctx, id, `
		UPDATE export_job SET status = ?, started_at = ?
		WHERE id = ? AND status = ?`,
		string(constants.JobStatusProcessing), startedAt.UTC().Format(sqliteTimeFormat),
		id.String(), string(constants.JobStatusPending))
	if err == nil {
		r.log.Info("export_job processing", "job_id", id)
	}
	return err
}

func (r *SQLiteJobRepository) UpdateProgress(ctx context.Context, id uuid.UUID, progress int) error {
	p := clampProgress(progress)
	res, err := r.db.ExecContext(ctx, `
		UPDATE export_job SET progress = ?
		WHERE id = ? AND status = ? AND progress < ?`,
		p, id.String(), string(constants.JobStatusProcessing), p)
	if err != nil {
		return err
	}
	// Zero rows here usually means the new value did not beat the stored
	// one; that is not an error, monotonicity just held.
	_, err = res.RowsAffected()
	return err
}

func (r *SQLiteJobRepository) MarkCompleted(ctx context.Context, id uuid.UUID, recordCount, fileSizeBytes int64, filePath string, completedAt time.Time) error {
	err := r.conditionalUpdate(ctx, id, `
		UPDATE export_job SET status = ?, progress = 100, record_count = ?,
			file_size_bytes = ?, file_path = ?, completed_at = ?
		WHERE id = ? AND status = ?`,
		string(constants.JobStatusCompleted), recordCount, fileSizeBytes, filePath,
		completedAt.UTC().Format(sqliteTimeFormat),
		id.String(), string(constants.JobStatusProcessing))
	if err == nil {
		r.log.Info("export_job completed", "job_id", id, "records", recordCount, "bytes", fileSizeBytes)
	}
	return err
}

func (r *SQLiteJobRepository) MarkFailed(ctx context.Context, id uuid.UUID, detail string, completedAt time.Time) error {
	err := r.conditionalUpdate(ctx, id, `
		UPDATE export_job SET status = ?, error_detail = ?, completed_at = ?
		WHERE id = ? AND status IN (?, ?)`,
		string(constants.JobStatusFailed), detail, completedAt.UTC().Format(sqliteTimeFormat),
		id.String(), string(constants.JobStatusPending), string(constants.JobStatusProcessing))
	if err == nil {
		r.log.Warn("export_job failed", "job_id", id, "error", detail)
	}
	return err
}

func (r *SQLiteJobRepository) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) ([]*entity.ExportJob, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+jobColumns+` FROM export_job
		WHERE status IN (?, ?) AND completed_at < ?`,
		string(constants.JobStatusCompleted), string(constants.JobStatusFailed),
		cutoff.UTC().Format(sqliteTimeFormat))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var removed []*entity.ExportJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		removed = append(removed, job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, job := range removed {
		if _, err := r.db.ExecContext(ctx,
			"DELETE FROM export_job WHERE id = ?", job.ID.String()); err != nil {
			return removed, err
		}
	}
	return removed, nil
}
