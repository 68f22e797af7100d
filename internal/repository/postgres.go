package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/artisthq/exportd/constants"
	"github.com/artisthq/exportd/internal/common"
	"github.com/artisthq/exportd/internal/entity"
)

// OpenPool creates a pgx pool for the Postgres-backed job registry.
func OpenPool(ctx context.Context, cfg common.JobStoreConfig, logger *slog.Logger) (*pgxpool.Pool, error) {
	logger.Info("connecting to database", "dsn", cfg.DSN)
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		logger.Error("failed to parse database config", "error", err)
		return nil, err
	}

	pc.MaxConns = cfg.MaxConns
	pc.MaxConnLifetime = cfg.MaxConnLifetime
	pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	pc.ConnConfig.RuntimeParams["application_name"] = "exportd"
	if cfg.StatementTimeout > 0 {
		pc.ConnConfig.RuntimeParams["statement_timeout"] = cfg.StatementTimeout.String()
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		return nil, err
	}
	logger.Info("successfully connected to database")
	return pool, nil
}

// HealthCheck pings the pool to catch DSN issues early.
func HealthCheck(ctx context.Context, pool *pgxpool.Pool, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return pool.Ping(ctx)
}

// PostgresJobRepository is the registry backend for multi-process
// deployments where several exportd instances share one job table.
type PostgresJobRepository struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

func NewPostgresJobRepository(ctx context.Context, pool *pgxpool.Pool, log *slog.Logger) (*PostgresJobRepository, error) {
	if log == nil {
		log = slog.Default()
	}
	r := &PostgresJobRepository{pool: pool, log: log}
	if err := r.initSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return r, nil
}

func (r *PostgresJobRepository) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS export_job (
		id UUID PRIMARY KEY,
		caller_id TEXT NOT NULL,
		request JSONB NOT NULL,
		status TEXT NOT NULL,
		progress INTEGER NOT NULL DEFAULT 0,
		record_count BIGINT,
		file_size_bytes BIGINT,
		file_path TEXT,
		error_detail TEXT,
		created_at TIMESTAMPTZ NOT NULL,
		started_at TIMESTAMPTZ,
		completed_at TIMESTAMPTZ
	);
	CREATE INDEX IF NOT EXISTS idx_export_job_caller ON export_job(caller_id);
	CREATE INDEX IF NOT EXISTS idx_export_job_completed ON export_job(completed_at);
	`
	_, err := r.pool.Exec(ctx, schema)
	return err
}

func (r *PostgresJobRepository) Create(ctx context.Context, job *entity.ExportJob) error {
	reqJSON, err := json.Marshal(job.Request)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO export_job (id, caller_id, request, status, progress, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		job.ID, job.CallerID, reqJSON, string(job.Status), job.Progress, job.CreatedAt)
	if err != nil {
		r.log.Error("export_job create failed", "job_id", job.ID, "err", err)
		return err
	}
	r.log.Info("export_job created", "job_id", job.ID, "caller", job.CallerID, "type", job.Request.ExportType)
	return nil
}

func (r *PostgresJobRepository) Get(ctx context.Context, id uuid.UUID) (*entity.ExportJob, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, caller_id, request, status, progress, record_count,
			file_size_bytes, file_path, error_detail, created_at, started_at, completed_at
		FROM export_job WHERE id = $1`, id)
	job, err := scanPGJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	return job, err
}

func (r *PostgresJobRepository) ListByCaller(ctx context.Context, callerID string) ([]*entity.ExportJob, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, caller_id, request, status, progress, record_count,
			file_size_bytes, file_path, error_detail, created_at, started_at, completed_at
		FROM export_job WHERE caller_id = $1 ORDER BY created_at DESC`, callerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*entity.ExportJob
	for rows.Next() {
		job, err := scanPGJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

func scanPGJob(row pgx.Row) (*entity.ExportJob, error) {
	var (
		job     entity.ExportJob
		reqJSON []byte
		status  string
	)
	if err := row.Scan(&job.ID, &job.CallerID, &reqJSON, &status, &job.Progress,
		&job.RecordCount, &job.FileSizeBytes, &job.FilePath, &job.ErrorDetail,
		&job.CreatedAt, &job.StartedAt, &job.CompletedAt); err != nil {
		return nil, err
	}
	job.Status = constants.JobStatus(status)
	if err := json.Unmarshal(reqJSON, &job.Request); err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}
	return &job, nil
}

func (r *PostgresJobRepository) conditionalUpdate(ctx context.Context, id uuid.UUID, query string, args ...any) error {
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.pool.QueryRow(ctx,
			"SELECT EXISTS (SELECT 1 FROM export_job WHERE id = $1)", id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return common.ErrNotFound
		}
		return ErrIllegalTransition
	}
	return nil
}

func (r *PostgresJobRepository) MarkProcessing(ctx context.Context, id uuid.UUID, startedAt time.Time) error {
	err := r.conditionalUpdate(ctx, id, `
		UPDATE export_job SET status = $1, started_at = $2
		WHERE id = $3 AND status = $4`,
		string(constants.JobStatusProcessing), startedAt, id, string(constants.JobStatusPending))
	if err == nil {
		r.log.Info("export_job processing", "job_id", id)
	}
	return err
}

func (r *PostgresJobRepository) UpdateProgress(ctx context.Context, id uuid.UUID, progress int) error {
	p := clampProgress(progress)
	_, err := r.pool.Exec(ctx, `
		UPDATE export_job SET progress = $1
		WHERE id = $2 AND status = $3 AND progress < $1`,
		p, id, string(constants.JobStatusProcessing))
	return err
}

func (r *PostgresJobRepository) MarkCompleted(ctx context.Context, id uuid.UUID, recordCount, fileSizeBytes int64, filePath string, completedAt time.Time) error {
	err := r.conditionalUpdate(ctx, id, `
		UPDATE export_job SET status = $1, progress = 100, record_count = $2,
			file_size_bytes = $3, file_path = $4, completed_at = $5
		WHERE id = $6 AND status = $7`,
		string(constants.JobStatusCompleted), recordCount, fileSizeBytes, filePath, completedAt,
		id, string(constants.JobStatusProcessing))
	if err == nil {
		r.log.Info("export_job completed", "job_id", id, "records", recordCount, "bytes", fileSizeBytes)
	}
	return err
}

func (r *PostgresJobRepository) MarkFailed(ctx context.Context, id uuid.UUID, detail string, completedAt time.Time) error {
	err := r.conditionalUpdate(ctx, id, `
		UPDATE export_job SET status = $1, error_detail = $2, completed_at = $3
		WHERE id = $4 AND status IN ($5, $6)`,
		string(constants.JobStatusFailed), detail, completedAt,
		id, string(constants.JobStatusPending), string(constants.JobStatusProcessing))
	if err == nil {
		r.log.Warn("export_job failed", "job_id", id, "error", detail)
	}
	return err
}

func (r *PostgresJobRepository) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) ([]*entity.ExportJob, error) {
	rows, err := r.pool.Query(ctx, `
		DELETE FROM export_job
		WHERE status IN ($1, $2) AND completed_at < $3
		RETURNING id, caller_id, request, status, progress, record_count,
			file_size_bytes, file_path, error_detail, created_at, started_at, completed_at`,
		string(constants.JobStatusCompleted), string(constants.JobStatusFailed), cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var removed []*entity.ExportJob
	for rows.Next() {
		job, err := scanPGJob(rows)
		if err != nil {
			return nil, err
		}
		removed = append(removed, job)
	}
	return removed, rows.Err()
}
