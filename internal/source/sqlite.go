package source

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/artisthq/exportd/constants"
	"github.com/artisthq/exportd/internal/common"
	"github.com/artisthq/exportd/internal/entity"
)

// Table layout per export type. Column lists double as the whitelist for
// filter predicates; only these names ever reach SQL text, values are bound.
var tables = map[constants.ExportType]tableSpec{
	constants.ExportTypeEvaluationResults: {
		name:       "evaluation_results",
		timeColumn: "started_at",
		columns: []string{
			"test_id", "model", "score", "passed", "duration_ms", "started_at", "suite",
			"error_message", "prompt", "response", "user_id", "api_key",
		},
	},
	constants.ExportTypePerformanceMetrics: {
		name:       "performance_metrics",
		timeColumn: "recorded_at",
		columns: []string{
			"metric_name", "value", "unit", "recorded_at", "component",
			"host", "user_id", "ip_address",
		},
	},
	constants.ExportTypeAgentInteractions: {
		name:       "agent_interactions",
		timeColumn: "started_at",
		columns: []string{
			"interaction_id", "agent_name", "started_at", "duration_ms", "token_count", "outcome",
			"prompt", "response", "user_id", "user_email", "session_token",
		},
	},
}

type tableSpec struct {
	name       string
	timeColumn string
	columns    []string
}

func (t tableSpec) hasColumn(name string) bool {
	for _, c := range t.columns {
		if c == name {
			return true
		}
	}
	return false
}

// SQLiteStore serves all three export types from a local SQLite database.
// The dbPath can be a file path or ":memory:".
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the database and creates tables if they don't exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS evaluation_results (
		test_id TEXT NOT NULL,
		model TEXT,
		score REAL,
		passed INTEGER,
		duration_ms INTEGER,
		started_at DATETIME,
		suite TEXT,
		error_message TEXT,
		prompt TEXT,
		response TEXT,
		user_id TEXT,
		api_key TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_eval_started ON evaluation_results(started_at);

	CREATE TABLE IF NOT EXISTS performance_metrics (
		metric_name TEXT NOT NULL,
		value REAL,
		unit TEXT,
		recorded_at DATETIME,
		component TEXT,
		host TEXT,
		user_id TEXT,
		ip_address TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_perf_recorded ON performance_metrics(recorded_at);

	CREATE TABLE IF NOT EXISTS agent_interactions (
		interaction_id TEXT NOT NULL,
		agent_name TEXT,
		started_at DATETIME,
		duration_ms INTEGER,
		token_count INTEGER,
		outcome TEXT,
		prompt TEXT,
		response TEXT,
		user_id TEXT,
		user_email TEXT,
		session_token TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_interactions_started ON agent_interactions(started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Fetch returns a lazy iterator over matching rows. The total is counted up
// front with the same predicate so progress can be reported as a ratio.
func (s *SQLiteStore) Fetch(ctx context.Context, q Query) (Iterator, error) {
	spec, ok := tables[q.Type]
	if !ok {
		return nil, fmt.Errorf("%w: no table for export type %q", common.ErrDataSource, q.Type)
	}

	where, args := buildPredicate(spec, q)

	var total int64
	countQuery := "SELECT COUNT(*) FROM " + spec.name + where
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("%w: count %s: %v", common.ErrDataSource, spec.name, err)
	}

	query := "SELECT " + strings.Join(spec.columns, ", ") + " FROM " + spec.name + where +
		" ORDER BY " + spec.timeColumn
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: query %s: %v", common.ErrDataSource, spec.name, err)
	}

	return &sqliteIterator{rows: rows, columns: spec.columns, total: total}, nil
}

func buildPredicate(spec tableSpec, q Query) (string, []any) {
	var conds []string
	var args []any
	if !q.DateFrom.IsZero() {
		conds = append(conds, spec.timeColumn+" >= ?")
		args = append(args, q.DateFrom.UTC().Format(time.RFC3339))
	}
	if !q.DateTo.IsZero() {
		conds = append(conds, spec.timeColumn+" <= ?")
		args = append(args, q.DateTo.UTC().Format(time.RFC3339))
	}
	for col, val := range q.Filters {
		if !spec.hasColumn(col) {
			continue
		}
		conds = append(conds, col+" = ?")
		args = append(args, val)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// Seed inserts records into the table for the given type. Missing fields
// insert as NULL. Used by tests and local fixtures.
func (s *SQLiteStore) Seed(ctx context.Context, t constants.ExportType, recs []entity.Record) error {
	spec, ok := tables[t]
	if !ok {
		return fmt.Errorf("no table for export type %q", t)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(spec.columns)), ", ")
	stmt := "INSERT INTO " + spec.name + " (" + strings.Join(spec.columns, ", ") + ") VALUES (" + placeholders + ")"
	for _, rec := range recs {
		args := make([]any, len(spec.columns))
		for i, col := range spec.columns {
			if v, ok := rec[col]; ok {
				if ts, isTime := v.(time.Time); isTime {
					args[i] = ts.UTC().Format(time.RFC3339)
				} else {
					args[i] = v
				}
			}
		}
		if _, err := s.db.ExecContext(ctx, stmt, args...); err != nil {
			return fmt.Errorf("seed %s: %w", spec.name, err)
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

type sqliteIterator struct {
	rows    *sql.Rows
	columns []string
	total   int64
}

func (it *sqliteIterator) Next(ctx context.Context) (entity.Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if !it.rows.Next() {
		if err := it.rows.Err(); err != nil {
			return nil, false, fmt.Errorf("%w: scan: %v", common.ErrDataSource, err)
		}
		return nil, false, nil
	}

	values := make([]any, len(it.columns))
	ptrs := make([]any, len(it.columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := it.rows.Scan(ptrs...); err != nil {
		return nil, false, fmt.Errorf("%w: scan: %v", common.ErrDataSource, err)
	}

	rec := make(entity.Record, len(it.columns))
	for i, col := range it.columns {
		rec[col] = values[i]
	}
	return rec, true, nil
}

func (it *sqliteIterator) EstimatedTotal() int64 { return it.total }

func (it *sqliteIterator) Close() error { return it.rows.Close() }
