package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/sweetpotato0/agri-advisor/advisory"
	"github.com/sweetpotato0/agri-advisor/audit"
)

// PostgresStore keeps audit entries in a pipeline_runs table.
type PostgresStore struct {
	db *sqlx.DB
}

type runRow struct {
	RunID      string    `db:"run_id"`
	Query      string    `db:"query"`
	Status     string    `db:"status"`
	Source     string    `db:"source"`
	Conflict   bool      `db:"conflict"`
	Errors     []byte    `db:"errors"`
	Trace      []byte    `db:"trace"`
	AdviceText string    `db:"advice_text"`
	StartedAt  time.Time `db:"started_at"`
	FinishedAt time.Time `db:"finished_at"`
}

// NewPostgresStore connects to dsn and creates the table if needed.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	s := &PostgresStore{db: db}
	if err := s.createTable(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) createTable(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS pipeline_runs (
		run_id VARCHAR(64) PRIMARY KEY,
		query TEXT NOT NULL,
		status VARCHAR(32) NOT NULL,
		source VARCHAR(64) NOT NULL,
		conflict BOOLEAN NOT NULL DEFAULT FALSE,
		errors JSONB NOT NULL DEFAULT '[]',
		trace JSONB NOT NULL DEFAULT '[]',
		advice_text TEXT NOT NULL DEFAULT '',
		started_at TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_pipeline_runs_started_at ON pipeline_runs(started_at DESC);
	`
	_, err := s.db.ExecContext(ctx, query)
	return err
}

// Save inserts or replaces an entry.
func (s *PostgresStore) Save(ctx context.Context, e audit.Entry) error {
	row, err := toRow(e)
	if err != nil {
		return err
	}
	query := `
	INSERT INTO pipeline_runs (run_id, query, status, source, conflict, errors, trace, advice_text, started_at, finished_at)
	VALUES (:run_id, :query, :status, :source, :conflict, :errors, :trace, :advice_text, :started_at, :finished_at)
	ON CONFLICT (run_id) DO UPDATE SET
		status = EXCLUDED.status,
		source = EXCLUDED.source,
		conflict = EXCLUDED.conflict,
		errors = EXCLUDED.errors,
		trace = EXCLUDED.trace,
		advice_text = EXCLUDED.advice_text,
		finished_at = EXCLUDED.finished_at
	`
	if _, err := s.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("failed to save run to PostgreSQL: %w", err)
	}
	return nil
}

// Recent returns the latest entries, newest first.
func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]audit.Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []runRow
	err := s.db.SelectContext(ctx, &rows, `
	SELECT run_id, query, status, source, conflict, errors, trace, advice_text, started_at, finished_at
	FROM pipeline_runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}

	out := make([]audit.Entry, 0, len(rows))
	for _, r := range rows {
		e, err := r.entry()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// Clear removes every entry.
func (s *PostgresStore) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM pipeline_runs`)
	return err
}

// Close closes the database handle.
func (s *PostgresStore) Close(context.Context) error {
	return s.db.Close()
}

func toRow(e audit.Entry) (runRow, error) {
	errs := e.Errors
	if errs == nil {
		errs = []string{}
	}
	errJSON, err := json.Marshal(errs)
	if err != nil {
		return runRow{}, fmt.Errorf("failed to marshal errors: %w", err)
	}
	trace := e.Trace
	if trace == nil {
		trace = []advisory.TraceEntry{}
	}
	traceJSON, err := json.Marshal(trace)
	if err != nil {
		return runRow{}, fmt.Errorf("failed to marshal trace: %w", err)
	}
	return runRow{
		RunID:      e.RunID,
		Query:      e.Query,
		Status:     string(e.Status),
		Source:     e.Source,
		Conflict:   e.Conflict,
		Errors:     errJSON,
		Trace:      traceJSON,
		AdviceText: e.AdviceText,
		StartedAt:  e.StartedAt,
		FinishedAt: e.FinishedAt,
	}, nil
}

func (r runRow) entry() (audit.Entry, error) {
	e := audit.Entry{
		RunID:      r.RunID,
		Query:      r.Query,
		Status:     advisory.Status(r.Status),
		Source:     r.Source,
		Conflict:   r.Conflict,
		AdviceText: r.AdviceText,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
	}
	if err := json.Unmarshal(r.Errors, &e.Errors); err != nil {
		return audit.Entry{}, fmt.Errorf("failed to decode errors of run %s: %w", r.RunID, err)
	}
	if err := json.Unmarshal(r.Trace, &e.Trace); err != nil {
		return audit.Entry{}, fmt.Errorf("failed to decode trace of run %s: %w", r.RunID, err)
	}
	return e, nil
}
