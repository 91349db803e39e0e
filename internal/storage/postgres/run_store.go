// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/profile-harvester/internal/store"
)

// Schema creates the tables RunStore writes to.
const Schema = `
CREATE TABLE IF NOT EXISTS harvest_runs (
	id            UUID PRIMARY KEY,
	kind          TEXT NOT NULL,
	start_url     TEXT NOT NULL DEFAULT '',
	started_at    TIMESTAMPTZ NOT NULL,
	finished_at   TIMESTAMPTZ,
	status        TEXT NOT NULL,
	reason        TEXT NOT NULL DEFAULT '',
	total         BIGINT NOT NULL DEFAULT 0,
	error_message TEXT
);
CREATE TABLE IF NOT EXISTS harvest_run_stages (
	run_id      UUID NOT NULL REFERENCES harvest_runs (id) ON DELETE CASCADE,
	stage       TEXT NOT NULL,
	succeeded   BIGINT NOT NULL DEFAULT 0,
	failed      BIGINT NOT NULL DEFAULT 0,
	units       BIGINT NOT NULL DEFAULT 0,
	last_update TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (run_id, stage)
);`

type runPool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// RunStore implements the store.RunRepository interface using Postgres.
type RunStore struct {
	pool runPool
}

var _ store.RunRepository = (*RunStore)(nil)

// NewRunStore creates a new RunStore.
func NewRunStore(ctx context.Context, dsn string) (*RunStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	return &RunStore{pool: pool}, nil
}

// NewRunStoreWithPool wraps an existing pool.
func NewRunStoreWithPool(p runPool) *RunStore {
	return &RunStore{pool: p}
}

// Close closes the underlying connection pool.
func (s *RunStore) Close() {
	s.pool.Close()
}

// Ping verifies the database answers queries.
func (s *RunStore) Ping(ctx context.Context) error {
	var one int
	if err := s.pool.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}

// EnsureSchema creates the run tables when missing.
func (s *RunStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create run schema: %w", err)
	}
	return nil
}

// StartRun inserts a run or flips an existing one back to running.
func (s *RunStore) StartRun(ctx context.Context, run store.Run) error {
	query := `
		INSERT INTO harvest_runs (id, kind, start_url, started_at, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status
		WHERE harvest_runs.status <> EXCLUDED.status;
	`
	_, err := s.pool.Exec(ctx, query, run.ID, run.Kind, run.StartURL, run.StartedAt, store.RunRunning)
	if err != nil {
		return fmt.Errorf("failed to upsert run start: %w", err)
	}
	return nil
}

// CompleteRun marks a run as finished with a status and optional error message.
func (s *RunStore) CompleteRun(
	ctx context.Context,
	runID uuid.UUID,
	finishedAt time.Time,
	status store.RunStatus,
	total int64,
	reason string,
	errMsg *string,
) error {
	query := `
		UPDATE harvest_runs
		SET finished_at = $1, status = $2, total = $3, reason = $4, error_message = $5
		WHERE id = $6;
	`
	res, err := s.pool.Exec(ctx, query, finishedAt, status, total, reason, errMsg, runID)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	if res.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// AddStageStats adds deltas to the per-stage counters of a run.
func (s *RunStore) AddStageStats(
	ctx context.Context,
	runID uuid.UUID,
	stage string,
	succeeded,
	failed,
	units int64,
	at time.Time,
) error {
	query := `
		INSERT INTO harvest_run_stages (run_id, stage, succeeded, failed, units, last_update)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (run_id, stage) DO UPDATE
		SET succeeded = harvest_run_stages.succeeded + EXCLUDED.succeeded,
			failed = harvest_run_stages.failed + EXCLUDED.failed,
			units = harvest_run_stages.units + EXCLUDED.units,
			last_update = EXCLUDED.last_update;
	`
	if _, err := s.pool.Exec(ctx, query, runID, stage, succeeded, failed, units, at); err != nil {
		return fmt.Errorf("failed to update stage stats: %w", err)
	}
	return nil
}

const runColumns = `id, kind, start_url, started_at, finished_at, status, reason, total, error_message`

// GetRun retrieves a single run by its ID.
func (s *RunStore) GetRun(ctx context.Context, runID uuid.UUID) (store.Run, error) {
	query := `SELECT ` + runColumns + ` FROM harvest_runs WHERE id = $1;`
	run, err := scanRun(s.pool.QueryRow(ctx, query, runID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Run{}, store.ErrNotFound
		}
		return store.Run{}, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns retrieves runs newest first, with optional status filtering.
func (s *RunStore) ListRuns(
	ctx context.Context,
	status *store.RunStatus,
	limit,
	offset int,
) ([]store.Run, error) {
	query := `SELECT ` + runColumns + `
		FROM harvest_runs
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3;`
	rows, err := s.pool.Query(ctx, query, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []store.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return runs, nil
}

// ListRunStages retrieves the stage aggregates for a run.
func (s *RunStore) ListRunStages(ctx context.Context, runID uuid.UUID) ([]store.StageStats, error) {
	query := `
		SELECT run_id, stage, succeeded, failed, units, last_update
		FROM harvest_run_stages
		WHERE run_id = $1
		ORDER BY stage;
	`
	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list run stages: %w", err)
	}
	defer rows.Close()

	var stats []store.StageStats
	for rows.Next() {
		var st store.StageStats
		if err := rows.Scan(&st.RunID, &st.Stage, &st.Succeeded, &st.Failed, &st.Units, &st.LastUpdate); err != nil {
			return nil, fmt.Errorf("failed to scan stage row: %w", err)
		}
		stats = append(stats, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate stages: %w", err)
	}
	return stats, nil
}

func scanRun(row pgx.Row) (store.Run, error) {
	var (
		run    store.Run
		kind   string
		status string
	)
	err := row.Scan(
		&run.ID,
		&kind,
		&run.StartURL,
		&run.StartedAt,
		&run.FinishedAt,
		&status,
		&run.Reason,
		&run.Total,
		&run.ErrorMessage,
	)
	if err != nil {
		return store.Run{}, err
	}
	run.Kind = store.RunKind(kind)
	run.Status = store.RunStatus(status)
	return run, nil
}
