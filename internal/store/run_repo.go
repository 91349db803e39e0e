package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("run record not found")

// RunKind names the command that produced a run.
type RunKind string

// Run kinds.
const (
	KindCrawl    RunKind = "crawl"
	KindProfiles RunKind = "profiles"
	KindEmbed    RunKind = "embed"
)

// RunStatus mirrors the harvest_runs status column.
type RunStatus string

// Run statuses persisted in harvest_runs.status.
const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunError   RunStatus = "error"
)

// Run models the harvest_runs table for API responses.
type Run struct {
	ID       uuid.UUID
	Kind     RunKind
	StartURL string
	// StartedAt captures when the run was first marked running.
	StartedAt time.Time
	// FinishedAt is nil until the run is marked success/error.
	FinishedAt *time.Time
	Status     RunStatus
	// Reason is the crawl termination reason, if any.
	Reason string
	// Total is the final record, vector, or profile count.
	Total        int64
	ErrorMessage *string
}

// StageStats aggregates one progress stage of a run.
type StageStats struct {
	RunID      uuid.UUID
	Stage      string
	Succeeded  int64
	Failed     int64
	Units      int64
	LastUpdate time.Time
}

// RunRepository persists incremental run progress.
type RunRepository interface {
	// StartRun inserts (or idempotently updates) a running run.
	StartRun(ctx context.Context, run Run) error
	// CompleteRun marks the run finished.
	CompleteRun(
		ctx context.Context,
		runID uuid.UUID,
		finishedAt time.Time,
		status RunStatus,
		total int64,
		reason string,
		errMsg *string,
	) error
	// AddStageStats applies success/failure/unit deltas for one stage.
	AddStageStats(ctx context.Context, runID uuid.UUID, stage string, succeeded, failed, units int64, at time.Time) error

	// GetRun loads a single run or returns ErrNotFound.
	GetRun(ctx context.Context, runID uuid.UUID) (Run, error)
	// ListRuns returns runs filtered by optional status plus limit/offset.
	ListRuns(ctx context.Context, status *RunStatus, limit, offset int) ([]Run, error)
	// ListRunStages returns the per-stage aggregates for one run.
	ListRunStages(ctx context.Context, runID uuid.UUID) ([]StageStats, error)
}
