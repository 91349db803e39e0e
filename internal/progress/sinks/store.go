package sinks

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/profile-harvester/internal/progress"
	"github.com/JakeFAU/profile-harvester/internal/store"
)

// StoreSink persists progress deltas via a store.RunRepository. It collapses
// stage counters per batch to reduce write amplification.
type StoreSink struct {
	repo   store.RunRepository
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo store.RunRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

// Consume forwards run lifecycle events immediately and stage deltas once per
// batch. Stage deltas are flushed before a completion so totals land first.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	stats := make(map[statsKey]*statsDelta)

	for _, evt := range batch {
		runID := evt.RunUUID()
		switch evt.Stage {
		case progress.StageRunStart:
			run := store.Run{
				ID:        runID,
				Kind:      store.RunKind(evt.Note),
				StartURL:  evt.URL,
				StartedAt: evt.TS,
			}
			if err := s.repo.StartRun(ctx, run); err != nil {
				return fmt.Errorf("start run: %w", err)
			}
		case progress.StageRunDone, progress.StageRunError:
			if err := s.flushStats(ctx, stats); err != nil {
				return err
			}
			if err := s.completeRun(ctx, runID, evt); err != nil {
				return err
			}
		case progress.StagePhase:
		default:
			recordStageStats(stats, runID, evt)
		}
	}
	return s.flushStats(ctx, stats)
}

func (s *StoreSink) completeRun(ctx context.Context, runID uuid.UUID, evt progress.Event) error {
	status := store.RunSuccess
	reason := evt.Note
	var errMsg *string
	if evt.Stage == progress.StageRunError {
		status = store.RunError
		reason = ""
		if evt.Note != "" {
			note := evt.Note
			errMsg = &note
		}
	}
	if err := s.repo.CompleteRun(ctx, runID, evt.TS, status, evt.Total, reason, errMsg); err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	return nil
}

func (s *StoreSink) flushStats(ctx context.Context, stats map[statsKey]*statsDelta) error {
	for key, delta := range stats {
		if err := s.repo.AddStageStats(
			ctx,
			key.runID,
			key.stage,
			delta.succeeded,
			delta.failed,
			delta.units,
			delta.at,
		); err != nil {
			return fmt.Errorf("add stage stats: %w", err)
		}
		delete(stats, key)
	}
	return nil
}

func recordStageStats(stats map[statsKey]*statsDelta, runID uuid.UUID, evt progress.Event) {
	key := statsKey{runID: runID, stage: string(evt.Stage)}
	stat := stats[key]
	if stat == nil {
		stat = &statsDelta{}
		stats[key] = stat
	}
	if evt.Failed {
		stat.failed++
	} else {
		stat.succeeded++
	}
	stat.units += evt.Count
	if evt.TS.After(stat.at) || stat.at.IsZero() {
		stat.at = evt.TS
	}
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}

type statsKey struct {
	runID uuid.UUID
	stage string
}

type statsDelta struct {
	succeeded int64
	failed    int64
	units     int64
	at        time.Time
}
