package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/profile-harvester/internal/store"
)

// RunStore keeps run progress in memory for development and tests.
type RunStore struct {
	mu     sync.RWMutex
	runs   map[uuid.UUID]store.Run
	stages map[uuid.UUID]map[string]store.StageStats
}

var _ store.RunRepository = (*RunStore)(nil)

// NewRunStore constructs a RunStore.
func NewRunStore() *RunStore {
	return &RunStore{
		runs:   make(map[uuid.UUID]store.Run),
		stages: make(map[uuid.UUID]map[string]store.StageStats),
	}
}

// StartRun records a running run, keeping the original start time on repeat.
func (s *RunStore) StartRun(_ context.Context, run store.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.runs[run.ID]; ok {
		existing.Status = store.RunRunning
		s.runs[run.ID] = existing
		return nil
	}
	run.Status = store.RunRunning
	s.runs[run.ID] = run
	return nil
}

// CompleteRun marks a run finished.
func (s *RunStore) CompleteRun(
	_ context.Context,
	runID uuid.UUID,
	finishedAt time.Time,
	status store.RunStatus,
	total int64,
	reason string,
	errMsg *string,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return store.ErrNotFound
	}
	run.FinishedAt = &finishedAt
	run.Status = status
	run.Total = total
	run.Reason = reason
	run.ErrorMessage = errMsg
	s.runs[runID] = run
	return nil
}

// AddStageStats accumulates stage deltas.
func (s *RunStore) AddStageStats(
	_ context.Context,
	runID uuid.UUID,
	stage string,
	succeeded, failed, units int64,
	at time.Time,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byStage, ok := s.stages[runID]
	if !ok {
		byStage = make(map[string]store.StageStats)
		s.stages[runID] = byStage
	}
	st := byStage[stage]
	st.RunID = runID
	st.Stage = stage
	st.Succeeded += succeeded
	st.Failed += failed
	st.Units += units
	st.LastUpdate = at
	byStage[stage] = st
	return nil
}

// GetRun fetches a run by ID.
func (s *RunStore) GetRun(_ context.Context, runID uuid.UUID) (store.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	if !ok {
		return store.Run{}, store.ErrNotFound
	}
	return run, nil
}

// ListRuns returns runs newest first.
func (s *RunStore) ListRuns(_ context.Context, status *store.RunStatus, limit, offset int) ([]store.Run, error) {
	s.mu.RLock()
	runs := make([]store.Run, 0, len(s.runs))
	for _, run := range s.runs {
		if status != nil && run.Status != *status {
			continue
		}
		runs = append(runs, run)
	}
	s.mu.RUnlock()

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	if offset >= len(runs) {
		return nil, nil
	}
	runs = runs[offset:]
	if limit > 0 && limit < len(runs) {
		runs = runs[:limit]
	}
	return runs, nil
}

// ListRunStages returns stage aggregates ordered by stage name.
func (s *RunStore) ListRunStages(_ context.Context, runID uuid.UUID) ([]store.StageStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byStage := s.stages[runID]
	out := make([]store.StageStats, 0, len(byStage))
	for _, st := range byStage {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Stage < out[j].Stage })
	return out, nil
}
