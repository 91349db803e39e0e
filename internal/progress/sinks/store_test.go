package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/profile-harvester/internal/progress"
	"github.com/JakeFAU/profile-harvester/internal/store"
)

// TestStoreSinkPersistsEvents ensures stage deltas are collapsed per batch before persisting.
func TestStoreSinkPersistsEvents(t *testing.T) {
	t.Parallel()

	repo := &fakeRunRepo{}
	sink := NewStoreSink(repo, nil)
	runUUID := uuid.New()
	runID := progress.UUIDToBytes(runUUID)
	now := time.Now()

	batch := []progress.Event{
		{RunID: runID, Stage: progress.StageRunStart, TS: now, URL: "https://example.com/list", Note: "crawl"},
		{RunID: runID, Stage: progress.StagePhase, TS: now, Phase: "scrolling", Page: 1},
		{RunID: runID, Stage: progress.StagePageStored, TS: now.Add(time.Second), Page: 1, Count: 20},
		{RunID: runID, Stage: progress.StagePageStored, TS: now.Add(2 * time.Second), Page: 2, Count: 10},
		{RunID: runID, Stage: progress.StageCheckpoint, TS: now.Add(2 * time.Second), Failed: true, Note: "disk full"},
		{RunID: runID, Stage: progress.StageRunDone, TS: now.Add(3 * time.Second), Total: 30, Note: "max_pages"},
	}

	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Len(t, repo.starts, 1)
	require.Equal(t, store.KindCrawl, repo.starts[0].Kind)
	require.Equal(t, "https://example.com/list", repo.starts[0].StartURL)

	require.Len(t, repo.stages, 2)
	byStage := map[string]stageCall{}
	for _, c := range repo.stages {
		byStage[c.stage] = c
	}
	pages := byStage["PAGE_STORED"]
	require.Equal(t, int64(2), pages.succeeded)
	require.Equal(t, int64(30), pages.units)
	require.Equal(t, now.Add(2*time.Second), pages.at)
	require.Equal(t, int64(1), byStage["CHECKPOINT"].failed)

	require.Len(t, repo.completes, 1)
	done := repo.completes[0]
	require.Equal(t, runUUID, done.runID)
	require.Equal(t, store.RunSuccess, done.status)
	require.Equal(t, int64(30), done.total)
	require.Equal(t, "max_pages", done.reason)
	require.Nil(t, done.errMsg)
	require.Equal(t, len(repo.calls)-1, indexOf(repo.calls, "complete"))
}

func TestStoreSinkRecordsRunError(t *testing.T) {
	t.Parallel()

	repo := &fakeRunRepo{}
	sink := NewStoreSink(repo, nil)
	runID := progress.UUIDToBytes(uuid.New())

	err := sink.Consume(context.Background(), []progress.Event{
		{RunID: runID, Stage: progress.StageRunError, TS: time.Now(), Failed: true, Note: "browser crashed"},
	})
	require.NoError(t, err)
	require.Len(t, repo.completes, 1)
	require.Equal(t, store.RunError, repo.completes[0].status)
	require.NotNil(t, repo.completes[0].errMsg)
	require.Equal(t, "browser crashed", *repo.completes[0].errMsg)
}

// TestStoreSinkHandlesErrors surfaces repository failures back to the caller.
func TestStoreSinkHandlesErrors(t *testing.T) {
	t.Parallel()

	repo := &fakeRunRepo{fail: true}
	sink := NewStoreSink(repo, nil)
	runID := progress.UUIDToBytes(uuid.New())
	err := sink.Consume(context.Background(), []progress.Event{
		{RunID: runID, Stage: progress.StageRunStart, TS: time.Now()},
	})
	require.Error(t, err)
}

func indexOf(calls []string, name string) int {
	for i, c := range calls {
		if c == name {
			return i
		}
	}
	return -1
}

type fakeRunRepo struct {
	fail      bool
	calls     []string
	starts    []store.Run
	completes []completeCall
	stages    []stageCall
}

type completeCall struct {
	runID  uuid.UUID
	status store.RunStatus
	total  int64
	reason string
	errMsg *string
}

type stageCall struct {
	stage     string
	succeeded int64
	failed    int64
	units     int64
	at        time.Time
}

func (f *fakeRunRepo) StartRun(_ context.Context, run store.Run) error {
	if f.fail {
		return assertErr("start")
	}
	f.calls = append(f.calls, "start")
	f.starts = append(f.starts, run)
	return nil
}

func (f *fakeRunRepo) CompleteRun(
	_ context.Context,
	runID uuid.UUID,
	_ time.Time,
	status store.RunStatus,
	total int64,
	reason string,
	errMsg *string,
) error {
	if f.fail {
		return assertErr("complete")
	}
	f.calls = append(f.calls, "complete")
	f.completes = append(f.completes, completeCall{
		runID:  runID,
		status: status,
		total:  total,
		reason: reason,
		errMsg: errMsg,
	})
	return nil
}

func (f *fakeRunRepo) AddStageStats(
	_ context.Context,
	_ uuid.UUID,
	stage string,
	succeeded, failed, units int64,
	at time.Time,
) error {
	if f.fail {
		return assertErr("stage")
	}
	f.calls = append(f.calls, "stage")
	f.stages = append(f.stages, stageCall{stage: stage, succeeded: succeeded, failed: failed, units: units, at: at})
	return nil
}

func (f *fakeRunRepo) GetRun(context.Context, uuid.UUID) (store.Run, error) {
	return store.Run{}, assertErr("read")
}

func (f *fakeRunRepo) ListRuns(context.Context, *store.RunStatus, int, int) ([]store.Run, error) {
	return nil, assertErr("list")
}

func (f *fakeRunRepo) ListRunStages(context.Context, uuid.UUID) ([]store.StageStats, error) {
	return nil, assertErr("stages")
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
