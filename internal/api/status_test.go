package api

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/profile-harvester/internal/progress"
)

func TestStatusTrackerFoldsEvents(t *testing.T) {
	t.Parallel()

	tracker := NewStatusTracker()
	assert.Equal(t, "idle", tracker.Status().Phase)

	runID := progress.UUIDToBytes(uuid.New())
	now := time.Unix(1700000000, 0).UTC()
	require.NoError(t, tracker.Consume(context.Background(), []progress.Event{
		{RunID: runID, TS: now, Stage: progress.StageRunStart, Note: "profiles"},
		{RunID: runID, TS: now, Stage: progress.StageProfileDone, URL: "https://x/in/a", Count: 3},
		{RunID: runID, TS: now, Stage: progress.StageProfileDone, URL: "https://x/in/b", Failed: true},
	}))
	st := tracker.Status()
	assert.Equal(t, "profiles", st.Kind)
	assert.Equal(t, int64(1), st.TotalCount)
	assert.Equal(t, int64(1), st.Failures)
	assert.False(t, st.Finished)

	require.NoError(t, tracker.Consume(context.Background(), []progress.Event{
		{RunID: runID, TS: now.Add(time.Minute), Stage: progress.StageRunDone, Total: 1},
	}))
	st = tracker.Status()
	assert.True(t, st.Finished)
	assert.Equal(t, "finished", st.Phase)
	assert.Equal(t, now.Add(time.Minute), st.UpdatedAt)
	require.NoError(t, tracker.Close(context.Background()))
}

func TestStatusTrackerCountsStoredPages(t *testing.T) {
	t.Parallel()

	tracker := NewStatusTracker()
	runID := progress.UUIDToBytes(uuid.New())
	now := time.Now()
	require.NoError(t, tracker.Consume(context.Background(), []progress.Event{
		{RunID: runID, TS: now, Stage: progress.StageRunStart},
		{RunID: runID, TS: now, Stage: progress.StagePageStored, Page: 1, Count: 100},
		{RunID: runID, TS: now, Stage: progress.StagePageStored, Page: 2, Count: 50},
		{RunID: runID, TS: now, Stage: progress.StageRunError, Failed: true, Note: "boom", Total: 150},
	}))
	st := tracker.Status()
	assert.Equal(t, 2, st.Page)
	assert.Equal(t, int64(150), st.TotalCount)
	assert.Equal(t, "failed", st.Phase)
	assert.Equal(t, "boom", st.Note)
}
