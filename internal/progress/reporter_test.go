package progress

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/profile-harvester/internal/crawler"
)

type captureEmitter struct {
	mu     sync.Mutex
	events []Event
}

func (c *captureEmitter) Emit(evt Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
}

type stepClock struct {
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.now = c.now.Add(time.Second)
	return c.now
}

func TestReporterEmitsCrawlEvents(t *testing.T) {
	t.Parallel()

	emitter := &captureEmitter{}
	runID := UUIDToBytes(uuid.New())
	r := NewReporter(emitter, runID, &stepClock{now: time.Unix(0, 0)})

	r.RunStarted("crawl", "https://www.linkedin.com/search/results/people/")
	r.PhaseChanged(crawler.PhaseFetching, 1, 0)
	r.PageStored(1, 10, 2)
	r.CheckpointSaved(10, errors.New("disk full"))
	r.RunFinished(10, "exhausted", nil)

	require.Len(t, emitter.events, 5)
	for _, evt := range emitter.events {
		assert.Equal(t, runID, evt.RunID)
		assert.NoError(t, evt.Validate())
	}
	assert.Equal(t, "fetching_page", emitter.events[1].Phase)
	assert.Equal(t, int64(10), emitter.events[2].Count)
	assert.Equal(t, int64(2), emitter.events[2].Skipped)
	assert.True(t, emitter.events[3].Failed)
	assert.Equal(t, "disk full", emitter.events[3].Note)
	assert.Equal(t, StageRunDone, emitter.events[4].Stage)
	assert.Positive(t, emitter.events[4].Dur)
}

func TestReporterEmitsEmbeddingAndProfileEvents(t *testing.T) {
	t.Parallel()

	emitter := &captureEmitter{}
	r := NewReporter(emitter, UUIDToBytes(uuid.New()), &stepClock{})

	r.ItemEmbedded("a", nil)
	r.BatchFlushed(100, errors.New("unavailable"))
	r.TargetDone("https://www.linkedin.com/in/alice", 3, nil)
	r.RunFinished(0, "", errors.New("canceled"))

	require.Len(t, emitter.events, 4)
	assert.Equal(t, "success", emitter.events[0].Outcome())
	assert.Equal(t, "error", emitter.events[1].Outcome())
	assert.Equal(t, int64(3), emitter.events[2].Count)
	assert.Equal(t, StageRunError, emitter.events[3].Stage)
}

func TestNilReporterIsSafe(t *testing.T) {
	t.Parallel()

	var r *Reporter
	r.RunStarted("crawl", "x")
	r.PageStored(1, 1, 0)
	r.RunFinished(0, "", nil)
}
