package api

import (
	"context"
	"sync"
	"time"

	"github.com/JakeFAU/profile-harvester/internal/progress"
)

// Status is the live view of the run hosted by this process.
type Status struct {
	RunID      string    `json:"run_id,omitempty"`
	Kind       string    `json:"kind,omitempty"`
	StartURL   string    `json:"start_url,omitempty"`
	Phase      string    `json:"phase"`
	Page       int       `json:"page"`
	TotalCount int64     `json:"total_count"`
	Failures   int64     `json:"failures"`
	Finished   bool      `json:"finished"`
	Note       string    `json:"note,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// StatusSource reports the live run status.
type StatusSource interface {
	Status() Status
}

// StatusTracker is a progress.Sink that keeps the latest Status in memory.
type StatusTracker struct {
	mu     sync.RWMutex
	status Status
}

var (
	_ progress.Sink = (*StatusTracker)(nil)
	_ StatusSource  = (*StatusTracker)(nil)
)

// NewStatusTracker returns a tracker in the idle phase.
func NewStatusTracker() *StatusTracker {
	return &StatusTracker{status: Status{Phase: "idle"}}
}

// Status returns a snapshot of the current status.
func (t *StatusTracker) Status() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// Consume folds a batch of events into the status.
func (t *StatusTracker) Consume(_ context.Context, batch []progress.Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, evt := range batch {
		t.apply(evt)
	}
	return nil
}

func (t *StatusTracker) apply(evt progress.Event) {
	st := &t.status
	st.UpdatedAt = evt.TS
	if evt.Failed {
		st.Failures++
	}
	switch evt.Stage {
	case progress.StageRunStart:
		*st = Status{
			RunID:     evt.RunUUID().String(),
			Kind:      evt.Note,
			StartURL:  evt.URL,
			Phase:     "running",
			UpdatedAt: evt.TS,
		}
	case progress.StagePhase:
		st.Phase = evt.Phase
		st.Page = evt.Page
		st.TotalCount = evt.Total
	case progress.StagePageStored:
		st.Page = evt.Page
		st.TotalCount += evt.Count
	case progress.StageEmbedBatch:
		if !evt.Failed {
			st.TotalCount += evt.Count
		}
	case progress.StageProfileDone:
		if !evt.Failed {
			st.TotalCount++
		}
	case progress.StageRunDone, progress.StageRunError:
		st.Finished = true
		st.Phase = "finished"
		if evt.Stage == progress.StageRunError {
			st.Phase = "failed"
		}
		st.TotalCount = evt.Total
		st.Note = evt.Note
	}
}

// Close implements progress.Sink.
func (t *StatusTracker) Close(context.Context) error {
	return nil
}
