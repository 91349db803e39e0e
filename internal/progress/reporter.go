package progress

import (
	"time"

	"github.com/JakeFAU/profile-harvester/internal/crawler"
)

// Clock supplies event timestamps.
type Clock interface {
	Now() time.Time
}

// Reporter turns component callbacks into Events for one run. It satisfies
// crawler.Observer, embedding.Observer, and worker.Observer.
type Reporter struct {
	emitter Emitter
	runID   [16]byte
	clock   Clock
	started time.Time
}

var _ crawler.Observer = (*Reporter)(nil)

// NewReporter binds an emitter to a run.
func NewReporter(emitter Emitter, runID [16]byte, clock Clock) *Reporter {
	return &Reporter{emitter: emitter, runID: runID, clock: clock}
}

func (r *Reporter) emit(evt Event) {
	if r == nil || r.emitter == nil {
		return
	}
	evt.RunID = r.runID
	evt.TS = r.clock.Now().UTC()
	r.emitter.Emit(evt)
}

// RunStarted marks the beginning of a run of the given kind.
func (r *Reporter) RunStarted(kind, startURL string) {
	if r == nil {
		return
	}
	r.started = r.clock.Now()
	r.emit(Event{Stage: StageRunStart, URL: startURL, Note: kind})
}

// RunFinished marks the end of the run. A non-nil err records a failure.
func (r *Reporter) RunFinished(total int, note string, err error) {
	if r == nil {
		return
	}
	evt := Event{Stage: StageRunDone, Total: int64(total), Note: note}
	if !r.started.IsZero() {
		if d := r.clock.Now().Sub(r.started); d > 0 {
			evt.Dur = d
		}
	}
	if err != nil {
		evt.Stage = StageRunError
		evt.Failed = true
		evt.Note = err.Error()
	}
	r.emit(evt)
}

// PhaseChanged implements crawler.Observer.
func (r *Reporter) PhaseChanged(phase crawler.Phase, page, total int) {
	r.emit(Event{Stage: StagePhase, Phase: string(phase), Page: page, Total: int64(total)})
}

// PageStored implements crawler.Observer.
func (r *Reporter) PageStored(page, added, skipped int) {
	r.emit(Event{Stage: StagePageStored, Page: page, Count: int64(added), Skipped: int64(skipped)})
}

// CheckpointSaved implements crawler.Observer.
func (r *Reporter) CheckpointSaved(total int, err error) {
	evt := Event{Stage: StageCheckpoint, Total: int64(total)}
	if err != nil {
		evt.Failed = true
		evt.Note = err.Error()
	}
	r.emit(evt)
}

// ItemEmbedded implements embedding.Observer.
func (r *Reporter) ItemEmbedded(id string, err error) {
	evt := Event{Stage: StageEmbedItem, URL: id, Count: 1}
	if err != nil {
		evt.Failed = true
		evt.Note = err.Error()
	}
	r.emit(evt)
}

// BatchFlushed implements embedding.Observer.
func (r *Reporter) BatchFlushed(size int, err error) {
	evt := Event{Stage: StageEmbedBatch, Count: int64(size)}
	if err != nil {
		evt.Failed = true
		evt.Note = err.Error()
	}
	r.emit(evt)
}

// TargetDone implements worker.Observer.
func (r *Reporter) TargetDone(url string, shots int, err error) {
	evt := Event{Stage: StageProfileDone, URL: url, Count: int64(shots)}
	if err != nil {
		evt.Failed = true
		evt.Note = err.Error()
	}
	r.emit(evt)
}
