// Package progress defines the event structures emitted while harvesting.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart    Stage = "RUN_START"
	StageRunDone     Stage = "RUN_DONE"
	StageRunError    Stage = "RUN_ERROR"
	StagePhase       Stage = "CRAWL_PHASE"
	StagePageStored  Stage = "PAGE_STORED"
	StageCheckpoint  Stage = "CHECKPOINT"
	StageEmbedItem   Stage = "EMBED_ITEM"
	StageEmbedBatch  Stage = "EMBED_BATCH"
	StageProfileDone Stage = "PROFILE_DONE"
)

// Chatty reports whether the stage is emitted often enough that losing a few
// events under backpressure is acceptable. Other stages feed run totals.
func (s Stage) Chatty() bool {
	return s == StagePhase || s == StageEmbedItem
}

// Final reports whether the stage ends a run.
func (s Stage) Final() bool {
	return s == StageRunDone || s == StageRunError
}

// Event captures a single component of harvest progress.
type Event struct {
	// RunID uniquely identifies a run using the 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS    time.Time
	Stage Stage
	// Phase is the crawl phase for CRAWL_PHASE events.
	Phase string
	Page  int
	URL   string
	// Count is the number of units the event reports: new records, vectors
	// in a batch, screenshots taken.
	Count int64
	// Skipped counts units dropped without failing the step.
	Skipped int64
	// Total is the running total after the event, when known.
	Total  int64
	Failed bool
	Dur    time.Duration
	// Note carries low-volume context such as error text or a termination
	// reason.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunError, StageCheckpoint, StageEmbedItem, StageEmbedBatch:
	case StagePhase:
		if e.Phase == "" {
			return errors.New("phase event requires phase")
		}
	case StagePageStored:
		if e.Page <= 0 {
			return errors.New("page event requires page number")
		}
	case StageProfileDone:
		if e.URL == "" {
			return errors.New("profile event requires url")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Count < 0 || e.Skipped < 0 {
		return errors.New("counts must be >= 0")
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID for repositories.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}

// Outcome labels an event as "success" or "error".
func (e Event) Outcome() string {
	if e.Failed {
		return "error"
	}
	return "success"
}
