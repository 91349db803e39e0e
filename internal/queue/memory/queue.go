// Package memory provides a bounded in-memory target queue.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/profile-harvester/internal/profile"
)

// Queue is a bounded in-memory queue with context-aware operations.
type Queue struct {
	ch      chan profile.Target
	closeMu sync.Mutex
	closed  bool
}

var _ profile.Queue = (*Queue)(nil)

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	return &Queue{
		ch: make(chan profile.Target, capacity),
	}
}

// Enqueue pushes a target into the queue or returns if the context ends.
// The producer must not call Close while an Enqueue is in flight.
func (q *Queue) Enqueue(ctx context.Context, target profile.Target) error {
	q.closeMu.Lock()
	closed := q.closed
	q.closeMu.Unlock()
	if closed {
		return profile.ErrQueueClosed
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- target:
		return nil
	}
}

// Dequeue pops the next target, respecting context cancellation. After Close
// it drains remaining targets, then returns profile.ErrQueueClosed.
func (q *Queue) Dequeue(ctx context.Context) (profile.Target, error) {
	select {
	case <-ctx.Done():
		return profile.Target{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case target, ok := <-q.ch:
		if !ok {
			return profile.Target{}, profile.ErrQueueClosed
		}
		return target, nil
	}
}

// Len reports the number of buffered targets.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close closes the underlying channel for shutdown.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
