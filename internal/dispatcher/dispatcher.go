// Package dispatcher fans profile targets out to a fixed pool of workers.
package dispatcher

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/profile-harvester/internal/profile"
)

// DefaultWorkers is the pool size used by the profiles command.
const DefaultWorkers = 5

// Queue is a closable target queue.
type Queue interface {
	profile.Queue
	Close()
}

// Runner is a worker loop that returns once the queue is drained.
type Runner interface {
	Run(ctx context.Context) error
}

// Dispatcher fans out queue work to a pool of workers.
type Dispatcher struct {
	queue   Queue
	workers []Runner
}

// New creates a Dispatcher.
func New(queue Queue, workers []Runner) *Dispatcher {
	return &Dispatcher{
		queue:   queue,
		workers: workers,
	}
}

// Run feeds targets to the queue, closes it, and blocks until every worker
// has drained it or ctx finishes.
func (d *Dispatcher) Run(ctx context.Context, targets []profile.Target) error {
	if len(d.workers) == 0 {
		return errors.New("dispatcher has no workers")
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, w := range d.workers {
		g.Go(func() error {
			return w.Run(gctx)
		})
	}
	g.Go(func() error {
		defer d.queue.Close()
		for _, t := range targets {
			if err := d.Enqueue(gctx, t); err != nil {
				return err
			}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("dispatch: %w", err)
	}
	return nil
}

// Enqueue proxies to the underlying queue.
func (d *Dispatcher) Enqueue(ctx context.Context, target profile.Target) error {
	if err := d.queue.Enqueue(ctx, target); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}
