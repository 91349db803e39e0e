// Package poll provides bounded, context-aware waiting for page conditions.
package poll

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTimeout is returned when a condition does not hold before the deadline.
var ErrTimeout = errors.New("poll: condition not met before timeout")

// Condition is evaluated on every tick. A non-nil error aborts the wait.
type Condition func(ctx context.Context) (bool, error)

// Until evaluates cond immediately and then every interval until it reports
// true, the timeout elapses, or ctx is done. A non-positive timeout means a
// single evaluation.
func Until(ctx context.Context, interval, timeout time.Duration, cond Condition) error {
	ok, err := cond(ctx)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	if timeout <= 0 {
		return ErrTimeout
	}
	if interval <= 0 {
		interval = timeout / 10
		if interval <= 0 {
			interval = time.Millisecond
		}
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("poll canceled: %w", ctx.Err())
		case <-deadline.C:
			return ErrTimeout
		case <-ticker.C:
			ok, err := cond(ctx)
			if err != nil {
				return err
			}
			if ok {
				return nil
			}
		}
	}
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("sleep canceled: %w", ctx.Err())
	case <-t.C:
		return nil
	}
}
