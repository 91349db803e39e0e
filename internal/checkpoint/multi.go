package checkpoint

import (
	"context"
	"errors"

	"github.com/JakeFAU/profile-harvester/internal/crawler"
	"github.com/JakeFAU/profile-harvester/internal/metrics"
)

// Multi saves to every checkpointer in order. It attempts all of them and
// reports the joined failures.
type Multi []crawler.Checkpointer

// Save implements crawler.Checkpointer.
func (m Multi) Save(ctx context.Context, snap crawler.Snapshot) error {
	var errs []error
	for _, cp := range m {
		if err := cp.Save(ctx, snap); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Measured records every save against a backend label.
type Measured struct {
	Backend string
	Next    crawler.Checkpointer
}

// Save implements crawler.Checkpointer.
func (m Measured) Save(ctx context.Context, snap crawler.Snapshot) error {
	err := m.Next.Save(ctx, snap)
	metrics.ObserveCheckpoint(m.Backend, err)
	return err
}
