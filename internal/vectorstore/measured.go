package vectorstore

import (
	"context"

	"github.com/JakeFAU/profile-harvester/internal/embedding"
	"github.com/JakeFAU/profile-harvester/internal/metrics"
)

// Measured records every upsert against a sink label.
type Measured struct {
	Sink string
	Next embedding.VectorSink
}

var _ embedding.VectorSink = Measured{}

// Upsert implements embedding.VectorSink.
func (m Measured) Upsert(ctx context.Context, vectors []embedding.Vector) error {
	err := m.Next.Upsert(ctx, vectors)
	metrics.ObserveVectorUpsert(m.Sink, len(vectors), err)
	return err
}
