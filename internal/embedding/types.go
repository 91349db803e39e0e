package embedding

import (
	"context"
	"errors"
)

var (
	// ErrEmbedding marks an item whose embedding could not be produced.
	ErrEmbedding = errors.New("embedding failed")
	// ErrUpsert marks a batch the vector sink rejected.
	ErrUpsert = errors.New("vector upsert failed")
)

// Item is a unit of text to embed.
type Item struct {
	ID       string
	Text     string
	Origin   string
	Metadata map[string]any
}

// Vector is an embedded item ready for upload.
type Vector struct {
	ID       string
	Values   []float32
	Metadata map[string]any
}

// Embedder produces the embedding for one text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorSink stores vectors, replacing existing entries with the same ID.
type VectorSink interface {
	Upsert(ctx context.Context, vectors []Vector) error
}

// Limiter paces outbound requests.
type Limiter interface {
	Wait(ctx context.Context, key string) error
}

// Observer receives pipeline progress.
type Observer interface {
	ItemEmbedded(id string, err error)
	BatchFlushed(size int, err error)
}
