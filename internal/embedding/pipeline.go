package embedding

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// DefaultBatchSize is the number of vectors per upsert when unset.
const DefaultBatchSize = 100

// limiterKey identifies embedding requests to the rate limiter.
const limiterKey = "embedding"

// Config controls a Pipeline.
type Config struct {
	BatchSize int
	// Dimensions rejects embeddings of any other width when positive.
	Dimensions   int
	FlushTimeout time.Duration
}

// Result summarizes a pipeline run.
type Result struct {
	Embedded      int
	Uploaded      int
	EmbedFailures int
	Invalid       int
	BatchesSent   int
	BatchesFailed int
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithLimiter paces calls to the embedder.
func WithLimiter(l Limiter) Option {
	return func(p *Pipeline) {
		p.limiter = l
	}
}

// WithObserver registers a progress observer.
func WithObserver(o Observer) Option {
	return func(p *Pipeline) {
		if o != nil {
			p.observer = o
		}
	}
}

// Pipeline embeds items one at a time and uploads them in fixed-size batches.
// A failed batch is dropped and never retried.
type Pipeline struct {
	cfg      Config
	embedder Embedder
	sink     VectorSink
	limiter  Limiter
	observer Observer
	logger   *zap.Logger
}

// NewPipeline wires a Pipeline.
func NewPipeline(cfg Config, embedder Embedder, sink VectorSink, logger *zap.Logger, opts ...Option) *Pipeline {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pipeline{
		cfg:      cfg,
		embedder: embedder,
		sink:     sink,
		observer: nopObserver{},
		logger:   logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run embeds and uploads items. Per-item and per-batch failures are counted
// in the result; the returned error is non-nil only when ctx ends the run, in
// which case the partial batch has already been flushed.
func (p *Pipeline) Run(ctx context.Context, items []Item) (Result, error) {
	var res Result
	batch := make([]Vector, 0, p.cfg.BatchSize)

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return p.abort(ctx, &res, batch, err)
		}
		if item.ID == "" {
			res.Invalid++
			p.logger.Warn("skipping item without id", zap.Int("index", i))
			continue
		}

		vec, err := p.embed(ctx, item)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return p.abort(ctx, &res, batch, ctxErr)
			}
			res.EmbedFailures++
			p.observer.ItemEmbedded(item.ID, err)
			p.logger.Warn("embedding failed, skipping item", zap.String("id", item.ID), zap.Error(err))
			continue
		}
		res.Embedded++
		p.observer.ItemEmbedded(item.ID, nil)

		batch = append(batch, vec)
		if len(batch) >= p.cfg.BatchSize {
			p.flush(ctx, &res, batch)
			batch = make([]Vector, 0, p.cfg.BatchSize)
		}
	}
	if len(batch) > 0 {
		p.flush(ctx, &res, batch)
	}

	p.logger.Info("embedding run finished",
		zap.Int("embedded", res.Embedded),
		zap.Int("uploaded", res.Uploaded),
		zap.Int("embed_failures", res.EmbedFailures),
		zap.Int("batches_sent", res.BatchesSent),
		zap.Int("batches_failed", res.BatchesFailed),
	)
	return res, nil
}

func (p *Pipeline) embed(ctx context.Context, item Item) (Vector, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx, limiterKey); err != nil {
			return Vector{}, fmt.Errorf("%w: %w", ErrEmbedding, err)
		}
	}
	values, err := p.embedder.Embed(ctx, item.Text)
	if err != nil {
		return Vector{}, fmt.Errorf("%w: %s: %w", ErrEmbedding, item.ID, err)
	}
	if p.cfg.Dimensions > 0 && len(values) != p.cfg.Dimensions {
		return Vector{}, fmt.Errorf("%w: %s: got %d dimensions, want %d",
			ErrEmbedding, item.ID, len(values), p.cfg.Dimensions)
	}

	meta := make(map[string]any, len(item.Metadata)+2)
	for k, v := range item.Metadata {
		meta[k] = v
	}
	meta["text"] = item.Text
	if item.Origin != "" {
		meta["origin"] = item.Origin
	}
	return Vector{ID: item.ID, Values: values, Metadata: meta}, nil
}

func (p *Pipeline) flush(ctx context.Context, res *Result, batch []Vector) {
	res.BatchesSent++
	if err := p.sink.Upsert(ctx, batch); err != nil {
		res.BatchesFailed++
		err = fmt.Errorf("%w: %w", ErrUpsert, err)
		p.observer.BatchFlushed(len(batch), err)
		p.logger.Error("batch upload failed, dropping batch",
			zap.Int("batch", res.BatchesSent),
			zap.Int("size", len(batch)),
			zap.Error(err),
		)
		return
	}
	res.Uploaded += len(batch)
	p.observer.BatchFlushed(len(batch), nil)
	p.logger.Info("batch uploaded", zap.Int("batch", res.BatchesSent), zap.Int("size", len(batch)))
}

// abort flushes the partial batch on a detached context and reports the
// cancellation.
func (p *Pipeline) abort(ctx context.Context, res *Result, batch []Vector, cause error) (Result, error) {
	if len(batch) > 0 {
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.FlushTimeout)
		p.flush(flushCtx, res, batch)
		cancel()
	}
	p.logger.Warn("embedding run canceled",
		zap.Int("embedded", res.Embedded),
		zap.Int("uploaded", res.Uploaded),
	)
	return *res, fmt.Errorf("embedding run canceled: %w", cause)
}

type nopObserver struct{}

func (nopObserver) ItemEmbedded(string, error) {}

func (nopObserver) BatchFlushed(int, error) {}
