// Package worker implements the profile processing loop.
package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/profile-harvester/internal/metrics"
	"github.com/JakeFAU/profile-harvester/internal/profile"
)

// BlobStore archives screenshots.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Limiter paces navigation per host.
type Limiter interface {
	Wait(ctx context.Context, url string) error
}

// Observer is told about each finished target.
type Observer interface {
	TargetDone(url string, shots int, err error)
}

// Config controls Worker behavior.
type Config struct {
	ID      int
	RunID   string
	Capture profile.CaptureConfig
	// ArchivePrefix is prepended to screenshot object paths.
	ArchivePrefix string
}

// Worker consumes profile targets with its own browser page.
type Worker struct {
	queue    profile.Queue
	page     profile.Page
	analyzer profile.Analyzer
	output   *profile.OutputFile
	blobs    BlobStore
	limiter  Limiter
	observer Observer
	cfg      Config
	logger   *zap.Logger
}

// Option customizes a Worker.
type Option func(*Worker)

// WithBlobStore archives screenshots to store.
func WithBlobStore(store BlobStore) Option {
	return func(w *Worker) { w.blobs = store }
}

// WithLimiter paces navigations.
func WithLimiter(l Limiter) Option {
	return func(w *Worker) { w.limiter = l }
}

// WithObserver registers a completion observer.
func WithObserver(o Observer) Option {
	return func(w *Worker) {
		if o != nil {
			w.observer = o
		}
	}
}

// New constructs a Worker.
func New(
	queue profile.Queue,
	page profile.Page,
	analyzer profile.Analyzer,
	output *profile.OutputFile,
	cfg Config,
	logger *zap.Logger,
	opts ...Option,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &Worker{
		queue:    queue,
		page:     page,
		analyzer: analyzer,
		output:   output,
		observer: nopObserver{},
		cfg:      cfg,
		logger:   logger.With(zap.Int("worker", cfg.ID)),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run blocks, consuming targets until the queue is drained or the context
// finishes.
func (w *Worker) Run(ctx context.Context) error {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()
	for {
		target, err := w.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, profile.ErrQueueClosed) {
				return nil
			}
			if ctx.Err() != nil {
				return fmt.Errorf("worker %d stopped: %w", w.cfg.ID, ctx.Err())
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued target", zap.String("url", target.URL))
		shots, err := w.processTarget(ctx, target)
		w.observer.TargetDone(target.URL, shots, err)
		if err != nil {
			w.logger.Error("profile processing failed", zap.String("url", target.URL), zap.Error(err))
			continue
		}
	}
}

func (w *Worker) processTarget(ctx context.Context, target profile.Target) (int, error) {
	if w.limiter != nil {
		if err := w.limiter.Wait(ctx, target.URL); err != nil {
			return 0, err
		}
	}
	shots, err := profile.Capture(ctx, w.page, target, w.cfg.Capture)
	if err != nil {
		return 0, fmt.Errorf("capture: %w", err)
	}
	w.logger.Info("captured profile", zap.String("url", target.URL), zap.Int("screenshots", len(shots)))
	w.archive(ctx, target, shots)

	p, err := w.analyzer.Analyze(ctx, target.URL, shots)
	if err != nil {
		return len(shots), fmt.Errorf("analyze: %w", err)
	}
	total, err := w.output.Append(p)
	if err != nil {
		return len(shots), fmt.Errorf("append profile: %w", err)
	}
	w.logger.Info("profile stored",
		zap.String("url", target.URL),
		zap.String("name", p.Name),
		zap.Int("profiles_total", total),
	)
	return len(shots), nil
}

// archive stores screenshots best-effort; failures are logged only.
func (w *Worker) archive(ctx context.Context, target profile.Target, shots [][]byte) {
	if w.blobs == nil {
		return
	}
	for i, shot := range shots {
		path := w.buildBlobPath(target, i+1)
		_, err := w.blobs.PutObject(ctx, path, "image/png", bytes.NewReader(shot))
		metrics.ObserveScreenshotArchive(err)
		if err != nil {
			w.logger.Warn("screenshot archive failed", zap.String("path", path), zap.Error(err))
			return
		}
	}
}

func (w *Worker) buildBlobPath(target profile.Target, n int) string {
	name := fmt.Sprintf("%s/%s/screenshot_%d.png", w.cfg.RunID, target.Slug(), n)
	prefix := strings.Trim(w.cfg.ArchivePrefix, "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

type nopObserver struct{}

func (nopObserver) TargetDone(string, int, error) {}
