package progress

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Config controls buffering and batching for the Hub.
type Config struct {
	// BufferSize is the event channel capacity (default 4096).
	BufferSize int
	// MaxBatchEvents flushes once this many events are pending (default 1000).
	MaxBatchEvents int
	// MaxBatchWait bounds how long the first event of a batch waits before a
	// flush (default 500ms).
	MaxBatchWait time.Duration
	// TallyWait bounds how long Emit blocks on a full buffer for events that
	// feed run totals (default 1s). Chatty stages are dropped immediately.
	TallyWait time.Duration
	// SinkTimeout bounds each sink call (default 10s).
	SinkTimeout time.Duration
	// BaseContext is the parent of sink calls (default context.Background()).
	BaseContext context.Context
	Logger      *zap.Logger
}

const (
	defaultBufferSize     = 4096
	defaultMaxBatchEvents = 1000
	defaultMaxBatchWait   = 500 * time.Millisecond
	defaultTallyWait      = time.Second
	defaultSinkTimeout    = 10 * time.Second
	dropLogInterval       = 5 * time.Second
)

// Hub batches the events of crawl, profile, and embed runs and fans them out
// to sinks. Emit never blocks on a chatty stage, and a run's final event is
// flushed as soon as it arrives so status readers see the outcome without
// waiting for the batch timer.
type Hub struct {
	cfg    Config
	sinks  []Sink
	events chan Event
	stopCh chan struct{}
	doneCh chan struct{}
	logger *zap.Logger
	closed atomic.Bool

	dropMu      sync.Mutex
	dropped     map[Stage]int64
	unreported  map[Stage]int64
	lastDropLog time.Time

	closeOnce sync.Once
	closeCtx  context.Context
}

// NewHub starts a Hub delivering to sinks.
func NewHub(cfg Config, sinks ...Sink) *Hub {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.MaxBatchEvents <= 0 {
		cfg.MaxBatchEvents = defaultMaxBatchEvents
	}
	if cfg.MaxBatchWait <= 0 {
		cfg.MaxBatchWait = defaultMaxBatchWait
	}
	if cfg.TallyWait <= 0 {
		cfg.TallyWait = defaultTallyWait
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = defaultSinkTimeout
	}
	if cfg.BaseContext == nil {
		cfg.BaseContext = context.Background()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		cfg:        cfg,
		sinks:      append([]Sink(nil), sinks...),
		events:     make(chan Event, cfg.BufferSize),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
		logger:     logger,
		dropped:    make(map[Stage]int64),
		unreported: make(map[Stage]int64),
	}
	go h.run()
	return h
}

// Emit enqueues evt. Invalid events and events emitted after Close are
// discarded. On a full buffer, chatty stages are dropped at once and tally
// stages wait up to TallyWait before being dropped.
func (h *Hub) Emit(evt Event) {
	if h == nil || h.closed.Load() {
		return
	}
	if err := evt.Validate(); err != nil {
		h.logger.Debug("discarding invalid progress event", zap.Error(err))
		return
	}
	select {
	case h.events <- evt:
		return
	default:
	}
	if !evt.Stage.Chatty() {
		wait := time.NewTimer(h.cfg.TallyWait)
		defer wait.Stop()
		select {
		case h.events <- evt:
			return
		case <-wait.C:
		case <-h.stopCh:
		}
	}
	h.recordDrop(evt.Stage)
}

// Dropped reports how many events of stage were lost to backpressure.
func (h *Hub) Dropped(stage Stage) int64 {
	h.dropMu.Lock()
	defer h.dropMu.Unlock()
	return h.dropped[stage]
}

func (h *Hub) recordDrop(stage Stage) {
	h.dropMu.Lock()
	h.dropped[stage]++
	h.unreported[stage]++
	now := time.Now()
	if now.Sub(h.lastDropLog) < dropLogInterval {
		h.dropMu.Unlock()
		return
	}
	h.lastDropLog = now
	fields := make([]zap.Field, 0, len(h.unreported))
	for s, n := range h.unreported {
		fields = append(fields, zap.Int64(string(s), n))
	}
	clear(h.unreported)
	h.dropMu.Unlock()
	h.logger.Warn("progress events dropped due to backpressure", zap.Dict("dropped", fields...))
}

// Close drains pending events, flushes and closes the sinks, and waits for
// the background goroutine. Later calls only wait.
func (h *Hub) Close(ctx context.Context) error {
	if h == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	h.closeOnce.Do(func() {
		h.closed.Store(true)
		h.closeCtx = ctx
		close(h.stopCh)
	})
	select {
	case <-h.doneCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("progress hub close wait: %w", ctx.Err())
	}
}

func (h *Hub) run() {
	defer close(h.doneCh)

	batch := make([]Event, 0, h.cfg.MaxBatchEvents)
	timer := time.NewTimer(h.cfg.MaxBatchWait)
	timer.Stop()
	// pending is non-nil while a partial batch waits on the timer.
	var pending <-chan time.Time

	flush := func() {
		if pending != nil {
			timer.Stop()
			pending = nil
		}
		if len(batch) > 0 {
			h.deliver(batch)
			batch = batch[:0]
		}
	}

	for {
		select {
		case evt := <-h.events:
			batch = append(batch, evt)
			switch {
			case len(batch) >= h.cfg.MaxBatchEvents, evt.Stage.Final():
				flush()
			case pending == nil:
				timer.Reset(h.cfg.MaxBatchWait)
				pending = timer.C
			}
		case <-pending:
			pending = nil
			flush()
		case <-h.stopCh:
		drain:
			for {
				select {
				case evt := <-h.events:
					batch = append(batch, evt)
					if len(batch) >= h.cfg.MaxBatchEvents {
						flush()
					}
				default:
					break drain
				}
			}
			flush()
			h.closeSinks()
			return
		}
	}
}

func (h *Hub) deliver(batch []Event) {
	out := append([]Event(nil), batch...)
	for _, sink := range h.sinks {
		if sink == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(h.cfg.BaseContext, h.cfg.SinkTimeout)
		if err := sink.Consume(ctx, out); err != nil {
			h.logger.Warn("progress sink consume failed", zap.Int("events", len(out)), zap.Error(err))
		}
		cancel()
	}
}

func (h *Hub) closeSinks() {
	ctx := h.closeCtx
	if ctx == nil {
		ctx = context.Background()
	}
	for _, sink := range h.sinks {
		if sink == nil {
			continue
		}
		if err := sink.Close(ctx); err != nil {
			h.logger.Warn("progress sink close failed", zap.Error(err))
		}
	}
}
