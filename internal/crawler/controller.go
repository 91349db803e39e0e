package crawler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/profile-harvester/internal/poll"
)

// Config controls a Controller run.
type Config struct {
	StartURL string
	// SitePrefixes restricts StartURL; empty accepts any http(s) URL.
	SitePrefixes []string
	// MaxPages stops the crawl after that many pages; zero means unlimited.
	MaxPages     int
	RetryDelay   time.Duration
	Wait         Wait
	FlushTimeout time.Duration
}

// Status is a point-in-time view of a running controller.
type Status struct {
	Phase      Phase
	Page       int
	TotalCount int
	Reason     TerminationReason
}

// Option customizes a Controller.
type Option func(*Controller)

// WithState resumes from a previously restored state. Pages up to the last
// restored one are treated as already harvested.
func WithState(state *CrawlState) Option {
	return func(c *Controller) {
		if state == nil {
			return
		}
		c.state = state
		if pages := state.PageNumbers(); len(pages) > 0 {
			c.restoredThrough = pages[len(pages)-1]
		}
	}
}

// WithObserver registers a transition observer.
func WithObserver(o Observer) Option {
	return func(c *Controller) {
		if o != nil {
			c.observer = o
		}
	}
}

// Controller is the crawl state machine. A Controller runs once.
type Controller struct {
	cfg          Config
	client       PageClient
	pager        PaginationStrategy
	extractor    ExtractionStrategy
	checkpointer Checkpointer
	clock        Clock
	logger       *zap.Logger
	observer     Observer

	state *CrawlState
	dirty bool
	// restoredThrough is the last page number carried in from a checkpoint.
	restoredThrough int

	mu     sync.RWMutex
	status Status
}

// NewController wires a Controller.
func NewController(
	cfg Config,
	client PageClient,
	pager PaginationStrategy,
	extractor ExtractionStrategy,
	checkpointer Checkpointer,
	clock Clock,
	logger *zap.Logger,
	opts ...Option,
) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = 30 * time.Second
	}
	c := &Controller{
		cfg:          cfg,
		client:       client,
		pager:        pager,
		extractor:    extractor,
		checkpointer: checkpointer,
		clock:        clock,
		logger:       logger,
		observer:     nopObserver{},
		state:        NewCrawlState(nil),
		status:       Status{Phase: PhaseInit},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the crawl state. It must not be read while Run is active.
func (c *Controller) State() *CrawlState {
	return c.state
}

// Phase reports the current phase.
func (c *Controller) Phase() Phase {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status.Phase
}

// Status reports the current phase, page, and record count.
func (c *Controller) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Run drives the crawl until it terminates, fails, or ctx is canceled.
func (c *Controller) Run(ctx context.Context) Result {
	c.setPhase(PhaseInit)
	if !MatchesPrefix(c.cfg.StartURL, c.cfg.SitePrefixes) {
		err := fmt.Errorf("%w: start url %q is outside the configured site", ErrInvalidInput, c.cfg.StartURL)
		c.logger.Error("rejecting start url", zap.String("url", c.cfg.StartURL))
		return c.fail(err)
	}

	page, target, err := c.firstPage()
	if err != nil {
		return c.finish(ctx, c.fail(err))
	}
	c.state.CurrentPage = page
	c.setPhase(PhaseFetching)
	if err := c.withRetry(ctx, "navigate", func() error {
		return c.client.Navigate(ctx, target)
	}); err != nil {
		return c.finish(ctx, c.fail(err))
	}

	for {
		if err := ctx.Err(); err != nil {
			return c.finish(ctx, c.fail(fmt.Errorf("crawl canceled: %w", err)))
		}

		c.setPhase(PhaseFetching)
		c.waitForContainers(ctx)

		c.setPhase(PhaseExtracting)
		added, err := c.extractPage(ctx, page)
		if c.dirty {
			c.checkpoint(ctx)
		}
		if err != nil {
			return c.finish(ctx, c.fail(err))
		}

		// Replayed pages of a resumed crawl hold only known records.
		if added == 0 && c.pager.StopOnEmpty() && page > c.restoredThrough {
			return c.finish(ctx, c.terminate(ReasonExhausted))
		}
		if c.cfg.MaxPages > 0 && page >= c.cfg.MaxPages {
			return c.finish(ctx, c.terminate(ReasonPageLimit))
		}

		c.setPhase(PhaseAdvancing)
		reason, err := c.advance(ctx)
		if err != nil {
			return c.finish(ctx, c.fail(err))
		}
		if reason != ReasonNone {
			return c.finish(ctx, c.terminate(reason))
		}
		page++
		c.state.CurrentPage = page
	}
}

// firstPage picks where navigation starts. A resumed crawl whose pagination
// can address pages directly skips the pages it already holds; other
// strategies replay from the start URL.
func (c *Controller) firstPage() (int, string, error) {
	seeker, ok := c.pager.(PageSeeker)
	if c.restoredThrough == 0 || !ok {
		return 1, c.cfg.StartURL, nil
	}
	page := c.restoredThrough + 1
	target, err := seeker.PageURL(page)
	if err != nil {
		return 0, "", fmt.Errorf("%w: resume at page %d: %w", ErrInvalidInput, page, err)
	}
	c.logger.Info("resuming after restored pages", zap.Int("page", page), zap.String("url", target))
	return page, target, nil
}

func (c *Controller) waitForContainers(ctx context.Context) {
	selector := c.extractor.ContainerSelector()
	err := poll.Until(ctx, c.cfg.Wait.Interval, c.cfg.Wait.Timeout, func(ctx context.Context) (bool, error) {
		found, err := c.client.FindAll(ctx, selector)
		if err != nil {
			return false, err
		}
		return len(found) > 0, nil
	})
	if err != nil {
		c.logger.Debug("result containers not present", zap.String("selector", selector), zap.Error(err))
	}
}

// extractPage reads the current page and stores its new records. A
// page-level read failure is retried once; a second failure is returned.
func (c *Controller) extractPage(ctx context.Context, page int) (int, error) {
	var extraction Extraction
	err := c.withRetry(ctx, "extract", func() error {
		var err error
		extraction, err = c.extractor.Extract(ctx, c.client)
		return err
	})
	if err != nil {
		c.logger.Error("page extraction failed", zap.Int("page", page), zap.Error(err))
		return 0, err
	}
	if extraction.Skipped > 0 {
		c.logger.Debug("skipped unreadable containers",
			zap.Int("page", page),
			zap.Int("skipped", extraction.Skipped),
			zap.Error(ErrExtraction),
		)
	}

	fresh := c.state.AddPage(page, extraction.Records)
	if len(fresh) > 0 {
		c.dirty = true
	}
	total := c.state.TotalCount()
	c.mu.Lock()
	c.status.Page = page
	c.status.TotalCount = total
	c.mu.Unlock()

	c.logger.Info("page extracted",
		zap.Int("page", page),
		zap.Int("candidates", len(extraction.Records)),
		zap.Int("new", len(fresh)),
		zap.Int("total", total),
	)
	c.observer.PageStored(page, len(fresh), extraction.Skipped)
	return len(fresh), nil
}

// advance asks the pagination strategy for the next transition and executes
// it, retrying once after RetryDelay.
func (c *Controller) advance(ctx context.Context) (TerminationReason, error) {
	reason := ReasonNone
	err := c.withRetry(ctx, c.pager.Name(), func() error {
		action, err := c.pager.Next(ctx, c.client, c.state)
		if err != nil {
			return err
		}
		switch action.Kind {
		case ActionStop:
			reason = action.Reason
			return nil
		case ActionNavigate:
			return c.client.Navigate(ctx, action.URL)
		case ActionClick:
			return c.client.Click(ctx, action.Element)
		default:
			return nil
		}
	})
	return reason, err
}

func (c *Controller) withRetry(ctx context.Context, op string, fn func() error) error {
	err := fn()
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return fmt.Errorf("%s canceled: %w", op, ctx.Err())
	}
	c.logger.Warn("page operation failed, retrying", zap.String("op", op), zap.Error(err))
	if serr := poll.Sleep(ctx, c.cfg.RetryDelay); serr != nil {
		return fmt.Errorf("%s canceled: %w", op, serr)
	}
	if err := fn(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrNavigation, op, err)
	}
	return nil
}

func (c *Controller) checkpoint(ctx context.Context) {
	if c.checkpointer == nil {
		c.dirty = false
		return
	}
	total := c.state.TotalCount()
	err := c.checkpointer.Save(ctx, c.state.Snapshot(c.clock.Now()))
	c.observer.CheckpointSaved(total, err)
	if err != nil {
		c.logger.Warn("checkpoint save failed, will retry", zap.Int("total", total), zap.Error(err))
		return
	}
	c.dirty = false
	c.logger.Debug("checkpoint saved", zap.Int("total", total))
}

// finish performs the exit flush of unsaved state, on a detached context
// when ctx is already canceled.
func (c *Controller) finish(ctx context.Context, res Result) Result {
	if c.dirty {
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.FlushTimeout)
		c.checkpoint(flushCtx)
		cancel()
		if c.dirty {
			c.logger.Error("final checkpoint flush failed", zap.Int("total", c.state.TotalCount()))
		}
	}
	res.Pages = c.state.CurrentPage
	res.TotalCount = c.state.TotalCount()
	c.logger.Info("crawl finished",
		zap.String("phase", string(res.Phase)),
		zap.String("reason", string(res.Reason)),
		zap.Int("pages", res.Pages),
		zap.Int("total", res.TotalCount),
		zap.Error(res.Err),
	)
	return res
}

func (c *Controller) terminate(reason TerminationReason) Result {
	c.mu.Lock()
	c.status.Reason = reason
	c.mu.Unlock()
	c.setPhase(PhaseTerminated)
	return Result{Phase: PhaseTerminated, Reason: reason}
}

func (c *Controller) fail(err error) Result {
	c.setPhase(PhaseFailed)
	return Result{Phase: PhaseFailed, Err: err, TotalCount: c.state.TotalCount()}
}

func (c *Controller) setPhase(p Phase) {
	c.mu.Lock()
	c.status.Phase = p
	page, total := c.status.Page, c.status.TotalCount
	c.mu.Unlock()
	c.observer.PhaseChanged(p, page, total)
}

// Dirty reports whether unsaved records remain after Run.
func (c *Controller) Dirty() bool {
	return c.dirty
}

type nopObserver struct{}

func (nopObserver) PhaseChanged(Phase, int, int) {}

func (nopObserver) PageStored(int, int, int) {}

func (nopObserver) CheckpointSaved(int, error) {}
