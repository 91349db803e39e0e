package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/JakeFAU/profile-harvester/internal/crawler"
	"github.com/JakeFAU/profile-harvester/internal/metrics"
)

// Chrome owns a browser allocator; each Tab is an independent page.
type Chrome struct {
	cfg         Config
	allocator   context.Context
	allocCancel context.CancelFunc
}

// NewChrome creates a chromedp allocator. Chrome itself starts lazily with the
// first tab.
func NewChrome(cfg Config) (*Chrome, error) {
	if cfg.WindowWidth < 0 || cfg.WindowHeight < 0 {
		return nil, fmt.Errorf("window size must be >= 0")
	}
	var (
		allocCtx    context.Context
		allocCancel context.CancelFunc
	)
	if cfg.RemoteURL != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(context.Background(), cfg.RemoteURL)
	} else {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("enable-automation", false),
		)
		if cfg.Headless {
			opts = append(opts, chromedp.Flag("headless", "new"), chromedp.Flag("hide-scrollbars", true))
		} else {
			opts = append(opts, chromedp.Flag("headless", false))
		}
		if cfg.WindowWidth > 0 && cfg.WindowHeight > 0 {
			opts = append(opts, chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight))
		}
		allocCtx, allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	}
	return &Chrome{cfg: cfg, allocator: allocCtx, allocCancel: allocCancel}, nil
}

// Close shuts the browser down.
func (c *Chrome) Close() {
	c.allocCancel()
}

// NewTab opens a new page target.
func (c *Chrome) NewTab(ctx context.Context) (*Tab, error) {
	tabCtx, cancel := chromedp.NewContext(c.allocator)
	tab := &Tab{cfg: c.cfg, ctx: tabCtx, cancel: cancel}
	if err := tab.run(ctx, tab.setupAction()); err != nil {
		cancel()
		return nil, fmt.Errorf("open tab: %w", err)
	}
	return tab, nil
}

// Tab implements crawler.PageClient over a single chromedp target.
// Elements handed out are *cdp.Node values.
type Tab struct {
	cfg    Config
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

var _ crawler.PageClient = (*Tab)(nil)

// Close closes the tab.
func (t *Tab) Close() {
	t.once.Do(t.cancel)
}

// run executes actions on the tab, bounded by the navigation timeout and
// canceled together with ctx.
func (t *Tab) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(t.ctx, t.cfg.navTimeout())
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("chromedp run canceled: %w", ctx.Err())
		}
		return fmt.Errorf("chromedp run: %w", err)
	}
	return nil
}

func (t *Tab) setupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if t.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(t.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

// Navigate implements crawler.PageClient.
func (t *Tab) Navigate(ctx context.Context, url string) error {
	start := time.Now()
	err := t.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	metrics.ObserveNavigation(url, "chrome", time.Since(start), err)
	return err
}

// FindAll implements crawler.PageClient.
func (t *Tab) FindAll(ctx context.Context, selector string) ([]crawler.Element, error) {
	nodes, err := t.query(ctx, nil, selector)
	if err != nil {
		return nil, err
	}
	out := make([]crawler.Element, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n)
	}
	return out, nil
}

// FindOne implements crawler.PageClient.
func (t *Tab) FindOne(ctx context.Context, parent crawler.Element, selector string) (crawler.Element, error) {
	var from *cdp.Node
	if parent != nil {
		n, err := asNode(parent)
		if err != nil {
			return nil, err
		}
		from = n
	}
	nodes, err := t.query(ctx, from, selector)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: %s", crawler.ErrElementNotFound, selector)
	}
	return nodes[0], nil
}

func (t *Tab) query(ctx context.Context, from *cdp.Node, selector string) ([]*cdp.Node, error) {
	opts := []chromedp.QueryOption{chromedp.AtLeast(0)}
	if isXPath(selector) {
		if from != nil {
			return nil, fmt.Errorf("%w: scoped xpath query %q", crawler.ErrUnsupported, selector)
		}
		opts = append(opts, chromedp.BySearch)
	} else {
		opts = append(opts, chromedp.ByQueryAll)
		if from != nil {
			opts = append(opts, chromedp.FromNode(from))
		}
	}
	var nodes []*cdp.Node
	if err := t.run(ctx, chromedp.Nodes(selector, &nodes, opts...)); err != nil {
		return nil, err
	}
	return nodes, nil
}

// Attribute implements crawler.PageClient.
func (t *Tab) Attribute(ctx context.Context, el crawler.Element, name string) (string, bool, error) {
	n, err := asNode(el)
	if err != nil {
		return "", false, err
	}
	var (
		value string
		ok    bool
	)
	if err := t.run(ctx, chromedp.AttributeValue([]cdp.NodeID{n.NodeID}, name, &value, &ok, chromedp.ByNodeID)); err != nil {
		return "", false, err
	}
	return value, ok, nil
}

// Text implements crawler.PageClient.
func (t *Tab) Text(ctx context.Context, el crawler.Element) (string, error) {
	n, err := asNode(el)
	if err != nil {
		return "", err
	}
	var text string
	if err := t.run(ctx, chromedp.Text([]cdp.NodeID{n.NodeID}, &text, chromedp.ByNodeID)); err != nil {
		return "", err
	}
	return text, nil
}

// Location implements crawler.PageClient.
func (t *Tab) Location(ctx context.Context) (string, error) {
	var loc string
	if err := t.run(ctx, chromedp.Location(&loc)); err != nil {
		return "", err
	}
	return loc, nil
}

// ScrollToBottom implements crawler.PageClient.
func (t *Tab) ScrollToBottom(ctx context.Context) error {
	return t.run(ctx, chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil))
}

// CurrentHeight implements crawler.PageClient.
func (t *Tab) CurrentHeight(ctx context.Context) (int64, error) {
	var h float64
	if err := t.run(ctx, chromedp.Evaluate(`document.body.scrollHeight`, &h)); err != nil {
		return 0, err
	}
	return int64(h), nil
}

// ScrollByViewport scrolls one window height and returns the new vertical
// offset.
func (t *Tab) ScrollByViewport(ctx context.Context) (int64, error) {
	var offset float64
	script := `window.scrollBy(0, window.innerHeight); window.pageYOffset`
	if err := t.run(ctx, chromedp.Evaluate(script, &offset)); err != nil {
		return 0, err
	}
	return int64(offset), nil
}

// ScrollOffset returns the current vertical offset.
func (t *Tab) ScrollOffset(ctx context.Context) (int64, error) {
	var offset float64
	if err := t.run(ctx, chromedp.Evaluate(`window.pageYOffset`, &offset)); err != nil {
		return 0, err
	}
	return int64(offset), nil
}

// Screenshot captures the current viewport as PNG.
func (t *Tab) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := t.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, err
	}
	return buf, nil
}

// IsVisible implements crawler.PageClient. An element without a box model is
// not rendered.
func (t *Tab) IsVisible(ctx context.Context, el crawler.Element) (bool, error) {
	n, err := asNode(el)
	if err != nil {
		return false, err
	}
	var model *dom.BoxModel
	err = t.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		m, err := dom.GetBoxModel().WithNodeID(n.NodeID).Do(ctx)
		model = m
		return err
	}))
	if err != nil {
		if ctx.Err() != nil {
			return false, err
		}
		return false, nil
	}
	return model != nil && model.Width > 0 && model.Height > 0, nil
}

// IsEnabled implements crawler.PageClient.
func (t *Tab) IsEnabled(ctx context.Context, el crawler.Element) (bool, error) {
	if _, ok, err := t.Attribute(ctx, el, "disabled"); err != nil || ok {
		return false, err
	}
	aria, ok, err := t.Attribute(ctx, el, "aria-disabled")
	if err != nil {
		return false, err
	}
	return !ok || !strings.EqualFold(strings.TrimSpace(aria), "true"), nil
}

// Click implements crawler.PageClient.
func (t *Tab) Click(ctx context.Context, el crawler.Element) error {
	n, err := asNode(el)
	if err != nil {
		return err
	}
	return t.run(ctx,
		chromedp.ScrollIntoView([]cdp.NodeID{n.NodeID}, chromedp.ByNodeID),
		chromedp.MouseClickNode(n),
	)
}

func asNode(el crawler.Element) (*cdp.Node, error) {
	n, ok := el.(*cdp.Node)
	if !ok || n == nil {
		return nil, errors.New("element was not produced by a chrome tab")
	}
	return n, nil
}
