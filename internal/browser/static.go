package browser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/profile-harvester/internal/crawler"
	"github.com/JakeFAU/profile-harvester/internal/metrics"
)

// StaticConfig controls the static page client.
type StaticConfig struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
}

// Static implements crawler.PageClient for server-rendered listings. It
// fetches pages with colly and queries them with goquery, so it cannot scroll
// and reports no document height. Elements are *goquery.Selection values.
type Static struct {
	cfg       StaticConfig
	collector *colly.Collector

	mu       sync.RWMutex
	doc      *goquery.Document
	location string
}

var _ crawler.PageClient = (*Static)(nil)

// NewStatic builds a Static client.
func NewStatic(cfg StaticConfig) *Static {
	c := colly.NewCollector(colly.Async(false))
	c.WithTransport(newHTTPTransport())
	c.AllowURLRevisit = true
	c.IgnoreRobotsTxt = !cfg.RespectRobots
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	c.SetRequestTimeout(timeout)
	return &Static{cfg: cfg, collector: c}
}

// Navigate implements crawler.PageClient.
func (s *Static) Navigate(ctx context.Context, rawURL string) error {
	start := time.Now()
	err := s.navigate(ctx, rawURL)
	metrics.ObserveNavigation(rawURL, "static", time.Since(start), err)
	return err
}

func (s *Static) navigate(ctx context.Context, rawURL string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("colly fetch canceled: %w", err)
	}
	var (
		body     []byte
		finalURL string
		fetchErr error
	)
	collector := s.collector.Clone()
	collector.AllowURLRevisit = true
	collector.OnResponse(func(r *colly.Response) {
		body = append([]byte(nil), r.Body...)
		finalURL = r.Request.URL.String()
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			fetchErr = fmt.Errorf("status %d: %w", r.StatusCode, err)
			return
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(rawURL)
	}()
	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
	}
	if fetchErr != nil {
		return fmt.Errorf("colly response failed: %w", fetchErr)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("parse html: %w", err)
	}
	if finalURL == "" {
		finalURL = rawURL
	}
	s.mu.Lock()
	s.doc = doc
	s.location = finalURL
	s.mu.Unlock()
	return nil
}

func (s *Static) document() (*goquery.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.doc == nil {
		return nil, errors.New("no page loaded")
	}
	return s.doc, nil
}

// FindAll implements crawler.PageClient.
func (s *Static) FindAll(_ context.Context, selector string) ([]crawler.Element, error) {
	if isXPath(selector) {
		return nil, fmt.Errorf("%w: xpath selector %q", crawler.ErrUnsupported, selector)
	}
	doc, err := s.document()
	if err != nil {
		return nil, err
	}
	var out []crawler.Element
	doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
		out = append(out, sel)
	})
	return out, nil
}

// FindOne implements crawler.PageClient.
func (s *Static) FindOne(_ context.Context, parent crawler.Element, selector string) (crawler.Element, error) {
	if isXPath(selector) {
		return nil, fmt.Errorf("%w: xpath selector %q", crawler.ErrUnsupported, selector)
	}
	var scope *goquery.Selection
	if parent == nil {
		doc, err := s.document()
		if err != nil {
			return nil, err
		}
		scope = doc.Selection
	} else {
		sel, err := asSelection(parent)
		if err != nil {
			return nil, err
		}
		scope = sel
	}
	found := scope.Find(selector).First()
	if found.Length() == 0 {
		return nil, fmt.Errorf("%w: %s", crawler.ErrElementNotFound, selector)
	}
	return found, nil
}

// Attribute implements crawler.PageClient.
func (s *Static) Attribute(_ context.Context, el crawler.Element, name string) (string, bool, error) {
	sel, err := asSelection(el)
	if err != nil {
		return "", false, err
	}
	v, ok := sel.Attr(name)
	return v, ok, nil
}

// Text implements crawler.PageClient.
func (s *Static) Text(_ context.Context, el crawler.Element) (string, error) {
	sel, err := asSelection(el)
	if err != nil {
		return "", err
	}
	return sel.Text(), nil
}

// Location implements crawler.PageClient.
func (s *Static) Location(context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.location, nil
}

// ScrollToBottom implements crawler.PageClient.
func (s *Static) ScrollToBottom(context.Context) error {
	return fmt.Errorf("%w: scrolling", crawler.ErrUnsupported)
}

// CurrentHeight implements crawler.PageClient.
func (s *Static) CurrentHeight(context.Context) (int64, error) {
	return 0, fmt.Errorf("%w: document height", crawler.ErrUnsupported)
}

// IsVisible implements crawler.PageClient. Static documents have no layout,
// so anything that is not explicitly hidden counts as visible.
func (s *Static) IsVisible(_ context.Context, el crawler.Element) (bool, error) {
	sel, err := asSelection(el)
	if err != nil {
		return false, err
	}
	if _, hidden := sel.Attr("hidden"); hidden {
		return false, nil
	}
	style, _ := sel.Attr("style")
	style = strings.ReplaceAll(strings.ToLower(style), " ", "")
	return !strings.Contains(style, "display:none") && !strings.Contains(style, "visibility:hidden"), nil
}

// IsEnabled implements crawler.PageClient.
func (s *Static) IsEnabled(_ context.Context, el crawler.Element) (bool, error) {
	sel, err := asSelection(el)
	if err != nil {
		return false, err
	}
	if _, disabled := sel.Attr("disabled"); disabled {
		return false, nil
	}
	aria, _ := sel.Attr("aria-disabled")
	return !strings.EqualFold(strings.TrimSpace(aria), "true"), nil
}

// Click implements crawler.PageClient by following the element's href.
func (s *Static) Click(ctx context.Context, el crawler.Element) error {
	sel, err := asSelection(el)
	if err != nil {
		return err
	}
	href, ok := sel.Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return fmt.Errorf("%w: click on element without href", crawler.ErrUnsupported)
	}
	base, _ := s.Location(ctx)
	target, err := resolve(base, href)
	if err != nil {
		return err
	}
	return s.Navigate(ctx, target)
}

func resolve(base, href string) (string, error) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", fmt.Errorf("parse href: %w", err)
	}
	if base == "" {
		return ref.String(), nil
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	return b.ResolveReference(ref).String(), nil
}

func asSelection(el crawler.Element) (*goquery.Selection, error) {
	sel, ok := el.(*goquery.Selection)
	if !ok || sel == nil {
		return nil, errors.New("element was not produced by the static client")
	}
	return sel, nil
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
