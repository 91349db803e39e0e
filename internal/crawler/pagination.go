package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/JakeFAU/profile-harvester/internal/poll"
)

// Pagination strategy names accepted by NewPagination.
const (
	PaginationURLIncrement   = "url_increment"
	PaginationNextButton     = "next_button"
	PaginationInfiniteScroll = "infinite_scroll"
)

// DefaultMaxUnchanged is the number of consecutive identical scroll heights
// that ends an infinite-scroll crawl.
const DefaultMaxUnchanged = 3

// Wait bounds how long strategies poll for page elements.
type Wait struct {
	Interval time.Duration
	Timeout  time.Duration
}

// PaginationConfig selects and parameterizes a PaginationStrategy.
type PaginationConfig struct {
	Strategy         string
	StartURL         string
	PageParam        string
	NextSelector     string
	LoadMoreSelector string
	MaxUnchanged     int
	Wait             Wait
}

// NewPagination builds the strategy named by cfg.Strategy.
func NewPagination(cfg PaginationConfig) (PaginationStrategy, error) {
	switch cfg.Strategy {
	case PaginationURLIncrement:
		param := cfg.PageParam
		if param == "" {
			param = "page"
		}
		return &URLIncrement{StartURL: cfg.StartURL, Param: param, NextSelector: cfg.NextSelector, Wait: cfg.Wait}, nil
	case PaginationNextButton:
		if cfg.NextSelector == "" {
			return nil, errors.New("next_button pagination requires a next selector")
		}
		return &NextButton{Selector: cfg.NextSelector, Wait: cfg.Wait}, nil
	case PaginationInfiniteScroll:
		maxUnchanged := cfg.MaxUnchanged
		if maxUnchanged <= 0 {
			maxUnchanged = DefaultMaxUnchanged
		}
		return &InfiniteScroll{LoadMoreSelector: cfg.LoadMoreSelector, MaxUnchanged: maxUnchanged, Wait: cfg.Wait}, nil
	default:
		return nil, fmt.Errorf("unknown pagination strategy %q", cfg.Strategy)
	}
}

// URLIncrement advances by rewriting the page query parameter of the start URL.
type URLIncrement struct {
	StartURL string
	Param    string
	// NextSelector is optional; a present but disabled control ends the crawl.
	NextSelector string
	Wait         Wait
}

var _ PageSeeker = (*URLIncrement)(nil)

// Name implements PaginationStrategy.
func (*URLIncrement) Name() string { return PaginationURLIncrement }

// StopOnEmpty implements PaginationStrategy.
func (*URLIncrement) StopOnEmpty() bool { return true }

// Next implements PaginationStrategy.
func (u *URLIncrement) Next(ctx context.Context, client PageClient, state *CrawlState) (Action, error) {
	if u.NextSelector != "" {
		el, err := client.FindOne(ctx, nil, u.NextSelector)
		switch {
		case errors.Is(err, ErrElementNotFound):
		case err != nil:
			return Action{}, fmt.Errorf("find next control: %w", err)
		default:
			enabled, err := client.IsEnabled(ctx, el)
			if err != nil {
				return Action{}, fmt.Errorf("inspect next control: %w", err)
			}
			if !enabled {
				return Action{Kind: ActionStop, Reason: ReasonNextDisabled}, nil
			}
		}
	}
	next, err := u.PageURL(state.CurrentPage + 1)
	if err != nil {
		return Action{}, err
	}
	return Action{Kind: ActionNavigate, URL: next}, nil
}

// PageURL implements PageSeeker.
func (u *URLIncrement) PageURL(page int) (string, error) {
	return WithPageParam(u.StartURL, u.Param, page)
}

// NextButton advances by clicking a "Next" control.
type NextButton struct {
	Selector string
	Wait     Wait
}

// Name implements PaginationStrategy.
func (*NextButton) Name() string { return PaginationNextButton }

// StopOnEmpty implements PaginationStrategy.
func (*NextButton) StopOnEmpty() bool { return true }

// Next implements PaginationStrategy.
func (n *NextButton) Next(ctx context.Context, client PageClient, _ *CrawlState) (Action, error) {
	// The control usually renders below the fold.
	if err := client.ScrollToBottom(ctx); err != nil && !errors.Is(err, ErrUnsupported) {
		return Action{}, fmt.Errorf("scroll to next control: %w", err)
	}

	var button Element
	err := poll.Until(ctx, n.Wait.Interval, n.Wait.Timeout, func(ctx context.Context) (bool, error) {
		el, err := client.FindOne(ctx, nil, n.Selector)
		if errors.Is(err, ErrElementNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		button = el
		return true, nil
	})
	if errors.Is(err, poll.ErrTimeout) {
		return Action{Kind: ActionStop, Reason: ReasonNoNextControl}, nil
	}
	if err != nil {
		return Action{}, fmt.Errorf("wait for next control: %w", err)
	}

	enabled, err := client.IsEnabled(ctx, button)
	if err != nil {
		return Action{}, fmt.Errorf("inspect next control: %w", err)
	}
	if !enabled {
		return Action{Kind: ActionStop, Reason: ReasonNextDisabled}, nil
	}
	return Action{Kind: ActionClick, Element: button}, nil
}

// InfiniteScroll advances by scrolling to the bottom and watching the
// document height. It mutates the height fields of CrawlState.
type InfiniteScroll struct {
	LoadMoreSelector string
	MaxUnchanged     int
	Wait             Wait
}

// Name implements PaginationStrategy.
func (*InfiniteScroll) Name() string { return PaginationInfiniteScroll }

// StopOnEmpty implements PaginationStrategy.
func (*InfiniteScroll) StopOnEmpty() bool { return false }

// Next implements PaginationStrategy.
func (s *InfiniteScroll) Next(ctx context.Context, client PageClient, state *CrawlState) (Action, error) {
	if err := client.ScrollToBottom(ctx); err != nil {
		return Action{}, fmt.Errorf("scroll to bottom: %w", err)
	}

	var height int64
	err := poll.Until(ctx, s.Wait.Interval, s.Wait.Timeout, func(ctx context.Context) (bool, error) {
		h, err := client.CurrentHeight(ctx)
		if err != nil {
			return false, err
		}
		height = h
		return h != state.LastHeight, nil
	})
	if err != nil && !errors.Is(err, poll.ErrTimeout) {
		return Action{}, fmt.Errorf("read scroll height: %w", err)
	}

	if height != state.LastHeight {
		state.LastHeight = height
		state.UnchangedHeight = 1
		return Action{Kind: ActionContinue}, nil
	}

	state.UnchangedHeight++
	if el, ok := s.clickableLoadMore(ctx, client); ok {
		state.UnchangedHeight = 0
		return Action{Kind: ActionClick, Element: el}, nil
	}
	if state.UnchangedHeight >= s.MaxUnchanged {
		return Action{Kind: ActionStop, Reason: ReasonScrollExhausted}, nil
	}
	return Action{Kind: ActionContinue}, nil
}

func (s *InfiniteScroll) clickableLoadMore(ctx context.Context, client PageClient) (Element, bool) {
	if s.LoadMoreSelector == "" {
		return nil, false
	}
	el, err := client.FindOne(ctx, nil, s.LoadMoreSelector)
	if err != nil {
		return nil, false
	}
	visible, err := client.IsVisible(ctx, el)
	if err != nil || !visible {
		return nil, false
	}
	enabled, err := client.IsEnabled(ctx, el)
	if err != nil || !enabled {
		return nil, false
	}
	return el, true
}
