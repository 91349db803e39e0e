package crawler

import (
	"context"
	"time"
)

// Element is an opaque handle to a node returned by a PageClient. Only the
// client that produced it can interpret it.
type Element any

// PageClient drives a single browser tab (or an equivalent static fetcher).
// Selectors beginning with "//" or "(" are XPath; everything else is CSS.
type PageClient interface {
	Navigate(ctx context.Context, url string) error
	FindAll(ctx context.Context, selector string) ([]Element, error)
	// FindOne searches beneath parent, or the whole document when parent is
	// nil. It returns ErrElementNotFound when nothing matches.
	FindOne(ctx context.Context, parent Element, selector string) (Element, error)
	Attribute(ctx context.Context, el Element, name string) (string, bool, error)
	Text(ctx context.Context, el Element) (string, error)
	Location(ctx context.Context) (string, error)
	ScrollToBottom(ctx context.Context) error
	CurrentHeight(ctx context.Context) (int64, error)
	IsVisible(ctx context.Context, el Element) (bool, error)
	IsEnabled(ctx context.Context, el Element) (bool, error)
	Click(ctx context.Context, el Element) error
}

// Checkpointer persists full crawl snapshots.
type Checkpointer interface {
	Save(ctx context.Context, snap Snapshot) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// ActionKind enumerates what a pagination strategy asks the controller to do.
type ActionKind int

// Action kinds.
const (
	// ActionNavigate loads Action.URL.
	ActionNavigate ActionKind = iota
	// ActionClick clicks Action.Element and counts as a page transition.
	ActionClick
	// ActionContinue re-extracts the current document without a transition.
	ActionContinue
	// ActionStop terminates the crawl with Action.Reason.
	ActionStop
)

// Action is the outcome of PaginationStrategy.Next.
type Action struct {
	Kind    ActionKind
	URL     string
	Element Element
	Reason  TerminationReason
}

// PaginationStrategy produces the transition to the next page.
type PaginationStrategy interface {
	Name() string
	Next(ctx context.Context, client PageClient, state *CrawlState) (Action, error)
	// StopOnEmpty reports whether a step yielding no new records ends the crawl.
	StopOnEmpty() bool
}

// PageSeeker is implemented by pagination strategies that can address page n
// directly, which lets a resumed crawl skip the pages it already holds.
type PageSeeker interface {
	PageURL(page int) (string, error)
}

// Extraction is the result of reading one page.
type Extraction struct {
	Records []Record
	Skipped int
}

// ExtractionStrategy reads candidate records from the current document.
type ExtractionStrategy interface {
	Name() string
	// ContainerSelector is what the controller waits for before extracting.
	ContainerSelector() string
	Extract(ctx context.Context, client PageClient) (Extraction, error)
}

// Observer receives controller transitions. Implementations must not block.
type Observer interface {
	PhaseChanged(phase Phase, page int, total int)
	PageStored(page int, added int, skipped int)
	CheckpointSaved(total int, err error)
}
