package crawler

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Phase is a state of the crawl state machine.
type Phase string

// Controller phases.
const (
	PhaseInit       Phase = "init"
	PhaseFetching   Phase = "fetching_page"
	PhaseExtracting Phase = "extracting_records"
	PhaseAdvancing  Phase = "advancing_page"
	PhaseTerminated Phase = "terminated"
	PhaseFailed     Phase = "failed"
)

// Terminal reports whether no further transitions are possible.
func (p Phase) Terminal() bool {
	return p == PhaseTerminated || p == PhaseFailed
}

// TerminationReason explains why a crawl stopped normally.
type TerminationReason string

// Termination reasons.
const (
	ReasonNone            TerminationReason = ""
	ReasonExhausted       TerminationReason = "exhausted"
	ReasonNextDisabled    TerminationReason = "next_disabled"
	ReasonNoNextControl   TerminationReason = "no_next_control"
	ReasonScrollExhausted TerminationReason = "scroll_exhausted"
	ReasonPageLimit       TerminationReason = "page_limit"
)

// Record is one harvested listing entry.
type Record struct {
	Key    string            `json:"key"`
	URL    string            `json:"url,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

// Snapshot is the persisted form of a CrawlState. Pages are keyed "page_N".
type Snapshot struct {
	Timestamp  time.Time           `json:"timestamp"`
	TotalCount int                 `json:"total_count"`
	Pages      map[string][]Record `json:"pages"`
}

// Result summarizes a finished crawl.
type Result struct {
	Phase      Phase
	Reason     TerminationReason
	Pages      int
	TotalCount int
	Err        error
}

// CrawlState is the mutable accumulation of a crawl. Only the Controller
// mutates it; every admitted key goes through the DedupStore first.
type CrawlState struct {
	seen  *DedupStore
	pages map[int][]Record

	// CurrentPage is the page index the controller is working on.
	CurrentPage int
	// UnchangedHeight counts consecutive scroll attempts that reported the
	// same document height.
	UnchangedHeight int
	// LastHeight is the most recent scroll height reading, -1 before the first.
	LastHeight int64
}

// NewCrawlState returns an empty state backed by seen. A nil store gets a
// fresh one.
func NewCrawlState(seen *DedupStore) *CrawlState {
	if seen == nil {
		seen = NewDedupStore()
	}
	return &CrawlState{
		seen:        seen,
		pages:       make(map[int][]Record),
		CurrentPage: 1,
		LastHeight:  -1,
	}
}

// RestoreState rebuilds a state from a snapshot and seeds the DedupStore with
// every restored key. Keys already present on an earlier page are dropped.
func RestoreState(snap Snapshot) (*CrawlState, error) {
	state := NewCrawlState(nil)
	numbers := make([]int, 0, len(snap.Pages))
	byNumber := make(map[int][]Record, len(snap.Pages))
	for name, records := range snap.Pages {
		n, err := parsePageName(name)
		if err != nil {
			return nil, err
		}
		numbers = append(numbers, n)
		byNumber[n] = records
	}
	sort.Ints(numbers)
	for _, n := range numbers {
		state.AddPage(n, byNumber[n])
	}
	if len(numbers) > 0 {
		state.CurrentPage = numbers[len(numbers)-1]
	}
	return state, nil
}

// AddPage routes candidates through the DedupStore and stores the admitted
// records under page n. It returns the newly admitted records; a page with no
// new records is not stored.
func (s *CrawlState) AddPage(n int, candidates []Record) []Record {
	fresh := make([]Record, 0, len(candidates))
	for _, rec := range candidates {
		if !s.seen.Admit(rec.Key) {
			continue
		}
		fresh = append(fresh, rec)
	}
	if len(fresh) == 0 {
		return nil
	}
	s.pages[n] = append(s.pages[n], fresh...)
	return fresh
}

// Seen exposes the DedupStore backing the state.
func (s *CrawlState) Seen() *DedupStore {
	return s.seen
}

// TotalCount is the number of unique records across all pages.
func (s *CrawlState) TotalCount() int {
	total := 0
	for _, records := range s.pages {
		total += len(records)
	}
	return total
}

// PageNumbers returns the stored page numbers in ascending order.
func (s *CrawlState) PageNumbers() []int {
	out := make([]int, 0, len(s.pages))
	for n := range s.pages {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

// Page returns a copy of the records stored for page n.
func (s *CrawlState) Page(n int) []Record {
	return append([]Record(nil), s.pages[n]...)
}

// Records flattens all pages in page order.
func (s *CrawlState) Records() []Record {
	out := make([]Record, 0, s.TotalCount())
	for _, n := range s.PageNumbers() {
		out = append(out, s.pages[n]...)
	}
	return out
}

// Snapshot captures the full state for a checkpoint at time now.
func (s *CrawlState) Snapshot(now time.Time) Snapshot {
	pages := make(map[string][]Record, len(s.pages))
	for n, records := range s.pages {
		pages[PageName(n)] = append([]Record(nil), records...)
	}
	return Snapshot{
		Timestamp:  now,
		TotalCount: s.TotalCount(),
		Pages:      pages,
	}
}

// PageName formats the snapshot key for page n.
func PageName(n int) string {
	return "page_" + strconv.Itoa(n)
}

func parsePageName(name string) (int, error) {
	raw, ok := strings.CutPrefix(name, "page_")
	if !ok {
		return 0, fmt.Errorf("invalid page key %q", name)
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid page key %q", name)
	}
	return n, nil
}
