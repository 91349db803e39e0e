package crawler

import (
	"sort"
	"sync"
)

// DedupStore is the crawl-wide set of canonical record keys.
type DedupStore struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewDedupStore returns a store pre-populated with keys.
func NewDedupStore(keys ...string) *DedupStore {
	d := &DedupStore{seen: make(map[string]struct{}, len(keys))}
	for _, k := range keys {
		d.Admit(k)
	}
	return d
}

// Admit reports whether key is new and records it. Empty keys are never
// admitted.
func (d *DedupStore) Admit(key string) bool {
	if key == "" {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[key]; ok {
		return false
	}
	d.seen[key] = struct{}{}
	return true
}

// Contains reports whether key has been admitted.
func (d *DedupStore) Contains(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.seen[key]
	return ok
}

// Len returns the number of admitted keys.
func (d *DedupStore) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

// Keys returns the admitted keys sorted.
func (d *DedupStore) Keys() []string {
	d.mu.Lock()
	out := make([]string, 0, len(d.seen))
	for k := range d.seen {
		out = append(out, k)
	}
	d.mu.Unlock()
	sort.Strings(out)
	return out
}
