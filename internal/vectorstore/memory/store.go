// Package memory provides an in-memory vector sink for tests and dry runs.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/JakeFAU/profile-harvester/internal/embedding"
)

// Store keeps the latest vector per ID.
type Store struct {
	mu      sync.RWMutex
	vectors map[string]embedding.Vector
	upserts int
}

var _ embedding.VectorSink = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{vectors: make(map[string]embedding.Vector)}
}

// Upsert implements embedding.VectorSink.
func (s *Store) Upsert(_ context.Context, vectors []embedding.Vector) error {
	for _, v := range vectors {
		if v.ID == "" {
			return errors.New("vector id is required")
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range vectors {
		s.vectors[v.ID] = v
	}
	s.upserts++
	return nil
}

// Get returns the vector stored under id.
func (s *Store) Get(id string) (embedding.Vector, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vectors[id]
	return v, ok
}

// IDs returns the stored IDs in sorted order.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.vectors))
	for id := range s.vectors {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Upserts reports how many batches were accepted.
func (s *Store) Upserts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.upserts
}
