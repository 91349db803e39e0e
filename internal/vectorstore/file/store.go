// Package file keeps embedding vectors in a single JSON file.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/JakeFAU/profile-harvester/internal/checkpoint"
	"github.com/JakeFAU/profile-harvester/internal/embedding"
)

// Entry is one element of the output embedding file.
type Entry struct {
	URL       string    `json:"url"`
	Name      string    `json:"name"`
	Embedding []float32 `json:"embedding"`
}

// Store is an embedding.VectorSink that rewrites a JSON array after every
// batch. Entries are keyed by URL, so repeated uploads replace in place.
type Store struct {
	path string

	mu      sync.Mutex
	entries []Entry
	index   map[string]int
}

var _ embedding.VectorSink = (*Store)(nil)

// New opens the file at path, loading any entries already present.
func New(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("embedding output path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	s := &Store{path: path, index: make(map[string]int)}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &s.entries); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	for i, e := range s.entries {
		s.index[e.URL] = i
	}
	return s, nil
}

// Upsert implements embedding.VectorSink.
func (s *Store) Upsert(ctx context.Context, vectors []embedding.Vector) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("write embeddings: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := append([]Entry(nil), s.entries...)
	index := make(map[string]int, len(s.index)+len(vectors))
	for k, v := range s.index {
		index[k] = v
	}
	for _, v := range vectors {
		if v.ID == "" {
			return errors.New("vector id is required")
		}
		name, _ := v.Metadata["name"].(string)
		e := Entry{URL: entryURL(v), Name: name, Embedding: v.Values}
		if i, ok := index[e.URL]; ok {
			entries[i] = e
			continue
		}
		index[e.URL] = len(entries)
		entries = append(entries, e)
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode embeddings: %w", err)
	}
	if err := checkpoint.WriteFileAtomic(s.path, data); err != nil {
		return fmt.Errorf("write embeddings: %w", err)
	}
	s.entries = entries
	s.index = index
	return nil
}

// entryURL prefers the url metadata of a vector and falls back to its id.
func entryURL(v embedding.Vector) string {
	if u, ok := v.Metadata["url"].(string); ok && u != "" {
		return u
	}
	return v.ID
}

// Entries returns a copy of the stored entries in file order.
func (s *Store) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Entry(nil), s.entries...)
}
