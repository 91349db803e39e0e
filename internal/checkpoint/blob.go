package checkpoint

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/JakeFAU/profile-harvester/internal/crawler"
)

// BlobStore is the subset of the storage backends used for checkpoints.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
	GetObject(ctx context.Context, path string) (io.ReadCloser, error)
}

// Blob writes each snapshot as one JSON object in a BlobStore.
type Blob struct {
	store   BlobStore
	path    string
	lastURI string
}

// NewBlob returns a blob checkpointer writing to path.
func NewBlob(store BlobStore, path string) (*Blob, error) {
	if store == nil {
		return nil, errors.New("blob store is required")
	}
	if path == "" {
		return nil, errors.New("checkpoint object path is required")
	}
	return &Blob{store: store, path: path}, nil
}

// Save implements crawler.Checkpointer.
func (b *Blob) Save(ctx context.Context, snap crawler.Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode snapshot: %w", crawler.ErrPersistence, err)
	}
	uri, err := b.store.PutObject(ctx, b.path, "application/json", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: put object: %w", crawler.ErrPersistence, err)
	}
	b.lastURI = uri
	return nil
}

// URI returns the location of the last successful save.
func (b *Blob) URI() string { return b.lastURI }

// Load reads the snapshot stored at the checkpointer's path. A missing object
// maps to ErrNoCheckpoint when isNotFound recognizes the store's error.
func (b *Blob) Load(ctx context.Context, isNotFound func(error) bool) (crawler.Snapshot, error) {
	rc, err := b.store.GetObject(ctx, b.path)
	if err != nil {
		if isNotFound != nil && isNotFound(err) {
			return crawler.Snapshot{}, fmt.Errorf("%w: %s", ErrNoCheckpoint, b.path)
		}
		return crawler.Snapshot{}, fmt.Errorf("open checkpoint object: %w", err)
	}
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	if err != nil {
		return crawler.Snapshot{}, fmt.Errorf("read checkpoint object: %w", err)
	}
	return decode(data)
}
