package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/JakeFAU/profile-harvester/internal/crawler"
)

// ErrNoCheckpoint is returned by loaders when nothing has been saved yet.
var ErrNoCheckpoint = errors.New("no checkpoint")

// File writes snapshots as indented JSON to a single path.
type File struct {
	path string
}

// NewFile returns a file checkpointer, creating the parent directory.
func NewFile(path string) (*File, error) {
	if path == "" {
		return nil, errors.New("checkpoint path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create checkpoint dir: %w", err)
	}
	return &File{path: path}, nil
}

// Path returns the checkpoint location.
func (f *File) Path() string { return f.path }

// Save implements crawler.Checkpointer.
func (f *File) Save(_ context.Context, snap crawler.Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode snapshot: %w", crawler.ErrPersistence, err)
	}
	if err := WriteFileAtomic(f.path, data); err != nil {
		return fmt.Errorf("%w: %w", crawler.ErrPersistence, err)
	}
	return nil
}

// WriteFileAtomic writes data to a temp file beside path, syncs it, and
// renames it over path.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	committed = true

	// Persist the rename itself; not every platform supports syncing a directory.
	if d, err := os.Open(dir); err == nil { // #nosec G304 -- dir derives from the configured path.
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}

// Load reads a snapshot written by File.
func Load(path string) (crawler.Snapshot, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied checkpoint path.
	if errors.Is(err, os.ErrNotExist) {
		return crawler.Snapshot{}, fmt.Errorf("%w: %s", ErrNoCheckpoint, path)
	}
	if err != nil {
		return crawler.Snapshot{}, fmt.Errorf("read checkpoint: %w", err)
	}
	return decode(data)
}

func decode(data []byte) (crawler.Snapshot, error) {
	var snap crawler.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return crawler.Snapshot{}, fmt.Errorf("decode checkpoint: %w", err)
	}
	if snap.Pages == nil {
		snap.Pages = map[string][]crawler.Record{}
	}
	return snap, nil
}
