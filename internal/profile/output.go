package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/JakeFAU/profile-harvester/internal/checkpoint"
)

// OutputFile serializes appends to a shared profiles file. Build one per
// path and pass it to every worker.
type OutputFile struct {
	path string
	mu   sync.Mutex
}

// NewOutputFile returns the lock handle for path.
func NewOutputFile(path string) (*OutputFile, error) {
	if path == "" {
		return nil, errors.New("profiles output path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &OutputFile{path: path}, nil
}

// Path returns the output path.
func (o *OutputFile) Path() string { return o.path }

// Append reads the current profiles, appends p, and rewrites the file
// atomically, all under the handle's lock.
func (o *OutputFile) Append(p Profile) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	existing, err := LoadProfiles(o.path)
	if err != nil {
		return 0, err
	}
	existing = append(existing, p)
	data, err := json.MarshalIndent(existing, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("encode profiles: %w", err)
	}
	if err := writeAtomic(o.path, data); err != nil {
		return 0, err
	}
	return len(existing), nil
}

// Load returns the profiles currently in the file.
func (o *OutputFile) Load() ([]Profile, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return LoadProfiles(o.path)
}

func writeAtomic(path string, data []byte) error {
	if err := checkpoint.WriteFileAtomic(path, data); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
