package profile

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrQueueClosed is returned by a Queue once it has been closed and drained.
var ErrQueueClosed = errors.New("queue closed")

// Queue hands targets to workers.
type Queue interface {
	Enqueue(ctx context.Context, target Target) error
	Dequeue(ctx context.Context) (Target, error)
}

// ReadTargets reads a newline-delimited URL list, ignoring blank lines.
func ReadTargets(path string) ([]Target, error) {
	f, err := os.Open(path) // #nosec G304 -- operator-supplied input list.
	if err != nil {
		return nil, fmt.Errorf("open url list: %w", err)
	}
	defer func() { _ = f.Close() }()

	var targets []Target
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		targets = append(targets, Target{URL: line})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read url list: %w", err)
	}
	return targets, nil
}

// WriteTargets writes one URL per line, replacing the file atomically.
func WriteTargets(path string, urls []string) error {
	var b strings.Builder
	for _, u := range urls {
		if u = strings.TrimSpace(u); u != "" {
			b.WriteString(u)
			b.WriteByte('\n')
		}
	}
	return writeAtomic(path, []byte(b.String()))
}

// LoadProfiles reads a profiles JSON array. A missing file yields no
// profiles.
func LoadProfiles(path string) ([]Profile, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied output path.
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read profiles: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}
	var profiles []Profile
	if err := json.Unmarshal(data, &profiles); err != nil {
		return nil, fmt.Errorf("decode profiles: %w", err)
	}
	return profiles, nil
}
