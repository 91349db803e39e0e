package profile

import (
	"context"
	"net/url"
	"strings"
)

// Profile is the structured summary produced for one profile page.
type Profile struct {
	URL        string   `json:"url"`
	Name       string   `json:"name"`
	Important  []string `json:"important"`
	AllDetails string   `json:"all_details"`
}

// Target is one profile URL to process.
type Target struct {
	URL string
}

// Slug returns the last path segment of the target URL, used to name
// archived screenshots.
func (t Target) Slug() string {
	trimmed := strings.TrimSpace(t.URL)
	if u, err := url.Parse(trimmed); err == nil {
		trimmed = u.Path
	}
	trimmed = strings.Trim(trimmed, "/")
	if i := strings.LastIndexByte(trimmed, '/'); i >= 0 {
		trimmed = trimmed[i+1:]
	}
	if trimmed == "" {
		return "profile"
	}
	return trimmed
}

// Analyzer turns a set of page screenshots into a Profile.
type Analyzer interface {
	Analyze(ctx context.Context, profileURL string, screenshots [][]byte) (Profile, error)
}
