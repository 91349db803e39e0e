// Package publisher announces finished runs to downstream consumers.
package publisher

import (
	"context"
	"time"

	"github.com/JakeFAU/profile-harvester/internal/crawler"
)

// Publisher sends a payload to a named topic and returns the message ID.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Completion is the message published when a crawl ends.
type Completion struct {
	RunID      string    `json:"run_id"`
	StartURL   string    `json:"start_url"`
	Phase      string    `json:"phase"`
	Reason     string    `json:"reason,omitempty"`
	Pages      int       `json:"pages"`
	TotalCount int       `json:"total_count"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewCompletion builds the completion message for a crawl result.
func NewCompletion(runID, startURL string, res crawler.Result, at time.Time) Completion {
	c := Completion{
		RunID:      runID,
		StartURL:   startURL,
		Phase:      string(res.Phase),
		Reason:     string(res.Reason),
		Pages:      res.Pages,
		TotalCount: res.TotalCount,
		Timestamp:  at.UTC(),
	}
	if res.Err != nil {
		c.Error = res.Err.Error()
	}
	return c
}
