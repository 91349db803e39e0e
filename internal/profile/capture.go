package profile

import (
	"context"
	"fmt"
	"time"

	"github.com/JakeFAU/profile-harvester/internal/poll"
)

// Page is the browser surface the capture loop drives.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Screenshot(ctx context.Context) ([]byte, error)
	ScrollByViewport(ctx context.Context) (int64, error)
	ScrollOffset(ctx context.Context) (int64, error)
}

// CaptureConfig controls the screenshot loop.
type CaptureConfig struct {
	SettleDelay time.Duration
	ScrollDelay time.Duration
	// MaxShots bounds the number of screenshots per page.
	MaxShots int
	// StableReadings is how many unchanged offsets end the loop.
	StableReadings int
}

// DefaultMaxShots caps screenshots when CaptureConfig.MaxShots is unset.
const DefaultMaxShots = 25

// Capture navigates to target and screenshots it one viewport at a time until
// the scroll offset stops moving.
func Capture(ctx context.Context, page Page, target Target, cfg CaptureConfig) ([][]byte, error) {
	if cfg.MaxShots <= 0 {
		cfg.MaxShots = DefaultMaxShots
	}
	if cfg.StableReadings <= 0 {
		cfg.StableReadings = 2
	}
	if err := page.Navigate(ctx, target.URL); err != nil {
		return nil, fmt.Errorf("navigate %s: %w", target.URL, err)
	}
	if err := poll.Sleep(ctx, cfg.SettleDelay); err != nil {
		return nil, fmt.Errorf("settle: %w", err)
	}

	last, err := page.ScrollOffset(ctx)
	if err != nil {
		return nil, fmt.Errorf("read scroll offset: %w", err)
	}
	var shots [][]byte
	moved := true
	unchanged := 0
	for len(shots) < cfg.MaxShots {
		if moved {
			shot, err := page.Screenshot(ctx)
			if err != nil {
				return nil, fmt.Errorf("screenshot %d: %w", len(shots)+1, err)
			}
			shots = append(shots, shot)
		}
		if _, err := page.ScrollByViewport(ctx); err != nil {
			return nil, fmt.Errorf("scroll: %w", err)
		}
		if err := poll.Sleep(ctx, cfg.ScrollDelay); err != nil {
			return nil, fmt.Errorf("scroll wait: %w", err)
		}
		offset, err := page.ScrollOffset(ctx)
		if err != nil {
			return nil, fmt.Errorf("read scroll offset: %w", err)
		}
		if offset == last {
			unchanged++
			moved = false
			if unchanged >= cfg.StableReadings {
				break
			}
			continue
		}
		unchanged = 0
		moved = true
		last = offset
	}
	return shots, nil
}
