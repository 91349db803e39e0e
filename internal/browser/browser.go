// Package browser provides crawler.PageClient implementations: a chromedp
// headless Chrome client for JavaScript-rendered listings and a colly/goquery
// static client for server-rendered pages.
package browser

import (
	"strings"
	"time"
)

// Config controls browser behavior.
type Config struct {
	// Headless runs Chrome without a window. Disable to watch a crawl.
	Headless bool
	// RemoteURL attaches to an already running Chrome DevTools endpoint.
	RemoteURL         string
	UserAgent         string
	NavigationTimeout time.Duration
	WindowWidth       int
	WindowHeight      int
}

func (c Config) navTimeout() time.Duration {
	if c.NavigationTimeout > 0 {
		return c.NavigationTimeout
	}
	return 45 * time.Second
}

// isXPath reports whether selector should be evaluated as XPath.
func isXPath(selector string) bool {
	s := strings.TrimSpace(selector)
	return strings.HasPrefix(s, "//") || strings.HasPrefix(s, "(")
}
