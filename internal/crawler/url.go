package crawler

import (
	"fmt"
	"net/url"
	"path"
	"strconv"
	"strings"
)

// CanonicalURL resolves href against base and strips the query string and
// fragment. The scheme and host are lowercased and default ports removed.
func CanonicalURL(base, href string) (string, error) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if base != "" {
		b, err := url.Parse(base)
		if err != nil {
			return "", fmt.Errorf("parse base url: %w", err)
		}
		ref = b.ResolveReference(ref)
	}
	if ref.Host == "" {
		return "", fmt.Errorf("url %q has no host", href)
	}

	ref.Scheme = strings.ToLower(ref.Scheme)
	ref.Host = strings.ToLower(ref.Host)
	if ref.Scheme == "http" {
		ref.Host = strings.TrimSuffix(ref.Host, ":80")
	}
	if ref.Scheme == "https" {
		ref.Host = strings.TrimSuffix(ref.Host, ":443")
	}
	ref.RawQuery = ""
	ref.ForceQuery = false
	ref.Fragment = ""
	ref.RawFragment = ""
	return ref.String(), nil
}

// KeyFromURL returns the last non-empty path segment of a canonical URL.
func KeyFromURL(canonical string) (string, error) {
	u, err := url.Parse(canonical)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	key := path.Base(strings.TrimRight(u.Path, "/"))
	if key == "." || key == "/" || key == "" {
		return "", fmt.Errorf("url %q has no path segment", canonical)
	}
	if unescaped, err := url.PathUnescape(key); err == nil {
		key = unescaped
	}
	return key, nil
}

// WithPageParam returns rawURL with param set to page, replacing any
// existing value and keeping the other query parameters.
func WithPageParam(rawURL, param string, page int) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	q := u.Query()
	q.Set(param, strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// MatchesPrefix reports whether rawURL begins with any of prefixes. An empty
// prefix list accepts any absolute http(s) URL.
func MatchesPrefix(rawURL string, prefixes []string) bool {
	if len(prefixes) == 0 {
		u, err := url.Parse(rawURL)
		return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
	}
	for _, p := range prefixes {
		if strings.HasPrefix(rawURL, p) {
			return true
		}
	}
	return false
}
