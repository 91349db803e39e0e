package crawler

import "errors"

var (
	// ErrInvalidInput rejects a start URL outside the configured site.
	ErrInvalidInput = errors.New("invalid input")
	// ErrExtraction marks a single result container that could not be read.
	ErrExtraction = errors.New("extraction failed")
	// ErrNavigation is returned when a page transition fails twice in a row.
	ErrNavigation = errors.New("navigation failed")
	// ErrPersistence wraps checkpoint write failures.
	ErrPersistence = errors.New("persistence failed")
	// ErrElementNotFound is returned by PageClient lookups that match nothing.
	ErrElementNotFound = errors.New("element not found")
	// ErrUnsupported is returned by PageClients lacking a capability.
	ErrUnsupported = errors.New("operation not supported by page client")
)
