// Package progress provides the event primitives, non-blocking hub, and
// observers that the crawl controller, embedding pipeline, and profile workers
// use to report progress. Events are batched on a background goroutine and
// fanned out to pluggable sinks such as logs, Prometheus, or the run store.
package progress
