// Package crawler implements the incremental listing harvester: the
// DedupStore, the crawl state and its persisted snapshot form, the pagination
// and extraction strategies, and the Controller state machine that drives a
// PageClient until the listing is exhausted.
package crawler
