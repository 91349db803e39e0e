// Package sinks holds the progress.Sink implementations wired by the app: a
// zap log sink, Prometheus run counters, and a sink that folds events into
// the run store.
package sinks
