// Package checkpoint persists crawl snapshots. Every backend overwrites the
// full state atomically: a reader sees either the previous snapshot or the new
// one, never a partial write.
package checkpoint
