// Package uuid mints run identifiers.
package uuid

import "github.com/google/uuid"

// NewRunID returns a UUIDv7, so run listings ordered by id follow start
// time. If the v7 source fails it falls back to a random v4 id.
func NewRunID() uuid.UUID {
	if id, err := uuid.NewV7(); err == nil {
		return id
	}
	return uuid.New()
}
