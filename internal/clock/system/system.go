// Package system supplies the wall clock used for checkpoint and event
// timestamps.
package system

import "time"

// Clock reports the current time in UTC so persisted snapshots and progress
// events compare equal across hosts.
type Clock struct{}

// New returns a Clock.
func New() Clock {
	return Clock{}
}

// Now implements crawler.Clock and progress.Clock.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
