// Package system provides the wall clock used outside tests.
package system

import "time"

// Clock implements migrate.Clock. Times are always UTC so report names and
// persisted timestamps do not depend on the host zone.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current UTC time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}

// Since returns the time elapsed since t.
func (Clock) Since(t time.Time) time.Duration {
	return time.Since(t)
}
