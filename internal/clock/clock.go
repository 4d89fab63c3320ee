// Package clock abstracts wall-clock time so queue timestamps, retention
// cutoffs and sweeper scheduling can be driven deterministically in tests.
package clock

import "time"

// Clock reports the current time.
//
// Every stored timestamp (enqueuedAt, completedAt, lastSyncAt, ...) comes
// from a Clock rather than time.Now, so tests and scenario replays produce
// identical records.
type Clock interface {
	Now() time.Time
}

// System is the real wall clock, in UTC.
type System struct{}

// Now returns time.Now in UTC.
func (System) Now() time.Time {
	return time.Now().UTC()
}

// Func adapts a function to Clock.
type Func func() time.Time

// Now calls f.
func (f Func) Now() time.Time {
	return f()
}

// OrSystem returns c, or System when c is nil.
func OrSystem(c Clock) Clock {
	if c == nil {
		return System{}
	}
	return c
}
