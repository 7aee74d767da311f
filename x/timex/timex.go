// Package timex has the elapsed-time test every timed state machine here uses.
package timex

import "time"

// Due reports whether at least d has elapsed since start. A zero start is
// always due.
func Due(now, start time.Time, d time.Duration) bool {
	return start.IsZero() || now.Sub(start) >= d
}
