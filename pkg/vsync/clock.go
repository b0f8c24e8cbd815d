// ABOUTME: Monotonic clock contract used when annotating phase queries
// ABOUTME: Predictions never read the clock; only trace output does
package vsync

import "time"

// Clock supplies a monotonic now in nanoseconds. The predictor consults it
// only to annotate phase queries in trace output; the regression operates
// purely on the timestamps it is given.
type Clock interface {
	Now() int64
}

// SystemClock measures monotonic nanoseconds from its creation.
type SystemClock struct {
	start time.Time
}

// NewSystemClock returns a SystemClock anchored at the current instant.
func NewSystemClock() SystemClock {
	return SystemClock{start: time.Now()}
}

// Now implements Clock.
func (c SystemClock) Now() int64 {
	return time.Since(c.start).Nanoseconds()
}
