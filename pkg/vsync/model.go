// ABOUTME: Fitted timing model and the per-period model cache
// ABOUTME: Bounded cache keyed by ideal period, evicting the smallest key when full
package vsync

import (
	"math"
	"slices"
)

// Model is a fitted linear approximation of vsync arrival times.
type Model struct {
	// Slope approximates the true refresh period in nanoseconds.
	Slope int64

	// Intercept is a phase offset in nanoseconds, relative to the oldest
	// sample in the window at fit time.
	Intercept int64
}

// rateMapSizeLimit bounds how many refresh periods keep a cached model.
const rateMapSizeLimit = 30

// rateMap caches the most recent fitted Model per ideal period.
type rateMap map[int64]Model

// evictIfFull makes room by dropping the numerically smallest ideal period
// once the cap is reached. Eviction is by key order, not by recency, so a
// low refresh period is always the one to go.
func (m rateMap) evictIfFull() {
	if len(m) != rateMapSizeLimit {
		return
	}
	smallest := int64(math.MaxInt64)
	for period := range m {
		if period < smallest {
			smallest = period
		}
	}
	delete(m, smallest)
}

// sortedPeriods returns the cached ideal periods in ascending order.
func (m rateMap) sortedPeriods() []int64 {
	periods := make([]int64, 0, len(m))
	for period := range m {
		periods = append(periods, period)
	}
	slices.Sort(periods)
	return periods
}
