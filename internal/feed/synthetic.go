// ABOUTME: Synthetic vsync pulse generator for a simulated display panel
// ABOUTME: Nominal period plus gaussian jitter, slow drift, and dropped pulses
package feed

import (
	"math"
	"math/rand"
	"sync"
)

// Source produces observed vsync pulse timestamps for one display.
type Source interface {
	// Next returns the next observed vsync timestamp in nanoseconds, or
	// false when the source is exhausted.
	Next() (int64, bool)
}

// SyntheticConfig describes the simulated panel.
type SyntheticConfig struct {
	// Period is the nominal refresh interval in nanoseconds.
	Period int64

	// JitterNs is the standard deviation of per-pulse gaussian jitter.
	JitterNs int64

	// DriftPPM is the amplitude of a slow sinusoidal period wander, in
	// parts per million of the nominal period.
	DriftPPM float64

	// DriftCycle is how many pulses one full wander cycle spans
	// (default: 4096).
	DriftCycle int

	// DropRate is the probability that a pulse goes unobserved, in [0, 1).
	// Values at or above 1 are clamped to 0.99.
	DropRate float64

	// Seed makes the stream reproducible.
	Seed int64
}

// Synthetic generates a vsync timestamp stream for a simulated panel.
type Synthetic struct {
	mu    sync.Mutex
	cfg   SyntheticConfig
	rng   *rand.Rand
	next  int64
	pulse int
}

// NewSynthetic creates a panel simulation whose first pulse lands at start.
func NewSynthetic(cfg SyntheticConfig, start int64) *Synthetic {
	if cfg.Period <= 0 {
		cfg.Period = 16_666_666 // 60 Hz
	}
	if cfg.DriftCycle <= 0 {
		cfg.DriftCycle = 4096
	}
	if cfg.DropRate >= 1 {
		cfg.DropRate = 0.99
	}
	if cfg.DropRate < 0 {
		cfg.DropRate = 0
	}

	return &Synthetic{
		cfg:  cfg,
		rng:  rand.New(rand.NewSource(cfg.Seed)),
		next: start,
	}
}

// Next implements Source. Dropped pulses advance the panel silently, so the
// observed stream shows gaps of whole periods.
func (s *Synthetic) Next() (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		ts := s.next + s.jitter()
		s.advance()

		if s.cfg.DropRate > 0 && s.rng.Float64() < s.cfg.DropRate {
			continue
		}
		return ts, true
	}
}

// SetPeriod switches the simulated panel to a new refresh interval, as a
// real panel does on a mode switch.
func (s *Synthetic) SetPeriod(period int64) {
	if period <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.Period = period
}

// Period returns the current nominal refresh interval.
func (s *Synthetic) Period() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Period
}

func (s *Synthetic) jitter() int64 {
	if s.cfg.JitterNs == 0 {
		return 0
	}
	return int64(s.rng.NormFloat64() * float64(s.cfg.JitterNs))
}

func (s *Synthetic) advance() {
	period := float64(s.cfg.Period)
	if s.cfg.DriftPPM != 0 {
		phase := 2 * math.Pi * float64(s.pulse%s.cfg.DriftCycle) / float64(s.cfg.DriftCycle)
		period *= 1 + s.cfg.DriftPPM*1e-6*math.Sin(phase)
	}
	s.next += int64(period)
	s.pulse++
}
