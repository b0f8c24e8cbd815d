// ABOUTME: Frame pacer that schedules wakeups against predicted vsync times
// ABOUTME: Each tick fires a lead interval before the targeted vsync
package pacer

import (
	"context"
	"sync"
	"time"

	"github.com/AOSP-14-RMX2020/platform-frameworks-native/pkg/vsync"
)

// Config holds pacer configuration.
type Config struct {
	// Lead is how long before the targeted vsync a tick fires
	// (default: 2ms). Frame work started at the tick has this long
	// until the vsync it aims for.
	Lead time.Duration

	// Buffer is the tick channel capacity (default: 8). Ticks are
	// dropped rather than delivered late when the consumer lags.
	Buffer int
}

// Tick is one pacing wakeup.
type Tick struct {
	// Wake is when the tick actually fired, in daemon clock nanoseconds.
	Wake int64

	// Target is the predicted vsync this tick aims for.
	Target int64
}

// Stats tracks pacing behavior.
type Stats struct {
	Ticks   uint64
	Dropped uint64
}

// Pacer turns a display's timing model into a stream of frame ticks.
type Pacer struct {
	predictor *vsync.Predictor
	clock     vsync.Clock
	lead      int64
	ticks     chan Tick

	mu    sync.Mutex
	stats Stats
}

// New creates a pacer driven by the given predictor and clock.
func New(predictor *vsync.Predictor, clock vsync.Clock, cfg Config) *Pacer {
	if cfg.Lead <= 0 {
		cfg.Lead = 2 * time.Millisecond
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 8
	}

	return &Pacer{
		predictor: predictor,
		clock:     clock,
		lead:      cfg.Lead.Nanoseconds(),
		ticks:     make(chan Tick, cfg.Buffer),
	}
}

// Next computes the wake/target pair for a frame starting at now. The
// target is the earliest predicted vsync the frame can still make.
func (p *Pacer) Next(now int64) (wake, target int64) {
	target = p.predictor.NextVsyncFrom(now + p.lead)
	return target - p.lead, target
}

// Run emits ticks until the context is canceled. Consumers read Ticks();
// a full channel drops the tick and counts it.
func (p *Pacer) Run(ctx context.Context) {
	for {
		now := p.clock.Now()
		wake, target := p.Next(now)

		if sleep := wake - now; sleep > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Duration(sleep)):
			}
		} else {
			select {
			case <-ctx.Done():
				return
			default:
			}
		}

		tick := Tick{Wake: p.clock.Now(), Target: target}
		select {
		case p.ticks <- tick:
			p.mu.Lock()
			p.stats.Ticks++
			p.mu.Unlock()
		default:
			p.mu.Lock()
			p.stats.Dropped++
			p.mu.Unlock()
		}
	}
}

// Ticks returns the tick channel.
func (p *Pacer) Ticks() <-chan Tick {
	return p.ticks
}

// Stats returns a snapshot of pacing counters.
func (p *Pacer) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}
