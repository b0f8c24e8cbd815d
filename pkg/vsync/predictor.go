// ABOUTME: Predictor state, sample ingestion, validation, and regression fit
// ABOUTME: One mutex serializes every operation across producer and consumer threads
package vsync

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/AOSP-14-RMX2020/platform-frameworks-native/pkg/fps"
)

// Defaults applied by New when the corresponding Options field is zero.
const (
	DefaultHistorySize      = 20
	DefaultMinimumSamples   = 6
	DefaultOutlierTolerance = 35
)

// Options configures a Predictor.
type Options struct {
	// DisplayID identifies the display in debug output.
	DisplayID string

	// IdealPeriod is the nominal refresh interval in nanoseconds
	// (default: 16666666, a 60 Hz panel).
	IdealPeriod int64

	// HistorySize is the sample window capacity (default: 20).
	HistorySize int

	// MinimumSamples is how many window samples a fit requires (default: 6).
	MinimumSamples int

	// OutlierTolerancePercent is the accept band around exact period
	// multiples, clamped to [0, 100] (default: 35).
	OutlierTolerancePercent int

	// Tracer receives diagnostic counters and debug text (default: NopTracer).
	Tracer Tracer

	// Clock annotates phase queries in traces (default: NewSystemClock()).
	Clock Clock

	// TraceVerbose enables the high-rate per-sample counters. The mode and
	// period-switch counters are always emitted.
	TraceVerbose bool
}

// vsyncSequence pairs a predicted vsync time with its ordinal count.
type vsyncSequence struct {
	vsyncTime int64
	seq       int64
}

// Predictor fits and extrapolates a vsync timing model for one display.
// Safe for concurrent use; sample producers and frame producers may call
// from different goroutines.
type Predictor struct {
	displayID string
	tracer    Tracer
	clock     Clock
	verbose   bool

	historySize    int
	minimumSamples int
	tolerancePct   int64

	mu sync.Mutex

	// Everything below is guarded by mu.
	idealPeriod int64
	timestamps  []int64
	lastIndex   int
	known       *int64
	rates       rateMap
	renderRate  fps.Fps
	lastSeq     *vsyncSequence
}

// New creates a Predictor for the given display configuration.
func New(opts Options) *Predictor {
	if opts.IdealPeriod <= 0 {
		opts.IdealPeriod = 16_666_666 // 60 Hz
	}
	if opts.HistorySize <= 0 {
		opts.HistorySize = DefaultHistorySize
	}
	if opts.MinimumSamples <= 0 {
		opts.MinimumSamples = DefaultMinimumSamples
	}
	if opts.OutlierTolerancePercent == 0 {
		opts.OutlierTolerancePercent = DefaultOutlierTolerance
	}
	tolerance := opts.OutlierTolerancePercent
	if tolerance < 0 {
		tolerance = 0
	}
	if tolerance > 100 {
		tolerance = 100
	}
	if opts.Tracer == nil {
		opts.Tracer = NopTracer{}
	}
	if opts.Clock == nil {
		opts.Clock = NewSystemClock()
	}

	p := &Predictor{
		displayID:      opts.DisplayID,
		tracer:         opts.Tracer,
		clock:          opts.Clock,
		verbose:        opts.TraceVerbose,
		historySize:    opts.HistorySize,
		minimumSamples: opts.MinimumSamples,
		tolerancePct:   int64(tolerance),
		idealPeriod:    opts.IdealPeriod,
		timestamps:     make([]int64, 0, opts.HistorySize),
		rates:          make(rateMap),
	}
	p.Reset()
	return p
}

func (p *Predictor) traceCounterIf(name string, value int64) {
	if p.verbose {
		p.tracer.Counter(name, value)
	}
}

func (p *Predictor) nextIndex(i int) int {
	return (i + 1) % len(p.timestamps)
}

// validateLocked decides whether a sample is consistent with the current
// ideal period. The first sample is always accepted.
func (p *Predictor) validateLocked(timestamp int64) bool {
	if len(p.timestamps) == 0 {
		return true
	}

	reference := p.timestamps[p.lastIndex]
	percent := (timestamp - reference) % p.idealPeriod * 100 / p.idealPeriod
	if percent >= p.tolerancePct && percent <= 100-p.tolerancePct {
		return false
	}

	closest := p.timestamps[0]
	for _, ts := range p.timestamps[1:] {
		if abs64(timestamp-ts) < abs64(timestamp-closest) {
			closest = ts
		}
	}
	if abs64(closest-timestamp)*100/p.idealPeriod < p.tolerancePct {
		// duplicate timestamp
		return false
	}
	return true
}

// AddTimestamp feeds one observed vsync arrival into the model. It returns
// false when the sample was rejected or the refit failed; the cached model
// is left in a usable (possibly default) state either way.
func (p *Predictor) AddTimestamp(timestamp int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.validateLocked(timestamp) {
		// Rejected samples never enter the window. While still learning,
		// any inconsistency restarts the window; afterwards only the
		// known-good anchor advances.
		if len(p.timestamps) < p.minimumSamples {
			// Append first so the anchor folds in the new timestamp too.
			p.timestamps = append(p.timestamps, timestamp)
			p.clearLocked()
		} else if len(p.timestamps) != 0 {
			known := max(timestamp, slices.Max(p.timestamps))
			p.known = &known
		} else {
			known := timestamp
			p.known = &known
		}
		return false
	}

	if len(p.timestamps) != p.historySize {
		p.timestamps = append(p.timestamps, timestamp)
		p.lastIndex = p.nextIndex(p.lastIndex)
	} else {
		p.lastIndex = p.nextIndex(p.lastIndex)
		p.timestamps[p.lastIndex] = timestamp
	}

	p.traceCounterIf(traceNameTS, timestamp)

	if len(p.timestamps) < p.minimumSamples {
		p.rates[p.idealPeriod] = Model{Slope: p.idealPeriod}
		return true
	}

	return p.refitLocked(timestamp)
}

// refitLocked recomputes the model over the full window. A simple linear
// regression of timestamp over snapped vsync ordinal:
//
//	        sum((X - mean(X)) * (Y - mean(Y)))
//	slope = ----------------------------------
//	            sum((X - mean(X))^2)
//
//	intercept = mean(Y) - slope * mean(X)
//
// with Y the timestamps and X the ordinal each timestamp snaps to under the
// previously fitted period. The slope is the refresh period.
func (p *Predictor) refitLocked(timestamp int64) bool {
	numSamples := int64(len(p.timestamps))

	// Normalizing to the oldest timestamp cuts down on error in the
	// intercept calculation.
	oldest := slices.Min(p.timestamps)
	currentPeriod := p.rates[p.idealPeriod].Slope

	// The mean of the ordinals must stay precise for the intercept, so the
	// ordinals carry a fixed-point scale.
	const scale = 1000

	vsyncTS := make([]int64, numSamples)
	ordinals := make([]int64, numSamples)

	var meanTS, meanOrdinal int64
	for i, ts := range p.timestamps {
		x := ts - oldest
		vsyncTS[i] = x
		meanTS += x

		var ordinal int64
		if currentPeriod != 0 {
			ordinal = (x + currentPeriod/2) / currentPeriod * scale
		}
		ordinals[i] = ordinal
		meanOrdinal += ordinal
	}

	meanTS /= numSamples
	meanOrdinal /= numSamples

	var top, bottom int64
	for i := range vsyncTS {
		x := vsyncTS[i] - meanTS
		ordinal := ordinals[i] - meanOrdinal
		top += x * ordinal
		bottom += ordinal * ordinal
	}

	if bottom == 0 {
		p.rates[p.idealPeriod] = Model{Slope: p.idealPeriod}
		p.clearLocked()
		return false
	}

	slope := top * scale / bottom
	intercept := meanTS - slope*meanOrdinal/scale

	if abs64(slope-p.idealPeriod)*100/p.idealPeriod >= p.tolerancePct {
		p.rates[p.idealPeriod] = Model{Slope: p.idealPeriod}
		p.clearLocked()
		return false
	}

	p.traceCounterIf(traceNamePeriod, slope)
	p.traceCounterIf(traceNameIntercept, intercept)

	p.rates[p.idealPeriod] = Model{Slope: slope, Intercept: intercept}

	p.tracer.Debugf("model update ts %d: slope: %d intercept: %d", timestamp, slope, intercept)
	return true
}

// clearLocked discards the sample window, folding its newest timestamp into
// the known-good anchor first. The anchor never moves backward.
func (p *Predictor) clearLocked() {
	if len(p.timestamps) == 0 {
		return
	}
	newest := slices.Max(p.timestamps)
	if p.known == nil || newest > *p.known {
		p.known = &newest
	}
	p.timestamps = p.timestamps[:0]
	p.lastIndex = 0
}

// Model returns the fitted model for the current ideal period.
func (p *Predictor) Model() Model {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rates[p.idealPeriod]
}

// Period returns the fitted refresh period for the current ideal period.
func (p *Predictor) Period() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rates[p.idealPeriod].Slope
}

// SetRenderRate requests that predictions land on vsyncs aligned to rate.
// Rates that do not divide the current refresh rate leave predictions
// untouched.
func (p *Predictor) SetRenderRate(rate fps.Fps) {
	p.tracer.Debugf("setRenderRate %s: %s", p.displayID, rate)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.renderRate = rate
}

// SetIdealPeriod switches the predictor to a new nominal refresh interval.
// Samples gathered for the previous period are discarded; a previously
// fitted model for the new period is reused if still cached.
func (p *Predictor) SetIdealPeriod(period int64) {
	p.tracer.Counter(traceNameSetPeriod, period)

	p.mu.Lock()
	defer p.mu.Unlock()

	p.rates.evictIfFull()

	p.idealPeriod = period
	if _, ok := p.rates[period]; !ok {
		p.rates[period] = Model{Slope: period}
	}

	p.clearLocked()
}

// Reset forces the current ideal period back to the unfitted default model
// and discards the sample window.
func (p *Predictor) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rates[p.idealPeriod] = Model{Slope: p.idealPeriod}
	p.clearLocked()
}

// NeedsMoreSamples reports whether the window is still below the minimum
// needed to fit a model.
func (p *Predictor) NeedsMoreSamples() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.timestamps) < p.minimumSamples
}

// Dump returns a human-readable description of the cached models.
func (p *Predictor) Dump() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "\tidealPeriod=%.2f\n", float64(p.idealPeriod)/1e6)
	b.WriteString("\tRefresh Rate Map:\n")
	for _, period := range p.rates.sortedPeriods() {
		model := p.rates[period]
		fmt.Fprintf(&b, "\t\tFor ideal period %.2fms: period = %.2fms, intercept = %d\n",
			float64(period)/1e6, float64(model.Slope)/1e6, model.Intercept)
	}
	return b.String()
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
