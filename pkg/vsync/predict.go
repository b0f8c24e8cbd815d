// ABOUTME: Extrapolation to future vsync times, sequence numbering, phase checks
// ABOUTME: Predictions never precede the query time; a violation is fatal
package vsync

import (
	"fmt"
	"math"
	"slices"

	"github.com/AOSP-14-RMX2020/platform-frameworks-native/pkg/fps"
)

// nextFromLocked extrapolates the first vsync at or after timePoint from the
// current model. With an empty window it falls back to stepping whole ideal
// periods from the known-good anchor (or from timePoint itself).
func (p *Predictor) nextFromLocked(timePoint int64) int64 {
	model := p.rates[p.idealPeriod]

	if len(p.timestamps) == 0 {
		p.tracer.Counter(traceNameMode, 1)
		base := timePoint
		if p.known != nil {
			base = *p.known
		}
		periodsOut := (timePoint-base)/p.idealPeriod + 1
		return base + periodsOut*p.idealPeriod
	}

	oldest := slices.Min(p.timestamps)

	// The ordinal must account for the intercept, or predictions drift by a
	// fraction of a period around each boundary.
	zeroPoint := oldest + model.Intercept
	ordinal := (timePoint - zeroPoint + model.Slope) / model.Slope
	prediction := ordinal*model.Slope + model.Intercept + oldest

	p.tracer.Counter(traceNameMode, 0)
	p.traceCounterIf(traceNameTimePoint, timePoint)
	p.traceCounterIf(traceNamePrediction, prediction)

	diag := fmt.Sprintf(
		"prediction made from: %d prediction: %d (+%d) slope: %d intercept: %d oldest: %d ordinal: %d",
		timePoint, prediction, prediction-timePoint,
		model.Slope, model.Intercept, oldest, ordinal)
	p.tracer.Debugf("%s", diag)

	if prediction < timePoint {
		panic("vsync: model miscalculation: " + diag)
	}

	return prediction
}

// vsyncSequenceLocked predicts the vsync following timestamp and derives its
// ordinal count relative to the last recorded sequence anchor.
func (p *Predictor) vsyncSequenceLocked(timestamp int64) vsyncSequence {
	vsync := p.nextFromLocked(timestamp)
	if p.lastSeq == nil {
		return vsyncSequence{vsyncTime: vsync, seq: 0}
	}

	slope := p.rates[p.idealPeriod].Slope
	delta := int64(math.Round(float64(vsync-p.lastSeq.vsyncTime) / float64(slope)))
	return vsyncSequence{vsyncTime: vsync, seq: p.lastSeq.seq + delta}
}

// renderRatePhaseLocked returns how many vsync cycles past timePoint's vsync
// the next render-rate-aligned vsync is, or 0 when no alignment applies.
func (p *Predictor) renderRatePhaseLocked() int {
	if !p.renderRate.IsValid() {
		return 0
	}

	divisor := fps.FrameRateDivisor(fps.FromPeriodNsecs(p.idealPeriod), p.renderRate)
	if divisor <= 1 {
		return 0
	}

	mod := int(p.lastSeq.seq % int64(divisor))
	if mod == 0 {
		return 0
	}

	return divisor - mod
}

// NextVsyncFrom returns the predicted time of the first vsync at or after
// timePoint. When a render rate is set, the result additionally lands on a
// vsync aligned to that rate, which may be several cycles further out. The
// result is never earlier than timePoint; a model producing a past
// prediction panics with full diagnostics.
func (p *Predictor) NextVsyncFrom(timePoint int64) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	// The computed sequence becomes the reference anchor for later calls.
	seq := p.vsyncSequenceLocked(timePoint)
	p.lastSeq = &seq

	phase := p.renderRatePhaseLocked()
	if phase == 0 {
		return seq.vsyncTime
	}

	slope := p.rates[p.idealPeriod].Slope
	approximateNextVsync := seq.vsyncTime + slope*int64(phase)
	return p.nextFromLocked(approximateNextVsync - slope/2)
}

// IsVsyncInPhase reports whether the vsync closest to timePoint lands on a
// frameRate boundary. A frame rate that is not a divisor of the refresh
// rate is always considered in phase. For vsyncs at 16.6ms, 33.3ms, 50.0ms
// on a 60 Hz display:
//
//	IsVsyncInPhase(16.6ms, 30) = true
//	IsVsyncInPhase(33.3ms, 30) = false
//	IsVsyncInPhase(50.0ms, 30) = true
func (p *Predictor) IsVsyncInPhase(timePoint int64, frameRate fps.Fps) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	divisor := fps.FrameRateDivisor(fps.FromPeriodNsecs(p.idealPeriod), frameRate)
	return p.isInPhaseLocked(timePoint, divisor)
}

func (p *Predictor) isInPhaseLocked(timePoint int64, divisor int) bool {
	now := p.clock.Now()
	p.tracer.Debugf("isVsyncInPhase timePoint in: %.2fms divisor: %d",
		float64(timePoint-now)/1e6, divisor)

	if divisor <= 1 || timePoint == 0 {
		return true
	}

	// Snap to the vsync nearest timePoint rather than the one after it.
	period := p.rates[p.idealPeriod].Slope
	justBefore := timePoint - period/2
	seq := p.vsyncSequenceLocked(justBefore)
	p.tracer.Debugf("isVsyncInPhase vsync in: %.2fms sequence: %d",
		float64(seq.vsyncTime-now)/1e6, seq.seq)
	return seq.seq%int64(divisor) == 0
}
