// ABOUTME: Tests for sample ingestion, validation, regression fit, and the model cache
// ABOUTME: Uses exact-period streams so fitted models are integer-deterministic
package vsync

import (
	"fmt"
	"strings"
	"testing"
)

// 60 Hz and 120 Hz panels.
const (
	period60  = int64(16_666_666)
	period120 = int64(8_333_333)
)

// recordingTracer captures counters and debug lines for assertions.
type recordingTracer struct {
	counters map[string][]int64
	debugs   []string
}

func newRecordingTracer() *recordingTracer {
	return &recordingTracer{counters: make(map[string][]int64)}
}

func (r *recordingTracer) Counter(name string, value int64) {
	r.counters[name] = append(r.counters[name], value)
}

func (r *recordingTracer) Debugf(format string, args ...any) {
	r.debugs = append(r.debugs, fmt.Sprintf(format, args...))
}

// feedPeriodic adds count samples spaced period apart starting at start,
// failing the test if any is rejected. Returns the last timestamp fed.
func feedPeriodic(t *testing.T, p *Predictor, start, period int64, count int) int64 {
	t.Helper()
	ts := start
	for i := 0; i < count; i++ {
		if !p.AddTimestamp(ts) {
			t.Fatalf("periodic sample %d at %d was rejected", i, ts)
		}
		ts += period
	}
	return ts - period
}

func TestDefaults(t *testing.T) {
	p := New(Options{})

	if got := p.Period(); got != period60 {
		t.Errorf("default period = %d, want %d", got, period60)
	}
	if !p.NeedsMoreSamples() {
		t.Error("fresh predictor should need more samples")
	}
}

func TestFirstSampleAlwaysAccepted(t *testing.T) {
	p := New(Options{IdealPeriod: period60})

	if !p.AddTimestamp(12345) {
		t.Error("bootstrap sample should always be accepted")
	}
}

func TestUnfittedBelowMinimum(t *testing.T) {
	p := New(Options{IdealPeriod: period60})
	feedPeriodic(t, p, 1_000_000, period60, 5) // one below the minimum of 6

	if !p.NeedsMoreSamples() {
		t.Error("5 samples should still need more")
	}
	if got := p.Model(); got != (Model{Slope: period60}) {
		t.Errorf("model below minimum = %+v, want unfitted default", got)
	}

	// The default model still extrapolates from the window.
	if got := p.NextVsyncFrom(1_000_000); got != 1_000_000+period60 {
		t.Errorf("prediction from default model = %d, want %d", got, 1_000_000+period60)
	}
}

func TestConvergenceExactPeriod(t *testing.T) {
	p := New(Options{IdealPeriod: period60})
	feedPeriodic(t, p, 1_000_000, period60, 20)

	if p.NeedsMoreSamples() {
		t.Error("20 samples should not need more")
	}
	// Exact-period input fits the period exactly, with zero phase offset.
	if got := p.Model(); got != (Model{Slope: period60, Intercept: 0}) {
		t.Errorf("converged model = %+v, want {%d 0}", got, period60)
	}
}

func TestConvergenceWithJitter(t *testing.T) {
	p := New(Options{IdealPeriod: period60})

	ts := int64(1_000_000)
	for i := 0; i < 20; i++ {
		jitter := int64(100_000)
		if i%2 == 1 {
			jitter = -jitter
		}
		if !p.AddTimestamp(ts + jitter) {
			t.Fatalf("jittered sample %d rejected", i)
		}
		ts += period60
	}

	slope := p.Model().Slope
	if diff := slope - period60; diff < -100_000 || diff > 100_000 {
		t.Errorf("slope %d strayed more than 100us from %d", slope, period60)
	}
}

func TestOutlierRejectedAfterConvergence(t *testing.T) {
	p := New(Options{IdealPeriod: period60})
	last := feedPeriodic(t, p, 1_000_000, period60, 10)
	want := p.Model()

	// Half a period off lands squarely in the rejection band.
	if p.AddTimestamp(last + period60 + period60/2) {
		t.Error("half-period outlier should be rejected")
	}
	if got := p.Model(); got != want {
		t.Errorf("model changed on rejected sample: %+v -> %+v", want, got)
	}
	if p.NeedsMoreSamples() {
		t.Error("rejection after convergence must keep the window")
	}
}

func TestDuplicateRejected(t *testing.T) {
	p := New(Options{IdealPeriod: period60})
	last := feedPeriodic(t, p, 1_000_000, period60, 10)
	want := p.Model()

	// 10% of a period from the newest sample: passes the band check but is
	// too close to an existing sample.
	if p.AddTimestamp(last + period60/10) {
		t.Error("near-duplicate sample should be rejected")
	}
	if got := p.Model(); got != want {
		t.Errorf("model changed on duplicate: %+v -> %+v", want, got)
	}
}

func TestLearningPhaseRestartsOnInconsistency(t *testing.T) {
	p := New(Options{IdealPeriod: period60})
	last := feedPeriodic(t, p, 1_000_000, period60, 3)

	outlier := last + period60 + period60/2
	if p.AddTimestamp(outlier) {
		t.Fatal("outlier should be rejected")
	}

	// Below the minimum, a rejection restarts learning from scratch. The
	// cleared samples (outlier included) fold into the anchor.
	if !p.NeedsMoreSamples() {
		t.Error("window should be empty after a learning-phase restart")
	}
	if got := p.NextVsyncFrom(outlier); got != outlier+period60 {
		t.Errorf("anchor fallback = %d, want %d", got, outlier+period60)
	}
}

func TestRejectionAfterLearningAdvancesAnchor(t *testing.T) {
	p := New(Options{IdealPeriod: period60})
	last := feedPeriodic(t, p, 1_000_000, period60, 10)

	outlier := last + period60 + period60/2
	if p.AddTimestamp(outlier) {
		t.Fatal("outlier should be rejected")
	}
	if p.NeedsMoreSamples() {
		t.Fatal("window must survive a post-learning rejection")
	}

	// Clearing the window exposes the anchor, which must have advanced to
	// the rejected (newest known-good) timestamp.
	p.SetIdealPeriod(period60)
	if got := p.NextVsyncFrom(outlier); got != outlier+period60 {
		t.Errorf("prediction from anchor = %d, want %d", got, outlier+period60)
	}
}

func TestWindowWrapsAtCapacity(t *testing.T) {
	p := New(Options{IdealPeriod: period60, HistorySize: 20})
	t0 := int64(1_000_000)
	last := feedPeriodic(t, p, t0, period60, 25) // 5 past capacity

	if got := p.Model(); got != (Model{Slope: period60, Intercept: 0}) {
		t.Errorf("model after wrap = %+v, want {%d 0}", got, period60)
	}

	// Oldest surviving sample is t0+5P; the lattice is unchanged.
	if got, want := p.NextVsyncFrom(last+period60/2), t0+25*period60; got != want {
		t.Errorf("prediction after wrap = %d, want %d", got, want)
	}
}

func TestFitDegeneracyResetsModel(t *testing.T) {
	p := New(Options{IdealPeriod: period60})
	last := feedPeriodic(t, p, 1_000_000, period60, 10)

	// A zero provisional slope collapses every ordinal to zero, which makes
	// the regression denominator vanish.
	p.rates[period60] = Model{}

	if p.AddTimestamp(last + period60) {
		t.Error("degenerate fit should report failure")
	}
	if got := p.Model(); got != (Model{Slope: period60}) {
		t.Errorf("model after degenerate fit = %+v, want unfitted default", got)
	}
	if !p.NeedsMoreSamples() {
		t.Error("window should be cleared after a degenerate fit")
	}
}

func TestFitSanityCheckResetsModel(t *testing.T) {
	p := New(Options{IdealPeriod: period60})
	last := feedPeriodic(t, p, 1_000_000, period60, 10)

	// A wildly wrong provisional slope skews the ordinals enough that the
	// fitted slope disagrees with the ideal period beyond tolerance.
	p.rates[period60] = Model{Slope: 3 * period60}

	if p.AddTimestamp(last + period60) {
		t.Error("out-of-tolerance fit should report failure")
	}
	if got := p.Model(); got != (Model{Slope: period60}) {
		t.Errorf("model after failed sanity check = %+v, want unfitted default", got)
	}
	if !p.NeedsMoreSamples() {
		t.Error("window should be cleared after a failed sanity check")
	}
}

func TestResetDiscardsFit(t *testing.T) {
	p := New(Options{IdealPeriod: period60})
	feedPeriodic(t, p, 1_000_000, period60, 10)

	p.Reset()

	if got := p.Model(); got != (Model{Slope: period60}) {
		t.Errorf("model after reset = %+v, want unfitted default", got)
	}
	if !p.NeedsMoreSamples() {
		t.Error("reset should clear the window")
	}
}

func TestCacheIsolationAcrossPeriodSwitches(t *testing.T) {
	p := New(Options{IdealPeriod: period60})

	// Fit at a true period 2us off the ideal so the fitted model is
	// distinguishable from the unfitted default.
	fitted60 := period60 + 2_000
	feedPeriodic(t, p, 1_000_000, fitted60, 20)
	if got := p.Model(); got != (Model{Slope: fitted60, Intercept: 0}) {
		t.Fatalf("60Hz model = %+v, want {%d 0}", got, fitted60)
	}

	p.SetIdealPeriod(period120)
	fitted120 := period120 + 1_000
	feedPeriodic(t, p, 500_000_000, fitted120, 20)
	if got := p.Model(); got != (Model{Slope: fitted120, Intercept: 0}) {
		t.Fatalf("120Hz model = %+v, want {%d 0}", got, fitted120)
	}

	// Switching back restores the fitted 60Hz model without refitting,
	// even though the window restarts empty.
	p.SetIdealPeriod(period60)
	if got := p.Model(); got != (Model{Slope: fitted60, Intercept: 0}) {
		t.Errorf("restored 60Hz model = %+v, want {%d 0}", got, fitted60)
	}
	if !p.NeedsMoreSamples() {
		t.Error("period switch should clear the window")
	}
}

func TestCacheEvictsSmallestPeriodAtCapacity(t *testing.T) {
	small := int64(8_000_000)
	p := New(Options{IdealPeriod: small})

	// 29 more distinct periods brings the cache to its cap of 30.
	for i := 0; i < 29; i++ {
		p.SetIdealPeriod(20_000_000 + int64(i)*1_000_000)
	}
	if len(p.rates) != rateMapSizeLimit {
		t.Fatalf("cache size = %d, want %d", len(p.rates), rateMapSizeLimit)
	}
	if _, ok := p.rates[small]; !ok {
		t.Fatal("smallest period missing before eviction")
	}

	// Any switch at the cap drops the smallest key first, even when the
	// target period is already cached.
	p.SetIdealPeriod(20_000_000)
	if _, ok := p.rates[small]; ok {
		t.Error("smallest period should have been evicted")
	}
	if len(p.rates) != rateMapSizeLimit-1 {
		t.Errorf("cache size after eviction = %d, want %d", len(p.rates), rateMapSizeLimit-1)
	}

	// The next new period refills to the cap; the following one evicts the
	// new smallest key.
	p.SetIdealPeriod(60_000_000)
	p.SetIdealPeriod(61_000_000)
	if _, ok := p.rates[20_000_000]; ok {
		t.Error("second-smallest period should be the next eviction")
	}
}

func TestDumpListsModelsInAscendingPeriodOrder(t *testing.T) {
	p := New(Options{IdealPeriod: period60})
	feedPeriodic(t, p, 1_000_000, period60, 10)
	p.SetIdealPeriod(period120)

	dump := p.Dump()
	if !strings.Contains(dump, "idealPeriod=8.33") {
		t.Errorf("dump missing current ideal period:\n%s", dump)
	}
	if !strings.Contains(dump, "For ideal period 16.67ms: period = 16.67ms, intercept = 0") {
		t.Errorf("dump missing fitted 60Hz entry:\n%s", dump)
	}
	if strings.Index(dump, "8.33ms") > strings.Index(dump, "16.67ms") {
		t.Errorf("dump not in ascending period order:\n%s", dump)
	}
}

func TestTraceCounterGating(t *testing.T) {
	verbose := newRecordingTracer()
	p := New(Options{IdealPeriod: period60, Tracer: verbose, TraceVerbose: true})
	feedPeriodic(t, p, 1_000_000, period60, 6)
	p.NextVsyncFrom(200_000_000)
	p.SetIdealPeriod(period120)
	p.NextVsyncFrom(300_000_000)

	if got := len(verbose.counters[traceNameTS]); got != 6 {
		t.Errorf("verbose VSP-ts count = %d, want 6", got)
	}
	if got := verbose.counters[traceNamePeriod]; len(got) != 1 || got[0] != period60 {
		t.Errorf("verbose VSP-period = %v, want [%d]", got, period60)
	}
	if got := verbose.counters[traceNameMode]; len(got) != 2 || got[0] != 0 || got[1] != 1 {
		t.Errorf("VSP-mode = %v, want [0 1]", got)
	}
	if got := verbose.counters[traceNameSetPeriod]; len(got) != 1 || got[0] != period120 {
		t.Errorf("VSP-setPeriod = %v, want [%d]", got, period120)
	}

	quiet := newRecordingTracer()
	q := New(Options{IdealPeriod: period60, Tracer: quiet})
	feedPeriodic(t, q, 1_000_000, period60, 6)
	q.NextVsyncFrom(200_000_000)

	if got := len(quiet.counters[traceNameTS]); got != 0 {
		t.Errorf("per-sample counters leaked without TraceVerbose: %d", got)
	}
	if got := len(quiet.counters[traceNameMode]); got != 1 {
		t.Errorf("mode counter should not be gated, got %d entries", got)
	}
}
