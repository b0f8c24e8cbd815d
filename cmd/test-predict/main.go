// ABOUTME: Test app to exercise the predictor against a pulse feed
// ABOUTME: Reports fit lock, outlier rejection, and prediction error offline
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/AOSP-14-RMX2020/platform-frameworks-native/internal/feed"
	"github.com/AOSP-14-RMX2020/platform-frameworks-native/pkg/fps"
	"github.com/AOSP-14-RMX2020/platform-frameworks-native/pkg/vsync"
)

var (
	capture  = flag.String("capture", "", "Timestamp capture file (one ns value per line)")
	periodNs = flag.Int64("period", 16_666_666, "Nominal vsync period in nanoseconds")
	jitterNs = flag.Int64("jitter", 80_000, "Synthetic jitter sigma in nanoseconds")
	driftPPM = flag.Float64("drift", 0, "Synthetic period wander amplitude in PPM")
	dropRate = flag.Float64("drop", 0, "Synthetic pulse drop probability in [0,1)")
	samples  = flag.Int("samples", 120, "Number of timestamps to feed")
	rateHz   = flag.Float64("rate", 0, "Render rate for phase checks (0 = none)")
	seed     = flag.Int64("seed", 1, "Synthetic feed RNG seed")
)

func main() {
	flag.Parse()

	log.SetFlags(log.Ltime | log.Lmicroseconds)

	fmt.Println("=== Predictor Test App ===")
	fmt.Println("This test will:")
	fmt.Println("1. Feed timestamps from a synthetic or captured pulse source")
	fmt.Println("2. Report when the fit locks and which samples get rejected")
	fmt.Println("3. Measure how far each pulse lands from its prediction")
	fmt.Println()

	source, err := buildSource()
	if err != nil {
		log.Fatalf("Feed error: %v", err)
	}

	p := vsync.New(vsync.Options{
		DisplayID:   "test",
		IdealPeriod: *periodNs,
	})

	run(p, source)
}

func buildSource() (feed.Source, error) {
	if *capture != "" {
		r, err := feed.LoadReplay(*capture)
		if err != nil {
			return nil, err
		}
		log.Printf("Replaying %d captured timestamps from %s", r.Len(), *capture)
		return r, nil
	}

	log.Printf("Simulating a %s panel (jitter %d ns, drift %.1f ppm, drop %.2f)",
		fps.FromPeriodNsecs(*periodNs), *jitterNs, *driftPPM, *dropRate)
	return feed.NewSynthetic(feed.SyntheticConfig{
		Period:   *periodNs,
		JitterNs: *jitterNs,
		DriftPPM: *driftPPM,
		DropRate: *dropRate,
		Seed:     *seed,
	}, 0), nil
}

func run(p *vsync.Predictor, source feed.Source) {
	var (
		fed, rejected  int
		lockedAt       = -1
		measured       int
		sumAbs, maxAbs float64
		last           int64
	)

	for i := 0; i < *samples; i++ {
		ts, ok := source.Next()
		if !ok {
			log.Printf("Feed exhausted after %d samples", i)
			break
		}

		// Measure against the model's opinion before the sample lands in
		// the window. Probing from half a period back finds the lattice
		// point this pulse belongs to even across dropped pulses.
		if !p.NeedsMoreSamples() {
			want := p.NextVsyncFrom(ts - p.Model().Slope/2)
			errNs := float64(ts - want)
			measured++
			sumAbs += abs(errNs)
			if abs(errNs) > maxAbs {
				maxAbs = abs(errNs)
			}
		}

		fed++
		if !p.AddTimestamp(ts) {
			rejected++
			log.Printf("sample %3d rejected: ts=%d", i, ts)
		}
		if lockedAt < 0 && !p.NeedsMoreSamples() {
			lockedAt = i
			m := p.Model()
			log.Printf("fit locked at sample %d: slope=%d intercept=%+d", i, m.Slope, m.Intercept)
		}
		last = ts
	}

	fmt.Println()
	m := p.Model()
	log.Printf("fed %d samples, %d rejected", fed, rejected)
	if lockedAt < 0 {
		log.Printf("fit never locked (needs more samples)")
		return
	}
	log.Printf("model: slope=%d ns (%s), intercept=%+d ns",
		m.Slope, fps.FromPeriodNsecs(m.Slope), m.Intercept)
	if measured > 0 {
		log.Printf("prediction error: mean %.1f us, worst %.1f us over %d pulses",
			sumAbs/float64(measured)/1e3, maxAbs/1e3, measured)
	}

	// Project the upcoming pulses; mark the ones a pinned render rate
	// would draw on.
	fmt.Println()
	log.Printf("next pulses after ts=%d:", last)
	next := last
	for i := 0; i < 5; i++ {
		next = p.NextVsyncFrom(next)
		mark := ""
		if *rateHz > 0 && p.IsVsyncInPhase(next, fps.FromHz(*rateHz)) {
			mark = "  <- render frame"
		}
		log.Printf("  +%.3f ms%s", float64(next-last)/1e6, mark)
	}

	log.Printf("Test complete")
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
