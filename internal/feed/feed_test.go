// ABOUTME: Tests for the synthetic and replay vsync sources
// ABOUTME: Covers periodicity, jitter bounds, drops, and capture parsing
package feed

import (
	"strings"
	"testing"
)

const period60 = int64(16_666_666)

func TestSyntheticZeroJitterIsExactLattice(t *testing.T) {
	s := NewSynthetic(SyntheticConfig{Period: period60}, 1_000_000)

	for k := int64(0); k < 50; k++ {
		ts, ok := s.Next()
		if !ok {
			t.Fatalf("synthetic source exhausted at pulse %d", k)
		}
		want := 1_000_000 + k*period60
		if ts != want {
			t.Errorf("pulse %d = %d, want %d", k, ts, want)
		}
	}
}

func TestSyntheticDefaultsApplied(t *testing.T) {
	s := NewSynthetic(SyntheticConfig{}, 0)
	if s.Period() != period60 {
		t.Errorf("default period = %d, want %d", s.Period(), period60)
	}

	s = NewSynthetic(SyntheticConfig{Period: period60, DropRate: 1.5}, 0)
	if s.cfg.DropRate != 0.99 {
		t.Errorf("drop rate not clamped: %v", s.cfg.DropRate)
	}
}

func TestSyntheticJitterStaysNearLattice(t *testing.T) {
	jitter := int64(100_000)
	s := NewSynthetic(SyntheticConfig{Period: period60, JitterNs: jitter, Seed: 42}, 0)

	sawOffset := false
	for k := int64(0); k < 200; k++ {
		ts, _ := s.Next()
		off := ts - k*period60
		if off < 0 {
			off = -off
		}
		// 10 sigma would be an astronomically unlikely excursion.
		if off > 10*jitter {
			t.Fatalf("pulse %d offset %dns exceeds 10x jitter", k, off)
		}
		if off != 0 {
			sawOffset = true
		}
	}
	if !sawOffset {
		t.Error("jittered stream never deviated from the lattice")
	}
}

func TestSyntheticSeedReproducible(t *testing.T) {
	cfg := SyntheticConfig{Period: period60, JitterNs: 50_000, DropRate: 0.1, Seed: 7}
	a := NewSynthetic(cfg, 0)
	b := NewSynthetic(cfg, 0)

	for k := 0; k < 100; k++ {
		ta, _ := a.Next()
		tb, _ := b.Next()
		if ta != tb {
			t.Fatalf("pulse %d diverged: %d vs %d", k, ta, tb)
		}
	}
}

func TestSyntheticDropsLeaveWholePeriodGaps(t *testing.T) {
	s := NewSynthetic(SyntheticConfig{Period: period60, DropRate: 0.3, Seed: 3}, 0)

	var prev int64 = -period60
	dropped := 0
	for k := 0; k < 200; k++ {
		ts, _ := s.Next()
		gap := ts - prev
		if gap <= 0 || gap%period60 != 0 {
			t.Fatalf("pulse %d gap %dns is not a whole number of periods", k, gap)
		}
		if gap > period60 {
			dropped++
		}
		prev = ts
	}
	if dropped == 0 {
		t.Error("30% drop rate produced no gaps in 200 pulses")
	}
}

func TestSyntheticSetPeriodSwitchesLattice(t *testing.T) {
	s := NewSynthetic(SyntheticConfig{Period: period60}, 0)
	for k := 0; k < 5; k++ {
		s.Next()
	}
	last, _ := s.Next() // pulse 5 at 5*period60

	const period120 = int64(8_333_333)
	s.SetPeriod(period120)

	// The already-scheduled pulse still lands on the old lattice; every
	// pulse after it advances by the new period.
	ts, _ := s.Next()
	if ts != last+period60 {
		t.Errorf("pulse after switch = %d, want %d", ts, last+period60)
	}
	ts2, _ := s.Next()
	if ts2 != ts+period120 {
		t.Errorf("second pulse after switch = %d, want %d", ts2, ts+period120)
	}

	s.SetPeriod(0) // ignored
	if s.Period() != period120 {
		t.Errorf("zero period not ignored: %d", s.Period())
	}
}

func TestSyntheticDriftBendsPeriod(t *testing.T) {
	s := NewSynthetic(SyntheticConfig{Period: period60, DriftPPM: 500, DriftCycle: 100}, 0)

	var prev int64
	varied := false
	for k := 0; k < 100; k++ {
		ts, _ := s.Next()
		if k > 0 && ts-prev != period60 {
			varied = true
		}
		prev = ts
	}
	if !varied {
		t.Error("500ppm drift never moved an interval off the nominal period")
	}
}

func TestReplayParsesCapture(t *testing.T) {
	capture := `# vsync capture, display internal
1000000

17666666
34333332
`
	r, err := NewReplay(strings.NewReader(capture))
	if err != nil {
		t.Fatalf("NewReplay: %v", err)
	}
	if r.Len() != 3 {
		t.Fatalf("Len = %d, want 3", r.Len())
	}

	want := []int64{1_000_000, 17_666_666, 34_333_332}
	for i, w := range want {
		ts, ok := r.Next()
		if !ok {
			t.Fatalf("capture exhausted at %d", i)
		}
		if ts != w {
			t.Errorf("timestamp %d = %d, want %d", i, ts, w)
		}
	}
	if _, ok := r.Next(); ok {
		t.Error("Next returned a timestamp past the end of the capture")
	}

	r.Rewind()
	ts, ok := r.Next()
	if !ok || ts != 1_000_000 {
		t.Errorf("after Rewind: %d %v, want 1000000 true", ts, ok)
	}
}

func TestReplayRejectsMalformedLine(t *testing.T) {
	_, err := NewReplay(strings.NewReader("1000000\nnot-a-number\n"))
	if err == nil {
		t.Fatal("malformed capture accepted")
	}
	if !strings.Contains(err.Error(), "line 2") {
		t.Errorf("error does not name the offending line: %v", err)
	}
}

func TestLoadReplayMissingFile(t *testing.T) {
	if _, err := LoadReplay("/nonexistent/capture.txt"); err == nil {
		t.Fatal("missing capture file accepted")
	}
}
