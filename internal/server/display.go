// ABOUTME: Per-display pump wiring a pulse source into the timing model
// ABOUTME: Paces samples on the daemon clock and broadcasts feed updates
package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/AOSP-14-RMX2020/platform-frameworks-native/internal/config"
	"github.com/AOSP-14-RMX2020/platform-frameworks-native/internal/feed"
	"github.com/AOSP-14-RMX2020/platform-frameworks-native/internal/protocol"
	"github.com/AOSP-14-RMX2020/platform-frameworks-native/internal/trace"
	"github.com/AOSP-14-RMX2020/platform-frameworks-native/pkg/fps"
	"github.com/AOSP-14-RMX2020/platform-frameworks-native/pkg/vsync"
	"go.uber.org/zap"
)

// Display couples one pulse source with its timing model.
type Display struct {
	server *Server
	name   string

	idealPeriod int64
	source      feed.Source
	rebase      bool // capture timestamps get moved onto the daemon clock
	predictor   *vsync.Predictor

	mu         sync.Mutex
	renderRate float64 // Hz, 0 means unpinned
	total      uint64
	rejected   uint64
}

func newDisplay(s *Server, dc config.DisplayConfig) (*Display, error) {
	d := &Display{
		server:      s,
		name:        dc.Name,
		idealPeriod: dc.PeriodNs,
	}

	if dc.Capture != "" {
		replay, err := feed.LoadReplay(dc.Capture)
		if err != nil {
			return nil, fmt.Errorf("loading capture: %w", err)
		}
		d.source = replay
		d.rebase = true
	} else {
		d.source = feed.NewSynthetic(feed.SyntheticConfig{
			Period:   dc.PeriodNs,
			JitterNs: dc.JitterNs,
			DriftPPM: dc.DriftPPM,
			DropRate: dc.DropRate,
			Seed:     dc.Seed,
		}, s.clock.Now()+dc.PeriodNs)
	}

	d.predictor = vsync.New(vsync.Options{
		DisplayID:               dc.Name,
		IdealPeriod:             dc.PeriodNs,
		HistorySize:             s.cfg.Predictor.HistorySize,
		MinimumSamples:          s.cfg.Predictor.MinimumSamples,
		OutlierTolerancePercent: s.cfg.Predictor.TolerancePercent,
		Tracer:                  trace.New(s.log, dc.Name),
		Clock:                   s.clock,
		TraceVerbose:            s.cfg.Trace.Verbose,
	})

	if dc.RenderRateHz > 0 {
		d.setRenderRate(dc.RenderRateHz)
	}

	return d, nil
}

// info describes the display for the handshake.
func (d *Display) info() protocol.DisplayInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	return protocol.DisplayInfo{
		Name:        d.name,
		IdealPeriod: d.idealPeriod,
		RenderRate:  d.renderRate,
	}
}

// PinRenderRate pins the display's content rate and tells monitors.
func (d *Display) PinRenderRate(hz float64) {
	d.setRenderRate(hz)
	d.server.broadcast(protocol.TypeRateChange, protocol.RateChange{
		Display:     d.name,
		IdealPeriod: d.idealPeriod,
		RenderRate:  hz,
	})
}

func (d *Display) setRenderRate(hz float64) {
	d.mu.Lock()
	d.renderRate = hz
	d.mu.Unlock()
	d.predictor.SetRenderRate(fps.FromHz(hz))
}

// run paces the source against the daemon clock and ingests each pulse.
func (d *Display) run(ctx context.Context) {
	var offset int64
	haveOffset := !d.rebase

	for {
		ts, ok := d.source.Next()
		if !ok {
			d.server.log.Info("pulse source exhausted", zap.String("display", d.name))
			return
		}

		if !haveOffset {
			offset = d.server.clock.Now() + d.idealPeriod - ts
			haveOffset = true
		}
		ts += offset

		if wait := ts - d.server.clock.Now(); wait > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Duration(wait)):
			}
		} else {
			select {
			case <-ctx.Done():
				return
			default:
			}
		}

		d.ingest(ts)
	}
}

// ingest feeds one pulse to the predictor and fans out the updates.
func (d *Display) ingest(ts int64) {
	accepted := d.predictor.AddTimestamp(ts)

	d.mu.Lock()
	d.total++
	if !accepted {
		d.rejected++
	}
	total, rejected := d.total, d.rejected
	renderRate := d.renderRate
	d.mu.Unlock()

	result := "accepted"
	if !accepted {
		result = "rejected"
	}
	d.server.metrics.samplesTotal.WithLabelValues(d.name, result).Inc()

	model := d.predictor.Model()
	next := d.predictor.NextVsyncFrom(ts)
	d.server.metrics.modelPeriod.WithLabelValues(d.name).Set(float64(model.Slope))
	d.server.metrics.modelIntercept.WithLabelValues(d.name).Set(float64(model.Intercept))

	d.server.broadcast(protocol.TypeSample, protocol.SampleUpdate{
		Display:   d.name,
		Timestamp: ts,
		Accepted:  accepted,
		Total:     total,
		Rejected:  rejected,
	})
	d.server.broadcast(protocol.TypeModel, protocol.ModelUpdate{
		Display:      d.name,
		IdealPeriod:  d.idealPeriod,
		Slope:        model.Slope,
		Intercept:    model.Intercept,
		NeedsSamples: d.predictor.NeedsMoreSamples(),
		NextVsync:    next,
	})

	if renderRate > 0 {
		// Probe whether the upcoming vsync lands on the pinned rate's grid.
		d.server.broadcast(protocol.TypePhase, protocol.PhaseUpdate{
			Display:    d.name,
			TimePoint:  next,
			RenderRate: renderRate,
			InPhase:    d.predictor.IsVsyncInPhase(next, fps.FromHz(renderRate)),
		})
	}
}
