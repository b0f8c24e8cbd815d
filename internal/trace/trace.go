// ABOUTME: zap-backed trace sink for predictor diagnostics
// ABOUTME: Counters become typed int64 fields bound to one display
package trace

import (
	"go.uber.org/zap"

	"github.com/AOSP-14-RMX2020/platform-frameworks-native/pkg/vsync"
)

// Tracer forwards predictor counters and debug text to a zap logger.
type Tracer struct {
	log   *zap.Logger
	sugar *zap.SugaredLogger
}

var _ vsync.Tracer = (*Tracer)(nil)

// New returns a Tracer whose output is bound to one display.
func New(log *zap.Logger, displayID string) *Tracer {
	bound := log.With(zap.String("display", displayID))
	return &Tracer{
		log:   bound,
		sugar: bound.Sugar(),
	}
}

// Counter implements vsync.Tracer. The counter name becomes the log message
// and the value a typed field.
func (t *Tracer) Counter(name string, value int64) {
	t.log.Debug(name, zap.Int64("value", value))
}

// Debugf implements vsync.Tracer.
func (t *Tracer) Debugf(format string, args ...any) {
	t.sugar.Debugf(format, args...)
}
