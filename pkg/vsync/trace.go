// ABOUTME: Diagnostic trace sink contract for the predictor
// ABOUTME: Named int64 counters plus formatted debug text, with a no-op default
package vsync

// Tracer receives diagnostic counters and debug text from a Predictor.
// Calls are made with the predictor lock held, so a sink must not call back
// into the predictor.
type Tracer interface {
	// Counter records a named int64 value.
	Counter(name string, value int64)

	// Debugf records a formatted debug message.
	Debugf(format string, args ...any)
}

// Counter names emitted by the predictor.
const (
	traceNameTS         = "VSP-ts"
	traceNamePeriod     = "VSP-period"
	traceNameIntercept  = "VSP-intercept"
	traceNameMode       = "VSP-mode"
	traceNameTimePoint  = "VSP-timePoint"
	traceNamePrediction = "VSP-prediction"
	traceNameSetPeriod  = "VSP-setPeriod"
)

// NopTracer discards everything. It is the default when Options.Tracer is nil.
type NopTracer struct{}

// Counter implements Tracer.
func (NopTracer) Counter(string, int64) {}

// Debugf implements Tracer.
func (NopTracer) Debugf(string, ...any) {}
