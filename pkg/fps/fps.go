// ABOUTME: Fps type with period conversions and the frame-rate divisor
// ABOUTME: Divisor of 0 means "rates are not an integer multiple apart"
package fps

import (
	"fmt"
	"math"
)

// Fps is a frame rate in frames per second. The zero value is invalid.
type Fps float64

// divisorThreshold must stay below 0.001 so that fractional rate pairs
// (59.94 vs 60) do not collapse into the same divisor.
const divisorThreshold = 0.0009

// FromHz returns the rate for a frames-per-second value.
func FromHz(hz float64) Fps {
	return Fps(hz)
}

// FromPeriodNsecs returns the rate whose vsync period is p nanoseconds.
func FromPeriodNsecs(p int64) Fps {
	if p <= 0 {
		return 0
	}
	return Fps(1e9 / float64(p))
}

// Hz returns the rate as a plain float64.
func (f Fps) Hz() float64 {
	return float64(f)
}

// PeriodNsecs returns the vsync period for this rate, in nanoseconds.
func (f Fps) PeriodNsecs() int64 {
	if !f.IsValid() {
		return 0
	}
	return int64(1e9 / float64(f))
}

// IsValid reports whether the rate is usable (strictly positive).
func (f Fps) IsValid() bool {
	return f > 0
}

func (f Fps) String() string {
	return fmt.Sprintf("%.2f Hz", float64(f))
}

// FrameRateDivisor returns how many display refresh periods make up one
// frame of the requested rate: 2 for a 60 Hz panel rendering at 30 fps.
// It returns 0 when either rate is invalid or when the ratio is not an
// integer (within divisorThreshold), meaning the render rate cannot be
// honored by skipping whole vsyncs.
func FrameRateDivisor(displayRate, frameRate Fps) int {
	if !displayRate.IsValid() || !frameRate.IsValid() {
		return 0
	}

	numPeriods := float64(displayRate) / float64(frameRate)
	rounded := math.Round(numPeriods)
	if math.Abs(numPeriods-rounded) > divisorThreshold {
		return 0
	}
	return int(rounded)
}
