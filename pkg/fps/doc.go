// ABOUTME: Frame-rate value type and refresh/render rate arithmetic
// ABOUTME: Shared by the vsync predictor and the feed tooling
// Package fps represents display refresh rates and render rates.
//
// An Fps is a rate in frames per second. It converts to and from vsync
// periods in nanoseconds, and FrameRateDivisor answers the one question
// the predictor needs: how many vsync pulses fit between frames of a
// reduced render rate.
//
// Example:
//
//	refresh := fps.FromPeriodNsecs(16_666_667) // ~60 Hz panel
//	if d := fps.FrameRateDivisor(refresh, fps.FromHz(30)); d == 2 {
//	    // present on every second vsync
//	}
package fps
