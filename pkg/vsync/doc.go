// ABOUTME: Vsync arrival-time prediction package
// ABOUTME: Fits a linear timing model over observed vsync pulses per refresh period
// Package vsync predicts the arrival time of upcoming display vsync pulses.
//
// A Predictor ingests observed vsync timestamps, rejects outliers, and fits
// a linear (period, phase) model over a bounded sample window. Fitted models
// are cached per ideal refresh period, so switching refresh rates back and
// forth does not restart learning from scratch. Predictions also carry a
// vsync sequence number, which lets a caller align frame production to a
// render rate that divides the display's refresh rate.
//
// Example:
//
//	p := vsync.New(vsync.Options{DisplayID: "internal", IdealPeriod: 16_666_666})
//	for _, ts := range observed {
//		p.AddTimestamp(ts)
//	}
//	next := p.NextVsyncFrom(now)
package vsync
