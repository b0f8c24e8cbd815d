// ABOUTME: Vsync feed message type definitions
// ABOUTME: Defines the JSON envelope and payload structs for the monitor feed
package protocol

import (
	"encoding/json"
	"fmt"
)

// Version is the feed protocol version carried in hello and welcome messages.
const Version = 1

// Message is the top-level wrapper for all feed messages
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Message types carried over the feed.
const (
	TypeMonitorHello  = "monitor/hello"
	TypeServerWelcome = "server/welcome"
	TypeServerError   = "server/error"
	TypeSample        = "display/sample"
	TypeModel         = "display/model"
	TypePhase         = "display/phase"
	TypeRateChange    = "display/rate"
)

// ServerError reports a handshake or request failure
type ServerError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// MonitorHello is sent by monitors to initiate the handshake
type MonitorHello struct {
	ClientID string `json:"client_id"`
	Name     string `json:"name"`
	Version  int    `json:"version"`
}

// ServerWelcome is the daemon's response to monitor/hello
type ServerWelcome struct {
	ServerID string        `json:"server_id"`
	Name     string        `json:"name"`
	Version  int           `json:"version"`
	Displays []DisplayInfo `json:"displays"`
}

// DisplayInfo describes one display the daemon tracks
type DisplayInfo struct {
	Name        string  `json:"name"`
	IdealPeriod int64   `json:"ideal_period_ns"`
	RenderRate  float64 `json:"render_rate_hz,omitempty"`
}

// SampleUpdate reports one ingested vsync timestamp
type SampleUpdate struct {
	Display   string `json:"display"`
	Timestamp int64  `json:"timestamp_ns"`
	Accepted  bool   `json:"accepted"`
	Total     uint64 `json:"total"`
	Rejected  uint64 `json:"rejected"`
}

// ModelUpdate reports the fitted model after a sample or a period switch
type ModelUpdate struct {
	Display      string `json:"display"`
	IdealPeriod  int64  `json:"ideal_period_ns"`
	Slope        int64  `json:"slope_ns"`
	Intercept    int64  `json:"intercept_ns"`
	NeedsSamples bool   `json:"needs_samples"`
	NextVsync    int64  `json:"next_vsync_ns"`
}

// PhaseUpdate reports a render-rate phase probe
type PhaseUpdate struct {
	Display    string  `json:"display"`
	TimePoint  int64   `json:"time_point_ns"`
	RenderRate float64 `json:"render_rate_hz"`
	InPhase    bool    `json:"in_phase"`
}

// RateChange notifies monitors of an ideal-period or render-rate switch
type RateChange struct {
	Display     string  `json:"display"`
	IdealPeriod int64   `json:"ideal_period_ns"`
	RenderRate  float64 `json:"render_rate_hz,omitempty"`
}

// DecodePayload re-decodes a message payload into a concrete type. The
// envelope decodes payloads as generic maps, so typed consumers go through
// one marshal round trip.
func DecodePayload(msg Message, out interface{}) error {
	data, err := json.Marshal(msg.Payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", msg.Type, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s payload: %w", msg.Type, err)
	}
	return nil
}
