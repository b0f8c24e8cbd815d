// ABOUTME: YAML configuration for the vsync feed daemon
// ABOUTME: Server listeners, trace options, predictor tuning, and display setup
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the full daemon configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Trace     TraceConfig     `yaml:"trace"`
	Predictor PredictorConfig `yaml:"predictor"`
	Displays  []DisplayConfig `yaml:"displays"`
}

// ServerConfig describes the network surface of the daemon.
type ServerConfig struct {
	// Name identifies this daemon to monitors and in mDNS records.
	Name string `yaml:"name"`

	// Listen is the websocket feed address (default ":8787").
	Listen string `yaml:"listen"`

	// MetricsListen is the Prometheus address (default ":9090";
	// "off" disables the endpoint).
	MetricsListen string `yaml:"metrics_listen"`

	// MDNS announces the feed on the local network when true.
	MDNS bool `yaml:"mdns"`
}

// TraceConfig controls predictor tracing.
type TraceConfig struct {
	// Level is the zap log level (default "info").
	Level string `yaml:"level"`

	// Verbose enables the per-sample trace counters.
	Verbose bool `yaml:"verbose"`
}

// PredictorConfig tunes the timing model shared by all displays.
// Zero values take the predictor's own defaults.
type PredictorConfig struct {
	HistorySize      int `yaml:"history_size"`
	MinimumSamples   int `yaml:"minimum_samples"`
	TolerancePercent int `yaml:"tolerance_percent"`
}

// DisplayConfig describes one display feed. A display replays a capture
// file when Capture is set, otherwise it simulates a panel.
type DisplayConfig struct {
	// Name identifies the display in the feed and in metrics.
	Name string `yaml:"name"`

	// PeriodNs is the nominal refresh interval (default 16666666, 60 Hz).
	PeriodNs int64 `yaml:"period_ns"`

	// RenderRateHz pins the content rate below the refresh rate
	// (0 leaves predictions unaligned).
	RenderRateHz float64 `yaml:"render_rate_hz"`

	// Capture replays recorded timestamps from a file instead of
	// simulating the panel.
	Capture string `yaml:"capture"`

	// Panel simulation knobs, ignored when Capture is set.
	JitterNs int64   `yaml:"jitter_ns"`
	DriftPPM float64 `yaml:"drift_ppm"`
	DropRate float64 `yaml:"drop_rate"`
	Seed     int64   `yaml:"seed"`
}

// Default returns the configuration used when no file is given: one
// simulated 60 Hz display with mild jitter.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Name:          "vsyncd",
			Listen:        ":8787",
			MetricsListen: ":9090",
			MDNS:          true,
		},
		Trace: TraceConfig{
			Level: "info",
		},
		Displays: []DisplayConfig{
			{
				Name:     "internal",
				PeriodNs: 16_666_666,
				JitterNs: 80_000,
			},
		},
	}
}

// Load reads the configuration from a YAML file, fills defaults, and
// validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(&c)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate rejects configurations the daemon cannot run.
func (c *Config) Validate() error {
	if len(c.Displays) == 0 {
		return fmt.Errorf("config: no displays defined")
	}
	seen := make(map[string]bool)
	for i, d := range c.Displays {
		if d.Name == "" {
			return fmt.Errorf("config: display %d has no name", i)
		}
		if seen[d.Name] {
			return fmt.Errorf("config: duplicate display %q", d.Name)
		}
		seen[d.Name] = true
		if d.PeriodNs <= 0 {
			return fmt.Errorf("config: display %q: period_ns must be positive", d.Name)
		}
		if d.RenderRateHz < 0 {
			return fmt.Errorf("config: display %q: render_rate_hz must not be negative", d.Name)
		}
		if d.DropRate < 0 || d.DropRate >= 1 {
			return fmt.Errorf("config: display %q: drop_rate must be in [0, 1)", d.Name)
		}
	}
	if c.Predictor.TolerancePercent < 0 || c.Predictor.TolerancePercent > 100 {
		return fmt.Errorf("config: tolerance_percent must be in [0, 100]")
	}
	return nil
}

func applyDefaults(c *Config) {
	d := Default()
	if c.Server.Name == "" {
		c.Server.Name = d.Server.Name
	}
	if c.Server.Listen == "" {
		c.Server.Listen = d.Server.Listen
	}
	if c.Server.MetricsListen == "" {
		c.Server.MetricsListen = d.Server.MetricsListen
	} else if c.Server.MetricsListen == "off" {
		c.Server.MetricsListen = ""
	}
	if c.Trace.Level == "" {
		c.Trace.Level = d.Trace.Level
	}
	for i := range c.Displays {
		if c.Displays[i].PeriodNs == 0 {
			c.Displays[i].PeriodNs = 16_666_666
		}
	}
}
