// ABOUTME: Prometheus metrics for the vsync feed daemon
// ABOUTME: Sample counters, model gauges, and monitor connection gauge
package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the daemon's collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	samplesTotal   *prometheus.CounterVec
	modelPeriod    *prometheus.GaugeVec
	modelIntercept *prometheus.GaugeVec
	monitors       prometheus.Gauge
	droppedTotal   prometheus.Counter
}

// NewMetrics creates the collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		samplesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vsync_samples_total",
			Help: "Vsync timestamps ingested, by display and validation result.",
		}, []string{"display", "result"}),
		modelPeriod: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vsync_model_period_ns",
			Help: "Fitted refresh period per display.",
		}, []string{"display"}),
		modelIntercept: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vsync_model_intercept_ns",
			Help: "Fitted model intercept per display.",
		}, []string{"display"}),
		monitors: factory.NewGauge(prometheus.GaugeOpts{
			Name: "vsync_monitors",
			Help: "Connected feed monitors.",
		}),
		droppedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "vsync_feed_dropped_total",
			Help: "Feed messages dropped because a monitor's send buffer was full.",
		}),
	}
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
