// Package metrics provides Prometheus collectors for the chat transport.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the transport's Prometheus collectors.
type Metrics struct {
	ConnectionsActive prometheus.Gauge
	FramesTotal       *prometheus.CounterVec
	TurnsTotal        *prometheus.CounterVec
	TurnDuration      prometheus.Histogram

	registry *prometheus.Registry
}

// New creates the collectors on a private registry so tests can construct
// multiple instances without duplicate-registration panics.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chat_ws_connections_active",
			Help: "Number of currently open chat WebSocket connections",
		}),
		FramesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_ws_frames_total",
			Help: "Total frames by type and direction",
		}, []string{"type", "direction"}),
		TurnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_turns_total",
			Help: "Completed agent turns by outcome",
		}, []string{"outcome"}),
		TurnDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chat_turn_duration_seconds",
			Help:    "Wall time of agent turns from user message to terminator",
			Buckets: prometheus.DefBuckets,
		}),
		registry: reg,
	}

	reg.MustRegister(m.ConnectionsActive, m.FramesTotal, m.TurnsTotal, m.TurnDuration)
	return m
}

// Handler returns the scrape endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
