package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the relay's prometheus instruments on a private registry.
type Metrics struct {
	ConnectionsOpen prometheus.Gauge
	RelayedTotal    *prometheus.CounterVec
	RecordingStarts prometheus.Counter
	RelayErrors     prometheus.Counter

	reg *prometheus.Registry
}

func New() *Metrics {
	m := &Metrics{
		ConnectionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signaling_connections_open",
			Help: "Currently open websocket connections.",
		}),
		RelayedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signaling_relayed_payloads_total",
			Help: "Negotiation payloads forwarded to a counterpart, by kind.",
		}, []string{"kind"}),
		RecordingStarts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signaling_recording_starts_total",
			Help: "Recording-start broadcasts.",
		}),
		RelayErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signaling_relay_errors_total",
			Help: "Event handler faults recovered at the boundary.",
		}),
		reg: prometheus.NewRegistry(),
	}
	m.reg.MustRegister(m.ConnectionsOpen, m.RelayedTotal, m.RecordingStarts, m.RelayErrors)
	return m
}

// RegisterRoomsGauge wires a live room-count gauge backed by the registry.
func (m *Metrics) RegisterRoomsGauge(f func() float64) {
	m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "signaling_rooms_active",
		Help: "Rooms currently live in the relay.",
	}, f))
}

// Handler serves the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
