package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Drop reasons.
const (
	DropNotConnected = "not_connected"
	DropSendFailed   = "send_failed"
	DropFiltered     = "filtered"
)

// RelayMetrics records location relay traffic. A nil *RelayMetrics is valid
// and records nothing.
type RelayMetrics struct {
	emitted    prometheus.Counter
	dropped    *prometheus.CounterVec
	received   prometheus.Counter
	reconnects prometheus.Counter
	state      prometheus.Gauge
}

// NewRelayMetrics registers the relay metrics on the provided registerer.
func NewRelayMetrics(reg prometheus.Registerer) *RelayMetrics {
	if reg == nil {
		return nil
	}
	m := &RelayMetrics{
		emitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_emitted_total",
			Help: "Location updates written to the channel.",
		}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_dropped_total",
			Help: "Location updates dropped before reaching the channel.",
		}, []string{"reason"}),
		received: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_received_total",
			Help: "Location updates delivered to subscribers.",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_reconnect_attempts_total",
			Help: "Failed connection attempts.",
		}),
		state: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relay_state",
			Help: "Connection state: 0 disconnected, 1 connecting, 2 connected, 3 reconnecting.",
		}),
	}
	reg.MustRegister(m.emitted, m.dropped, m.received, m.reconnects, m.state)
	return m
}

func (m *RelayMetrics) IncEmitted() {
	if m == nil {
		return
	}
	m.emitted.Inc()
}

func (m *RelayMetrics) IncDropped(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unknown"
	}
	m.dropped.WithLabelValues(reason).Inc()
}

func (m *RelayMetrics) IncReceived() {
	if m == nil {
		return
	}
	m.received.Inc()
}

func (m *RelayMetrics) IncConnectionError() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}

func (m *RelayMetrics) SetState(state int) {
	if m == nil {
		return
	}
	m.state.Set(float64(state))
}

// Handler serves the registry in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
