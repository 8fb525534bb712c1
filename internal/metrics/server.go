package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ServerMetrics are updated by the echo server as connections come and go.
type ServerMetrics struct {
	ConnectionsActive prometheus.Gauge
	ConnectionsTotal  *prometheus.CounterVec // by negotiated subprotocol ("" when none)
	UpgradeFailures   prometheus.Counter
	Messages          *prometheus.CounterVec // by direction and type
	Bytes             *prometheus.CounterVec // by direction
	ConnectionSeconds prometheus.Histogram
}

// NewServerMetrics creates the echo server metrics and registers them with reg.
func NewServerMetrics(reg prometheus.Registerer) *ServerMetrics {
	m := &ServerMetrics{
		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "wsecho",
			Name:      "connections_active",
			Help:      "WebSocket connections currently open.",
		}),
		ConnectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wsecho",
			Name:      "connections_total",
			Help:      "WebSocket connections accepted.",
		}, []string{"subprotocol"}),
		UpgradeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wsecho",
			Name:      "upgrade_failures_total",
			Help:      "Requests that failed the WebSocket handshake.",
		}),
		Messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wsecho",
			Name:      "messages_total",
			Help:      "Data messages handled.",
		}, []string{"direction", "type"}),
		Bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wsecho",
			Name:      "bytes_total",
			Help:      "Payload bytes handled.",
		}, []string{"direction"}),
		ConnectionSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "wsecho",
			Name:      "connection_duration_seconds",
			Help:      "Lifetime of closed connections.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 4, 8),
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.ConnectionsActive,
			m.ConnectionsTotal,
			m.UpgradeFailures,
			m.Messages,
			m.Bytes,
			m.ConnectionSeconds,
		)
	}
	return m
}

// Opened records an accepted connection.
func (m *ServerMetrics) Opened(subprotocol string) {
	m.ConnectionsActive.Inc()
	m.ConnectionsTotal.WithLabelValues(subprotocol).Inc()
}

// Closed records the end of a connection opened at start.
func (m *ServerMetrics) Closed(start time.Time) {
	m.ConnectionsActive.Dec()
	m.ConnectionSeconds.Observe(time.Since(start).Seconds())
}

// Received records an inbound message of the given type ("text" or "binary").
func (m *ServerMetrics) Received(typ string, n int) {
	m.Messages.WithLabelValues("in", typ).Inc()
	m.Bytes.WithLabelValues("in").Add(float64(n))
}

// Sent records an outbound message.
func (m *ServerMetrics) Sent(typ string, n int) {
	m.Messages.WithLabelValues("out", typ).Inc()
	m.Bytes.WithLabelValues("out").Add(float64(n))
}
