package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rickgao/wsclient/internal/connection"
)

// StatsSource reports connection manager counters.
type StatsSource interface {
	Stats() connection.ManagerStats
}

// ClientCollector exports a manager's stats on every scrape.
type ClientCollector struct {
	src StatsSource

	state            *prometheus.Desc
	connectAttempts  *prometheus.Desc
	connectFailures  *prometheus.Desc
	disconnects      *prometheus.Desc
	messagesSent     *prometheus.Desc
	messagesReceived *prometheus.Desc
	bytesSent        *prometheus.Desc
	bytesReceived    *prometheus.Desc
	transportErrors  *prometheus.Desc
}

var states = []connection.State{
	connection.StateDisconnected,
	connection.StateConnecting,
	connection.StateConnected,
}

// NewClientCollector creates a collector over src.
func NewClientCollector(src StatsSource) *ClientCollector {
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName("wsclient", "", name), help, labels, nil)
	}

	return &ClientCollector{
		src:              src,
		state:            desc("connection_state", "Current connection state (1 for the active state).", "state"),
		connectAttempts:  desc("connect_attempts_total", "Connection attempts started."),
		connectFailures:  desc("connect_failures_total", "Connection attempts that failed the handshake."),
		disconnects:      desc("disconnects_total", "Open connections that ended, locally or remotely."),
		messagesSent:     desc("messages_sent_total", "Messages written to the connection."),
		messagesReceived: desc("messages_received_total", "Messages read from the connection."),
		bytesSent:        desc("bytes_sent_total", "Payload bytes written."),
		bytesReceived:    desc("bytes_received_total", "Payload bytes read."),
		transportErrors:  desc("transport_errors_total", "Handshake, read, write and heartbeat failures."),
	}
}

// Describe implements prometheus.Collector.
func (c *ClientCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.state
	ch <- c.connectAttempts
	ch <- c.connectFailures
	ch <- c.disconnects
	ch <- c.messagesSent
	ch <- c.messagesReceived
	ch <- c.bytesSent
	ch <- c.bytesReceived
	ch <- c.transportErrors
}

// Collect implements prometheus.Collector.
func (c *ClientCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.src.Stats()

	for _, st := range states {
		v := 0.0
		if s.State == st {
			v = 1
		}
		ch <- prometheus.MustNewConstMetric(c.state, prometheus.GaugeValue, v, st.String())
	}

	counter := func(d *prometheus.Desc, v int64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
	}
	counter(c.connectAttempts, s.ConnectAttempts)
	counter(c.connectFailures, s.ConnectFailures)
	counter(c.disconnects, s.Disconnects)
	counter(c.messagesSent, s.MessagesSent)
	counter(c.messagesReceived, s.MessagesReceived)
	counter(c.bytesSent, s.BytesSent)
	counter(c.bytesReceived, s.BytesReceived)
	counter(c.transportErrors, s.TransportErrors)
}
