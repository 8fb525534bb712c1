package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// JournalMetrics track the journal writer.
type JournalMetrics struct {
	Written       prometheus.Counter
	Dropped       prometheus.Counter
	Failed        prometheus.Counter
	FlushDuration prometheus.Histogram
}

// NewJournalMetrics creates the journal metrics and registers them with reg.
func NewJournalMetrics(reg prometheus.Registerer) *JournalMetrics {
	m := &JournalMetrics{
		Written: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wsclient",
			Subsystem: "journal",
			Name:      "entries_written_total",
			Help:      "Journal entries inserted.",
		}),
		Dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wsclient",
			Subsystem: "journal",
			Name:      "entries_dropped_total",
			Help:      "Journal entries discarded because the queue was full.",
		}),
		Failed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wsclient",
			Subsystem: "journal",
			Name:      "entries_failed_total",
			Help:      "Journal entries whose insert failed.",
		}),
		FlushDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "wsclient",
			Subsystem: "journal",
			Name:      "flush_duration_seconds",
			Help:      "Time to send one batch.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	if reg != nil {
		reg.MustRegister(m.Written, m.Dropped, m.Failed, m.FlushDuration)
	}
	return m
}

// ObserveFlush records a batch of n entries that took d, of which failed failed.
func (m *JournalMetrics) ObserveFlush(n, failed int, d time.Duration) {
	m.Written.Add(float64(n - failed))
	m.Failed.Add(float64(failed))
	m.FlushDuration.Observe(d.Seconds())
}
