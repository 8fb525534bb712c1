package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// QueueStats is a snapshot of a growable queue.
type QueueStats struct {
	Count        int
	Capacity     int
	MaxCapacity  int
	TotalPushed  int64
	TotalPopped  int64
	TotalDropped int64
	ResizeCount  int
}

// QueueStatsSource reports queue statistics.
type QueueStatsSource interface {
	Stats() QueueStats
}

// QueueCollector exports a journal queue's stats on every scrape.
type QueueCollector struct {
	src QueueStatsSource

	depth       *prometheus.Desc
	capacity    *prometheus.Desc
	maxCapacity *prometheus.Desc
	pushed      *prometheus.Desc
	popped      *prometheus.Desc
	dropped     *prometheus.Desc
	resizes     *prometheus.Desc
}

// NewQueueCollector creates a collector over src.
func NewQueueCollector(src QueueStatsSource) *QueueCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName("wsclient", "journal_queue", name), help, nil, nil)
	}

	return &QueueCollector{
		src:         src,
		depth:       desc("depth", "Entries waiting for the journal writer."),
		capacity:    desc("capacity", "Current queue capacity."),
		maxCapacity: desc("max_capacity", "Capacity the queue may grow to."),
		pushed:      desc("pushed_total", "Entries accepted by the queue."),
		popped:      desc("popped_total", "Entries taken by the journal writer."),
		dropped:     desc("dropped_total", "Entries rejected because the queue was full at its maximum."),
		resizes:     desc("resizes_total", "Times the queue grew."),
	}
}

// Describe implements prometheus.Collector.
func (c *QueueCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.depth
	ch <- c.capacity
	ch <- c.maxCapacity
	ch <- c.pushed
	ch <- c.popped
	ch <- c.dropped
	ch <- c.resizes
}

// Collect implements prometheus.Collector.
func (c *QueueCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.src.Stats()

	gauge := func(d *prometheus.Desc, v int) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, float64(v))
	}
	counter := func(d *prometheus.Desc, v int64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v))
	}
	gauge(c.depth, s.Count)
	gauge(c.capacity, s.Capacity)
	gauge(c.maxCapacity, s.MaxCapacity)
	counter(c.pushed, s.TotalPushed)
	counter(c.popped, s.TotalPopped)
	counter(c.dropped, s.TotalDropped)
	counter(c.resizes, int64(s.ResizeCount))
}
