// Package metric provides Prometheus metrics for slotmesh.
package metric

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// SlotStat is a point-in-time view of one slot.
type SlotStat struct {
	SlotID          uint32
	State           string
	StoredSnapshots int
	QueuedFrames    int
	AckedTick       int64
}

// SlotStatsSource is implemented by the session.
type SlotStatsSource interface {
	SlotStats() []SlotStat
}

// Collector reports per-slot gauges at scrape time.
type Collector struct {
	source SlotStatsSource

	stored *prometheus.Desc
	queued *prometheus.Desc
	acked  *prometheus.Desc
	state  *prometheus.Desc
}

// NewCollector creates a collector reading from source.
func NewCollector(source SlotStatsSource) *Collector {
	labels := []string{"slot_id"}
	return &Collector{
		source: source,
		stored: prometheus.NewDesc(namespace+"_slot_stored_snapshots", "Snapshots held in the slot history.", labels, nil),
		queued: prometheus.NewDesc(namespace+"_slot_queued_frames", "Input frames waiting in the slot queue.", labels, nil),
		acked:  prometheus.NewDesc(namespace+"_slot_acked_tick", "Highest tick acknowledged by the server.", labels, nil),
		state:  prometheus.NewDesc(namespace+"_slot_state", "Always 1; the state label carries the slot state.", []string{"slot_id", "state"}, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.stored
	ch <- c.queued
	ch <- c.acked
	ch <- c.state
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, s := range c.source.SlotStats() {
		id := strconv.FormatUint(uint64(s.SlotID), 10)
		ch <- prometheus.MustNewConstMetric(c.stored, prometheus.GaugeValue, float64(s.StoredSnapshots), id)
		ch <- prometheus.MustNewConstMetric(c.queued, prometheus.GaugeValue, float64(s.QueuedFrames), id)
		ch <- prometheus.MustNewConstMetric(c.acked, prometheus.GaugeValue, float64(s.AckedTick), id)
		ch <- prometheus.MustNewConstMetric(c.state, prometheus.GaugeValue, 1, id, s.State)
	}
}
