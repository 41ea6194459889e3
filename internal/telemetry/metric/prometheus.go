// Package metric provides Prometheus metrics for slotmesh.
package metric

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "slotmesh"

// Registry holds all session metrics.
type Registry struct {
	registry *prometheus.Registry

	// Slot metrics
	SlotsLive         prometheus.Gauge
	SlotRegistrations *prometheus.CounterVec // label: result
	SlotRemovals      *prometheus.CounterVec // label: reason
	AckTimeouts       prometheus.Counter

	// Inbound metrics
	PacketsDispatched   *prometheus.CounterVec // label: kind
	PacketsDropped      *prometheus.CounterVec // label: reason
	SnapshotsApplied    prometheus.Counter
	SnapshotGapTimeouts prometheus.Counter
	ResendRequests      prometheus.Counter

	// Outbound metrics
	InputFrames       *prometheus.CounterVec // label: mode (fresh, replay)
	InputBackpressure prometheus.Counter
	TransportDrops    prometheus.Counter

	// Loop metrics
	TickDuration prometheus.Histogram

	// Control API metrics
	ControlRequests *prometheus.CounterVec // labels: method, code
}

// NewRegistry creates a registry with every collector registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		registry: reg,
		SlotsLive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "slots_live",
			Help:      "Number of live connection slots, main slot included.",
		}),
		SlotRegistrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slot_registrations_total",
			Help:      "Slot registration attempts by result code.",
		}, []string{"result"}),
		SlotRemovals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slot_removals_total",
			Help:      "Slot removals by reason.",
		}, []string{"reason"}),
		AckTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ack_timeouts_total",
			Help:      "Slots failed for missing the acknowledgment deadline.",
		}),
		PacketsDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_dispatched_total",
			Help:      "Inbound packets accepted by the router, by packet kind.",
		}, []string{"kind"}),
		PacketsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_dropped_total",
			Help:      "Inbound packets dropped by the router, by reason.",
		}, []string{"reason"}),
		SnapshotsApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_applied_total",
			Help:      "Snapshots applied to game state in tick order.",
		}),
		SnapshotGapTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_gap_timeouts_total",
			Help:      "Times a slot waited too long for a missing snapshot.",
		}),
		ResendRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resend_requests_total",
			Help:      "Snapshot resend requests sent to the server.",
		}),
		InputFrames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "input_frames_total",
			Help:      "Input frames produced, by mode.",
		}, []string{"mode"}),
		InputBackpressure: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "input_backpressure_total",
			Help:      "Queued input frames dropped because a slot queue was full.",
		}),
		TransportDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_drops_total",
			Help:      "Datagrams dropped because the inbound channel was full.",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Time spent in one tick boundary.",
			Buckets:   []float64{.0001, .00025, .0005, .001, .0025, .005, .01, .02, .05},
		}),
		ControlRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "control_requests_total",
			Help:      "Control API requests by method and status code.",
		}, []string{"method", "code"}),
	}

	reg.MustRegister(
		r.SlotsLive,
		r.SlotRegistrations,
		r.SlotRemovals,
		r.AckTimeouts,
		r.PacketsDispatched,
		r.PacketsDropped,
		r.SnapshotsApplied,
		r.SnapshotGapTimeouts,
		r.ResendRequests,
		r.InputFrames,
		r.InputBackpressure,
		r.TransportDrops,
		r.TickDuration,
		r.ControlRequests,
		collectors.NewGoCollector(),
	)

	return r
}

// Register adds an extra collector, such as a slot Collector.
func (r *Registry) Register(c prometheus.Collector) error {
	return r.registry.Register(c)
}

// Gatherer exposes the underlying registry for tests and exporters.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
