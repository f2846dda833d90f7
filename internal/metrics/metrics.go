package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Check outcomes used as the "outcome" label.
const (
	OutcomeChanged   = "changed"
	OutcomeUnchanged = "unchanged"
	OutcomeError     = "error"
)

// Metrics groups all Prometheus instruments used across the application.
// Registered once at startup via New(); passed by pointer wherever needed.
type Metrics struct {
	ChecksTotal     *prometheus.CounterVec
	CheckLatency    prometheus.Histogram
	QueueDepth      prometheus.Gauge
	Coalesced       prometheus.Counter
	Dropped         *prometheus.CounterVec
	Watches         prometheus.Gauge
	OverdueWatches  prometheus.Gauge
	PersistDropped  prometheus.Counter
	ProxiesReloaded prometheus.Counter
}

// New registers all instruments with the given Prometheus registerer and
// returns the populated Metrics struct.
// Using a custom registry (instead of prometheus.DefaultRegisterer) keeps
// tests isolated and avoids global state.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ChecksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "watch_checks_total",
			Help: "Total number of completed watch checks by outcome.",
		}, []string{"outcome"}),

		CheckLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "watch_check_seconds",
			Help:    "Latency from dequeue to committed check result.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 45, 90},
		}),

		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "recheck_queue_depth",
			Help: "Current number of watches waiting in the recheck queue.",
		}),

		Coalesced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "recheck_queue_coalesced_total",
			Help: "Enqueue requests merged into an already pending entry.",
		}),

		Dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recheck_items_dropped_total",
			Help: "Dequeued items that were not checked, by reason.",
		}, []string{"reason"}),

		Watches: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "watches",
			Help: "Number of registered watches.",
		}),

		OverdueWatches: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "watches_overdue",
			Help: "Watches not checked within their interval plus the grace period.",
		}),

		PersistDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "watch_persist_dropped_total",
			Help: "Watch mutation events dropped because the persistence buffer was full.",
		}),

		ProxiesReloaded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "proxies_reloaded_total",
			Help: "Successful reloads of the proxies file.",
		}),
	}

	reg.MustRegister(
		m.ChecksTotal,
		m.CheckLatency,
		m.QueueDepth,
		m.Coalesced,
		m.Dropped,
		m.Watches,
		m.OverdueWatches,
		m.PersistDropped,
		m.ProxiesReloaded,
	)

	return m
}

// WorkerHooks returns the metric callback functions expected by worker.MetricHooks.
// Centralises the prometheus observation calls so worker.go stays import-free.
func (m *Metrics) WorkerHooks() (
	onChecked func(outcome string, latency time.Duration),
	onDropped func(reason string),
) {
	onChecked = func(outcome string, latency time.Duration) {
		m.ChecksTotal.WithLabelValues(outcome).Inc()
		m.CheckLatency.Observe(latency.Seconds())
	}
	onDropped = func(reason string) {
		m.Dropped.WithLabelValues(reason).Inc()
	}
	return
}

// ObserveStatus copies a status snapshot into the gauges.
func (m *Metrics) ObserveStatus(queueSize, watches, overdue int) {
	m.QueueDepth.Set(float64(queueSize))
	m.Watches.Set(float64(watches))
	m.OverdueWatches.Set(float64(overdue))
}
