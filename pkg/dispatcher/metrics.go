package dispatcher

import (
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	cycles        prometheus.Counter
	cycleDuration prometheus.Histogram
	candidates    prometheus.Gauge
	dispatched    *prometheus.CounterVec
	skipped       *prometheus.CounterVec
}

func newMetrics(reg *prometheus.Registry, nodeID string) *metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	labels := prometheus.Labels{"node": nodeID}

	m := &metrics{
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "jobregistry",
			Subsystem:   "dispatcher",
			Name:        "cycles_total",
			Help:        "Number of completed dispatch cycles.",
			ConstLabels: labels,
		}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "jobregistry",
			Subsystem:   "dispatcher",
			Name:        "cycle_duration_seconds",
			Help:        "Time spent in one dispatch cycle.",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		candidates: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "jobregistry",
			Subsystem:   "dispatcher",
			Name:        "candidate_jobs",
			Help:        "Dispatchable jobs seen by the last cycle.",
			ConstLabels: labels,
		}),
		dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "jobregistry",
			Subsystem:   "dispatcher",
			Name:        "dispatched_total",
			Help:        "Jobs assigned to a service, by job type.",
			ConstLabels: labels,
		}, []string{"job_type"}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "jobregistry",
			Subsystem:   "dispatcher",
			Name:        "skipped_total",
			Help:        "Jobs left in the queue, by reason (conflict, no_capacity, blocked, error).",
			ConstLabels: labels,
		}, []string{"reason"}),
	}
	reg.MustRegister(m.cycles, m.cycleDuration, m.candidates, m.dispatched, m.skipped)
	return m
}
