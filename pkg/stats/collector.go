package stats

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jdziat/job-registry/pkg/core"
)

// Source is the registry surface the collector reads from.
type Source interface {
	Events() <-chan core.Event
	Unsubscribe(ch <-chan core.Event)
	CountByType(ctx context.Context, statuses ...core.JobStatus) ([]core.JobCount, error)
}

// DepthStatuses are the statuses reported by the queue depth gauge.
var DepthStatuses = []core.JobStatus{
	core.StatusQueued,
	core.StatusRestart,
	core.StatusDispatching,
	core.StatusRunning,
}

// StatsCollector subscribes to registry events and periodically snapshots
// queue depth.
type StatsCollector struct {
	source   Source
	interval time.Duration
	logger   *slog.Logger

	transitions   *prometheus.CounterVec
	serviceStates *prometheus.CounterVec
	collected     prometheus.Counter
	depth         *prometheus.GaugeVec

	// ready is closed once the collector has subscribed to events.
	ready     chan struct{}
	readyOnce sync.Once
}

// StatsCollectorOption configures the StatsCollector.
type StatsCollectorOption interface {
	apply(*StatsCollector)
}

type statsCollectorOptionFunc func(*StatsCollector)

func (f statsCollectorOptionFunc) apply(sc *StatsCollector) { f(sc) }

// WithSnapshotInterval sets how often queue depth is read from the store.
func WithSnapshotInterval(d time.Duration) StatsCollectorOption {
	return statsCollectorOptionFunc(func(sc *StatsCollector) {
		if d > 0 {
			sc.interval = d
		}
	})
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) StatsCollectorOption {
	return statsCollectorOptionFunc(func(sc *StatsCollector) {
		if l != nil {
			sc.logger = l
		}
	})
}

// NewStatsCollector creates a collector whose metrics are registered on reg.
// A nil reg uses a private registry.
func NewStatsCollector(source Source, reg *prometheus.Registry, opts ...StatsCollectorOption) *StatsCollector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	sc := &StatsCollector{
		source:   source,
		interval: time.Minute,
		logger:   slog.Default(),
		ready:    make(chan struct{}),

		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jobregistry",
			Subsystem: "jobs",
			Name:      "transitions_total",
			Help:      "Job status changes committed by this node, by job type and new status.",
		}, []string{"job_type", "status"}),
		serviceStates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jobregistry",
			Subsystem: "services",
			Name:      "state_changes_total",
			Help:      "Service health state changes recorded by this node, by job type and new state.",
		}, []string{"job_type", "state"}),
		collected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "jobregistry",
			Subsystem: "jobs",
			Name:      "collected_total",
			Help:      "Finished jobs removed by this node.",
		}),
		depth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "jobregistry",
			Subsystem: "jobs",
			Name:      "depth",
			Help:      "Jobs waiting or running, by job type and status.",
		}, []string{"job_type", "status"}),
	}
	for _, opt := range opts {
		opt.apply(sc)
	}
	reg.MustRegister(sc.transitions, sc.serviceStates, sc.collected, sc.depth)
	return sc
}

// WaitReady blocks until the collector has subscribed to events.
func (sc *StatsCollector) WaitReady() {
	<-sc.ready
}

// Start consumes events and refreshes queue depth until ctx is canceled.
func (sc *StatsCollector) Start(ctx context.Context) error {
	events := sc.source.Events()
	defer sc.source.Unsubscribe(events)

	sc.readyOnce.Do(func() { close(sc.ready) })

	sc.Snapshot(ctx)
	ticker := time.NewTicker(sc.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e := <-events:
			sc.handleEvent(e)
		case <-ticker.C:
			sc.Snapshot(ctx)
		}
	}
}

func (sc *StatsCollector) handleEvent(e core.Event) {
	switch ev := e.(type) {
	case *core.JobStatusChanged:
		sc.transitions.WithLabelValues(ev.Job.JobType, string(ev.Job.Status)).Inc()
	case *core.ServiceStateChanged:
		sc.serviceStates.WithLabelValues(ev.JobType, string(ev.To)).Inc()
	case *core.JobsCollected:
		sc.collected.Add(float64(ev.Removed))
	}
}

// Snapshot reads the current queue depth from the store. A failed read
// leaves the previous values in place.
func (sc *StatsCollector) Snapshot(ctx context.Context) {
	counts, err := sc.source.CountByType(ctx, DepthStatuses...)
	if err != nil {
		sc.logger.Warn("queue depth snapshot failed", "error", err)
		return
	}

	sc.depth.Reset()
	for _, c := range counts {
		sc.depth.WithLabelValues(c.JobType, string(c.Status)).Set(float64(c.Count))
	}
}
