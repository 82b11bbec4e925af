package registry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jdziat/job-registry/pkg/core"
	"github.com/jdziat/job-registry/pkg/health"
)

// DefaultJobLoad is the load weight of a job created without one.
const DefaultJobLoad = 1.0

// Registry tracks hosts, services and jobs on top of a shared store.
// Any number of registries, on any number of nodes, may use the same store.
type Registry struct {
	storage core.Storage
	monitor *health.Monitor
	logger  *slog.Logger
	opts    *Options
	mu      sync.RWMutex

	// Hooks
	onStatusChange []func(context.Context, *core.Job, core.JobStatus)

	// Event stream
	eventSubs []chan core.Event
}

// New creates a Registry backed by the given storage.
func New(s core.Storage, opts ...Option) *Registry {
	o := NewOptions()
	for _, opt := range opts {
		opt.Apply(o)
	}

	r := &Registry{
		storage: s,
		logger:  o.Logger,
		opts:    o,
	}
	r.monitor = health.NewMonitor(s,
		health.WithMaxAttemptsBeforeErrorState(o.MaxAttemptsBeforeErrorState),
		health.WithLogger(o.Logger),
		health.OnStateChange(func(svc *core.Service, from core.HealthState, trigger int64) {
			r.Emit(&core.ServiceStateChanged{
				HostURL:   svc.HostURL,
				JobType:   svc.JobType,
				From:      from,
				To:        svc.State,
				Trigger:   trigger,
				Timestamp: time.Now(),
			})
		}),
	)
	return r
}

// Storage returns the storage backend.
func (r *Registry) Storage() core.Storage {
	return r.storage
}

// Monitor returns the health monitor fed by job outcomes.
func (r *Registry) Monitor() *health.Monitor {
	return r.monitor
}

// OnStatusChange registers a callback for jobs whose status changed through
// UpdateJob. The callback receives the updated job and its previous status.
func (r *Registry) OnStatusChange(fn func(context.Context, *core.Job, core.JobStatus)) {
	r.mu.Lock()
	r.onStatusChange = append(r.onStatusChange, fn)
	r.mu.Unlock()
}

func (r *Registry) callStatusHooks(ctx context.Context, job *core.Job, from core.JobStatus) {
	r.mu.RLock()
	hooks := make([]func(context.Context, *core.Job, core.JobStatus), len(r.onStatusChange))
	copy(hooks, r.onStatusChange)
	r.mu.RUnlock()

	for _, fn := range hooks {
		fn(ctx, job, from)
	}
}

// Events returns a channel for receiving registry events.
// The caller must call Unsubscribe when done to prevent resource leaks.
func (r *Registry) Events() <-chan core.Event {
	ch := make(chan core.Event, 100)
	r.mu.Lock()
	r.eventSubs = append(r.eventSubs, ch)
	r.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber channel created by Events().
// The channel is not closed; callers must stop reading before calling Unsubscribe.
func (r *Registry) Unsubscribe(ch <-chan core.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, sub := range r.eventSubs {
		if sub == ch {
			r.eventSubs = append(r.eventSubs[:i], r.eventSubs[i+1:]...)
			return
		}
	}
}

// Emit emits an event to all subscribers.
func (r *Registry) Emit(e core.Event) {
	r.mu.RLock()
	subs := make([]chan core.Event, len(r.eventSubs))
	copy(subs, r.eventSubs)
	r.mu.RUnlock()

	for _, ch := range subs {
		select {
		case ch <- e:
		default:
			// Drop if full
		}
	}
}
