package registry

import (
	"context"
	"time"

	"github.com/jdziat/job-registry/pkg/core"
	"github.com/jdziat/job-registry/pkg/security"
)

// HostRegistration describes a host announcing itself to the cluster.
type HostRegistration struct {
	URL     string
	Address string
	// MaxLoad is the total job load the host accepts. Zero means unlimited.
	MaxLoad float64
	Cores   int
}

// RegisterHost creates or refreshes a host and marks it online. Re-registering
// never clears a maintenance flag set earlier.
func (r *Registry) RegisterHost(ctx context.Context, reg HostRegistration) (*core.Host, error) {
	if err := security.ValidateHostURL(reg.URL); err != nil {
		return nil, err
	}
	if reg.Cores < 0 {
		reg.Cores = 0
	}

	host := &core.Host{
		URL:     reg.URL,
		Address: security.SanitizeText(reg.Address),
		MaxLoad: security.ClampCapacity(reg.MaxLoad),
		Cores:   reg.Cores,
		Online:  true,
	}
	if err := r.storage.UpsertHost(ctx, host); err != nil {
		return nil, err
	}

	r.logger.Info("host registered", "host", host.URL, "max_load", host.MaxLoad, "maintenance", host.Maintenance)
	r.Emit(&core.HostRegistered{Host: host, Timestamp: time.Now()})
	return host, nil
}

// UnregisterHost removes a host and all of its services. Jobs running or
// dispatching on the host move to RESTART so they can be placed elsewhere.
// Returns the number of reclaimed jobs.
func (r *Registry) UnregisterHost(ctx context.Context, url string) (int64, error) {
	jobs, err := r.storage.DeleteHost(ctx, url)
	if err != nil {
		return 0, err
	}
	reclaimed := r.afterReclaim(ctx, jobs)

	r.logger.Info("host unregistered", "host", url, "reclaimed", reclaimed)
	r.Emit(&core.HostUnregistered{HostURL: url, Reclaimed: reclaimed, Timestamp: time.Now()})
	return reclaimed, nil
}

// SetMaintenance puts a host and its services in or out of maintenance.
// Hosts in maintenance keep their jobs but receive no new ones.
func (r *Registry) SetMaintenance(ctx context.Context, url string, maintenance bool) error {
	if err := r.storage.SetHostMaintenance(ctx, url, maintenance); err != nil {
		return err
	}
	r.logger.Info("host maintenance changed", "host", url, "maintenance", maintenance)
	return nil
}

// SetHostOnline marks a host online or offline without removing it. Jobs on
// a host going offline are reclaimed like on unregistration.
func (r *Registry) SetHostOnline(ctx context.Context, url string, online bool) (int64, error) {
	jobs, err := r.storage.SetHostOnline(ctx, url, online)
	if err != nil {
		return 0, err
	}
	reclaimed := r.afterReclaim(ctx, jobs)
	r.logger.Info("host online changed", "host", url, "online", online, "reclaimed", reclaimed)
	return reclaimed, nil
}

// GetHost retrieves a host by URL.
func (r *Registry) GetHost(ctx context.Context, url string) (*core.Host, error) {
	return r.storage.GetHost(ctx, url)
}

// GetHosts returns all registered hosts.
func (r *Registry) GetHosts(ctx context.Context) ([]*core.Host, error) {
	return r.storage.GetHosts(ctx)
}

// RegisterService announces that hostURL handles jobs of jobType at path.
// The host must be registered. An existing registration keeps its health state.
func (r *Registry) RegisterService(ctx context.Context, jobType, hostURL, path string) (*core.Service, error) {
	if err := security.ValidateJobType(jobType); err != nil {
		return nil, err
	}
	if err := security.ValidateHostURL(hostURL); err != nil {
		return nil, err
	}

	svc := &core.Service{
		HostURL: hostURL,
		JobType: jobType,
		Path:    security.SanitizeText(path),
		Online:  true,
	}
	if err := r.storage.UpsertService(ctx, svc); err != nil {
		return nil, err
	}

	r.logger.Info("service registered", "host", hostURL, "job_type", jobType, "state", svc.State)
	return svc, nil
}

// UnregisterService removes a service. Its running and dispatching jobs move
// to RESTART. Returns the number of reclaimed jobs.
func (r *Registry) UnregisterService(ctx context.Context, jobType, hostURL string) (int64, error) {
	jobs, err := r.storage.DeleteService(ctx, hostURL, jobType)
	if err != nil {
		return 0, err
	}
	reclaimed := r.afterReclaim(ctx, jobs)

	r.logger.Info("service unregistered", "host", hostURL, "job_type", jobType, "reclaimed", reclaimed)
	r.Emit(&core.ServiceUnregistered{HostURL: hostURL, JobType: jobType, Reclaimed: reclaimed, Timestamp: time.Now()})
	return reclaimed, nil
}

// GetService retrieves the service of jobType on hostURL.
func (r *Registry) GetService(ctx context.Context, jobType, hostURL string) (*core.Service, error) {
	return r.storage.GetService(ctx, hostURL, jobType)
}

// GetServices returns all services, or those of one job type if jobType is set.
func (r *Registry) GetServices(ctx context.Context, jobType string) ([]*core.Service, error) {
	return r.storage.GetServices(ctx, jobType)
}

// ServicesByLoad returns the services able to take a job of jobType, least
// loaded host first. Services in ERROR never appear.
func (r *Registry) ServicesByLoad(ctx context.Context, jobType string) ([]core.ServiceLoad, error) {
	return r.storage.ServicesByLoad(ctx, jobType)
}

// ResetServiceHealth puts a service back to NORMAL.
func (r *Registry) ResetServiceHealth(ctx context.Context, jobType, hostURL string) error {
	return r.monitor.Reset(ctx, hostURL, jobType)
}

// afterReclaim runs the status hooks and events for jobs moved to RESTART by
// host or service removal. Returns how many there were.
func (r *Registry) afterReclaim(ctx context.Context, jobs []core.ReclaimedJob) int64 {
	for _, rj := range jobs {
		r.afterStatusChange(ctx, rj.Job, rj.From)
	}
	return int64(len(jobs))
}
