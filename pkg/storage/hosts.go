package storage

import (
	"context"
	"fmt"
	"sort"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jdziat/job-registry/pkg/core"
)

// UpsertHost creates the host or updates address, capacity and online flag.
// The maintenance flag of an existing host is left untouched.
func (s *GormStorage) UpsertHost(ctx context.Context, host *core.Host) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "url"}},
			DoUpdates: clause.AssignmentColumns([]string{"address", "max_load", "cores", "online", "updated_at"}),
		}).Create(host).Error
		if err != nil {
			return err
		}
		return tx.First(host, "url = ?", host.URL).Error
	})
	return core.Unavailable("upsert host", err)
}

// DeleteHost removes a host and its services. Jobs active on the host move to
// RESTART. Returns the reclaimed jobs.
func (s *GormStorage) DeleteHost(ctx context.Context, url string) ([]core.ReclaimedJob, error) {
	var reclaimed []core.ReclaimedJob
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var host core.Host
		if err := tx.First(&host, "url = ?", url).Error; err != nil {
			return notFound(err, core.ErrHostNotFound, url)
		}

		jobs, err := reclaimJobs(tx, url, "")
		if err != nil {
			return err
		}
		reclaimed = jobs

		if err := tx.Where("host_url = ?", url).Delete(&core.Service{}).Error; err != nil {
			return err
		}
		return tx.Where("url = ?", url).Delete(&core.Host{}).Error
	})
	if err != nil {
		return nil, core.Unavailable("delete host", err)
	}
	return reclaimed, nil
}

// SetHostMaintenance sets the maintenance flag of a host and all of its services.
func (s *GormStorage) SetHostMaintenance(ctx context.Context, url string, maintenance bool) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var host core.Host
		if err := tx.First(&host, "url = ?", url).Error; err != nil {
			return notFound(err, core.ErrHostNotFound, url)
		}
		if err := tx.Model(&core.Host{}).Where("url = ?", url).Update("maintenance", maintenance).Error; err != nil {
			return err
		}
		return tx.Model(&core.Service{}).Where("host_url = ?", url).Update("maintenance", maintenance).Error
	})
	return core.Unavailable("set host maintenance", err)
}

// SetHostOnline sets the online flag of a host. A host going offline loses its
// active jobs to RESTART. Returns the reclaimed jobs.
func (s *GormStorage) SetHostOnline(ctx context.Context, url string, online bool) ([]core.ReclaimedJob, error) {
	var reclaimed []core.ReclaimedJob
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var host core.Host
		if err := tx.First(&host, "url = ?", url).Error; err != nil {
			return notFound(err, core.ErrHostNotFound, url)
		}
		if err := tx.Model(&core.Host{}).Where("url = ?", url).Update("online", online).Error; err != nil {
			return err
		}
		if online {
			return nil
		}
		jobs, err := reclaimJobs(tx, url, "")
		reclaimed = jobs
		return err
	})
	if err != nil {
		return nil, core.Unavailable("set host online", err)
	}
	return reclaimed, nil
}

// GetHost retrieves a host by URL.
func (s *GormStorage) GetHost(ctx context.Context, url string) (*core.Host, error) {
	var host core.Host
	err := s.db.WithContext(ctx).First(&host, "url = ?", url).Error
	if err != nil {
		return nil, core.Unavailable("get host", notFound(err, core.ErrHostNotFound, url))
	}
	return &host, nil
}

// GetHosts returns all hosts ordered by URL.
func (s *GormStorage) GetHosts(ctx context.Context) ([]*core.Host, error) {
	var hosts []*core.Host
	err := s.db.WithContext(ctx).Order("url ASC").Find(&hosts).Error
	return hosts, core.Unavailable("get hosts", err)
}

// UpsertService registers a service on an existing host. Re-registering keeps
// the recorded health state.
func (s *GormStorage) UpsertService(ctx context.Context, svc *core.Service) error {
	if svc.State == "" {
		svc.State = core.HealthNormal
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var host core.Host
		if err := tx.First(&host, "url = ?", svc.HostURL).Error; err != nil {
			return notFound(err, core.ErrHostNotFound, svc.HostURL)
		}
		svc.Maintenance = host.Maintenance
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "host_url"}, {Name: "job_type"}},
			DoUpdates: clause.AssignmentColumns([]string{"path", "online", "updated_at"}),
		}).Create(svc).Error
		if err != nil {
			return err
		}
		return tx.First(svc, "host_url = ? AND job_type = ?", svc.HostURL, svc.JobType).Error
	})
	return core.Unavailable("upsert service", err)
}

// DeleteService removes a service. Jobs of that type active on the host move
// to RESTART. Returns the reclaimed jobs.
func (s *GormStorage) DeleteService(ctx context.Context, hostURL, jobType string) ([]core.ReclaimedJob, error) {
	var reclaimed []core.ReclaimedJob
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var svc core.Service
		err := tx.First(&svc, "host_url = ? AND job_type = ?", hostURL, jobType).Error
		if err != nil {
			return notFound(err, core.ErrServiceNotFound, hostURL+" "+jobType)
		}

		jobs, err := reclaimJobs(tx, hostURL, jobType)
		if err != nil {
			return err
		}
		reclaimed = jobs

		return tx.Where("host_url = ? AND job_type = ?", hostURL, jobType).Delete(&core.Service{}).Error
	})
	if err != nil {
		return nil, core.Unavailable("delete service", err)
	}
	return reclaimed, nil
}

// GetService retrieves a service by host and job type.
func (s *GormStorage) GetService(ctx context.Context, hostURL, jobType string) (*core.Service, error) {
	var svc core.Service
	err := s.db.WithContext(ctx).First(&svc, "host_url = ? AND job_type = ?", hostURL, jobType).Error
	if err != nil {
		return nil, core.Unavailable("get service", notFound(err, core.ErrServiceNotFound, hostURL+" "+jobType))
	}
	return &svc, nil
}

// GetServices returns all services, optionally limited to one job type.
func (s *GormStorage) GetServices(ctx context.Context, jobType string) ([]*core.Service, error) {
	var services []*core.Service
	q := s.db.WithContext(ctx).Order("job_type ASC, host_url ASC")
	if jobType != "" {
		q = q.Where("job_type = ?", jobType)
	}
	err := q.Find(&services).Error
	return services, core.Unavailable("get services", err)
}

// SaveServiceHealth persists the health fields of a service.
func (s *GormStorage) SaveServiceHealth(ctx context.Context, svc *core.Service) error {
	result := s.db.WithContext(ctx).
		Model(&core.Service{}).
		Where("host_url = ? AND job_type = ?", svc.HostURL, svc.JobType).
		Updates(map[string]any{
			"state":            svc.State,
			"warning_trigger":  svc.WarningTrigger,
			"error_trigger":    svc.ErrorTrigger,
			"failure_count":    svc.FailureCount,
			"state_changed_at": svc.StateChangedAt,
		})
	if result.Error != nil {
		return core.Unavailable("save service health", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s %s", core.ErrServiceNotFound, svc.HostURL, svc.JobType)
	}
	return nil
}

type loadRow struct {
	ProcessingHost string
	JobType        string
	Total          float64
}

// ServicesByLoad returns the services of a job type that can take work, least
// loaded host first. Services that are offline, in maintenance or in ERROR,
// and services on unavailable hosts are excluded.
func (s *GormStorage) ServicesByLoad(ctx context.Context, jobType string) ([]core.ServiceLoad, error) {
	db := s.db.WithContext(ctx)

	var services []*core.Service
	err := db.Model(&core.Service{}).
		Select("services.*").
		Joins("JOIN hosts ON hosts.url = services.host_url").
		Where("services.job_type = ?", jobType).
		Where("services.online = ? AND services.maintenance = ? AND services.state <> ?", true, false, core.HealthError).
		Where("hosts.online = ? AND hosts.maintenance = ?", true, false).
		Find(&services).Error
	if err != nil {
		return nil, core.Unavailable("services by load", err)
	}
	if len(services) == 0 {
		return nil, nil
	}

	urls := make([]string, 0, len(services))
	for _, svc := range services {
		urls = append(urls, svc.HostURL)
	}

	var hosts []*core.Host
	if err := db.Where("url IN ?", urls).Find(&hosts).Error; err != nil {
		return nil, core.Unavailable("services by load", err)
	}
	capacity := make(map[string]float64, len(hosts))
	for _, h := range hosts {
		capacity[h.URL] = h.MaxLoad
	}

	var rows []loadRow
	err = db.Model(&core.Job{}).
		Select("processing_host, job_type, COALESCE(SUM(load), 0) AS total").
		Where("status IN ? AND processing_host IN ?", core.ActiveStatuses, urls).
		Group("processing_host, job_type").
		Scan(&rows).Error
	if err != nil {
		return nil, core.Unavailable("services by load", err)
	}

	hostLoad := make(map[string]float64)
	serviceLoad := make(map[string]float64)
	for _, r := range rows {
		hostLoad[r.ProcessingHost] += r.Total
		serviceLoad[r.ProcessingHost+"\x00"+r.JobType] += r.Total
	}

	result := make([]core.ServiceLoad, 0, len(services))
	for _, svc := range services {
		result = append(result, core.ServiceLoad{
			Service:     svc,
			HostLoad:    hostLoad[svc.HostURL],
			ServiceLoad: serviceLoad[svc.HostURL+"\x00"+svc.JobType],
			HostMaxLoad: capacity[svc.HostURL],
		})
	}

	sort.SliceStable(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if a.HostLoad != b.HostLoad {
			return a.HostLoad < b.HostLoad
		}
		if a.ServiceLoad != b.ServiceLoad {
			return a.ServiceLoad < b.ServiceLoad
		}
		return a.HostURL < b.HostURL
	})
	return result, nil
}

// reclaimJobs moves active jobs on a host (optionally of one type) to RESTART
// and clears their assignment. Each row is written under its version guard;
// rows changed concurrently are read again until none is left active.
func reclaimJobs(tx *gorm.DB, hostURL, jobType string) ([]core.ReclaimedJob, error) {
	var reclaimed []core.ReclaimedJob
	for {
		q := tx.Where("processing_host = ?", hostURL).
			Where("status IN ?", core.ActiveStatuses)
		if jobType != "" {
			q = q.Where("job_type = ?", jobType)
		}
		var active []*core.Job
		if err := q.Order("id ASC").Find(&active).Error; err != nil {
			return nil, err
		}
		if len(active) == 0 {
			return reclaimed, nil
		}

		for _, job := range active {
			result := tx.Model(&core.Job{}).
				Where("id = ? AND version = ?", job.ID, job.Version).
				Updates(map[string]any{
					"status":          core.StatusRestart,
					"processing_host": "",
					"version":         gorm.Expr("version + 1"),
				})
			if result.Error != nil {
				return nil, result.Error
			}
			if result.RowsAffected == 0 {
				continue
			}
			from := job.Status
			job.Status = core.StatusRestart
			job.ProcessingHost = ""
			job.Version++
			reclaimed = append(reclaimed, core.ReclaimedJob{Job: job, From: from})
		}
	}
}
