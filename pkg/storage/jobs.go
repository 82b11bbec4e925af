package storage

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/jdziat/job-registry/pkg/core"
)

// CreateJob inserts a job. The job gets version 1, its signature and a root:
// itself when it has no parent, the parent's root otherwise.
func (s *GormStorage) CreateJob(ctx context.Context, job *core.Job) error {
	if job.Status == "" {
		job.Status = core.StatusInstantiated
	}
	if job.DateCreated.IsZero() {
		job.DateCreated = time.Now().UTC()
	}
	job.ID = 0
	job.Version = 1
	job.Signature = core.Signature(job.JobType, job.Operation)
	job.RootJobID = nil

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if job.ParentJobID != nil {
			var parent core.Job
			if err := tx.Select("id", "root_job_id").First(&parent, "id = ?", *job.ParentJobID).Error; err != nil {
				return notFound(err, core.ErrJobNotFound, *job.ParentJobID)
			}
			root := parent.ID
			if parent.RootJobID != nil {
				root = *parent.RootJobID
			}
			job.RootJobID = &root
		}
		if job.BlockingJobID != nil {
			var n int64
			if err := tx.Model(&core.Job{}).Where("id = ?", *job.BlockingJobID).Count(&n).Error; err != nil {
				return err
			}
			if n == 0 {
				return fmt.Errorf("%w: blocking job %d", core.ErrJobNotFound, *job.BlockingJobID)
			}
		}

		if err := tx.Create(job).Error; err != nil {
			return err
		}
		if job.RootJobID != nil {
			return nil
		}

		root := job.ID
		job.RootJobID = &root
		return tx.Model(&core.Job{}).Where("id = ?", job.ID).Update("root_job_id", root).Error
	})
	if err != nil {
		job.ID = 0
		job.RootJobID = nil
		return core.Unavailable("create job", err)
	}
	return nil
}

// UpdateJob writes job under the optimistic version guard. The stored row is
// re-read inside the transaction; a different version, or a concurrent writer
// winning the conditional update, yields core.ErrConflict. On success job
// carries the new version and the fields derived by check.
func (s *GormStorage) UpdateJob(ctx context.Context, job *core.Job, check core.JobCheck) error {
	next := job.Clone()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var stored core.Job
		if err := tx.First(&stored, "id = ?", job.ID).Error; err != nil {
			return notFound(err, core.ErrJobNotFound, job.ID)
		}
		if stored.Version != job.Version {
			return fmt.Errorf("%w: job %d is at version %d, update based on %d",
				core.ErrConflict, job.ID, stored.Version, job.Version)
		}
		if check != nil {
			if err := check(&stored, next); err != nil {
				return err
			}
		}

		result := tx.Model(&core.Job{}).
			Where("id = ? AND version = ?", stored.ID, stored.Version).
			Updates(jobColumns(next))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: job %d was modified concurrently", core.ErrConflict, job.ID)
		}
		next.Version = stored.Version + 1
		return nil
	})
	if err != nil {
		return core.Unavailable("update job", err)
	}

	*job = *next
	return nil
}

// jobColumns lists the mutable columns of a job. Identity, hierarchy and
// signature are never rewritten by an update.
func jobColumns(j *core.Job) map[string]any {
	return map[string]any{
		"arguments":       j.Arguments,
		"payload":         j.Payload,
		"status":          j.Status,
		"creator_name":    j.CreatorName,
		"organization":    j.Organization,
		"created_host":    j.CreatedHost,
		"date_started":    j.DateStarted,
		"date_completed":  j.DateCompleted,
		"queue_time":      j.QueueTime,
		"run_time":        j.RunTime,
		"dispatchable":    j.Dispatchable,
		"load":            j.Load,
		"blocking_job_id": j.BlockingJobID,
		"blocked_job_ids": j.BlockedJobIDs,
		"processing_host": j.ProcessingHost,
		"version":         gorm.Expr("version + 1"),
	}
}

// GetJob retrieves a job by ID.
func (s *GormStorage) GetJob(ctx context.Context, id int64) (*core.Job, error) {
	var job core.Job
	err := s.db.WithContext(ctx).First(&job, "id = ?", id).Error
	if err != nil {
		return nil, core.Unavailable("get job", notFound(err, core.ErrJobNotFound, id))
	}
	return &job, nil
}

// GetJobs returns the jobs matching filter ordered by id.
func (s *GormStorage) GetJobs(ctx context.Context, filter core.JobFilter) ([]*core.Job, error) {
	var jobs []*core.Job
	err := applyFilter(s.db.WithContext(ctx), filter).Order("id ASC").Find(&jobs).Error
	return jobs, core.Unavailable("get jobs", err)
}

// CountJobs counts the jobs matching filter.
func (s *GormStorage) CountJobs(ctx context.Context, filter core.JobFilter) (int64, error) {
	var n int64
	err := applyFilter(s.db.WithContext(ctx).Model(&core.Job{}), filter).Count(&n).Error
	return n, core.Unavailable("count jobs", err)
}

// CountJobsByType counts jobs in the given statuses per job type and status,
// ordered by job type then status.
func (s *GormStorage) CountJobsByType(ctx context.Context, statuses []core.JobStatus) ([]core.JobCount, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	var counts []core.JobCount
	err := s.db.WithContext(ctx).Model(&core.Job{}).
		Select("job_type, status, COUNT(*) AS count").
		Where("status IN ?", statuses).
		Group("job_type, status").
		Order("job_type ASC, status ASC").
		Scan(&counts).Error
	return counts, core.Unavailable("count jobs by type", err)
}

func applyFilter(q *gorm.DB, f core.JobFilter) *gorm.DB {
	if f.JobType != "" {
		q = q.Where("job_type = ?", f.JobType)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Host != "" {
		q = q.Where("processing_host = ?", f.Host)
	}
	if f.Operation != "" {
		q = q.Where("operation = ?", f.Operation)
	}
	return q
}

const descendantsQuery = `
WITH RECURSIVE descendants(id) AS (
	SELECT id FROM jobs WHERE parent_job_id = ?
	UNION ALL
	SELECT j.id FROM jobs j JOIN descendants d ON j.parent_job_id = d.id
)
SELECT * FROM jobs WHERE id IN (SELECT id FROM descendants) ORDER BY id ASC`

// GetChildJobs returns every transitive descendant of the job, excluding the
// job itself, ordered by id.
func (s *GormStorage) GetChildJobs(ctx context.Context, id int64) ([]*core.Job, error) {
	db := s.db.WithContext(ctx)

	var n int64
	if err := db.Model(&core.Job{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return nil, core.Unavailable("get child jobs", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: %d", core.ErrJobNotFound, id)
	}

	var jobs []*core.Job
	err := db.Raw(descendantsQuery, id).Scan(&jobs).Error
	return jobs, core.Unavailable("get child jobs", err)
}

// GetDispatchableJobs returns dispatchable jobs in the given statuses, oldest first.
func (s *GormStorage) GetDispatchableJobs(ctx context.Context, statuses []core.JobStatus) ([]*core.Job, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	var jobs []*core.Job
	err := s.db.WithContext(ctx).
		Where("dispatchable = ?", true).
		Where("status IN ?", statuses).
		Order("date_created ASC, id ASC").
		Find(&jobs).Error
	return jobs, core.Unavailable("get dispatchable jobs", err)
}

// removeLeavesQuery deletes childless jobs that are not retained. A job is
// retained when it is not terminal, has not completed by the cutoff, or has a
// retained ancestor.
const removeLeavesQuery = `
WITH RECURSIVE retained(id) AS (
	SELECT id FROM jobs
	WHERE status NOT IN ? OR date_completed IS NULL OR date_completed > ?
	UNION
	SELECT c.id FROM jobs c JOIN retained r ON c.parent_job_id = r.id
)
DELETE FROM jobs
WHERE id NOT IN (SELECT id FROM retained)
AND NOT EXISTS (SELECT 1 FROM jobs c WHERE c.parent_job_id = jobs.id)`

// RemoveFinishedJobs deletes terminal jobs completed at or before
// completedBefore that have no children and whose ancestors are all terminal
// and old enough. Passes repeat until nothing more can be removed, so a
// finished tree disappears leaves first within one call. A job with a
// remaining child is never removed.
func (s *GormStorage) RemoveFinishedJobs(ctx context.Context, completedBefore time.Time) (int64, error) {
	cutoff := completedBefore.UTC()
	var total int64

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for {
			result := tx.Exec(removeLeavesQuery, core.TerminalStatuses, cutoff)
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				return nil
			}
			total += result.RowsAffected
		}
	})
	if err != nil {
		return 0, core.Unavailable("remove finished jobs", err)
	}
	return total, nil
}
