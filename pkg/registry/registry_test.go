package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jdziat/job-registry/pkg/core"
	"github.com/jdziat/job-registry/pkg/storage"
)

func newTestRegistry(t *testing.T, opts ...Option) *Registry {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	s := storage.NewGormStorage(db)
	require.NoError(t, s.Migrate(context.Background()))
	return New(s, opts...)
}

func registerWorker(t *testing.T, r *Registry, url string, maxLoad float64, jobTypes ...string) {
	t.Helper()
	ctx := context.Background()
	_, err := r.RegisterHost(ctx, HostRegistration{URL: url, Address: "10.0.0.1", MaxLoad: maxLoad, Cores: 4})
	require.NoError(t, err)
	for _, jt := range jobTypes {
		_, err := r.RegisterService(ctx, jt, url, "/"+jt)
		require.NoError(t, err)
	}
}

// start moves a job to RUNNING on host through the guarded update path.
func start(t *testing.T, r *Registry, job *core.Job, host string) {
	t.Helper()
	job.Status = core.StatusRunning
	job.ProcessingHost = host
	require.NoError(t, r.UpdateJob(context.Background(), job))
}

func TestNew_Defaults(t *testing.T) {
	r := newTestRegistry(t)
	assert.NotNil(t, r.Storage())
	assert.NotNil(t, r.Monitor())
	assert.Equal(t, 0, r.Monitor().Threshold())
	assert.Equal(t, DefaultUpdateRetries, r.opts.UpdateRetries)
}

func TestNew_Options(t *testing.T) {
	r := newTestRegistry(t, MaxAttemptsBeforeErrorState(3), UpdateRetries(9))
	assert.Equal(t, 3, r.Monitor().Threshold())
	assert.Equal(t, 9, r.opts.UpdateRetries)
}

func TestRegisterHost_Validation(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.RegisterHost(context.Background(), HostRegistration{URL: "not a url"})
	assert.ErrorIs(t, err, core.ErrInvalidHostURL)
}

func TestRegisterHost_KeepsMaintenance(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()
	registerWorker(t, r, "http://worker-1", 4, "composer")

	require.NoError(t, r.SetMaintenance(ctx, "http://worker-1", true))

	host, err := r.RegisterHost(ctx, HostRegistration{URL: "http://worker-1", MaxLoad: 16})
	require.NoError(t, err)
	assert.True(t, host.Maintenance)
	assert.True(t, host.Online)
	assert.Equal(t, 16.0, host.MaxLoad)

	candidates, err := r.ServicesByLoad(ctx, "composer")
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestRegisterService_UnknownHost(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.RegisterService(context.Background(), "composer", "http://nowhere", "/composer")
	assert.ErrorIs(t, err, core.ErrHostNotFound)
}

func TestRegisterService_InvalidJobType(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.RegisterService(context.Background(), "9lives", "http://worker-1", "/x")
	assert.ErrorIs(t, err, core.ErrInvalidJobType)
}

func TestUnregisterHost_ReclaimsRunningJobs(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()
	registerWorker(t, r, "http://worker-1", 0, "composer")

	job, err := r.CreateJob(ctx, JobRequest{JobType: "composer", Operation: "encode", Dispatchable: true})
	require.NoError(t, err)
	start(t, r, job, "http://worker-1")

	var seen []core.JobStatus
	r.OnStatusChange(func(_ context.Context, j *core.Job, from core.JobStatus) {
		seen = append(seen, from, j.Status)
	})
	events := r.Events()
	defer r.Unsubscribe(events)

	reclaimed, err := r.UnregisterHost(ctx, "http://worker-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), reclaimed)
	assert.Equal(t, []core.JobStatus{core.StatusRunning, core.StatusRestart}, seen)

	got, err := r.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusRestart, got.Status)
	assert.Empty(t, got.ProcessingHost)

	_, err = r.GetService(ctx, "composer", "http://worker-1")
	assert.ErrorIs(t, err, core.ErrServiceNotFound)

	require.Len(t, events, 2)
	changed, ok := (<-events).(*core.JobStatusChanged)
	require.True(t, ok)
	assert.Equal(t, job.ID, changed.Job.ID)
	assert.Equal(t, core.StatusRunning, changed.From)
	assert.Equal(t, core.StatusRestart, changed.Job.Status)
	unregistered, ok := (<-events).(*core.HostUnregistered)
	require.True(t, ok)
	assert.Equal(t, int64(1), unregistered.Reclaimed)

	_, err = r.UnregisterHost(ctx, "http://worker-1")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestUnregisterService_Reclaims(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()
	registerWorker(t, r, "http://worker-1", 0, "composer", "inspect")

	job, err := r.CreateJob(ctx, JobRequest{JobType: "composer"})
	require.NoError(t, err)
	start(t, r, job, "http://worker-1")

	var restarted []int64
	r.OnStatusChange(func(_ context.Context, j *core.Job, from core.JobStatus) {
		if j.Status == core.StatusRestart {
			restarted = append(restarted, j.ID)
		}
	})

	reclaimed, err := r.UnregisterService(ctx, "composer", "http://worker-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), reclaimed)
	assert.Equal(t, []int64{job.ID}, restarted)

	services, err := r.GetServices(ctx, "")
	require.NoError(t, err)
	require.Len(t, services, 1)
	assert.Equal(t, "inspect", services[0].JobType)
}

func TestSetHostOnline(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()
	registerWorker(t, r, "http://worker-1", 0, "composer")

	job, err := r.CreateJob(ctx, JobRequest{JobType: "composer"})
	require.NoError(t, err)
	start(t, r, job, "http://worker-1")

	var froms []core.JobStatus
	r.OnStatusChange(func(_ context.Context, j *core.Job, from core.JobStatus) {
		froms = append(froms, from)
	})

	reclaimed, err := r.SetHostOnline(ctx, "http://worker-1", false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), reclaimed)
	assert.Equal(t, []core.JobStatus{core.StatusRunning}, froms)
	host, err := r.GetHost(ctx, "http://worker-1")
	require.NoError(t, err)
	assert.False(t, host.Online)

	hosts, err := r.GetHosts(ctx)
	require.NoError(t, err)
	assert.Len(t, hosts, 1)
}

func TestEvents_SubscribeUnsubscribe(t *testing.T) {
	r := newTestRegistry(t)

	ch := r.Events()
	r.Emit(&core.JobsCollected{Removed: 3})
	e := <-ch
	assert.Equal(t, int64(3), e.(*core.JobsCollected).Removed)

	r.Unsubscribe(ch)
	r.Emit(&core.JobsCollected{Removed: 4})
	select {
	case <-ch:
		t.Fatal("unsubscribed channel received an event")
	default:
	}
}

func TestEmit_DropsWhenSubscriberIsFull(t *testing.T) {
	r := newTestRegistry(t)
	ch := r.Events()
	defer r.Unsubscribe(ch)

	for i := 0; i < 150; i++ {
		r.Emit(&core.JobsCollected{Removed: int64(i)})
	}
	assert.Len(t, ch, 100)
}
