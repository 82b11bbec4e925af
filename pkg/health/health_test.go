package health

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/job-registry/pkg/core"
)

var now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

var (
	sigA = core.Signature("composer", "encode")
	sigB = core.Signature("composer", "trim")
	sigC = core.Signature("composer", "concat")
)

func TestEvaluate_EscalationSequence(t *testing.T) {
	svc := &core.Service{State: core.HealthNormal}

	assert.True(t, Evaluate(svc, Failure, sigA, 0, now))
	assert.Equal(t, core.HealthWarning, svc.State)
	assert.Equal(t, sigA, svc.WarningTrigger)

	assert.False(t, Evaluate(svc, Failure, sigA, 0, now))
	assert.Equal(t, core.HealthWarning, svc.State)
	assert.Equal(t, sigA, svc.WarningTrigger)

	assert.True(t, Evaluate(svc, Failure, sigB, 0, now))
	assert.Equal(t, core.HealthError, svc.State)
	assert.Equal(t, sigB, svc.ErrorTrigger)
	assert.Equal(t, sigA, svc.WarningTrigger)

	assert.True(t, Evaluate(svc, Success, sigC, 0, now))
	assert.Equal(t, core.HealthNormal, svc.State)
	assert.Zero(t, svc.WarningTrigger)
	assert.Zero(t, svc.ErrorTrigger)
	assert.Zero(t, svc.FailureCount)
}

func TestEvaluate_ThresholdDelaysEscalation(t *testing.T) {
	svc := &core.Service{State: core.HealthNormal}

	Evaluate(svc, Failure, sigA, 2, now)
	Evaluate(svc, Failure, sigB, 2, now)
	assert.Equal(t, core.HealthWarning, svc.State)
	assert.Equal(t, 1, svc.FailureCount)

	Evaluate(svc, Failure, sigC, 2, now)
	assert.Equal(t, core.HealthWarning, svc.State)

	Evaluate(svc, Failure, sigB, 2, now)
	assert.Equal(t, core.HealthError, svc.State)
	assert.Equal(t, sigB, svc.ErrorTrigger)
}

func TestEvaluate_ErrorIsSticky(t *testing.T) {
	svc := &core.Service{State: core.HealthError, ErrorTrigger: sigB, WarningTrigger: sigA}

	assert.False(t, Evaluate(svc, Failure, sigC, 0, now))
	assert.Equal(t, core.HealthError, svc.State)
	assert.Equal(t, sigB, svc.ErrorTrigger)
}

func TestEvaluate_SuccessOnHealthyServiceIsNoop(t *testing.T) {
	svc := &core.Service{State: core.HealthNormal}
	assert.False(t, Evaluate(svc, Success, sigA, 0, now))
	assert.Nil(t, svc.StateChangedAt)
}

func TestOutcomeOf(t *testing.T) {
	o, ok := OutcomeOf(core.StatusFinished)
	assert.True(t, ok)
	assert.Equal(t, Success, o)

	o, ok = OutcomeOf(core.StatusFailed)
	assert.True(t, ok)
	assert.Equal(t, Failure, o)

	for _, st := range []core.JobStatus{core.StatusCanceled, core.StatusRunning, core.StatusRestart} {
		_, ok = OutcomeOf(st)
		assert.False(t, ok, st)
	}
}

// memServices is an in-memory core.ServiceStore.
type memServices struct {
	mu       sync.Mutex
	services map[string]core.Service
	saveErr  error
}

func newMemServices(svcs ...core.Service) *memServices {
	m := &memServices{services: make(map[string]core.Service)}
	for _, s := range svcs {
		m.services[s.HostURL+"|"+s.JobType] = s
	}
	return m
}

func (m *memServices) UpsertService(_ context.Context, svc *core.Service) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.services[svc.HostURL+"|"+svc.JobType] = *svc
	return nil
}

func (m *memServices) DeleteService(_ context.Context, hostURL, jobType string) ([]core.ReclaimedJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.services, hostURL+"|"+jobType)
	return nil, nil
}

func (m *memServices) GetService(_ context.Context, hostURL, jobType string) (*core.Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	svc, ok := m.services[hostURL+"|"+jobType]
	if !ok {
		return nil, fmt.Errorf("%w: %s %s", core.ErrServiceNotFound, hostURL, jobType)
	}
	return &svc, nil
}

func (m *memServices) GetServices(context.Context, string) ([]*core.Service, error) {
	return nil, nil
}

func (m *memServices) SaveServiceHealth(_ context.Context, svc *core.Service) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.services[svc.HostURL+"|"+svc.JobType] = *svc
	return nil
}

func (m *memServices) ServicesByLoad(context.Context, string) ([]core.ServiceLoad, error) {
	return nil, nil
}

func TestMonitor_RecordPersists(t *testing.T) {
	store := newMemServices(core.Service{HostURL: "http://worker-1", JobType: "composer", State: core.HealthNormal})

	var changes []core.HealthState
	m := NewMonitor(store, OnStateChange(func(svc *core.Service, from core.HealthState, trigger int64) {
		changes = append(changes, svc.State)
	}))
	ctx := context.Background()

	require.NoError(t, m.Record(ctx, "http://worker-1", "composer", Failure, sigA))
	require.NoError(t, m.Record(ctx, "http://worker-1", "composer", Failure, sigA))
	require.NoError(t, m.Record(ctx, "http://worker-1", "composer", Failure, sigB))

	svc, err := store.GetService(ctx, "http://worker-1", "composer")
	require.NoError(t, err)
	assert.Equal(t, core.HealthError, svc.State)
	assert.Equal(t, sigB, svc.ErrorTrigger)
	assert.Equal(t, []core.HealthState{core.HealthWarning, core.HealthError}, changes)

	require.NoError(t, m.Reset(ctx, "http://worker-1", "composer"))
	svc, err = store.GetService(ctx, "http://worker-1", "composer")
	require.NoError(t, err)
	assert.Equal(t, core.HealthNormal, svc.State)
	assert.Equal(t, core.HealthNormal, changes[len(changes)-1])
}

func TestMonitor_Threshold(t *testing.T) {
	store := newMemServices(core.Service{HostURL: "http://worker-1", JobType: "composer", State: core.HealthNormal})
	m := NewMonitor(store, WithMaxAttemptsBeforeErrorState(1))
	ctx := context.Background()
	assert.Equal(t, 1, m.Threshold())

	require.NoError(t, m.Record(ctx, "http://worker-1", "composer", Failure, sigA))
	require.NoError(t, m.Record(ctx, "http://worker-1", "composer", Failure, sigB))
	svc, _ := store.GetService(ctx, "http://worker-1", "composer")
	assert.Equal(t, core.HealthWarning, svc.State)

	require.NoError(t, m.Record(ctx, "http://worker-1", "composer", Failure, sigC))
	svc, _ = store.GetService(ctx, "http://worker-1", "composer")
	assert.Equal(t, core.HealthError, svc.State)
}

func TestMonitor_UnknownServiceIgnored(t *testing.T) {
	m := NewMonitor(newMemServices())
	assert.NoError(t, m.Record(context.Background(), "http://gone", "composer", Failure, sigA))
}

func TestMonitor_ResetUnknownService(t *testing.T) {
	m := NewMonitor(newMemServices())
	assert.ErrorIs(t, m.Reset(context.Background(), "http://gone", "composer"), core.ErrServiceNotFound)
}

func TestMonitor_SaveErrorSurfaces(t *testing.T) {
	store := newMemServices(core.Service{HostURL: "http://worker-1", JobType: "composer", State: core.HealthNormal})
	store.saveErr = core.Unavailable("save service health", errors.New("disk full"))
	m := NewMonitor(store)

	err := m.Record(context.Background(), "http://worker-1", "composer", Failure, sigA)
	assert.ErrorIs(t, err, core.ErrRegistryUnavailable)
}
