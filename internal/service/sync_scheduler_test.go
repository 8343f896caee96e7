package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lms-enrollment-sync/internal/models"
	"github.com/noah-isme/lms-enrollment-sync/pkg/config"
	appErrors "github.com/noah-isme/lms-enrollment-sync/pkg/errors"
	"github.com/noah-isme/lms-enrollment-sync/pkg/jobs"
)

type syncerStub struct {
	mu    sync.Mutex
	calls []SyncOptions
	errs  []error
}

func (s *syncerStub) Synchronize(ctx context.Context, entity models.EntityType, opts SyncOptions) (*models.SyncResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, opts)
	var err error
	if len(s.errs) > 0 {
		err, s.errs = s.errs[0], s.errs[1:]
	}
	return &models.SyncResult{EntityType: entity, FullSync: opts.FullSync}, err
}

func (s *syncerStub) DefaultPageSize() int { return 25 }

func (s *syncerStub) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type offlineStub bool

func (o offlineStub) IsOffline(context.Context) bool { return bool(o) }

func waitForJob(t *testing.T, scheduler *SyncScheduler, id string) jobs.Status {
	t.Helper()
	var status jobs.Status
	require.Eventually(t, func() bool {
		var err error
		status, err = scheduler.Job(id)
		return err == nil && status.Done()
	}, 2*time.Second, 5*time.Millisecond)
	return status
}

func TestSchedulerRunsSubmittedSync(t *testing.T) {
	syncer := &syncerStub{}
	scheduler := NewSyncScheduler(syncer, offlineStub(false), config.SyncConfig{Workers: 1}, nil)
	scheduler.Start(context.Background())
	defer scheduler.Stop()

	queued, err := scheduler.Submit(models.EntityCourses, SyncOptions{FullSync: true})
	require.NoError(t, err)
	assert.NotEmpty(t, queued.ID)

	status := waitForJob(t, scheduler, queued.ID)
	assert.Equal(t, jobs.StateSucceeded, status.State)
	result, ok := status.Result.(*models.SyncResult)
	require.True(t, ok)
	assert.True(t, result.FullSync)
	assert.Equal(t, 25, syncer.calls[0].PageSize)
}

func TestSchedulerAppliesOfflineFlagAndDoesNotRetry(t *testing.T) {
	syncer := &syncerStub{errs: []error{appErrors.Clone(appErrors.ErrTransportUnavailable, "offline")}}
	scheduler := NewSyncScheduler(syncer, offlineStub(true), config.SyncConfig{Retries: 3}, nil)
	scheduler.Start(context.Background())
	defer scheduler.Stop()

	queued, err := scheduler.Submit(models.EntityStudents, SyncOptions{})
	require.NoError(t, err)
	status := waitForJob(t, scheduler, queued.ID)
	assert.Equal(t, jobs.StateFailed, status.State)
	assert.Equal(t, 1, syncer.count())
	assert.True(t, syncer.calls[0].Offline)
}

func TestSchedulerNonTransportErrorIsPermanent(t *testing.T) {
	syncer := &syncerStub{errs: []error{appErrors.Clone(appErrors.ErrValidation, "bad page size")}}
	scheduler := NewSyncScheduler(syncer, nil, config.SyncConfig{Retries: 3}, nil)
	scheduler.Start(context.Background())
	defer scheduler.Stop()

	queued, err := scheduler.Submit(models.EntityStudents, SyncOptions{})
	require.NoError(t, err)
	waitForJob(t, scheduler, queued.ID)
	assert.Equal(t, 1, syncer.count())
}

func TestSchedulerUnknownJob(t *testing.T) {
	scheduler := NewSyncScheduler(&syncerStub{}, nil, config.SyncConfig{}, nil)
	_, err := scheduler.Job("missing")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestSchedulerSubmitBeforeStartFails(t *testing.T) {
	scheduler := NewSyncScheduler(&syncerStub{}, nil, config.SyncConfig{}, nil)
	_, err := scheduler.Submit(models.EntityCourses, SyncOptions{})
	assert.Error(t, err)
}

func TestSchedulerIntervalQueuesIncrementalSyncs(t *testing.T) {
	syncer := &syncerStub{}
	ctx, cancel := context.WithCancel(context.Background())
	scheduler := NewSyncScheduler(syncer, nil, config.SyncConfig{Interval: 10 * time.Millisecond, Workers: 2}, nil)
	scheduler.Start(ctx)

	require.Eventually(t, func() bool { return syncer.count() >= 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	scheduler.Stop()

	syncer.mu.Lock()
	defer syncer.mu.Unlock()
	for _, opts := range syncer.calls {
		assert.False(t, opts.FullSync)
	}
}
