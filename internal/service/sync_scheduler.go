package service

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/lms-enrollment-sync/internal/models"
	"github.com/noah-isme/lms-enrollment-sync/pkg/config"
	appErrors "github.com/noah-isme/lms-enrollment-sync/pkg/errors"
	"github.com/noah-isme/lms-enrollment-sync/pkg/jobs"
)

const syncJobType = "lms.sync"

type synchronizer interface {
	Synchronize(ctx context.Context, entity models.EntityType, opts SyncOptions) (*models.SyncResult, error)
	DefaultPageSize() int
}

type offlineChecker interface {
	IsOffline(ctx context.Context) bool
}

type syncJob struct {
	Entity  models.EntityType
	Options SyncOptions
}

// SyncScheduler runs reconciler passes in the background, on demand or on a fixed interval.
type SyncScheduler struct {
	syncer       synchronizer
	connectivity offlineChecker
	queue        *jobs.Queue
	interval     time.Duration
	logger       *zap.Logger
	cancel       context.CancelFunc
	done         chan struct{}
}

// NewSyncScheduler wires the reconciler to an in-memory worker queue.
func NewSyncScheduler(syncer synchronizer, connectivity offlineChecker, cfg config.SyncConfig, logger *zap.Logger) *SyncScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &SyncScheduler{
		syncer:       syncer,
		connectivity: connectivity,
		interval:     cfg.Interval,
		logger:       logger,
	}
	s.queue = jobs.NewQueue("lms-sync", s.handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		MaxRetries: cfg.Retries,
		RetryDelay: 5 * time.Second,
		Logger:     logger,
	})
	return s
}

// Start launches the workers and, when an interval is configured, the periodic incremental sync.
func (s *SyncScheduler) Start(ctx context.Context) {
	s.queue.Start(ctx)
	if s.interval <= 0 {
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(loopCtx)
}

// Stop waits for running jobs to observe cancellation.
func (s *SyncScheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	s.queue.Stop()
}

// Submit queues a sync and returns immediately with the job status.
func (s *SyncScheduler) Submit(entity models.EntityType, opts SyncOptions) (jobs.Status, error) {
	id := uuid.NewString()
	if err := s.queue.Enqueue(jobs.Job{ID: id, Type: syncJobType, Payload: syncJob{Entity: entity, Options: opts}}); err != nil {
		return jobs.Status{}, appErrors.Wrap(err, "SYNC_QUEUE_UNAVAILABLE", http.StatusServiceUnavailable, "sync queue unavailable")
	}
	return s.queue.Lookup(id)
}

// Job returns the status of a previously submitted sync.
func (s *SyncScheduler) Job(id string) (jobs.Status, error) {
	status, err := s.queue.Lookup(id)
	if errors.Is(err, jobs.ErrUnknownJob) {
		return jobs.Status{}, appErrors.Clone(appErrors.ErrNotFound, "sync job not found")
	}
	return status, err
}

func (s *SyncScheduler) loop(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, entity := range []models.EntityType{models.EntityStudents, models.EntityCourses} {
				if _, err := s.Submit(entity, SyncOptions{}); err != nil {
					s.logger.Warn("scheduled sync not queued", zap.String("entity", string(entity)), zap.Error(err))
				}
			}
		}
	}
}

func (s *SyncScheduler) handle(ctx context.Context, job jobs.Job) (interface{}, error) {
	payload, ok := job.Payload.(syncJob)
	if !ok {
		return nil, jobs.Permanent(errors.New("unexpected sync job payload"))
	}
	opts := payload.Options
	if opts.PageSize <= 0 {
		opts.PageSize = s.syncer.DefaultPageSize()
	}
	if s.connectivity != nil && s.connectivity.IsOffline(ctx) {
		opts.Offline = true
	}

	result, err := s.syncer.Synchronize(ctx, payload.Entity, opts)
	switch {
	case err == nil:
		return result, nil
	case errors.Is(err, appErrors.ErrTransportUnavailable) && !opts.Offline:
		return result, err
	default:
		return result, jobs.Permanent(err)
	}
}
