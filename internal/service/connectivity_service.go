package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/lms-enrollment-sync/internal/models"
	"github.com/noah-isme/lms-enrollment-sync/pkg/config"
)

type lmsPinger interface {
	Ping(ctx context.Context) error
}

// ConnectivityService owns the offline flag the reconciler and the orchestrator consult.
type ConnectivityService struct {
	pinger  lmsPinger
	cache   *CacheService
	metrics *MetricsService
	cfg     config.ConnectivityConfig
	logger  *zap.Logger
	now     func() time.Time

	mu   sync.RWMutex
	last *models.ConnectivityStatus
}

// NewConnectivityService constructs a ConnectivityService.
func NewConnectivityService(pinger lmsPinger, cache *CacheService, metrics *MetricsService, cfg config.ConnectivityConfig, logger *zap.Logger) *ConnectivityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = 30 * time.Second
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 3 * time.Second
	}
	return &ConnectivityService{pinger: pinger, cache: cache, metrics: metrics, cfg: cfg, logger: logger, now: time.Now}
}

// Probe pings the LMS once and stores the verdict.
func (s *ConnectivityService) Probe(ctx context.Context) models.ConnectivityStatus {
	if s.cfg.ForceOffline {
		return s.forced()
	}

	probeCtx, cancel := context.WithTimeout(ctx, s.cfg.ProbeTimeout)
	defer cancel()

	start := s.now()
	err := s.pinger.Ping(probeCtx)
	status := models.ConnectivityStatus{
		Offline:   err != nil,
		Latency:   s.now().Sub(start),
		CheckedAt: s.now().UTC(),
	}
	if err != nil {
		status.Reason = err.Error()
	}

	s.mu.Lock()
	previous := s.last
	s.last = &status
	s.mu.Unlock()

	if previous == nil || previous.Offline != status.Offline {
		if status.Offline {
			s.logger.Warn("lms unreachable, switching to degraded mode", zap.String("reason", status.Reason))
		} else {
			s.logger.Info("lms reachable", zap.Duration("latency", status.Latency))
		}
	}
	s.metrics.SetLMSOffline(status.Offline)
	if err := s.cache.Set(ctx, cacheKeyConnectivity, status, s.cfg.ProbeInterval); err != nil {
		s.logger.Debug("failed to cache connectivity status", zap.Error(err))
	}
	return status
}

// Status returns the freshest known verdict, probing when nothing recent is known.
func (s *ConnectivityService) Status(ctx context.Context) models.ConnectivityStatus {
	if s.cfg.ForceOffline {
		return s.forced()
	}

	var cached models.ConnectivityStatus
	if hit, _ := s.cache.Get(ctx, cacheKeyConnectivity, &cached); hit {
		return cached
	}

	s.mu.RLock()
	last := s.last
	s.mu.RUnlock()
	if last != nil && s.now().Sub(last.CheckedAt) < s.cfg.ProbeInterval {
		return *last
	}
	return s.Probe(ctx)
}

// IsOffline reports whether callers should take the simulated path.
func (s *ConnectivityService) IsOffline(ctx context.Context) bool {
	if s == nil {
		return false
	}
	return s.Status(ctx).Offline
}

// Run probes on every interval tick until ctx is cancelled.
func (s *ConnectivityService) Run(ctx context.Context) {
	if s.cfg.ForceOffline {
		s.metrics.SetLMSOffline(true)
		s.logger.Warn("lms forced offline, probe loop disabled")
		return
	}

	ticker := time.NewTicker(s.cfg.ProbeInterval)
	defer ticker.Stop()

	s.Probe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Probe(ctx)
		}
	}
}

func (s *ConnectivityService) forced() models.ConnectivityStatus {
	return models.ConnectivityStatus{
		Offline:   true,
		Forced:    true,
		Reason:    "forced offline by configuration",
		CheckedAt: s.now().UTC(),
	}
}
