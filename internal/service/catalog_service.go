package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/lms-enrollment-sync/internal/degraded"
	"github.com/noah-isme/lms-enrollment-sync/internal/models"
	"github.com/noah-isme/lms-enrollment-sync/pkg/config"
)

// Catalog is a page of LMS records tagged with where it came from.
type Catalog[T any] struct {
	Items     []T    `json:"items"`
	Page      int    `json:"page"`
	PageSize  int    `json:"page_size"`
	Pages     int    `json:"pages"`
	Simulated bool   `json:"simulated"`
	Reason    string `json:"reason,omitempty"`
}

// CatalogService serves read-only LMS listings through the degraded-mode policy.
type CatalogService struct {
	source remoteRecordSource
	policy *degraded.Policy
	cache  *CacheService
	cfg    config.SyncConfig
	logger *zap.Logger
}

// NewCatalogService constructs a CatalogService.
func NewCatalogService(source remoteRecordSource, policy *degraded.Policy, cache *CacheService, cfg config.SyncConfig, logger *zap.Logger) *CatalogService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogService{source: source, policy: policy, cache: cache, cfg: cfg, logger: logger}
}

// ListStudents returns one page of LMS users, simulated when the LMS cannot answer.
func (s *CatalogService) ListStudents(ctx context.Context, page, pageSize int, offline bool) (*Catalog[models.RemoteStudent], error) {
	return catalogPage(ctx, s, models.EntityStudents, page, pageSize, offline, s.source.ListStudents, degraded.SimulatedStudents)
}

// ListCourses returns one page of LMS courses, simulated when the LMS cannot answer.
func (s *CatalogService) ListCourses(ctx context.Context, page, pageSize int, offline bool) (*Catalog[models.RemoteCourse], error) {
	return catalogPage(ctx, s, models.EntityCourses, page, pageSize, offline, s.source.ListCourses, degraded.SimulatedCourses)
}

// InvalidateCache drops every cached listing, typically after a sync.
func (s *CatalogService) InvalidateCache(ctx context.Context) {
	if err := s.cache.Invalidate(ctx, cacheKeyCatalogAll); err != nil {
		s.logger.Debug("failed to invalidate catalog cache", zap.Error(err))
	}
}

func catalogPage[T any](
	ctx context.Context,
	s *CatalogService,
	entity models.EntityType,
	page, pageSize int,
	offline bool,
	fetch func(context.Context, int, int) (*models.RemotePage[T], error),
	simulated func(int, int) models.RemotePage[T],
) (*Catalog[T], error) {
	page, pageSize = s.normalize(page, pageSize)
	key := fmt.Sprintf(cacheKeyCatalogFmt, entity, page, pageSize)

	if !offline {
		var cached Catalog[T]
		if hit, _ := s.cache.Get(ctx, key, &cached); hit {
			return &cached, nil
		}
	}

	live := func(ctx context.Context) (models.RemotePage[T], error) {
		if s.cfg.RemoteTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.cfg.RemoteTimeout)
			defer cancel()
		}
		result, err := fetch(ctx, page, pageSize)
		if err != nil {
			return models.RemotePage[T]{}, err
		}
		return *result, nil
	}
	resolved, err := degraded.Resolve(ctx, s.policy, "list_"+string(entity), offline, live, func() models.RemotePage[T] {
		return simulated(page, pageSize)
	})
	if err != nil {
		return nil, err
	}

	items := resolved.Value.Data
	if items == nil {
		items = []T{}
	}
	catalog := &Catalog[T]{
		Items:     items,
		Page:      page,
		PageSize:  pageSize,
		Pages:     resolved.Value.Pages,
		Simulated: resolved.Simulated,
		Reason:    resolved.Reason,
	}
	if !catalog.Simulated {
		_ = s.cache.Set(ctx, key, catalog, 0)
	}
	return catalog, nil
}

func (s *CatalogService) normalize(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = s.cfg.DefaultPageSize
	}
	if s.cfg.MaxPageSize > 0 && pageSize > s.cfg.MaxPageSize {
		pageSize = s.cfg.MaxPageSize
	}
	if pageSize <= 0 {
		pageSize = 50
	}
	return page, pageSize
}
