// Package app assembles the service graph shared by the HTTP server and the sync CLI.
package app

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/lms-enrollment-sync/internal/degraded"
	"github.com/noah-isme/lms-enrollment-sync/internal/lms"
	"github.com/noah-isme/lms-enrollment-sync/internal/payment"
	"github.com/noah-isme/lms-enrollment-sync/internal/publisher"
	"github.com/noah-isme/lms-enrollment-sync/internal/repository"
	"github.com/noah-isme/lms-enrollment-sync/internal/service"
	"github.com/noah-isme/lms-enrollment-sync/pkg/cache"
	"github.com/noah-isme/lms-enrollment-sync/pkg/config"
	"github.com/noah-isme/lms-enrollment-sync/pkg/database"
	"github.com/noah-isme/lms-enrollment-sync/pkg/export"
	"github.com/noah-isme/lms-enrollment-sync/pkg/logger"
)

type eventSink interface {
	Publish(ctx context.Context, routingKey string, payload interface{}) error
	Close() error
}

// App holds every long-lived dependency.
type App struct {
	Config *config.Config
	Logger *zap.Logger

	DB     *sqlx.DB
	Redis  *redis.Client
	Events eventSink

	Metrics      *service.MetricsService
	Cache        *service.CacheService
	Connectivity *service.ConnectivityService
	Sync         *service.SyncService
	Scheduler    *service.SyncScheduler
	Enrollments  *service.EnrollmentService
	Catalog      *service.CatalogService
	Students     *service.StudentService
	Reports      *service.ReportService
	Tokens       *service.TokenService
}

// New connects to the backing stores and wires the services.
func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	if cfg.Database.AutoMigrate {
		if err := database.Migrate(cfg.Database, logger.Component(log, "migrate")); err != nil {
			return nil, fmt.Errorf("migrate database: %w", err)
		}
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		log.Warn("redis unavailable, caching disabled", zap.Error(err))
		redisClient = nil
	}

	var events eventSink = publisher.Noop{}
	if cfg.RabbitMQ.Enabled {
		rabbit, err := publisher.NewRabbitMQ(cfg.RabbitMQ, logger.Component(log, "publisher"))
		if err != nil {
			log.Warn("rabbitmq unavailable, events disabled", zap.Error(err))
		} else {
			events = rabbit
		}
	}

	a := &App{Config: cfg, Logger: log, DB: db, Redis: redisClient, Events: events}
	a.wire()
	return a, nil
}

func (a *App) wire() {
	cfg := a.Config
	validate := validator.New()

	students := repository.NewStudentRepository(a.DB)
	courses := repository.NewCourseRepository(a.DB)
	enrollments := repository.NewEnrollmentRepository(a.DB)
	runs := repository.NewSyncRunRepository(a.DB)

	a.Metrics = service.NewMetricsService()
	a.Cache = service.NewCacheService(
		repository.NewCacheRepository(a.Redis, logger.Component(a.Logger, "cache")),
		a.Metrics, 0, logger.Component(a.Logger, "cache"), a.Redis != nil,
	)

	client := lms.NewClient(cfg.LMS, logger.Component(a.Logger, "lms"))
	policy := degraded.NewPolicy(logger.Component(a.Logger, "degraded"), a.Metrics)

	a.Connectivity = service.NewConnectivityService(client, a.Cache, a.Metrics, cfg.Connectivity, logger.Component(a.Logger, "connectivity"))
	a.Sync = service.NewSyncService(client, students, courses, runs, a.Events, a.Metrics, cfg.Sync, validate, logger.Component(a.Logger, "sync"))
	a.Scheduler = service.NewSyncScheduler(a.Sync, a.Connectivity, cfg.Sync, logger.Component(a.Logger, "scheduler"))
	a.Enrollments = service.NewEnrollmentService(
		enrollments, students, courses, client,
		payment.NewRouterFromConfig(cfg.Payment, logger.Component(a.Logger, "payment")),
		a.Events, policy, a.Metrics, cfg.Enrollment, cfg.Payment, validate,
		logger.Component(a.Logger, "enrollment"),
	)
	a.Catalog = service.NewCatalogService(client, policy, a.Cache, cfg.Sync, logger.Component(a.Logger, "catalog"))
	a.Sync.UseCatalogCache(a.Catalog)
	a.Students = service.NewStudentService(students, validate, logger.Component(a.Logger, "students"))
	a.Reports = service.NewReportService(runs, export.NewCSVExporter(), export.NewPDFExporter(), logger.Component(a.Logger, "reports"))
	a.Tokens = service.NewTokenService(cfg.JWT)
}

// Close releases every connection App opened.
func (a *App) Close() {
	if a.Events != nil {
		if err := a.Events.Close(); err != nil {
			a.Logger.Warn("failed to close event publisher", zap.Error(err))
		}
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.DB != nil {
		_ = a.DB.Close()
	}
}
