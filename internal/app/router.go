package app

import (
	"context"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/lms-enrollment-sync/api/swagger"
	"github.com/noah-isme/lms-enrollment-sync/internal/handler"
	"github.com/noah-isme/lms-enrollment-sync/internal/middleware"
	"github.com/noah-isme/lms-enrollment-sync/internal/models"
	"github.com/noah-isme/lms-enrollment-sync/pkg/config"
	"github.com/noah-isme/lms-enrollment-sync/pkg/logger"
	corsmiddleware "github.com/noah-isme/lms-enrollment-sync/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/lms-enrollment-sync/pkg/middleware/requestid"
)

// Router builds the HTTP surface.
func (a *App) Router() *gin.Engine {
	if a.Config.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(a.Logger))
	r.Use(corsmiddleware.New(a.Config.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(a.Metrics))

	checks := map[string]handler.ReadinessCheck{
		"postgres": func(ctx context.Context) error { return a.DB.PingContext(ctx) },
	}
	if a.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return a.Redis.Ping(ctx).Err() }
	}
	metricsHandler := handler.NewMetricsHandler(a.Metrics, checks)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if a.Config.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	syncHandler := handler.NewSyncHandler(a.Sync, a.Scheduler, a.Reports)
	enrollmentHandler := handler.NewEnrollmentHandler(a.Enrollments)
	catalogHandler := handler.NewCatalogHandler(a.Catalog)
	studentHandler := handler.NewStudentHandler(a.Students)
	connectivityHandler := handler.NewConnectivityHandler(a.Connectivity)

	api := r.Group(a.Config.APIPrefix)
	api.Use(middleware.JWT(a.Tokens), middleware.WithResponseMeta(), middleware.Connectivity(a.Connectivity))
	admin := middleware.RequireRoles(models.RoleAdmin)

	sync := api.Group("/sync", admin)
	sync.POST("/:entity", syncHandler.Run)
	sync.GET("/jobs/:id", syncHandler.Job)
	sync.GET("/runs", syncHandler.ListRuns)
	sync.GET("/runs/:id", syncHandler.GetRun)
	sync.GET("/runs/:id/export", syncHandler.ExportRun)

	enrollments := api.Group("/enrollments", admin)
	enrollments.POST("", enrollmentHandler.Create)
	enrollments.GET("", enrollmentHandler.List)
	enrollments.GET("/:id", enrollmentHandler.Get)

	students := api.Group("/students", admin)
	students.GET("", studentHandler.List)
	students.GET("/:id", studentHandler.Get)

	lmsGroup := api.Group("/lms", admin)
	lmsGroup.GET("/students", catalogHandler.Students)
	lmsGroup.GET("/courses", catalogHandler.Courses)
	lmsGroup.GET("/status", connectivityHandler.Status)
	lmsGroup.POST("/probe", connectivityHandler.Probe)

	api.GET("/metrics/snapshot", admin, metricsHandler.Snapshot)

	return r
}
