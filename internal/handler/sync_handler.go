package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lms-enrollment-sync/internal/middleware"
	"github.com/noah-isme/lms-enrollment-sync/internal/models"
	"github.com/noah-isme/lms-enrollment-sync/internal/service"
	appErrors "github.com/noah-isme/lms-enrollment-sync/pkg/errors"
	"github.com/noah-isme/lms-enrollment-sync/pkg/jobs"
	"github.com/noah-isme/lms-enrollment-sync/pkg/response"
)

type syncService interface {
	Synchronize(ctx context.Context, entity models.EntityType, opts service.SyncOptions) (*models.SyncResult, error)
	DefaultPageSize() int
}

type syncJobScheduler interface {
	Submit(entity models.EntityType, opts service.SyncOptions) (jobs.Status, error)
	Job(id string) (jobs.Status, error)
}

type syncRunReporter interface {
	ListRuns(ctx context.Context, filter models.SyncRunFilter) ([]models.SyncRun, *models.Pagination, error)
	GetRun(ctx context.Context, id string) (*models.SyncRun, error)
	ExportRun(ctx context.Context, id string, format service.ReportFormat) (*service.RenderedReport, error)
}

// SyncRequest is the body of a sync trigger.
type SyncRequest struct {
	FullSync bool `json:"full_sync"`
	PageSize int  `json:"page_size"`
	Async    bool `json:"async"`
}

// SyncHandler exposes the reconciler and its audit trail.
type SyncHandler struct {
	syncer    syncService
	scheduler syncJobScheduler
	reports   syncRunReporter
}

// NewSyncHandler constructs SyncHandler. scheduler may be nil when async sync is disabled.
func NewSyncHandler(syncer syncService, scheduler syncJobScheduler, reports syncRunReporter) *SyncHandler {
	return &SyncHandler{syncer: syncer, scheduler: scheduler, reports: reports}
}

// Run godoc
// @Summary Synchronize students or courses from the LMS
// @Tags Sync
// @Accept json
// @Produce json
// @Param entity path string true "students or courses"
// @Param payload body SyncRequest false "Sync options"
// @Param X-LMS-Offline header bool false "Force offline mode"
// @Success 200 {object} response.Envelope
// @Success 202 {object} response.Envelope
// @Success 206 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /sync/{entity} [post]
func (h *SyncHandler) Run(c *gin.Context) {
	entity, err := models.ParseEntityType(c.Param("entity"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}
	var req SyncRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
			return
		}
	}
	opts := service.SyncOptions{FullSync: req.FullSync, PageSize: req.PageSize}
	if opts.PageSize == 0 {
		opts.PageSize = h.syncer.DefaultPageSize()
	}

	if req.Async {
		if h.scheduler == nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "async sync is not enabled"))
			return
		}
		status, err := h.scheduler.Submit(entity, opts)
		if err != nil {
			response.Error(c, err)
			return
		}
		c.Header("Location", fmt.Sprintf("%s/jobs/%s", syncBasePath(c), status.ID))
		response.JSON(c, http.StatusAccepted, status, nil)
		return
	}

	opts.Offline = middleware.Offline(c)
	result, err := h.syncer.Synchronize(c.Request.Context(), entity, opts)
	if err != nil {
		response.Error(c, err)
		return
	}
	status := http.StatusOK
	if result.Partial() {
		status = http.StatusPartialContent
	}
	meta := responseMeta(c)
	meta["partial"] = result.Partial()
	response.JSON(c, status, result, nil, meta)
}

// Job godoc
// @Summary Async sync job status
// @Tags Sync
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Router /sync/jobs/{id} [get]
func (h *SyncHandler) Job(c *gin.Context) {
	if h.scheduler == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "sync job not found"))
		return
	}
	status, err := h.scheduler.Job(c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// ListRuns godoc
// @Summary List persisted sync runs
// @Tags Sync
// @Produce json
// @Param entity query string false "students or courses"
// @Param status query string false "success, partial, failed or cancelled"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /sync/runs [get]
func (h *SyncHandler) ListRuns(c *gin.Context) {
	filter := models.SyncRunFilter{
		Status:   models.SyncRunStatus(c.Query("status")),
		Page:     queryInt(c, "page", 1),
		PageSize: queryInt(c, "limit", 20),
	}
	if raw := c.Query("entity"); raw != "" {
		entity, err := models.ParseEntityType(raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
			return
		}
		filter.EntityType = entity
	}
	runs, pagination, err := h.reports.ListRuns(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, runs, pagination)
}

// GetRun godoc
// @Summary Sync run detail with its per-record log
// @Tags Sync
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} response.Envelope
// @Router /sync/runs/{id} [get]
func (h *SyncHandler) GetRun(c *gin.Context) {
	run, err := h.reports.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, run, nil)
}

// ExportRun godoc
// @Summary Download a sync run as CSV or PDF
// @Tags Sync
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Run ID"
// @Param format query string false "csv or pdf"
// @Success 200 {file} file
// @Router /sync/runs/{id}/export [get]
func (h *SyncHandler) ExportRun(c *gin.Context) {
	format := service.ReportFormat(c.DefaultQuery("format", string(service.ReportFormatCSV)))
	report, err := h.reports.ExportRun(c.Request.Context(), c.Param("id"), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, report.Filename))
	c.Data(http.StatusOK, report.ContentType, report.Body)
}

func syncBasePath(c *gin.Context) string {
	path := c.FullPath()
	if path == "" {
		path = c.Request.URL.Path
	}
	if base, ok := strings.CutSuffix(path, "/:entity"); ok {
		return base
	}
	return "/sync"
}
