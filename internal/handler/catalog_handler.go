package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lms-enrollment-sync/internal/middleware"
	"github.com/noah-isme/lms-enrollment-sync/internal/models"
	"github.com/noah-isme/lms-enrollment-sync/internal/service"
	"github.com/noah-isme/lms-enrollment-sync/pkg/response"
)

type catalogService interface {
	ListStudents(ctx context.Context, page, pageSize int, offline bool) (*service.Catalog[models.RemoteStudent], error)
	ListCourses(ctx context.Context, page, pageSize int, offline bool) (*service.Catalog[models.RemoteCourse], error)
}

// CatalogHandler serves LMS listings, live or simulated.
type CatalogHandler struct {
	catalog catalogService
}

// NewCatalogHandler constructs CatalogHandler.
func NewCatalogHandler(catalog catalogService) *CatalogHandler {
	return &CatalogHandler{catalog: catalog}
}

// Students godoc
// @Summary List LMS students
// @Description Answers with the simulated set when the LMS is offline; see X-Data-Provenance.
// @Tags LMS
// @Produce json
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Param X-LMS-Offline header bool false "Force offline mode"
// @Success 200 {object} response.Envelope
// @Router /lms/students [get]
func (h *CatalogHandler) Students(c *gin.Context) {
	catalog, err := h.catalog.ListStudents(c.Request.Context(), queryInt(c, "page", 1), queryInt(c, "limit", 0), middleware.Offline(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetProvenance(c, catalog.Simulated, catalog.Reason)
	response.JSON(c, http.StatusOK, catalog, nil, responseMeta(c))
}

// Courses godoc
// @Summary List LMS courses
// @Description Answers with the simulated set when the LMS is offline; see X-Data-Provenance.
// @Tags LMS
// @Produce json
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Param X-LMS-Offline header bool false "Force offline mode"
// @Success 200 {object} response.Envelope
// @Router /lms/courses [get]
func (h *CatalogHandler) Courses(c *gin.Context) {
	catalog, err := h.catalog.ListCourses(c.Request.Context(), queryInt(c, "page", 1), queryInt(c, "limit", 0), middleware.Offline(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetProvenance(c, catalog.Simulated, catalog.Reason)
	response.JSON(c, http.StatusOK, catalog, nil, responseMeta(c))
}
