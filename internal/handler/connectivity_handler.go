package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lms-enrollment-sync/internal/models"
	"github.com/noah-isme/lms-enrollment-sync/pkg/response"
)

type connectivityService interface {
	Status(ctx context.Context) models.ConnectivityStatus
	Probe(ctx context.Context) models.ConnectivityStatus
}

// ConnectivityHandler reports and refreshes the LMS reachability verdict.
type ConnectivityHandler struct {
	connectivity connectivityService
}

// NewConnectivityHandler constructs ConnectivityHandler.
func NewConnectivityHandler(connectivity connectivityService) *ConnectivityHandler {
	return &ConnectivityHandler{connectivity: connectivity}
}

// Status godoc
// @Summary Current LMS connectivity
// @Tags LMS
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /lms/status [get]
func (h *ConnectivityHandler) Status(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.connectivity.Status(c.Request.Context()), nil)
}

// Probe godoc
// @Summary Ping the LMS now
// @Tags LMS
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /lms/probe [post]
func (h *ConnectivityHandler) Probe(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.connectivity.Probe(c.Request.Context()), nil)
}
