package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lifedrop/lifedrop-api/internal/middleware"
	"github.com/lifedrop/lifedrop-api/internal/service"
	appErrors "github.com/lifedrop/lifedrop-api/pkg/errors"
	"github.com/lifedrop/lifedrop-api/pkg/response"
)

// DashboardHandler exposes donor and admin dashboard endpoints.
type DashboardHandler struct {
	dashboard *service.DashboardService
}

// NewDashboardHandler constructs DashboardHandler.
func NewDashboardHandler(dashboard *service.DashboardService) *DashboardHandler {
	return &DashboardHandler{dashboard: dashboard}
}

// Donor godoc
// @Summary Donor dashboard
// @Description Streaks, annual limit standing and upcoming appointments
// @Tags Dashboard
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /dashboard/donor [get]
func (h *DashboardHandler) Donor(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	dashboard, cached, err := h.dashboard.Donor(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cached)
	response.JSON(c, http.StatusOK, dashboard, nil, middleware.ExtractMeta(c))
}

// Admin godoc
// @Summary Admin dashboard
// @Description Review workload and donation activity aggregates
// @Tags Dashboard
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /dashboard/admin [get]
func (h *DashboardHandler) Admin(c *gin.Context) {
	dashboard, cached, err := h.dashboard.Admin(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cached)
	response.JSON(c, http.StatusOK, dashboard, nil, middleware.ExtractMeta(c))
}
