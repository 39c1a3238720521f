package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lifedrop/lifedrop-api/internal/models"
	"github.com/lifedrop/lifedrop-api/internal/service"
	appErrors "github.com/lifedrop/lifedrop-api/pkg/errors"
	"github.com/lifedrop/lifedrop-api/pkg/response"
)

// AppointmentHandler exposes appointment booking endpoints.
type AppointmentHandler struct {
	appointments *service.AppointmentService
	dashboard    *service.DashboardService
}

// NewAppointmentHandler constructs AppointmentHandler.
func NewAppointmentHandler(appointments *service.AppointmentService, dashboard *service.DashboardService) *AppointmentHandler {
	return &AppointmentHandler{appointments: appointments, dashboard: dashboard}
}

// List godoc
// @Summary List appointments
// @Description Donors see their own appointments, admins see all
// @Tags Appointments
// @Produce json
// @Param donorId query string false "Filter by donor (admin only)"
// @Param from query string false "From date (RFC3339)"
// @Param to query string false "To date (RFC3339)"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /appointments [get]
func (h *AppointmentHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var filter models.AppointmentFilter
	filter.DonorID = c.Query("donorId")
	if from, err := time.Parse(time.RFC3339, c.Query("from")); err == nil {
		filter.From = &from
	}
	if to, err := time.Parse(time.RFC3339, c.Query("to")); err == nil {
		filter.To = &to
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	appointments, total, err := h.appointments.List(c.Request.Context(), claims.UserID, claims.Role, filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	response.JSON(c, http.StatusOK, appointments, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total})
}

// Book godoc
// @Summary Book an appointment by consuming a streak
// @Tags Appointments
// @Accept json
// @Produce json
// @Param payload body models.BookAppointmentRequest true "Booking payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /appointments [post]
func (h *AppointmentHandler) Book(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req models.BookAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	appointment, err := h.appointments.Book(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	if h.dashboard != nil {
		h.dashboard.InvalidateDonor(c.Request.Context(), claims.UserID)
		h.dashboard.InvalidateAdmin(c.Request.Context())
	}
	response.Created(c, appointment)
}
