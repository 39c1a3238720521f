package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/lifedrop/lifedrop-api/internal/models"
	"github.com/lifedrop/lifedrop-api/internal/service"
	appErrors "github.com/lifedrop/lifedrop-api/pkg/errors"
	"github.com/lifedrop/lifedrop-api/pkg/response"
)

// DonationHandler exposes donation lifecycle endpoints.
type DonationHandler struct {
	donations *service.DonationService
	dashboard *service.DashboardService
}

// NewDonationHandler constructs DonationHandler.
func NewDonationHandler(donations *service.DonationService, dashboard *service.DashboardService) *DonationHandler {
	return &DonationHandler{donations: donations, dashboard: dashboard}
}

// List godoc
// @Summary List donations
// @Description Donors see their own donations, admins see all
// @Tags Donations
// @Produce json
// @Param status query string false "Filter by status"
// @Param year query int false "Filter by calendar year"
// @Param donorId query string false "Filter by donor (admin only)"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /donations [get]
func (h *DonationHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var filter models.DonationFilter
	filter.DonorID = c.Query("donorId")
	if status := strings.ToUpper(c.Query("status")); status != "" {
		filter.Status = models.DonationStatus(status)
	}
	if year, err := strconv.Atoi(c.Query("year")); err == nil {
		filter.Year = year
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	donations, total, err := h.donations.List(c.Request.Context(), claims.UserID, claims.Role, filter)
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
	response.JSON(c, http.StatusOK, donations, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total})
}

// Submit godoc
// @Summary Submit a donation for review
// @Tags Donations
// @Accept json
// @Produce json
// @Param payload body models.SubmitDonationRequest true "Donation payload"
// @Success 201 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /donations [post]
func (h *DonationHandler) Submit(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req models.SubmitDonationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	donation, err := h.donations.Submit(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	h.invalidateDashboards(c, claims.UserID)
	response.Created(c, donation)
}

// Approve godoc
// @Summary Approve a pending donation
// @Tags Donations
// @Produce json
// @Param id path string true "Donation ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /donations/{id}/approve [put]
func (h *DonationHandler) Approve(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	donation, err := h.donations.Approve(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	h.invalidateDashboards(c, donation.DonorID)
	response.JSON(c, http.StatusOK, donation, nil)
}

// Reject godoc
// @Summary Reject a pending donation
// @Tags Donations
// @Produce json
// @Param id path string true "Donation ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /donations/{id}/reject [put]
func (h *DonationHandler) Reject(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	donation, err := h.donations.Reject(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	h.invalidateDashboards(c, donation.DonorID)
	response.JSON(c, http.StatusOK, donation, nil)
}

// Streaks godoc
// @Summary Report the donor's available streaks
// @Tags Donations
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /donations/streaks [get]
func (h *DonationHandler) Streaks(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	summary, err := h.donations.Streaks(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

func (h *DonationHandler) invalidateDashboards(c *gin.Context, donorID string) {
	if h.dashboard == nil {
		return
	}
	h.dashboard.InvalidateDonor(c.Request.Context(), donorID)
	h.dashboard.InvalidateAdmin(c.Request.Context())
}
