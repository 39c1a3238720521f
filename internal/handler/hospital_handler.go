package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lifedrop/lifedrop-api/internal/service"
	"github.com/lifedrop/lifedrop-api/pkg/response"
)

// HospitalHandler exposes hospital reference data endpoints.
type HospitalHandler struct {
	hospitals *service.HospitalService
}

// NewHospitalHandler constructs HospitalHandler.
func NewHospitalHandler(hospitals *service.HospitalService) *HospitalHandler {
	return &HospitalHandler{hospitals: hospitals}
}

// List godoc
// @Summary List hospitals
// @Tags Hospitals
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /hospitals [get]
func (h *HospitalHandler) List(c *gin.Context) {
	hospitals, err := h.hospitals.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, hospitals, nil)
}

// Get godoc
// @Summary Get hospital by ID
// @Tags Hospitals
// @Produce json
// @Param id path string true "Hospital ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /hospitals/{id} [get]
func (h *HospitalHandler) Get(c *gin.Context) {
	hospital, err := h.hospitals.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, hospital, nil)
}
