package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/studyhub-io/studyhub-api/internal/dto"
	"github.com/studyhub-io/studyhub-api/internal/middleware"
	"github.com/studyhub-io/studyhub-api/internal/models"
	"github.com/studyhub-io/studyhub-api/internal/service"
	appErrors "github.com/studyhub-io/studyhub-api/pkg/errors"
	"github.com/studyhub-io/studyhub-api/pkg/response"
)

// AdminHandler exposes the dashboard, moderation queue and bulk tools.
type AdminHandler struct {
	admin      *service.AdminService
	moderation *service.ModerationService
}

// NewAdminHandler constructs AdminHandler.
func NewAdminHandler(admin *service.AdminService, moderation *service.ModerationService) *AdminHandler {
	return &AdminHandler{admin: admin, moderation: moderation}
}

// Stats godoc
// @Summary Dashboard counters
// @Description Aggregate platform counters, cached for a short interval
// @Tags Admin
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /admin/stats [get]
func (h *AdminHandler) Stats(c *gin.Context) {
	stats, cached, err := h.admin.Stats(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cached)
	response.JSON(c, http.StatusOK, stats, nil, middleware.ExtractMeta(c))
}

// QueueStatus godoc
// @Summary Worker queue gauges
// @Tags Admin
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /admin/queue-status [get]
func (h *AdminHandler) QueueStatus(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.admin.QueueStatus(), nil)
}

// BulkDelete godoc
// @Summary Bulk delete materials
// @Description Remove the named materials, reporting a per-id outcome
// @Tags Admin
// @Accept json
// @Produce json
// @Param payload body dto.BulkDeleteRequest true "Material IDs"
// @Success 200 {object} response.Envelope
// @Router /admin/materials/bulk-delete [post]
func (h *AdminHandler) BulkDelete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.BulkDeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid bulk delete payload"))
		return
	}
	results, err := h.admin.BulkDelete(c.Request.Context(), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, results, nil)
}

// ListFlags godoc
// @Summary Moderation queue
// @Tags Admin
// @Produce json
// @Param status query string false "Filter by flag status"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /admin/flags [get]
func (h *AdminHandler) ListFlags(c *gin.Context) {
	var status *models.FlagStatus
	if raw := c.Query("status"); raw != "" {
		s := models.FlagStatus(raw)
		status = &s
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	flags, pagination, err := h.moderation.List(c.Request.Context(), status, page, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, flags, pagination)
}

// ResolveFlag godoc
// @Summary Resolve a moderation flag
// @Description UPHELD removes the material and docks the owner's reputation
// @Tags Admin
// @Accept json
// @Produce json
// @Param id path string true "Flag ID"
// @Param payload body dto.ResolveFlagRequest true "Resolution"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admin/flags/{id}/resolve [post]
func (h *AdminHandler) ResolveFlag(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.ResolveFlagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid resolution payload"))
		return
	}
	flag, err := h.moderation.Resolve(c.Request.Context(), claims, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, flag, nil)
}
