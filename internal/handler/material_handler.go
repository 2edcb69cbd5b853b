package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/studyhub-io/studyhub-api/internal/dto"
	"github.com/studyhub-io/studyhub-api/internal/models"
	"github.com/studyhub-io/studyhub-api/internal/service"
	appErrors "github.com/studyhub-io/studyhub-api/pkg/errors"
	"github.com/studyhub-io/studyhub-api/pkg/response"
)

// MaterialHandler exposes the material catalog and file transfer endpoints.
type MaterialHandler struct {
	materials  *service.MaterialService
	uploads    *service.UploadService
	moderation *service.ModerationService
}

// NewMaterialHandler constructs MaterialHandler.
func NewMaterialHandler(materials *service.MaterialService, uploads *service.UploadService, moderation *service.ModerationService) *MaterialHandler {
	return &MaterialHandler{materials: materials, uploads: uploads, moderation: moderation}
}

// CheckDuplicate godoc
// @Summary Check for a duplicate file
// @Description Report whether an identical file visible to the caller exists
// @Tags Materials
// @Accept json
// @Produce json
// @Param payload body dto.CheckDuplicateRequest true "File hash"
// @Success 200 {object} response.Envelope
// @Router /materials/check-duplicate [post]
func (h *MaterialHandler) CheckDuplicate(c *gin.Context) {
	var req dto.CheckDuplicateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid duplicate check payload"))
		return
	}
	res, err := h.materials.CheckDuplicate(c.Request.Context(), claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Presign godoc
// @Summary Reserve a one-shot signed upload
// @Description Hashes already visible to the caller are rejected with the existing material
// @Tags Materials
// @Accept json
// @Produce json
// @Param payload body dto.PresignRequest true "File metadata"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /materials/presign [post]
func (h *MaterialHandler) Presign(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.PresignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid presign payload"))
		return
	}
	res, err := h.materials.PresignUpload(c.Request.Context(), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, res)
}

// Upload godoc
// @Summary Upload file bytes to a signed slot
// @Description Accept the body of a presigned PUT; the token authorises the transfer
// @Tags Materials
// @Accept octet-stream
// @Produce json
// @Param token path string true "Signed upload token"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /materials/upload/{token} [put]
func (h *MaterialHandler) Upload(c *gin.Context) {
	session, err := h.uploads.Receive(c.Request.Context(), c.Param("token"), c.Request.Body)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// Create godoc
// @Summary Create a material from a stored upload
// @Tags Materials
// @Accept json
// @Produce json
// @Param payload body dto.CreateMaterialRequest true "Material payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /materials [post]
func (h *MaterialHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CreateMaterialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid material payload"))
		return
	}
	material, err := h.materials.Create(c.Request.Context(), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, material)
}

// List godoc
// @Summary List visible materials
// @Tags Materials
// @Produce json
// @Param courseId query string false "Filter by course"
// @Param ownerId query string false "Filter by owner"
// @Param status query string false "Filter by status"
// @Param search query string false "Search title and description"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /materials [get]
func (h *MaterialHandler) List(c *gin.Context) {
	var filter models.MaterialFilter
	filter.CourseID = c.Query("courseId")
	filter.OwnerID = c.Query("ownerId")
	filter.Search = strings.TrimSpace(c.Query("search"))
	if status := c.Query("status"); status != "" {
		s := models.MaterialStatus(status)
		filter.Status = &s
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	materials, pagination, err := h.materials.List(c.Request.Context(), claimsFromContext(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, materials, pagination)
}

// Get godoc
// @Summary Get a material
// @Tags Materials
// @Produce json
// @Param id path string true "Material ID"
// @Success 200 {object} response.Envelope
// @Router /materials/{id} [get]
func (h *MaterialHandler) Get(c *gin.Context) {
	material, err := h.materials.Get(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, material, nil)
}

// DownloadURL godoc
// @Summary Issue a signed download link
// @Tags Materials
// @Produce json
// @Param id path string true "Material ID"
// @Success 200 {object} response.Envelope
// @Router /materials/{id}/download-url [get]
func (h *MaterialHandler) DownloadURL(c *gin.Context) {
	link, err := h.materials.DownloadURL(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, link, nil)
}

// Download godoc
// @Summary Download a material file
// @Description Stream the file referenced by a signed download token
// @Tags Materials
// @Produce octet-stream
// @Param token path string true "Signed download token"
// @Success 200 {file} binary
// @Failure 401 {object} response.Envelope
// @Router /materials/download/{token} [get]
func (h *MaterialHandler) Download(c *gin.Context) {
	material, reader, err := h.materials.Download(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer reader.Close()

	headers := map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", material.FileName),
	}
	c.DataFromReader(http.StatusOK, material.FileSize, material.MimeType, reader, headers)
}

// Delete godoc
// @Summary Delete a material
// @Tags Materials
// @Produce json
// @Param id path string true "Material ID"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /materials/{id} [delete]
func (h *MaterialHandler) Delete(c *gin.Context) {
	if err := h.materials.Delete(c.Request.Context(), claimsFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Flag godoc
// @Summary Flag a material for moderation
// @Tags Materials
// @Accept json
// @Produce json
// @Param id path string true "Material ID"
// @Param payload body dto.FlagMaterialRequest true "Flag payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /materials/{id}/flag [post]
func (h *MaterialHandler) Flag(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.FlagMaterialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid flag payload"))
		return
	}
	flag, err := h.moderation.Flag(c.Request.Context(), claims, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, flag)
}
