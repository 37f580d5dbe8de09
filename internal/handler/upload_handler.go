package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/atelierhq/studio-cms-api/internal/models"
	appErrors "github.com/atelierhq/studio-cms-api/pkg/errors"
	"github.com/atelierhq/studio-cms-api/pkg/response"
)

type uploadService interface {
	Store(ctx context.Context, actor *models.JWTClaims, originalName, mimeType string, size int64, r io.Reader, ip, userAgent string) (*models.UploadResult, error)
	Get(ctx context.Context, filename string) (*models.Upload, error)
	List(ctx context.Context, page, pageSize int) ([]models.Upload, *models.Pagination, error)
	Delete(ctx context.Context, actor *models.JWTClaims, filename, ip, userAgent string) error
}

// UploadHandler exposes media upload endpoints.
type UploadHandler struct {
	service uploadService
}

// NewUploadHandler builds a new handler.
func NewUploadHandler(service uploadService) *UploadHandler {
	return &UploadHandler{service: service}
}

// Create godoc
// @Summary Upload a media file
// @Tags Uploads
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param file formData file true "File to upload"
// @Success 201 {object} response.Envelope
// @Router /uploads [post]
func (h *UploadHandler) Create(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "file is required"))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.FromError(err))
		return
	}
	defer file.Close() //nolint:errcheck

	result, err := h.service.Store(
		c.Request.Context(),
		claimsFromContext(c),
		fileHeader.Filename,
		fileHeader.Header.Get("Content-Type"),
		fileHeader.Size,
		file,
		c.ClientIP(),
		c.Request.UserAgent(),
	)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// List godoc
// @Summary List uploaded files newest first
// @Tags Uploads
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /uploads [get]
func (h *UploadHandler) List(c *gin.Context) {
	uploads, pagination, err := h.service.List(c.Request.Context(), queryInt(c, "page", 1), queryInt(c, "page_size", 50))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, uploads, pagination)
}

// Get godoc
// @Summary Get upload metadata by filename
// @Tags Uploads
// @Produce json
// @Security BearerAuth
// @Param filename path string true "Stored filename"
// @Success 200 {object} response.Envelope
// @Router /uploads/{filename} [get]
func (h *UploadHandler) Get(c *gin.Context) {
	upload, err := h.service.Get(c.Request.Context(), c.Param("filename"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, upload, nil)
}

// Delete godoc
// @Summary Delete an uploaded file
// @Tags Uploads
// @Produce json
// @Security BearerAuth
// @Param filename path string true "Stored filename"
// @Success 204
// @Router /uploads/{filename} [delete]
func (h *UploadHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), claimsFromContext(c), c.Param("filename"), c.ClientIP(), c.Request.UserAgent()); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
