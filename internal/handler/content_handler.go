package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/atelierhq/studio-cms-api/internal/middleware"
	"github.com/atelierhq/studio-cms-api/internal/models"
	appErrors "github.com/atelierhq/studio-cms-api/pkg/errors"
	"github.com/atelierhq/studio-cms-api/pkg/response"
)

type contentService interface {
	GetDocument(ctx context.Context) (json.RawMessage, bool, error)
	Get(ctx context.Context, key string) (*models.ContentEntry, error)
	Upsert(ctx context.Context, actor *models.JWTClaims, req models.UpsertContentRequest, ip, userAgent string) (*models.ContentVersion, error)
	BulkUpsert(ctx context.Context, actor *models.JWTClaims, req models.BulkUpsertContentRequest, ip, userAgent string) error
	UpdateAtPath(ctx context.Context, actor *models.JWTClaims, req models.UpdateContentAtPathRequest, ip, userAgent string) (*models.ContentVersion, error)
	ListVersions(ctx context.Context, key string, limit, offset int) ([]models.ContentVersion, error)
	Restore(ctx context.Context, actor *models.JWTClaims, key string, version int, ip, userAgent string) (*models.ContentVersion, error)
}

// ContentHandler exposes the site content endpoints.
type ContentHandler struct {
	service contentService
}

// NewContentHandler builds a new handler.
func NewContentHandler(service contentService) *ContentHandler {
	return &ContentHandler{service: service}
}

// GetDocument godoc
// @Summary Get the merged content document
// @Tags Content
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /content [get]
func (h *ContentHandler) GetDocument(c *gin.Context) {
	document, cacheHit, err := h.service.GetDocument(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	response.JSON(c, http.StatusOK, document, nil, middleware.ExtractMeta(c))
}

// Get godoc
// @Summary Get one content entry
// @Tags Content
// @Produce json
// @Param key path string true "Content key"
// @Success 200 {object} response.Envelope
// @Router /content/{key} [get]
func (h *ContentHandler) Get(c *gin.Context) {
	entry, err := h.service.Get(c.Request.Context(), c.Param("key"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entry, nil)
}

// Upsert godoc
// @Summary Replace the value under a content key
// @Tags Content
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.UpsertContentRequest true "Content payload"
// @Success 200 {object} response.Envelope
// @Router /content [put]
func (h *ContentHandler) Upsert(c *gin.Context) {
	var req models.UpsertContentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid content payload"))
		return
	}

	snapshot, err := h.service.Upsert(c.Request.Context(), claimsFromContext(c), req, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"key": req.Key, "replaced_version": snapshot}, nil)
}

// BulkUpsert godoc
// @Summary Replace the values of several content keys at once
// @Tags Content
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.BulkUpsertContentRequest true "Bulk content payload"
// @Success 204
// @Router /content [post]
func (h *ContentHandler) BulkUpsert(c *gin.Context) {
	var req models.BulkUpsertContentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid bulk payload"))
		return
	}

	if err := h.service.BulkUpsert(c.Request.Context(), claimsFromContext(c), req, c.ClientIP(), c.Request.UserAgent()); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// UpdateAtPath godoc
// @Summary Assign a value at a nested path inside a content entry
// @Tags Content
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.UpdateContentAtPathRequest true "Patch payload"
// @Success 200 {object} response.Envelope
// @Router /content [patch]
func (h *ContentHandler) UpdateAtPath(c *gin.Context) {
	var req models.UpdateContentAtPathRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid patch payload"))
		return
	}

	snapshot, err := h.service.UpdateAtPath(c.Request.Context(), claimsFromContext(c), req, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"key": req.Key, "replaced_version": snapshot}, nil)
}

// ListVersions godoc
// @Summary List version history for a content key
// @Tags Content
// @Produce json
// @Security BearerAuth
// @Param key path string true "Content key"
// @Param limit query int false "Max rows"
// @Param offset query int false "Row offset"
// @Success 200 {object} response.Envelope
// @Router /content/{key}/versions [get]
func (h *ContentHandler) ListVersions(c *gin.Context) {
	versions, err := h.service.ListVersions(c.Request.Context(), c.Param("key"), queryInt(c, "limit", 50), queryInt(c, "offset", 0))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, versions, nil)
}

// Restore godoc
// @Summary Restore a historical version of a content key
// @Tags Content
// @Produce json
// @Security BearerAuth
// @Param key path string true "Content key"
// @Param version path int true "Version number"
// @Success 200 {object} response.Envelope
// @Router /content/{key}/versions/{version}/restore [post]
func (h *ContentHandler) Restore(c *gin.Context) {
	version, err := strconv.Atoi(c.Param("version"))
	if err != nil || version <= 0 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "version must be a positive integer"))
		return
	}

	snapshot, err := h.service.Restore(c.Request.Context(), claimsFromContext(c), c.Param("key"), version, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"key": c.Param("key"), "replaced_version": snapshot}, nil)
}
