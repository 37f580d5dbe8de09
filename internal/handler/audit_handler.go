package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/atelierhq/studio-cms-api/internal/models"
	"github.com/atelierhq/studio-cms-api/internal/service"
	"github.com/atelierhq/studio-cms-api/pkg/response"
)

type auditService interface {
	List(ctx context.Context, page, pageSize int) ([]models.AuditLog, *models.Pagination, error)
	Export(ctx context.Context, format string) (*service.ExportResult, error)
}

// AuditHandler exposes the audit trail endpoints.
type AuditHandler struct {
	service auditService
}

// NewAuditHandler builds a new handler.
func NewAuditHandler(service auditService) *AuditHandler {
	return &AuditHandler{service: service}
}

// List godoc
// @Summary List audit entries newest first
// @Tags Audit
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /audit [get]
func (h *AuditHandler) List(c *gin.Context) {
	logs, pagination, err := h.service.List(c.Request.Context(), queryInt(c, "page", 1), queryInt(c, "page_size", 50))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, logs, pagination)
}

// Export godoc
// @Summary Export the audit trail as CSV or PDF
// @Tags Audit
// @Produce json
// @Security BearerAuth
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} file
// @Router /audit/export [get]
func (h *AuditHandler) Export(c *gin.Context) {
	format := c.DefaultQuery("format", service.ExportFormatCSV)

	result, err := h.service.Export(c.Request.Context(), format)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+result.Filename+`"`)
	c.Data(http.StatusOK, result.ContentType, result.Data)
}
