package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/atelierhq/studio-cms-api/internal/models"
	"github.com/atelierhq/studio-cms-api/pkg/config"
	appErrors "github.com/atelierhq/studio-cms-api/pkg/errors"
	"github.com/atelierhq/studio-cms-api/pkg/export"
)

type auditRepository interface {
	List(ctx context.Context, limit, offset int) ([]models.AuditLog, int, error)
}

// ExportFormat names a supported audit export encoding.
const (
	ExportFormatCSV = "csv"
	ExportFormatPDF = "pdf"
)

// AuditService reads and exports the audit trail.
type AuditService struct {
	repo   auditRepository
	csv    *export.CSVExporter
	pdf    *export.PDFExporter
	logger *zap.Logger
	cfg    config.ExportsConfig
}

// NewAuditService creates a new instance of AuditService.
func NewAuditService(repo auditRepository, csv *export.CSVExporter, pdf *export.PDFExporter, logger *zap.Logger, cfg config.ExportsConfig) *AuditService {
	return &AuditService{
		repo:   repo,
		csv:    csv,
		pdf:    pdf,
		logger: logger,
		cfg:    cfg,
	}
}

// List returns audit entries newest first.
func (s *AuditService) List(ctx context.Context, page, pageSize int) ([]models.AuditLog, *models.Pagination, error) {
	if pageSize <= 0 || pageSize > 200 {
		pageSize = 50
	}
	if page <= 0 {
		page = 1
	}

	logs, total, err := s.repo.List(ctx, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, nil, appErrors.FromError(err)
	}
	return logs, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// ExportResult carries a rendered export document.
type ExportResult struct {
	Data        []byte
	ContentType string
	Filename    string
}

// Export renders the newest audit entries as CSV or PDF, capped by the
// configured row limit.
func (s *AuditService) Export(ctx context.Context, format string) (*ExportResult, error) {
	maxRows := s.cfg.MaxRows
	if maxRows <= 0 {
		maxRows = 5000
	}

	logs, _, err := s.repo.List(ctx, maxRows, 0)
	if err != nil {
		return nil, appErrors.FromError(err)
	}

	dataset := export.Dataset{
		Headers: []string{"Time", "User", "Action", "Resource", "Details", "IP"},
		Rows:    make([]map[string]string, 0, len(logs)),
	}
	for _, log := range logs {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Time":     log.CreatedAt.UTC().Format(time.RFC3339),
			"User":     log.UserEmail,
			"Action":   log.Action,
			"Resource": log.Resource,
			"Details":  string(log.Details),
			"IP":       log.IPAddress,
		})
	}

	stamp := time.Now().UTC().Format("20060102_150405")
	switch format {
	case ExportFormatCSV:
		data, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.FromError(err)
		}
		return &ExportResult{Data: data, ContentType: "text/csv", Filename: "audit_log_" + stamp + ".csv"}, nil
	case ExportFormatPDF:
		data, err := s.pdf.Render(dataset, "Audit Log")
		if err != nil {
			return nil, appErrors.FromError(err)
		}
		return &ExportResult{Data: data, ContentType: "application/pdf", Filename: "audit_log_" + stamp + ".pdf"}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
}
