package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/atelierhq/studio-cms-api/internal/models"
	"github.com/atelierhq/studio-cms-api/pkg/config"
	appErrors "github.com/atelierhq/studio-cms-api/pkg/errors"
)

type uploadRepository interface {
	Create(ctx context.Context, upload *models.Upload) error
	FindByFilename(ctx context.Context, filename string) (*models.Upload, error)
	List(ctx context.Context, limit, offset int) ([]models.Upload, int, error)
	Delete(ctx context.Context, id string) error
}

type uploadStorage interface {
	SaveStream(filename string, r io.Reader) (string, error)
	Delete(filename string) error
	Path(filename string) string
}

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9.-]`)

// UploadService stores media files on disk and tracks their metadata.
type UploadService struct {
	repo    uploadRepository
	storage uploadStorage
	audit   auditLogger
	logger  *zap.Logger
	cfg     config.UploadsConfig
	now     func() time.Time
}

// NewUploadService creates a new instance of UploadService.
func NewUploadService(repo uploadRepository, storage uploadStorage, audit auditLogger, logger *zap.Logger, cfg config.UploadsConfig) *UploadService {
	return &UploadService{
		repo:    repo,
		storage: storage,
		audit:   audit,
		logger:  logger,
		cfg:     cfg,
		now:     time.Now,
	}
}

// Store writes the stream to disk under a unique sanitised name and records
// its metadata. If the metadata insert fails the file is removed again.
func (s *UploadService) Store(ctx context.Context, actor *models.JWTClaims, originalName, mimeType string, size int64, r io.Reader, ip, userAgent string) (*models.UploadResult, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !Allowed(ActionUploadsWrite, actor.Role) {
		return nil, appErrors.ErrForbidden
	}
	if originalName == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "file is required")
	}
	if s.cfg.MaxFileSizeBytes > 0 && size > s.cfg.MaxFileSizeBytes {
		return nil, appErrors.Clone(appErrors.ErrValidation, "file exceeds the maximum allowed size")
	}

	filename := fmt.Sprintf("%d_%s", s.now().UnixMilli(), sanitizeFilename(originalName))

	if _, err := s.storage.SaveStream(filename, r); err != nil {
		return nil, appErrors.FromError(err)
	}

	upload := &models.Upload{
		Filename:     filename,
		OriginalName: originalName,
		MimeType:     mimeType,
		Size:         size,
		Path:         s.storage.Path(filename),
		UploadedBy:   &actor.UserID,
	}
	if err := s.repo.Create(ctx, upload); err != nil {
		if cleanupErr := s.storage.Delete(filename); cleanupErr != nil {
			s.logger.Warn("failed to remove orphaned upload file", zap.String("filename", filename), zap.Error(cleanupErr))
		}
		return nil, appErrors.FromError(err)
	}

	details, _ := json.Marshal(map[string]interface{}{
		"file_name": filename,
		"size":      size,
		"mime_type": mimeType,
	})
	s.recordAudit(ctx, &models.AuditLog{
		UserID:    &actor.UserID,
		UserEmail: actor.Email,
		Action:    models.AuditActionUploadCreate,
		Resource:  filename,
		Details:   details,
		IPAddress: ip,
		UserAgent: userAgent,
	})

	return &models.UploadResult{
		URL:          s.publicURL(filename),
		FileName:     filename,
		OriginalName: originalName,
		Size:         size,
		MimeType:     mimeType,
	}, nil
}

// Get returns metadata for a stored file.
func (s *UploadService) Get(ctx context.Context, filename string) (*models.Upload, error) {
	upload, err := s.repo.FindByFilename(ctx, filename)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.FromError(err)
	}
	return upload, nil
}

// List returns stored uploads newest first.
func (s *UploadService) List(ctx context.Context, page, pageSize int) ([]models.Upload, *models.Pagination, error) {
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 50
	}
	if page <= 0 {
		page = 1
	}
	uploads, total, err := s.repo.List(ctx, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, nil, appErrors.FromError(err)
	}
	return uploads, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Delete removes a stored file and its metadata.
func (s *UploadService) Delete(ctx context.Context, actor *models.JWTClaims, filename, ip, userAgent string) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if !Allowed(ActionUploadsWrite, actor.Role) {
		return appErrors.ErrForbidden
	}

	upload, err := s.repo.FindByFilename(ctx, filename)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrNotFound
		}
		return appErrors.FromError(err)
	}

	if err := s.repo.Delete(ctx, upload.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrNotFound
		}
		return appErrors.FromError(err)
	}
	if err := s.storage.Delete(upload.Filename); err != nil {
		s.logger.Warn("failed to remove upload file", zap.String("filename", upload.Filename), zap.Error(err))
	}

	s.recordAudit(ctx, &models.AuditLog{
		UserID:    &actor.UserID,
		UserEmail: actor.Email,
		Action:    models.AuditActionUploadDelete,
		Resource:  upload.Filename,
		IPAddress: ip,
		UserAgent: userAgent,
	})

	return nil
}

func (s *UploadService) publicURL(filename string) string {
	if s.cfg.PublicBaseURL != "" {
		return s.cfg.PublicBaseURL + "/" + filename
	}
	return "/uploads/" + filename
}

func (s *UploadService) recordAudit(ctx context.Context, log *models.AuditLog) {
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to write audit log", zap.String("action", log.Action), zap.Error(err))
	}
}

func sanitizeFilename(name string) string {
	return unsafeFilenameChars.ReplaceAllString(name, "_")
}
