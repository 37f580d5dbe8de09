package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/atelierhq/studio-cms-api/internal/models"
)

// UploadRepository provides database access for upload metadata.
type UploadRepository struct {
	db *sqlx.DB
}

// NewUploadRepository creates a new instance of UploadRepository.
func NewUploadRepository(db *sqlx.DB) *UploadRepository {
	return &UploadRepository{db: db}
}

// Create inserts an upload record.
func (r *UploadRepository) Create(ctx context.Context, upload *models.Upload) error {
	if upload.ID == "" {
		upload.ID = uuid.NewString()
	}
	if upload.CreatedAt.IsZero() {
		upload.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO uploads (id, filename, original_name, mime_type, size, path, uploaded_by, created_at)
VALUES (:id, :filename, :original_name, :mime_type, :size, :path, :uploaded_by, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, upload); err != nil {
		return fmt.Errorf("create upload: %w", err)
	}
	return nil
}

// FindByFilename returns the upload stored under a filename.
func (r *UploadRepository) FindByFilename(ctx context.Context, filename string) (*models.Upload, error) {
	const query = `SELECT id, filename, original_name, mime_type, size, path, uploaded_by, created_at
FROM uploads WHERE filename = $1 LIMIT 1`
	var upload models.Upload
	if err := r.db.GetContext(ctx, &upload, query, filename); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find upload: %w", err)
	}
	return &upload, nil
}

// List returns uploads newest first with total count.
func (r *UploadRepository) List(ctx context.Context, limit, offset int) ([]models.Upload, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	const query = `SELECT id, filename, original_name, mime_type, size, path, uploaded_by, created_at
FROM uploads ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	var uploads []models.Upload
	if err := r.db.SelectContext(ctx, &uploads, query, limit, offset); err != nil {
		return nil, 0, fmt.Errorf("list uploads: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM uploads`); err != nil {
		return nil, 0, fmt.Errorf("count uploads: %w", err)
	}

	return uploads, total, nil
}

// Delete removes an upload record.
func (r *UploadRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM uploads WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete upload: %w", err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
