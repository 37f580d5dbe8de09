package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/atelierhq/studio-cms-api/internal/models"
)

// AuditRepository persists and queries the append-only audit trail.
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository creates a new instance of AuditRepository.
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// CreateAuditLog stores an audit log entry.
func (r *AuditRepository) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO audit_log (id, user_id, user_email, action, resource, details, ip_address, user_agent, created_at)
VALUES (:id, :user_id, :user_email, :action, :resource, :details, :ip_address, :user_agent, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, log); err != nil {
		return fmt.Errorf("create audit log: %w", err)
	}
	return nil
}

// List returns audit entries newest first with total count.
func (r *AuditRepository) List(ctx context.Context, limit, offset int) ([]models.AuditLog, int, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	const query = `SELECT id, user_id, user_email, action, resource, details, ip_address, user_agent, created_at
FROM audit_log ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	var logs []models.AuditLog
	if err := r.db.SelectContext(ctx, &logs, query, limit, offset); err != nil {
		return nil, 0, fmt.Errorf("list audit log: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM audit_log`); err != nil {
		return nil, 0, fmt.Errorf("count audit log: %w", err)
	}

	return logs, total, nil
}
