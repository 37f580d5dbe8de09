package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/atelierhq/studio-cms-api/internal/models"
)

// ErrVersionConflict is returned when an expected-version precondition fails.
var ErrVersionConflict = errors.New("content version conflict")

// VersionedWrite bundles everything a single-key content write persists
// atomically: the new entry, the snapshot metadata and the audit record.
type VersionedWrite struct {
	Entry           models.ContentEntry
	Description     string
	ExpectedVersion *int
	Audit           models.AuditLog
}

// ContentRepository provides database access for the content document and its
// version history.
type ContentRepository struct {
	db *sqlx.DB
}

// NewContentRepository creates a new instance of ContentRepository.
func NewContentRepository(db *sqlx.DB) *ContentRepository {
	return &ContentRepository{db: db}
}

// Get returns the content entry for a key.
func (r *ContentRepository) Get(ctx context.Context, key string) (*models.ContentEntry, error) {
	const query = `SELECT key, value, updated_at, updated_by FROM content WHERE key = $1 LIMIT 1`
	var entry models.ContentEntry
	if err := r.db.GetContext(ctx, &entry, query, key); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get content: %w", err)
	}
	return &entry, nil
}

// ListAll returns every content entry ordered by key.
func (r *ContentRepository) ListAll(ctx context.Context) ([]models.ContentEntry, error) {
	const query = `SELECT key, value, updated_at, updated_by FROM content ORDER BY key ASC`
	var entries []models.ContentEntry
	if err := r.db.SelectContext(ctx, &entries, query); err != nil {
		return nil, fmt.Errorf("list content: %w", err)
	}
	return entries, nil
}

// MaxVersion returns the highest stored version for a key, zero when none.
func (r *ContentRepository) MaxVersion(ctx context.Context, key string) (int, error) {
	const query = `SELECT COALESCE(MAX(version), 0) FROM content_versions WHERE content_key = $1`
	var version int
	if err := r.db.GetContext(ctx, &version, query, key); err != nil {
		return 0, fmt.Errorf("max content version: %w", err)
	}
	return version, nil
}

// UpsertWithVersion replaces the value stored under a key inside a single
// transaction: when the key already exists the prior value is snapshotted into
// content_versions with version = max+1 before the content row is updated, and
// the audit record is appended last. A failed step rolls everything back so no
// partial write becomes visible. Brand-new keys produce no snapshot and the
// returned version is nil.
func (r *ContentRepository) UpsertWithVersion(ctx context.Context, write VersionedWrite) (*models.ContentVersion, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin content tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()

	var existing models.ContentEntry
	exists := true
	err = tx.GetContext(ctx, &existing, `SELECT key, value, updated_at, updated_by FROM content WHERE key = $1 FOR UPDATE`, write.Entry.Key)
	if err != nil {
		if err != sql.ErrNoRows {
			return nil, fmt.Errorf("lock content row: %w", err)
		}
		exists = false
	}

	var maxVersion int
	if err := tx.GetContext(ctx, &maxVersion, `SELECT COALESCE(MAX(version), 0) FROM content_versions WHERE content_key = $1`, write.Entry.Key); err != nil {
		return nil, fmt.Errorf("max content version: %w", err)
	}

	if write.ExpectedVersion != nil && *write.ExpectedVersion != maxVersion {
		return nil, ErrVersionConflict
	}

	var snapshot *models.ContentVersion
	if exists {
		snapshot = &models.ContentVersion{
			ID:                uuid.NewString(),
			ContentKey:        write.Entry.Key,
			Value:             existing.Value,
			Version:           maxVersion + 1,
			CreatedAt:         now,
			CreatedBy:         write.Entry.UpdatedBy,
			ChangeDescription: write.Description,
		}
		const insertVersion = `INSERT INTO content_versions (id, content_key, value, version, created_at, created_by, change_description)
VALUES (:id, :content_key, :value, :version, :created_at, :created_by, :change_description)`
		if _, err := tx.NamedExecContext(ctx, insertVersion, snapshot); err != nil {
			return nil, fmt.Errorf("insert content version: %w", err)
		}
	}

	write.Entry.UpdatedAt = now
	const upsert = `INSERT INTO content (key, value, updated_at, updated_by)
VALUES (:key, :value, :updated_at, :updated_by)
ON CONFLICT (key)
DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at, updated_by = EXCLUDED.updated_by`
	if _, err := tx.NamedExecContext(ctx, upsert, write.Entry); err != nil {
		return nil, fmt.Errorf("upsert content: %w", err)
	}

	if err := insertAuditLogTx(ctx, tx, &write.Audit); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit content tx: %w", err)
	}
	return snapshot, nil
}

// BulkUpsert replaces the value of every provided entry and appends exactly one
// audit record, all within one transaction. Bulk writes do not snapshot
// history.
func (r *ContentRepository) BulkUpsert(ctx context.Context, entries []models.ContentEntry, audit models.AuditLog) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin bulk content tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	const upsert = `INSERT INTO content (key, value, updated_at, updated_by)
VALUES (:key, :value, :updated_at, :updated_by)
ON CONFLICT (key)
DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at, updated_by = EXCLUDED.updated_by`
	for i := range entries {
		entries[i].UpdatedAt = now
		if _, err := tx.NamedExecContext(ctx, upsert, entries[i]); err != nil {
			return fmt.Errorf("bulk upsert content: %w", err)
		}
	}

	if err := insertAuditLogTx(ctx, tx, &audit); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit bulk content tx: %w", err)
	}
	return nil
}

// ListVersions returns the history for a key, newest first.
func (r *ContentRepository) ListVersions(ctx context.Context, key string, limit, offset int) ([]models.ContentVersion, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	const query = `SELECT id, content_key, value, version, created_at, created_by, change_description
FROM content_versions WHERE content_key = $1 ORDER BY version DESC LIMIT $2 OFFSET $3`
	var versions []models.ContentVersion
	if err := r.db.SelectContext(ctx, &versions, query, key, limit, offset); err != nil {
		return nil, fmt.Errorf("list content versions: %w", err)
	}
	return versions, nil
}

// GetVersion returns one historical snapshot.
func (r *ContentRepository) GetVersion(ctx context.Context, key string, version int) (*models.ContentVersion, error) {
	const query = `SELECT id, content_key, value, version, created_at, created_by, change_description
FROM content_versions WHERE content_key = $1 AND version = $2 LIMIT 1`
	var snapshot models.ContentVersion
	if err := r.db.GetContext(ctx, &snapshot, query, key, version); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get content version: %w", err)
	}
	return &snapshot, nil
}

func insertAuditLogTx(ctx context.Context, tx *sqlx.Tx, log *models.AuditLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO audit_log (id, user_id, user_email, action, resource, details, ip_address, user_agent, created_at)
VALUES (:id, :user_id, :user_email, :action, :resource, :details, :ip_address, :user_agent, :created_at)`
	if _, err := tx.NamedExecContext(ctx, query, log); err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}
