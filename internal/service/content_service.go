package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/atelierhq/studio-cms-api/internal/models"
	"github.com/atelierhq/studio-cms-api/internal/repository"
	"github.com/atelierhq/studio-cms-api/pkg/config"
	appErrors "github.com/atelierhq/studio-cms-api/pkg/errors"
	"github.com/atelierhq/studio-cms-api/pkg/jsonpath"
)

// ContentCacheKey is where the rendered site document lives in Redis.
const ContentCacheKey = "content:document"

type contentRepository interface {
	ListAll(ctx context.Context) ([]models.ContentEntry, error)
	Get(ctx context.Context, key string) (*models.ContentEntry, error)
	UpsertWithVersion(ctx context.Context, write repository.VersionedWrite) (*models.ContentVersion, error)
	BulkUpsert(ctx context.Context, entries []models.ContentEntry, audit models.AuditLog) error
	ListVersions(ctx context.Context, key string, limit, offset int) ([]models.ContentVersion, error)
	GetVersion(ctx context.Context, key string, version int) (*models.ContentVersion, error)
}

type contentCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

type rebuildNotifier interface {
	NotifyContentChanged(keys []string)
}

type contentMetrics interface {
	ContentWrite(key string)
	CacheHit()
	CacheMiss()
}

// ContentService owns the site content document: reads, versioned writes,
// nested-path patches, history and restores.
type ContentService struct {
	repo     contentRepository
	cache    contentCache
	notifier rebuildNotifier
	metrics  contentMetrics
	validate *validator.Validate
	logger   *zap.Logger
	cfg      config.ContentConfig
}

// NewContentService creates a new instance of ContentService. Notifier and
// metrics may be nil.
func NewContentService(repo contentRepository, cache contentCache, notifier rebuildNotifier, metrics contentMetrics, validate *validator.Validate, logger *zap.Logger, cfg config.ContentConfig) *ContentService {
	return &ContentService{
		repo:     repo,
		cache:    cache,
		notifier: notifier,
		metrics:  metrics,
		validate: validate,
		logger:   logger,
		cfg:      cfg,
	}
}

// GetDocument returns the merged content document keyed by content key. The
// second return reports whether the payload came from cache.
func (s *ContentService) GetDocument(ctx context.Context) (json.RawMessage, bool, error) {
	if cached, err := s.cache.Get(ctx, ContentCacheKey); err == nil {
		s.cacheHit()
		return cached, true, nil
	}
	s.cacheMiss()

	entries, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, false, appErrors.FromError(err)
	}

	document := make(map[string]json.RawMessage, len(entries))
	for _, entry := range entries {
		document[entry.Key] = entry.Value
	}
	payload, err := json.Marshal(document)
	if err != nil {
		return nil, false, appErrors.FromError(err)
	}

	if err := s.cache.Set(ctx, ContentCacheKey, payload, s.cfg.CacheTTL); err != nil {
		s.logger.Warn("failed to cache content document", zap.Error(err))
	}
	return payload, false, nil
}

// Get returns a single content entry.
func (s *ContentService) Get(ctx context.Context, key string) (*models.ContentEntry, error) {
	entry, err := s.repo.Get(ctx, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.FromError(err)
	}
	return entry, nil
}

// Upsert replaces the value under a key. Existing values are snapshotted into
// the version history before being overwritten; the snapshot is returned, nil
// for brand-new keys.
func (s *ContentService) Upsert(ctx context.Context, actor *models.JWTClaims, req models.UpsertContentRequest, ip, userAgent string) (*models.ContentVersion, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !Allowed(ActionContentWrite, actor.Role) {
		return nil, appErrors.ErrForbidden
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid content payload")
	}
	if err := s.checkKey(req.Key); err != nil {
		return nil, err
	}
	if !json.Valid(req.Value) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "value is not valid JSON")
	}

	description := req.Description
	if description == "" {
		description = fmt.Sprintf("Updated %s", req.Key)
	}

	details, _ := json.Marshal(map[string]interface{}{"description": description})
	write := repository.VersionedWrite{
		Entry: models.ContentEntry{
			Key:       req.Key,
			Value:     req.Value,
			UpdatedBy: &actor.UserID,
		},
		Description:     description,
		ExpectedVersion: req.ExpectedVersion,
		Audit: models.AuditLog{
			UserID:    &actor.UserID,
			UserEmail: actor.Email,
			Action:    models.AuditActionContentUpdate,
			Resource:  req.Key,
			Details:   details,
			IPAddress: ip,
			UserAgent: userAgent,
		},
	}

	snapshot, err := s.repo.UpsertWithVersion(ctx, write)
	if err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "content was modified by someone else, reload and retry")
		}
		return nil, appErrors.FromError(err)
	}

	s.afterWrite(ctx, req.Key)
	return snapshot, nil
}

// BulkUpsert replaces several keys at once. Bulk writes skip the version
// history and produce a single audit record listing the touched keys.
func (s *ContentService) BulkUpsert(ctx context.Context, actor *models.JWTClaims, req models.BulkUpsertContentRequest, ip, userAgent string) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if !Allowed(ActionContentWrite, actor.Role) {
		return appErrors.ErrForbidden
	}
	if len(req.Entries) == 0 {
		return appErrors.Clone(appErrors.ErrValidation, "entries must not be empty")
	}

	keys := make([]string, 0, len(req.Entries))
	for key, value := range req.Entries {
		if err := s.checkKey(key); err != nil {
			return err
		}
		if !json.Valid(value) {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("value for %q is not valid JSON", key))
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	entries := make([]models.ContentEntry, 0, len(keys))
	for _, key := range keys {
		entries = append(entries, models.ContentEntry{
			Key:       key,
			Value:     req.Entries[key],
			UpdatedBy: &actor.UserID,
		})
	}

	details, _ := json.Marshal(map[string]interface{}{"keys": keys})
	audit := models.AuditLog{
		UserID:    &actor.UserID,
		UserEmail: actor.Email,
		Action:    models.AuditActionContentBulkUpdate,
		Resource:  "all",
		Details:   details,
		IPAddress: ip,
		UserAgent: userAgent,
	}

	if err := s.repo.BulkUpsert(ctx, entries, audit); err != nil {
		return appErrors.FromError(err)
	}

	s.afterWrite(ctx, keys...)
	return nil
}

// UpdateAtPath assigns a value at a nested path inside the stored document for
// a key, then persists the result as a normal versioned write. A path that
// does not resolve fails instead of silently writing nothing.
func (s *ContentService) UpdateAtPath(ctx context.Context, actor *models.JWTClaims, req models.UpdateContentAtPathRequest, ip, userAgent string) (*models.ContentVersion, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !Allowed(ActionContentWrite, actor.Role) {
		return nil, appErrors.ErrForbidden
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid content payload")
	}
	if err := s.checkKey(req.Key); err != nil {
		return nil, err
	}

	entry, err := s.repo.Get(ctx, req.Key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.FromError(err)
	}

	var root interface{}
	if err := json.Unmarshal(entry.Value, &root); err != nil {
		return nil, appErrors.FromError(err)
	}
	updated, err := jsonpath.Set(root, req.Path, req.Value)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "path does not resolve")
	}
	value, err := json.Marshal(updated)
	if err != nil {
		return nil, appErrors.FromError(err)
	}

	description := req.Description
	if description == "" {
		description = fmt.Sprintf("Updated %s at %s", req.Key, strings.Join(req.Path, "."))
	}

	return s.Upsert(ctx, actor, models.UpsertContentRequest{
		Key:         req.Key,
		Value:       value,
		Description: description,
	}, ip, userAgent)
}

// ListVersions returns the history of a key, newest first.
func (s *ContentService) ListVersions(ctx context.Context, key string, limit, offset int) ([]models.ContentVersion, error) {
	versions, err := s.repo.ListVersions(ctx, key, limit, offset)
	if err != nil {
		return nil, appErrors.FromError(err)
	}
	return versions, nil
}

// Restore writes a historical snapshot back as the current value. The restore
// itself is a versioned write, so the replaced value stays recoverable.
func (s *ContentService) Restore(ctx context.Context, actor *models.JWTClaims, key string, version int, ip, userAgent string) (*models.ContentVersion, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !Allowed(ActionContentWrite, actor.Role) {
		return nil, appErrors.ErrForbidden
	}

	snapshot, err := s.repo.GetVersion(ctx, key, version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.FromError(err)
	}

	return s.Upsert(ctx, actor, models.UpsertContentRequest{
		Key:         key,
		Value:       snapshot.Value,
		Description: fmt.Sprintf("Restored version %d", version),
	}, ip, userAgent)
}

func (s *ContentService) checkKey(key string) error {
	for _, allowed := range s.cfg.AllowedKeys {
		if allowed == key {
			return nil
		}
	}
	return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown content key %q", key))
}

func (s *ContentService) afterWrite(ctx context.Context, keys ...string) {
	if err := s.cache.Delete(ctx, ContentCacheKey); err != nil {
		s.logger.Warn("failed to invalidate content cache", zap.Error(err))
	}
	if s.metrics != nil {
		for _, key := range keys {
			s.metrics.ContentWrite(key)
		}
	}
	if s.notifier != nil {
		s.notifier.NotifyContentChanged(keys)
	}
}

func (s *ContentService) cacheHit() {
	if s.metrics != nil {
		s.metrics.CacheHit()
	}
}

func (s *ContentService) cacheMiss() {
	if s.metrics != nil {
		s.metrics.CacheMiss()
	}
}
