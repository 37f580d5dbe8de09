package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/atelierhq/studio-cms-api/internal/models"
	"github.com/atelierhq/studio-cms-api/internal/repository"
	"github.com/atelierhq/studio-cms-api/pkg/config"
	appErrors "github.com/atelierhq/studio-cms-api/pkg/errors"
)

type contentRepoStub struct {
	entries map[string]*models.ContentEntry

	upserts   []repository.VersionedWrite
	upsertErr error
	snapshot  *models.ContentVersion

	bulkEntries []models.ContentEntry
	bulkAudit   *models.AuditLog

	versions []models.ContentVersion
}

func (s *contentRepoStub) ListAll(ctx context.Context) ([]models.ContentEntry, error) {
	out := make([]models.ContentEntry, 0, len(s.entries))
	for _, entry := range s.entries {
		out = append(out, *entry)
	}
	return out, nil
}

func (s *contentRepoStub) Get(ctx context.Context, key string) (*models.ContentEntry, error) {
	if entry, ok := s.entries[key]; ok {
		return entry, nil
	}
	return nil, sql.ErrNoRows
}

func (s *contentRepoStub) UpsertWithVersion(ctx context.Context, write repository.VersionedWrite) (*models.ContentVersion, error) {
	if s.upsertErr != nil {
		return nil, s.upsertErr
	}
	s.upserts = append(s.upserts, write)
	return s.snapshot, nil
}

func (s *contentRepoStub) BulkUpsert(ctx context.Context, entries []models.ContentEntry, audit models.AuditLog) error {
	s.bulkEntries = entries
	s.bulkAudit = &audit
	return nil
}

func (s *contentRepoStub) ListVersions(ctx context.Context, key string, limit, offset int) ([]models.ContentVersion, error) {
	return s.versions, nil
}

func (s *contentRepoStub) GetVersion(ctx context.Context, key string, version int) (*models.ContentVersion, error) {
	for i := range s.versions {
		if s.versions[i].Version == version && s.versions[i].ContentKey == key {
			return &s.versions[i], nil
		}
	}
	return nil, sql.ErrNoRows
}

type cacheStub struct {
	payload []byte
	deleted []string
	set     map[string][]byte
}

func (s *cacheStub) Get(ctx context.Context, key string) ([]byte, error) {
	if s.payload == nil {
		return nil, appErrors.ErrCacheMiss
	}
	return s.payload, nil
}

func (s *cacheStub) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	if s.set == nil {
		s.set = map[string][]byte{}
	}
	s.set[key] = payload
	return nil
}

func (s *cacheStub) Delete(ctx context.Context, keys ...string) error {
	s.deleted = append(s.deleted, keys...)
	return nil
}

type notifierStub struct {
	notified [][]string
}

func (s *notifierStub) NotifyContentChanged(keys []string) {
	s.notified = append(s.notified, keys)
}

func newContentService(repo *contentRepoStub, cache *cacheStub, notifier *notifierStub) *ContentService {
	return NewContentService(repo, cache, notifier, nil, validator.New(), zap.NewNop(), config.ContentConfig{
		AllowedKeys: []string{"homepage", "projects", "contactPage"},
		CacheTTL:    time.Minute,
	})
}

func editorClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "user-1", Email: "editor@studio.dev", Role: models.RoleEditor}
}

func TestContentUpsertRejectsUnknownKey(t *testing.T) {
	repo := &contentRepoStub{}
	svc := newContentService(repo, &cacheStub{}, &notifierStub{})

	_, err := svc.Upsert(context.Background(), editorClaims(), models.UpsertContentRequest{
		Key:   "secrets",
		Value: json.RawMessage(`{}`),
	}, "127.0.0.1", "test")

	require.Error(t, err)
	assert.Equal(t, 400, appErrors.FromError(err).Status)
	assert.Empty(t, repo.upserts)
}

func TestContentUpsertRequiresAuthentication(t *testing.T) {
	svc := newContentService(&contentRepoStub{}, &cacheStub{}, &notifierStub{})

	_, err := svc.Upsert(context.Background(), nil, models.UpsertContentRequest{
		Key:   "homepage",
		Value: json.RawMessage(`{}`),
	}, "", "")

	require.Error(t, err)
	assert.Equal(t, 401, appErrors.FromError(err).Status)
}

func TestContentUpsertDefaultsDescriptionAndInvalidatesCache(t *testing.T) {
	repo := &contentRepoStub{}
	cache := &cacheStub{}
	notifier := &notifierStub{}
	svc := newContentService(repo, cache, notifier)

	_, err := svc.Upsert(context.Background(), editorClaims(), models.UpsertContentRequest{
		Key:   "homepage",
		Value: json.RawMessage(`{"title":"new"}`),
	}, "127.0.0.1", "test")
	require.NoError(t, err)

	require.Len(t, repo.upserts, 1)
	write := repo.upserts[0]
	assert.Equal(t, "Updated homepage", write.Description)
	assert.Equal(t, models.AuditActionContentUpdate, write.Audit.Action)
	assert.Equal(t, "homepage", write.Audit.Resource)
	require.NotNil(t, write.Entry.UpdatedBy)
	assert.Equal(t, "user-1", *write.Entry.UpdatedBy)

	assert.Equal(t, []string{ContentCacheKey}, cache.deleted)
	require.Len(t, notifier.notified, 1)
	assert.Equal(t, []string{"homepage"}, notifier.notified[0])
}

func TestContentUpsertMapsVersionConflict(t *testing.T) {
	repo := &contentRepoStub{upsertErr: repository.ErrVersionConflict}
	svc := newContentService(repo, &cacheStub{}, &notifierStub{})

	expected := 3
	_, err := svc.Upsert(context.Background(), editorClaims(), models.UpsertContentRequest{
		Key:             "homepage",
		Value:           json.RawMessage(`{}`),
		ExpectedVersion: &expected,
	}, "", "")

	require.Error(t, err)
	assert.Equal(t, 409, appErrors.FromError(err).Status)
}

func TestContentBulkUpsertFailsFastOnUnknownKey(t *testing.T) {
	repo := &contentRepoStub{}
	svc := newContentService(repo, &cacheStub{}, &notifierStub{})

	err := svc.BulkUpsert(context.Background(), editorClaims(), models.BulkUpsertContentRequest{
		Entries: map[string]json.RawMessage{
			"homepage": json.RawMessage(`{}`),
			"secrets":  json.RawMessage(`{}`),
		},
	}, "", "")

	require.Error(t, err)
	assert.Equal(t, 400, appErrors.FromError(err).Status)
	assert.Nil(t, repo.bulkAudit)
}

func TestContentBulkUpsertWritesSingleAuditWithSortedKeys(t *testing.T) {
	repo := &contentRepoStub{}
	notifier := &notifierStub{}
	svc := newContentService(repo, &cacheStub{}, notifier)

	err := svc.BulkUpsert(context.Background(), editorClaims(), models.BulkUpsertContentRequest{
		Entries: map[string]json.RawMessage{
			"projects": json.RawMessage(`[]`),
			"homepage": json.RawMessage(`{}`),
		},
	}, "127.0.0.1", "test")
	require.NoError(t, err)

	require.NotNil(t, repo.bulkAudit)
	assert.Equal(t, models.AuditActionContentBulkUpdate, repo.bulkAudit.Action)
	assert.Equal(t, "all", repo.bulkAudit.Resource)

	var details map[string][]string
	require.NoError(t, json.Unmarshal(repo.bulkAudit.Details, &details))
	assert.Equal(t, []string{"homepage", "projects"}, details["keys"])

	require.Len(t, repo.bulkEntries, 2)
	assert.Equal(t, "homepage", repo.bulkEntries[0].Key)
	assert.Empty(t, repo.upserts)
	require.Len(t, notifier.notified, 1)
}

func TestContentUpdateAtPathRejectsUnresolvablePath(t *testing.T) {
	repo := &contentRepoStub{entries: map[string]*models.ContentEntry{
		"homepage": {Key: "homepage", Value: json.RawMessage(`{"hero":{"title":"hi"}}`)},
	}}
	svc := newContentService(repo, &cacheStub{}, &notifierStub{})

	_, err := svc.UpdateAtPath(context.Background(), editorClaims(), models.UpdateContentAtPathRequest{
		Key:   "homepage",
		Path:  []string{"missing", "title"},
		Value: "new",
	}, "", "")

	require.Error(t, err)
	assert.Equal(t, 400, appErrors.FromError(err).Status)
	assert.Empty(t, repo.upserts)
}

func TestContentUpdateAtPathWritesPatchedValue(t *testing.T) {
	repo := &contentRepoStub{entries: map[string]*models.ContentEntry{
		"homepage": {Key: "homepage", Value: json.RawMessage(`{"hero":{"title":"hi"}}`)},
	}}
	svc := newContentService(repo, &cacheStub{}, &notifierStub{})

	_, err := svc.UpdateAtPath(context.Background(), editorClaims(), models.UpdateContentAtPathRequest{
		Key:   "homepage",
		Path:  []string{"hero", "title"},
		Value: "welcome",
	}, "", "")
	require.NoError(t, err)

	require.Len(t, repo.upserts, 1)
	write := repo.upserts[0]
	assert.JSONEq(t, `{"hero":{"title":"welcome"}}`, string(write.Entry.Value))
	assert.Equal(t, "Updated homepage at hero.title", write.Description)
}

func TestContentGetDocumentCachesMergedPayload(t *testing.T) {
	repo := &contentRepoStub{entries: map[string]*models.ContentEntry{
		"homepage": {Key: "homepage", Value: json.RawMessage(`{"title":"hi"}`)},
		"projects": {Key: "projects", Value: json.RawMessage(`[]`)},
	}}
	cache := &cacheStub{}
	svc := newContentService(repo, cache, &notifierStub{})

	payload, cacheHit, err := svc.GetDocument(context.Background())
	require.NoError(t, err)
	assert.False(t, cacheHit)
	assert.JSONEq(t, `{"homepage":{"title":"hi"},"projects":[]}`, string(payload))
	assert.NotNil(t, cache.set[ContentCacheKey])
}

func TestContentGetDocumentServesFromCache(t *testing.T) {
	cache := &cacheStub{payload: []byte(`{"homepage":{}}`)}
	svc := newContentService(&contentRepoStub{}, cache, &notifierStub{})

	payload, cacheHit, err := svc.GetDocument(context.Background())
	require.NoError(t, err)
	assert.True(t, cacheHit)
	assert.JSONEq(t, `{"homepage":{}}`, string(payload))
}

func TestContentRestoreUnknownVersion(t *testing.T) {
	repo := &contentRepoStub{}
	svc := newContentService(repo, &cacheStub{}, &notifierStub{})

	_, err := svc.Restore(context.Background(), editorClaims(), "homepage", 9, "", "")
	require.Error(t, err)
	assert.Equal(t, 404, appErrors.FromError(err).Status)
}

func TestContentRestoreWritesSnapshotBack(t *testing.T) {
	repo := &contentRepoStub{versions: []models.ContentVersion{
		{ID: "v2", ContentKey: "homepage", Value: json.RawMessage(`{"title":"old"}`), Version: 2},
	}}
	svc := newContentService(repo, &cacheStub{}, &notifierStub{})

	_, err := svc.Restore(context.Background(), editorClaims(), "homepage", 2, "", "")
	require.NoError(t, err)

	require.Len(t, repo.upserts, 1)
	write := repo.upserts[0]
	assert.JSONEq(t, `{"title":"old"}`, string(write.Entry.Value))
	assert.Equal(t, "Restored version 2", write.Description)
}
