package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelierhq/studio-cms-api/internal/middleware"
	"github.com/atelierhq/studio-cms-api/internal/models"
	appErrors "github.com/atelierhq/studio-cms-api/pkg/errors"
)

type contentServiceMock struct {
	document   json.RawMessage
	entry      *models.ContentEntry
	upsertErr  error
	lastUpsert *models.UpsertContentRequest
	lastPatch  *models.UpdateContentAtPathRequest
	versions   []models.ContentVersion
}

func (m *contentServiceMock) GetDocument(ctx context.Context) (json.RawMessage, bool, error) {
	return m.document, false, nil
}

func (m *contentServiceMock) Get(ctx context.Context, key string) (*models.ContentEntry, error) {
	if m.entry == nil {
		return nil, appErrors.ErrNotFound
	}
	return m.entry, nil
}

func (m *contentServiceMock) Upsert(ctx context.Context, actor *models.JWTClaims, req models.UpsertContentRequest, ip, userAgent string) (*models.ContentVersion, error) {
	if m.upsertErr != nil {
		return nil, m.upsertErr
	}
	m.lastUpsert = &req
	return &models.ContentVersion{ContentKey: req.Key, Version: 1}, nil
}

func (m *contentServiceMock) BulkUpsert(ctx context.Context, actor *models.JWTClaims, req models.BulkUpsertContentRequest, ip, userAgent string) error {
	return nil
}

func (m *contentServiceMock) UpdateAtPath(ctx context.Context, actor *models.JWTClaims, req models.UpdateContentAtPathRequest, ip, userAgent string) (*models.ContentVersion, error) {
	m.lastPatch = &req
	return nil, nil
}

func (m *contentServiceMock) ListVersions(ctx context.Context, key string, limit, offset int) ([]models.ContentVersion, error) {
	return m.versions, nil
}

func (m *contentServiceMock) Restore(ctx context.Context, actor *models.JWTClaims, key string, version int, ip, userAgent string) (*models.ContentVersion, error) {
	return &models.ContentVersion{ContentKey: key, Version: version}, nil
}

func testContext(t *testing.T, method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, err := http.NewRequest(method, path, bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "u1", Email: "e@studio.dev", Role: models.RoleEditor})
	return c, w
}

func TestContentHandlerUpsertInvalidBody(t *testing.T) {
	handler := NewContentHandler(&contentServiceMock{})
	c, w := testContext(t, http.MethodPut, "/content", []byte(`not json`))

	handler.Upsert(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestContentHandlerUpsertPassesPayload(t *testing.T) {
	mock := &contentServiceMock{}
	handler := NewContentHandler(mock)
	body, _ := json.Marshal(models.UpsertContentRequest{
		Key:         "homepage",
		Value:       json.RawMessage(`{"title":"hi"}`),
		Description: "initial",
	})
	c, w := testContext(t, http.MethodPut, "/content", body)

	handler.Upsert(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, mock.lastUpsert)
	assert.Equal(t, "homepage", mock.lastUpsert.Key)
	assert.Equal(t, "initial", mock.lastUpsert.Description)
}

func TestContentHandlerUpsertSurfacesConflict(t *testing.T) {
	mock := &contentServiceMock{upsertErr: appErrors.ErrConflict}
	handler := NewContentHandler(mock)
	body, _ := json.Marshal(models.UpsertContentRequest{Key: "homepage", Value: json.RawMessage(`{}`)})
	c, w := testContext(t, http.MethodPut, "/content", body)

	handler.Upsert(c)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestContentHandlerGetNotFound(t *testing.T) {
	handler := NewContentHandler(&contentServiceMock{})
	c, w := testContext(t, http.MethodGet, "/content/ghost", nil)
	c.Params = gin.Params{{Key: "key", Value: "ghost"}}

	handler.Get(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestContentHandlerRestoreRejectsBadVersion(t *testing.T) {
	handler := NewContentHandler(&contentServiceMock{})
	c, w := testContext(t, http.MethodPost, "/content/homepage/versions/zero/restore", nil)
	c.Params = gin.Params{{Key: "key", Value: "homepage"}, {Key: "version", Value: "zero"}}

	handler.Restore(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestContentHandlerGetDocumentIncludesMeta(t *testing.T) {
	mock := &contentServiceMock{document: json.RawMessage(`{"homepage":{}}`)}
	handler := NewContentHandler(mock)
	c, w := testContext(t, http.MethodGet, "/content", nil)

	handler.GetDocument(c)
	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data json.RawMessage        `json:"data"`
		Meta map[string]interface{} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.JSONEq(t, `{"homepage":{}}`, string(envelope.Data))
	assert.Equal(t, false, envelope.Meta["cache_hit"])
}
