package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/atelierhq/studio-cms-api/internal/models"
)

func newContentRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestContentRepositoryUpsertSnapshotsExistingValue(t *testing.T) {
	db, mock, cleanup := newContentRepoMock(t)
	defer cleanup()

	repo := NewContentRepository(db)
	actor := "user-1"

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT key, value, updated_at, updated_by FROM content WHERE key")).
		WithArgs("homepage").
		WillReturnRows(sqlmock.NewRows([]string{"key", "value", "updated_at", "updated_by"}).
			AddRow("homepage", []byte(`{"title":"old"}`), time.Now(), &actor))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(MAX(version), 0) FROM content_versions")).
		WithArgs("homepage").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(2))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO content_versions")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO content")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_log")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	snapshot, err := repo.UpsertWithVersion(context.Background(), VersionedWrite{
		Entry: models.ContentEntry{
			Key:       "homepage",
			Value:     json.RawMessage(`{"title":"new"}`),
			UpdatedBy: &actor,
		},
		Description: "typo fix",
		Audit: models.AuditLog{
			UserID:    &actor,
			UserEmail: "editor@studio.dev",
			Action:    models.AuditActionContentUpdate,
			Resource:  "homepage",
		},
	})
	require.NoError(t, err)
	require.NotNil(t, snapshot)
	require.Equal(t, 3, snapshot.Version)
	require.JSONEq(t, `{"title":"old"}`, string(snapshot.Value))
	require.Equal(t, "typo fix", snapshot.ChangeDescription)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestContentRepositoryUpsertNewKeyProducesNoSnapshot(t *testing.T) {
	db, mock, cleanup := newContentRepoMock(t)
	defer cleanup()

	repo := NewContentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT key, value, updated_at, updated_by FROM content WHERE key")).
		WithArgs("projects").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(MAX(version), 0) FROM content_versions")).
		WithArgs("projects").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO content")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_log")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	snapshot, err := repo.UpsertWithVersion(context.Background(), VersionedWrite{
		Entry: models.ContentEntry{Key: "projects", Value: json.RawMessage(`[]`)},
		Audit: models.AuditLog{Action: models.AuditActionContentUpdate, Resource: "projects"},
	})
	require.NoError(t, err)
	require.Nil(t, snapshot)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestContentRepositoryUpsertExpectedVersionMismatch(t *testing.T) {
	db, mock, cleanup := newContentRepoMock(t)
	defer cleanup()

	repo := NewContentRepository(db)
	actor := "user-1"

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT key, value, updated_at, updated_by FROM content WHERE key")).
		WithArgs("homepage").
		WillReturnRows(sqlmock.NewRows([]string{"key", "value", "updated_at", "updated_by"}).
			AddRow("homepage", []byte(`{}`), time.Now(), &actor))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(MAX(version), 0) FROM content_versions")).
		WithArgs("homepage").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(5))
	mock.ExpectRollback()

	expected := 4
	_, err := repo.UpsertWithVersion(context.Background(), VersionedWrite{
		Entry:           models.ContentEntry{Key: "homepage", Value: json.RawMessage(`{}`)},
		ExpectedVersion: &expected,
		Audit:           models.AuditLog{Action: models.AuditActionContentUpdate, Resource: "homepage"},
	})
	require.ErrorIs(t, err, ErrVersionConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestContentRepositoryBulkUpsertWritesSingleAuditRow(t *testing.T) {
	db, mock, cleanup := newContentRepoMock(t)
	defer cleanup()

	repo := NewContentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO content")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO content")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_log")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	entries := []models.ContentEntry{
		{Key: "homepage", Value: json.RawMessage(`{}`)},
		{Key: "projects", Value: json.RawMessage(`[]`)},
	}
	err := repo.BulkUpsert(context.Background(), entries, models.AuditLog{
		Action:   models.AuditActionContentBulkUpdate,
		Resource: "all",
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestContentRepositoryListVersionsNewestFirst(t *testing.T) {
	db, mock, cleanup := newContentRepoMock(t)
	defer cleanup()

	repo := NewContentRepository(db)
	rows := sqlmock.NewRows([]string{"id", "content_key", "value", "version", "created_at", "created_by", "change_description"}).
		AddRow("v2", "homepage", []byte(`{}`), 2, time.Now(), nil, "second").
		AddRow("v1", "homepage", []byte(`{}`), 1, time.Now(), nil, "first")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, content_key, value, version")).
		WithArgs("homepage", 50, 0).
		WillReturnRows(rows)

	versions, err := repo.ListVersions(context.Background(), "homepage", 50, 0)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	require.Equal(t, 2, versions[0].Version)
	require.NoError(t, mock.ExpectationsWereMet())
}
