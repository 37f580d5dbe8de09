package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/atelierhq/studio-cms-api/internal/models"
	"github.com/atelierhq/studio-cms-api/pkg/config"
	appErrors "github.com/atelierhq/studio-cms-api/pkg/errors"
)

type authRepoStub struct {
	users    map[string]*models.User
	sessions map[string]*models.Session

	createdSessions []*models.Session
	revoked         []string
	revokedUsers    []string
	lastLogin       map[string]time.Time
}

func newAuthRepoStub() *authRepoStub {
	return &authRepoStub{
		users:     map[string]*models.User{},
		sessions:  map[string]*models.Session{},
		lastLogin: map[string]time.Time{},
	}
}

func (s *authRepoStub) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, user := range s.users {
		if user.Email == email {
			return user, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *authRepoStub) FindByID(ctx context.Context, id string) (*models.User, error) {
	if user, ok := s.users[id]; ok {
		return user, nil
	}
	return nil, sql.ErrNoRows
}

func (s *authRepoStub) Update(ctx context.Context, user *models.User) error {
	s.users[user.ID] = user
	return nil
}

func (s *authRepoStub) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	s.lastLogin[id] = at
	return nil
}

func (s *authRepoStub) CreateSession(ctx context.Context, session *models.Session) error {
	if session.ID == "" {
		session.ID = "sess-" + session.Token[:8]
	}
	s.sessions[session.Token] = session
	s.createdSessions = append(s.createdSessions, session)
	return nil
}

func (s *authRepoStub) FindSessionByToken(ctx context.Context, token string) (*models.Session, error) {
	if session, ok := s.sessions[token]; ok && !session.Revoked {
		return session, nil
	}
	return nil, sql.ErrNoRows
}

func (s *authRepoStub) RevokeSession(ctx context.Context, id string) error {
	for _, session := range s.sessions {
		if session.ID == id {
			session.Revoked = true
		}
	}
	s.revoked = append(s.revoked, id)
	return nil
}

func (s *authRepoStub) RevokeUserSessions(ctx context.Context, userID string) error {
	s.revokedUsers = append(s.revokedUsers, userID)
	return nil
}

func newAuthService(repo *authRepoStub, audit *auditStub) *AuthService {
	return NewAuthService(repo, audit, validator.New(), zap.NewNop(), config.JWTConfig{
		Secret:            "test-secret",
		Expiration:        time.Hour,
		RefreshExpiration: 24 * time.Hour,
	})
}

func seedUser(t *testing.T, repo *authRepoStub, password string) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	user := &models.User{
		ID:           "user-1",
		Email:        "editor@studio.dev",
		PasswordHash: string(hash),
		Name:         "Editor",
		Role:         models.RoleEditor,
	}
	repo.users[user.ID] = user
	return user
}

func TestAuthLoginSuccessIssuesTokensAndAudits(t *testing.T) {
	repo := newAuthRepoStub()
	audit := &auditStub{}
	svc := newAuthService(repo, audit)
	seedUser(t, repo, "correct-horse")

	result, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "editor@studio.dev",
		Password: "correct-horse",
		IP:       "127.0.0.1",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, result.AccessToken)
	assert.NotEmpty(t, result.RefreshToken)
	assert.Equal(t, models.RoleEditor, result.User.Role)
	require.Len(t, repo.createdSessions, 1)
	assert.NotZero(t, repo.lastLogin["user-1"])
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionLogin, audit.logs[0].Action)

	claims, err := svc.ValidateToken(result.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, models.RoleEditor, claims.Role)
}

func TestAuthLoginWrongPassword(t *testing.T) {
	repo := newAuthRepoStub()
	svc := newAuthService(repo, &auditStub{})
	seedUser(t, repo, "correct-horse")

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "editor@studio.dev",
		Password: "wrong",
	})
	require.Error(t, err)
	assert.Equal(t, 401, appErrors.FromError(err).Status)
}

func TestAuthLoginUnknownEmail(t *testing.T) {
	svc := newAuthService(newAuthRepoStub(), &auditStub{})

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "ghost@studio.dev",
		Password: "whatever",
	})
	require.Error(t, err)
	assert.Equal(t, 401, appErrors.FromError(err).Status)
}

func TestAuthRefreshRotatesSession(t *testing.T) {
	repo := newAuthRepoStub()
	svc := newAuthService(repo, &auditStub{})
	seedUser(t, repo, "correct-horse")

	login, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "editor@studio.dev",
		Password: "correct-horse",
	})
	require.NoError(t, err)

	refreshed, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{
		RefreshToken: login.RefreshToken,
	})
	require.NoError(t, err)
	assert.NotEqual(t, login.RefreshToken, refreshed.RefreshToken)
	require.Len(t, repo.revoked, 1)

	// The old token no longer resolves.
	_, err = svc.RefreshToken(context.Background(), models.RefreshTokenRequest{
		RefreshToken: login.RefreshToken,
	})
	require.Error(t, err)
	assert.Equal(t, 401, appErrors.FromError(err).Status)
}

func TestAuthChangePasswordRequiresCurrentPassword(t *testing.T) {
	repo := newAuthRepoStub()
	svc := newAuthService(repo, &auditStub{})
	seedUser(t, repo, "correct-horse")

	err := svc.ChangePassword(context.Background(), "user-1", models.ChangePasswordRequest{
		OldPassword: "wrong",
		NewPassword: "new-password",
	})
	require.Error(t, err)
	assert.Equal(t, 401, appErrors.FromError(err).Status)
}

func TestAuthChangePasswordRevokesSessions(t *testing.T) {
	repo := newAuthRepoStub()
	svc := newAuthService(repo, &auditStub{})
	user := seedUser(t, repo, "correct-horse")
	oldHash := user.PasswordHash

	err := svc.ChangePassword(context.Background(), "user-1", models.ChangePasswordRequest{
		OldPassword: "correct-horse",
		NewPassword: "new-password",
	})
	require.NoError(t, err)
	assert.NotEqual(t, oldHash, repo.users["user-1"].PasswordHash)
	assert.Equal(t, []string{"user-1"}, repo.revokedUsers)
}

func TestAuthValidateTokenRejectsGarbage(t *testing.T) {
	svc := newAuthService(newAuthRepoStub(), &auditStub{})

	_, err := svc.ValidateToken("not-a-token")
	require.Error(t, err)
	assert.Equal(t, 401, appErrors.FromError(err).Status)
}
