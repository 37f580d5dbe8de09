package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/atelierhq/studio-cms-api/internal/models"
	appErrors "github.com/atelierhq/studio-cms-api/pkg/errors"
)

type userRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, id string) error
	RevokeUserSessions(ctx context.Context, userID string) error
}

// UserService manages user accounts under the access policy.
type UserService struct {
	repo     userRepository
	audit    auditLogger
	validate *validator.Validate
	logger   *zap.Logger
}

// NewUserService creates a new instance of UserService.
func NewUserService(repo userRepository, audit auditLogger, validate *validator.Validate, logger *zap.Logger) *UserService {
	return &UserService{
		repo:     repo,
		audit:    audit,
		validate: validate,
		logger:   logger,
	}
}

// List returns users matching the filter.
func (s *UserService) List(ctx context.Context, actor *models.JWTClaims, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	if actor == nil {
		return nil, nil, appErrors.ErrUnauthorized
	}
	if !Allowed(ActionUsersList, actor.Role) {
		return nil, nil, appErrors.ErrForbidden
	}

	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.FromError(err)
	}

	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 20
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	return users, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Get returns a single user. Admins may read anyone, others only themselves.
func (s *UserService) Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.User, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.UserID != id && !Allowed(ActionUsersList, actor.Role) {
		return nil, appErrors.ErrForbidden
	}

	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.FromError(err)
	}
	return user, nil
}

// Create adds a new user. Only super admins may create users with privileged
// roles.
func (s *UserService) Create(ctx context.Context, actor *models.JWTClaims, req models.CreateUserRequest, ip, userAgent string) (*models.User, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !Allowed(ActionUsersCreate, actor.Role) {
		return nil, appErrors.ErrForbidden
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid user payload")
	}
	if !req.Role.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown role")
	}
	if req.Role != models.RoleEditor && !Allowed(ActionUsersCreatePrivileged, actor.Role) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only super admins may create privileged users")
	}

	if _, err := s.repo.FindByEmail(ctx, req.Email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "a user with this email already exists")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.FromError(err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.FromError(err)
	}

	user := &models.User{
		Email:        req.Email,
		PasswordHash: string(hash),
		Name:         req.Name,
		Role:         req.Role,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, appErrors.FromError(err)
	}

	details, _ := json.Marshal(map[string]interface{}{"email": user.Email, "role": user.Role})
	s.recordAudit(ctx, &models.AuditLog{
		UserID:    &actor.UserID,
		UserEmail: actor.Email,
		Action:    models.AuditActionUserCreate,
		Resource:  user.ID,
		Details:   details,
		IPAddress: ip,
		UserAgent: userAgent,
	})

	return user, nil
}

// Update applies a partial update. Role changes require super admin.
func (s *UserService) Update(ctx context.Context, actor *models.JWTClaims, id string, req models.UpdateUserRequest, ip, userAgent string) (*models.User, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.UserID != id && !Allowed(ActionUsersList, actor.Role) {
		return nil, appErrors.ErrForbidden
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid user payload")
	}

	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.FromError(err)
	}

	changed := make([]string, 0, 4)

	if req.Email != nil && *req.Email != user.Email {
		existing, err := s.repo.FindByEmail(ctx, *req.Email)
		if err == nil && existing.ID != user.ID {
			return nil, appErrors.Clone(appErrors.ErrConflict, "a user with this email already exists")
		}
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.FromError(err)
		}
		user.Email = *req.Email
		changed = append(changed, "email")
	}
	if req.Name != nil && *req.Name != user.Name {
		user.Name = *req.Name
		changed = append(changed, "name")
	}
	if req.Role != nil && *req.Role != user.Role {
		if !req.Role.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown role")
		}
		if !Allowed(ActionUsersChangeRole, actor.Role) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "only super admins may change roles")
		}
		user.Role = *req.Role
		changed = append(changed, "role")
	}
	if req.Avatar != nil {
		user.Avatar = req.Avatar
		changed = append(changed, "avatar")
	}
	if req.Password != nil {
		hash, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, appErrors.FromError(err)
		}
		user.PasswordHash = string(hash)
		changed = append(changed, "password")
	}

	if len(changed) == 0 {
		return user, nil
	}

	if err := s.repo.Update(ctx, user); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.FromError(err)
	}

	// An admin resetting someone's password invalidates their sessions.
	if req.Password != nil && actor.UserID != user.ID {
		if err := s.repo.RevokeUserSessions(ctx, user.ID); err != nil {
			s.logger.Warn("failed to revoke sessions after password reset", zap.String("user_id", user.ID), zap.Error(err))
		}
	}

	details, _ := json.Marshal(map[string]interface{}{"fields": changed})
	s.recordAudit(ctx, &models.AuditLog{
		UserID:    &actor.UserID,
		UserEmail: actor.Email,
		Action:    models.AuditActionUserUpdate,
		Resource:  user.ID,
		Details:   details,
		IPAddress: ip,
		UserAgent: userAgent,
	})

	return user, nil
}

// Delete permanently removes a user. Super admin only, and never yourself.
func (s *UserService) Delete(ctx context.Context, actor *models.JWTClaims, id, ip, userAgent string) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if !Allowed(ActionUsersDelete, actor.Role) {
		return appErrors.ErrForbidden
	}
	if actor.UserID == id {
		return appErrors.Clone(appErrors.ErrValidation, "cannot delete your own account")
	}

	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrNotFound
		}
		return appErrors.FromError(err)
	}

	if err := s.repo.RevokeUserSessions(ctx, id); err != nil {
		s.logger.Warn("failed to revoke sessions before delete", zap.String("user_id", id), zap.Error(err))
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrNotFound
		}
		return appErrors.FromError(err)
	}

	details, _ := json.Marshal(map[string]interface{}{"email": user.Email, "role": user.Role})
	s.recordAudit(ctx, &models.AuditLog{
		UserID:    &actor.UserID,
		UserEmail: actor.Email,
		Action:    models.AuditActionUserDelete,
		Resource:  id,
		Details:   details,
		IPAddress: ip,
		UserAgent: userAgent,
	})

	return nil
}

func (s *UserService) recordAudit(ctx context.Context, log *models.AuditLog) {
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to write audit log", zap.String("action", log.Action), zap.Error(err))
	}
}
