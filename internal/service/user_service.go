package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/short-course-api/internal/dto"
	"github.com/noah-isme/short-course-api/internal/models"
	"github.com/noah-isme/short-course-api/internal/repository"
	appErrors "github.com/noah-isme/short-course-api/pkg/errors"
)

type userRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	FindByID(ctx context.Context, id int64) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	UpdateStatus(ctx context.Context, id int64, status models.UserStatus) error
	UpdatePassword(ctx context.Context, id int64, passwordHash string, updatedAt time.Time) error
	RevokeUserRefreshTokens(ctx context.Context, userID int64) error
	Delete(ctx context.Context, id int64) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// UserServiceConfig toggles optional account flows.
type UserServiceConfig struct {
	SelfRegistration bool
}

// UserService handles user management workflows.
type UserService struct {
	repo      userRepository
	validator *validator.Validate
	logger    *zap.Logger
	config    UserServiceConfig
}

// NewUserService creates an instance of UserService.
func NewUserService(repo userRepository, validate *validator.Validate, logger *zap.Logger, config UserServiceConfig) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &UserService{repo: repo, validator: validate, logger: logger, config: config}
}

// List returns paginated users and pagination metadata.
func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	if filter.Role != nil && !filter.Role.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "invalid role filter")
	}
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "invalid status filter")
	}
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}
	return users, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// Get returns a user by ID.
func (s *UserService) Get(ctx context.Context, id int64) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}

// Create adds a new user on behalf of an admin.
func (s *UserService) Create(ctx context.Context, req dto.CreateUserRequest, actor Actor) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid create user payload")
	}
	status := req.Status
	if status == "" {
		status = models.UserStatusActive
	}
	user, err := s.insert(ctx, req.Username, req.Email, req.FullName, req.Phone, req.Password, req.Role, status)
	if err != nil {
		return nil, err
	}

	writeAudit(ctx, s.repo, s.logger, actor, models.AuditActionUserCreate, "users", user.ID, nil,
		map[string]interface{}{"username": user.Username, "email": user.Email, "role": user.Role})
	return user, nil
}

// Register creates a STUDENT account through self-service sign-up.
func (s *UserService) Register(ctx context.Context, req dto.RegisterRequest, meta models.RequestMeta) (*models.User, error) {
	if !s.config.SelfRegistration {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "self registration is disabled")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid registration payload")
	}
	user, err := s.insert(ctx, req.Username, req.Email, req.FullName, req.Phone, req.Password, models.RoleStudent, models.UserStatusActive)
	if err != nil {
		return nil, err
	}

	writeAudit(ctx, s.repo, s.logger, Actor{ID: user.ID, Role: user.Role, Meta: meta}, models.AuditActionRegister, "users", user.ID, nil,
		map[string]interface{}{"username": user.Username})
	return user, nil
}

func (s *UserService) insert(ctx context.Context, username, email, fullName string, phone *string, password string, role models.UserRole, status models.UserStatus) (*models.User, error) {
	username = strings.TrimSpace(username)
	email = strings.ToLower(strings.TrimSpace(email))

	if _, err := s.repo.FindByUsername(ctx, username); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "username already exists")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check username uniqueness")
	}
	if _, err := s.repo.FindByEmail(ctx, email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already exists")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email uniqueness")
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		Username:     username,
		Email:        email,
		FullName:     strings.TrimSpace(fullName),
		Phone:        phone,
		Role:         role,
		Status:       status,
		PasswordHash: string(passwordHash),
	}
	if err := s.repo.Create(ctx, user); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "username or email already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}
	return user, nil
}

// Update modifies the user attributes.
func (s *UserService) Update(ctx context.Context, id int64, req dto.UpdateUserRequest, actor Actor) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid update payload")
	}

	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email != user.Email {
		if other, err := s.repo.FindByEmail(ctx, email); err == nil && other.ID != user.ID {
			return nil, appErrors.Clone(appErrors.ErrConflict, "email already exists")
		} else if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email uniqueness")
		}
	}

	before := map[string]interface{}{"email": user.Email, "role": user.Role, "status": user.Status}

	user.Email = email
	user.FullName = req.FullName
	user.Phone = req.Phone
	user.Role = req.Role
	if req.Status != "" {
		user.Status = req.Status
	}

	if err := s.repo.Update(ctx, user); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "email already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update user")
	}

	writeAudit(ctx, s.repo, s.logger, actor, models.AuditActionUserUpdate, "users", user.ID, before,
		map[string]interface{}{"email": user.Email, "role": user.Role, "status": user.Status})
	return user, nil
}

// UpdateProfile lets the signed-in user edit their own contact details.
func (s *UserService) UpdateProfile(ctx context.Context, userID int64, req dto.UpdateProfileRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid profile payload")
	}
	user, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	user.FullName = req.FullName
	user.Phone = req.Phone
	user.AvatarURL = req.AvatarURL
	if err := s.repo.Update(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update profile")
	}
	return user, nil
}

// ChangeStatus activates, deactivates or suspends an account. Leaving ACTIVE revokes open sessions.
func (s *UserService) ChangeStatus(ctx context.Context, id int64, req dto.ChangeStatusRequest, actor Actor) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload")
	}
	if id == actor.ID && req.Status != models.UserStatusActive {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "cannot deactivate your own account")
	}
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	previous := user.Status
	if err := s.repo.UpdateStatus(ctx, id, req.Status); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update status")
	}
	user.Status = req.Status
	if req.Status != models.UserStatusActive {
		if err := s.repo.RevokeUserRefreshTokens(ctx, id); err != nil {
			s.logger.Warn("failed to revoke refresh tokens", zap.Int64("user_id", id), zap.Error(err))
		}
	}

	writeAudit(ctx, s.repo, s.logger, actor, models.AuditActionUserUpdate, "users", id,
		map[string]interface{}{"status": previous}, map[string]interface{}{"status": user.Status})
	return user, nil
}

// ResetPassword sets a new password chosen by an admin.
func (s *UserService) ResetPassword(ctx context.Context, id int64, req dto.ResetPasswordRequest, actor Actor) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid password payload")
	}
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}
	if err := s.repo.UpdatePassword(ctx, id, string(hash), time.Now().UTC()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reset password")
	}
	if err := s.repo.RevokeUserRefreshTokens(ctx, id); err != nil {
		s.logger.Warn("failed to revoke refresh tokens after reset", zap.Int64("user_id", id), zap.Error(err))
	}

	writeAudit(ctx, s.repo, s.logger, actor, models.AuditActionPasswordReset, "users", id, nil, nil)
	return nil
}

// Delete removes a user permanently.
func (s *UserService) Delete(ctx context.Context, id int64, actor Actor) error {
	if id == actor.ID {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "cannot delete your own account")
	}
	user, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		if repository.IsForeignKeyViolation(err) {
			return appErrors.Clone(appErrors.ErrPreconditionFailed, "user still has enrollments or attendance records")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete user")
	}

	writeAudit(ctx, s.repo, s.logger, actor, models.AuditActionUserDelete, "users", id,
		map[string]interface{}{"username": user.Username, "role": user.Role}, nil)
	return nil
}
