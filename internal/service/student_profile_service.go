package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/short-course-api/internal/dto"
	"github.com/noah-isme/short-course-api/internal/models"
	"github.com/noah-isme/short-course-api/internal/repository"
	appErrors "github.com/noah-isme/short-course-api/pkg/errors"
)

type studentProfileRepository interface {
	FindByUserID(ctx context.Context, userID int64) (*models.StudentProfile, error)
	ExistsByCode(ctx context.Context, code string, excludeUserID int64) (bool, error)
	Upsert(ctx context.Context, profile *models.StudentProfile) error
}

type userFinder interface {
	FindByID(ctx context.Context, id int64) (*models.User, error)
}

// StudentProfileService manages the extra records kept for student accounts.
type StudentProfileService struct {
	repo      studentProfileRepository
	users     userFinder
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStudentProfileService constructs the service.
func NewStudentProfileService(repo studentProfileRepository, users userFinder, validate *validator.Validate, logger *zap.Logger) *StudentProfileService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &StudentProfileService{repo: repo, users: users, validator: validate, logger: logger}
}

// Get returns the profile of a student. A student without a stored profile gets an empty one.
func (s *StudentProfileService) Get(ctx context.Context, userID int64) (*models.StudentProfile, error) {
	if err := s.requireStudent(ctx, userID); err != nil {
		return nil, err
	}
	profile, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &models.StudentProfile{UserID: userID}, nil
		}
		return nil, internalError(err, "failed to load student profile")
	}
	return profile, nil
}

// Upsert writes the profile of a student.
func (s *StudentProfileService) Upsert(ctx context.Context, userID int64, req dto.StudentProfileRequest) (*models.StudentProfile, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid student profile payload")
	}
	if err := s.requireStudent(ctx, userID); err != nil {
		return nil, err
	}

	if req.StudentCode != nil {
		code := strings.TrimSpace(*req.StudentCode)
		req.StudentCode = &code
		if code != "" {
			taken, err := s.repo.ExistsByCode(ctx, code, userID)
			if err != nil {
				return nil, internalError(err, "failed to check student code")
			}
			if taken {
				return nil, appErrors.Clone(appErrors.ErrConflict, "student code already in use")
			}
		}
	}

	profile := &models.StudentProfile{
		UserID:       userID,
		StudentCode:  req.StudentCode,
		DateOfBirth:  req.DateOfBirth,
		PlaceOfBirth: req.PlaceOfBirth,
		Address:      req.Address,
		Major:        req.Major,
	}
	if err := s.repo.Upsert(ctx, profile); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "student code already in use")
		}
		return nil, internalError(err, "failed to save student profile")
	}
	return profile, nil
}

func (s *StudentProfileService) requireStudent(ctx context.Context, userID int64) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return internalError(err, "failed to load user")
	}
	if user.Role != models.RoleStudent {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "profile sheets exist only for students")
	}
	return nil
}
