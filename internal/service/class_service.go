package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/short-course-api/internal/dto"
	"github.com/noah-isme/short-course-api/internal/models"
	"github.com/noah-isme/short-course-api/internal/repository"
	appErrors "github.com/noah-isme/short-course-api/pkg/errors"
)

type classRepository interface {
	FindByID(ctx context.Context, id int64) (*models.ClassDetail, error)
	CodeExists(ctx context.Context, code string, excludeID int64) (bool, error)
	List(ctx context.Context, filter models.ClassFilter) ([]models.ClassDetail, int, error)
	Create(ctx context.Context, class *models.Class) error
	LockByID(ctx context.Context, exec sqlx.ExtContext, id int64) (*models.Class, error)
	Update(ctx context.Context, exec sqlx.ExtContext, class *models.Class) error
	UpdateTeacher(ctx context.Context, id int64, teacherID *int64) error
	UpdateStatus(ctx context.Context, id int64, status models.ClassStatus) error
	Delete(ctx context.Context, id int64) error
}

type courseFinder interface {
	FindByID(ctx context.Context, id int64) (*models.CourseDetail, error)
}

type approvedCounter interface {
	CountApprovedByClass(ctx context.Context, classID int64) (int, error)
}

// ClassService manages class offerings of courses.
type ClassService struct {
	tx          txProvider
	repo        classRepository
	courses     courseFinder
	users       userFinder
	enrollments approvedCounter
	audit       auditWriter
	cache       *CacheService
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewClassService constructs the service.
func NewClassService(tx txProvider, repo classRepository, courses courseFinder, users userFinder, enrollments approvedCounter, audit auditWriter, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *ClassService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ClassService{tx: tx, repo: repo, courses: courses, users: users, enrollments: enrollments, audit: audit, cache: cache, validator: validate, logger: logger}
}

// Get returns a class with course and teacher details.
func (s *ClassService) Get(ctx context.Context, id int64) (*models.ClassDetail, error) {
	class, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, internalError(err, "failed to load class")
	}
	return class, nil
}

// List returns classes matching the filter.
func (s *ClassService) List(ctx context.Context, filter models.ClassFilter) ([]models.ClassDetail, *models.Pagination, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "invalid class status")
	}
	classes, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, internalError(err, "failed to list classes")
	}
	return classes, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// Create opens a new class. The seat counter starts at zero and the status at PENDING.
func (s *ClassService) Create(ctx context.Context, req dto.ClassRequest, actor Actor) (*models.ClassDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid class payload")
	}
	class := &models.Class{Status: models.ClassStatusPending}
	applyClassRequest(class, req)

	if err := s.checkClass(ctx, class, 0); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, class); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "class code already exists")
		}
		return nil, internalError(err, "failed to create class")
	}

	s.afterWrite(ctx)
	writeAudit(ctx, s.audit, s.logger, actor, models.AuditActionClassWrite, "classes", class.ID, nil,
		map[string]interface{}{"class_code": class.ClassCode, "course_id": class.CourseID})
	return s.Get(ctx, class.ID)
}

// Update edits a class. The class row is locked so capacity is checked against the
// head count approvals see.
func (s *ClassService) Update(ctx context.Context, id int64, req dto.ClassRequest, actor Actor) (detail *models.ClassDetail, err error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid class payload")
	}
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	class := existing.Class
	applyClassRequest(&class, req)
	if req.Status == "" {
		class.Status = existing.Status
	}
	if err := s.checkClass(ctx, &class, id); err != nil {
		return nil, err
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, internalError(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	locked, err := s.repo.LockByID(ctx, tx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = appErrors.Clone(appErrors.ErrNotFound, "class not found")
			return nil, err
		}
		err = internalError(err, "failed to lock class")
		return nil, err
	}
	if class.MaxStudents < locked.CurrentStudents {
		err = appErrors.Clone(appErrors.ErrPreconditionFailed, "max students cannot be lower than current students")
		return nil, err
	}
	class.CurrentStudents = locked.CurrentStudents
	if err = s.repo.Update(ctx, tx, &class); err != nil {
		if repository.IsUniqueViolation(err) {
			err = appErrors.Clone(appErrors.ErrConflict, "class code already exists")
			return nil, err
		}
		err = internalError(err, "failed to update class")
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		err = internalError(err, "failed to commit class")
		return nil, err
	}

	s.afterWrite(ctx)
	writeAudit(ctx, s.audit, s.logger, actor, models.AuditActionClassWrite, "classes", id,
		map[string]interface{}{"max_students": existing.MaxStudents, "status": existing.Status},
		map[string]interface{}{"max_students": class.MaxStudents, "status": class.Status})
	return s.Get(ctx, id)
}

// AssignTeacher sets or clears the teacher of a class.
func (s *ClassService) AssignTeacher(ctx context.Context, id int64, teacherID *int64, actor Actor) (*models.ClassDetail, error) {
	if teacherID != nil {
		if err := s.requireTeacher(ctx, *teacherID); err != nil {
			return nil, err
		}
	}
	if err := s.repo.UpdateTeacher(ctx, id, teacherID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, internalError(err, "failed to assign teacher")
	}
	s.afterWrite(ctx)
	writeAudit(ctx, s.audit, s.logger, actor, models.AuditActionClassWrite, "classes", id, nil, map[string]interface{}{"teacher_id": teacherID})
	return s.Get(ctx, id)
}

// ChangeStatus moves the class through its lifecycle.
func (s *ClassService) ChangeStatus(ctx context.Context, id int64, status models.ClassStatus, actor Actor) (*models.ClassDetail, error) {
	if !status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid class status")
	}
	if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, internalError(err, "failed to update class status")
	}
	s.afterWrite(ctx)
	writeAudit(ctx, s.audit, s.logger, actor, models.AuditActionClassWrite, "classes", id, nil, map[string]interface{}{"status": status})
	return s.Get(ctx, id)
}

// Delete removes a class without approved students.
func (s *ClassService) Delete(ctx context.Context, id int64, actor Actor) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	approved, err := s.enrollments.CountApprovedByClass(ctx, id)
	if err != nil {
		return internalError(err, "failed to count enrollments")
	}
	if approved > 0 {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "class still has approved enrollments")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		if repository.IsForeignKeyViolation(err) {
			return appErrors.Clone(appErrors.ErrPreconditionFailed, "class still has enrollment history")
		}
		return internalError(err, "failed to delete class")
	}
	s.afterWrite(ctx)
	writeAudit(ctx, s.audit, s.logger, actor, models.AuditActionClassWrite, "classes", id, nil, map[string]bool{"deleted": true})
	return nil
}

func applyClassRequest(class *models.Class, req dto.ClassRequest) {
	class.CourseID = req.CourseID
	class.TeacherID = req.TeacherID
	class.ClassCode = strings.ToUpper(strings.TrimSpace(req.ClassCode))
	class.ClassName = strings.TrimSpace(req.ClassName)
	class.StartDate = req.StartDate
	class.EndDate = req.EndDate
	class.MaxStudents = req.MaxStudents
	class.Room = req.Room
	if req.Status != "" {
		class.Status = req.Status
	}
}

func (s *ClassService) checkClass(ctx context.Context, class *models.Class, excludeID int64) error {
	if class.StartDate != nil && class.EndDate != nil && !class.EndDate.After(*class.StartDate) {
		return appErrors.Clone(appErrors.ErrValidation, "end date must be after start date")
	}
	if _, err := s.courses.FindByID(ctx, class.CourseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return internalError(err, "failed to load course")
	}
	if class.TeacherID != nil {
		if err := s.requireTeacher(ctx, *class.TeacherID); err != nil {
			return err
		}
	}
	taken, err := s.repo.CodeExists(ctx, class.ClassCode, excludeID)
	if err != nil {
		return internalError(err, "failed to check class code")
	}
	if taken {
		return appErrors.Clone(appErrors.ErrConflict, "class code already exists")
	}
	return nil
}

func (s *ClassService) requireTeacher(ctx context.Context, teacherID int64) error {
	user, err := s.users.FindByID(ctx, teacherID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return internalError(err, "failed to load teacher")
	}
	if user.Role != models.RoleTeacher {
		return appErrors.Clone(appErrors.ErrValidation, "assigned user is not a teacher")
	}
	return nil
}

func (s *ClassService) afterWrite(ctx context.Context) {
	invalidateCache(ctx, s.cache, cacheKeyCatalog+"*", cacheKeyDashboard+"*")
}
