package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/short-course-api/internal/dto"
	"github.com/noah-isme/short-course-api/internal/models"
	"github.com/noah-isme/short-course-api/internal/repository"
	appErrors "github.com/noah-isme/short-course-api/pkg/errors"
)

type courseRepository interface {
	ListTypes(ctx context.Context) ([]models.CourseType, error)
	FindTypeByID(ctx context.Context, id int64) (*models.CourseType, error)
	TypeCodeExists(ctx context.Context, code string, excludeID int64) (bool, error)
	CreateType(ctx context.Context, ct *models.CourseType) error
	UpdateType(ctx context.Context, ct *models.CourseType) error
	DeleteType(ctx context.Context, id int64) error

	FindByID(ctx context.Context, id int64) (*models.CourseDetail, error)
	CodeExists(ctx context.Context, code string, excludeID int64) (bool, error)
	List(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, int, error)
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, course *models.Course) error
	UpdateStatus(ctx context.Context, id int64, status models.CourseStatus) error
	Delete(ctx context.Context, id int64) error
}

// CatalogPage is the cached shape of a public catalog listing.
type CatalogPage struct {
	Courses    []models.CourseDetail `json:"courses"`
	Pagination *models.Pagination    `json:"pagination"`
}

// CourseService manages course types and courses.
type CourseService struct {
	repo      courseRepository
	audit     auditWriter
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
	cacheTTL  time.Duration
}

// NewCourseService constructs the service. cache may be nil.
func NewCourseService(repo courseRepository, audit auditWriter, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &CourseService{repo: repo, audit: audit, cache: cache, validator: validate, logger: logger, cacheTTL: 10 * time.Minute}
}

// ListTypes returns every course type.
func (s *CourseService) ListTypes(ctx context.Context) ([]models.CourseType, error) {
	types, err := s.repo.ListTypes(ctx)
	if err != nil {
		return nil, internalError(err, "failed to list course types")
	}
	return types, nil
}

// GetType returns a single course type.
func (s *CourseService) GetType(ctx context.Context, id int64) (*models.CourseType, error) {
	ct, err := s.repo.FindTypeByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course type not found")
		}
		return nil, internalError(err, "failed to load course type")
	}
	return ct, nil
}

// CreateType adds a course type with a unique code.
func (s *CourseService) CreateType(ctx context.Context, req dto.CourseTypeRequest, actor Actor) (*models.CourseType, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid course type payload")
	}
	ct := &models.CourseType{Name: strings.TrimSpace(req.Name), Code: strings.ToUpper(strings.TrimSpace(req.Code)), Description: req.Description}
	if err := s.ensureTypeCodeFree(ctx, ct.Code, 0); err != nil {
		return nil, err
	}
	if err := s.repo.CreateType(ctx, ct); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "course type code already exists")
		}
		return nil, internalError(err, "failed to create course type")
	}
	writeAudit(ctx, s.audit, s.logger, actor, models.AuditActionCourseWrite, "course_types", ct.ID, nil, ct)
	return ct, nil
}

// UpdateType edits a course type.
func (s *CourseService) UpdateType(ctx context.Context, id int64, req dto.CourseTypeRequest, actor Actor) (*models.CourseType, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid course type payload")
	}
	ct, err := s.GetType(ctx, id)
	if err != nil {
		return nil, err
	}
	ct.Name = strings.TrimSpace(req.Name)
	ct.Code = strings.ToUpper(strings.TrimSpace(req.Code))
	ct.Description = req.Description
	if err := s.ensureTypeCodeFree(ctx, ct.Code, id); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateType(ctx, ct); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "course type code already exists")
		}
		return nil, internalError(err, "failed to update course type")
	}
	invalidateCache(ctx, s.cache, cacheKeyCatalog+"*")
	writeAudit(ctx, s.audit, s.logger, actor, models.AuditActionCourseWrite, "course_types", ct.ID, nil, ct)
	return ct, nil
}

// DeleteType removes a course type. Courses of that type keep existing without one.
func (s *CourseService) DeleteType(ctx context.Context, id int64, actor Actor) error {
	if err := s.repo.DeleteType(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "course type not found")
		}
		return internalError(err, "failed to delete course type")
	}
	invalidateCache(ctx, s.cache, cacheKeyCatalog+"*")
	writeAudit(ctx, s.audit, s.logger, actor, models.AuditActionCourseWrite, "course_types", id, nil, map[string]bool{"deleted": true})
	return nil
}

func (s *CourseService) ensureTypeCodeFree(ctx context.Context, code string, excludeID int64) error {
	taken, err := s.repo.TypeCodeExists(ctx, code, excludeID)
	if err != nil {
		return internalError(err, "failed to check course type code")
	}
	if taken {
		return appErrors.Clone(appErrors.ErrConflict, "course type code already exists")
	}
	return nil
}

// Get returns a course with its type name.
func (s *CourseService) Get(ctx context.Context, id int64) (*models.CourseDetail, error) {
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, internalError(err, "failed to load course")
	}
	return course, nil
}

// List returns courses matching the filter.
func (s *CourseService) List(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, *models.Pagination, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "invalid course status")
	}
	courses, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, internalError(err, "failed to list courses")
	}
	return courses, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// Catalog lists ACTIVE courses for the public catalog. The boolean reports a cache hit.
func (s *CourseService) Catalog(ctx context.Context, filter models.CourseFilter) (*CatalogPage, bool, error) {
	filter.Status = models.CourseStatusActive
	key := fmt.Sprintf("%scourses:%v:%s:%d:%d:%s:%s", cacheKeyCatalog, typeKey(filter.CourseTypeID),
		strings.ToLower(filter.Search), filter.Page, filter.PageSize, filter.SortBy, filter.SortOrder)

	if s.cache.Enabled() {
		var cached CatalogPage
		hit, err := s.cache.Get(ctx, key, &cached)
		if err == nil && hit {
			return &cached, true, nil
		}
	}

	courses, pagination, err := s.List(ctx, filter)
	if err != nil {
		return nil, false, err
	}
	page := &CatalogPage{Courses: courses, Pagination: pagination}
	if s.cache.Enabled() {
		_ = s.cache.Set(ctx, key, page, s.cacheTTL)
	}
	return page, false, nil
}

func typeKey(id *int64) string {
	if id == nil {
		return "all"
	}
	return fmt.Sprintf("%d", *id)
}

// Create adds a course. New courses start as DRAFT unless a status is given.
func (s *CourseService) Create(ctx context.Context, req dto.CourseRequest, actor Actor) (*models.CourseDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid course payload")
	}
	course := &models.Course{}
	applyCourseRequest(course, req)
	if course.Status == "" {
		course.Status = models.CourseStatusDraft
	}
	createdBy := actor.ID
	if createdBy > 0 {
		course.CreatedBy = &createdBy
	}

	if err := s.checkCourseRefs(ctx, course, 0); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, course); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "course code already exists")
		}
		return nil, internalError(err, "failed to create course")
	}

	invalidateCache(ctx, s.cache, cacheKeyCatalog+"*", cacheKeyDashboard+"admin*")
	writeAudit(ctx, s.audit, s.logger, actor, models.AuditActionCourseWrite, "courses", course.ID, nil,
		map[string]interface{}{"code": course.Code, "status": course.Status})
	return s.Get(ctx, course.ID)
}

// Update replaces the editable fields of a course.
func (s *CourseService) Update(ctx context.Context, id int64, req dto.CourseRequest, actor Actor) (*models.CourseDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid course payload")
	}
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	course := existing.Course
	applyCourseRequest(&course, req)
	if req.Status == "" {
		course.Status = existing.Status
	}

	if err := s.checkCourseRefs(ctx, &course, id); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, &course); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "course code already exists")
		}
		return nil, internalError(err, "failed to update course")
	}

	invalidateCache(ctx, s.cache, cacheKeyCatalog+"*", cacheKeyDashboard+"admin*")
	writeAudit(ctx, s.audit, s.logger, actor, models.AuditActionCourseWrite, "courses", id,
		map[string]interface{}{"code": existing.Code, "status": existing.Status},
		map[string]interface{}{"code": course.Code, "status": course.Status})
	return s.Get(ctx, id)
}

// ChangeStatus publishes or withdraws a course.
func (s *CourseService) ChangeStatus(ctx context.Context, id int64, status models.CourseStatus, actor Actor) (*models.CourseDetail, error) {
	if !status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid course status")
	}
	if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, internalError(err, "failed to update course status")
	}
	invalidateCache(ctx, s.cache, cacheKeyCatalog+"*", cacheKeyDashboard+"admin*")
	writeAudit(ctx, s.audit, s.logger, actor, models.AuditActionCourseWrite, "courses", id, nil, map[string]interface{}{"status": status})
	return s.Get(ctx, id)
}

// Delete removes a course that has no classes.
func (s *CourseService) Delete(ctx context.Context, id int64, actor Actor) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		if repository.IsForeignKeyViolation(err) {
			return appErrors.Clone(appErrors.ErrPreconditionFailed, "course still has classes")
		}
		return internalError(err, "failed to delete course")
	}
	invalidateCache(ctx, s.cache, cacheKeyCatalog+"*", cacheKeyDashboard+"admin*")
	writeAudit(ctx, s.audit, s.logger, actor, models.AuditActionCourseWrite, "courses", id, nil, map[string]bool{"deleted": true})
	return nil
}

func applyCourseRequest(course *models.Course, req dto.CourseRequest) {
	course.CourseTypeID = req.CourseTypeID
	course.Code = strings.ToUpper(strings.TrimSpace(req.Code))
	course.Name = strings.TrimSpace(req.Name)
	course.Description = req.Description
	course.DurationHours = req.DurationHours
	course.DurationSessions = req.DurationSessions
	course.TuitionFee = req.TuitionFee
	course.MaxStudents = req.MaxStudents
	course.Requirements = req.Requirements
	if req.Status != "" {
		course.Status = req.Status
	}
}

func (s *CourseService) checkCourseRefs(ctx context.Context, course *models.Course, excludeID int64) error {
	taken, err := s.repo.CodeExists(ctx, course.Code, excludeID)
	if err != nil {
		return internalError(err, "failed to check course code")
	}
	if taken {
		return appErrors.Clone(appErrors.ErrConflict, "course code already exists")
	}
	if course.CourseTypeID != nil {
		if _, err := s.GetType(ctx, *course.CourseTypeID); err != nil {
			return err
		}
	}
	return nil
}
