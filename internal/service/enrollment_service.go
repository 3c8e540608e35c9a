package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/short-course-api/internal/dto"
	"github.com/noah-isme/short-course-api/internal/models"
	"github.com/noah-isme/short-course-api/internal/repository"
	appErrors "github.com/noah-isme/short-course-api/pkg/errors"
)

type enrollmentRepository interface {
	FindByID(ctx context.Context, id int64) (*models.EnrollmentDetail, error)
	LockByID(ctx context.Context, exec sqlx.ExtContext, id int64) (*models.Enrollment, error)
	Exists(ctx context.Context, studentID, classID int64) (bool, error)
	Create(ctx context.Context, enrollment *models.Enrollment) error
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, enrollment *models.Enrollment) error
	UpdatePayment(ctx context.Context, exec sqlx.ExtContext, id int64, amount float64, status models.PaymentStatus) error
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	History(ctx context.Context, studentID int64) ([]models.EnrollmentDetail, error)
}

type enrollmentClassRepository interface {
	FindByID(ctx context.Context, id int64) (*models.ClassDetail, error)
	LockByID(ctx context.Context, exec sqlx.ExtContext, id int64) (*models.Class, error)
	AdjustCurrentStudents(ctx context.Context, exec sqlx.ExtContext, id int64, delta int) error
	IsTaughtBy(ctx context.Context, classID, teacherID int64) (bool, error)
}

// EnrollmentService drives the enrollment state machine:
// PENDING -> APPROVED | REJECTED | DROPPED, APPROVED -> COMPLETED | DROPPED.
type EnrollmentService struct {
	tx          txProvider
	enrollments enrollmentRepository
	classes     enrollmentClassRepository
	users       userFinder
	audit       auditWriter
	cache       *CacheService
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// EnrollmentServiceParams groups constructor dependencies.
type EnrollmentServiceParams struct {
	Tx          txProvider
	Enrollments enrollmentRepository
	Classes     enrollmentClassRepository
	Users       userFinder
	Audit       auditWriter
	Cache       *CacheService
	Metrics     *MetricsService
	Validator   *validator.Validate
	Logger      *zap.Logger
}

// NewEnrollmentService constructs the service.
func NewEnrollmentService(params EnrollmentServiceParams) *EnrollmentService {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	validate := params.Validator
	if validate == nil {
		validate = validator.New()
	}
	return &EnrollmentService{
		tx:          params.Tx,
		enrollments: params.Enrollments,
		classes:     params.Classes,
		users:       params.Users,
		audit:       params.Audit,
		cache:       params.Cache,
		metrics:     params.Metrics,
		validator:   validate,
		logger:      logger,
		now:         time.Now,
	}
}

// Create registers a PENDING enrollment. STUDENT callers always enroll themselves.
func (s *EnrollmentService) Create(ctx context.Context, req dto.EnrollRequest, actor Actor) (*models.EnrollmentDetail, error) {
	if actor.IsStudent() {
		req.StudentID = actor.ID
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid enrollment payload")
	}
	if req.StudentID <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student_id is required")
	}

	student, err := s.users.FindByID(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, internalError(err, "failed to load student")
	}
	if student.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrValidation, "only students can be enrolled")
	}

	exists, err := s.enrollments.Exists(ctx, req.StudentID, req.ClassID)
	if err != nil {
		return nil, internalError(err, "failed to check enrollment")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "student is already enrolled in this class")
	}

	class, err := s.classes.FindByID(ctx, req.ClassID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, internalError(err, "failed to load class")
	}
	if class.Full() {
		return nil, appErrors.Clone(appErrors.ErrClassFull, "")
	}
	if class.Status.Closed() {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, fmt.Sprintf("class is %s", strings.ToLower(string(class.Status))))
	}

	enrollment := &models.Enrollment{
		StudentID:      req.StudentID,
		ClassID:        req.ClassID,
		EnrollmentDate: s.now().UTC(),
		Status:         models.EnrollmentStatusPending,
		PaymentStatus:  models.PaymentStatusUnpaid,
		Notes:          req.Notes,
	}
	if err := s.enrollments.Create(ctx, enrollment); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "student is already enrolled in this class")
		}
		return nil, internalError(err, "failed to create enrollment")
	}

	s.afterTransition(ctx, actor, enrollment.ID, "", enrollment.Status)
	return s.fetch(ctx, enrollment.ID)
}

// Approve accepts a PENDING enrollment and takes one seat of its class.
func (s *EnrollmentService) Approve(ctx context.Context, id int64, actor Actor) (*models.EnrollmentDetail, error) {
	previous, err := s.transition(ctx, id, func(ctx context.Context, tx *sqlx.Tx, e *models.Enrollment) error {
		if e.Status != models.EnrollmentStatusPending {
			return appErrors.Clone(appErrors.ErrPreconditionFailed, fmt.Sprintf("cannot approve a %s enrollment", strings.ToLower(string(e.Status))))
		}
		class, err := s.classes.LockByID(ctx, tx, e.ClassID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "class not found")
			}
			return internalError(err, "failed to lock class")
		}
		if class.Full() {
			return appErrors.Clone(appErrors.ErrClassFull, "")
		}
		s.stamp(e, models.EnrollmentStatusApproved, actor)
		if err := s.enrollments.UpdateStatus(ctx, tx, e); err != nil {
			return internalError(err, "failed to approve enrollment")
		}
		if err := s.classes.AdjustCurrentStudents(ctx, tx, class.ID, 1); err != nil {
			return internalError(err, "failed to update class seats")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.afterTransition(ctx, actor, id, previous, models.EnrollmentStatusApproved)
	return s.fetch(ctx, id)
}

// Reject declines a PENDING enrollment and keeps the reason in its notes.
func (s *EnrollmentService) Reject(ctx context.Context, id int64, reason string, actor Actor) (*models.EnrollmentDetail, error) {
	previous, err := s.transition(ctx, id, func(ctx context.Context, tx *sqlx.Tx, e *models.Enrollment) error {
		if e.Status != models.EnrollmentStatusPending {
			return appErrors.Clone(appErrors.ErrPreconditionFailed, fmt.Sprintf("cannot reject a %s enrollment", strings.ToLower(string(e.Status))))
		}
		s.stamp(e, models.EnrollmentStatusRejected, actor)
		reason = strings.TrimSpace(reason)
		e.Notes = &reason
		if err := s.enrollments.UpdateStatus(ctx, tx, e); err != nil {
			return internalError(err, "failed to reject enrollment")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.afterTransition(ctx, actor, id, previous, models.EnrollmentStatusRejected)
	return s.fetch(ctx, id)
}

// Cancel drops an enrollment. An approved seat is released, never below zero.
func (s *EnrollmentService) Cancel(ctx context.Context, id int64, actor Actor) (*models.EnrollmentDetail, error) {
	previous, err := s.transition(ctx, id, func(ctx context.Context, tx *sqlx.Tx, e *models.Enrollment) error {
		if actor.IsStudent() && e.StudentID != actor.ID {
			return appErrors.Clone(appErrors.ErrForbidden, "you can only cancel your own enrollment")
		}
		switch e.Status {
		case models.EnrollmentStatusRejected, models.EnrollmentStatusCompleted, models.EnrollmentStatusDropped:
			return appErrors.Clone(appErrors.ErrPreconditionFailed, fmt.Sprintf("cannot cancel a %s enrollment", strings.ToLower(string(e.Status))))
		}
		if e.Status == models.EnrollmentStatusApproved {
			if err := s.classes.AdjustCurrentStudents(ctx, tx, e.ClassID, -1); err != nil {
				return internalError(err, "failed to release class seat")
			}
		}
		e.Status = models.EnrollmentStatusDropped
		if err := s.enrollments.UpdateStatus(ctx, tx, e); err != nil {
			return internalError(err, "failed to cancel enrollment")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.afterTransition(ctx, actor, id, previous, models.EnrollmentStatusDropped)
	return s.fetch(ctx, id)
}

// Complete marks an APPROVED enrollment as finished.
func (s *EnrollmentService) Complete(ctx context.Context, id int64, actor Actor) (*models.EnrollmentDetail, error) {
	previous, err := s.transition(ctx, id, func(ctx context.Context, tx *sqlx.Tx, e *models.Enrollment) error {
		if e.Status != models.EnrollmentStatusApproved {
			return appErrors.Clone(appErrors.ErrPreconditionFailed, "only approved enrollments can be completed")
		}
		e.Status = models.EnrollmentStatusCompleted
		if err := s.enrollments.UpdateStatus(ctx, tx, e); err != nil {
			return internalError(err, "failed to complete enrollment")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.afterTransition(ctx, actor, id, previous, models.EnrollmentStatusCompleted)
	return s.fetch(ctx, id)
}

// UpdatePayment replaces the paid total with amount and derives the payment status from the course fee.
func (s *EnrollmentService) UpdatePayment(ctx context.Context, id int64, amount float64, actor Actor) (detail *models.EnrollmentDetail, err error) {
	if amount < 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "payment amount must not be negative")
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

	enrollment, err := s.lock(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	class, err := s.classes.FindByID(ctx, enrollment.ClassID)
	if err != nil {
		err = internalError(err, "failed to load class")
		return nil, err
	}

	total := roundMoney(amount)
	status := PaymentStatusFor(total, class.TuitionFee)
	if err = s.enrollments.UpdatePayment(ctx, tx, id, total, status); err != nil {
		err = internalError(err, "failed to update payment")
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		err = internalError(err, "failed to commit payment")
		return nil, err
	}

	writeAudit(ctx, s.audit, s.logger, actor, models.AuditActionPayment, "enrollments", id,
		map[string]interface{}{"payment_amount": enrollment.PaymentAmount, "payment_status": enrollment.PaymentStatus},
		map[string]interface{}{"payment_amount": total, "payment_status": status})
	return s.fetch(ctx, id)
}

// PaymentStatusFor derives the payment status of a cumulative total against a tuition fee.
// A course without a fee never reaches PAID.
func PaymentStatusFor(total float64, fee *float64) models.PaymentStatus {
	paid := toCents(total)
	if fee != nil && paid >= toCents(*fee) {
		return models.PaymentStatusPaid
	}
	if paid > 0 {
		return models.PaymentStatusPartial
	}
	return models.PaymentStatusUnpaid
}

func toCents(v float64) int64 {
	return int64(math.Round(v * 100))
}

func roundMoney(v float64) float64 {
	return float64(toCents(v)) / 100
}

// Get returns one enrollment visible to the actor.
func (s *EnrollmentService) Get(ctx context.Context, id int64, actor Actor) (*models.EnrollmentDetail, error) {
	detail, err := s.fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	switch {
	case actor.IsStudent() && detail.StudentID != actor.ID:
		return nil, appErrors.Clone(appErrors.ErrForbidden, "enrollment belongs to another student")
	case actor.IsTeacher():
		if err := s.requireTeaching(ctx, detail.ClassID, actor); err != nil {
			return nil, err
		}
	}
	return detail, nil
}

// List returns enrollments. Students only see their own, teachers only those of a class they teach.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter, actor Actor) ([]models.EnrollmentDetail, *models.Pagination, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "invalid enrollment status")
	}
	switch {
	case actor.IsStudent():
		id := actor.ID
		filter.StudentID = &id
	case actor.IsTeacher():
		if filter.ClassID == nil {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, "class_id is required")
		}
		if err := s.requireTeaching(ctx, *filter.ClassID, actor); err != nil {
			return nil, nil, err
		}
	}
	items, total, err := s.enrollments.List(ctx, filter)
	if err != nil {
		return nil, nil, internalError(err, "failed to list enrollments")
	}
	return items, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// History returns every enrollment of a student with class, course, teacher and approver names.
func (s *EnrollmentService) History(ctx context.Context, studentID int64, actor Actor) ([]models.EnrollmentDetail, error) {
	if actor.IsStudent() && studentID != actor.ID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "history belongs to another student")
	}
	items, err := s.enrollments.History(ctx, studentID)
	if err != nil {
		return nil, internalError(err, "failed to load enrollment history")
	}
	return items, nil
}

// transition runs apply against the locked enrollment inside one transaction and
// returns the status the enrollment had before.
func (s *EnrollmentService) transition(ctx context.Context, id int64, apply func(ctx context.Context, tx *sqlx.Tx, e *models.Enrollment) error) (previous models.EnrollmentStatus, err error) {
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return "", internalError(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	enrollment, err := s.lock(ctx, tx, id)
	if err != nil {
		return "", err
	}
	previous = enrollment.Status
	if err = apply(ctx, tx, enrollment); err != nil {
		return "", err
	}
	if err = tx.Commit(); err != nil {
		err = internalError(err, "failed to commit enrollment")
		return "", err
	}
	return previous, nil
}

func (s *EnrollmentService) lock(ctx context.Context, tx *sqlx.Tx, id int64) (*models.Enrollment, error) {
	enrollment, err := s.enrollments.LockByID(ctx, tx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, internalError(err, "failed to lock enrollment")
	}
	return enrollment, nil
}

func (s *EnrollmentService) stamp(e *models.Enrollment, status models.EnrollmentStatus, actor Actor) {
	now := s.now().UTC()
	approver := actor.ID
	e.Status = status
	e.ApprovedBy = &approver
	e.ApprovedAt = &now
}

func (s *EnrollmentService) fetch(ctx context.Context, id int64) (*models.EnrollmentDetail, error) {
	detail, err := s.enrollments.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, internalError(err, "failed to load enrollment")
	}
	return detail, nil
}

func (s *EnrollmentService) requireTeaching(ctx context.Context, classID int64, actor Actor) error {
	ok, err := s.classes.IsTaughtBy(ctx, classID, actor.ID)
	if err != nil {
		return internalError(err, "failed to check class ownership")
	}
	if !ok {
		return appErrors.Clone(appErrors.ErrForbidden, "class is taught by another teacher")
	}
	return nil
}

func (s *EnrollmentService) afterTransition(ctx context.Context, actor Actor, id int64, from, to models.EnrollmentStatus) {
	s.metrics.RecordEnrollmentTransition(to)
	invalidateCache(ctx, s.cache, cacheKeyDashboard+"*")
	var before interface{}
	if from != "" {
		before = map[string]interface{}{"status": from}
	}
	writeAudit(ctx, s.audit, s.logger, actor, models.AuditActionEnrollment, "enrollments", id, before, map[string]interface{}{"status": to})
}
