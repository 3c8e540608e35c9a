package service

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/short-course-api/internal/dto"
	"github.com/noah-isme/short-course-api/internal/models"
	"github.com/noah-isme/short-course-api/internal/repository"
	appErrors "github.com/noah-isme/short-course-api/pkg/errors"
)

type attendanceRepository interface {
	FindByID(ctx context.Context, id int64) (*models.Attendance, error)
	FindByScheduleAndStudent(ctx context.Context, exec sqlx.ExtContext, scheduleID, studentID int64) (*models.Attendance, error)
	Create(ctx context.Context, exec sqlx.ExtContext, attendance *models.Attendance) error
	Update(ctx context.Context, exec sqlx.ExtContext, attendance *models.Attendance) error
	Delete(ctx context.Context, id int64) error
	ListBySchedule(ctx context.Context, scheduleID int64) ([]models.AttendanceRecord, error)
	ListByStudentAndClass(ctx context.Context, studentID, classID int64) ([]models.AttendanceRecord, error)
	CountForStudentInClass(ctx context.Context, studentID, classID int64) (int, int, error)
	CountBySchedule(ctx context.Context, scheduleID int64) ([]models.AttendanceStatusCount, error)
	ListUnmarked(ctx context.Context, scheduleID int64) ([]models.StudentReference, error)
}

type attendanceScheduleReader interface {
	FindByID(ctx context.Context, id int64) (*models.ScheduleDetail, error)
}

type attendanceEnrollmentReader interface {
	FindByStudentAndClass(ctx context.Context, studentID, classID int64) (*models.Enrollment, error)
	ListApprovedByClass(ctx context.Context, exec sqlx.ExtContext, classID int64) ([]models.EnrollmentDetail, error)
}

// AttendanceService records roll calls for class sessions.
type AttendanceService struct {
	tx          txProvider
	repo        attendanceRepository
	schedules   attendanceScheduleReader
	enrollments attendanceEnrollmentReader
	classes     teachingChecker
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// NewAttendanceService constructs the attendance service.
func NewAttendanceService(tx txProvider, repo attendanceRepository, schedules attendanceScheduleReader, enrollments attendanceEnrollmentReader, classes teachingChecker, validate *validator.Validate, logger *zap.Logger) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttendanceService{
		tx:          tx,
		repo:        repo,
		schedules:   schedules,
		enrollments: enrollments,
		classes:     classes,
		validator:   validate,
		logger:      logger,
		now:         time.Now,
	}
}

// Mark records the presence of one student for a session.
func (s *AttendanceService) Mark(ctx context.Context, scheduleID int64, req dto.MarkAttendanceRequest, actor Actor) (*models.Attendance, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid attendance payload")
	}
	schedule, err := s.scheduleFor(ctx, scheduleID, actor)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.FindByScheduleAndStudent(ctx, nil, scheduleID, req.StudentID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, internalError(err, "failed to check attendance")
	}
	if existing != nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "attendance already recorded for this student")
	}

	enrollment, err := s.enrollments.FindByStudentAndClass(ctx, req.StudentID, schedule.ClassID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, internalError(err, "failed to load enrollment")
	}
	if enrollment == nil || enrollment.Status != models.EnrollmentStatusApproved {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "student is not an approved member of this class")
	}

	attendance := &models.Attendance{
		ScheduleID: scheduleID,
		StudentID:  req.StudentID,
		Status:     req.Status,
		Note:       req.Note,
	}
	s.stamp(attendance, actor)
	if err := s.repo.Create(ctx, nil, attendance); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "attendance already recorded for this student")
		}
		return nil, internalError(err, "failed to record attendance")
	}
	return attendance, nil
}

// MarkAll applies one status to every approved student of the session, updating
// existing records and inserting missing ones in a single transaction.
func (s *AttendanceService) MarkAll(ctx context.Context, scheduleID int64, req dto.MarkAllRequest, actor Actor) (result *models.MarkAllResult, err error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid attendance payload")
	}
	schedule, err := s.scheduleFor(ctx, scheduleID, actor)
	if err != nil {
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

	students, err := s.enrollments.ListApprovedByClass(ctx, tx, schedule.ClassID)
	if err != nil {
		err = internalError(err, "failed to list class members")
		return nil, err
	}

	result = &models.MarkAllResult{ScheduleID: scheduleID}
	for _, student := range students {
		current, findErr := s.repo.FindByScheduleAndStudent(ctx, tx, scheduleID, student.StudentID)
		if findErr != nil && !errors.Is(findErr, sql.ErrNoRows) {
			err = internalError(findErr, "failed to check attendance")
			return nil, err
		}
		if current != nil {
			current.Status = req.Status
			s.stamp(current, actor)
			if err = s.repo.Update(ctx, tx, current); err != nil {
				err = internalError(err, "failed to update attendance")
				return nil, err
			}
			result.Updated++
			continue
		}
		record := &models.Attendance{ScheduleID: scheduleID, StudentID: student.StudentID, Status: req.Status}
		s.stamp(record, actor)
		if err = s.repo.Create(ctx, tx, record); err != nil {
			err = internalError(err, "failed to record attendance")
			return nil, err
		}
		result.Created++
	}

	if err = tx.Commit(); err != nil {
		err = internalError(err, "failed to commit attendance")
		return nil, err
	}
	s.logger.Info("attendance marked for session",
		zap.Int64("schedule_id", scheduleID), zap.Int("created", result.Created), zap.Int("updated", result.Updated))
	return result, nil
}

// Update changes status and note of a record.
func (s *AttendanceService) Update(ctx context.Context, id int64, req dto.UpdateAttendanceRequest, actor Actor) (*models.Attendance, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid attendance payload")
	}
	attendance, err := s.load(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	attendance.Status = req.Status
	attendance.Note = req.Note
	s.stamp(attendance, actor)
	if err := s.repo.Update(ctx, nil, attendance); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "attendance not found")
		}
		return nil, internalError(err, "failed to update attendance")
	}
	return attendance, nil
}

// Delete removes a record.
func (s *AttendanceService) Delete(ctx context.Context, id int64, actor Actor) error {
	if _, err := s.load(ctx, id, actor); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "attendance not found")
		}
		return internalError(err, "failed to delete attendance")
	}
	return nil
}

// ListBySchedule returns the roll call of a session.
func (s *AttendanceService) ListBySchedule(ctx context.Context, scheduleID int64, actor Actor) ([]models.AttendanceRecord, error) {
	if _, err := s.scheduleFor(ctx, scheduleID, actor); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListBySchedule(ctx, scheduleID)
	if err != nil {
		return nil, internalError(err, "failed to list attendance")
	}
	return rows, nil
}

// ListByStudentAndClass returns a student's records in a class. Students see only their own.
func (s *AttendanceService) ListByStudentAndClass(ctx context.Context, studentID, classID int64, actor Actor) ([]models.AttendanceRecord, error) {
	if err := s.canReadStudent(ctx, studentID, classID, actor); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListByStudentAndClass(ctx, studentID, classID)
	if err != nil {
		return nil, internalError(err, "failed to list attendance")
	}
	return rows, nil
}

// Rate returns the share of PRESENT or LATE records in percent, rounded to two decimals.
func (s *AttendanceService) Rate(ctx context.Context, studentID, classID int64, actor Actor) (*models.AttendanceRate, error) {
	if err := s.canReadStudent(ctx, studentID, classID, actor); err != nil {
		return nil, err
	}
	attended, total, err := s.repo.CountForStudentInClass(ctx, studentID, classID)
	if err != nil {
		return nil, internalError(err, "failed to compute attendance rate")
	}
	return &models.AttendanceRate{
		StudentID: studentID,
		ClassID:   classID,
		Attended:  attended,
		Total:     total,
		Rate:      attendanceRate(attended, total),
	}, nil
}

// ScheduleSummary counts the statuses of a session and lists students not yet marked.
func (s *AttendanceService) ScheduleSummary(ctx context.Context, scheduleID int64, actor Actor) (*models.AttendanceSummary, error) {
	if _, err := s.scheduleFor(ctx, scheduleID, actor); err != nil {
		return nil, err
	}
	counts, err := s.repo.CountBySchedule(ctx, scheduleID)
	if err != nil {
		return nil, internalError(err, "failed to count attendance")
	}
	unmarked, err := s.repo.ListUnmarked(ctx, scheduleID)
	if err != nil {
		return nil, internalError(err, "failed to list unmarked students")
	}

	summary := &models.AttendanceSummary{ScheduleID: scheduleID, NotMarked: unmarked}
	if summary.NotMarked == nil {
		summary.NotMarked = []models.StudentReference{}
	}
	for _, c := range counts {
		switch c.Status {
		case models.AttendanceStatusPresent:
			summary.Present = c.Total
		case models.AttendanceStatusAbsent:
			summary.Absent = c.Total
		case models.AttendanceStatusLate:
			summary.Late = c.Total
		case models.AttendanceStatusExcused:
			summary.Excused = c.Total
		}
		summary.Total += c.Total
	}
	return summary, nil
}

func (s *AttendanceService) scheduleFor(ctx context.Context, scheduleID int64, actor Actor) (*models.ScheduleDetail, error) {
	schedule, err := s.schedules.FindByID(ctx, scheduleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "schedule not found")
		}
		return nil, internalError(err, "failed to load schedule")
	}
	if err := requireClassStaff(ctx, s.classes, schedule.ClassID, actor); err != nil {
		return nil, err
	}
	return schedule, nil
}

func (s *AttendanceService) load(ctx context.Context, id int64, actor Actor) (*models.Attendance, error) {
	attendance, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "attendance not found")
		}
		return nil, internalError(err, "failed to load attendance")
	}
	if _, err := s.scheduleFor(ctx, attendance.ScheduleID, actor); err != nil {
		return nil, err
	}
	return attendance, nil
}

func (s *AttendanceService) canReadStudent(ctx context.Context, studentID, classID int64, actor Actor) error {
	if actor.IsStudent() {
		if actor.ID != studentID {
			return appErrors.Clone(appErrors.ErrForbidden, "students may only read their own attendance")
		}
		return nil
	}
	return requireClassStaff(ctx, s.classes, classID, actor)
}

func (s *AttendanceService) stamp(attendance *models.Attendance, actor Actor) {
	now := s.now().UTC()
	attendance.MarkedAt = &now
	if actor.ID > 0 {
		marker := actor.ID
		attendance.MarkedBy = &marker
	}
}

func attendanceRate(attended, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(attended)*10000/float64(total)) / 100
}
