package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
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

type scheduleRepository interface {
	FindByID(ctx context.Context, id int64) (*models.ScheduleDetail, error)
	SessionNumberTaken(ctx context.Context, exec sqlx.ExtContext, classID int64, number int, excludeID *int64) (bool, error)
	MaxSessionNumber(ctx context.Context, exec sqlx.ExtContext, classID int64) (int, error)
	FindRoomConflict(ctx context.Context, exec sqlx.ExtContext, q models.RoomConflictQuery) (*models.Schedule, error)
	Create(ctx context.Context, exec sqlx.ExtContext, schedule *models.Schedule) error
	Update(ctx context.Context, exec sqlx.ExtContext, schedule *models.Schedule) error
	UpdateStatus(ctx context.Context, id int64, status models.ScheduleStatus) error
	Delete(ctx context.Context, id int64) error
	ListByClass(ctx context.Context, classID int64) ([]models.ScheduleDetail, error)
	List(ctx context.Context, filter models.ScheduleFilter) ([]models.ScheduleDetail, int, error)
	UpcomingForTeacher(ctx context.Context, teacherID int64, from, to time.Time) ([]models.ScheduleDetail, error)
	UpcomingForStudent(ctx context.Context, studentID int64, from, to time.Time) ([]models.ScheduleDetail, error)
	CountCompleted(ctx context.Context, classID int64) (int, error)
}

type scheduleClassReader interface {
	FindByID(ctx context.Context, id int64) (*models.ClassDetail, error)
	IsTaughtBy(ctx context.Context, classID, teacherID int64) (bool, error)
}

// ScheduleService plans the dated sessions of classes and guards rooms against double booking.
type ScheduleService struct {
	tx        txProvider
	repo      scheduleRepository
	classes   scheduleClassReader
	audit     auditWriter
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewScheduleService constructs the service.
func NewScheduleService(tx txProvider, repo scheduleRepository, classes scheduleClassReader, audit auditWriter, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *ScheduleService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ScheduleService{tx: tx, repo: repo, classes: classes, audit: audit, cache: cache, validator: validate, logger: logger, now: time.Now}
}

// Get returns one session.
func (s *ScheduleService) Get(ctx context.Context, id int64) (*models.ScheduleDetail, error) {
	schedule, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "schedule not found")
		}
		return nil, internalError(err, "failed to load schedule")
	}
	return schedule, nil
}

// Create adds one session to a class.
func (s *ScheduleService) Create(ctx context.Context, req dto.ScheduleRequest, actor Actor) (*models.ScheduleDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid schedule payload")
	}
	if _, err := s.loadClass(ctx, req.ClassID); err != nil {
		return nil, err
	}
	if err := requireClassStaff(ctx, s.classes, req.ClassID, actor); err != nil {
		return nil, err
	}
	schedule := scheduleFromRequest(req)
	if err := s.insert(ctx, nil, schedule); err != nil {
		return nil, err
	}
	s.afterWrite(ctx, actor, schedule.ID, schedule)
	return s.Get(ctx, schedule.ID)
}

// GenerateBatch creates one session per matching weekday between the class start and end dates.
// Weekdays follow ISO numbering, 1 is Monday and 7 is Sunday. Either every session is stored or none.
func (s *ScheduleService) GenerateBatch(ctx context.Context, req dto.BatchScheduleRequest, actor Actor) (created []models.Schedule, err error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid batch schedule payload")
	}
	class, err := s.loadClass(ctx, req.ClassID)
	if err != nil {
		return nil, err
	}
	if err := requireClassStaff(ctx, s.classes, class.ID, actor); err != nil {
		return nil, err
	}
	if class.StartDate == nil || class.EndDate == nil {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "class has no start or end date")
	}

	days := make(map[time.Weekday]bool, len(req.DaysOfWeek))
	for _, d := range req.DaysOfWeek {
		days[time.Weekday(d%7)] = true
	}
	room := class.Room
	if req.Room != nil && strings.TrimSpace(*req.Room) != "" {
		room = req.Room
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

	last, err := s.repo.MaxSessionNumber(ctx, tx, class.ID)
	if err != nil {
		err = internalError(err, "failed to read session numbers")
		return nil, err
	}

	end := truncateDay(*class.EndDate)
	for day := truncateDay(*class.StartDate); !day.After(end); day = day.AddDate(0, 0, 1) {
		if !days[day.Weekday()] {
			continue
		}
		last++
		schedule := &models.Schedule{
			ClassID:       class.ID,
			SessionNumber: last,
			SessionDate:   day,
			StartTime:     req.StartTime,
			EndTime:       req.EndTime,
			Room:          room,
			Status:        models.ScheduleStatusScheduled,
		}
		if req.TopicPrefix != nil && strings.TrimSpace(*req.TopicPrefix) != "" {
			topic := fmt.Sprintf("%s %d", strings.TrimSpace(*req.TopicPrefix), last)
			schedule.Topic = &topic
		}
		if err = s.insert(ctx, tx, schedule); err != nil {
			return nil, err
		}
		created = append(created, *schedule)
	}

	if len(created) == 0 {
		err = appErrors.Clone(appErrors.ErrValidation, "no sessions fall on the selected weekdays within the class dates")
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		err = internalError(err, "failed to commit schedules")
		return nil, err
	}

	s.logger.Info("batch schedules generated", zap.Int64("class_id", class.ID), zap.Int("sessions", len(created)))
	s.afterWrite(ctx, actor, class.ID, map[string]int{"generated": len(created)})
	return created, nil
}

// Update rewrites a session, excluding itself from the duplicate and room checks.
func (s *ScheduleService) Update(ctx context.Context, id int64, req dto.ScheduleRequest, actor Actor) (*models.ScheduleDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid schedule payload")
	}
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requireClassStaff(ctx, s.classes, existing.ClassID, actor); err != nil {
		return nil, err
	}
	if req.ClassID != existing.ClassID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "a session cannot move to another class")
	}
	schedule := scheduleFromRequest(req)
	schedule.ID = id
	if req.Status == "" {
		schedule.Status = existing.Status
	}
	if err := s.validate(ctx, nil, schedule, &id); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, nil, schedule); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("session %d already exists in this class", schedule.SessionNumber))
		}
		return nil, internalError(err, "failed to update schedule")
	}
	s.afterWrite(ctx, actor, id, schedule)
	return s.Get(ctx, id)
}

// Complete marks a session as held.
func (s *ScheduleService) Complete(ctx context.Context, id int64, actor Actor) (*models.ScheduleDetail, error) {
	return s.setStatus(ctx, id, models.ScheduleStatusCompleted, actor)
}

// Cancel marks a session as cancelled, which frees its room slot.
func (s *ScheduleService) Cancel(ctx context.Context, id int64, actor Actor) (*models.ScheduleDetail, error) {
	return s.setStatus(ctx, id, models.ScheduleStatusCancelled, actor)
}

func (s *ScheduleService) setStatus(ctx context.Context, id int64, status models.ScheduleStatus, actor Actor) (*models.ScheduleDetail, error) {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requireClassStaff(ctx, s.classes, existing.ClassID, actor); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "schedule not found")
		}
		return nil, internalError(err, "failed to update schedule status")
	}
	s.afterWrite(ctx, actor, id, map[string]interface{}{"status": status})
	existing.Status = status
	return existing, nil
}

// Delete removes a session together with its attendance.
func (s *ScheduleService) Delete(ctx context.Context, id int64, actor Actor) error {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := requireClassStaff(ctx, s.classes, existing.ClassID, actor); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "schedule not found")
		}
		return internalError(err, "failed to delete schedule")
	}
	s.afterWrite(ctx, actor, id, map[string]bool{"deleted": true})
	return nil
}

// ListByClass returns the sessions of a class ordered by number.
func (s *ScheduleService) ListByClass(ctx context.Context, classID int64) ([]models.ScheduleDetail, error) {
	if _, err := s.loadClass(ctx, classID); err != nil {
		return nil, err
	}
	items, err := s.repo.ListByClass(ctx, classID)
	if err != nil {
		return nil, internalError(err, "failed to list schedules")
	}
	return items, nil
}

// List returns sessions matching the filter.
func (s *ScheduleService) List(ctx context.Context, filter models.ScheduleFilter) ([]models.ScheduleDetail, *models.Pagination, error) {
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, internalError(err, "failed to list schedules")
	}
	return items, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// Upcoming lists scheduled sessions of the next days for the actor: a teacher's classes,
// a student's approved classes, or every class for admins.
func (s *ScheduleService) Upcoming(ctx context.Context, actor Actor, days int) ([]models.ScheduleDetail, error) {
	if days <= 0 || days > 90 {
		days = 7
	}
	from := truncateDay(s.now())
	to := from.AddDate(0, 0, days)

	var (
		items []models.ScheduleDetail
		err   error
	)
	switch {
	case actor.IsTeacher():
		items, err = s.repo.UpcomingForTeacher(ctx, actor.ID, from, to)
	case actor.IsStudent():
		items, err = s.repo.UpcomingForStudent(ctx, actor.ID, from, to)
	default:
		items, _, err = s.repo.List(ctx, models.ScheduleFilter{
			Status: models.ScheduleStatusScheduled, DateFrom: &from, DateTo: &to,
			PageSize: 100, SortBy: "session_date", SortOrder: "asc",
		})
	}
	if err != nil {
		return nil, internalError(err, "failed to list upcoming schedules")
	}
	return items, nil
}

// CountCompleted returns how many sessions of a class were held.
func (s *ScheduleService) CountCompleted(ctx context.Context, classID int64) (int, error) {
	total, err := s.repo.CountCompleted(ctx, classID)
	if err != nil {
		return 0, internalError(err, "failed to count completed schedules")
	}
	return total, nil
}

func (s *ScheduleService) insert(ctx context.Context, exec sqlx.ExtContext, schedule *models.Schedule) error {
	if err := s.validate(ctx, exec, schedule, nil); err != nil {
		return err
	}
	if err := s.repo.Create(ctx, exec, schedule); err != nil {
		if repository.IsUniqueViolation(err) {
			return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("session %d already exists in this class", schedule.SessionNumber))
		}
		return internalError(err, "failed to create schedule")
	}
	return nil
}

// validate applies the session number, time window and room checks shared by every write.
func (s *ScheduleService) validate(ctx context.Context, exec sqlx.ExtContext, schedule *models.Schedule, excludeID *int64) error {
	if schedule.EndTime <= schedule.StartTime {
		return appErrors.Clone(appErrors.ErrValidation, "end time must be after start time")
	}
	taken, err := s.repo.SessionNumberTaken(ctx, exec, schedule.ClassID, schedule.SessionNumber, excludeID)
	if err != nil {
		return internalError(err, "failed to check session number")
	}
	if taken {
		return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("session %d already exists in this class", schedule.SessionNumber))
	}
	if schedule.Room == nil || strings.TrimSpace(*schedule.Room) == "" {
		schedule.Room = nil
		return nil
	}
	conflict, err := s.repo.FindRoomConflict(ctx, exec, models.RoomConflictQuery{
		Room:      *schedule.Room,
		Date:      schedule.SessionDate,
		StartTime: schedule.StartTime,
		EndTime:   schedule.EndTime,
		ExcludeID: excludeID,
	})
	if err != nil {
		return internalError(err, "failed to check room availability")
	}
	if conflict != nil {
		return appErrors.Clone(appErrors.ErrRoomConflict, fmt.Sprintf("room %s is booked on %s from %s to %s",
			*schedule.Room, schedule.SessionDate.Format("2006-01-02"), conflict.StartTime, conflict.EndTime))
	}
	return nil
}

func (s *ScheduleService) loadClass(ctx context.Context, classID int64) (*models.ClassDetail, error) {
	class, err := s.classes.FindByID(ctx, classID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, internalError(err, "failed to load class")
	}
	return class, nil
}

func (s *ScheduleService) afterWrite(ctx context.Context, actor Actor, id int64, values interface{}) {
	invalidateCache(ctx, s.cache, cacheKeyDashboard+"*")
	writeAudit(ctx, s.audit, s.logger, actor, models.AuditActionScheduleEdit, "schedules", id, nil, values)
}

func scheduleFromRequest(req dto.ScheduleRequest) *models.Schedule {
	status := req.Status
	if status == "" {
		status = models.ScheduleStatusScheduled
	}
	return &models.Schedule{
		ClassID:       req.ClassID,
		SessionNumber: req.SessionNumber,
		SessionDate:   truncateDay(req.SessionDate),
		StartTime:     req.StartTime,
		EndTime:       req.EndTime,
		Room:          req.Room,
		Topic:         req.Topic,
		Description:   req.Description,
		Status:        status,
	}
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
