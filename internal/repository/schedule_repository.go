package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/short-course-api/internal/models"
)

const scheduleColumns = `s.id, s.class_id, s.session_number, s.session_date, s.start_time, s.end_time, s.room, s.topic,
s.description, s.status, s.created_at, s.updated_at`

const scheduleDetailSelect = `SELECT ` + scheduleColumns + `, cl.class_code, cl.class_name
FROM schedules s JOIN classes cl ON cl.id = s.class_id`

// ScheduleRepository persists class sessions.
type ScheduleRepository struct {
	db *sqlx.DB
}

// NewScheduleRepository constructs the repository.
func NewScheduleRepository(db *sqlx.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

func (r *ScheduleRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindByID loads a session with its class code and name.
func (r *ScheduleRepository) FindByID(ctx context.Context, id int64) (*models.ScheduleDetail, error) {
	var detail models.ScheduleDetail
	if err := r.db.GetContext(ctx, &detail, scheduleDetailSelect+` WHERE s.id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find schedule: %w", err)
	}
	return &detail, nil
}

// SessionNumberTaken reports whether the class already has the session number, ignoring excludeID.
func (r *ScheduleRepository) SessionNumberTaken(ctx context.Context, exec sqlx.ExtContext, classID int64, number int, excludeID *int64) (bool, error) {
	var conds conditions
	conds.add("class_id = $%d", classID)
	conds.add("session_number = $%d", number)
	if excludeID != nil {
		conds.add("id <> $%d", *excludeID)
	}
	query := fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM schedules WHERE %s)`, conds.where())
	var taken bool
	if err := sqlx.GetContext(ctx, r.exec(exec), &taken, query, conds.args...); err != nil {
		return false, fmt.Errorf("check session number: %w", err)
	}
	return taken, nil
}

// MaxSessionNumber returns the highest session number of a class, 0 when it has none.
func (r *ScheduleRepository) MaxSessionNumber(ctx context.Context, exec sqlx.ExtContext, classID int64) (int, error) {
	var max int
	if err := sqlx.GetContext(ctx, r.exec(exec), &max, `SELECT COALESCE(MAX(session_number), 0) FROM schedules WHERE class_id = $1`, classID); err != nil {
		return 0, fmt.Errorf("max session number: %w", err)
	}
	return max, nil
}

// FindRoomConflict returns a non-cancelled session booked in the same room whose time window
// overlaps the query, or nil when the slot is free.
func (r *ScheduleRepository) FindRoomConflict(ctx context.Context, exec sqlx.ExtContext, q models.RoomConflictQuery) (*models.Schedule, error) {
	var conds conditions
	conds.add("s.room = $%d", q.Room)
	conds.add("s.session_date = $%d", q.Date)
	conds.clauses = append(conds.clauses, "s.status <> 'CANCELLED'")
	conds.args = append(conds.args, q.StartTime, q.EndTime)
	start, end := len(conds.args)-1, len(conds.args)
	conds.clauses = append(conds.clauses, fmt.Sprintf(
		"((s.start_time <= $%[1]d AND s.end_time > $%[1]d) OR (s.start_time < $%[2]d AND s.end_time >= $%[2]d) OR (s.start_time >= $%[1]d AND s.end_time <= $%[2]d))",
		start, end))
	if q.ExcludeID != nil {
		conds.add("s.id <> $%d", *q.ExcludeID)
	}
	query := fmt.Sprintf(`SELECT %s FROM schedules s WHERE %s ORDER BY s.start_time LIMIT 1`, scheduleColumns, conds.where())
	var conflict models.Schedule
	if err := sqlx.GetContext(ctx, r.exec(exec), &conflict, query, conds.args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find room conflict: %w", err)
	}
	return &conflict, nil
}

// Create inserts a session.
func (r *ScheduleRepository) Create(ctx context.Context, exec sqlx.ExtContext, schedule *models.Schedule) error {
	now := time.Now().UTC()
	schedule.CreatedAt, schedule.UpdatedAt = now, now
	if schedule.Status == "" {
		schedule.Status = models.ScheduleStatusScheduled
	}
	const query = `INSERT INTO schedules (class_id, session_number, session_date, start_time, end_time, room, topic, description, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING id`
	if err := sqlx.GetContext(ctx, r.exec(exec), &schedule.ID, query, schedule.ClassID, schedule.SessionNumber, schedule.SessionDate,
		schedule.StartTime, schedule.EndTime, schedule.Room, schedule.Topic, schedule.Description, schedule.Status,
		schedule.CreatedAt, schedule.UpdatedAt); err != nil {
		return fmt.Errorf("create schedule: %w", err)
	}
	return nil
}

// Update rewrites a session.
func (r *ScheduleRepository) Update(ctx context.Context, exec sqlx.ExtContext, schedule *models.Schedule) error {
	schedule.UpdatedAt = time.Now().UTC()
	const query = `UPDATE schedules SET session_number = $2, session_date = $3, start_time = $4, end_time = $5, room = $6,
topic = $7, description = $8, status = $9, updated_at = $10 WHERE id = $1`
	res, err := r.exec(exec).ExecContext(ctx, query, schedule.ID, schedule.SessionNumber, schedule.SessionDate, schedule.StartTime,
		schedule.EndTime, schedule.Room, schedule.Topic, schedule.Description, schedule.Status, schedule.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update schedule: %w", err)
	}
	return expectAffected(res)
}

// UpdateStatus changes the session status.
func (r *ScheduleRepository) UpdateStatus(ctx context.Context, id int64, status models.ScheduleStatus) error {
	res, err := r.db.ExecContext(ctx, `UPDATE schedules SET status = $2, updated_at = $3 WHERE id = $1`, id, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update schedule status: %w", err)
	}
	return expectAffected(res)
}

// Delete removes a session and, through the foreign key, its attendance.
func (r *ScheduleRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	return expectAffected(res)
}

// ListByClass returns all sessions of a class in session order.
func (r *ScheduleRepository) ListByClass(ctx context.Context, classID int64) ([]models.ScheduleDetail, error) {
	var rows []models.ScheduleDetail
	if err := r.db.SelectContext(ctx, &rows, scheduleDetailSelect+` WHERE s.class_id = $1 ORDER BY s.session_number ASC`, classID); err != nil {
		return nil, fmt.Errorf("list class schedules: %w", err)
	}
	return rows, nil
}

// List returns sessions matching the filter with the total count.
func (r *ScheduleRepository) List(ctx context.Context, filter models.ScheduleFilter) ([]models.ScheduleDetail, int, error) {
	var conds conditions
	if filter.ClassID != nil {
		conds.add("s.class_id = $%d", *filter.ClassID)
	}
	if filter.Status != "" {
		conds.add("s.status = $%d", filter.Status)
	}
	if filter.Room != "" {
		conds.add("s.room = $%d", filter.Room)
	}
	if filter.DateFrom != nil {
		conds.add("s.session_date >= $%d", *filter.DateFrom)
	}
	if filter.DateTo != nil {
		conds.add("s.session_date <= $%d", *filter.DateTo)
	}
	order := orderBy(filter.SortBy, filter.SortOrder, map[string]string{
		"session_date":   "s.session_date",
		"session_number": "s.session_number",
		"created_at":     "s.created_at",
	}, "session_date")
	limit, offset := paging(filter.Page, filter.PageSize)

	query := fmt.Sprintf("%s WHERE %s ORDER BY %s, s.start_time ASC LIMIT %d OFFSET %d", scheduleDetailSelect, conds.where(), order, limit, offset)
	var rows []models.ScheduleDetail
	if err := r.db.SelectContext(ctx, &rows, query, conds.args...); err != nil {
		return nil, 0, fmt.Errorf("list schedules: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) FROM schedules s WHERE %s", conds.where()), conds.args...); err != nil {
		return nil, 0, fmt.Errorf("count schedules: %w", err)
	}
	return rows, total, nil
}

// UpcomingForTeacher lists SCHEDULED sessions between from and to of classes taught by teacherID.
func (r *ScheduleRepository) UpcomingForTeacher(ctx context.Context, teacherID int64, from, to time.Time) ([]models.ScheduleDetail, error) {
	query := scheduleDetailSelect + ` WHERE cl.teacher_id = $1 AND s.status = 'SCHEDULED' AND s.session_date BETWEEN $2 AND $3
ORDER BY s.session_date, s.start_time`
	var rows []models.ScheduleDetail
	if err := r.db.SelectContext(ctx, &rows, query, teacherID, from, to); err != nil {
		return nil, fmt.Errorf("list teacher upcoming schedules: %w", err)
	}
	return rows, nil
}

// UpcomingForStudent lists SCHEDULED sessions between from and to of classes the student is approved in.
func (r *ScheduleRepository) UpcomingForStudent(ctx context.Context, studentID int64, from, to time.Time) ([]models.ScheduleDetail, error) {
	query := scheduleDetailSelect + ` JOIN enrollments e ON e.class_id = s.class_id
WHERE e.student_id = $1 AND e.status = 'APPROVED' AND s.status = 'SCHEDULED' AND s.session_date BETWEEN $2 AND $3
ORDER BY s.session_date, s.start_time`
	var rows []models.ScheduleDetail
	if err := r.db.SelectContext(ctx, &rows, query, studentID, from, to); err != nil {
		return nil, fmt.Errorf("list student upcoming schedules: %w", err)
	}
	return rows, nil
}

// CountCompleted counts COMPLETED sessions of a class.
func (r *ScheduleRepository) CountCompleted(ctx context.Context, classID int64) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM schedules WHERE class_id = $1 AND status = 'COMPLETED'`, classID); err != nil {
		return 0, fmt.Errorf("count completed schedules: %w", err)
	}
	return total, nil
}
