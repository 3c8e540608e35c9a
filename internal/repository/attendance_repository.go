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

const attendanceColumns = `a.id, a.schedule_id, a.student_id, a.status, a.note, a.marked_by, a.marked_at, a.created_at, a.updated_at`

const attendanceRecordSelect = `SELECT ` + attendanceColumns + `, u.full_name AS student_name, s.session_number, s.session_date
FROM attendances a
JOIN users u ON u.id = a.student_id
JOIN schedules s ON s.id = a.schedule_id`

// AttendanceRepository persists per-session roll calls.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

func (r *AttendanceRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindByID loads one attendance record.
func (r *AttendanceRepository) FindByID(ctx context.Context, id int64) (*models.Attendance, error) {
	query := fmt.Sprintf(`SELECT %s FROM attendances a WHERE a.id = $1`, attendanceColumns)
	var attendance models.Attendance
	if err := r.db.GetContext(ctx, &attendance, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find attendance: %w", err)
	}
	return &attendance, nil
}

// FindByScheduleAndStudent returns the record of a student for a session.
func (r *AttendanceRepository) FindByScheduleAndStudent(ctx context.Context, exec sqlx.ExtContext, scheduleID, studentID int64) (*models.Attendance, error) {
	query := fmt.Sprintf(`SELECT %s FROM attendances a WHERE a.schedule_id = $1 AND a.student_id = $2`, attendanceColumns)
	var attendance models.Attendance
	if err := sqlx.GetContext(ctx, r.exec(exec), &attendance, query, scheduleID, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find attendance by schedule and student: %w", err)
	}
	return &attendance, nil
}

// Create inserts an attendance record.
func (r *AttendanceRepository) Create(ctx context.Context, exec sqlx.ExtContext, attendance *models.Attendance) error {
	now := time.Now().UTC()
	attendance.CreatedAt, attendance.UpdatedAt = now, now
	const query = `INSERT INTO attendances (schedule_id, student_id, status, note, marked_by, marked_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`
	if err := sqlx.GetContext(ctx, r.exec(exec), &attendance.ID, query, attendance.ScheduleID, attendance.StudentID, attendance.Status,
		attendance.Note, attendance.MarkedBy, attendance.MarkedAt, attendance.CreatedAt, attendance.UpdatedAt); err != nil {
		return fmt.Errorf("create attendance: %w", err)
	}
	return nil
}

// Update rewrites status, note and marker of a record.
func (r *AttendanceRepository) Update(ctx context.Context, exec sqlx.ExtContext, attendance *models.Attendance) error {
	attendance.UpdatedAt = time.Now().UTC()
	const query = `UPDATE attendances SET status = $2, note = $3, marked_by = $4, marked_at = $5, updated_at = $6 WHERE id = $1`
	res, err := r.exec(exec).ExecContext(ctx, query, attendance.ID, attendance.Status, attendance.Note, attendance.MarkedBy,
		attendance.MarkedAt, attendance.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update attendance: %w", err)
	}
	return expectAffected(res)
}

// Delete removes an attendance record.
func (r *AttendanceRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM attendances WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete attendance: %w", err)
	}
	return expectAffected(res)
}

// ListBySchedule returns the roll call of a session sorted by student name.
func (r *AttendanceRepository) ListBySchedule(ctx context.Context, scheduleID int64) ([]models.AttendanceRecord, error) {
	var rows []models.AttendanceRecord
	if err := r.db.SelectContext(ctx, &rows, attendanceRecordSelect+` WHERE a.schedule_id = $1 ORDER BY u.full_name ASC`, scheduleID); err != nil {
		return nil, fmt.Errorf("list schedule attendance: %w", err)
	}
	return rows, nil
}

// ListByStudentAndClass returns a student's records across the sessions of a class.
func (r *AttendanceRepository) ListByStudentAndClass(ctx context.Context, studentID, classID int64) ([]models.AttendanceRecord, error) {
	var rows []models.AttendanceRecord
	query := attendanceRecordSelect + ` WHERE a.student_id = $1 AND s.class_id = $2 ORDER BY s.session_number ASC`
	if err := r.db.SelectContext(ctx, &rows, query, studentID, classID); err != nil {
		return nil, fmt.Errorf("list student attendance: %w", err)
	}
	return rows, nil
}

// CountForStudentInClass returns how many records of a student in a class are PRESENT or LATE and the total.
func (r *AttendanceRepository) CountForStudentInClass(ctx context.Context, studentID, classID int64) (int, int, error) {
	const query = `SELECT
  COUNT(*) FILTER (WHERE a.status IN ('PRESENT', 'LATE')) AS attended,
  COUNT(*) AS total
FROM attendances a JOIN schedules s ON s.id = a.schedule_id
WHERE a.student_id = $1 AND s.class_id = $2`
	var counts struct {
		Attended int `db:"attended"`
		Total    int `db:"total"`
	}
	if err := r.db.GetContext(ctx, &counts, query, studentID, classID); err != nil {
		return 0, 0, fmt.Errorf("count student attendance: %w", err)
	}
	return counts.Attended, counts.Total, nil
}

// CountBySchedule groups the records of a session by status.
func (r *AttendanceRepository) CountBySchedule(ctx context.Context, scheduleID int64) ([]models.AttendanceStatusCount, error) {
	var rows []models.AttendanceStatusCount
	if err := r.db.SelectContext(ctx, &rows, `SELECT status, COUNT(*) AS total FROM attendances WHERE schedule_id = $1 GROUP BY status`, scheduleID); err != nil {
		return nil, fmt.Errorf("count schedule attendance: %w", err)
	}
	return rows, nil
}

// ListUnmarked returns approved students of the session's class without a record yet.
func (r *AttendanceRepository) ListUnmarked(ctx context.Context, scheduleID int64) ([]models.StudentReference, error) {
	const query = `SELECT e.student_id, u.full_name AS student_name
FROM schedules s
JOIN enrollments e ON e.class_id = s.class_id AND e.status = 'APPROVED'
JOIN users u ON u.id = e.student_id
LEFT JOIN attendances a ON a.schedule_id = s.id AND a.student_id = e.student_id
WHERE s.id = $1 AND a.id IS NULL
ORDER BY u.full_name ASC`
	var rows []models.StudentReference
	if err := r.db.SelectContext(ctx, &rows, query, scheduleID); err != nil {
		return nil, fmt.Errorf("list unmarked students: %w", err)
	}
	return rows, nil
}

// ClassAttendanceRow is one line of the class attendance report.
type ClassAttendanceRow struct {
	StudentID   int64  `db:"student_id"`
	StudentName string `db:"student_name"`
	Present     int    `db:"present"`
	Late        int    `db:"late"`
	Absent      int    `db:"absent"`
	Excused     int    `db:"excused"`
	Total       int    `db:"total"`
}

// ClassMatrix aggregates per-student status counts over every session of a class.
func (r *AttendanceRepository) ClassMatrix(ctx context.Context, classID int64) ([]ClassAttendanceRow, error) {
	const query = `SELECT e.student_id, u.full_name AS student_name,
  COUNT(a.id) FILTER (WHERE a.status = 'PRESENT') AS present,
  COUNT(a.id) FILTER (WHERE a.status = 'LATE') AS late,
  COUNT(a.id) FILTER (WHERE a.status = 'ABSENT') AS absent,
  COUNT(a.id) FILTER (WHERE a.status = 'EXCUSED') AS excused,
  COUNT(a.id) AS total
FROM enrollments e
JOIN users u ON u.id = e.student_id
LEFT JOIN schedules s ON s.class_id = e.class_id
LEFT JOIN attendances a ON a.schedule_id = s.id AND a.student_id = e.student_id
WHERE e.class_id = $1 AND e.status IN ('APPROVED', 'COMPLETED')
GROUP BY e.student_id, u.full_name
ORDER BY u.full_name ASC`
	var rows []ClassAttendanceRow
	if err := r.db.SelectContext(ctx, &rows, query, classID); err != nil {
		return nil, fmt.Errorf("class attendance matrix: %w", err)
	}
	return rows, nil
}
