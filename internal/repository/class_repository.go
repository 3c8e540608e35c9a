package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/short-course-api/internal/models"
)

const classColumns = `cl.id, cl.course_id, cl.teacher_id, cl.class_code, cl.class_name, cl.start_date, cl.end_date,
cl.max_students, cl.current_students, cl.room, cl.status, cl.created_at, cl.updated_at`

const classDetailFrom = `FROM classes cl
JOIN courses c ON c.id = cl.course_id
LEFT JOIN users t ON t.id = cl.teacher_id`

// ClassRepository persists class offerings and their seat counters.
type ClassRepository struct {
	db *sqlx.DB
}

// NewClassRepository constructs the repository.
func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

func (r *ClassRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindByID loads a class with course and teacher names.
func (r *ClassRepository) FindByID(ctx context.Context, id int64) (*models.ClassDetail, error) {
	query := fmt.Sprintf(`SELECT %s, c.code AS course_code, c.name AS course_name, c.tuition_fee, t.full_name AS teacher_name
%s WHERE cl.id = $1`, classColumns, classDetailFrom)
	var class models.ClassDetail
	if err := r.db.GetContext(ctx, &class, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find class: %w", err)
	}
	return &class, nil
}

// LockByID selects the class row FOR UPDATE inside the caller's transaction.
func (r *ClassRepository) LockByID(ctx context.Context, exec sqlx.ExtContext, id int64) (*models.Class, error) {
	query := fmt.Sprintf(`SELECT %s FROM classes cl WHERE cl.id = $1 FOR UPDATE`, classColumns)
	var class models.Class
	if err := sqlx.GetContext(ctx, r.exec(exec), &class, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("lock class: %w", err)
	}
	return &class, nil
}

// AdjustCurrentStudents moves the seat counter by delta, never below zero.
func (r *ClassRepository) AdjustCurrentStudents(ctx context.Context, exec sqlx.ExtContext, id int64, delta int) error {
	const query = `UPDATE classes SET current_students = GREATEST(current_students + $2, 0), updated_at = $3 WHERE id = $1`
	res, err := r.exec(exec).ExecContext(ctx, query, id, delta, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("adjust class seats: %w", err)
	}
	return expectAffected(res)
}

// CodeExists reports whether the class code is taken by a different row.
func (r *ClassRepository) CodeExists(ctx context.Context, code string, excludeID int64) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM classes WHERE LOWER(class_code) = LOWER($1) AND id <> $2)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, code, excludeID); err != nil {
		return false, fmt.Errorf("check class code: %w", err)
	}
	return exists, nil
}

// IsTaughtBy reports whether teacherID is the assigned teacher of the class.
func (r *ClassRepository) IsTaughtBy(ctx context.Context, classID, teacherID int64) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM classes WHERE id = $1 AND teacher_id = $2)`
	var ok bool
	if err := r.db.GetContext(ctx, &ok, query, classID, teacherID); err != nil {
		return false, fmt.Errorf("check class teacher: %w", err)
	}
	return ok, nil
}

// List returns classes matching the filter with the total count.
func (r *ClassRepository) List(ctx context.Context, filter models.ClassFilter) ([]models.ClassDetail, int, error) {
	var conds conditions
	if filter.CourseID != nil {
		conds.add("cl.course_id = $%d", *filter.CourseID)
	}
	if filter.TeacherID != nil {
		conds.add("cl.teacher_id = $%d", *filter.TeacherID)
	}
	if filter.Status != "" {
		conds.add("cl.status = $%d", filter.Status)
	}
	if filter.AvailableOnly {
		conds.clauses = append(conds.clauses, "cl.status IN ('PENDING', 'ONGOING')", "cl.current_students < cl.max_students")
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		conds.add("(LOWER(cl.class_name) LIKE $%[1]d OR LOWER(cl.class_code) LIKE $%[1]d OR LOWER(c.name) LIKE $%[1]d)", "%"+strings.ToLower(s)+"%")
	}
	order := orderBy(filter.SortBy, filter.SortOrder, map[string]string{
		"class_code": "cl.class_code",
		"class_name": "cl.class_name",
		"start_date": "cl.start_date",
		"created_at": "cl.created_at",
	}, "start_date")
	limit, offset := paging(filter.Page, filter.PageSize)

	query := fmt.Sprintf(`SELECT %s, c.code AS course_code, c.name AS course_name, c.tuition_fee, t.full_name AS teacher_name
%s WHERE %s ORDER BY %s LIMIT %d OFFSET %d`, classColumns, classDetailFrom, conds.where(), order, limit, offset)
	var classes []models.ClassDetail
	if err := r.db.SelectContext(ctx, &classes, query, conds.args...); err != nil {
		return nil, 0, fmt.Errorf("list classes: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", classDetailFrom, conds.where())
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, conds.args...); err != nil {
		return nil, 0, fmt.Errorf("count classes: %w", err)
	}
	return classes, total, nil
}

// Create inserts a class.
func (r *ClassRepository) Create(ctx context.Context, class *models.Class) error {
	now := time.Now().UTC()
	class.CreatedAt, class.UpdatedAt = now, now
	if class.Status == "" {
		class.Status = models.ClassStatusPending
	}
	const query = `INSERT INTO classes (course_id, teacher_id, class_code, class_name, start_date, end_date, max_students,
current_students, room, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12) RETURNING id`
	if err := r.db.GetContext(ctx, &class.ID, query, class.CourseID, class.TeacherID, class.ClassCode, class.ClassName,
		class.StartDate, class.EndDate, class.MaxStudents, class.CurrentStudents, class.Room, class.Status,
		class.CreatedAt, class.UpdatedAt); err != nil {
		return fmt.Errorf("create class: %w", err)
	}
	return nil
}

// Update rewrites the mutable fields of a class. The seat counter is left alone.
func (r *ClassRepository) Update(ctx context.Context, exec sqlx.ExtContext, class *models.Class) error {
	class.UpdatedAt = time.Now().UTC()
	const query = `UPDATE classes SET course_id = :course_id, teacher_id = :teacher_id, class_code = :class_code,
class_name = :class_name, start_date = :start_date, end_date = :end_date, max_students = :max_students,
room = :room, status = :status, updated_at = :updated_at WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, class)
	if err != nil {
		return fmt.Errorf("update class: %w", err)
	}
	return expectAffected(res)
}

// UpdateTeacher assigns or clears the class teacher.
func (r *ClassRepository) UpdateTeacher(ctx context.Context, id int64, teacherID *int64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE classes SET teacher_id = $2, updated_at = $3 WHERE id = $1`, id, teacherID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update class teacher: %w", err)
	}
	return expectAffected(res)
}

// UpdateStatus changes the class status.
func (r *ClassRepository) UpdateStatus(ctx context.Context, id int64, status models.ClassStatus) error {
	res, err := r.db.ExecContext(ctx, `UPDATE classes SET status = $2, updated_at = $3 WHERE id = $1`, id, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update class status: %w", err)
	}
	return expectAffected(res)
}

// Delete removes a class.
func (r *ClassRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM classes WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete class: %w", err)
	}
	return expectAffected(res)
}

// CountByStatus returns the class total per status.
func (r *ClassRepository) CountByStatus(ctx context.Context) (map[models.ClassStatus]int, error) {
	var rows []struct {
		Status models.ClassStatus `db:"status"`
		Total  int                `db:"total"`
	}
	if err := r.db.SelectContext(ctx, &rows, `SELECT status, COUNT(*) AS total FROM classes GROUP BY status`); err != nil {
		return nil, fmt.Errorf("count classes by status: %w", err)
	}
	counts := make(map[models.ClassStatus]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Total
	}
	return counts, nil
}

// TeacherSummary aggregates the classes taught by one teacher.
type TeacherSummary struct {
	Classes          int `db:"classes"`
	ApprovedStudents int `db:"approved_students"`
	UngradedStudents int `db:"ungraded_students"`
}

// SummaryForTeacher counts classes, approved students and enrollments still waiting for a grade.
func (r *ClassRepository) SummaryForTeacher(ctx context.Context, teacherID int64) (*TeacherSummary, error) {
	const query = `SELECT
  (SELECT COUNT(*) FROM classes WHERE teacher_id = $1) AS classes,
  (SELECT COUNT(*) FROM enrollments e JOIN classes cl ON cl.id = e.class_id
     WHERE cl.teacher_id = $1 AND e.status = 'APPROVED') AS approved_students,
  (SELECT COUNT(*) FROM enrollments e JOIN classes cl ON cl.id = e.class_id
     LEFT JOIN grades g ON g.enrollment_id = e.id
     WHERE cl.teacher_id = $1 AND e.status = 'APPROVED' AND g.id IS NULL) AS ungraded_students`
	var summary TeacherSummary
	if err := r.db.GetContext(ctx, &summary, query, teacherID); err != nil {
		return nil, fmt.Errorf("summarise teacher classes: %w", err)
	}
	return &summary, nil
}
