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

const courseColumns = `c.id, c.course_type_id, c.code, c.name, c.description, c.duration_hours, c.duration_sessions,
c.tuition_fee, c.max_students, c.requirements, c.status, c.created_by, c.created_at, c.updated_at`

// CourseRepository persists course types and courses.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// ListTypes returns every course type ordered by name.
func (r *CourseRepository) ListTypes(ctx context.Context) ([]models.CourseType, error) {
	const query = `SELECT id, name, code, description, created_at, updated_at FROM course_types ORDER BY name ASC`
	var types []models.CourseType
	if err := r.db.SelectContext(ctx, &types, query); err != nil {
		return nil, fmt.Errorf("list course types: %w", err)
	}
	return types, nil
}

// FindTypeByID loads one course type.
func (r *CourseRepository) FindTypeByID(ctx context.Context, id int64) (*models.CourseType, error) {
	const query = `SELECT id, name, code, description, created_at, updated_at FROM course_types WHERE id = $1`
	var ct models.CourseType
	if err := r.db.GetContext(ctx, &ct, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find course type: %w", err)
	}
	return &ct, nil
}

// TypeCodeExists reports whether a course type code is taken by a different row.
func (r *CourseRepository) TypeCodeExists(ctx context.Context, code string, excludeID int64) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM course_types WHERE LOWER(code) = LOWER($1) AND id <> $2)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, code, excludeID); err != nil {
		return false, fmt.Errorf("check course type code: %w", err)
	}
	return exists, nil
}

// CreateType inserts a course type.
func (r *CourseRepository) CreateType(ctx context.Context, ct *models.CourseType) error {
	now := time.Now().UTC()
	ct.CreatedAt, ct.UpdatedAt = now, now
	const query = `INSERT INTO course_types (name, code, description, created_at, updated_at) VALUES ($1, $2, $3, $4, $5) RETURNING id`
	if err := r.db.GetContext(ctx, &ct.ID, query, ct.Name, ct.Code, ct.Description, ct.CreatedAt, ct.UpdatedAt); err != nil {
		return fmt.Errorf("create course type: %w", err)
	}
	return nil
}

// UpdateType rewrites a course type.
func (r *CourseRepository) UpdateType(ctx context.Context, ct *models.CourseType) error {
	ct.UpdatedAt = time.Now().UTC()
	const query = `UPDATE course_types SET name = :name, code = :code, description = :description, updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, ct)
	if err != nil {
		return fmt.Errorf("update course type: %w", err)
	}
	return expectAffected(res)
}

// DeleteType removes a course type. Courses keep existing with a NULL type.
func (r *CourseRepository) DeleteType(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM course_types WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete course type: %w", err)
	}
	return expectAffected(res)
}

// FindByID loads a course with its type name.
func (r *CourseRepository) FindByID(ctx context.Context, id int64) (*models.CourseDetail, error) {
	query := fmt.Sprintf(`SELECT %s, ct.name AS course_type_name
FROM courses c LEFT JOIN course_types ct ON ct.id = c.course_type_id WHERE c.id = $1`, courseColumns)
	var course models.CourseDetail
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find course: %w", err)
	}
	return &course, nil
}

// CodeExists reports whether a course code is taken by a different row.
func (r *CourseRepository) CodeExists(ctx context.Context, code string, excludeID int64) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM courses WHERE LOWER(code) = LOWER($1) AND id <> $2)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, code, excludeID); err != nil {
		return false, fmt.Errorf("check course code: %w", err)
	}
	return exists, nil
}

// List returns courses matching the filter with the total count.
func (r *CourseRepository) List(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, int, error) {
	var conds conditions
	if filter.Status != "" {
		conds.add("c.status = $%d", filter.Status)
	}
	if filter.CourseTypeID != nil {
		conds.add("c.course_type_id = $%d", *filter.CourseTypeID)
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		conds.add("(LOWER(c.name) LIKE $%[1]d OR LOWER(c.code) LIKE $%[1]d OR LOWER(COALESCE(c.description, '')) LIKE $%[1]d)", "%"+strings.ToLower(s)+"%")
	}
	order := orderBy(filter.SortBy, filter.SortOrder, map[string]string{
		"code":        "c.code",
		"name":        "c.name",
		"tuition_fee": "c.tuition_fee",
		"created_at":  "c.created_at",
	}, "created_at")
	limit, offset := paging(filter.Page, filter.PageSize)

	query := fmt.Sprintf(`SELECT %s, ct.name AS course_type_name
FROM courses c LEFT JOIN course_types ct ON ct.id = c.course_type_id
WHERE %s ORDER BY %s LIMIT %d OFFSET %d`, courseColumns, conds.where(), order, limit, offset)
	var courses []models.CourseDetail
	if err := r.db.SelectContext(ctx, &courses, query, conds.args...); err != nil {
		return nil, 0, fmt.Errorf("list courses: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM courses c WHERE %s", conds.where())
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, conds.args...); err != nil {
		return nil, 0, fmt.Errorf("count courses: %w", err)
	}
	return courses, total, nil
}

// Create inserts a course.
func (r *CourseRepository) Create(ctx context.Context, course *models.Course) error {
	now := time.Now().UTC()
	course.CreatedAt, course.UpdatedAt = now, now
	if course.Status == "" {
		course.Status = models.CourseStatusDraft
	}
	const query = `INSERT INTO courses (course_type_id, code, name, description, duration_hours, duration_sessions, tuition_fee,
max_students, requirements, status, created_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13) RETURNING id`
	if err := r.db.GetContext(ctx, &course.ID, query, course.CourseTypeID, course.Code, course.Name, course.Description,
		course.DurationHours, course.DurationSessions, course.TuitionFee, course.MaxStudents, course.Requirements,
		course.Status, course.CreatedBy, course.CreatedAt, course.UpdatedAt); err != nil {
		return fmt.Errorf("create course: %w", err)
	}
	return nil
}

// Update rewrites the mutable fields of a course.
func (r *CourseRepository) Update(ctx context.Context, course *models.Course) error {
	course.UpdatedAt = time.Now().UTC()
	const query = `UPDATE courses SET course_type_id = :course_type_id, code = :code, name = :name, description = :description,
duration_hours = :duration_hours, duration_sessions = :duration_sessions, tuition_fee = :tuition_fee,
max_students = :max_students, requirements = :requirements, status = :status, updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, course)
	if err != nil {
		return fmt.Errorf("update course: %w", err)
	}
	return expectAffected(res)
}

// UpdateStatus changes the publication status of a course.
func (r *CourseRepository) UpdateStatus(ctx context.Context, id int64, status models.CourseStatus) error {
	res, err := r.db.ExecContext(ctx, `UPDATE courses SET status = $2, updated_at = $3 WHERE id = $1`, id, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update course status: %w", err)
	}
	return expectAffected(res)
}

// Delete removes a course.
func (r *CourseRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM courses WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete course: %w", err)
	}
	return expectAffected(res)
}

// CountByStatus returns the course total per status.
func (r *CourseRepository) CountByStatus(ctx context.Context) (map[models.CourseStatus]int, error) {
	var rows []struct {
		Status models.CourseStatus `db:"status"`
		Total  int                 `db:"total"`
	}
	if err := r.db.SelectContext(ctx, &rows, `SELECT status, COUNT(*) AS total FROM courses GROUP BY status`); err != nil {
		return nil, fmt.Errorf("count courses by status: %w", err)
	}
	counts := make(map[models.CourseStatus]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Total
	}
	return counts, nil
}
