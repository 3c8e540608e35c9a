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

const enrollmentColumns = `e.id, e.student_id, e.class_id, e.enrollment_date, e.status, e.payment_status, e.payment_amount,
e.notes, e.approved_by, e.approved_at, e.created_at, e.updated_at`

const enrollmentDetailSelect = `SELECT ` + enrollmentColumns + `,
  s.full_name AS student_name, s.email AS student_email,
  cl.class_code, cl.class_name, cl.room, cl.start_date, cl.end_date,
  c.id AS course_id, c.code AS course_code, c.name AS course_name, c.tuition_fee,
  t.full_name AS teacher_name, a.full_name AS approved_by_name
FROM enrollments e
JOIN users s ON s.id = e.student_id
JOIN classes cl ON cl.id = e.class_id
JOIN courses c ON c.id = cl.course_id
LEFT JOIN users t ON t.id = cl.teacher_id
LEFT JOIN users a ON a.id = e.approved_by`

// EnrollmentRepository persists student enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

func (r *EnrollmentRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindByID loads an enrollment with its display context.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id int64) (*models.EnrollmentDetail, error) {
	var detail models.EnrollmentDetail
	if err := r.db.GetContext(ctx, &detail, enrollmentDetailSelect+` WHERE e.id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find enrollment: %w", err)
	}
	return &detail, nil
}

// LockByID selects the enrollment row FOR UPDATE inside the caller's transaction.
func (r *EnrollmentRepository) LockByID(ctx context.Context, exec sqlx.ExtContext, id int64) (*models.Enrollment, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollments e WHERE e.id = $1 FOR UPDATE`, enrollmentColumns)
	var enrollment models.Enrollment
	if err := sqlx.GetContext(ctx, r.exec(exec), &enrollment, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("lock enrollment: %w", err)
	}
	return &enrollment, nil
}

// FindByStudentAndClass returns the enrollment of a student in a class.
func (r *EnrollmentRepository) FindByStudentAndClass(ctx context.Context, studentID, classID int64) (*models.Enrollment, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollments e WHERE e.student_id = $1 AND e.class_id = $2`, enrollmentColumns)
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, studentID, classID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find enrollment by student and class: %w", err)
	}
	return &enrollment, nil
}

// Exists reports whether the student has any enrollment in the class.
func (r *EnrollmentRepository) Exists(ctx context.Context, studentID, classID int64) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM enrollments WHERE student_id = $1 AND class_id = $2)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, studentID, classID); err != nil {
		return false, fmt.Errorf("check enrollment: %w", err)
	}
	return exists, nil
}

// Create inserts a new enrollment.
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) error {
	now := time.Now().UTC()
	enrollment.CreatedAt, enrollment.UpdatedAt = now, now
	if enrollment.EnrollmentDate.IsZero() {
		enrollment.EnrollmentDate = now
	}
	const query = `INSERT INTO enrollments (student_id, class_id, enrollment_date, status, payment_status, payment_amount, notes, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`
	if err := r.db.GetContext(ctx, &enrollment.ID, query, enrollment.StudentID, enrollment.ClassID, enrollment.EnrollmentDate,
		enrollment.Status, enrollment.PaymentStatus, enrollment.PaymentAmount, enrollment.Notes,
		enrollment.CreatedAt, enrollment.UpdatedAt); err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// UpdateStatus persists a status transition together with its approval stamp and notes.
func (r *EnrollmentRepository) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, enrollment *models.Enrollment) error {
	enrollment.UpdatedAt = time.Now().UTC()
	const query = `UPDATE enrollments SET status = $2, notes = $3, approved_by = $4, approved_at = $5, updated_at = $6 WHERE id = $1`
	res, err := r.exec(exec).ExecContext(ctx, query, enrollment.ID, enrollment.Status, enrollment.Notes,
		enrollment.ApprovedBy, enrollment.ApprovedAt, enrollment.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update enrollment status: %w", err)
	}
	return expectAffected(res)
}

// UpdatePayment stores the paid total and the derived payment status.
func (r *EnrollmentRepository) UpdatePayment(ctx context.Context, exec sqlx.ExtContext, id int64, amount float64, status models.PaymentStatus) error {
	const query = `UPDATE enrollments SET payment_amount = $2, payment_status = $3, updated_at = $4 WHERE id = $1`
	res, err := r.exec(exec).ExecContext(ctx, query, id, amount, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update enrollment payment: %w", err)
	}
	return expectAffected(res)
}

// List returns enrollments matching the filter with the total count.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	var conds conditions
	if filter.StudentID != nil {
		conds.add("e.student_id = $%d", *filter.StudentID)
	}
	if filter.ClassID != nil {
		conds.add("e.class_id = $%d", *filter.ClassID)
	}
	if filter.Status != "" {
		conds.add("e.status = $%d", filter.Status)
	}
	if filter.PaymentStatus != "" {
		conds.add("e.payment_status = $%d", filter.PaymentStatus)
	}
	order := orderBy(filter.SortBy, filter.SortOrder, map[string]string{
		"enrollment_date": "e.enrollment_date",
		"created_at":      "e.created_at",
		"student_name":    "s.full_name",
	}, "created_at")
	limit, offset := paging(filter.Page, filter.PageSize)

	query := fmt.Sprintf("%s WHERE %s ORDER BY %s LIMIT %d OFFSET %d", enrollmentDetailSelect, conds.where(), order, limit, offset)
	var rows []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &rows, query, conds.args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM enrollments e JOIN users s ON s.id = e.student_id WHERE %s", conds.where())
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, conds.args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return rows, total, nil
}

// History lists every enrollment of a student, newest first.
func (r *EnrollmentRepository) History(ctx context.Context, studentID int64) ([]models.EnrollmentDetail, error) {
	var rows []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &rows, enrollmentDetailSelect+` WHERE e.student_id = $1 ORDER BY e.enrollment_date DESC, e.id DESC`, studentID); err != nil {
		return nil, fmt.Errorf("list enrollment history: %w", err)
	}
	return rows, nil
}

// ListApprovedByClass returns the APPROVED enrollments of a class with student names.
func (r *EnrollmentRepository) ListApprovedByClass(ctx context.Context, exec sqlx.ExtContext, classID int64) ([]models.EnrollmentDetail, error) {
	var rows []models.EnrollmentDetail
	query := enrollmentDetailSelect + ` WHERE e.class_id = $1 AND e.status = 'APPROVED' ORDER BY s.full_name ASC`
	if err := sqlx.SelectContext(ctx, r.exec(exec), &rows, query, classID); err != nil {
		return nil, fmt.Errorf("list approved enrollments: %w", err)
	}
	return rows, nil
}

// CountByStatus counts enrollments per status, optionally for one student.
func (r *EnrollmentRepository) CountByStatus(ctx context.Context, studentID *int64) (map[models.EnrollmentStatus]int, error) {
	var conds conditions
	if studentID != nil {
		conds.add("student_id = $%d", *studentID)
	}
	var rows []struct {
		Status models.EnrollmentStatus `db:"status"`
		Total  int                     `db:"total"`
	}
	query := fmt.Sprintf(`SELECT status, COUNT(*) AS total FROM enrollments WHERE %s GROUP BY status`, conds.where())
	if err := r.db.SelectContext(ctx, &rows, query, conds.args...); err != nil {
		return nil, fmt.Errorf("count enrollments by status: %w", err)
	}
	counts := make(map[models.EnrollmentStatus]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Total
	}
	return counts, nil
}

// CountApprovedByClass counts APPROVED enrollments of a class.
func (r *EnrollmentRepository) CountApprovedByClass(ctx context.Context, classID int64) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM enrollments WHERE class_id = $1 AND status = 'APPROVED'`, classID); err != nil {
		return 0, fmt.Errorf("count approved enrollments: %w", err)
	}
	return total, nil
}
