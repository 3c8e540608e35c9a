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

const gradeColumns = `g.id, g.enrollment_id, g.attendance_score, g.process_score, g.final_score, g.total_score, g.grade_letter,
g.pass, g.note, g.graded_by, g.graded_at, g.created_at, g.updated_at`

const gradeDetailSelect = `SELECT ` + gradeColumns + `, e.student_id, u.full_name AS student_name, e.class_id, cl.class_code
FROM grades g
JOIN enrollments e ON e.id = g.enrollment_id
JOIN users u ON u.id = e.student_id
JOIN classes cl ON cl.id = e.class_id`

// GradeRepository persists score sheets.
type GradeRepository struct {
	db *sqlx.DB
}

// NewGradeRepository constructs the repository.
func NewGradeRepository(db *sqlx.DB) *GradeRepository {
	return &GradeRepository{db: db}
}

// FindByID loads a grade with its student and class.
func (r *GradeRepository) FindByID(ctx context.Context, id int64) (*models.GradeDetail, error) {
	var detail models.GradeDetail
	if err := r.db.GetContext(ctx, &detail, gradeDetailSelect+` WHERE g.id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find grade: %w", err)
	}
	return &detail, nil
}

// FindByEnrollmentID loads the grade of an enrollment.
func (r *GradeRepository) FindByEnrollmentID(ctx context.Context, enrollmentID int64) (*models.Grade, error) {
	query := fmt.Sprintf(`SELECT %s FROM grades g WHERE g.enrollment_id = $1`, gradeColumns)
	var grade models.Grade
	if err := r.db.GetContext(ctx, &grade, query, enrollmentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find grade by enrollment: %w", err)
	}
	return &grade, nil
}

// Upsert writes the grade of grade.EnrollmentID, creating it on first write.
func (r *GradeRepository) Upsert(ctx context.Context, grade *models.Grade) error {
	now := time.Now().UTC()
	grade.UpdatedAt = now
	if grade.CreatedAt.IsZero() {
		grade.CreatedAt = now
	}
	const query = `INSERT INTO grades (enrollment_id, attendance_score, process_score, final_score, total_score, grade_letter, pass,
note, graded_by, graded_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (enrollment_id)
DO UPDATE SET attendance_score = EXCLUDED.attendance_score, process_score = EXCLUDED.process_score,
final_score = EXCLUDED.final_score, total_score = EXCLUDED.total_score, grade_letter = EXCLUDED.grade_letter,
pass = EXCLUDED.pass, note = EXCLUDED.note, graded_by = EXCLUDED.graded_by, graded_at = EXCLUDED.graded_at,
updated_at = EXCLUDED.updated_at
RETURNING id, created_at`
	row := r.db.QueryRowxContext(ctx, query, grade.EnrollmentID, grade.AttendanceScore, grade.ProcessScore, grade.FinalScore,
		grade.TotalScore, grade.GradeLetter, grade.Pass, grade.Note, grade.GradedBy, grade.GradedAt, grade.CreatedAt, grade.UpdatedAt)
	if err := row.Scan(&grade.ID, &grade.CreatedAt); err != nil {
		return fmt.Errorf("upsert grade: %w", err)
	}
	return nil
}

// Delete removes a grade.
func (r *GradeRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM grades WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete grade: %w", err)
	}
	return expectAffected(res)
}

// ListByClass returns every approved or completed enrollment of a class with its grade, if any.
func (r *GradeRepository) ListByClass(ctx context.Context, classID int64) ([]models.StudentGrade, error) {
	const query = `SELECT e.id AS enrollment_id, e.status AS enrollment_status, e.student_id,
  u.full_name AS student_name, u.email AS student_email,
  g.id AS grade_id, g.attendance_score, g.process_score, g.final_score, g.total_score, g.grade_letter, g.pass
FROM enrollments e
JOIN users u ON u.id = e.student_id
LEFT JOIN grades g ON g.enrollment_id = e.id
WHERE e.class_id = $1 AND e.status IN ('APPROVED', 'COMPLETED')
ORDER BY u.full_name ASC`
	var rows []models.StudentGrade
	if err := r.db.SelectContext(ctx, &rows, query, classID); err != nil {
		return nil, fmt.Errorf("list class grades: %w", err)
	}
	return rows, nil
}

// TopByClass returns the n best totals of a class.
func (r *GradeRepository) TopByClass(ctx context.Context, classID int64, limit int) ([]models.GradeDetail, error) {
	query := gradeDetailSelect + ` WHERE e.class_id = $1 AND g.total_score IS NOT NULL ORDER BY g.total_score DESC, u.full_name ASC LIMIT $2`
	var rows []models.GradeDetail
	if err := r.db.SelectContext(ctx, &rows, query, classID, limit); err != nil {
		return nil, fmt.Errorf("list top grades: %w", err)
	}
	return rows, nil
}

// FindForStudent returns a student's grade in a class.
func (r *GradeRepository) FindForStudent(ctx context.Context, studentID, classID int64) (*models.GradeDetail, error) {
	var detail models.GradeDetail
	if err := r.db.GetContext(ctx, &detail, gradeDetailSelect+` WHERE e.student_id = $1 AND e.class_id = $2`, studentID, classID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find student grade: %w", err)
	}
	return &detail, nil
}

// ListForStudent returns every grade of a student.
func (r *GradeRepository) ListForStudent(ctx context.Context, studentID int64) ([]models.GradeDetail, error) {
	var rows []models.GradeDetail
	if err := r.db.SelectContext(ctx, &rows, gradeDetailSelect+` WHERE e.student_id = $1 ORDER BY g.updated_at DESC`, studentID); err != nil {
		return nil, fmt.Errorf("list student grades: %w", err)
	}
	return rows, nil
}
