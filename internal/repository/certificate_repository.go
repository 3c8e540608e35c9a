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

const certificateColumns = `ce.id, ce.enrollment_id, ce.certificate_code, ce.issue_date, ce.file_path, ce.status, ce.issued_by,
ce.notes, ce.created_at, ce.updated_at`

const certificateDetailSelect = `SELECT ` + certificateColumns + `,
  e.student_id, u.full_name AS student_name, e.class_id, cl.class_code, cl.class_name, c.name AS course_name,
  g.total_score, g.grade_letter
FROM certificates ce
JOIN enrollments e ON e.id = ce.enrollment_id
JOIN users u ON u.id = e.student_id
JOIN classes cl ON cl.id = e.class_id
JOIN courses c ON c.id = cl.course_id
LEFT JOIN grades g ON g.enrollment_id = e.id`

// CertificateRepository persists certificates.
type CertificateRepository struct {
	db *sqlx.DB
}

// NewCertificateRepository constructs the repository.
func NewCertificateRepository(db *sqlx.DB) *CertificateRepository {
	return &CertificateRepository{db: db}
}

func (r *CertificateRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindByID loads a certificate with the data printed on it.
func (r *CertificateRepository) FindByID(ctx context.Context, id int64) (*models.CertificateDetail, error) {
	return r.findDetail(ctx, "ce.id = $1", id)
}

// FindByCode loads a certificate by its public code.
func (r *CertificateRepository) FindByCode(ctx context.Context, code string) (*models.CertificateDetail, error) {
	return r.findDetail(ctx, "ce.certificate_code = $1", code)
}

func (r *CertificateRepository) findDetail(ctx context.Context, where string, arg interface{}) (*models.CertificateDetail, error) {
	var detail models.CertificateDetail
	if err := r.db.GetContext(ctx, &detail, certificateDetailSelect+" WHERE "+where, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find certificate: %w", err)
	}
	return &detail, nil
}

// CodeExists reports whether a certificate code is already used.
func (r *CertificateRepository) CodeExists(ctx context.Context, exec sqlx.ExtContext, code string) (bool, error) {
	var exists bool
	if err := sqlx.GetContext(ctx, r.exec(exec), &exists, `SELECT EXISTS(SELECT 1 FROM certificates WHERE certificate_code = $1)`, code); err != nil {
		return false, fmt.Errorf("check certificate code: %w", err)
	}
	return exists, nil
}

// ExistsForEnrollment reports whether the enrollment already has a certificate.
func (r *CertificateRepository) ExistsForEnrollment(ctx context.Context, enrollmentID int64) (bool, error) {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM certificates WHERE enrollment_id = $1)`, enrollmentID); err != nil {
		return false, fmt.Errorf("check enrollment certificate: %w", err)
	}
	return exists, nil
}

// ListEligible returns the approved, passing enrollments of a class that have no certificate yet.
// Rows are locked so concurrent issuers serialise on the class.
func (r *CertificateRepository) ListEligible(ctx context.Context, exec sqlx.ExtContext, classID int64) ([]models.EligibleEnrollment, error) {
	const query = `SELECT e.id AS enrollment_id, e.student_id, u.full_name AS student_name
FROM enrollments e
JOIN users u ON u.id = e.student_id
JOIN grades g ON g.enrollment_id = e.id
WHERE e.class_id = $1 AND e.status = 'APPROVED' AND g.pass = TRUE
  AND NOT EXISTS (SELECT 1 FROM certificates ce WHERE ce.enrollment_id = e.id)
ORDER BY u.full_name ASC, e.id ASC
FOR UPDATE OF e`
	var rows []models.EligibleEnrollment
	if err := sqlx.SelectContext(ctx, r.exec(exec), &rows, query, classID); err != nil {
		return nil, fmt.Errorf("list eligible enrollments: %w", err)
	}
	return rows, nil
}

// Create inserts a certificate.
func (r *CertificateRepository) Create(ctx context.Context, exec sqlx.ExtContext, cert *models.Certificate) error {
	now := time.Now().UTC()
	cert.CreatedAt, cert.UpdatedAt = now, now
	const query = `INSERT INTO certificates (enrollment_id, certificate_code, issue_date, file_path, status, issued_by, notes, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`
	if err := sqlx.GetContext(ctx, r.exec(exec), &cert.ID, query, cert.EnrollmentID, cert.CertificateCode, cert.IssueDate,
		cert.FilePath, cert.Status, cert.IssuedBy, cert.Notes, cert.CreatedAt, cert.UpdatedAt); err != nil {
		return fmt.Errorf("create certificate: %w", err)
	}
	return nil
}

// Update persists status, issue stamp and notes.
func (r *CertificateRepository) Update(ctx context.Context, cert *models.Certificate) error {
	cert.UpdatedAt = time.Now().UTC()
	const query = `UPDATE certificates SET status = $2, issue_date = $3, issued_by = $4, notes = $5, updated_at = $6 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, cert.ID, cert.Status, cert.IssueDate, cert.IssuedBy, cert.Notes, cert.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update certificate: %w", err)
	}
	return expectAffected(res)
}

// SetFilePath records where the rendered document was stored.
func (r *CertificateRepository) SetFilePath(ctx context.Context, id int64, path string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE certificates SET file_path = $2, updated_at = $3 WHERE id = $1`, id, path, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set certificate file path: %w", err)
	}
	return expectAffected(res)
}

// Delete removes a certificate.
func (r *CertificateRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM certificates WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete certificate: %w", err)
	}
	return expectAffected(res)
}

// List returns certificates matching the filter with the total count.
func (r *CertificateRepository) List(ctx context.Context, filter models.CertificateFilter) ([]models.CertificateDetail, int, error) {
	var conds conditions
	if filter.ClassID != nil {
		conds.add("e.class_id = $%d", *filter.ClassID)
	}
	if filter.StudentID != nil {
		conds.add("e.student_id = $%d", *filter.StudentID)
	}
	if filter.Status != "" {
		conds.add("ce.status = $%d", filter.Status)
	}
	order := orderBy(filter.SortBy, filter.SortOrder, map[string]string{
		"issue_date":       "ce.issue_date",
		"certificate_code": "ce.certificate_code",
		"created_at":       "ce.created_at",
	}, "created_at")
	limit, offset := paging(filter.Page, filter.PageSize)

	query := fmt.Sprintf("%s WHERE %s ORDER BY %s LIMIT %d OFFSET %d", certificateDetailSelect, conds.where(), order, limit, offset)
	var rows []models.CertificateDetail
	if err := r.db.SelectContext(ctx, &rows, query, conds.args...); err != nil {
		return nil, 0, fmt.Errorf("list certificates: %w", err)
	}
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM certificates ce JOIN enrollments e ON e.id = ce.enrollment_id WHERE %s", conds.where())
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, conds.args...); err != nil {
		return nil, 0, fmt.Errorf("count certificates: %w", err)
	}
	return rows, total, nil
}
