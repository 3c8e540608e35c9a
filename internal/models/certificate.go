package models

import "time"

// CertificateStatus represents the lifecycle of a certificate.
type CertificateStatus string

const (
	CertificateStatusDraft   CertificateStatus = "DRAFT"
	CertificateStatusIssued  CertificateStatus = "ISSUED"
	CertificateStatusRevoked CertificateStatus = "REVOKED"
)

func (s CertificateStatus) Valid() bool {
	switch s {
	case CertificateStatusDraft, CertificateStatusIssued, CertificateStatusRevoked:
		return true
	}
	return false
}

// Certificate is issued at most once per enrollment.
type Certificate struct {
	ID              int64             `db:"id" json:"id"`
	EnrollmentID    int64             `db:"enrollment_id" json:"enrollment_id"`
	CertificateCode string            `db:"certificate_code" json:"certificate_code"`
	IssueDate       *time.Time        `db:"issue_date" json:"issue_date,omitempty"`
	FilePath        *string           `db:"file_path" json:"file_path,omitempty"`
	Status          CertificateStatus `db:"status" json:"status"`
	IssuedBy        *int64            `db:"issued_by" json:"issued_by,omitempty"`
	Notes           *string           `db:"notes" json:"notes,omitempty"`
	CreatedAt       time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time         `db:"updated_at" json:"updated_at"`
}

// CertificateDetail carries everything printed on the certificate document.
type CertificateDetail struct {
	Certificate
	StudentID   int64    `db:"student_id" json:"student_id"`
	StudentName string   `db:"student_name" json:"student_name"`
	ClassID     int64    `db:"class_id" json:"class_id"`
	ClassCode   string   `db:"class_code" json:"class_code"`
	ClassName   string   `db:"class_name" json:"class_name"`
	CourseName  string   `db:"course_name" json:"course_name"`
	TotalScore  *float64 `db:"total_score" json:"total_score,omitempty"`
	GradeLetter *string  `db:"grade_letter" json:"grade_letter,omitempty"`
}

// CertificateFilter scopes certificate listings.
type CertificateFilter struct {
	ClassID   *int64
	StudentID *int64
	Status    CertificateStatus
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// EligibleEnrollment is an enrollment that may receive a certificate.
type EligibleEnrollment struct {
	EnrollmentID int64  `db:"enrollment_id" json:"enrollment_id"`
	StudentID    int64  `db:"student_id" json:"student_id"`
	StudentName  string `db:"student_name" json:"student_name"`
}
