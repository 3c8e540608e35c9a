package dto

import "github.com/noah-isme/short-course-api/internal/models"

// IssueClassCertificatesRequest issues certificates to every eligible student of a class.
type IssueClassCertificatesRequest struct {
	Prefix string `json:"prefix" validate:"omitempty,max=20,alphanum"`
}

// CreateCertificateRequest drafts a certificate for one enrollment.
type CreateCertificateRequest struct {
	EnrollmentID    int64   `json:"enrollment_id" validate:"required,gt=0"`
	CertificateCode string  `json:"certificate_code" validate:"required,max=50"`
	Notes           *string `json:"notes" validate:"omitempty,max=1000"`
}

// UpdateCertificateRequest edits certificate notes.
type UpdateCertificateRequest struct {
	Notes *string `json:"notes" validate:"omitempty,max=1000"`
}

// RevokeCertificateRequest carries the revocation reason.
type RevokeCertificateRequest struct {
	Reason string `json:"reason" validate:"max=1000"`
}

// CertificateVerification is the public answer to a verification lookup.
type CertificateVerification struct {
	Valid           bool                     `json:"valid"`
	CertificateCode string                   `json:"certificate_code"`
	Status          models.CertificateStatus `json:"status"`
	StudentName     string                   `json:"student_name"`
	CourseName      string                   `json:"course_name"`
	ClassName       string                   `json:"class_name"`
	IssueDate       *string                  `json:"issue_date,omitempty"`
}
