package models

import "time"

// AuditAction constants represent actions to be logged.
const (
	AuditActionLogin          = "LOGIN"
	AuditActionLogout         = "LOGOUT"
	AuditActionRegister       = "REGISTER"
	AuditActionPasswordChange = "PASSWORD_CHANGE"
	AuditActionPasswordReset  = "PASSWORD_RESET"
	AuditActionTokenReuse     = "REFRESH_TOKEN_REUSE"

	AuditActionUserCreate   = "USER_CREATE"
	AuditActionUserUpdate   = "USER_UPDATE"
	AuditActionUserDelete   = "USER_DELETE"
	AuditActionCourseWrite  = "COURSE_WRITE"
	AuditActionClassWrite   = "CLASS_WRITE"
	AuditActionEnrollment   = "ENROLLMENT_TRANSITION"
	AuditActionPayment      = "ENROLLMENT_PAYMENT"
	AuditActionScheduleEdit = "SCHEDULE_WRITE"
	AuditActionGradeWrite   = "GRADE_WRITE"
	AuditActionCertificate  = "CERTIFICATE_WRITE"
	AuditActionReportCreate = "REPORT_REQUEST"
	AuditActionReportFetch  = "REPORT_DOWNLOAD"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *int64    `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	OldValues  []byte    `db:"old_values" json:"old_values,omitempty"`
	NewValues  []byte    `db:"new_values" json:"new_values,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// RequestMeta carries the caller's network details into audit records.
type RequestMeta struct {
	IP        string
	UserAgent string
}
