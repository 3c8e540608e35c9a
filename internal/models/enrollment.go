package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentStatusPending   EnrollmentStatus = "PENDING"
	EnrollmentStatusApproved  EnrollmentStatus = "APPROVED"
	EnrollmentStatusRejected  EnrollmentStatus = "REJECTED"
	EnrollmentStatusCompleted EnrollmentStatus = "COMPLETED"
	EnrollmentStatusDropped   EnrollmentStatus = "DROPPED"
)

// Valid reports whether the status is supported.
func (s EnrollmentStatus) Valid() bool {
	switch s {
	case EnrollmentStatusPending, EnrollmentStatusApproved, EnrollmentStatusRejected,
		EnrollmentStatusCompleted, EnrollmentStatusDropped:
		return true
	default:
		return false
	}
}

// PaymentStatus tracks tuition settlement.
type PaymentStatus string

const (
	PaymentStatusUnpaid  PaymentStatus = "UNPAID"
	PaymentStatusPartial PaymentStatus = "PARTIAL"
	PaymentStatusPaid    PaymentStatus = "PAID"
)

// Valid reports whether the payment status is supported.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusUnpaid, PaymentStatusPartial, PaymentStatusPaid:
		return true
	default:
		return false
	}
}

// Enrollment captures a student's request to join a class.
type Enrollment struct {
	ID             int64            `db:"id" json:"id"`
	StudentID      int64            `db:"student_id" json:"student_id"`
	ClassID        int64            `db:"class_id" json:"class_id"`
	EnrollmentDate time.Time        `db:"enrollment_date" json:"enrollment_date"`
	Status         EnrollmentStatus `db:"status" json:"status"`
	PaymentStatus  PaymentStatus    `db:"payment_status" json:"payment_status"`
	PaymentAmount  float64          `db:"payment_amount" json:"payment_amount"`
	Notes          *string          `db:"notes" json:"notes,omitempty"`
	ApprovedBy     *int64           `db:"approved_by" json:"approved_by,omitempty"`
	ApprovedAt     *time.Time       `db:"approved_at" json:"approved_at,omitempty"`
	CreatedAt      time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time        `db:"updated_at" json:"updated_at"`
}

// EnrollmentDetail enriches Enrollment with student, class and course info.
type EnrollmentDetail struct {
	Enrollment
	StudentName    string     `db:"student_name" json:"student_name"`
	StudentEmail   string     `db:"student_email" json:"student_email"`
	ClassCode      string     `db:"class_code" json:"class_code"`
	ClassName      string     `db:"class_name" json:"class_name"`
	Room           *string    `db:"room" json:"room,omitempty"`
	StartDate      *time.Time `db:"start_date" json:"start_date,omitempty"`
	EndDate        *time.Time `db:"end_date" json:"end_date,omitempty"`
	CourseID       int64      `db:"course_id" json:"course_id"`
	CourseCode     string     `db:"course_code" json:"course_code"`
	CourseName     string     `db:"course_name" json:"course_name"`
	TuitionFee     *float64   `db:"tuition_fee" json:"tuition_fee,omitempty"`
	TeacherName    *string    `db:"teacher_name" json:"teacher_name,omitempty"`
	ApprovedByName *string    `db:"approved_by_name" json:"approved_by_name,omitempty"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	StudentID     *int64
	ClassID       *int64
	Status        EnrollmentStatus
	PaymentStatus PaymentStatus
	Page          int
	PageSize      int
	SortBy        string
	SortOrder     string
}
