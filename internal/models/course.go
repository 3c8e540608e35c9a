package models

import "time"

// CourseStatus describes catalog visibility of a course.
type CourseStatus string

const (
	CourseStatusDraft    CourseStatus = "DRAFT"
	CourseStatusActive   CourseStatus = "ACTIVE"
	CourseStatusInactive CourseStatus = "INACTIVE"
)

// Valid reports whether the status is supported.
func (s CourseStatus) Valid() bool {
	switch s {
	case CourseStatusDraft, CourseStatusActive, CourseStatusInactive:
		return true
	default:
		return false
	}
}

// CourseType groups courses in the catalog.
type CourseType struct {
	ID          int64     `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Code        string    `db:"code" json:"code"`
	Description *string   `db:"description" json:"description,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Course is a catalog template independent of any specific run.
type Course struct {
	ID               int64        `db:"id" json:"id"`
	CourseTypeID     *int64       `db:"course_type_id" json:"course_type_id,omitempty"`
	Code             string       `db:"code" json:"code"`
	Name             string       `db:"name" json:"name"`
	Description      *string      `db:"description" json:"description,omitempty"`
	DurationHours    *int         `db:"duration_hours" json:"duration_hours,omitempty"`
	DurationSessions *int         `db:"duration_sessions" json:"duration_sessions,omitempty"`
	TuitionFee       *float64     `db:"tuition_fee" json:"tuition_fee,omitempty"`
	MaxStudents      *int         `db:"max_students" json:"max_students,omitempty"`
	Requirements     *string      `db:"requirements" json:"requirements,omitempty"`
	Status           CourseStatus `db:"status" json:"status"`
	CreatedBy        *int64       `db:"created_by" json:"created_by,omitempty"`
	CreatedAt        time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time    `db:"updated_at" json:"updated_at"`
}

// CourseDetail enriches Course with its type name.
type CourseDetail struct {
	Course
	CourseTypeName *string `db:"course_type_name" json:"course_type_name,omitempty"`
}

// CourseFilter defines filters for listing courses.
type CourseFilter struct {
	Status       CourseStatus
	CourseTypeID *int64
	Search       string
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}
