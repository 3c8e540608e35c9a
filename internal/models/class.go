package models

import "time"

// ClassStatus represents the lifecycle of a class offering.
type ClassStatus string

const (
	ClassStatusPending   ClassStatus = "PENDING"
	ClassStatusOngoing   ClassStatus = "ONGOING"
	ClassStatusCompleted ClassStatus = "COMPLETED"
	ClassStatusCancelled ClassStatus = "CANCELLED"
)

// Valid reports whether the status is supported.
func (s ClassStatus) Valid() bool {
	switch s {
	case ClassStatusPending, ClassStatusOngoing, ClassStatusCompleted, ClassStatusCancelled:
		return true
	default:
		return false
	}
}

// Closed reports whether the class no longer accepts enrollments.
func (s ClassStatus) Closed() bool {
	return s == ClassStatusCompleted || s == ClassStatusCancelled
}

// Class is one scheduled, capacity-bounded offering of a course.
type Class struct {
	ID              int64       `db:"id" json:"id"`
	CourseID        int64       `db:"course_id" json:"course_id"`
	TeacherID       *int64      `db:"teacher_id" json:"teacher_id,omitempty"`
	ClassCode       string      `db:"class_code" json:"class_code"`
	ClassName       string      `db:"class_name" json:"class_name"`
	StartDate       *time.Time  `db:"start_date" json:"start_date,omitempty"`
	EndDate         *time.Time  `db:"end_date" json:"end_date,omitempty"`
	MaxStudents     int         `db:"max_students" json:"max_students"`
	CurrentStudents int         `db:"current_students" json:"current_students"`
	Room            *string     `db:"room" json:"room,omitempty"`
	Status          ClassStatus `db:"status" json:"status"`
	CreatedAt       time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time   `db:"updated_at" json:"updated_at"`
}

// Full reports whether the class has no free seats left.
func (c *Class) Full() bool {
	return c.CurrentStudents >= c.MaxStudents
}

// AvailableSeats returns the number of free seats, never negative.
func (c *Class) AvailableSeats() int {
	if c.Full() {
		return 0
	}
	return c.MaxStudents - c.CurrentStudents
}

// ClassDetail extends Class with course and teacher information.
type ClassDetail struct {
	Class
	CourseCode  string   `db:"course_code" json:"course_code"`
	CourseName  string   `db:"course_name" json:"course_name"`
	TuitionFee  *float64 `db:"tuition_fee" json:"tuition_fee,omitempty"`
	TeacherName *string  `db:"teacher_name" json:"teacher_name,omitempty"`
}

// ClassFilter defines filter criteria for listing classes.
type ClassFilter struct {
	CourseID      *int64
	TeacherID     *int64
	Status        ClassStatus
	AvailableOnly bool
	Search        string
	Page          int
	PageSize      int
	SortBy        string
	SortOrder     string
}
