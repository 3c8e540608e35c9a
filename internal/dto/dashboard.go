package dto

import (
	"time"

	"github.com/noah-isme/short-course-api/internal/models"
)

// AdminDashboardResponse aggregates catalogue and enrollment counters for admins.
type AdminDashboardResponse struct {
	Users              UserCounts `json:"users"`
	Courses            Counter    `json:"courses"`
	Classes            Counter    `json:"classes"`
	PendingEnrollments int        `json:"pending_enrollments"`
	GeneratedAt        time.Time  `json:"generated_at"`
}

// UserCounts breaks user totals down by role.
type UserCounts struct {
	Admins   int `json:"admins"`
	Teachers int `json:"teachers"`
	Students int `json:"students"`
}

// Counter pairs a total with the subset currently running.
type Counter struct {
	Total  int `json:"total"`
	Active int `json:"active"`
}

// TeacherDashboardResponse summarises the classes a teacher runs.
type TeacherDashboardResponse struct {
	TeacherID        int64                   `json:"teacher_id"`
	Classes          int                     `json:"classes"`
	ApprovedStudents int                     `json:"approved_students"`
	SessionsThisWeek int                     `json:"sessions_this_week"`
	UngradedStudents int                     `json:"ungraded_students"`
	Upcoming         []models.ScheduleDetail `json:"upcoming"`
	GeneratedAt      time.Time               `json:"generated_at"`
}

// StudentDashboardResponse summarises a student's enrollments.
type StudentDashboardResponse struct {
	StudentID     int64                   `json:"student_id"`
	Enrollments   map[string]int          `json:"enrollments"`
	ActiveClasses int                     `json:"active_classes"`
	Upcoming      []models.ScheduleDetail `json:"upcoming"`
	GeneratedAt   time.Time               `json:"generated_at"`
}
