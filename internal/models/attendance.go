package models

import "time"

// AttendanceStatus represents the roll-call result for one session.
type AttendanceStatus string

const (
	AttendanceStatusPresent AttendanceStatus = "PRESENT"
	AttendanceStatusAbsent  AttendanceStatus = "ABSENT"
	AttendanceStatusLate    AttendanceStatus = "LATE"
	AttendanceStatusExcused AttendanceStatus = "EXCUSED"
)

// Valid returns true when the status is a supported value.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendanceStatusPresent, AttendanceStatusAbsent, AttendanceStatusLate, AttendanceStatusExcused:
		return true
	default:
		return false
	}
}

// Attendance is one record per schedule and student.
type Attendance struct {
	ID         int64            `db:"id" json:"id"`
	ScheduleID int64            `db:"schedule_id" json:"schedule_id"`
	StudentID  int64            `db:"student_id" json:"student_id"`
	Status     AttendanceStatus `db:"status" json:"status"`
	Note       *string          `db:"note" json:"note,omitempty"`
	MarkedBy   *int64           `db:"marked_by" json:"marked_by,omitempty"`
	MarkedAt   *time.Time       `db:"marked_at" json:"marked_at,omitempty"`
	CreatedAt  time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time        `db:"updated_at" json:"updated_at"`
}

// AttendanceRecord extends the model with student and session metadata.
type AttendanceRecord struct {
	Attendance
	StudentName   string    `db:"student_name" json:"student_name"`
	SessionNumber int       `db:"session_number" json:"session_number"`
	SessionDate   time.Time `db:"session_date" json:"session_date"`
}

// AttendanceSummary counts statuses of a session.
type AttendanceSummary struct {
	ScheduleID int64              `json:"schedule_id"`
	Present    int                `json:"present"`
	Absent     int                `json:"absent"`
	Late       int                `json:"late"`
	Excused    int                `json:"excused"`
	Total      int                `json:"total"`
	NotMarked  []StudentReference `json:"not_marked"`
}

// AttendanceStatusCount is a grouped count row.
type AttendanceStatusCount struct {
	Status AttendanceStatus `db:"status"`
	Total  int              `db:"total"`
}

// AttendanceRate is the share of PRESENT or LATE records for a student in a class.
type AttendanceRate struct {
	StudentID int64   `json:"student_id"`
	ClassID   int64   `json:"class_id"`
	Attended  int     `json:"attended"`
	Total     int     `json:"total"`
	Rate      float64 `json:"rate"`
}

// MarkAllResult reports the outcome of a whole-class roll call.
type MarkAllResult struct {
	ScheduleID int64 `json:"schedule_id"`
	Created    int   `json:"created"`
	Updated    int   `json:"updated"`
}

// StudentReference is a light projection of a student.
type StudentReference struct {
	StudentID   int64  `db:"student_id" json:"student_id"`
	StudentName string `db:"student_name" json:"student_name"`
}
