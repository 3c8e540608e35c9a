package models

import "time"

// ScheduleStatus represents the state of a class session.
type ScheduleStatus string

const (
	ScheduleStatusScheduled ScheduleStatus = "SCHEDULED"
	ScheduleStatusCompleted ScheduleStatus = "COMPLETED"
	ScheduleStatusCancelled ScheduleStatus = "CANCELLED"
)

// Valid reports whether the status is supported.
func (s ScheduleStatus) Valid() bool {
	return s == ScheduleStatusScheduled || s == ScheduleStatusCompleted || s == ScheduleStatusCancelled
}

// Schedule represents one dated session of a class.
type Schedule struct {
	ID            int64          `db:"id" json:"id"`
	ClassID       int64          `db:"class_id" json:"class_id"`
	SessionNumber int            `db:"session_number" json:"session_number"`
	SessionDate   time.Time      `db:"session_date" json:"session_date"`
	StartTime     ClockTime      `db:"start_time" json:"start_time"`
	EndTime       ClockTime      `db:"end_time" json:"end_time"`
	Room          *string        `db:"room" json:"room,omitempty"`
	Topic         *string        `db:"topic" json:"topic,omitempty"`
	Description   *string        `db:"description" json:"description,omitempty"`
	Status        ScheduleStatus `db:"status" json:"status"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at" json:"updated_at"`
}

// Overlaps reports whether the window start..end collides with s. It mirrors the
// three-clause test of the room conflict query.
func (s *Schedule) Overlaps(start, end ClockTime) bool {
	return (s.StartTime <= start && s.EndTime > start) ||
		(s.StartTime < end && s.EndTime >= end) ||
		(s.StartTime >= start && s.EndTime <= end)
}

// ScheduleDetail adds class information for calendar style listings.
type ScheduleDetail struct {
	Schedule
	ClassCode string `db:"class_code" json:"class_code"`
	ClassName string `db:"class_name" json:"class_name"`
}

// ScheduleFilter describes query params for listing schedules.
type ScheduleFilter struct {
	ClassID   *int64
	Status    ScheduleStatus
	Room      string
	DateFrom  *time.Time
	DateTo    *time.Time
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// RoomConflictQuery identifies the slot checked for room double-booking.
type RoomConflictQuery struct {
	Room      string
	Date      time.Time
	StartTime ClockTime
	EndTime   ClockTime
	ExcludeID *int64
}
