package dto

import "github.com/noah-isme/short-course-api/internal/models"

// MarkAttendanceRequest records one student's presence for a session.
type MarkAttendanceRequest struct {
	StudentID int64                   `json:"student_id" validate:"required,gt=0"`
	Status    models.AttendanceStatus `json:"status" validate:"required,oneof=PRESENT ABSENT LATE EXCUSED"`
	Note      *string                 `json:"note" validate:"omitempty,max=500"`
}

// MarkAllRequest applies one status to every approved student of the session.
type MarkAllRequest struct {
	Status models.AttendanceStatus `json:"status" validate:"required,oneof=PRESENT ABSENT LATE EXCUSED"`
}

// UpdateAttendanceRequest edits an existing record.
type UpdateAttendanceRequest struct {
	Status models.AttendanceStatus `json:"status" validate:"required,oneof=PRESENT ABSENT LATE EXCUSED"`
	Note   *string                 `json:"note" validate:"omitempty,max=500"`
}
