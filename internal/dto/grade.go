package dto

// SaveGradeRequest writes the component scores of an enrollment.
type SaveGradeRequest struct {
	EnrollmentID    int64    `json:"enrollment_id" validate:"required,gt=0"`
	AttendanceScore *float64 `json:"attendance_score" validate:"omitempty,gte=0,lte=10"`
	ProcessScore    *float64 `json:"process_score" validate:"omitempty,gte=0,lte=10"`
	FinalScore      *float64 `json:"final_score" validate:"omitempty,gte=0,lte=10"`
	Note            *string  `json:"note" validate:"omitempty,max=1000"`
}
