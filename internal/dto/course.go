package dto

import (
	"encoding/json"
	"time"

	"github.com/noah-isme/short-course-api/internal/models"
)

// CourseTypeRequest creates or updates a course type.
type CourseTypeRequest struct {
	Name        string  `json:"name" validate:"required,max=100"`
	Code        string  `json:"code" validate:"required,max=20"`
	Description *string `json:"description"`
}

// CourseRequest creates or updates a course.
type CourseRequest struct {
	CourseTypeID     *int64              `json:"course_type_id"`
	Code             string              `json:"code" validate:"required,max=20"`
	Name             string              `json:"name" validate:"required,max=200"`
	Description      *string             `json:"description"`
	DurationHours    *int                `json:"duration_hours" validate:"omitempty,gt=0"`
	DurationSessions *int                `json:"duration_sessions" validate:"omitempty,gt=0"`
	TuitionFee       *float64            `json:"tuition_fee" validate:"omitempty,gte=0"`
	MaxStudents      *int                `json:"max_students" validate:"omitempty,gte=1"`
	Requirements     *string             `json:"requirements"`
	Status           models.CourseStatus `json:"status" validate:"omitempty,oneof=DRAFT ACTIVE INACTIVE"`
}

// CourseStatusRequest changes the publication state of a course.
type CourseStatusRequest struct {
	Status models.CourseStatus `json:"status" validate:"required,oneof=DRAFT ACTIVE INACTIVE"`
}

// ClassRequest creates or updates a class.
type ClassRequest struct {
	CourseID    int64              `json:"course_id" validate:"required,gt=0"`
	TeacherID   *int64             `json:"teacher_id"`
	ClassCode   string             `json:"class_code" validate:"required,max=30"`
	ClassName   string             `json:"class_name" validate:"required,max=200"`
	StartDate   *time.Time         `json:"start_date"`
	EndDate     *time.Time         `json:"end_date"`
	MaxStudents int                `json:"max_students" validate:"required,gte=1"`
	Room        *string            `json:"room" validate:"omitempty,max=50"`
	Status      models.ClassStatus `json:"status" validate:"omitempty,oneof=PENDING ONGOING COMPLETED CANCELLED"`
}

// UnmarshalJSON accepts start_date and end_date as YYYY-MM-DD or RFC 3339.
func (r *ClassRequest) UnmarshalJSON(data []byte) error {
	type plain ClassRequest
	aux := struct {
		*plain
		StartDate *string `json:"start_date"`
		EndDate   *string `json:"end_date"`
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	var err error
	if r.StartDate, err = parseOptionalDay("start_date", aux.StartDate); err != nil {
		return err
	}
	r.EndDate, err = parseOptionalDay("end_date", aux.EndDate)
	return err
}

// AssignTeacherRequest sets or clears the class teacher.
type AssignTeacherRequest struct {
	TeacherID *int64 `json:"teacher_id"`
}

// ClassStatusRequest changes the class status.
type ClassStatusRequest struct {
	Status models.ClassStatus `json:"status" validate:"required,oneof=PENDING ONGOING COMPLETED CANCELLED"`
}
