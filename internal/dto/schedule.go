package dto

import (
	"encoding/json"
	"time"

	"github.com/noah-isme/short-course-api/internal/models"
)

// ScheduleRequest creates or updates one session.
type ScheduleRequest struct {
	ClassID       int64                 `json:"class_id" validate:"required,gt=0"`
	SessionNumber int                   `json:"session_number" validate:"required,gte=1"`
	SessionDate   time.Time             `json:"session_date" validate:"required"`
	StartTime     models.ClockTime      `json:"start_time"`
	EndTime       models.ClockTime      `json:"end_time"`
	Room          *string               `json:"room" validate:"omitempty,max=50"`
	Topic         *string               `json:"topic" validate:"omitempty,max=200"`
	Description   *string               `json:"description"`
	Status        models.ScheduleStatus `json:"status" validate:"omitempty,oneof=SCHEDULED COMPLETED CANCELLED"`
}

// UnmarshalJSON accepts session_date as YYYY-MM-DD or RFC 3339.
func (r *ScheduleRequest) UnmarshalJSON(data []byte) error {
	type plain ScheduleRequest
	aux := struct {
		*plain
		SessionDate *string `json:"session_date"`
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	day, err := parseOptionalDay("session_date", aux.SessionDate)
	if err != nil {
		return err
	}
	r.SessionDate = time.Time{}
	if day != nil {
		r.SessionDate = *day
	}
	return nil
}

// BatchScheduleRequest generates weekly sessions across the class date range.
type BatchScheduleRequest struct {
	ClassID     int64            `json:"class_id" validate:"required,gt=0"`
	DaysOfWeek  []int            `json:"days_of_week" validate:"required,min=1,dive,min=1,max=7"`
	StartTime   models.ClockTime `json:"start_time"`
	EndTime     models.ClockTime `json:"end_time"`
	Room        *string          `json:"room" validate:"omitempty,max=50"`
	TopicPrefix *string          `json:"topic_prefix" validate:"omitempty,max=150"`
}
