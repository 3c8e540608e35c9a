package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/short-course-api/internal/dto"
	"github.com/noah-isme/short-course-api/internal/models"
	"github.com/noah-isme/short-course-api/internal/service"
	appErrors "github.com/noah-isme/short-course-api/pkg/errors"
)

type attendanceServiceStub struct {
	markErr    error
	gotMark    dto.MarkAttendanceRequest
	gotMarkAll dto.MarkAllRequest
	gotActor   service.Actor
	rate       *models.AttendanceRate
	records    []models.AttendanceRecord
}

func (s *attendanceServiceStub) Mark(ctx context.Context, scheduleID int64, req dto.MarkAttendanceRequest, actor service.Actor) (*models.Attendance, error) {
	s.gotMark, s.gotActor = req, actor
	if s.markErr != nil {
		return nil, s.markErr
	}
	return &models.Attendance{ID: 1, ScheduleID: scheduleID, StudentID: req.StudentID, Status: req.Status}, nil
}

func (s *attendanceServiceStub) MarkAll(ctx context.Context, scheduleID int64, req dto.MarkAllRequest, actor service.Actor) (*models.MarkAllResult, error) {
	s.gotMarkAll = req
	return &models.MarkAllResult{ScheduleID: scheduleID, Created: 3, Updated: 1}, nil
}

func (s *attendanceServiceStub) Update(ctx context.Context, id int64, req dto.UpdateAttendanceRequest, actor service.Actor) (*models.Attendance, error) {
	return &models.Attendance{ID: id, Status: req.Status}, nil
}

func (s *attendanceServiceStub) Delete(ctx context.Context, id int64, actor service.Actor) error {
	return nil
}

func (s *attendanceServiceStub) ListBySchedule(ctx context.Context, scheduleID int64, actor service.Actor) ([]models.AttendanceRecord, error) {
	return s.records, nil
}

func (s *attendanceServiceStub) ListByStudentAndClass(ctx context.Context, studentID, classID int64, actor service.Actor) ([]models.AttendanceRecord, error) {
	return s.records, nil
}

func (s *attendanceServiceStub) Rate(ctx context.Context, studentID, classID int64, actor service.Actor) (*models.AttendanceRate, error) {
	return s.rate, nil
}

func (s *attendanceServiceStub) ScheduleSummary(ctx context.Context, scheduleID int64, actor service.Actor) (*models.AttendanceSummary, error) {
	return &models.AttendanceSummary{ScheduleID: scheduleID}, nil
}

func TestAttendanceHandlerMark(t *testing.T) {
	svc := &attendanceServiceStub{}
	h := NewAttendanceHandler(svc)

	c, w := newGinContext(http.MethodPost, "/schedules/9/attendance", mustJSON(t, map[string]interface{}{"student_id": 31, "status": "LATE"}))
	asUser(c, 20, models.RoleTeacher)
	withParams(c, "id", "9")
	h.Mark(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(31), svc.gotMark.StudentID)
	assert.Equal(t, models.AttendanceStatus("LATE"), svc.gotMark.Status)
	assert.Equal(t, int64(20), svc.gotActor.ID)
}

func TestAttendanceHandlerMarkDuplicate(t *testing.T) {
	h := NewAttendanceHandler(&attendanceServiceStub{markErr: appErrors.Clone(appErrors.ErrConflict, "attendance already recorded")})

	c, w := newGinContext(http.MethodPost, "/schedules/9/attendance", mustJSON(t, map[string]interface{}{"student_id": 31, "status": "PRESENT"}))
	asUser(c, 20, models.RoleTeacher)
	withParams(c, "id", "9")
	h.Mark(c)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "CONFLICT", decodeEnvelope(t, w).Error.Code)
}

func TestAttendanceHandlerMarkAll(t *testing.T) {
	svc := &attendanceServiceStub{}
	h := NewAttendanceHandler(svc)

	c, w := newGinContext(http.MethodPost, "/schedules/9/attendance/all", mustJSON(t, map[string]string{"status": "PRESENT"}))
	asUser(c, 1, models.RoleAdmin)
	withParams(c, "id", "9")
	h.MarkAll(c)

	require.Equal(t, http.StatusOK, w.Code)
	var result models.MarkAllResult
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &result))
	assert.Equal(t, models.MarkAllResult{ScheduleID: 9, Created: 3, Updated: 1}, result)
}

func TestAttendanceHandlerRate(t *testing.T) {
	svc := &attendanceServiceStub{
		rate:    &models.AttendanceRate{StudentID: 31, ClassID: 4, Attended: 3, Total: 4, Rate: 75},
		records: []models.AttendanceRecord{{Attendance: models.Attendance{ID: 1}}},
	}
	h := NewAttendanceHandler(svc)

	c, w := newGinContext(http.MethodGet, "/attendance/rate?student_id=31&class_id=4", nil)
	asUser(c, 31, models.RoleStudent)
	h.Rate(c)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Records []models.AttendanceRecord `json:"records"`
		Rate    models.AttendanceRate     `json:"rate"`
	}
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &body))
	assert.Len(t, body.Records, 1)
	assert.Equal(t, 75.0, body.Rate.Rate)
}

func TestAttendanceHandlerRateRequiresClass(t *testing.T) {
	h := NewAttendanceHandler(&attendanceServiceStub{})

	c, w := newGinContext(http.MethodGet, "/attendance/rate?student_id=31", nil)
	asUser(c, 31, models.RoleStudent)
	h.Rate(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decodeEnvelope(t, w).Error.Message, "class_id")
}
