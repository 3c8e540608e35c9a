package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/short-course-api/internal/dto"
	"github.com/noah-isme/short-course-api/internal/models"
	"github.com/noah-isme/short-course-api/internal/service"
	"github.com/noah-isme/short-course-api/pkg/response"
)

type attendanceService interface {
	Mark(ctx context.Context, scheduleID int64, req dto.MarkAttendanceRequest, actor service.Actor) (*models.Attendance, error)
	MarkAll(ctx context.Context, scheduleID int64, req dto.MarkAllRequest, actor service.Actor) (*models.MarkAllResult, error)
	Update(ctx context.Context, id int64, req dto.UpdateAttendanceRequest, actor service.Actor) (*models.Attendance, error)
	Delete(ctx context.Context, id int64, actor service.Actor) error
	ListBySchedule(ctx context.Context, scheduleID int64, actor service.Actor) ([]models.AttendanceRecord, error)
	ListByStudentAndClass(ctx context.Context, studentID, classID int64, actor service.Actor) ([]models.AttendanceRecord, error)
	Rate(ctx context.Context, studentID, classID int64, actor service.Actor) (*models.AttendanceRate, error)
	ScheduleSummary(ctx context.Context, scheduleID int64, actor service.Actor) (*models.AttendanceSummary, error)
}

// AttendanceHandler records session attendance.
type AttendanceHandler struct {
	service attendanceService
}

// NewAttendanceHandler constructs the handler.
func NewAttendanceHandler(svc attendanceService) *AttendanceHandler {
	return &AttendanceHandler{service: svc}
}

// Mark godoc
// @Summary Mark one student for a session
// @Description Creates or overwrites the record of the (session, student) pair
// @Tags Attendance
// @Accept json
// @Produce json
// @Param id path int true "Schedule ID"
// @Param payload body dto.MarkAttendanceRequest true "Attendance"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Security BearerAuth
// @Router /schedules/{id}/attendance [post]
func (h *AttendanceHandler) Mark(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	scheduleID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req dto.MarkAttendanceRequest
	if !bindJSON(c, &req) {
		return
	}
	record, err := h.service.Mark(c.Request.Context(), scheduleID, req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// MarkAll godoc
// @Summary Apply one status to every approved student of a session
// @Tags Attendance
// @Accept json
// @Produce json
// @Param id path int true "Schedule ID"
// @Param payload body dto.MarkAllRequest true "Status"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /schedules/{id}/attendance/all [post]
func (h *AttendanceHandler) MarkAll(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	scheduleID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req dto.MarkAllRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.service.MarkAll(c.Request.Context(), scheduleID, req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// ListBySchedule godoc
// @Summary Attendance records of a session
// @Tags Attendance
// @Produce json
// @Param id path int true "Schedule ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /schedules/{id}/attendance [get]
func (h *AttendanceHandler) ListBySchedule(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	scheduleID, ok := pathID(c, "id")
	if !ok {
		return
	}
	records, err := h.service.ListBySchedule(c.Request.Context(), scheduleID, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

// Summary godoc
// @Summary Status counts and unmarked students of a session
// @Tags Attendance
// @Produce json
// @Param id path int true "Schedule ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /schedules/{id}/attendance/summary [get]
func (h *AttendanceHandler) Summary(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	scheduleID, ok := pathID(c, "id")
	if !ok {
		return
	}
	summary, err := h.service.ScheduleSummary(c.Request.Context(), scheduleID, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// Update godoc
// @Summary Edit an attendance record
// @Tags Attendance
// @Accept json
// @Produce json
// @Param id path int true "Attendance ID"
// @Param payload body dto.UpdateAttendanceRequest true "Attendance"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /attendance/{id} [put]
func (h *AttendanceHandler) Update(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req dto.UpdateAttendanceRequest
	if !bindJSON(c, &req) {
		return
	}
	record, err := h.service.Update(c.Request.Context(), id, req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// Delete godoc
// @Summary Delete an attendance record
// @Tags Attendance
// @Param id path int true "Attendance ID"
// @Success 204
// @Security BearerAuth
// @Router /attendance/{id} [delete]
func (h *AttendanceHandler) Delete(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), id, actor); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Rate godoc
// @Summary Attendance history and rate of a student in a class
// @Description Rate is the share of PRESENT or LATE records, in percent
// @Tags Attendance
// @Produce json
// @Param student_id query int true "Student ID"
// @Param class_id query int true "Class ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /attendance/rate [get]
func (h *AttendanceHandler) Rate(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	studentID, ok := requiredQueryID(c, "student_id")
	if !ok {
		return
	}
	classID, ok := requiredQueryID(c, "class_id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	records, err := h.service.ListByStudentAndClass(ctx, studentID, classID, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	rate, err := h.service.Rate(ctx, studentID, classID, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"records": records, "rate": rate}, nil)
}
