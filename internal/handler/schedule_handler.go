package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/short-course-api/internal/dto"
	"github.com/noah-isme/short-course-api/internal/models"
	"github.com/noah-isme/short-course-api/internal/service"
	appErrors "github.com/noah-isme/short-course-api/pkg/errors"
	"github.com/noah-isme/short-course-api/pkg/response"
)

type scheduleService interface {
	Get(ctx context.Context, id int64) (*models.ScheduleDetail, error)
	Create(ctx context.Context, req dto.ScheduleRequest, actor service.Actor) (*models.ScheduleDetail, error)
	GenerateBatch(ctx context.Context, req dto.BatchScheduleRequest, actor service.Actor) ([]models.Schedule, error)
	Update(ctx context.Context, id int64, req dto.ScheduleRequest, actor service.Actor) (*models.ScheduleDetail, error)
	Complete(ctx context.Context, id int64, actor service.Actor) (*models.ScheduleDetail, error)
	Cancel(ctx context.Context, id int64, actor service.Actor) (*models.ScheduleDetail, error)
	Delete(ctx context.Context, id int64, actor service.Actor) error
	ListByClass(ctx context.Context, classID int64) ([]models.ScheduleDetail, error)
	List(ctx context.Context, filter models.ScheduleFilter) ([]models.ScheduleDetail, *models.Pagination, error)
	Upcoming(ctx context.Context, actor service.Actor, days int) ([]models.ScheduleDetail, error)
}

// ScheduleHandler manages class sessions.
type ScheduleHandler struct {
	service scheduleService
}

// NewScheduleHandler constructs the handler.
func NewScheduleHandler(svc scheduleService) *ScheduleHandler {
	return &ScheduleHandler{service: svc}
}

// List godoc
// @Summary List sessions
// @Tags Schedules
// @Produce json
// @Param class_id query int false "Class"
// @Param status query string false "Session status"
// @Param room query string false "Room"
// @Param date_from query string false "YYYY-MM-DD"
// @Param date_to query string false "YYYY-MM-DD"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /schedules [get]
func (h *ScheduleHandler) List(c *gin.Context) {
	p := parseListParams(c)
	filter := models.ScheduleFilter{
		Status:    models.ScheduleStatus(strings.ToUpper(c.Query("status"))),
		Room:      strings.TrimSpace(c.Query("room")),
		Page:      p.Page,
		PageSize:  p.PageSize,
		SortBy:    p.SortBy,
		SortOrder: p.SortOrder,
	}
	if filter.Status != "" && !filter.Status.Valid() {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid status"))
		return
	}
	var ok bool
	if filter.ClassID, ok = queryID(c, "class_id"); !ok {
		return
	}
	if filter.DateFrom, ok = queryDate(c, "date_from"); !ok {
		return
	}
	if filter.DateTo, ok = queryDate(c, "date_to"); !ok {
		return
	}
	items, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// ListByClass godoc
// @Summary Sessions of a class ordered by session number
// @Tags Schedules
// @Produce json
// @Param id path int true "Class ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /classes/{id}/schedules [get]
func (h *ScheduleHandler) ListByClass(c *gin.Context) {
	classID, ok := pathID(c, "id")
	if !ok {
		return
	}
	items, err := h.service.ListByClass(c.Request.Context(), classID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Upcoming godoc
// @Summary Upcoming sessions of the caller
// @Tags Schedules
// @Produce json
// @Param days query int false "Look-ahead window in days" default(7)
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /schedules/upcoming [get]
func (h *ScheduleHandler) Upcoming(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	days, err := strconv.Atoi(c.DefaultQuery("days", "7"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "days must be a number"))
		return
	}
	items, err := h.service.Upcoming(c.Request.Context(), actor, days)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Get godoc
// @Summary Session detail
// @Tags Schedules
// @Produce json
// @Param id path int true "Schedule ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /schedules/{id} [get]
func (h *ScheduleHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	item, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Create godoc
// @Summary Create a session
// @Tags Schedules
// @Accept json
// @Produce json
// @Param payload body dto.ScheduleRequest true "Session"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /schedules [post]
func (h *ScheduleHandler) Create(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.ScheduleRequest
	if !bindJSON(c, &req) {
		return
	}
	item, err := h.service.Create(c.Request.Context(), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

// Batch godoc
// @Summary Generate weekly sessions for the class date range
// @Tags Schedules
// @Accept json
// @Produce json
// @Param payload body dto.BatchScheduleRequest true "Weekly pattern"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /schedules/batch [post]
func (h *ScheduleHandler) Batch(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.BatchScheduleRequest
	if !bindJSON(c, &req) {
		return
	}
	created, err := h.service.GenerateBatch(c.Request.Context(), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, gin.H{"created": len(created), "schedules": created})
}

// Update godoc
// @Summary Update a session
// @Tags Schedules
// @Accept json
// @Produce json
// @Param id path int true "Schedule ID"
// @Param payload body dto.ScheduleRequest true "Session"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /schedules/{id} [put]
func (h *ScheduleHandler) Update(c *gin.Context) {
	var req dto.ScheduleRequest
	if !bindJSON(c, &req) {
		return
	}
	h.step(c, func(ctx context.Context, id int64, actor service.Actor) (*models.ScheduleDetail, error) {
		return h.service.Update(ctx, id, req, actor)
	})
}

// Complete godoc
// @Summary Mark a session held
// @Tags Schedules
// @Produce json
// @Param id path int true "Schedule ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /schedules/{id}/complete [post]
func (h *ScheduleHandler) Complete(c *gin.Context) {
	h.step(c, h.service.Complete)
}

// Cancel godoc
// @Summary Cancel a session
// @Tags Schedules
// @Produce json
// @Param id path int true "Schedule ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /schedules/{id}/cancel [post]
func (h *ScheduleHandler) Cancel(c *gin.Context) {
	h.step(c, h.service.Cancel)
}

func (h *ScheduleHandler) step(c *gin.Context, fn func(ctx context.Context, id int64, actor service.Actor) (*models.ScheduleDetail, error)) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	item, err := fn(c.Request.Context(), id, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Delete godoc
// @Summary Delete a session without attendance
// @Tags Schedules
// @Param id path int true "Schedule ID"
// @Success 204
// @Security BearerAuth
// @Router /schedules/{id} [delete]
func (h *ScheduleHandler) Delete(c *gin.Context) {
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
