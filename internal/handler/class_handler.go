package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/short-course-api/internal/dto"
	"github.com/noah-isme/short-course-api/internal/models"
	"github.com/noah-isme/short-course-api/internal/service"
	appErrors "github.com/noah-isme/short-course-api/pkg/errors"
	"github.com/noah-isme/short-course-api/pkg/response"
)

type classService interface {
	Get(ctx context.Context, id int64) (*models.ClassDetail, error)
	List(ctx context.Context, filter models.ClassFilter) ([]models.ClassDetail, *models.Pagination, error)
	Create(ctx context.Context, req dto.ClassRequest, actor service.Actor) (*models.ClassDetail, error)
	Update(ctx context.Context, id int64, req dto.ClassRequest, actor service.Actor) (*models.ClassDetail, error)
	AssignTeacher(ctx context.Context, id int64, teacherID *int64, actor service.Actor) (*models.ClassDetail, error)
	ChangeStatus(ctx context.Context, id int64, status models.ClassStatus, actor service.Actor) (*models.ClassDetail, error)
	Delete(ctx context.Context, id int64, actor service.Actor) error
}

// ClassHandler exposes class CRUD endpoints.
type ClassHandler struct {
	service classService
}

// NewClassHandler constructs a class handler.
func NewClassHandler(svc classService) *ClassHandler {
	return &ClassHandler{service: svc}
}

func classFilterFromQuery(c *gin.Context) (models.ClassFilter, bool) {
	p := parseListParams(c)
	filter := models.ClassFilter{
		Status:    models.ClassStatus(strings.ToUpper(c.Query("status"))),
		Search:    strings.TrimSpace(c.Query("search")),
		Page:      p.Page,
		PageSize:  p.PageSize,
		SortBy:    p.SortBy,
		SortOrder: p.SortOrder,
	}
	if filter.Status != "" && !filter.Status.Valid() {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid status"))
		return filter, false
	}
	var ok bool
	if filter.CourseID, ok = queryID(c, "course_id"); !ok {
		return filter, false
	}
	if filter.TeacherID, ok = queryID(c, "teacher_id"); !ok {
		return filter, false
	}
	return filter, true
}

// List godoc
// @Summary List classes
// @Tags Classes
// @Produce json
// @Param course_id query int false "Course"
// @Param teacher_id query int false "Teacher"
// @Param status query string false "Class status"
// @Param search query string false "Search keyword"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /classes [get]
func (h *ClassHandler) List(c *gin.Context) {
	filter, ok := classFilterFromQuery(c)
	if !ok {
		return
	}
	classes, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, classes, pagination)
}

// Catalog godoc
// @Summary Public list of classes with free seats
// @Tags Catalog
// @Produce json
// @Param course_id query int false "Course"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /catalog/classes [get]
func (h *ClassHandler) Catalog(c *gin.Context) {
	filter, ok := classFilterFromQuery(c)
	if !ok {
		return
	}
	filter.AvailableOnly = true
	filter.TeacherID = nil
	classes, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, classes, pagination)
}

// Get godoc
// @Summary Get class detail
// @Tags Classes
// @Produce json
// @Param id path int true "Class ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /classes/{id} [get]
func (h *ClassHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	class, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, class, nil)
}

// Create godoc
// @Summary Create class
// @Tags Classes
// @Accept json
// @Produce json
// @Param payload body dto.ClassRequest true "Class payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /classes [post]
func (h *ClassHandler) Create(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.ClassRequest
	if !bindJSON(c, &req) {
		return
	}
	class, err := h.service.Create(c.Request.Context(), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, class)
}

// Update godoc
// @Summary Update class
// @Tags Classes
// @Accept json
// @Produce json
// @Param id path int true "Class ID"
// @Param payload body dto.ClassRequest true "Class payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /classes/{id} [put]
func (h *ClassHandler) Update(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req dto.ClassRequest
	if !bindJSON(c, &req) {
		return
	}
	class, err := h.service.Update(c.Request.Context(), id, req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, class, nil)
}

// AssignTeacher godoc
// @Summary Assign or clear the class teacher
// @Tags Classes
// @Accept json
// @Produce json
// @Param id path int true "Class ID"
// @Param payload body dto.AssignTeacherRequest true "Teacher"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /classes/{id}/teacher [patch]
func (h *ClassHandler) AssignTeacher(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req dto.AssignTeacherRequest
	if !bindJSON(c, &req) {
		return
	}
	class, err := h.service.AssignTeacher(c.Request.Context(), id, req.TeacherID, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, class, nil)
}

// ChangeStatus godoc
// @Summary Change class status
// @Tags Classes
// @Accept json
// @Produce json
// @Param id path int true "Class ID"
// @Param payload body dto.ClassStatusRequest true "Status"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /classes/{id}/status [patch]
func (h *ClassHandler) ChangeStatus(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req dto.ClassStatusRequest
	if !bindJSON(c, &req) {
		return
	}
	class, err := h.service.ChangeStatus(c.Request.Context(), id, req.Status, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, class, nil)
}

// Delete godoc
// @Summary Delete class
// @Tags Classes
// @Param id path int true "Class ID"
// @Success 204
// @Security BearerAuth
// @Router /classes/{id} [delete]
func (h *ClassHandler) Delete(c *gin.Context) {
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
