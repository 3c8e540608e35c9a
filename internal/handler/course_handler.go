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

type courseService interface {
	ListTypes(ctx context.Context) ([]models.CourseType, error)
	GetType(ctx context.Context, id int64) (*models.CourseType, error)
	CreateType(ctx context.Context, req dto.CourseTypeRequest, actor service.Actor) (*models.CourseType, error)
	UpdateType(ctx context.Context, id int64, req dto.CourseTypeRequest, actor service.Actor) (*models.CourseType, error)
	DeleteType(ctx context.Context, id int64, actor service.Actor) error
	Get(ctx context.Context, id int64) (*models.CourseDetail, error)
	List(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, *models.Pagination, error)
	Catalog(ctx context.Context, filter models.CourseFilter) (*service.CatalogPage, bool, error)
	Create(ctx context.Context, req dto.CourseRequest, actor service.Actor) (*models.CourseDetail, error)
	Update(ctx context.Context, id int64, req dto.CourseRequest, actor service.Actor) (*models.CourseDetail, error)
	ChangeStatus(ctx context.Context, id int64, status models.CourseStatus, actor service.Actor) (*models.CourseDetail, error)
	Delete(ctx context.Context, id int64, actor service.Actor) error
}

// CourseHandler exposes course types, courses and the public catalog.
type CourseHandler struct {
	service courseService
}

// NewCourseHandler constructs a course handler.
func NewCourseHandler(svc courseService) *CourseHandler {
	return &CourseHandler{service: svc}
}

// ListTypes godoc
// @Summary List course types
// @Tags Courses
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /course-types [get]
func (h *CourseHandler) ListTypes(c *gin.Context) {
	types, err := h.service.ListTypes(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, types, nil)
}

// GetType godoc
// @Summary Get course type
// @Tags Courses
// @Produce json
// @Param id path int true "Course type ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /course-types/{id} [get]
func (h *CourseHandler) GetType(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	ct, err := h.service.GetType(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, ct, nil)
}

// CreateType godoc
// @Summary Create course type
// @Tags Courses
// @Accept json
// @Produce json
// @Param payload body dto.CourseTypeRequest true "Course type"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /course-types [post]
func (h *CourseHandler) CreateType(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.CourseTypeRequest
	if !bindJSON(c, &req) {
		return
	}
	ct, err := h.service.CreateType(c.Request.Context(), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, ct)
}

// UpdateType godoc
// @Summary Update course type
// @Tags Courses
// @Accept json
// @Produce json
// @Param id path int true "Course type ID"
// @Param payload body dto.CourseTypeRequest true "Course type"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /course-types/{id} [put]
func (h *CourseHandler) UpdateType(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req dto.CourseTypeRequest
	if !bindJSON(c, &req) {
		return
	}
	ct, err := h.service.UpdateType(c.Request.Context(), id, req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, ct, nil)
}

// DeleteType godoc
// @Summary Delete course type
// @Tags Courses
// @Param id path int true "Course type ID"
// @Success 204
// @Security BearerAuth
// @Router /course-types/{id} [delete]
func (h *CourseHandler) DeleteType(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteType(c.Request.Context(), id, actor); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func courseFilterFromQuery(c *gin.Context) (models.CourseFilter, bool) {
	p := parseListParams(c)
	filter := models.CourseFilter{
		Status:    models.CourseStatus(strings.ToUpper(c.Query("status"))),
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
	typeID, ok := queryID(c, "course_type_id")
	if !ok {
		return filter, false
	}
	filter.CourseTypeID = typeID
	return filter, true
}

// List godoc
// @Summary List courses
// @Tags Courses
// @Produce json
// @Param status query string false "DRAFT, ACTIVE or INACTIVE"
// @Param course_type_id query int false "Course type"
// @Param search query string false "Search keyword"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /courses [get]
func (h *CourseHandler) List(c *gin.Context) {
	filter, ok := courseFilterFromQuery(c)
	if !ok {
		return
	}
	courses, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, courses, pagination)
}

// Catalog godoc
// @Summary Public catalog of active courses
// @Tags Catalog
// @Produce json
// @Param course_type_id query int false "Course type"
// @Param search query string false "Search keyword"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /catalog/courses [get]
func (h *CourseHandler) Catalog(c *gin.Context) {
	filter, ok := courseFilterFromQuery(c)
	if !ok {
		return
	}
	page, hit, err := h.service.Catalog(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	respondCached(c, page.Courses, page.Pagination, hit)
}

// Get godoc
// @Summary Get course
// @Tags Courses
// @Produce json
// @Param id path int true "Course ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /courses/{id} [get]
func (h *CourseHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	course, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course, nil)
}

// Create godoc
// @Summary Create course
// @Tags Courses
// @Accept json
// @Produce json
// @Param payload body dto.CourseRequest true "Course"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /courses [post]
func (h *CourseHandler) Create(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.CourseRequest
	if !bindJSON(c, &req) {
		return
	}
	course, err := h.service.Create(c.Request.Context(), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, course)
}

// Update godoc
// @Summary Update course
// @Tags Courses
// @Accept json
// @Produce json
// @Param id path int true "Course ID"
// @Param payload body dto.CourseRequest true "Course"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /courses/{id} [put]
func (h *CourseHandler) Update(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req dto.CourseRequest
	if !bindJSON(c, &req) {
		return
	}
	course, err := h.service.Update(c.Request.Context(), id, req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course, nil)
}

// ChangeStatus godoc
// @Summary Change course status
// @Tags Courses
// @Accept json
// @Produce json
// @Param id path int true "Course ID"
// @Param payload body dto.CourseStatusRequest true "Status"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /courses/{id}/status [patch]
func (h *CourseHandler) ChangeStatus(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req dto.CourseStatusRequest
	if !bindJSON(c, &req) {
		return
	}
	course, err := h.service.ChangeStatus(c.Request.Context(), id, req.Status, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course, nil)
}

// Delete godoc
// @Summary Delete course
// @Tags Courses
// @Param id path int true "Course ID"
// @Success 204
// @Security BearerAuth
// @Router /courses/{id} [delete]
func (h *CourseHandler) Delete(c *gin.Context) {
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
