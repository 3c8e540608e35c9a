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

type enrollmentService interface {
	Create(ctx context.Context, req dto.EnrollRequest, actor service.Actor) (*models.EnrollmentDetail, error)
	Approve(ctx context.Context, id int64, actor service.Actor) (*models.EnrollmentDetail, error)
	Reject(ctx context.Context, id int64, reason string, actor service.Actor) (*models.EnrollmentDetail, error)
	Cancel(ctx context.Context, id int64, actor service.Actor) (*models.EnrollmentDetail, error)
	Complete(ctx context.Context, id int64, actor service.Actor) (*models.EnrollmentDetail, error)
	UpdatePayment(ctx context.Context, id int64, amount float64, actor service.Actor) (*models.EnrollmentDetail, error)
	Get(ctx context.Context, id int64, actor service.Actor) (*models.EnrollmentDetail, error)
	List(ctx context.Context, filter models.EnrollmentFilter, actor service.Actor) ([]models.EnrollmentDetail, *models.Pagination, error)
	History(ctx context.Context, studentID int64, actor service.Actor) ([]models.EnrollmentDetail, error)
}

// EnrollmentHandler exposes the enrollment workflow.
type EnrollmentHandler struct {
	service enrollmentService
}

// NewEnrollmentHandler constructs the handler.
func NewEnrollmentHandler(svc enrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{service: svc}
}

// Create godoc
// @Summary Request enrollment in a class
// @Description Students enroll themselves; admins may enroll any student
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param payload body dto.EnrollRequest true "Enrollment payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Security BearerAuth
// @Router /enrollments [post]
func (h *EnrollmentHandler) Create(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.EnrollRequest
	if !bindJSON(c, &req) {
		return
	}
	enrollment, err := h.service.Create(c.Request.Context(), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, enrollment)
}

// transition runs one workflow step on the enrollment in the :id path parameter.
func (h *EnrollmentHandler) transition(c *gin.Context, step func(ctx context.Context, id int64, actor service.Actor) (*models.EnrollmentDetail, error)) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	enrollment, err := step(c.Request.Context(), id, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}

// Approve godoc
// @Summary Approve a pending enrollment
// @Tags Enrollments
// @Produce json
// @Param id path int true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /enrollments/{id}/approve [post]
func (h *EnrollmentHandler) Approve(c *gin.Context) {
	h.transition(c, h.service.Approve)
}

// Reject godoc
// @Summary Reject a pending enrollment
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param id path int true "Enrollment ID"
// @Param payload body dto.RejectEnrollmentRequest false "Reason"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /enrollments/{id}/reject [post]
func (h *EnrollmentHandler) Reject(c *gin.Context) {
	var req dto.RejectEnrollmentRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	h.transition(c, func(ctx context.Context, id int64, actor service.Actor) (*models.EnrollmentDetail, error) {
		return h.service.Reject(ctx, id, req.Reason, actor)
	})
}

// Cancel godoc
// @Summary Drop an enrollment
// @Tags Enrollments
// @Produce json
// @Param id path int true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /enrollments/{id}/cancel [post]
func (h *EnrollmentHandler) Cancel(c *gin.Context) {
	h.transition(c, h.service.Cancel)
}

// Complete godoc
// @Summary Mark an approved enrollment completed
// @Tags Enrollments
// @Produce json
// @Param id path int true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /enrollments/{id}/complete [post]
func (h *EnrollmentHandler) Complete(c *gin.Context) {
	h.transition(c, h.service.Complete)
}

// Payment godoc
// @Summary Set the total tuition paid
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param id path int true "Enrollment ID"
// @Param payload body dto.PaymentRequest true "Total paid so far"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /enrollments/{id}/payment [patch]
func (h *EnrollmentHandler) Payment(c *gin.Context) {
	var req dto.PaymentRequest
	if !bindJSON(c, &req) {
		return
	}
	h.transition(c, func(ctx context.Context, id int64, actor service.Actor) (*models.EnrollmentDetail, error) {
		return h.service.UpdatePayment(ctx, id, req.Amount, actor)
	})
}

// Get godoc
// @Summary Enrollment detail
// @Tags Enrollments
// @Produce json
// @Param id path int true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /enrollments/{id} [get]
func (h *EnrollmentHandler) Get(c *gin.Context) {
	h.transition(c, h.service.Get)
}

// List godoc
// @Summary List enrollments
// @Description Students only see their own rows; teachers must filter by a class they teach
// @Tags Enrollments
// @Produce json
// @Param class_id query int false "Class"
// @Param student_id query int false "Student"
// @Param status query string false "Enrollment status"
// @Param payment_status query string false "Payment status"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /enrollments [get]
func (h *EnrollmentHandler) List(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	p := parseListParams(c)
	filter := models.EnrollmentFilter{
		Status:        models.EnrollmentStatus(strings.ToUpper(c.Query("status"))),
		PaymentStatus: models.PaymentStatus(strings.ToUpper(c.Query("payment_status"))),
		Page:          p.Page,
		PageSize:      p.PageSize,
		SortBy:        p.SortBy,
		SortOrder:     p.SortOrder,
	}
	if filter.PaymentStatus != "" && !filter.PaymentStatus.Valid() {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid payment_status"))
		return
	}
	if filter.ClassID, ok = queryID(c, "class_id"); !ok {
		return
	}
	if filter.StudentID, ok = queryID(c, "student_id"); !ok {
		return
	}
	h.list(c, filter, actor)
}

// ListByClass godoc
// @Summary Enrollments of one class
// @Tags Enrollments
// @Produce json
// @Param id path int true "Class ID"
// @Param status query string false "Enrollment status"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /classes/{id}/enrollments [get]
func (h *EnrollmentHandler) ListByClass(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	classID, ok := pathID(c, "id")
	if !ok {
		return
	}
	p := parseListParams(c)
	h.list(c, models.EnrollmentFilter{
		ClassID:   &classID,
		Status:    models.EnrollmentStatus(strings.ToUpper(c.Query("status"))),
		Page:      p.Page,
		PageSize:  p.PageSize,
		SortBy:    p.SortBy,
		SortOrder: p.SortOrder,
	}, actor)
}

func (h *EnrollmentHandler) list(c *gin.Context, filter models.EnrollmentFilter, actor service.Actor) {
	items, pagination, err := h.service.List(c.Request.Context(), filter, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// History godoc
// @Summary Enrollment history of a student
// @Description Students read their own history; staff pass student_id
// @Tags Enrollments
// @Produce json
// @Param student_id query int false "Student ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /enrollments/history [get]
func (h *EnrollmentHandler) History(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	studentID, ok := queryID(c, "student_id")
	if !ok {
		return
	}
	id := actor.ID
	if studentID != nil {
		id = *studentID
	} else if !actor.IsStudent() {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "student_id is required"))
		return
	}
	items, err := h.service.History(c.Request.Context(), id, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}
