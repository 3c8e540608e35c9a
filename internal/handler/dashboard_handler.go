package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/short-course-api/internal/dto"
	appErrors "github.com/noah-isme/short-course-api/pkg/errors"
	"github.com/noah-isme/short-course-api/pkg/response"
)

type dashboardService interface {
	Admin(ctx context.Context) (*dto.AdminDashboardResponse, bool, error)
	Teacher(ctx context.Context, teacherID int64) (*dto.TeacherDashboardResponse, bool, error)
	Student(ctx context.Context, studentID int64) (*dto.StudentDashboardResponse, bool, error)
}

// DashboardHandler wires dashboard service to HTTP endpoints.
type DashboardHandler struct {
	service dashboardService
}

// NewDashboardHandler constructs the handler.
func NewDashboardHandler(service dashboardService) *DashboardHandler {
	return &DashboardHandler{service: service}
}

// Admin godoc
// @Summary Admin dashboard summary
// @Tags Dashboard
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /dashboard/admin [get]
func (h *DashboardHandler) Admin(c *gin.Context) {
	summary, hit, err := h.service.Admin(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	respondCached(c, summary, nil, hit)
}

// Teacher godoc
// @Summary Dashboard of the calling teacher
// @Tags Dashboard
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /dashboard/teacher [get]
func (h *DashboardHandler) Teacher(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	if !actor.IsTeacher() {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "teacher dashboard is for teachers"))
		return
	}
	summary, hit, err := h.service.Teacher(c.Request.Context(), actor.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	respondCached(c, summary, nil, hit)
}

// Student godoc
// @Summary Dashboard of the calling student
// @Tags Dashboard
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /dashboard/student [get]
func (h *DashboardHandler) Student(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	if !actor.IsStudent() {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "student dashboard is for students"))
		return
	}
	summary, hit, err := h.service.Student(c.Request.Context(), actor.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	respondCached(c, summary, nil, hit)
}
