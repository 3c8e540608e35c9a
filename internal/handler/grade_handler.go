package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/short-course-api/internal/dto"
	"github.com/noah-isme/short-course-api/internal/models"
	"github.com/noah-isme/short-course-api/internal/service"
	appErrors "github.com/noah-isme/short-course-api/pkg/errors"
	"github.com/noah-isme/short-course-api/pkg/response"
)

type gradeService interface {
	Save(ctx context.Context, req dto.SaveGradeRequest, actor service.Actor) (*models.Grade, error)
	Recalculate(ctx context.Context, id int64, actor service.Actor) (*models.Grade, error)
	Delete(ctx context.Context, id int64, actor service.Actor) error
	ListByClass(ctx context.Context, classID int64, actor service.Actor) ([]models.StudentGrade, error)
	ClassStatistics(ctx context.Context, classID int64, actor service.Actor) (*models.GradeStatistics, bool, error)
	TopStudents(ctx context.Context, classID int64, n int, actor service.Actor) ([]models.GradeDetail, error)
	GetForStudent(ctx context.Context, studentID, classID int64, actor service.Actor) (*models.GradeDetail, error)
	ListMine(ctx context.Context, actor service.Actor) ([]models.GradeDetail, error)
}

// GradeHandler exposes grading endpoints.
type GradeHandler struct {
	service gradeService
}

// NewGradeHandler constructs the handler.
func NewGradeHandler(svc gradeService) *GradeHandler {
	return &GradeHandler{service: svc}
}

// Save godoc
// @Summary Upsert the component scores of an enrollment
// @Description Total, letter and pass flag are derived once all three components are present
// @Tags Grades
// @Accept json
// @Produce json
// @Param payload body dto.SaveGradeRequest true "Scores"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Security BearerAuth
// @Router /grades [post]
func (h *GradeHandler) Save(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.SaveGradeRequest
	if !bindJSON(c, &req) {
		return
	}
	grade, err := h.service.Save(c.Request.Context(), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grade, nil)
}

// Recalculate godoc
// @Summary Recompute derived grade fields
// @Tags Grades
// @Produce json
// @Param id path int true "Grade ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /grades/{id}/recalculate [post]
func (h *GradeHandler) Recalculate(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	grade, err := h.service.Recalculate(c.Request.Context(), id, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grade, nil)
}

// Delete godoc
// @Summary Delete a grade
// @Tags Grades
// @Param id path int true "Grade ID"
// @Success 204
// @Security BearerAuth
// @Router /grades/{id} [delete]
func (h *GradeHandler) Delete(c *gin.Context) {
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

func (h *GradeHandler) classRequest(c *gin.Context) (service.Actor, int64, bool) {
	actor, ok := actorFromContext(c)
	if !ok {
		return actor, 0, false
	}
	classID, ok := pathID(c, "id")
	return actor, classID, ok
}

// ListByClass godoc
// @Summary Grade sheet of a class
// @Description Every approved or completed student, with null scores when ungraded
// @Tags Grades
// @Produce json
// @Param id path int true "Class ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /classes/{id}/grades [get]
func (h *GradeHandler) ListByClass(c *gin.Context) {
	actor, classID, ok := h.classRequest(c)
	if !ok {
		return
	}
	rows, err := h.service.ListByClass(c.Request.Context(), classID, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, nil)
}

// Statistics godoc
// @Summary Grade statistics of a class
// @Tags Grades
// @Produce json
// @Param id path int true "Class ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /classes/{id}/grades/statistics [get]
func (h *GradeHandler) Statistics(c *gin.Context) {
	actor, classID, ok := h.classRequest(c)
	if !ok {
		return
	}
	stats, hit, err := h.service.ClassStatistics(c.Request.Context(), classID, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	respondCached(c, stats, nil, hit)
}

// Top godoc
// @Summary Best graded students of a class
// @Tags Grades
// @Produce json
// @Param id path int true "Class ID"
// @Param n query int false "How many" default(10)
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /classes/{id}/grades/top [get]
func (h *GradeHandler) Top(c *gin.Context) {
	actor, classID, ok := h.classRequest(c)
	if !ok {
		return
	}
	n, err := strconv.Atoi(c.DefaultQuery("n", "10"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "n must be a number"))
		return
	}
	rows, err := h.service.TopStudents(c.Request.Context(), classID, n, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, nil)
}

// StudentClass godoc
// @Summary Grade of a student in a class
// @Tags Grades
// @Produce json
// @Param student_id query int true "Student ID"
// @Param class_id query int true "Class ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /grades/student [get]
func (h *GradeHandler) StudentClass(c *gin.Context) {
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
	grade, err := h.service.GetForStudent(c.Request.Context(), studentID, classID, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grade, nil)
}

// Mine godoc
// @Summary Grades of the calling student
// @Tags Grades
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /grades/me [get]
func (h *GradeHandler) Mine(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	rows, err := h.service.ListMine(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, nil)
}
