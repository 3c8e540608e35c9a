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

type userService interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error)
	Get(ctx context.Context, id int64) (*models.User, error)
	Create(ctx context.Context, req dto.CreateUserRequest, actor service.Actor) (*models.User, error)
	Update(ctx context.Context, id int64, req dto.UpdateUserRequest, actor service.Actor) (*models.User, error)
	UpdateProfile(ctx context.Context, userID int64, req dto.UpdateProfileRequest) (*models.User, error)
	ChangeStatus(ctx context.Context, id int64, req dto.ChangeStatusRequest, actor service.Actor) (*models.User, error)
	ResetPassword(ctx context.Context, id int64, req dto.ResetPasswordRequest, actor service.Actor) error
	Delete(ctx context.Context, id int64, actor service.Actor) error
}

type studentProfileService interface {
	Get(ctx context.Context, userID int64) (*models.StudentProfile, error)
	Upsert(ctx context.Context, userID int64, req dto.StudentProfileRequest) (*models.StudentProfile, error)
}

// UserHandler handles user management and profile endpoints.
type UserHandler struct {
	service  userService
	profiles studentProfileService
}

// NewUserHandler creates a new user handler.
func NewUserHandler(svc userService, profiles studentProfileService) *UserHandler {
	return &UserHandler{service: svc, profiles: profiles}
}

// List godoc
// @Summary List users
// @Description List users with pagination and filtering
// @Tags Users
// @Produce json
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Param role query string false "Role filter"
// @Param status query string false "Status filter"
// @Param search query string false "Search term"
// @Param sort_by query string false "Sort by"
// @Param sort_order query string false "Sort order"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /users [get]
func (h *UserHandler) List(c *gin.Context) {
	p := parseListParams(c)
	filter := models.UserFilter{
		Search:    strings.TrimSpace(c.Query("search")),
		Page:      p.Page,
		PageSize:  p.PageSize,
		SortBy:    p.SortBy,
		SortOrder: p.SortOrder,
	}
	if role := c.Query("role"); role != "" {
		r := models.UserRole(strings.ToUpper(role))
		if !r.Valid() {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid role"))
			return
		}
		filter.Role = &r
	}
	if status := c.Query("status"); status != "" {
		st := models.UserStatus(strings.ToUpper(status))
		if !st.Valid() {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid status"))
			return
		}
		filter.Status = &st
	}

	users, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, users, pagination)
}

// Get godoc
// @Summary Get user
// @Tags Users
// @Produce json
// @Param id path int true "User ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /users/{id} [get]
func (h *UserHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	user, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, user, nil)
}

// Create godoc
// @Summary Create user
// @Tags Users
// @Accept json
// @Produce json
// @Param payload body dto.CreateUserRequest true "Create user payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /users [post]
func (h *UserHandler) Create(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.CreateUserRequest
	if !bindJSON(c, &req) {
		return
	}
	user, err := h.service.Create(c.Request.Context(), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, user)
}

// Update godoc
// @Summary Update user
// @Tags Users
// @Accept json
// @Produce json
// @Param id path int true "User ID"
// @Param payload body dto.UpdateUserRequest true "Update user payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /users/{id} [put]
func (h *UserHandler) Update(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req dto.UpdateUserRequest
	if !bindJSON(c, &req) {
		return
	}
	user, err := h.service.Update(c.Request.Context(), id, req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, user, nil)
}

// ChangeStatus godoc
// @Summary Activate, deactivate or suspend a user
// @Tags Users
// @Accept json
// @Produce json
// @Param id path int true "User ID"
// @Param payload body dto.ChangeStatusRequest true "Status payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /users/{id}/status [patch]
func (h *UserHandler) ChangeStatus(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req dto.ChangeStatusRequest
	if !bindJSON(c, &req) {
		return
	}
	user, err := h.service.ChangeStatus(c.Request.Context(), id, req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, user, nil)
}

// ResetPassword godoc
// @Summary Reset a user's password
// @Tags Users
// @Accept json
// @Param id path int true "User ID"
// @Param payload body dto.ResetPasswordRequest true "New password"
// @Success 204
// @Security BearerAuth
// @Router /users/{id}/reset-password [post]
func (h *UserHandler) ResetPassword(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req dto.ResetPasswordRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.service.ResetPassword(c.Request.Context(), id, req, actor); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Delete godoc
// @Summary Delete user
// @Tags Users
// @Param id path int true "User ID"
// @Success 204
// @Security BearerAuth
// @Router /users/{id} [delete]
func (h *UserHandler) Delete(c *gin.Context) {
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

// Profile godoc
// @Summary Current user's profile
// @Tags Profile
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /profile [get]
func (h *UserHandler) Profile(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	user, err := h.service.Get(c.Request.Context(), actor.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, user, nil)
}

// UpdateProfile godoc
// @Summary Update the current user's profile
// @Tags Profile
// @Accept json
// @Produce json
// @Param payload body dto.UpdateProfileRequest true "Profile payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /profile [put]
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.UpdateProfileRequest
	if !bindJSON(c, &req) {
		return
	}
	user, err := h.service.UpdateProfile(c.Request.Context(), actor.ID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, user, nil)
}

// StudentProfile godoc
// @Summary Current student's extra profile
// @Tags Profile
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /profile/student [get]
func (h *UserHandler) StudentProfile(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	profile, err := h.profiles.Get(c.Request.Context(), actor.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"profile": profile, "complete": profile.Complete()}, nil)
}

// UpsertStudentProfile godoc
// @Summary Create or update the current student's extra profile
// @Tags Profile
// @Accept json
// @Produce json
// @Param payload body dto.StudentProfileRequest true "Student profile"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /profile/student [put]
func (h *UserHandler) UpsertStudentProfile(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.StudentProfileRequest
	if !bindJSON(c, &req) {
		return
	}
	profile, err := h.profiles.Upsert(c.Request.Context(), actor.ID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"profile": profile, "complete": profile.Complete()}, nil)
}
