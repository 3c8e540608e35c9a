package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/short-course-api/internal/dto"
	"github.com/noah-isme/short-course-api/internal/models"
	"github.com/noah-isme/short-course-api/internal/service"
	appErrors "github.com/noah-isme/short-course-api/pkg/errors"
	"github.com/noah-isme/short-course-api/pkg/response"
)

type certificateService interface {
	IssueForClass(ctx context.Context, classID int64, req dto.IssueClassCertificatesRequest, actor service.Actor) ([]models.Certificate, error)
	Create(ctx context.Context, req dto.CreateCertificateRequest, actor service.Actor) (*models.CertificateDetail, error)
	Issue(ctx context.Context, id int64, actor service.Actor) (*models.CertificateDetail, error)
	Revoke(ctx context.Context, id int64, req dto.RevokeCertificateRequest, actor service.Actor) (*models.CertificateDetail, error)
	Update(ctx context.Context, id int64, req dto.UpdateCertificateRequest, actor service.Actor) (*models.CertificateDetail, error)
	Delete(ctx context.Context, id int64, actor service.Actor) error
	Get(ctx context.Context, id int64, actor service.Actor) (*models.CertificateDetail, error)
	List(ctx context.Context, filter models.CertificateFilter, actor service.Actor) ([]models.CertificateDetail, *models.Pagination, error)
	Verify(ctx context.Context, code string) (*dto.CertificateVerification, error)
	Document(ctx context.Context, id int64, actor service.Actor) (*service.CertificateDocument, error)
}

// CertificateHandler exposes certificate issuance and verification.
type CertificateHandler struct {
	service certificateService
}

// NewCertificateHandler constructs the handler.
func NewCertificateHandler(svc certificateService) *CertificateHandler {
	return &CertificateHandler{service: svc}
}

// IssueForClass godoc
// @Summary Issue certificates to every eligible student of a class
// @Tags Certificates
// @Accept json
// @Produce json
// @Param id path int true "Class ID"
// @Param payload body dto.IssueClassCertificatesRequest false "Code prefix"
// @Success 201 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Security BearerAuth
// @Router /classes/{id}/certificates [post]
func (h *CertificateHandler) IssueForClass(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	classID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req dto.IssueClassCertificatesRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	issued, err := h.service.IssueForClass(c.Request.Context(), classID, req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, gin.H{"issued": len(issued), "certificates": issued})
}

// Create godoc
// @Summary Draft a certificate for one enrollment
// @Tags Certificates
// @Accept json
// @Produce json
// @Param payload body dto.CreateCertificateRequest true "Certificate"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /certificates [post]
func (h *CertificateHandler) Create(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.CreateCertificateRequest
	if !bindJSON(c, &req) {
		return
	}
	cert, err := h.service.Create(c.Request.Context(), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, cert)
}

func (h *CertificateHandler) byID(c *gin.Context, fn func(ctx context.Context, id int64, actor service.Actor) (*models.CertificateDetail, error)) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	cert, err := fn(c.Request.Context(), id, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cert, nil)
}

// Issue godoc
// @Summary Issue a drafted certificate
// @Tags Certificates
// @Produce json
// @Param id path int true "Certificate ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /certificates/{id}/issue [post]
func (h *CertificateHandler) Issue(c *gin.Context) {
	h.byID(c, h.service.Issue)
}

// Revoke godoc
// @Summary Revoke a certificate
// @Tags Certificates
// @Accept json
// @Produce json
// @Param id path int true "Certificate ID"
// @Param payload body dto.RevokeCertificateRequest false "Reason"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /certificates/{id}/revoke [post]
func (h *CertificateHandler) Revoke(c *gin.Context) {
	var req dto.RevokeCertificateRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	h.byID(c, func(ctx context.Context, id int64, actor service.Actor) (*models.CertificateDetail, error) {
		return h.service.Revoke(ctx, id, req, actor)
	})
}

// Update godoc
// @Summary Edit certificate notes
// @Tags Certificates
// @Accept json
// @Produce json
// @Param id path int true "Certificate ID"
// @Param payload body dto.UpdateCertificateRequest true "Notes"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /certificates/{id} [put]
func (h *CertificateHandler) Update(c *gin.Context) {
	var req dto.UpdateCertificateRequest
	if !bindJSON(c, &req) {
		return
	}
	h.byID(c, func(ctx context.Context, id int64, actor service.Actor) (*models.CertificateDetail, error) {
		return h.service.Update(ctx, id, req, actor)
	})
}

// Get godoc
// @Summary Certificate detail
// @Tags Certificates
// @Produce json
// @Param id path int true "Certificate ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /certificates/{id} [get]
func (h *CertificateHandler) Get(c *gin.Context) {
	h.byID(c, h.service.Get)
}

// Delete godoc
// @Summary Delete a draft certificate
// @Tags Certificates
// @Param id path int true "Certificate ID"
// @Success 204
// @Security BearerAuth
// @Router /certificates/{id} [delete]
func (h *CertificateHandler) Delete(c *gin.Context) {
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

// List godoc
// @Summary List certificates
// @Tags Certificates
// @Produce json
// @Param class_id query int false "Class"
// @Param student_id query int false "Student"
// @Param status query string false "Certificate status"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /certificates [get]
func (h *CertificateHandler) List(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	p := parseListParams(c)
	filter := models.CertificateFilter{
		Status:    models.CertificateStatus(strings.ToUpper(c.Query("status"))),
		Page:      p.Page,
		PageSize:  p.PageSize,
		SortBy:    p.SortBy,
		SortOrder: p.SortOrder,
	}
	if filter.Status != "" && !filter.Status.Valid() {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid status"))
		return
	}
	if filter.ClassID, ok = queryID(c, "class_id"); !ok {
		return
	}
	if filter.StudentID, ok = queryID(c, "student_id"); !ok {
		return
	}
	items, pagination, err := h.service.List(c.Request.Context(), filter, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Verify godoc
// @Summary Public certificate verification
// @Tags Certificates
// @Produce json
// @Param code path string true "Certificate code"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /certificates/verify/{code} [get]
func (h *CertificateHandler) Verify(c *gin.Context) {
	code := strings.TrimSpace(c.Param("code"))
	if code == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "code is required"))
		return
	}
	result, err := h.service.Verify(c.Request.Context(), code)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Document godoc
// @Summary Download the certificate PDF
// @Tags Certificates
// @Produce application/pdf
// @Param id path int true "Certificate ID"
// @Success 200 {file} binary
// @Failure 412 {object} response.Envelope
// @Security BearerAuth
// @Router /certificates/{id}/document [get]
func (h *CertificateHandler) Document(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	doc, err := h.service.Document(c.Request.Context(), id, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.Filename))
	c.Data(http.StatusOK, "application/pdf", doc.Content)
}
