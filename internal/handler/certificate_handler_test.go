package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/short-course-api/internal/dto"
	"github.com/noah-isme/short-course-api/internal/models"
	"github.com/noah-isme/short-course-api/internal/service"
	appErrors "github.com/noah-isme/short-course-api/pkg/errors"
)

type certificateServiceStub struct {
	issuePrefix string
	verifyCode  string
	docErr      error
	listFilter  models.CertificateFilter
}

func (s *certificateServiceStub) IssueForClass(_ context.Context, classID int64, req dto.IssueClassCertificatesRequest, _ service.Actor) ([]models.Certificate, error) {
	s.issuePrefix = req.Prefix
	return []models.Certificate{{ID: 1, CertificateCode: "CERT-3-001"}}, nil
}

func (s *certificateServiceStub) Create(context.Context, dto.CreateCertificateRequest, service.Actor) (*models.CertificateDetail, error) {
	return &models.CertificateDetail{}, nil
}

func (s *certificateServiceStub) Issue(_ context.Context, id int64, _ service.Actor) (*models.CertificateDetail, error) {
	return &models.CertificateDetail{Certificate: models.Certificate{ID: id, Status: models.CertificateStatusIssued}}, nil
}

func (s *certificateServiceStub) Revoke(_ context.Context, id int64, _ dto.RevokeCertificateRequest, _ service.Actor) (*models.CertificateDetail, error) {
	return &models.CertificateDetail{Certificate: models.Certificate{ID: id, Status: models.CertificateStatusRevoked}}, nil
}

func (s *certificateServiceStub) Update(context.Context, int64, dto.UpdateCertificateRequest, service.Actor) (*models.CertificateDetail, error) {
	return &models.CertificateDetail{}, nil
}

func (s *certificateServiceStub) Delete(context.Context, int64, service.Actor) error { return nil }

func (s *certificateServiceStub) Get(context.Context, int64, service.Actor) (*models.CertificateDetail, error) {
	return &models.CertificateDetail{}, nil
}

func (s *certificateServiceStub) List(_ context.Context, filter models.CertificateFilter, _ service.Actor) ([]models.CertificateDetail, *models.Pagination, error) {
	s.listFilter = filter
	return []models.CertificateDetail{}, models.NewPagination(1, 20, 0), nil
}

func (s *certificateServiceStub) Verify(_ context.Context, code string) (*dto.CertificateVerification, error) {
	s.verifyCode = code
	return &dto.CertificateVerification{Valid: true, CertificateCode: code, Status: models.CertificateStatusIssued}, nil
}

func (s *certificateServiceStub) Document(_ context.Context, id int64, _ service.Actor) (*service.CertificateDocument, error) {
	if s.docErr != nil {
		return nil, s.docErr
	}
	return &service.CertificateDocument{Filename: "CERT-3-001.pdf", Content: []byte("%PDF-1.3")}, nil
}

func TestCertificateHandlerIssueForClassWithoutBody(t *testing.T) {
	svc := &certificateServiceStub{}
	h := NewCertificateHandler(svc)
	c, w := newGinContext(http.MethodPost, "/classes/3/certificates", nil)
	asUser(c, 1, models.RoleAdmin)
	withParams(c, "id", "3")

	h.IssueForClass(c)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Empty(t, svc.issuePrefix)
	assert.Contains(t, w.Body.String(), `"issued":1`)
}

func TestCertificateHandlerVerifyIsPublic(t *testing.T) {
	svc := &certificateServiceStub{}
	h := NewCertificateHandler(svc)
	c, w := newGinContext(http.MethodGet, "/certificates/verify/CERT-3-001", nil)
	withParams(c, "code", "CERT-3-001")

	h.Verify(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "CERT-3-001", svc.verifyCode)
}

func TestCertificateHandlerDocument(t *testing.T) {
	h := NewCertificateHandler(&certificateServiceStub{})
	c, w := newGinContext(http.MethodGet, "/certificates/1/document", nil)
	asUser(c, 31, models.RoleStudent)
	withParams(c, "id", "1")

	h.Document(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="CERT-3-001.pdf"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "%PDF-1.3", w.Body.String())
}

func TestCertificateHandlerDocumentOfDraft(t *testing.T) {
	h := NewCertificateHandler(&certificateServiceStub{docErr: appErrors.Clone(appErrors.ErrPreconditionFailed, "only issued certificates have a document")})
	c, w := newGinContext(http.MethodGet, "/certificates/1/document", nil)
	asUser(c, 1, models.RoleAdmin)
	withParams(c, "id", "1")

	h.Document(c)

	assert.Equal(t, http.StatusPreconditionFailed, w.Code)
}

func TestCertificateHandlerListValidatesStatus(t *testing.T) {
	svc := &certificateServiceStub{}
	h := NewCertificateHandler(svc)

	c, w := newGinContext(http.MethodGet, "/certificates?status=lost", nil)
	asUser(c, 1, models.RoleAdmin)
	h.List(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	c, w = newGinContext(http.MethodGet, "/certificates?status=issued&class_id=3", nil)
	asUser(c, 1, models.RoleAdmin)
	h.List(c)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.CertificateStatusIssued, svc.listFilter.Status)
}
