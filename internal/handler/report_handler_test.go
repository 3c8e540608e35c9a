package handler

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/short-course-api/internal/dto"
	"github.com/noah-isme/short-course-api/internal/models"
	"github.com/noah-isme/short-course-api/internal/service"
	appErrors "github.com/noah-isme/short-course-api/pkg/errors"
)

type reportServiceMock struct {
	createReq   dto.ReportRequest
	createResp  *dto.ReportJobResponse
	createErr   error
	statusResp  *dto.ReportStatusResponse
	statusErr   error
	download    *service.ReportDownload
	downloadErr error
	lastActor   service.Actor
	lastID      string
}

func (m *reportServiceMock) CreateJob(_ context.Context, req dto.ReportRequest, actor service.Actor) (*dto.ReportJobResponse, error) {
	m.createReq, m.lastActor = req, actor
	return m.createResp, m.createErr
}

func (m *reportServiceMock) GetStatus(_ context.Context, id string, actor service.Actor) (*dto.ReportStatusResponse, error) {
	m.lastID, m.lastActor = id, actor
	return m.statusResp, m.statusErr
}

func (m *reportServiceMock) ResolveDownload(_ context.Context, token string) (*service.ReportDownload, error) {
	m.lastID = token
	return m.download, m.downloadErr
}

func TestReportHandlerCreateAccepted(t *testing.T) {
	mockSvc := &reportServiceMock{
		createResp: &dto.ReportJobResponse{ID: "job-1", Status: models.ReportStatusQueued},
	}
	h := NewReportHandler(mockSvc)

	payload := mustJSON(t, dto.ReportRequest{Type: models.ReportTypeClassGrades, ClassID: 3, Format: models.ReportFormatCSV})
	c, w := newGinContext(http.MethodPost, "/reports", payload)
	asUser(c, 20, models.RoleTeacher)

	h.Create(c)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, int64(3), mockSvc.createReq.ClassID)
	assert.Equal(t, int64(20), mockSvc.lastActor.ID)
	assert.Contains(t, w.Body.String(), `"job-1"`)
}

func TestReportHandlerCreateMalformed(t *testing.T) {
	h := NewReportHandler(&reportServiceMock{})
	c, w := newGinContext(http.MethodPost, "/reports", []byte(`{"class_id":"three"}`))
	asUser(c, 1, models.RoleAdmin)

	h.Create(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReportHandlerStatus(t *testing.T) {
	mockSvc := &reportServiceMock{
		statusResp: &dto.ReportStatusResponse{ID: "job-9", Status: models.ReportStatusProcessing, Progress: 10},
	}
	h := NewReportHandler(mockSvc)
	c, w := newGinContext(http.MethodGet, "/reports/job-9", nil)
	asUser(c, 1, models.RoleAdmin)
	withParams(c, "id", "job-9")

	h.Status(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "job-9", mockSvc.lastID)
}

func TestReportHandlerDownloadStreamsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "class_grades_3_job-1.csv")
	require.NoError(t, os.WriteFile(path, []byte("Student,Total\nAna,78.00\n"), 0o600))
	file, err := os.Open(path)
	require.NoError(t, err)

	mockSvc := &reportServiceMock{download: &service.ReportDownload{
		File:        file,
		Filename:    "class_grades_3_job-1.csv",
		ContentType: "text/csv",
		ExpiresAt:   time.Now().Add(time.Hour),
	}}
	h := NewReportHandler(mockSvc)
	c, w := newGinContext(http.MethodGet, "/export/tok", nil)
	withParams(c, "token", "tok")

	h.Download(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="class_grades_3_job-1.csv"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "Student,Total\nAna,78.00\n", w.Body.String())
	assert.Equal(t, "tok", mockSvc.lastID)
}

func TestReportHandlerDownloadForbidden(t *testing.T) {
	h := NewReportHandler(&reportServiceMock{downloadErr: appErrors.Clone(appErrors.ErrForbidden, "invalid token")})
	c, w := newGinContext(http.MethodGet, "/export/bad", nil)
	withParams(c, "token", "bad")

	h.Download(c)

	assert.Equal(t, http.StatusForbidden, w.Code)
}
