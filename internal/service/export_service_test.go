package service

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/short-course-api/internal/models"
	"github.com/noah-isme/short-course-api/internal/repository"
	"github.com/noah-isme/short-course-api/pkg/storage"
)

type reportSources struct {
	grades     []models.StudentGrade
	attendance []repository.ClassAttendanceRow
	roster     []models.EnrollmentDetail
}

func (r *reportSources) ListByClass(context.Context, int64) ([]models.StudentGrade, error) {
	return r.grades, nil
}

func (r *reportSources) ClassMatrix(context.Context, int64) ([]repository.ClassAttendanceRow, error) {
	return r.attendance, nil
}

func (r *reportSources) ListApprovedByClass(context.Context, sqlx.ExtContext, int64) ([]models.EnrollmentDetail, error) {
	return r.roster, nil
}

func reportClass() models.ClassDetail {
	return models.ClassDetail{
		Class:      models.Class{ID: 3, ClassCode: "GO-03", ClassName: "Go Evening", TeacherID: int64Ptr(20)},
		CourseName: "Backend with Go",
	}
}

func newExportServiceForTest(t *testing.T, sources *reportSources) (*ExportService, *storage.LocalStorage) {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	svc := NewExportService(ExportServiceParams{
		Classes:    newFakeClasses(reportClass()),
		Grades:     sources,
		Attendance: sources,
		Roster:     sources,
		Storage:    store,
		Signer:     storage.NewURLSigner("test-secret", time.Hour),
		Logger:     zap.NewNop(),
		Config:     ExportConfig{APIPrefix: "/api/v1/"},
	})
	return svc, store
}

func readStored(t *testing.T, svc *ExportService, relPath string) string {
	t.Helper()
	f, err := svc.Open(relPath)
	require.NoError(t, err)
	defer f.Close()
	raw, err := io.ReadAll(f)
	require.NoError(t, err)
	return string(raw)
}

func TestExportGenerateGradesCSV(t *testing.T) {
	letter := models.GradeLetter("B")
	pass := true
	sources := &reportSources{grades: []models.StudentGrade{
		{StudentName: "Ana", StudentEmail: "ana@example.com", AttendanceScore: float64Ptr(90), ProcessScore: float64Ptr(80),
			FinalScore: float64Ptr(75), TotalScore: float64Ptr(78), GradeLetter: &letter, Pass: &pass},
		{StudentName: "Budi", StudentEmail: "budi@example.com"},
	}}
	svc, _ := newExportServiceForTest(t, sources)

	job := &models.ReportJob{ID: "job-1", Type: models.ReportTypeClassGrades, Params: models.ReportJobParams{ClassID: 3, Format: models.ReportFormatCSV}}
	result, err := svc.Generate(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, "reports/class_grades_3_job-1.csv", result.RelativePath)
	assert.True(t, strings.HasPrefix(result.URL, "/api/v1/export/"))
	assert.True(t, strings.HasSuffix(result.URL, result.Token))

	body := readStored(t, svc, result.RelativePath)
	assert.Contains(t, body, "Ana,ana@example.com,90.00,80.00,75.00,78.00,B,PASS")
	assert.Contains(t, body, "Budi,budi@example.com,-,-,-,-,-,-")

	signed, err := svc.ParseToken(result.Token, false)
	require.NoError(t, err)
	assert.Equal(t, "job-1", signed.Subject)
	assert.Equal(t, result.RelativePath, signed.Path)
}

func TestExportGenerateAttendanceRate(t *testing.T) {
	sources := &reportSources{attendance: []repository.ClassAttendanceRow{
		{StudentName: "Ana", Present: 1, Late: 1, Absent: 1, Total: 3},
	}}
	svc, _ := newExportServiceForTest(t, sources)

	job := &models.ReportJob{ID: "job-2", Type: models.ReportTypeClassAttendance, Params: models.ReportJobParams{ClassID: 3, Format: models.ReportFormatCSV}}
	result, err := svc.Generate(context.Background(), job)
	require.NoError(t, err)
	assert.Contains(t, readStored(t, svc, result.RelativePath), "Ana,1,1,1,0,3,66.67")
}

func TestExportGenerateRosterPDF(t *testing.T) {
	sources := &reportSources{roster: []models.EnrollmentDetail{{
		Enrollment:   models.Enrollment{EnrollmentDate: time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC), PaymentStatus: models.PaymentStatusPaid, PaymentAmount: 1500000},
		StudentName:  "Ana",
		StudentEmail: "ana@example.com",
	}}}
	svc, _ := newExportServiceForTest(t, sources)

	job := &models.ReportJob{ID: "job-3", Type: models.ReportTypeClassRoster, Params: models.ReportJobParams{ClassID: 3, Format: models.ReportFormatPDF}}
	result, err := svc.Generate(context.Background(), job)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(readStored(t, svc, result.RelativePath), "%PDF"))
	assert.Equal(t, "application/pdf", svc.ContentType(models.ReportFormatPDF))
}

func TestExportGenerateRejectsUnknownInputs(t *testing.T) {
	svc, _ := newExportServiceForTest(t, &reportSources{})

	_, err := svc.Generate(context.Background(), &models.ReportJob{ID: "x", Type: models.ReportTypeClassGrades, Params: models.ReportJobParams{ClassID: 3, Format: "xlsx"}})
	require.Error(t, err)
	_, err = svc.Generate(context.Background(), &models.ReportJob{ID: "x", Type: "behavior", Params: models.ReportJobParams{ClassID: 3, Format: models.ReportFormatCSV}})
	require.Error(t, err)
	_, err = svc.Generate(context.Background(), &models.ReportJob{ID: "x", Type: models.ReportTypeClassGrades, Params: models.ReportJobParams{ClassID: 99, Format: models.ReportFormatCSV}})
	require.Error(t, err)
}
