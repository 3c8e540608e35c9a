package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/short-course-api/internal/models"
	"github.com/noah-isme/short-course-api/internal/repository"
	"github.com/noah-isme/short-course-api/pkg/export"
	"github.com/noah-isme/short-course-api/pkg/storage"
)

const reportsDir = "reports"

type exportClassReader interface {
	FindByID(ctx context.Context, id int64) (*models.ClassDetail, error)
}

type exportGradeReader interface {
	ListByClass(ctx context.Context, classID int64) ([]models.StudentGrade, error)
}

type exportAttendanceReader interface {
	ClassMatrix(ctx context.Context, classID int64) ([]repository.ClassAttendanceRow, error)
}

type exportRosterReader interface {
	ListApprovedByClass(ctx context.Context, exec sqlx.ExtContext, classID int64) ([]models.EnrollmentDetail, error)
}

type reportFileStore interface {
	Save(name string, data []byte) (string, error)
	Open(name string) (*os.File, error)
	Delete(name string) error
	CleanupOlderThan(dir string, ttl time.Duration) ([]string, error)
}

type datasetRenderer interface {
	Render(data export.Dataset) ([]byte, error)
	ContentType() string
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       models.ReportFormat
	ExpiresAt    time.Time
}

// ExportServiceParams groups constructor dependencies.
type ExportServiceParams struct {
	Classes    exportClassReader
	Grades     exportGradeReader
	Attendance exportAttendanceReader
	Roster     exportRosterReader
	Storage    reportFileStore
	Signer     *storage.URLSigner
	CSV        datasetRenderer
	PDF        datasetRenderer
	Logger     *zap.Logger
	Config     ExportConfig
}

// ExportService builds class report datasets and persists rendered files.
type ExportService struct {
	classes    exportClassReader
	grades     exportGradeReader
	attendance exportAttendanceReader
	roster     exportRosterReader
	storage    reportFileStore
	signer     *storage.URLSigner
	renderers  map[models.ReportFormat]datasetRenderer
	logger     *zap.Logger
	cfg        ExportConfig
}

// NewExportService constructs an ExportService.
func NewExportService(p ExportServiceParams) *ExportService {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	csv, pdf := p.CSV, p.PDF
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	cfg := p.Config
	cfg.APIPrefix = strings.TrimRight(cfg.APIPrefix, "/")
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api/v1"
	}
	return &ExportService{
		classes:    p.Classes,
		grades:     p.Grades,
		attendance: p.Attendance,
		roster:     p.Roster,
		storage:    p.Storage,
		signer:     p.Signer,
		renderers: map[models.ReportFormat]datasetRenderer{
			models.ReportFormatCSV: csv,
			models.ReportFormatPDF: pdf,
		},
		logger: logger,
		cfg:    cfg,
	}
}

// Generate builds the dataset of a job, renders it and stores the file behind a signed URL.
func (s *ExportService) Generate(ctx context.Context, job *models.ReportJob) (*ExportResult, error) {
	if job == nil {
		return nil, errors.New("report job is nil")
	}
	renderer, ok := s.renderers[job.Params.Format]
	if !ok {
		return nil, fmt.Errorf("unsupported format %q", job.Params.Format)
	}
	dataset, err := s.buildDataset(ctx, job)
	if err != nil {
		return nil, err
	}
	payload, err := renderer.Render(dataset)
	if err != nil {
		return nil, fmt.Errorf("render %s report: %w", job.Params.Format, err)
	}

	relPath, err := s.storage.Save(reportFilename(job), payload)
	if err != nil {
		return nil, fmt.Errorf("store report: %w", err)
	}
	token, expiresAt, err := s.signer.Sign(job.ID, relPath)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("report stored", zap.String("job_id", job.ID), zap.String("path", relPath), zap.Int("bytes", len(payload)))
	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          fmt.Sprintf("%s/export/%s", s.cfg.APIPrefix, token),
		Format:       job.Params.Format,
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseToken validates a download token.
func (s *ExportService) ParseToken(token string, allowExpired bool) (*storage.SignedDownload, error) {
	return s.signer.Verify(token, allowExpired)
}

// ContentType is the MIME type served for a report format.
func (s *ExportService) ContentType(format models.ReportFormat) string {
	if r, ok := s.renderers[format]; ok {
		return r.ContentType()
	}
	return "application/octet-stream"
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Delete removes a stored export file.
func (s *ExportService) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

// Cleanup removes report files older than ttl.
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	return s.storage.CleanupOlderThan(reportsDir, ttl)
}

func reportFilename(job *models.ReportJob) string {
	return path.Join(reportsDir, fmt.Sprintf("%s_%d_%s.%s", job.Type, job.Params.ClassID, job.ID, job.Params.Format))
}

func (s *ExportService) buildDataset(ctx context.Context, job *models.ReportJob) (export.Dataset, error) {
	class, err := s.classes.FindByID(ctx, job.Params.ClassID)
	if err != nil {
		return export.Dataset{}, fmt.Errorf("load class %d: %w", job.Params.ClassID, err)
	}
	subtitle := fmt.Sprintf("%s %s (%s)", class.ClassCode, class.ClassName, class.CourseName)

	switch job.Type {
	case models.ReportTypeClassGrades:
		return s.gradeDataset(ctx, class.ID, subtitle)
	case models.ReportTypeClassAttendance:
		return s.attendanceDataset(ctx, class.ID, subtitle)
	case models.ReportTypeClassRoster:
		return s.rosterDataset(ctx, class.ID, subtitle)
	default:
		return export.Dataset{}, fmt.Errorf("unsupported report type %q", job.Type)
	}
}

func (s *ExportService) gradeDataset(ctx context.Context, classID int64, subtitle string) (export.Dataset, error) {
	rows, err := s.grades.ListByClass(ctx, classID)
	if err != nil {
		return export.Dataset{}, err
	}
	data := export.Dataset{
		Title:    "Class Grades",
		Subtitle: subtitle,
		Headers:  []string{"Student", "Email", "Attendance", "Process", "Final", "Total", "Grade", "Result"},
		Rows:     make([][]string, 0, len(rows)),
	}
	for _, row := range rows {
		result := "-"
		if row.Pass != nil {
			result = "FAIL"
			if *row.Pass {
				result = "PASS"
			}
		}
		letter := "-"
		if row.GradeLetter != nil {
			letter = string(*row.GradeLetter)
		}
		data.Rows = append(data.Rows, []string{
			row.StudentName,
			row.StudentEmail,
			formatScore(row.AttendanceScore),
			formatScore(row.ProcessScore),
			formatScore(row.FinalScore),
			formatScore(row.TotalScore),
			letter,
			result,
		})
	}
	return data, nil
}

func (s *ExportService) attendanceDataset(ctx context.Context, classID int64, subtitle string) (export.Dataset, error) {
	rows, err := s.attendance.ClassMatrix(ctx, classID)
	if err != nil {
		return export.Dataset{}, err
	}
	data := export.Dataset{
		Title:    "Class Attendance",
		Subtitle: subtitle,
		Headers:  []string{"Student", "Present", "Late", "Absent", "Excused", "Sessions", "Rate (%)"},
		Rows:     make([][]string, 0, len(rows)),
	}
	for _, row := range rows {
		data.Rows = append(data.Rows, []string{
			row.StudentName,
			strconv.Itoa(row.Present),
			strconv.Itoa(row.Late),
			strconv.Itoa(row.Absent),
			strconv.Itoa(row.Excused),
			strconv.Itoa(row.Total),
			strconv.FormatFloat(attendanceRate(row.Present+row.Late, row.Total), 'f', 2, 64),
		})
	}
	return data, nil
}

func (s *ExportService) rosterDataset(ctx context.Context, classID int64, subtitle string) (export.Dataset, error) {
	rows, err := s.roster.ListApprovedByClass(ctx, nil, classID)
	if err != nil {
		return export.Dataset{}, err
	}
	data := export.Dataset{
		Title:    "Class Roster",
		Subtitle: subtitle,
		Headers:  []string{"No", "Student", "Email", "Enrolled", "Payment", "Paid"},
		Rows:     make([][]string, 0, len(rows)),
	}
	for i, row := range rows {
		data.Rows = append(data.Rows, []string{
			strconv.Itoa(i + 1),
			row.StudentName,
			row.StudentEmail,
			row.EnrollmentDate.Format("2006-01-02"),
			string(row.PaymentStatus),
			strconv.FormatFloat(row.PaymentAmount, 'f', 2, 64),
		})
	}
	return data, nil
}

func formatScore(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}
