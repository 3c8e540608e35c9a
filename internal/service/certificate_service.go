package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/short-course-api/internal/dto"
	"github.com/noah-isme/short-course-api/internal/models"
	"github.com/noah-isme/short-course-api/internal/repository"
	appErrors "github.com/noah-isme/short-course-api/pkg/errors"
	"github.com/noah-isme/short-course-api/pkg/export"
	"github.com/noah-isme/short-course-api/pkg/jobs"
)

// JobTypeCertificateDocument renders the PDF of an issued certificate.
const JobTypeCertificateDocument = "certificate_document"

type certificateRepository interface {
	FindByID(ctx context.Context, id int64) (*models.CertificateDetail, error)
	FindByCode(ctx context.Context, code string) (*models.CertificateDetail, error)
	CodeExists(ctx context.Context, exec sqlx.ExtContext, code string) (bool, error)
	ExistsForEnrollment(ctx context.Context, enrollmentID int64) (bool, error)
	ListEligible(ctx context.Context, exec sqlx.ExtContext, classID int64) ([]models.EligibleEnrollment, error)
	Create(ctx context.Context, exec sqlx.ExtContext, cert *models.Certificate) error
	Update(ctx context.Context, cert *models.Certificate) error
	SetFilePath(ctx context.Context, id int64, path string) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, filter models.CertificateFilter) ([]models.CertificateDetail, int, error)
}

type certificateClassRepository interface {
	FindByID(ctx context.Context, id int64) (*models.ClassDetail, error)
	LockByID(ctx context.Context, exec sqlx.ExtContext, id int64) (*models.Class, error)
	IsTaughtBy(ctx context.Context, classID, teacherID int64) (bool, error)
}

type certificateEnrollmentReader interface {
	FindByID(ctx context.Context, id int64) (*models.EnrollmentDetail, error)
}

type certificateGradeReader interface {
	FindByEnrollmentID(ctx context.Context, enrollmentID int64) (*models.Grade, error)
}

type documentStore interface {
	Save(name string, data []byte) (string, error)
	ReadFile(name string) ([]byte, error)
	Exists(name string) bool
	Delete(name string) error
}

type certificateRenderer interface {
	Render(content export.CertificateContent) ([]byte, error)
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

// CertificateServiceConfig holds the code prefix and the public verification URL.
type CertificateServiceConfig struct {
	CodePrefix    string
	VerifyBaseURL string
}

// CertificateServiceParams groups the dependencies of CertificateService.
type CertificateServiceParams struct {
	Tx          txProvider
	Repo        certificateRepository
	Classes     certificateClassRepository
	Enrollments certificateEnrollmentReader
	Grades      certificateGradeReader
	Audit       auditWriter
	Metrics     *MetricsService
	Cache       *CacheService
	Storage     documentStore
	Renderer    certificateRenderer
	Validator   *validator.Validate
	Logger      *zap.Logger
	Config      CertificateServiceConfig
}

// CertificateService issues, revokes, verifies and renders course certificates.
type CertificateService struct {
	tx          txProvider
	repo        certificateRepository
	classes     certificateClassRepository
	enrollments certificateEnrollmentReader
	grades      certificateGradeReader
	audit       auditWriter
	metrics     *MetricsService
	cache       *CacheService
	storage     documentStore
	renderer    certificateRenderer
	queue       jobEnqueuer
	validator   *validator.Validate
	logger      *zap.Logger
	cfg         CertificateServiceConfig
	now         func() time.Time
}

// NewCertificateService constructs the service.
func NewCertificateService(p CertificateServiceParams) *CertificateService {
	if p.Validator == nil {
		p.Validator = validator.New()
	}
	if p.Logger == nil {
		p.Logger = zap.NewNop()
	}
	if p.Config.CodePrefix == "" {
		p.Config.CodePrefix = "CERT"
	}
	return &CertificateService{
		tx:          p.Tx,
		repo:        p.Repo,
		classes:     p.Classes,
		enrollments: p.Enrollments,
		grades:      p.Grades,
		audit:       p.Audit,
		metrics:     p.Metrics,
		cache:       p.Cache,
		storage:     p.Storage,
		renderer:    p.Renderer,
		validator:   p.Validator,
		logger:      p.Logger,
		cfg:         p.Config,
		now:         time.Now,
	}
}

// UseQueue routes document rendering through a background queue. Without one,
// documents are rendered on first download.
func (s *CertificateService) UseQueue(q jobEnqueuer) {
	s.queue = q
}

// IssueForClass issues a certificate to every eligible enrollment of a class in one
// transaction. Codes follow PREFIX-CLASSID-NNN, skipping codes already taken.
func (s *CertificateService) IssueForClass(ctx context.Context, classID int64, req dto.IssueClassCertificatesRequest, actor Actor) (issued []models.Certificate, err error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid certificate request")
	}
	if err := requireClassStaff(ctx, s.classes, classID, actor); err != nil {
		return nil, err
	}
	prefix := strings.ToUpper(strings.TrimSpace(req.Prefix))
	if prefix == "" {
		prefix = s.cfg.CodePrefix
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, internalError(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = s.classes.LockByID(ctx, tx, classID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = appErrors.Clone(appErrors.ErrNotFound, "class not found")
			return nil, err
		}
		err = internalError(err, "failed to lock class")
		return nil, err
	}
	eligible, err := s.repo.ListEligible(ctx, tx, classID)
	if err != nil {
		err = internalError(err, "failed to list eligible enrollments")
		return nil, err
	}

	issueDate := truncateDay(s.now())
	seq := 0
	issued = make([]models.Certificate, 0, len(eligible))
	for _, e := range eligible {
		var code string
		for {
			seq++
			code = fmt.Sprintf("%s-%d-%03d", prefix, classID, seq)
			taken, checkErr := s.repo.CodeExists(ctx, tx, code)
			if checkErr != nil {
				err = internalError(checkErr, "failed to check certificate code")
				return nil, err
			}
			if !taken {
				break
			}
		}
		cert := models.Certificate{
			EnrollmentID:    e.EnrollmentID,
			CertificateCode: code,
			IssueDate:       &issueDate,
			Status:          models.CertificateStatusIssued,
			IssuedBy:        actorRef(actor),
		}
		if err = s.repo.Create(ctx, tx, &cert); err != nil {
			if repository.IsUniqueViolation(err) {
				err = appErrors.Clone(appErrors.ErrConflict, "certificates were issued concurrently, retry")
				return nil, err
			}
			err = internalError(err, "failed to create certificate")
			return nil, err
		}
		issued = append(issued, cert)
	}

	if err = tx.Commit(); err != nil {
		err = internalError(err, "failed to commit certificates")
		return nil, err
	}

	s.metrics.RecordCertificatesIssued(len(issued))
	s.logger.Info("class certificates issued", zap.Int64("class_id", classID), zap.Int("issued", len(issued)))
	for i := range issued {
		s.scheduleDocument(issued[i].ID)
	}
	s.afterWrite(ctx, actor, classID, nil, map[string]int{"issued": len(issued)})
	return issued, nil
}

// Create drafts a certificate for one eligible enrollment.
func (s *CertificateService) Create(ctx context.Context, req dto.CreateCertificateRequest, actor Actor) (*models.CertificateDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid certificate payload")
	}
	enrollment, err := s.enrollments.FindByID(ctx, req.EnrollmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, internalError(err, "failed to load enrollment")
	}
	if err := requireClassStaff(ctx, s.classes, enrollment.ClassID, actor); err != nil {
		return nil, err
	}
	if err := s.checkEligible(ctx, &enrollment.Enrollment); err != nil {
		return nil, err
	}

	code := strings.TrimSpace(req.CertificateCode)
	taken, err := s.repo.CodeExists(ctx, nil, code)
	if err != nil {
		return nil, internalError(err, "failed to check certificate code")
	}
	if taken {
		return nil, appErrors.Clone(appErrors.ErrConflict, "certificate code already exists")
	}

	cert := &models.Certificate{
		EnrollmentID:    req.EnrollmentID,
		CertificateCode: code,
		Status:          models.CertificateStatusDraft,
		Notes:           req.Notes,
	}
	if err := s.repo.Create(ctx, nil, cert); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "certificate already exists")
		}
		return nil, internalError(err, "failed to create certificate")
	}
	s.afterWrite(ctx, actor, cert.ID, nil, cert)
	return s.find(ctx, cert.ID)
}

// Issue moves a DRAFT certificate to ISSUED.
func (s *CertificateService) Issue(ctx context.Context, id int64, actor Actor) (*models.CertificateDetail, error) {
	detail, err := s.loadForStaff(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	if detail.Status != models.CertificateStatusDraft {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, fmt.Sprintf("certificate is %s, only drafts can be issued", detail.Status))
	}
	cert := detail.Certificate
	issueDate := truncateDay(s.now())
	cert.Status = models.CertificateStatusIssued
	cert.IssueDate = &issueDate
	cert.IssuedBy = actorRef(actor)
	if err := s.repo.Update(ctx, &cert); err != nil {
		return nil, internalError(err, "failed to issue certificate")
	}
	s.metrics.RecordCertificatesIssued(1)
	s.scheduleDocument(id)
	s.afterWrite(ctx, actor, id, detail.Certificate, cert)
	detail.Certificate = cert
	return detail, nil
}

// Revoke marks a certificate REVOKED and keeps the reason in its notes.
func (s *CertificateService) Revoke(ctx context.Context, id int64, req dto.RevokeCertificateRequest, actor Actor) (*models.CertificateDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid revocation payload")
	}
	detail, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	cert := detail.Certificate
	cert.Status = models.CertificateStatusRevoked
	if reason := strings.TrimSpace(req.Reason); reason != "" {
		cert.Notes = &reason
	}
	if err := s.repo.Update(ctx, &cert); err != nil {
		return nil, internalError(err, "failed to revoke certificate")
	}
	s.afterWrite(ctx, actor, id, detail.Certificate, cert)
	detail.Certificate = cert
	return detail, nil
}

// Update edits the notes of a certificate.
func (s *CertificateService) Update(ctx context.Context, id int64, req dto.UpdateCertificateRequest, actor Actor) (*models.CertificateDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid certificate payload")
	}
	detail, err := s.loadForStaff(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	cert := detail.Certificate
	cert.Notes = req.Notes
	if err := s.repo.Update(ctx, &cert); err != nil {
		return nil, internalError(err, "failed to update certificate")
	}
	s.afterWrite(ctx, actor, id, detail.Certificate, cert)
	detail.Certificate = cert
	return detail, nil
}

// Delete removes a certificate and its stored document.
func (s *CertificateService) Delete(ctx context.Context, id int64, actor Actor) error {
	detail, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "certificate not found")
		}
		return internalError(err, "failed to delete certificate")
	}
	if detail.FilePath != nil && s.storage != nil {
		if err := s.storage.Delete(*detail.FilePath); err != nil {
			s.logger.Warn("failed to delete certificate document", zap.Int64("certificate_id", id), zap.Error(err))
		}
	}
	s.afterWrite(ctx, actor, id, detail.Certificate, nil)
	return nil
}

// Get returns a certificate. Students may read only their own.
func (s *CertificateService) Get(ctx context.Context, id int64, actor Actor) (*models.CertificateDetail, error) {
	detail, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.canRead(ctx, detail, actor); err != nil {
		return nil, err
	}
	return detail, nil
}

// List returns certificates. Students are limited to their own; teachers must name a class they teach.
func (s *CertificateService) List(ctx context.Context, filter models.CertificateFilter, actor Actor) ([]models.CertificateDetail, *models.Pagination, error) {
	switch {
	case actor.IsStudent():
		own := actor.ID
		filter.StudentID = &own
	case actor.IsTeacher():
		if filter.ClassID == nil {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, "class_id is required")
		}
		if err := requireClassStaff(ctx, s.classes, *filter.ClassID, actor); err != nil {
			return nil, nil, err
		}
	}
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, internalError(err, "failed to list certificates")
	}
	return items, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// Verify answers a public lookup by code. Unknown codes are reported as not found.
func (s *CertificateService) Verify(ctx context.Context, code string) (*dto.CertificateVerification, error) {
	detail, err := s.repo.FindByCode(ctx, strings.TrimSpace(code))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "certificate not found")
		}
		return nil, internalError(err, "failed to verify certificate")
	}
	result := &dto.CertificateVerification{
		Valid:           detail.Status == models.CertificateStatusIssued,
		CertificateCode: detail.CertificateCode,
		Status:          detail.Status,
		StudentName:     detail.StudentName,
		CourseName:      detail.CourseName,
		ClassName:       detail.ClassName,
	}
	if detail.IssueDate != nil {
		formatted := detail.IssueDate.Format("2006-01-02")
		result.IssueDate = &formatted
	}
	return result, nil
}

// CertificateDocument is a rendered certificate ready for download.
type CertificateDocument struct {
	Filename string
	Content  []byte
}

// Document returns the PDF of an issued certificate, rendering and storing it when missing.
func (s *CertificateService) Document(ctx context.Context, id int64, actor Actor) (*CertificateDocument, error) {
	detail, err := s.Get(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	if detail.Status != models.CertificateStatusIssued {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "only issued certificates have a document")
	}
	filename := detail.CertificateCode + ".pdf"
	if detail.FilePath != nil && s.storage.Exists(*detail.FilePath) {
		content, err := s.storage.ReadFile(*detail.FilePath)
		if err == nil {
			return &CertificateDocument{Filename: filename, Content: content}, nil
		}
		s.logger.Warn("stored certificate unreadable, rendering again", zap.Int64("certificate_id", id), zap.Error(err))
	}
	content, err := s.render(ctx, detail)
	if err != nil {
		return nil, err
	}
	return &CertificateDocument{Filename: filename, Content: content}, nil
}

// HandleJob renders the document of the certificate named by the job ID.
func (s *CertificateService) HandleJob(ctx context.Context, job jobs.Job) error {
	id, err := strconv.ParseInt(job.ID, 10, 64)
	if err != nil {
		return fmt.Errorf("certificate job id %q: %w", job.ID, err)
	}
	detail, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return err
	}
	if detail.Status != models.CertificateStatusIssued {
		return nil
	}
	_, err = s.render(ctx, detail)
	return err
}

func (s *CertificateService) render(ctx context.Context, detail *models.CertificateDetail) ([]byte, error) {
	content := export.CertificateContent{
		Code:        detail.CertificateCode,
		StudentName: detail.StudentName,
		CourseName:  detail.CourseName,
		ClassName:   detail.ClassName,
		VerifyURL:   s.verifyURL(detail.CertificateCode),
	}
	if detail.IssueDate != nil {
		content.IssueDate = *detail.IssueDate
	}
	pdf, err := s.renderer.Render(content)
	if err != nil {
		return nil, internalError(err, "failed to render certificate")
	}
	name, err := s.storage.Save(fmt.Sprintf("certificates/%d/%s.pdf", detail.ClassID, detail.CertificateCode), pdf)
	if err != nil {
		return nil, internalError(err, "failed to store certificate")
	}
	if err := s.repo.SetFilePath(ctx, detail.ID, name); err != nil {
		s.logger.Warn("failed to record certificate path", zap.Int64("certificate_id", detail.ID), zap.Error(err))
	}
	return pdf, nil
}

func (s *CertificateService) verifyURL(code string) string {
	if s.cfg.VerifyBaseURL == "" {
		return ""
	}
	return strings.TrimSuffix(s.cfg.VerifyBaseURL, "/") + "/" + code
}

func (s *CertificateService) scheduleDocument(id int64) {
	if s.queue == nil {
		return
	}
	job := jobs.Job{ID: strconv.FormatInt(id, 10), Type: JobTypeCertificateDocument}
	if err := s.queue.Enqueue(job); err != nil {
		s.logger.Warn("certificate document not queued, it will render on download", zap.Int64("certificate_id", id), zap.Error(err))
	}
}

func (s *CertificateService) checkEligible(ctx context.Context, e *models.Enrollment) error {
	if e.Status != models.EnrollmentStatusApproved {
		return appErrors.Clone(appErrors.ErrNotEligible, fmt.Sprintf("enrollment is %s", e.Status))
	}
	grade, err := s.grades.FindByEnrollmentID(ctx, e.ID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return internalError(err, "failed to load grade")
	}
	if grade == nil || !grade.Pass {
		return appErrors.Clone(appErrors.ErrNotEligible, "enrollment has no passing grade")
	}
	exists, err := s.repo.ExistsForEnrollment(ctx, e.ID)
	if err != nil {
		return internalError(err, "failed to check existing certificate")
	}
	if exists {
		return appErrors.Clone(appErrors.ErrConflict, "enrollment already has a certificate")
	}
	return nil
}

func (s *CertificateService) find(ctx context.Context, id int64) (*models.CertificateDetail, error) {
	detail, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "certificate not found")
		}
		return nil, internalError(err, "failed to load certificate")
	}
	return detail, nil
}

func (s *CertificateService) loadForStaff(ctx context.Context, id int64, actor Actor) (*models.CertificateDetail, error) {
	detail, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requireClassStaff(ctx, s.classes, detail.ClassID, actor); err != nil {
		return nil, err
	}
	return detail, nil
}

func (s *CertificateService) canRead(ctx context.Context, detail *models.CertificateDetail, actor Actor) error {
	if actor.IsStudent() {
		if detail.StudentID != actor.ID {
			return appErrors.Clone(appErrors.ErrForbidden, "students may only read their own certificates")
		}
		return nil
	}
	return requireClassStaff(ctx, s.classes, detail.ClassID, actor)
}

func (s *CertificateService) afterWrite(ctx context.Context, actor Actor, id int64, old, new interface{}) {
	invalidateCache(ctx, s.cache, cacheKeyDashboard+"*")
	writeAudit(ctx, s.audit, s.logger, actor, models.AuditActionCertificate, "certificates", id, old, new)
}

func actorRef(actor Actor) *int64 {
	if actor.ID <= 0 {
		return nil
	}
	id := actor.ID
	return &id
}
