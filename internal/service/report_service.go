package service

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/short-course-api/internal/dto"
	"github.com/noah-isme/short-course-api/internal/models"
	appErrors "github.com/noah-isme/short-course-api/pkg/errors"
	"github.com/noah-isme/short-course-api/pkg/jobs"
	"github.com/noah-isme/short-course-api/pkg/middleware/requestid"
)

// JobTypeReport tags report generation jobs.
const JobTypeReport = "report"

type reportJobStore interface {
	Create(ctx context.Context, job *models.ReportJob) error
	GetByID(ctx context.Context, id string) (*models.ReportJob, error)
	Update(ctx context.Context, id string, params models.UpdateReportJobParams) error
	ListQueued(ctx context.Context, limit int) ([]models.ReportJob, error)
	ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ReportJob, error)
}

type reportClassReader interface {
	FindByID(ctx context.Context, id int64) (*models.ClassDetail, error)
	IsTaughtBy(ctx context.Context, classID, teacherID int64) (bool, error)
}

type exportGenerator interface {
	Generate(ctx context.Context, job *models.ReportJob) (*ExportResult, error)
}

// ReportServiceConfig governs queue recovery and cleanup.
type ReportServiceConfig struct {
	ResultTTL    time.Duration
	RecoverLimit int
}

// ReportServiceParams groups constructor dependencies.
type ReportServiceParams struct {
	Repo     reportJobStore
	Classes  reportClassReader
	Queue    jobEnqueuer
	Exporter *ExportService
	Metrics  *MetricsService
	Logger   *zap.Logger
	Config   ReportServiceConfig
}

// ReportService orchestrates report job lifecycle management.
type ReportService struct {
	repo     reportJobStore
	classes  reportClassReader
	queue    jobEnqueuer
	exporter *ExportService
	metrics  *MetricsService
	logger   *zap.Logger
	now      func() time.Time
	cfg      ReportServiceConfig
}

// ReportDownload aggregates resolved download data.
type ReportDownload struct {
	File        *os.File
	Filename    string
	ContentType string
	ExpiresAt   time.Time
}

// NewReportService constructs the report service.
func NewReportService(p ReportServiceParams) *ReportService {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := p.Config
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if cfg.RecoverLimit <= 0 {
		cfg.RecoverLimit = 50
	}
	return &ReportService{
		repo:     p.Repo,
		classes:  p.Classes,
		queue:    p.Queue,
		exporter: p.Exporter,
		metrics:  p.Metrics,
		logger:   logger,
		now:      time.Now,
		cfg:      cfg,
	}
}

// CreateJob validates the request, persists the job and enqueues it.
func (s *ReportService) CreateJob(ctx context.Context, req dto.ReportRequest, actor Actor) (*dto.ReportJobResponse, error) {
	if !req.Type.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported report type")
	}
	if !req.Format.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported report format")
	}
	if req.ClassID <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "class_id is required")
	}
	if _, err := s.classes.FindByID(ctx, req.ClassID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, internalError(err, "failed to load class")
	}
	if err := requireClassStaff(ctx, s.classes, req.ClassID, actor); err != nil {
		return nil, err
	}

	job := &models.ReportJob{
		Type:      req.Type,
		Params:    models.ReportJobParams{ClassID: req.ClassID, Format: req.Format},
		Status:    models.ReportStatusQueued,
		CreatedBy: actor.ID,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, internalError(err, "failed to create report job")
	}
	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: JobTypeReport}); err != nil {
		s.markFailed(ctx, job, "failed to enqueue job")
		return nil, internalError(err, "failed to enqueue report job")
	}
	s.logger.Info("report job queued",
		zap.String("job_id", job.ID),
		zap.String("type", string(job.Type)),
		zap.Int64("class_id", req.ClassID),
		zap.Int64("actor_id", actor.ID),
		zap.String("request_id", requestid.FromContext(ctx)),
	)
	return &dto.ReportJobResponse{ID: job.ID, Status: job.Status, Progress: job.Progress}, nil
}

// GetStatus exposes job metadata. Only admins may read jobs created by others.
func (s *ReportService) GetStatus(ctx context.Context, id string, actor Actor) (*dto.ReportStatusResponse, error) {
	job, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && job.CreatedBy != actor.ID {
		return nil, appErrors.ErrForbidden
	}
	resp := &dto.ReportStatusResponse{
		ID:       job.ID,
		Type:     job.Type,
		Status:   job.Status,
		Progress: job.Progress,
	}
	if job.ResultURL != nil && *job.ResultURL != "" {
		resp.ResultURL = job.ResultURL
	}
	if job.ErrorMessage != nil && *job.ErrorMessage != "" {
		resp.Error = job.ErrorMessage
	}
	return resp, nil
}

// ResolveDownload validates a token and opens the stored export file.
func (s *ReportService) ResolveDownload(ctx context.Context, token string) (*ReportDownload, error) {
	signed, err := s.exporter.ParseToken(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	job, err := s.load(ctx, signed.Subject)
	if err != nil {
		return nil, err
	}
	if job.Status != models.ReportStatusFinished {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "report not ready")
	}
	if job.ResultURL == nil || !strings.HasSuffix(*job.ResultURL, token) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "token mismatch")
	}
	file, err := s.exporter.Open(signed.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "report file expired")
		}
		return nil, internalError(err, "failed to open export file")
	}
	return &ReportDownload{
		File:        file,
		Filename:    path.Base(signed.Path),
		ContentType: s.exporter.ContentType(job.Params.Format),
		ExpiresAt:   signed.ExpiresAt,
	}, nil
}

// RecoverPendingJobs replays queued jobs after a restart and returns how many were requeued.
func (s *ReportService) RecoverPendingJobs(ctx context.Context) int {
	pending, err := s.repo.ListQueued(ctx, s.cfg.RecoverLimit)
	if err != nil {
		s.logger.Warn("failed to recover queued report jobs", zap.Error(err))
		return 0
	}
	requeued := 0
	for _, job := range pending {
		if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: JobTypeReport}); err != nil {
			s.logger.Warn("failed to requeue pending job", zap.String("job_id", job.ID), zap.Error(err))
			continue
		}
		requeued++
	}
	if requeued > 0 {
		s.logger.Info("recovered queued report jobs", zap.Int("count", requeued))
	}
	return requeued
}

// CleanupExpired deletes files of jobs finished more than ResultTTL ago and clears their URLs.
func (s *ReportService) CleanupExpired(ctx context.Context) {
	const batch = 100
	cutoff := s.now().Add(-s.cfg.ResultTTL)
	cleared := ""
	for {
		expired, err := s.repo.ListFinishedBefore(ctx, cutoff, batch)
		if err != nil {
			s.logger.Warn("cleanup list failed", zap.Error(err))
			return
		}
		for _, job := range expired {
			if job.ResultURL != nil {
				if signed, err := s.exporter.ParseToken(extractToken(*job.ResultURL), true); err == nil {
					if err := s.exporter.Delete(signed.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
						s.logger.Warn("cleanup delete failed", zap.String("job_id", job.ID), zap.Error(err))
					}
				}
			}
			if err := s.repo.Update(ctx, job.ID, models.UpdateReportJobParams{ResultURL: &cleared}); err != nil {
				s.logger.Warn("cleanup update failed", zap.String("job_id", job.ID), zap.Error(err))
				return
			}
		}
		if len(expired) < batch {
			break
		}
	}
	if removed, err := s.exporter.Cleanup(s.cfg.ResultTTL); err != nil {
		s.logger.Warn("filesystem cleanup failed", zap.Error(err))
	} else if len(removed) > 0 {
		s.logger.Info("removed expired report files", zap.Int("count", len(removed)))
	}
}

func (s *ReportService) load(ctx context.Context, id string) (*models.ReportJob, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "report job not found")
		}
		return nil, internalError(err, "failed to load report job")
	}
	return job, nil
}

func (s *ReportService) markFailed(ctx context.Context, job *models.ReportJob, msg string) {
	status := models.ReportStatusFailed
	progress := 100
	now := s.now().UTC()
	if err := s.repo.Update(ctx, job.ID, models.UpdateReportJobParams{
		Status:       &status,
		Progress:     &progress,
		ErrorMessage: &msg,
		FinishedAt:   &now,
	}); err != nil {
		s.logger.Warn("failed to mark job failed", zap.String("job_id", job.ID), zap.Error(err))
	}
	s.metrics.RecordReportJob(job.Type, status)
}

func extractToken(url string) string {
	if i := strings.LastIndex(url, "/"); i >= 0 {
		return url[i+1:]
	}
	return url
}

// ReportWorker bridges queue jobs to ExportService.
type ReportWorker struct {
	repo     reportJobStore
	exporter exportGenerator
	metrics  *MetricsService
	logger   *zap.Logger
	now      func() time.Time
}

// NewReportWorker constructs a worker.
func NewReportWorker(repo reportJobStore, exporter exportGenerator, metrics *MetricsService, logger *zap.Logger) *ReportWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportWorker{
		repo:     repo,
		exporter: exporter,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// Handle processes a queue job. Failures put the job back to QUEUED so the queue can retry it.
func (w *ReportWorker) Handle(ctx context.Context, job jobs.Job) error {
	record, err := w.repo.GetByID(ctx, job.ID)
	if err != nil {
		return err
	}
	if record.Status == models.ReportStatusFinished || record.Status == models.ReportStatusFailed {
		return nil
	}
	processing := models.ReportStatusProcessing
	progress := 10
	if err := w.repo.Update(ctx, job.ID, models.UpdateReportJobParams{
		Status:   &processing,
		Progress: &progress,
	}); err != nil {
		return err
	}

	result, err := w.exporter.Generate(ctx, record)
	if err != nil {
		queued := models.ReportStatusQueued
		reset := 0
		msg := err.Error()
		if updateErr := w.repo.Update(ctx, job.ID, models.UpdateReportJobParams{
			Status:       &queued,
			Progress:     &reset,
			ErrorMessage: &msg,
		}); updateErr != nil {
			w.logger.Warn("failed to mark job queued", zap.String("job_id", job.ID), zap.Error(updateErr))
		}
		return err
	}

	finished := models.ReportStatusFinished
	progress = 100
	now := w.now().UTC()
	url := result.URL
	noError := ""
	if err := w.repo.Update(ctx, job.ID, models.UpdateReportJobParams{
		Status:       &finished,
		Progress:     &progress,
		ResultURL:    &url,
		ErrorMessage: &noError,
		FinishedAt:   &now,
	}); err != nil {
		w.logger.Warn("failed to mark job finished", zap.String("job_id", job.ID), zap.Error(err))
		return err
	}
	w.metrics.RecordReportJob(record.Type, finished)
	return nil
}

// GiveUp marks a job FAILED once the queue has exhausted its retries.
func (w *ReportWorker) GiveUp(job jobs.Job, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	failed := models.ReportStatusFailed
	progress := 100
	now := w.now().UTC()
	msg := cause.Error()
	if err := w.repo.Update(ctx, job.ID, models.UpdateReportJobParams{
		Status:       &failed,
		Progress:     &progress,
		ErrorMessage: &msg,
		FinishedAt:   &now,
	}); err != nil {
		w.logger.Warn("failed to mark job failed", zap.String("job_id", job.ID), zap.Error(err))
	}
	reportType := models.ReportType("")
	if record, err := w.repo.GetByID(ctx, job.ID); err == nil {
		reportType = record.Type
	}
	w.metrics.RecordReportJob(reportType, failed)
}
