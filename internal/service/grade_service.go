package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/short-course-api/internal/dto"
	"github.com/noah-isme/short-course-api/internal/models"
	appErrors "github.com/noah-isme/short-course-api/pkg/errors"
)

type gradeRepository interface {
	FindByID(ctx context.Context, id int64) (*models.GradeDetail, error)
	FindByEnrollmentID(ctx context.Context, enrollmentID int64) (*models.Grade, error)
	Upsert(ctx context.Context, grade *models.Grade) error
	Delete(ctx context.Context, id int64) error
	ListByClass(ctx context.Context, classID int64) ([]models.StudentGrade, error)
	TopByClass(ctx context.Context, classID int64, limit int) ([]models.GradeDetail, error)
	FindForStudent(ctx context.Context, studentID, classID int64) (*models.GradeDetail, error)
	ListForStudent(ctx context.Context, studentID int64) ([]models.GradeDetail, error)
}

type gradeEnrollmentReader interface {
	FindByID(ctx context.Context, id int64) (*models.EnrollmentDetail, error)
}

// Score weights and letter bands, expressed in hundredths.
const (
	weightAttendance = 10
	weightProcess    = 30
	weightFinal      = 60

	bandA    = 850
	bandB    = 700
	bandC    = 550
	bandD    = 400
	passMark = 500
)

// GradeService records scores and derives totals, letters and pass flags.
type GradeService struct {
	repo        gradeRepository
	enrollments gradeEnrollmentReader
	classes     teachingChecker
	audit       auditWriter
	cache       *CacheService
	cacheTTL    time.Duration
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// NewGradeService constructs the grading service.
func NewGradeService(repo gradeRepository, enrollments gradeEnrollmentReader, classes teachingChecker, audit auditWriter, cache *CacheService, cacheTTL time.Duration, validate *validator.Validate, logger *zap.Logger) *GradeService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GradeService{
		repo:        repo,
		enrollments: enrollments,
		classes:     classes,
		audit:       audit,
		cache:       cache,
		cacheTTL:    cacheTTL,
		validator:   validate,
		logger:      logger,
		now:         time.Now,
	}
}

// ApplyGradeFormula fills TotalScore, GradeLetter and Pass from the component scores.
// The total exists only when all three components are present and is computed in
// hundredths so two-decimal inputs give exact results.
func ApplyGradeFormula(g *models.Grade) {
	g.TotalScore, g.GradeLetter, g.Pass = nil, nil, false
	if g.AttendanceScore == nil || g.ProcessScore == nil || g.FinalScore == nil {
		return
	}
	a, p, f := hundredths(*g.AttendanceScore), hundredths(*g.ProcessScore), hundredths(*g.FinalScore)
	total := (a*weightAttendance + p*weightProcess + f*weightFinal + 50) / 100

	value := float64(total) / 100
	letter := letterFor(total)
	g.TotalScore = &value
	g.GradeLetter = &letter
	g.Pass = total >= passMark
}

func hundredths(v float64) int64 {
	return int64(math.Round(v * 100))
}

func letterFor(total int64) models.GradeLetter {
	switch {
	case total >= bandA:
		return models.GradeLetterA
	case total >= bandB:
		return models.GradeLetterB
	case total >= bandC:
		return models.GradeLetterC
	case total >= bandD:
		return models.GradeLetterD
	default:
		return models.GradeLetterF
	}
}

// Save writes the score sheet of an enrollment, creating it on the first call.
func (s *GradeService) Save(ctx context.Context, req dto.SaveGradeRequest, actor Actor) (*models.Grade, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid grade payload")
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
	if enrollment.Status != models.EnrollmentStatusApproved && enrollment.Status != models.EnrollmentStatusCompleted {
		return nil, appErrors.Clone(appErrors.ErrNotEligible, fmt.Sprintf("enrollment is %s and cannot be graded", enrollment.Status))
	}

	previous, err := s.repo.FindByEnrollmentID(ctx, req.EnrollmentID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, internalError(err, "failed to load grade")
	}

	grade := &models.Grade{
		EnrollmentID:    req.EnrollmentID,
		AttendanceScore: req.AttendanceScore,
		ProcessScore:    req.ProcessScore,
		FinalScore:      req.FinalScore,
		Note:            req.Note,
	}
	if previous != nil {
		grade.ID = previous.ID
		grade.CreatedAt = previous.CreatedAt
	}
	if err := s.write(ctx, grade, actor); err != nil {
		return nil, err
	}

	var old interface{}
	if previous != nil {
		old = previous
	}
	s.afterWrite(ctx, enrollment.ClassID, actor, grade.ID, old, grade)
	return grade, nil
}

// Recalculate re-derives the computed fields of a stored grade.
func (s *GradeService) Recalculate(ctx context.Context, id int64, actor Actor) (*models.Grade, error) {
	detail, err := s.load(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	grade := detail.Grade
	before := grade
	if err := s.write(ctx, &grade, actor); err != nil {
		return nil, err
	}
	s.afterWrite(ctx, detail.ClassID, actor, grade.ID, before, grade)
	return &grade, nil
}

// Delete removes a grade.
func (s *GradeService) Delete(ctx context.Context, id int64, actor Actor) error {
	detail, err := s.load(ctx, id, actor)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "grade not found")
		}
		return internalError(err, "failed to delete grade")
	}
	s.afterWrite(ctx, detail.ClassID, actor, id, detail.Grade, nil)
	return nil
}

// ListByClass returns every approved or completed student of a class with their grade, if any.
func (s *GradeService) ListByClass(ctx context.Context, classID int64, actor Actor) ([]models.StudentGrade, error) {
	if err := requireClassStaff(ctx, s.classes, classID, actor); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListByClass(ctx, classID)
	if err != nil {
		return nil, internalError(err, "failed to list grades")
	}
	return rows, nil
}

// ClassStatistics summarises totals of a class. The second value reports a cache hit.
func (s *GradeService) ClassStatistics(ctx context.Context, classID int64, actor Actor) (*models.GradeStatistics, bool, error) {
	if err := requireClassStaff(ctx, s.classes, classID, actor); err != nil {
		return nil, false, err
	}
	key := fmt.Sprintf("%s%d", cacheKeyGradeStats, classID)
	var cached models.GradeStatistics
	if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
		return &cached, true, nil
	}

	rows, err := s.repo.ListByClass(ctx, classID)
	if err != nil {
		return nil, false, internalError(err, "failed to load grades")
	}
	stats := gradeStatistics(classID, rows)
	_ = s.cache.Set(ctx, key, stats, s.cacheTTL)
	return stats, false, nil
}

func gradeStatistics(classID int64, rows []models.StudentGrade) *models.GradeStatistics {
	stats := &models.GradeStatistics{
		ClassID: classID,
		Distribution: map[models.GradeLetter]int{
			models.GradeLetterA: 0, models.GradeLetterB: 0, models.GradeLetterC: 0,
			models.GradeLetterD: 0, models.GradeLetterF: 0,
		},
	}
	var sum int64
	for _, row := range rows {
		if row.TotalScore == nil {
			continue
		}
		stats.Graded++
		sum += hundredths(*row.TotalScore)
		if row.Pass != nil && *row.Pass {
			stats.Passed++
		} else {
			stats.Failed++
		}
		if row.GradeLetter != nil {
			stats.Distribution[*row.GradeLetter]++
		}
	}
	if stats.Graded > 0 {
		avg := math.Round(float64(sum)/float64(stats.Graded)) / 100
		stats.AverageTotal = &avg
		stats.PassRate = math.Round(float64(stats.Passed)*10000/float64(stats.Graded)) / 100
	}
	return stats
}

// TopStudents returns the best n totals of a class.
func (s *GradeService) TopStudents(ctx context.Context, classID int64, n int, actor Actor) ([]models.GradeDetail, error) {
	if err := requireClassStaff(ctx, s.classes, classID, actor); err != nil {
		return nil, err
	}
	if n <= 0 {
		n = 5
	}
	if n > 50 {
		n = 50
	}
	rows, err := s.repo.TopByClass(ctx, classID, n)
	if err != nil {
		return nil, internalError(err, "failed to list top students")
	}
	return rows, nil
}

// GetForStudent returns a student's grade in a class. Students read only their own.
func (s *GradeService) GetForStudent(ctx context.Context, studentID, classID int64, actor Actor) (*models.GradeDetail, error) {
	if actor.IsStudent() {
		if actor.ID != studentID {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "students may only read their own grades")
		}
	} else if err := requireClassStaff(ctx, s.classes, classID, actor); err != nil {
		return nil, err
	}
	grade, err := s.repo.FindForStudent(ctx, studentID, classID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "grade not found")
		}
		return nil, internalError(err, "failed to load grade")
	}
	return grade, nil
}

// ListMine returns every grade of the calling student.
func (s *GradeService) ListMine(ctx context.Context, actor Actor) ([]models.GradeDetail, error) {
	rows, err := s.repo.ListForStudent(ctx, actor.ID)
	if err != nil {
		return nil, internalError(err, "failed to list grades")
	}
	return rows, nil
}

func (s *GradeService) load(ctx context.Context, id int64, actor Actor) (*models.GradeDetail, error) {
	detail, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "grade not found")
		}
		return nil, internalError(err, "failed to load grade")
	}
	if err := requireClassStaff(ctx, s.classes, detail.ClassID, actor); err != nil {
		return nil, err
	}
	return detail, nil
}

func (s *GradeService) write(ctx context.Context, grade *models.Grade, actor Actor) error {
	ApplyGradeFormula(grade)
	now := s.now().UTC()
	grade.GradedAt = &now
	if actor.ID > 0 {
		grader := actor.ID
		grade.GradedBy = &grader
	}
	if err := s.repo.Upsert(ctx, grade); err != nil {
		return internalError(err, "failed to save grade")
	}
	return nil
}

func (s *GradeService) afterWrite(ctx context.Context, classID int64, actor Actor, gradeID int64, old, new interface{}) {
	invalidateCache(ctx, s.cache,
		fmt.Sprintf("%s%d", cacheKeyGradeStats, classID),
		cacheKeyDashboard+"*",
	)
	writeAudit(ctx, s.audit, s.logger, actor, models.AuditActionGradeWrite, "grades", gradeID, old, new)
}
