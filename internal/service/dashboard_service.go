package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/short-course-api/internal/dto"
	"github.com/noah-isme/short-course-api/internal/models"
	"github.com/noah-isme/short-course-api/internal/repository"
)

type dashboardUserCounter interface {
	CountByRole(ctx context.Context) (map[models.UserRole]int, error)
}

type dashboardCourseCounter interface {
	CountByStatus(ctx context.Context) (map[models.CourseStatus]int, error)
}

type dashboardClassReader interface {
	CountByStatus(ctx context.Context) (map[models.ClassStatus]int, error)
	SummaryForTeacher(ctx context.Context, teacherID int64) (*repository.TeacherSummary, error)
}

type dashboardEnrollmentCounter interface {
	CountByStatus(ctx context.Context, studentID *int64) (map[models.EnrollmentStatus]int, error)
}

type dashboardScheduleReader interface {
	UpcomingForTeacher(ctx context.Context, teacherID int64, from, to time.Time) ([]models.ScheduleDetail, error)
	UpcomingForStudent(ctx context.Context, studentID int64, from, to time.Time) ([]models.ScheduleDetail, error)
}

// DashboardServiceConfig tunes dashboard behaviour.
type DashboardServiceConfig struct {
	CacheTTL     time.Duration
	UpcomingDays int
}

// DashboardService composes the per-role dashboard payloads.
type DashboardService struct {
	users       dashboardUserCounter
	courses     dashboardCourseCounter
	classes     dashboardClassReader
	enrollments dashboardEnrollmentCounter
	schedules   dashboardScheduleReader
	cache       *CacheService
	logger      *zap.Logger
	now         func() time.Time
	cfg         DashboardServiceConfig
}

// DashboardServiceParams groups constructor dependencies.
type DashboardServiceParams struct {
	Users       dashboardUserCounter
	Courses     dashboardCourseCounter
	Classes     dashboardClassReader
	Enrollments dashboardEnrollmentCounter
	Schedules   dashboardScheduleReader
	Cache       *CacheService
	Logger      *zap.Logger
	Config      DashboardServiceConfig
}

// NewDashboardService constructs a dashboard orchestrator.
func NewDashboardService(params DashboardServiceParams) *DashboardService {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := params.Config
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if cfg.UpcomingDays <= 0 {
		cfg.UpcomingDays = 7
	}
	return &DashboardService{
		users:       params.Users,
		courses:     params.Courses,
		classes:     params.Classes,
		enrollments: params.Enrollments,
		schedules:   params.Schedules,
		cache:       params.Cache,
		logger:      logger,
		now:         time.Now,
		cfg:         cfg,
	}
}

// Admin returns platform-wide counters and whether they came from cache.
func (s *DashboardService) Admin(ctx context.Context) (*dto.AdminDashboardResponse, bool, error) {
	var resp dto.AdminDashboardResponse
	hit, err := s.load(ctx, cacheKeyDashboard+"admin", &resp, func() error {
		return s.composeAdmin(ctx, &resp)
	})
	if err != nil {
		return nil, false, err
	}
	return &resp, hit, nil
}

// Teacher returns the summary of the classes taught by teacherID.
func (s *DashboardService) Teacher(ctx context.Context, teacherID int64) (*dto.TeacherDashboardResponse, bool, error) {
	var resp dto.TeacherDashboardResponse
	key := fmt.Sprintf("%steacher:%d", cacheKeyDashboard, teacherID)
	hit, err := s.load(ctx, key, &resp, func() error {
		return s.composeTeacher(ctx, teacherID, &resp)
	})
	if err != nil {
		return nil, false, err
	}
	return &resp, hit, nil
}

// Student returns the enrollment summary and upcoming sessions of a student.
func (s *DashboardService) Student(ctx context.Context, studentID int64) (*dto.StudentDashboardResponse, bool, error) {
	var resp dto.StudentDashboardResponse
	key := fmt.Sprintf("%sstudent:%d", cacheKeyDashboard, studentID)
	hit, err := s.load(ctx, key, &resp, func() error {
		return s.composeStudent(ctx, studentID, &resp)
	})
	if err != nil {
		return nil, false, err
	}
	return &resp, hit, nil
}

// load serves dest from cache when possible, otherwise composes and stores it.
func (s *DashboardService) load(ctx context.Context, key string, dest interface{}, compose func() error) (bool, error) {
	if s.cache.Enabled() {
		hit, err := s.cache.Get(ctx, key, dest)
		if err != nil {
			s.logger.Warn("dashboard cache read failed", zap.String("key", key), zap.Error(err))
		} else if hit {
			return true, nil
		}
	}
	if err := compose(); err != nil {
		return false, err
	}
	if s.cache.Enabled() {
		if err := s.cache.Set(ctx, key, dest, s.cfg.CacheTTL); err != nil {
			s.logger.Warn("dashboard cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return false, nil
}

func (s *DashboardService) composeAdmin(ctx context.Context, resp *dto.AdminDashboardResponse) error {
	roles, err := s.users.CountByRole(ctx)
	if err != nil {
		return internalError(err, "failed to count users")
	}
	courses, err := s.courses.CountByStatus(ctx)
	if err != nil {
		return internalError(err, "failed to count courses")
	}
	classes, err := s.classes.CountByStatus(ctx)
	if err != nil {
		return internalError(err, "failed to count classes")
	}
	enrollments, err := s.enrollments.CountByStatus(ctx, nil)
	if err != nil {
		return internalError(err, "failed to count enrollments")
	}

	resp.Users = dto.UserCounts{
		Admins:   roles[models.RoleAdmin],
		Teachers: roles[models.RoleTeacher],
		Students: roles[models.RoleStudent],
	}
	resp.Courses = dto.Counter{Active: courses[models.CourseStatusActive]}
	for _, n := range courses {
		resp.Courses.Total += n
	}
	resp.Classes = dto.Counter{Active: classes[models.ClassStatusOngoing]}
	for _, n := range classes {
		resp.Classes.Total += n
	}
	resp.PendingEnrollments = enrollments[models.EnrollmentStatusPending]
	resp.GeneratedAt = s.now().UTC()
	return nil
}

func (s *DashboardService) composeTeacher(ctx context.Context, teacherID int64, resp *dto.TeacherDashboardResponse) error {
	summary, err := s.classes.SummaryForTeacher(ctx, teacherID)
	if err != nil {
		return internalError(err, "failed to summarise classes")
	}

	today := truncateDay(s.now())
	weekStart := today.AddDate(0, 0, -mondayOffset(today))
	week, err := s.schedules.UpcomingForTeacher(ctx, teacherID, weekStart, weekStart.AddDate(0, 0, 6))
	if err != nil {
		return internalError(err, "failed to load week sessions")
	}
	upcoming, err := s.schedules.UpcomingForTeacher(ctx, teacherID, today, today.AddDate(0, 0, s.cfg.UpcomingDays))
	if err != nil {
		return internalError(err, "failed to load upcoming sessions")
	}

	resp.TeacherID = teacherID
	if summary != nil {
		resp.Classes = summary.Classes
		resp.ApprovedStudents = summary.ApprovedStudents
		resp.UngradedStudents = summary.UngradedStudents
	}
	resp.SessionsThisWeek = len(week)
	resp.Upcoming = nonNilSchedules(upcoming)
	resp.GeneratedAt = s.now().UTC()
	return nil
}

func (s *DashboardService) composeStudent(ctx context.Context, studentID int64, resp *dto.StudentDashboardResponse) error {
	counts, err := s.enrollments.CountByStatus(ctx, &studentID)
	if err != nil {
		return internalError(err, "failed to count enrollments")
	}
	today := truncateDay(s.now())
	upcoming, err := s.schedules.UpcomingForStudent(ctx, studentID, today, today.AddDate(0, 0, s.cfg.UpcomingDays))
	if err != nil {
		return internalError(err, "failed to load upcoming sessions")
	}

	resp.StudentID = studentID
	resp.Enrollments = make(map[string]int, len(counts))
	for status, n := range counts {
		resp.Enrollments[string(status)] = n
	}
	resp.ActiveClasses = counts[models.EnrollmentStatusApproved]
	resp.Upcoming = nonNilSchedules(upcoming)
	resp.GeneratedAt = s.now().UTC()
	return nil
}

// mondayOffset returns how many days t is past the start of its ISO week.
func mondayOffset(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

func nonNilSchedules(rows []models.ScheduleDetail) []models.ScheduleDetail {
	if rows == nil {
		return []models.ScheduleDetail{}
	}
	return rows
}
