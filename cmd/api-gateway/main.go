package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/short-course-api/api/swagger"
	"github.com/noah-isme/short-course-api/internal/handler"
	"github.com/noah-isme/short-course-api/internal/middleware"
	"github.com/noah-isme/short-course-api/internal/repository"
	"github.com/noah-isme/short-course-api/internal/service"
	"github.com/noah-isme/short-course-api/pkg/cache"
	"github.com/noah-isme/short-course-api/pkg/config"
	"github.com/noah-isme/short-course-api/pkg/database"
	"github.com/noah-isme/short-course-api/pkg/export"
	"github.com/noah-isme/short-course-api/pkg/jobs"
	"github.com/noah-isme/short-course-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/short-course-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/short-course-api/pkg/middleware/requestid"
	"github.com/noah-isme/short-course-api/pkg/storage"
)

// @title Short Course API
// @version 1.0.0
// @description Course catalog, class enrollment, scheduling, attendance, grading and certificates for a short-course training centre.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("database connection failed", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	var redisClient *redis.Client
	if cfg.Cache.Enabled {
		redisClient, err = cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, caching disabled", zap.Error(err))
			redisClient = nil
		} else {
			defer redisClient.Close() //nolint:errcheck
		}
	}

	validate := validator.New()
	metrics := service.NewMetricsService()

	userRepo := repository.NewUserRepository(db)
	profileRepo := repository.NewStudentProfileRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	classRepo := repository.NewClassRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	scheduleRepo := repository.NewScheduleRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	gradeRepo := repository.NewGradeRepository(db)
	certificateRepo := repository.NewCertificateRepository(db)
	reportRepo := repository.NewReportRepository(db)

	var cacheSvc *service.CacheService
	if redisClient != nil {
		cacheSvc = service.NewCacheService(repository.NewCacheRepository(redisClient, logr), metrics, cfg.Cache.DefaultTTL, logr, true)
	}

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	})
	userSvc := service.NewUserService(userRepo, validate, logr, service.UserServiceConfig{SelfRegistration: cfg.Enrollment.SelfRegistration})
	profileSvc := service.NewStudentProfileService(profileRepo, userRepo, validate, logr)
	courseSvc := service.NewCourseService(courseRepo, userRepo, cacheSvc, validate, logr)
	classSvc := service.NewClassService(db, classRepo, courseRepo, userRepo, enrollmentRepo, userRepo, cacheSvc, validate, logr)
	enrollmentSvc := service.NewEnrollmentService(service.EnrollmentServiceParams{
		Tx:          db,
		Enrollments: enrollmentRepo,
		Classes:     classRepo,
		Users:       userRepo,
		Audit:       userRepo,
		Cache:       cacheSvc,
		Metrics:     metrics,
		Validator:   validate,
		Logger:      logr,
	})
	scheduleSvc := service.NewScheduleService(db, scheduleRepo, classRepo, userRepo, cacheSvc, validate, logr)
	attendanceSvc := service.NewAttendanceService(db, attendanceRepo, scheduleRepo, enrollmentRepo, classRepo, validate, logr)
	gradeSvc := service.NewGradeService(gradeRepo, enrollmentRepo, classRepo, userRepo, cacheSvc, cfg.Cache.DefaultTTL, validate, logr)
	dashboardSvc := service.NewDashboardService(service.DashboardServiceParams{
		Users:       userRepo,
		Courses:     courseRepo,
		Classes:     classRepo,
		Enrollments: enrollmentRepo,
		Schedules:   scheduleRepo,
		Cache:       cacheSvc,
		Logger:      logr,
		Config:      service.DashboardServiceConfig{CacheTTL: cfg.Dashboard.CacheTTL},
	})

	certStore, err := storage.NewLocalStorage(cfg.Certificates.StorageDir)
	if err != nil {
		logr.Fatal("certificate storage unavailable", zap.Error(err))
	}
	certificateSvc := service.NewCertificateService(service.CertificateServiceParams{
		Tx:          db,
		Repo:        certificateRepo,
		Classes:     classRepo,
		Enrollments: enrollmentRepo,
		Grades:      gradeRepo,
		Audit:       userRepo,
		Metrics:     metrics,
		Cache:       cacheSvc,
		Storage:     certStore,
		Renderer:    export.NewCertificateRenderer("Short Course Training Centre"),
		Validator:   validate,
		Logger:      logr,
		Config: service.CertificateServiceConfig{
			CodePrefix:    cfg.Certificates.CodePrefix,
			VerifyBaseURL: cfg.Certificates.VerifyBaseURL,
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	certQueue := jobs.NewQueue("certificates", certificateSvc.HandleJob, jobs.QueueConfig{
		Workers:    1,
		MaxRetries: 3,
		RetryDelay: 5 * time.Second,
		Logger:     logr,
	})
	certQueue.Start(ctx)
	defer certQueue.Stop()
	certificateSvc.UseQueue(certQueue)

	var reportSvc *service.ReportService
	var scheduler *cron.Cron
	if cfg.Reports.Enabled {
		reportSvc, scheduler, err = startReports(ctx, cfg, logr, metrics, reportRepo, classRepo, gradeRepo, attendanceRepo, enrollmentRepo)
		if err != nil {
			logr.Fatal("report pipeline unavailable", zap.Error(err))
		}
		defer func() { <-scheduler.Stop().Done() }()
	}

	readiness := map[string]handler.ReadinessCheck{"postgres": db.PingContext}
	if redisClient != nil {
		readiness["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	h := handler.Handlers{
		Auth:         handler.NewAuthHandler(authSvc, userSvc),
		Users:        handler.NewUserHandler(userSvc, profileSvc),
		Courses:      handler.NewCourseHandler(courseSvc),
		Classes:      handler.NewClassHandler(classSvc),
		Enrollments:  handler.NewEnrollmentHandler(enrollmentSvc),
		Schedules:    handler.NewScheduleHandler(scheduleSvc),
		Attendance:   handler.NewAttendanceHandler(attendanceSvc),
		Grades:       handler.NewGradeHandler(gradeSvc),
		Certificates: handler.NewCertificateHandler(certificateSvc),
		Dashboard:    handler.NewDashboardHandler(dashboardSvc),
		Metrics:      handler.NewMetricsHandler(metrics, readiness),
	}
	if reportSvc != nil {
		h.Reports = handler.NewReportHandler(reportSvc)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics, "/metrics", "/health", "/ready"))

	handler.RegisterRoutes(r, cfg.APIPrefix, h, handler.RouteDeps{
		Tokens:         authSvc,
		Audit:          userRepo,
		Logger:         logr,
		ReportsEnabled: reportSvc != nil,
	})

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}

// startReports wires the report queue, replays unfinished jobs and schedules file cleanup.
func startReports(
	ctx context.Context,
	cfg *config.Config,
	logr *zap.Logger,
	metrics *service.MetricsService,
	reports *repository.ReportRepository,
	classes *repository.ClassRepository,
	grades *repository.GradeRepository,
	attendance *repository.AttendanceRepository,
	enrollments *repository.EnrollmentRepository,
) (*service.ReportService, *cron.Cron, error) {
	store, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
	if err != nil {
		return nil, nil, err
	}
	secret := cfg.Reports.SignedURLSecret
	if secret == "" {
		secret = cfg.JWT.Secret
	}
	exporter := service.NewExportService(service.ExportServiceParams{
		Classes:    classes,
		Grades:     grades,
		Attendance: attendance,
		Roster:     enrollments,
		Storage:    store,
		Signer:     storage.NewURLSigner(secret, cfg.Reports.SignedURLTTL),
		Logger:     logr,
		Config:     service.ExportConfig{APIPrefix: cfg.APIPrefix},
	})

	worker := service.NewReportWorker(reports, exporter, metrics, logr)
	queue := jobs.NewQueue("reports", worker.Handle, jobs.QueueConfig{
		Workers:    cfg.Reports.WorkerConcurrency,
		MaxRetries: cfg.Reports.WorkerRetries,
		RetryDelay: 2 * time.Second,
		Logger:     logr,
		OnGiveUp:   worker.GiveUp,
	})
	queue.Start(ctx)
	go func() {
		<-ctx.Done()
		queue.Stop()
	}()

	svc := service.NewReportService(service.ReportServiceParams{
		Repo:     reports,
		Classes:  classes,
		Queue:    queue,
		Exporter: exporter,
		Metrics:  metrics,
		Logger:   logr,
		Config:   service.ReportServiceConfig{ResultTTL: cfg.Reports.SignedURLTTL},
	})
	if n := svc.RecoverPendingJobs(ctx); n > 0 {
		logr.Info("replayed pending report jobs", zap.Int("count", n))
	}

	scheduler := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := scheduler.AddFunc(cfg.Reports.CleanupSchedule, func() {
		svc.CleanupExpired(context.Background())
	}); err != nil {
		return nil, nil, fmt.Errorf("invalid REPORTS_CLEANUP_SCHEDULE: %w", err)
	}
	scheduler.Start()
	return svc, scheduler, nil
}
