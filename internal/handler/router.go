package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/short-course-api/internal/middleware"
	"github.com/noah-isme/short-course-api/internal/models"
)

// Handlers groups every HTTP handler mounted by RegisterRoutes.
type Handlers struct {
	Auth         *AuthHandler
	Users        *UserHandler
	Courses      *CourseHandler
	Classes      *ClassHandler
	Enrollments  *EnrollmentHandler
	Schedules    *ScheduleHandler
	Attendance   *AttendanceHandler
	Grades       *GradeHandler
	Certificates *CertificateHandler
	Dashboard    *DashboardHandler
	Reports      *ReportHandler
	Metrics      *MetricsHandler
}

// RouteDeps carries the cross-cutting collaborators of the route table.
type RouteDeps struct {
	Tokens middleware.TokenValidator
	Audit  middleware.AuditWriter
	Logger *zap.Logger
	// ReportsEnabled mounts /reports and /export.
	ReportsEnabled bool
}

// RegisterRoutes mounts the probes on r and the API on r.Group(prefix).
func RegisterRoutes(r *gin.Engine, prefix string, h Handlers, deps RouteDeps) {
	r.GET("/health", h.Metrics.Health)
	r.GET("/ready", h.Metrics.Ready)
	r.GET("/metrics", h.Metrics.Prometheus)

	api := r.Group(prefix)
	api.Use(middleware.WithResponseMeta())

	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher)
	admin := middleware.RequireRoles(models.RoleAdmin)
	student := middleware.RequireRoles(models.RoleStudent)
	teacher := middleware.RequireRoles(models.RoleTeacher)
	anyRole := middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher, models.RoleStudent)
	enrollee := middleware.RequireRoles(models.RoleAdmin, models.RoleStudent)

	// public
	auth := api.Group("/auth")
	auth.POST("/login", h.Auth.Login)
	auth.POST("/refresh", h.Auth.Refresh)
	auth.POST("/register", h.Auth.Register)
	api.GET("/catalog/courses", h.Courses.Catalog)
	api.GET("/catalog/classes", h.Classes.Catalog)
	api.GET("/certificates/verify/:code", h.Certificates.Verify)

	secured := api.Group("")
	secured.Use(middleware.JWT(deps.Tokens))

	secured.POST("/auth/logout", h.Auth.Logout)
	secured.POST("/auth/change-password", h.Auth.ChangePassword)
	secured.GET("/auth/me", h.Auth.Me)

	secured.GET("/profile", h.Users.Profile)
	secured.PUT("/profile", h.Users.UpdateProfile)
	secured.GET("/profile/student", student, h.Users.StudentProfile)
	secured.PUT("/profile/student", student, h.Users.UpsertStudentProfile)

	users := secured.Group("/users")
	users.GET("", admin, h.Users.List)
	users.POST("", admin, h.Users.Create)
	users.GET("/:id", middleware.RBAC(string(models.RoleAdmin), middleware.RoleSelf), h.Users.Get)
	users.PUT("/:id", admin, h.Users.Update)
	users.PATCH("/:id/status", admin, h.Users.ChangeStatus)
	users.POST("/:id/reset-password", admin, h.Users.ResetPassword)
	users.DELETE("/:id", admin, h.Users.Delete)

	types := secured.Group("/course-types")
	types.GET("", anyRole, h.Courses.ListTypes)
	types.GET("/:id", anyRole, h.Courses.GetType)
	types.POST("", admin, h.Courses.CreateType)
	types.PUT("/:id", admin, h.Courses.UpdateType)
	types.DELETE("/:id", admin, h.Courses.DeleteType)

	courses := secured.Group("/courses")
	courses.GET("", anyRole, h.Courses.List)
	courses.GET("/:id", anyRole, h.Courses.Get)
	courses.POST("", admin, h.Courses.Create)
	courses.PUT("/:id", admin, h.Courses.Update)
	courses.PATCH("/:id/status", admin, h.Courses.ChangeStatus)
	courses.DELETE("/:id", admin, h.Courses.Delete)

	classes := secured.Group("/classes")
	classes.GET("", anyRole, h.Classes.List)
	classes.GET("/:id", anyRole, h.Classes.Get)
	classes.POST("", admin, h.Classes.Create)
	classes.PUT("/:id", admin, h.Classes.Update)
	classes.PATCH("/:id/teacher", admin, h.Classes.AssignTeacher)
	classes.PATCH("/:id/status", admin, h.Classes.ChangeStatus)
	classes.DELETE("/:id", admin, h.Classes.Delete)
	classes.GET("/:id/schedules", anyRole, h.Schedules.ListByClass)
	classes.GET("/:id/enrollments", staff, h.Enrollments.ListByClass)
	classes.GET("/:id/grades", staff, h.Grades.ListByClass)
	classes.GET("/:id/grades/statistics", staff, h.Grades.Statistics)
	classes.GET("/:id/grades/top", staff, h.Grades.Top)
	classes.POST("/:id/certificates", admin, h.Certificates.IssueForClass)

	enrollments := secured.Group("/enrollments")
	enrollments.GET("", anyRole, h.Enrollments.List)
	enrollments.GET("/history", anyRole, h.Enrollments.History)
	enrollments.POST("", enrollee, h.Enrollments.Create)
	enrollments.GET("/:id", anyRole, h.Enrollments.Get)
	enrollments.POST("/:id/approve", admin, h.Enrollments.Approve)
	enrollments.POST("/:id/reject", admin, h.Enrollments.Reject)
	enrollments.POST("/:id/cancel", enrollee, h.Enrollments.Cancel)
	enrollments.POST("/:id/complete", admin, h.Enrollments.Complete)
	enrollments.PATCH("/:id/payment", admin, h.Enrollments.Payment)

	schedules := secured.Group("/schedules")
	schedules.GET("", anyRole, h.Schedules.List)
	schedules.GET("/upcoming", anyRole, h.Schedules.Upcoming)
	schedules.POST("", staff, h.Schedules.Create)
	schedules.POST("/batch", staff, h.Schedules.Batch)
	schedules.GET("/:id", anyRole, h.Schedules.Get)
	schedules.PUT("/:id", staff, h.Schedules.Update)
	schedules.DELETE("/:id", staff, h.Schedules.Delete)
	schedules.POST("/:id/complete", staff, h.Schedules.Complete)
	schedules.POST("/:id/cancel", staff, h.Schedules.Cancel)
	schedules.GET("/:id/attendance", staff, h.Attendance.ListBySchedule)
	schedules.POST("/:id/attendance", staff, h.Attendance.Mark)
	schedules.POST("/:id/attendance/all", staff, h.Attendance.MarkAll)
	schedules.GET("/:id/attendance/summary", staff, h.Attendance.Summary)

	attendance := secured.Group("/attendance")
	attendance.GET("/rate", anyRole, h.Attendance.Rate)
	attendance.PUT("/:id", staff, h.Attendance.Update)
	attendance.DELETE("/:id", staff, h.Attendance.Delete)

	grades := secured.Group("/grades")
	grades.POST("", staff, h.Grades.Save)
	grades.GET("/me", student, h.Grades.Mine)
	grades.GET("/student", anyRole, h.Grades.StudentClass)
	grades.POST("/:id/recalculate", staff, h.Grades.Recalculate)
	grades.DELETE("/:id", staff, h.Grades.Delete)

	certs := secured.Group("/certificates")
	certs.GET("", anyRole, h.Certificates.List)
	certs.POST("", admin, h.Certificates.Create)
	certs.GET("/:id", anyRole, h.Certificates.Get)
	certs.PUT("/:id", admin, h.Certificates.Update)
	certs.DELETE("/:id", admin, h.Certificates.Delete)
	certs.POST("/:id/issue", admin, h.Certificates.Issue)
	certs.POST("/:id/revoke", admin, h.Certificates.Revoke)
	certs.GET("/:id/document", anyRole, h.Certificates.Document)

	dash := secured.Group("/dashboard")
	dash.GET("/admin", admin, h.Dashboard.Admin)
	dash.GET("/teacher", teacher, h.Dashboard.Teacher)
	dash.GET("/student", student, h.Dashboard.Student)

	if deps.ReportsEnabled && h.Reports != nil {
		secured.POST("/reports", staff,
			middleware.Audit(deps.Audit, deps.Logger, models.AuditActionReportCreate, "report"),
			h.Reports.Create)
		secured.GET("/reports/:id", staff, h.Reports.Status)
		api.GET("/export/:token",
			middleware.OptionalJWT(deps.Tokens),
			middleware.Audit(deps.Audit, deps.Logger, models.AuditActionReportFetch, "report"),
			h.Reports.Download)
	}
}
