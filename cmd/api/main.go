package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/campusmesh/sams-api/api/swagger"
	"github.com/campusmesh/sams-api/internal/handler"
	"github.com/campusmesh/sams-api/internal/middleware"
	"github.com/campusmesh/sams-api/internal/models"
	"github.com/campusmesh/sams-api/internal/repository"
	"github.com/campusmesh/sams-api/internal/service"
	"github.com/campusmesh/sams-api/pkg/cache"
	"github.com/campusmesh/sams-api/pkg/config"
	"github.com/campusmesh/sams-api/pkg/database"
	"github.com/campusmesh/sams-api/pkg/logger"
	corsmiddleware "github.com/campusmesh/sams-api/pkg/middleware/cors"
	reqidmiddleware "github.com/campusmesh/sams-api/pkg/middleware/requestid"
)

// @title SAMS API
// @version 1.0.0
// @description Student attendance management service
// @BasePath /api/v1
// @schemes http

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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}
	defer redisClient.Close()

	validate := validator.New()

	// Repositories.
	userRepo := repository.NewUserRepository(db)
	profileRepo := repository.NewStudentProfileRepository(db)
	departmentRepo := repository.NewDepartmentRepository(db)
	programRepo := repository.NewProgramRepository(db)
	batchRepo := repository.NewBatchRepository(db)
	academicYearRepo := repository.NewAcademicYearRepository(db)
	semesterRepo := repository.NewSemesterRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	// Services.
	metricsService := service.NewMetricsService()
	cacheService := service.NewCacheService(cacheRepo, metricsService, cfg.Reports.CacheTTL, logr, true)
	guard := service.NewGuard(assignmentRepo, enrollmentRepo, logr)

	authService := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "sams-api",
	})
	userService := service.NewUserService(userRepo, profileRepo, batchRepo, guard, validate, logr)
	departmentService := service.NewDepartmentService(departmentRepo, guard, validate, logr)
	programService := service.NewProgramService(programRepo, departmentRepo, guard, validate, logr)
	batchService := service.NewBatchService(batchRepo, programRepo, guard, validate, logr)
	academicYearService := service.NewAcademicYearService(academicYearRepo, batchRepo, guard, validate, logr)
	semesterService := service.NewSemesterService(semesterRepo, academicYearRepo, guard, validate, logr)
	courseService := service.NewCourseService(courseRepo, departmentRepo, semesterRepo, guard, validate, logr)
	assignmentService := service.NewAssignmentService(assignmentRepo, userRepo, courseRepo, guard, validate, logr)
	enrollmentService := service.NewEnrollmentService(enrollmentRepo, userRepo, courseRepo, guard, validate, logr)
	sessionService := service.NewSessionService(sessionRepo, courseRepo, userRepo, cacheRepo, guard, validate, logr)
	attendanceService := service.NewAttendanceService(attendanceRepo, sessionRepo, enrollmentRepo, cacheRepo, guard, validate, logr)
	reportService := service.NewReportService(attendanceRepo, sessionRepo, courseRepo, userRepo, guard, cacheService,
		service.ReportServiceConfig{CacheTTL: cfg.Reports.CacheTTL}, logr)
	exportService := service.NewExportService(reportService, service.ExportConfig{MaxRows: cfg.Reports.ExportMaxRows}, logr, nil, nil)
	dashboardService := service.NewDashboardService(service.DashboardServiceParams{
		Departments: departmentRepo,
		Programs:    programRepo,
		Batches:     batchRepo,
		Courses:     courseRepo,
		Sessions:    sessionRepo,
		Users:       userRepo,
		Attendance:  attendanceRepo,
		Assignments: assignmentRepo,
		Reports:     reportService,
		Cache:       cacheService,
		Logger:      logr,
		Config:      service.DashboardServiceConfig{CacheTTL: cfg.Dashboard.CacheTTL},
	})

	// Handlers.
	authHandler := handler.NewAuthHandler(authService)
	userHandler := handler.NewUserHandler(userService)
	departmentHandler := handler.NewDepartmentHandler(departmentService)
	programHandler := handler.NewProgramHandler(programService)
	batchHandler := handler.NewBatchHandler(batchService)
	academicYearHandler := handler.NewAcademicYearHandler(academicYearService)
	semesterHandler := handler.NewSemesterHandler(semesterService)
	courseHandler := handler.NewCourseHandler(courseService)
	assignmentHandler := handler.NewAssignmentHandler(assignmentService)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentService)
	sessionHandler := handler.NewSessionHandler(sessionService)
	attendanceHandler := handler.NewAttendanceHandler(attendanceService)
	reportHandler := handler.NewReportHandler(reportService, exportService)
	dashboardHandler := handler.NewDashboardHandler(dashboardService)
	metricsHandler := handler.NewMetricsHandler(metricsService)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsService))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	audit := func(action, resource string) gin.HandlerFunc {
		if !cfg.Audit.Enabled {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.Audit(userRepo, action, resource)
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)

		authed := auth.Group("", middleware.JWT(authService))
		authed.POST("/logout", authHandler.Logout)
		authed.POST("/change-password", authHandler.ChangePassword)
		authed.GET("/me", authHandler.Me)
	}

	protected := api.Group("", middleware.JWT(authService), middleware.WithResponseMeta())

	adminOnly := middleware.RequireRoles(models.RoleAdmin)
	adminOrTeacher := middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher)

	users := protected.Group("/users")
	{
		users.GET("", adminOnly, userHandler.List)
		users.POST("", adminOnly, audit("create", "user"), userHandler.Create)
		users.GET("/:id", middleware.RBAC(string(models.RoleAdmin), "SELF"), userHandler.Get)
		users.PUT("/:id", adminOnly, audit("update", "user"), userHandler.Update)
		users.DELETE("/:id", adminOnly, audit("deactivate", "user"), userHandler.Deactivate)
	}

	departments := protected.Group("/departments")
	{
		departments.GET("", departmentHandler.List)
		departments.GET("/:id", departmentHandler.Get)
		departments.POST("", adminOnly, audit("create", "department"), departmentHandler.Create)
		departments.PUT("/:id", adminOnly, audit("update", "department"), departmentHandler.Update)
		departments.DELETE("/:id", adminOnly, audit("delete", "department"), departmentHandler.Delete)
	}

	programs := protected.Group("/programs")
	{
		programs.GET("", programHandler.List)
		programs.GET("/:id", programHandler.Get)
		programs.POST("", adminOnly, audit("create", "program"), programHandler.Create)
		programs.PUT("/:id", adminOnly, audit("update", "program"), programHandler.Update)
		programs.DELETE("/:id", adminOnly, audit("delete", "program"), programHandler.Delete)
	}

	batches := protected.Group("/batches")
	{
		batches.GET("", batchHandler.List)
		batches.GET("/:id", batchHandler.Get)
		batches.POST("", adminOnly, audit("create", "batch"), batchHandler.Create)
		batches.PUT("/:id", adminOnly, audit("update", "batch"), batchHandler.Update)
		batches.DELETE("/:id", adminOnly, audit("delete", "batch"), batchHandler.Delete)
	}

	academicYears := protected.Group("/academic-years")
	{
		academicYears.GET("", academicYearHandler.List)
		academicYears.GET("/:id", academicYearHandler.Get)
		academicYears.POST("", adminOnly, audit("create", "academic_year"), academicYearHandler.Create)
		academicYears.PUT("/:id", adminOnly, audit("update", "academic_year"), academicYearHandler.Update)
		academicYears.DELETE("/:id", adminOnly, audit("delete", "academic_year"), academicYearHandler.Delete)
	}

	semesters := protected.Group("/semesters")
	{
		semesters.GET("", semesterHandler.List)
		semesters.GET("/:id", semesterHandler.Get)
		semesters.POST("", adminOnly, audit("create", "semester"), semesterHandler.Create)
		semesters.PUT("/:id", adminOnly, audit("update", "semester"), semesterHandler.Update)
		semesters.DELETE("/:id", adminOnly, audit("delete", "semester"), semesterHandler.Delete)
	}

	courses := protected.Group("/courses")
	{
		courses.GET("", courseHandler.List)
		courses.GET("/:id", courseHandler.Get)
		courses.POST("", adminOnly, audit("create", "course"), courseHandler.Create)
		courses.PUT("/:id", adminOnly, audit("update", "course"), courseHandler.Update)
		courses.DELETE("/:id", adminOnly, audit("delete", "course"), courseHandler.Delete)
	}

	assignments := protected.Group("/assignments")
	{
		assignments.GET("", adminOrTeacher, assignmentHandler.List)
		assignments.POST("", adminOnly, audit("assign", "teacher_course"), assignmentHandler.Create)
		assignments.DELETE("", adminOnly, audit("unassign", "teacher_course"), assignmentHandler.Delete)
	}

	enrollments := protected.Group("/enrollments")
	{
		enrollments.GET("", adminOrTeacher, enrollmentHandler.List)
		enrollments.POST("", adminOnly, audit("enroll", "student_course"), enrollmentHandler.Create)
		enrollments.POST("/bulk", adminOnly, audit("bulk_enroll", "student_course"), enrollmentHandler.BulkCreate)
		enrollments.DELETE("", adminOnly, audit("unenroll", "student_course"), enrollmentHandler.Delete)
	}

	sessions := protected.Group("/sessions")
	{
		sessions.GET("", adminOrTeacher, sessionHandler.List)
		sessions.GET("/:id", adminOrTeacher, sessionHandler.Get)
		sessions.POST("", adminOrTeacher, audit("create", "session"), sessionHandler.Create)
		sessions.PUT("/:id", adminOrTeacher, audit("update", "session"), sessionHandler.Update)
		sessions.DELETE("/:id", adminOrTeacher, audit("delete", "session"), sessionHandler.Delete)

		sessions.GET("/:id/roster", adminOrTeacher, attendanceHandler.Roster)
		sessions.PUT("/:id/attendance", adminOrTeacher, audit("mark", "attendance"), attendanceHandler.Mark)
		sessions.PUT("/:id/attendance/bulk", adminOrTeacher, audit("bulk_mark", "attendance"), attendanceHandler.BulkMark)
	}

	protected.GET("/attendance", attendanceHandler.List)

	reports := protected.Group("/reports")
	{
		reports.GET("/students/:studentId", reportHandler.StudentOverview)
		reports.GET("/students/:studentId/courses/:courseId", reportHandler.CourseRate)
		reports.GET("/students/:studentId/semesters/:semesterId", reportHandler.SemesterRate)
		reports.GET("/courses/:courseId", adminOrTeacher, reportHandler.CourseReport)
		reports.GET("/courses/:courseId/export", adminOrTeacher, reportHandler.ExportCourseReport)
	}

	dashboard := protected.Group("/dashboard")
	{
		dashboard.GET("/admin", adminOnly, dashboardHandler.Admin)
		dashboard.GET("/teacher", adminOrTeacher, dashboardHandler.Teacher)
		dashboard.GET("/student", middleware.RequireRoles(models.RoleAdmin, models.RoleStudent), dashboardHandler.Student)
	}

	protected.GET("/metrics/summary", adminOnly, metricsHandler.Snapshot)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
