package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/campusmesh/sams-api/internal/models"
	appErrors "github.com/campusmesh/sams-api/pkg/errors"
)

type entityCounter interface {
	Count(ctx context.Context) (int, error)
}

type roleCounter interface {
	CountByRole(ctx context.Context, role models.UserRole) (int, error)
}

type attendanceSummarizer interface {
	GlobalSummary(ctx context.Context) (present, late, absent int, err error)
}

type teacherCourseLister interface {
	CourseSummariesByTeacher(ctx context.Context, teacherID string) ([]models.TeacherCourseSummary, error)
}

type studentOverviewProvider interface {
	StudentOverview(ctx context.Context, actor models.Actor, studentID string) (*models.StudentOverview, error)
}

// DashboardServiceConfig tunes dashboard behaviour.
type DashboardServiceConfig struct {
	CacheTTL time.Duration
}

// DashboardService composes the per-role landing payloads.
type DashboardService struct {
	departments entityCounter
	programs    entityCounter
	batches     entityCounter
	courses     entityCounter
	sessions    entityCounter
	users       roleCounter
	attendance  attendanceSummarizer
	assignments teacherCourseLister
	reports     studentOverviewProvider
	cache       *CacheService
	logger      *zap.Logger
	cfg         DashboardServiceConfig
}

// DashboardServiceParams groups constructor dependencies.
type DashboardServiceParams struct {
	Departments entityCounter
	Programs    entityCounter
	Batches     entityCounter
	Courses     entityCounter
	Sessions    entityCounter
	Users       roleCounter
	Attendance  attendanceSummarizer
	Assignments teacherCourseLister
	Reports     studentOverviewProvider
	Cache       *CacheService
	Logger      *zap.Logger
	Config      DashboardServiceConfig
}

// NewDashboardService constructs a DashboardService with sane defaults.
func NewDashboardService(params DashboardServiceParams) *DashboardService {
	cfg := params.Config
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardService{
		departments: params.Departments,
		programs:    params.Programs,
		batches:     params.Batches,
		courses:     params.Courses,
		sessions:    params.Sessions,
		users:       params.Users,
		attendance:  params.Attendance,
		assignments: params.Assignments,
		reports:     params.Reports,
		cache:       params.Cache,
		logger:      logger,
		cfg:         cfg,
	}
}

// Admin returns entity counts and the overall attendance average. The
// average is mark based: attended marks over all marks across the system.
func (s *DashboardService) Admin(ctx context.Context) (*models.AdminDashboard, bool, error) {
	const cacheKey = "dashboard:admin"
	if s.cache != nil {
		var cached models.AdminDashboard
		if hit, _ := s.cache.Get(ctx, cacheKey, &cached); hit {
			return &cached, true, nil
		}
	}

	dashboard := &models.AdminDashboard{}
	counts := []struct {
		dest    *int
		counter entityCounter
		label   string
	}{
		{&dashboard.Departments, s.departments, "departments"},
		{&dashboard.Programs, s.programs, "programs"},
		{&dashboard.Batches, s.batches, "batches"},
		{&dashboard.Courses, s.courses, "courses"},
		{&dashboard.SessionsHeld, s.sessions, "sessions"},
	}
	for _, c := range counts {
		total, err := c.counter.Count(ctx)
		if err != nil {
			return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, fmt.Sprintf("failed to count %s", c.label))
		}
		*c.dest = total
	}

	teachers, err := s.users.CountByRole(ctx, models.RoleTeacher)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count teachers")
	}
	dashboard.Teachers = teachers
	students, err := s.users.CountByRole(ctx, models.RoleStudent)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count students")
	}
	dashboard.Students = students

	present, late, absent, err := s.attendance.GlobalSummary(ctx)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to summarise attendance")
	}
	dashboard.AverageAttendance = attendancePercentage(present+late, present+late+absent)

	s.persistCache(ctx, cacheKey, dashboard)
	return dashboard, false, nil
}

// Teacher returns the actor's assigned courses with enrollment and session
// counts. Admins may view any teacher's dashboard; teachers only their own.
func (s *DashboardService) Teacher(ctx context.Context, actor models.Actor, teacherID string) (*models.TeacherDashboard, bool, error) {
	if teacherID == "" {
		teacherID = actor.ID
	}
	if actor.Role == models.RoleTeacher && teacherID != actor.ID {
		return nil, false, appErrors.Clone(appErrors.ErrPermissionDenied, "teachers may only view their own dashboard")
	}

	cacheKey := fmt.Sprintf("dashboard:teacher:%s", teacherID)
	if s.cache != nil {
		var cached models.TeacherDashboard
		if hit, _ := s.cache.Get(ctx, cacheKey, &cached); hit {
			return &cached, true, nil
		}
	}

	courses, err := s.assignments.CourseSummariesByTeacher(ctx, teacherID)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course summaries")
	}

	dashboard := &models.TeacherDashboard{
		TeacherID: teacherID,
		Courses:   courses,
	}
	s.persistCache(ctx, cacheKey, dashboard)
	return dashboard, false, nil
}

// Student returns the actor's attendance grouped by semester. Admins may
// view any student's dashboard; students only their own, which the report
// guard enforces.
func (s *DashboardService) Student(ctx context.Context, actor models.Actor, studentID string) (*models.StudentDashboard, error) {
	if studentID == "" {
		studentID = actor.ID
	}

	overview, err := s.reports.StudentOverview(ctx, actor, studentID)
	if err != nil {
		return nil, err
	}
	return &models.StudentDashboard{
		StudentID: overview.StudentID,
		Semesters: overview.Semesters,
	}, nil
}

func (s *DashboardService) persistCache(ctx context.Context, key string, value interface{}) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, value, s.cfg.CacheTTL); err != nil {
		s.logger.Warn("dashboard cache write failed", zap.String("key", key), zap.Error(err))
	}
}
