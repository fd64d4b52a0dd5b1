package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/campusmesh/sams-api/internal/models"
	appErrors "github.com/campusmesh/sams-api/pkg/errors"
)

type reportAttendanceRepository interface {
	StudentCourseSummary(ctx context.Context, studentID, courseID string) (present, late, absent int, err error)
	CourseBreakdown(ctx context.Context, courseID string) ([]models.CourseReportRow, error)
	StudentBreakdown(ctx context.Context, studentID string) ([]models.StudentCourseBreakdownRow, error)
}

type sessionCounter interface {
	CountByCourse(ctx context.Context, courseID string) (int, error)
}

// ReportServiceConfig tunes report behaviour.
type ReportServiceConfig struct {
	CacheTTL time.Duration
}

// ReportService computes attendance rates and reports. It is a pure read
// side: every figure is derived from sessions and attendance records at
// query time, with Redis as a TTL cache in front.
type ReportService struct {
	attendance reportAttendanceRepository
	sessions   sessionCounter
	courses    courseReader
	users      userReader
	guard      authorizer
	cache      *CacheService
	logger     *zap.Logger
	cfg        ReportServiceConfig
}

// NewReportService constructs a ReportService.
func NewReportService(attendance reportAttendanceRepository, sessions sessionCounter, courses courseReader, users userReader, guard authorizer, cache *CacheService, cfg ReportServiceConfig, logger *zap.Logger) *ReportService {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 10 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportService{
		attendance: attendance,
		sessions:   sessions,
		courses:    courses,
		users:      users,
		guard:      guard,
		cache:      cache,
		logger:     logger,
		cfg:        cfg,
	}
}

// CourseRate returns one student's attendance rate in one course. Late marks
// count as attended. A course without sessions yields sessions_held 0 and
// percentage 0 rather than an error.
func (s *ReportService) CourseRate(ctx context.Context, actor models.Actor, studentID, courseID string) (*models.CourseAttendanceRate, error) {
	if err := s.guard.Authorize(ctx, actor, models.OpStudentRead, models.Resource{CourseID: courseID, StudentID: studentID}); err != nil {
		return nil, err
	}
	if err := s.requireStudent(ctx, studentID); err != nil {
		return nil, err
	}
	if _, err := s.courses.FindByID(ctx, courseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch course")
	}

	cacheKey := fmt.Sprintf("report:student:%s:course:%s", studentID, courseID)
	var cached models.CourseAttendanceRate
	if hit, _ := s.cache.Get(ctx, cacheKey, &cached); hit {
		return &cached, nil
	}

	sessionsHeld, err := s.sessions.CountByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count sessions")
	}
	present, late, absent, err := s.attendance.StudentCourseSummary(ctx, studentID, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to summarise attendance")
	}

	attended := present + late
	rate := &models.CourseAttendanceRate{
		StudentID:    studentID,
		CourseID:     courseID,
		SessionsHeld: sessionsHeld,
		Present:      present,
		Late:         late,
		Absent:       absent,
		Attended:     attended,
		Percentage:   attendancePercentage(attended, sessionsHeld),
	}

	if err := s.cache.Set(ctx, cacheKey, rate, s.cfg.CacheTTL); err != nil {
		s.logger.Warn("failed to cache course rate", zap.String("key", cacheKey), zap.Error(err))
	}
	return rate, nil
}

// SemesterRate aggregates a student's attendance across every course of one
// semester they are enrolled in: session and attended counts are summed
// first, then divided once.
func (s *ReportService) SemesterRate(ctx context.Context, actor models.Actor, studentID, semesterID string) (*models.SemesterAttendanceRate, error) {
	if err := s.guard.Authorize(ctx, actor, models.OpStudentRead, models.Resource{StudentID: studentID}); err != nil {
		return nil, err
	}
	if err := s.requireStudent(ctx, studentID); err != nil {
		return nil, err
	}

	cacheKey := fmt.Sprintf("report:student:%s:semester:%s", studentID, semesterID)
	var cached models.SemesterAttendanceRate
	if hit, _ := s.cache.Get(ctx, cacheKey, &cached); hit {
		return &cached, nil
	}

	rows, err := s.attendance.StudentBreakdown(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate attendance")
	}

	rate := &models.SemesterAttendanceRate{
		StudentID:  studentID,
		SemesterID: semesterID,
		Courses:    []models.StudentCourseReport{},
	}
	attended := 0
	for _, row := range rows {
		if row.SemesterID != semesterID {
			continue
		}
		courseAttended := row.Present + row.Late
		attended += courseAttended
		rate.SessionsHeld += row.SessionsHeld
		rate.Courses = append(rate.Courses, models.StudentCourseReport{
			CourseID:     row.CourseID,
			CourseCode:   row.CourseCode,
			CourseName:   row.CourseName,
			SemesterID:   row.SemesterID,
			SessionsHeld: row.SessionsHeld,
			Present:      row.Present,
			Late:         row.Late,
			Absent:       row.Absent,
			Percentage:   attendancePercentage(courseAttended, row.SessionsHeld),
		})
	}
	rate.Attended = attended
	rate.Percentage = attendancePercentage(attended, rate.SessionsHeld)

	if err := s.cache.Set(ctx, cacheKey, rate, s.cfg.CacheTTL); err != nil {
		s.logger.Warn("failed to cache semester rate", zap.String("key", cacheKey), zap.Error(err))
	}
	return rate, nil
}

// CourseReport returns the per-student attendance table of one course for
// admins or the course's teacher.
func (s *ReportService) CourseReport(ctx context.Context, actor models.Actor, courseID string) (*models.CourseReport, error) {
	if err := s.guard.Authorize(ctx, actor, models.OpCourseReportRead, models.Resource{CourseID: courseID}); err != nil {
		return nil, err
	}

	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch course")
	}

	cacheKey := fmt.Sprintf("report:course:%s", courseID)
	var cached models.CourseReport
	if hit, _ := s.cache.Get(ctx, cacheKey, &cached); hit {
		return &cached, nil
	}

	sessionsHeld, err := s.sessions.CountByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count sessions")
	}
	rows, err := s.attendance.CourseBreakdown(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate attendance")
	}
	for i := range rows {
		rows[i].SessionsHeld = sessionsHeld
		rows[i].Percentage = attendancePercentage(rows[i].Present+rows[i].Late, sessionsHeld)
	}

	report := &models.CourseReport{
		CourseID:     course.ID,
		CourseCode:   course.Code,
		CourseName:   course.Name,
		SessionsHeld: sessionsHeld,
		Students:     rows,
	}

	if err := s.cache.Set(ctx, cacheKey, report, s.cfg.CacheTTL); err != nil {
		s.logger.Warn("failed to cache course report", zap.String("key", cacheKey), zap.Error(err))
	}
	return report, nil
}

// StudentOverview groups a student's per-course rates by semester, the way
// the student dashboard presents them.
func (s *ReportService) StudentOverview(ctx context.Context, actor models.Actor, studentID string) (*models.StudentOverview, error) {
	if err := s.guard.Authorize(ctx, actor, models.OpStudentRead, models.Resource{StudentID: studentID}); err != nil {
		return nil, err
	}
	if err := s.requireStudent(ctx, studentID); err != nil {
		return nil, err
	}

	cacheKey := fmt.Sprintf("report:student:%s:overview", studentID)
	var cached models.StudentOverview
	if hit, _ := s.cache.Get(ctx, cacheKey, &cached); hit {
		return &cached, nil
	}

	rows, err := s.attendance.StudentBreakdown(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate attendance")
	}

	groups := make(map[string]*models.SemesterGroup)
	for _, row := range rows {
		group, ok := groups[row.SemesterID]
		if !ok {
			group = &models.SemesterGroup{
				SemesterID:     row.SemesterID,
				SemesterName:   row.SemesterName,
				SemesterNumber: row.SemesterNumber,
			}
			groups[row.SemesterID] = group
		}
		group.Courses = append(group.Courses, models.StudentCourseReport{
			CourseID:     row.CourseID,
			CourseCode:   row.CourseCode,
			CourseName:   row.CourseName,
			SemesterID:   row.SemesterID,
			SessionsHeld: row.SessionsHeld,
			Present:      row.Present,
			Late:         row.Late,
			Absent:       row.Absent,
			Percentage:   attendancePercentage(row.Present+row.Late, row.SessionsHeld),
		})
	}

	overview := &models.StudentOverview{
		StudentID: studentID,
		Semesters: []models.SemesterGroup{},
	}
	for _, group := range groups {
		overview.Semesters = append(overview.Semesters, *group)
	}
	sort.Slice(overview.Semesters, func(i, j int) bool {
		a, b := overview.Semesters[i], overview.Semesters[j]
		if a.SemesterNumber != b.SemesterNumber {
			return a.SemesterNumber < b.SemesterNumber
		}
		return a.SemesterName < b.SemesterName
	})

	if err := s.cache.Set(ctx, cacheKey, overview, s.cfg.CacheTTL); err != nil {
		s.logger.Warn("failed to cache student overview", zap.String("key", cacheKey), zap.Error(err))
	}
	return overview, nil
}

func (s *ReportService) requireStudent(ctx context.Context, studentID string) error {
	user, err := s.users.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch student")
	}
	if user.Role != models.RoleStudent {
		return appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}
	return nil
}

// attendancePercentage divides attended by held sessions and rounds to two
// decimals. No sessions means 0, not an error.
func attendancePercentage(attended, sessionsHeld int) float64 {
	if sessionsHeld <= 0 {
		return 0
	}
	return math.Round(float64(attended)/float64(sessionsHeld)*10000) / 100
}
