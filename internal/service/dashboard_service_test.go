package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campusmesh/sams-api/internal/models"
	appErrors "github.com/campusmesh/sams-api/pkg/errors"
)

type fixedCounter struct {
	total int
	calls int
}

func (f *fixedCounter) Count(_ context.Context) (int, error) {
	f.calls++
	return f.total, nil
}

type fixedRoleCounter struct {
	byRole map[models.UserRole]int
}

func (f *fixedRoleCounter) CountByRole(_ context.Context, role models.UserRole) (int, error) {
	return f.byRole[role], nil
}

type fixedAttendanceSummary struct {
	present, late, absent int
}

func (f *fixedAttendanceSummary) GlobalSummary(_ context.Context) (int, int, int, error) {
	return f.present, f.late, f.absent, nil
}

type fixedAssignmentSummaries struct {
	summaries []models.TeacherCourseSummary
}

func (f *fixedAssignmentSummaries) CourseSummariesByTeacher(_ context.Context, _ string) ([]models.TeacherCourseSummary, error) {
	return f.summaries, nil
}

type fixedOverviewProvider struct {
	overview *models.StudentOverview
}

func (f *fixedOverviewProvider) StudentOverview(_ context.Context, _ models.Actor, studentID string) (*models.StudentOverview, error) {
	if f.overview == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}
	return f.overview, nil
}

func newDashboardFixture(departments *fixedCounter) *DashboardService {
	return NewDashboardService(DashboardServiceParams{
		Departments: departments,
		Programs:    &fixedCounter{total: 4},
		Batches:     &fixedCounter{total: 8},
		Courses:     &fixedCounter{total: 24},
		Sessions:    &fixedCounter{total: 120},
		Users:       &fixedRoleCounter{byRole: map[models.UserRole]int{models.RoleTeacher: 12, models.RoleStudent: 300}},
		Attendance:  &fixedAttendanceSummary{present: 70, late: 10, absent: 20},
		Assignments: &fixedAssignmentSummaries{summaries: []models.TeacherCourseSummary{{CourseID: "course-1"}}},
		Reports:     &fixedOverviewProvider{overview: &models.StudentOverview{StudentID: "student-1"}},
		Cache:       NewCacheService(&stubCacheRepo{}, nil, time.Minute, zap.NewNop(), true),
		Logger:      zap.NewNop(),
	})
}

func TestDashboardServiceAdmin(t *testing.T) {
	departments := &fixedCounter{total: 2}
	svc := newDashboardFixture(departments)

	dashboard, cacheHit, err := svc.Admin(context.Background())
	require.NoError(t, err)
	assert.False(t, cacheHit)
	assert.Equal(t, 2, dashboard.Departments)
	assert.Equal(t, 24, dashboard.Courses)
	assert.Equal(t, 12, dashboard.Teachers)
	assert.Equal(t, 300, dashboard.Students)
	// 80 attended marks over 100 marks total, late included
	assert.InDelta(t, 80.0, dashboard.AverageAttendance, 0.001)
}

func TestDashboardServiceAdminCachesSecondRead(t *testing.T) {
	departments := &fixedCounter{total: 2}
	svc := newDashboardFixture(departments)
	ctx := context.Background()

	_, hit, err := svc.Admin(ctx)
	require.NoError(t, err)
	assert.False(t, hit)

	_, hit, err = svc.Admin(ctx)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 1, departments.calls)
}

func TestDashboardServiceTeacherScopedToSelf(t *testing.T) {
	svc := newDashboardFixture(&fixedCounter{})
	ctx := context.Background()

	dashboard, _, err := svc.Teacher(ctx, models.Actor{ID: "teacher-1", Role: models.RoleTeacher}, "")
	require.NoError(t, err)
	assert.Equal(t, "teacher-1", dashboard.TeacherID)
	require.Len(t, dashboard.Courses, 1)

	_, _, err = svc.Teacher(ctx, models.Actor{ID: "teacher-1", Role: models.RoleTeacher}, "teacher-2")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPermissionDenied.Code, appErrors.FromError(err).Code)

	dashboard, _, err = svc.Teacher(ctx, models.Actor{ID: "admin-1", Role: models.RoleAdmin}, "teacher-2")
	require.NoError(t, err)
	assert.Equal(t, "teacher-2", dashboard.TeacherID)
}

func TestDashboardServiceStudentDefaultsToActor(t *testing.T) {
	svc := newDashboardFixture(&fixedCounter{})

	dashboard, err := svc.Student(context.Background(), models.Actor{ID: "student-1", Role: models.RoleStudent}, "")
	require.NoError(t, err)
	assert.Equal(t, "student-1", dashboard.StudentID)
}
