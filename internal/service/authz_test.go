package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campusmesh/sams-api/internal/models"
	appErrors "github.com/campusmesh/sams-api/pkg/errors"
)

type stubAssignments struct {
	pairs map[string]bool
	err   error
}

func (s *stubAssignments) Exists(_ context.Context, teacherID, courseID string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	return s.pairs[teacherID+"|"+courseID], nil
}

type stubEnrollments struct {
	pairs map[string]bool
	err   error
}

func (s *stubEnrollments) Exists(_ context.Context, studentID, courseID string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	return s.pairs[studentID+"|"+courseID], nil
}

func newTestGuard(assignments map[string]bool, enrollments map[string]bool) *Guard {
	return NewGuard(
		&stubAssignments{pairs: assignments},
		&stubEnrollments{pairs: enrollments},
		zap.NewNop(),
	)
}

func TestGuardAdminPassesEverything(t *testing.T) {
	guard := newTestGuard(nil, nil)
	admin := models.Actor{ID: "admin-1", Role: models.RoleAdmin}

	ops := []models.Operation{
		models.OpHierarchyWrite, models.OpUserWrite, models.OpAssignWrite,
		models.OpEnrollWrite, models.OpSessionCreate, models.OpAttendanceMark,
		models.OpCourseReportRead, models.OpStudentRead,
	}
	for _, op := range ops {
		require.NoError(t, guard.Authorize(context.Background(), admin, op, models.Resource{}))
	}
}

func TestGuardTeacherScopedToAssignedCourses(t *testing.T) {
	guard := newTestGuard(map[string]bool{"teacher-1|course-1": true}, nil)
	teacher := models.Actor{ID: "teacher-1", Role: models.RoleTeacher}
	ctx := context.Background()

	require.NoError(t, guard.Authorize(ctx, teacher, models.OpSessionCreate, models.Resource{CourseID: "course-1"}))
	require.NoError(t, guard.Authorize(ctx, teacher, models.OpAttendanceMark, models.Resource{CourseID: "course-1"}))
	require.NoError(t, guard.Authorize(ctx, teacher, models.OpCourseReportRead, models.Resource{CourseID: "course-1"}))

	err := guard.Authorize(ctx, teacher, models.OpSessionCreate, models.Resource{CourseID: "course-2"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPermissionDenied.Code, appErrors.FromError(err).Code)
}

func TestGuardTeacherNeverWritesAdminSurfaces(t *testing.T) {
	guard := newTestGuard(map[string]bool{"teacher-1|course-1": true}, nil)
	teacher := models.Actor{ID: "teacher-1", Role: models.RoleTeacher}
	ctx := context.Background()

	for _, op := range []models.Operation{models.OpHierarchyWrite, models.OpUserWrite, models.OpAssignWrite, models.OpEnrollWrite} {
		err := guard.Authorize(ctx, teacher, op, models.Resource{CourseID: "course-1"})
		require.Error(t, err, string(op))
		assert.Equal(t, appErrors.ErrPermissionDenied.Code, appErrors.FromError(err).Code)
	}
}

func TestGuardTeacherReadsStudentOnlyInSharedCourse(t *testing.T) {
	guard := newTestGuard(
		map[string]bool{"teacher-1|course-1": true},
		map[string]bool{"student-1|course-1": true},
	)
	teacher := models.Actor{ID: "teacher-1", Role: models.RoleTeacher}
	ctx := context.Background()

	require.NoError(t, guard.Authorize(ctx, teacher, models.OpStudentRead,
		models.Resource{CourseID: "course-1", StudentID: "student-1"}))

	// student not enrolled in the teacher's course
	err := guard.Authorize(ctx, teacher, models.OpStudentRead,
		models.Resource{CourseID: "course-1", StudentID: "student-2"})
	require.Error(t, err)

	// no course scope at all
	err = guard.Authorize(ctx, teacher, models.OpStudentRead, models.Resource{StudentID: "student-1"})
	require.Error(t, err)
}

func TestGuardStudentReadsOnlySelf(t *testing.T) {
	guard := newTestGuard(nil, nil)
	student := models.Actor{ID: "student-1", Role: models.RoleStudent}
	ctx := context.Background()

	require.NoError(t, guard.Authorize(ctx, student, models.OpStudentRead, models.Resource{StudentID: "student-1"}))

	err := guard.Authorize(ctx, student, models.OpStudentRead, models.Resource{StudentID: "student-2"})
	require.Error(t, err)

	for _, op := range []models.Operation{models.OpSessionCreate, models.OpAttendanceMark, models.OpEnrollWrite, models.OpUserWrite} {
		err := guard.Authorize(ctx, student, op, models.Resource{StudentID: "student-1"})
		require.Error(t, err, string(op))
	}
}

func TestGuardRejectsUnknownActor(t *testing.T) {
	guard := newTestGuard(nil, nil)

	err := guard.Authorize(context.Background(), models.Actor{}, models.OpStudentRead, models.Resource{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPermissionDenied.Code, appErrors.FromError(err).Code)

	err = guard.Authorize(context.Background(), models.Actor{ID: "x", Role: "SUPERUSER"}, models.OpStudentRead, models.Resource{})
	require.Error(t, err)
}

func TestGuardAssignmentLookupErrorIsInternal(t *testing.T) {
	guard := NewGuard(&stubAssignments{err: assert.AnError}, &stubEnrollments{}, zap.NewNop())
	teacher := models.Actor{ID: "teacher-1", Role: models.RoleTeacher}

	err := guard.Authorize(context.Background(), teacher, models.OpSessionCreate, models.Resource{CourseID: "course-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}
