package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campusmesh/sams-api/internal/models"
	appErrors "github.com/campusmesh/sams-api/pkg/errors"
)

// allowAllGuard stands in for the Guard where the test focuses on the
// service logic rather than authorization.
type allowAllGuard struct{}

func (allowAllGuard) Authorize(context.Context, models.Actor, models.Operation, models.Resource) error {
	return nil
}

type denyAllGuard struct{}

func (denyAllGuard) Authorize(context.Context, models.Actor, models.Operation, models.Resource) error {
	return appErrors.Clone(appErrors.ErrPermissionDenied, "operation not permitted for role")
}

func uniqueViolation() error {
	return &pq.Error{Code: "23505", Constraint: ""}
}

type stubUserReader struct {
	users map[string]*models.User
}

func (s *stubUserReader) FindByID(_ context.Context, id string) (*models.User, error) {
	user, ok := s.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return user, nil
}

type stubCourseReader struct {
	courses map[string]*models.Course
}

func (s *stubCourseReader) FindByID(_ context.Context, id string) (*models.Course, error) {
	course, ok := s.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return course, nil
}

type mockAssignmentRepo struct {
	created   []*models.TeacherCourse
	createErr error
	deleteErr error
}

func (m *mockAssignmentRepo) Create(_ context.Context, assignment *models.TeacherCourse) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.created = append(m.created, assignment)
	return nil
}

func (m *mockAssignmentRepo) Delete(_ context.Context, _, _ string) error {
	return m.deleteErr
}

func (m *mockAssignmentRepo) List(_ context.Context, _ models.TeacherCourseFilter) ([]models.TeacherCourseDetail, int, error) {
	return nil, 0, nil
}

func TestAssignmentServiceAssign(t *testing.T) {
	teacherID := uuid.NewString()
	courseID := uuid.NewString()
	repo := &mockAssignmentRepo{}
	svc := NewAssignmentService(repo,
		&stubUserReader{users: map[string]*models.User{teacherID: {ID: teacherID, Role: models.RoleTeacher}}},
		&stubCourseReader{courses: map[string]*models.Course{courseID: {ID: courseID}}},
		allowAllGuard{}, nil, zap.NewNop())

	admin := models.Actor{ID: "admin-1", Role: models.RoleAdmin}
	assignment, err := svc.Assign(context.Background(), admin, AssignTeacherRequest{TeacherID: teacherID, CourseID: courseID})
	require.NoError(t, err)
	require.Len(t, repo.created, 1)
	assert.Equal(t, teacherID, assignment.TeacherID)
	assert.Equal(t, courseID, assignment.CourseID)
}

func TestAssignmentServiceAssignDuplicate(t *testing.T) {
	teacherID := uuid.NewString()
	courseID := uuid.NewString()
	repo := &mockAssignmentRepo{createErr: uniqueViolation()}
	svc := NewAssignmentService(repo,
		&stubUserReader{users: map[string]*models.User{teacherID: {ID: teacherID, Role: models.RoleTeacher}}},
		&stubCourseReader{courses: map[string]*models.Course{courseID: {ID: courseID}}},
		allowAllGuard{}, nil, zap.NewNop())

	_, err := svc.Assign(context.Background(), models.Actor{ID: "admin-1", Role: models.RoleAdmin},
		AssignTeacherRequest{TeacherID: teacherID, CourseID: courseID})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrDuplicateAssignment.Code, appErr.Code)
	assert.Equal(t, 409, appErr.Status)
}

func TestAssignmentServiceAssignRejectsNonTeacher(t *testing.T) {
	studentID := uuid.NewString()
	courseID := uuid.NewString()
	svc := NewAssignmentService(&mockAssignmentRepo{},
		&stubUserReader{users: map[string]*models.User{studentID: {ID: studentID, Role: models.RoleStudent}}},
		&stubCourseReader{courses: map[string]*models.Course{courseID: {ID: courseID}}},
		allowAllGuard{}, nil, zap.NewNop())

	_, err := svc.Assign(context.Background(), models.Actor{ID: "admin-1", Role: models.RoleAdmin},
		AssignTeacherRequest{TeacherID: studentID, CourseID: courseID})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestAssignmentServiceAssignDenied(t *testing.T) {
	svc := NewAssignmentService(&mockAssignmentRepo{}, &stubUserReader{}, &stubCourseReader{},
		denyAllGuard{}, nil, zap.NewNop())

	_, err := svc.Assign(context.Background(), models.Actor{ID: "teacher-1", Role: models.RoleTeacher},
		AssignTeacherRequest{TeacherID: uuid.NewString(), CourseID: uuid.NewString()})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPermissionDenied.Code, appErrors.FromError(err).Code)
}

func TestAssignmentServiceUnassignNotFound(t *testing.T) {
	svc := NewAssignmentService(&mockAssignmentRepo{deleteErr: sql.ErrNoRows}, &stubUserReader{}, &stubCourseReader{},
		allowAllGuard{}, nil, zap.NewNop())

	err := svc.Unassign(context.Background(), models.Actor{ID: "admin-1", Role: models.RoleAdmin}, uuid.NewString(), uuid.NewString())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
