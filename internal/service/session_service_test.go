package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campusmesh/sams-api/internal/models"
	appErrors "github.com/campusmesh/sams-api/pkg/errors"
)

type mockSessionRepo struct {
	created   []*models.AttendanceSession
	sessions  map[string]*models.AttendanceSession
	details   map[string]*models.AttendanceSessionDetail
	createErr error
	gotFilter models.AttendanceSessionFilter
}

func (m *mockSessionRepo) Create(_ context.Context, session *models.AttendanceSession) error {
	if m.createErr != nil {
		return m.createErr
	}
	session.ID = uuid.NewString()
	m.created = append(m.created, session)
	return nil
}

func (m *mockSessionRepo) FindByID(_ context.Context, id string) (*models.AttendanceSession, error) {
	session, ok := m.sessions[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return session, nil
}

func (m *mockSessionRepo) FindDetailByID(_ context.Context, id string) (*models.AttendanceSessionDetail, error) {
	detail, ok := m.details[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *detail
	return &copied, nil
}

func (m *mockSessionRepo) List(_ context.Context, filter models.AttendanceSessionFilter) ([]models.AttendanceSessionDetail, int, error) {
	m.gotFilter = filter
	var out []models.AttendanceSessionDetail
	for _, detail := range m.details {
		out = append(out, *detail)
	}
	return out, len(out), nil
}

func (m *mockSessionRepo) Update(_ context.Context, _ *models.AttendanceSession) error { return nil }
func (m *mockSessionRepo) Delete(_ context.Context, _ string) error                    { return nil }

func newSessionFixture(repo *mockSessionRepo, courseID, teacherID string, assigned bool) *SessionService {
	pairs := map[string]bool{}
	if assigned {
		pairs[teacherID+"|"+courseID] = true
	}
	guard := NewGuard(&stubAssignments{pairs: pairs}, &stubEnrollments{}, zap.NewNop())
	return NewSessionService(repo,
		&stubCourseReader{courses: map[string]*models.Course{courseID: {ID: courseID}}},
		&stubUserReader{users: map[string]*models.User{teacherID: {ID: teacherID, Role: models.RoleTeacher}}},
		&spyReportCache{}, guard, nil, zap.NewNop())
}

func TestSessionServiceCreateByAssignedTeacher(t *testing.T) {
	courseID := uuid.NewString()
	teacherID := uuid.NewString()
	repo := &mockSessionRepo{}
	svc := newSessionFixture(repo, courseID, teacherID, true)

	session, err := svc.Create(context.Background(), models.Actor{ID: teacherID, Role: models.RoleTeacher},
		CreateSessionRequest{CourseID: courseID, Date: "2026-03-02", StartTime: "09:00", EndTime: "10:30"})
	require.NoError(t, err)
	assert.Equal(t, teacherID, session.TeacherID)
	require.Len(t, repo.created, 1)
}

func TestSessionServiceCreateByUnassignedTeacher(t *testing.T) {
	courseID := uuid.NewString()
	teacherID := uuid.NewString()
	svc := newSessionFixture(&mockSessionRepo{}, courseID, teacherID, false)

	_, err := svc.Create(context.Background(), models.Actor{ID: teacherID, Role: models.RoleTeacher},
		CreateSessionRequest{CourseID: courseID, Date: "2026-03-02", StartTime: "09:00", EndTime: "10:30"})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrPermissionDenied.Code, appErr.Code)
	assert.Equal(t, 403, appErr.Status)
}

func TestSessionServiceCreateByAdminForTeacher(t *testing.T) {
	courseID := uuid.NewString()
	teacherID := uuid.NewString()
	repo := &mockSessionRepo{}
	svc := newSessionFixture(repo, courseID, teacherID, false)

	// admins do not need an assignment but must name the teacher
	session, err := svc.Create(context.Background(), models.Actor{ID: "admin-1", Role: models.RoleAdmin},
		CreateSessionRequest{CourseID: courseID, TeacherID: teacherID, Date: "2026-03-02", StartTime: "09:00", EndTime: "10:30"})
	require.NoError(t, err)
	assert.Equal(t, teacherID, session.TeacherID)

	_, err = svc.Create(context.Background(), models.Actor{ID: "admin-1", Role: models.RoleAdmin},
		CreateSessionRequest{CourseID: courseID, Date: "2026-03-02", StartTime: "11:00", EndTime: "12:00"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestSessionServiceCreateDuplicateSlot(t *testing.T) {
	courseID := uuid.NewString()
	teacherID := uuid.NewString()
	repo := &mockSessionRepo{createErr: uniqueViolation()}
	svc := newSessionFixture(repo, courseID, teacherID, true)

	_, err := svc.Create(context.Background(), models.Actor{ID: teacherID, Role: models.RoleTeacher},
		CreateSessionRequest{CourseID: courseID, Date: "2026-03-02", StartTime: "09:00", EndTime: "10:30"})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrDuplicateEntity.Code, appErr.Code)
	assert.Equal(t, 409, appErr.Status)
}

func TestSessionServiceCreateValidatesTimeWindow(t *testing.T) {
	courseID := uuid.NewString()
	teacherID := uuid.NewString()
	svc := newSessionFixture(&mockSessionRepo{}, courseID, teacherID, true)
	actor := models.Actor{ID: teacherID, Role: models.RoleTeacher}
	ctx := context.Background()

	_, err := svc.Create(ctx, actor, CreateSessionRequest{CourseID: courseID, Date: "02-03-2026", StartTime: "09:00", EndTime: "10:30"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.Create(ctx, actor, CreateSessionRequest{CourseID: courseID, Date: "2026-03-02", StartTime: "10:30", EndTime: "09:00"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestSessionServiceGetDerivesClosedState(t *testing.T) {
	courseID := uuid.NewString()
	teacherID := uuid.NewString()
	openID := uuid.NewString()
	closedID := uuid.NewString()
	emptyID := uuid.NewString()

	repo := &mockSessionRepo{details: map[string]*models.AttendanceSessionDetail{
		openID: {
			AttendanceSession: models.AttendanceSession{ID: openID, CourseID: courseID},
			Enrolled:          10, Marked: 4,
		},
		closedID: {
			AttendanceSession: models.AttendanceSession{ID: closedID, CourseID: courseID},
			Enrolled:          10, Marked: 10,
		},
		emptyID: {
			AttendanceSession: models.AttendanceSession{ID: emptyID, CourseID: courseID},
			Enrolled:          0, Marked: 0,
		},
	}}
	svc := newSessionFixture(repo, courseID, teacherID, true)
	admin := models.Actor{ID: "admin-1", Role: models.RoleAdmin}
	ctx := context.Background()

	open, err := svc.Get(ctx, admin, openID)
	require.NoError(t, err)
	assert.False(t, open.Closed)

	closed, err := svc.Get(ctx, admin, closedID)
	require.NoError(t, err)
	assert.True(t, closed.Closed)

	// a session of a course without enrollments never reads as closed
	empty, err := svc.Get(ctx, admin, emptyID)
	require.NoError(t, err)
	assert.False(t, empty.Closed)
}

func TestSessionServiceListScopesTeachersToAssignedCourses(t *testing.T) {
	courseID := uuid.NewString()
	teacherID := uuid.NewString()
	repo := &mockSessionRepo{}
	svc := newSessionFixture(repo, courseID, teacherID, true)
	ctx := context.Background()

	_, _, err := svc.List(ctx, models.Actor{ID: teacherID, Role: models.RoleTeacher}, models.AttendanceSessionFilter{})
	require.NoError(t, err)
	assert.Equal(t, teacherID, repo.gotFilter.AssignedTeacherID)

	_, _, err = svc.List(ctx, models.Actor{ID: "admin-1", Role: models.RoleAdmin}, models.AttendanceSessionFilter{})
	require.NoError(t, err)
	assert.Empty(t, repo.gotFilter.AssignedTeacherID)
}

func TestSessionServiceUpdateValidatesTimeWindow(t *testing.T) {
	courseID := uuid.NewString()
	teacherID := uuid.NewString()
	sessionID := uuid.NewString()
	repo := &mockSessionRepo{sessions: map[string]*models.AttendanceSession{
		sessionID: {ID: sessionID, CourseID: courseID, StartTime: "09:00", EndTime: "10:30"},
	}}
	svc := newSessionFixture(repo, courseID, teacherID, true)
	actor := models.Actor{ID: teacherID, Role: models.RoleTeacher}
	ctx := context.Background()

	// moving only the end time must be checked against the stored start
	end := "08:00"
	_, err := svc.Update(ctx, actor, sessionID, UpdateSessionRequest{EndTime: &end})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	// a corrupt stored time surfaces as a validation error, not a zero-value
	// comparison
	repo.sessions[sessionID].StartTime = "9am"
	end = "10:00"
	_, err = svc.Update(ctx, actor, sessionID, UpdateSessionRequest{EndTime: &end})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
