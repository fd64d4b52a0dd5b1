package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campusmesh/sams-api/internal/models"
	appErrors "github.com/campusmesh/sams-api/pkg/errors"
)

// fakeAttendanceStore keeps marks in memory keyed by (session, student), so
// an upsert for an existing pair overwrites instead of adding a row.
type fakeAttendanceStore struct {
	marks     map[string]models.AttendanceRecord
	gotFilter models.AttendanceFilter
}

func newFakeAttendanceStore() *fakeAttendanceStore {
	return &fakeAttendanceStore{marks: map[string]models.AttendanceRecord{}}
}

func (f *fakeAttendanceStore) key(sessionID, studentID string) string {
	return sessionID + "|" + studentID
}

func (f *fakeAttendanceStore) Upsert(_ context.Context, record *models.AttendanceRecord) (*models.AttendanceRecord, error) {
	k := f.key(record.SessionID, record.StudentID)
	stored, ok := f.marks[k]
	if !ok {
		stored = *record
		stored.ID = uuid.NewString()
		stored.MarkedAt = time.Now().UTC()
	} else {
		stored.Status = record.Status
		stored.MarkedBy = record.MarkedBy
	}
	stored.UpdatedAt = time.Now().UTC()
	f.marks[k] = stored
	return &stored, nil
}

func (f *fakeAttendanceStore) BulkUpsert(ctx context.Context, records []models.AttendanceRecord) error {
	for i := range records {
		if _, err := f.Upsert(ctx, &records[i]); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeAttendanceStore) List(_ context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecordDetail, int, error) {
	f.gotFilter = filter
	return nil, len(f.marks), nil
}

func (f *fakeAttendanceStore) SessionRoster(_ context.Context, _, _ string) ([]models.SessionRosterRow, error) {
	return []models.SessionRosterRow{}, nil
}

type stubSessionStore struct {
	sessions map[string]*models.AttendanceSession
}

func (s *stubSessionStore) FindByID(_ context.Context, id string) (*models.AttendanceSession, error) {
	session, ok := s.sessions[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return session, nil
}

type spyReportCache struct {
	patterns []string
}

func (s *spyReportCache) DeleteByPattern(_ context.Context, pattern string) error {
	s.patterns = append(s.patterns, pattern)
	return nil
}

type attendanceFixture struct {
	svc       *AttendanceService
	store     *fakeAttendanceStore
	cache     *spyReportCache
	sessionID string
	courseID  string
	studentID string
}

func newAttendanceFixture(t *testing.T) *attendanceFixture {
	t.Helper()
	sessionID := uuid.NewString()
	courseID := uuid.NewString()
	studentID := uuid.NewString()
	store := newFakeAttendanceStore()
	cache := &spyReportCache{}
	svc := NewAttendanceService(store,
		&stubSessionStore{sessions: map[string]*models.AttendanceSession{
			sessionID: {ID: sessionID, CourseID: courseID, TeacherID: "teacher-1"},
		}},
		&stubEnrollments{pairs: map[string]bool{studentID + "|" + courseID: true}},
		cache, allowAllGuard{}, nil, zap.NewNop())
	return &attendanceFixture{svc: svc, store: store, cache: cache, sessionID: sessionID, courseID: courseID, studentID: studentID}
}

func TestAttendanceServiceMark(t *testing.T) {
	fx := newAttendanceFixture(t)
	teacher := models.Actor{ID: "teacher-1", Role: models.RoleTeacher}

	record, err := fx.svc.Mark(context.Background(), teacher, fx.sessionID,
		MarkAttendanceRequest{StudentID: fx.studentID, Status: models.AttendanceStatusPresent})
	require.NoError(t, err)
	assert.Equal(t, models.AttendanceStatusPresent, record.Status)
	assert.Equal(t, "teacher-1", record.MarkedBy)
	assert.Contains(t, fx.cache.patterns, "report:*")
}

func TestAttendanceServiceMarkTwiceOverwrites(t *testing.T) {
	fx := newAttendanceFixture(t)
	teacher := models.Actor{ID: "teacher-1", Role: models.RoleTeacher}
	ctx := context.Background()

	first, err := fx.svc.Mark(ctx, teacher, fx.sessionID,
		MarkAttendanceRequest{StudentID: fx.studentID, Status: models.AttendanceStatusAbsent})
	require.NoError(t, err)

	second, err := fx.svc.Mark(ctx, teacher, fx.sessionID,
		MarkAttendanceRequest{StudentID: fx.studentID, Status: models.AttendanceStatusLate})
	require.NoError(t, err)

	// last write wins and no second record appears
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, models.AttendanceStatusLate, second.Status)
	assert.Len(t, fx.store.marks, 1)
}

func TestAttendanceServiceMarkInvalidStatus(t *testing.T) {
	fx := newAttendanceFixture(t)
	teacher := models.Actor{ID: "teacher-1", Role: models.RoleTeacher}

	_, err := fx.svc.Mark(context.Background(), teacher, fx.sessionID,
		MarkAttendanceRequest{StudentID: fx.studentID, Status: "SLEEPING"})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInvalidStatus.Code, appErr.Code)
	assert.Equal(t, 400, appErr.Status)
	assert.Empty(t, fx.store.marks)
}

func TestAttendanceServiceMarkUnenrolledStudent(t *testing.T) {
	fx := newAttendanceFixture(t)
	teacher := models.Actor{ID: "teacher-1", Role: models.RoleTeacher}

	_, err := fx.svc.Mark(context.Background(), teacher, fx.sessionID,
		MarkAttendanceRequest{StudentID: uuid.NewString(), Status: models.AttendanceStatusPresent})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotEnrolled.Code, appErr.Code)
	assert.Equal(t, 412, appErr.Status)
}

func TestAttendanceServiceMarkUnknownSession(t *testing.T) {
	fx := newAttendanceFixture(t)

	_, err := fx.svc.Mark(context.Background(), models.Actor{ID: "teacher-1", Role: models.RoleTeacher},
		uuid.NewString(), MarkAttendanceRequest{StudentID: fx.studentID, Status: models.AttendanceStatusPresent})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestAttendanceServiceBulkMark(t *testing.T) {
	sessionID := uuid.NewString()
	courseID := uuid.NewString()
	enrolledA := uuid.NewString()
	enrolledB := uuid.NewString()
	outsider := uuid.NewString()

	store := newFakeAttendanceStore()
	svc := NewAttendanceService(store,
		&stubSessionStore{sessions: map[string]*models.AttendanceSession{
			sessionID: {ID: sessionID, CourseID: courseID},
		}},
		&stubEnrollments{pairs: map[string]bool{
			enrolledA + "|" + courseID: true,
			enrolledB + "|" + courseID: true,
		}},
		&spyReportCache{}, allowAllGuard{}, nil, zap.NewNop())

	result, err := svc.BulkMark(context.Background(), models.Actor{ID: "teacher-1", Role: models.RoleTeacher}, sessionID,
		BulkMarkRequest{Items: []BulkMarkItem{
			{StudentID: enrolledA, Status: models.AttendanceStatusPresent},
			{StudentID: enrolledB, Status: "NAPPING"},
			{StudentID: outsider, Status: models.AttendanceStatusLate},
		}})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Marked)
	require.Len(t, result.Conflicts, 2)
	reasons := map[string]string{}
	for _, conflict := range result.Conflicts {
		reasons[conflict.StudentID] = conflict.Reason
	}
	assert.Equal(t, "invalid status", reasons[enrolledB])
	assert.Equal(t, "not enrolled", reasons[outsider])
	assert.Len(t, store.marks, 1)
}

func TestAttendanceServiceBulkMarkRejectsDuplicateStudent(t *testing.T) {
	fx := newAttendanceFixture(t)

	_, err := fx.svc.BulkMark(context.Background(), models.Actor{ID: "teacher-1", Role: models.RoleTeacher}, fx.sessionID,
		BulkMarkRequest{Items: []BulkMarkItem{
			{StudentID: fx.studentID, Status: models.AttendanceStatusPresent},
			{StudentID: fx.studentID, Status: models.AttendanceStatusAbsent},
		}})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestAttendanceServiceListScopesStudentsToSelf(t *testing.T) {
	fx := newAttendanceFixture(t)
	student := models.Actor{ID: fx.studentID, Role: models.RoleStudent}
	ctx := context.Background()

	_, _, err := fx.svc.List(ctx, student, models.AttendanceFilter{StudentID: uuid.NewString()})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPermissionDenied.Code, appErrors.FromError(err).Code)

	_, _, err = fx.svc.List(ctx, student, models.AttendanceFilter{})
	require.NoError(t, err)
}

func TestAttendanceServiceListScopesTeachersToAssignedCourses(t *testing.T) {
	fx := newAttendanceFixture(t)
	ctx := context.Background()

	// an unfiltered teacher read must still be pinned to assigned courses
	teacher := models.Actor{ID: "teacher-1", Role: models.RoleTeacher}
	_, _, err := fx.svc.List(ctx, teacher, models.AttendanceFilter{})
	require.NoError(t, err)
	assert.Equal(t, "teacher-1", fx.store.gotFilter.AssignedTeacherID)

	// admins read across all courses
	_, _, err = fx.svc.List(ctx, models.Actor{ID: "admin-1", Role: models.RoleAdmin}, models.AttendanceFilter{})
	require.NoError(t, err)
	assert.Empty(t, fx.store.gotFilter.AssignedTeacherID)
}
