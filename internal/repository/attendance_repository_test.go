package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/campusmesh/sams-api/internal/models"
)

func TestAttendanceRepositoryUpsert(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "session_id", "student_id", "status", "marked_by", "marked_at", "updated_at"}).
		AddRow("rec-1", "sess-1", "stu-1", "LATE", "teacher-1", now, now)
	mock.ExpectQuery("INSERT INTO attendance_records").
		WithArgs(sqlmock.AnyArg(), "sess-1", "stu-1", models.AttendanceStatusLate, "teacher-1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(rows)

	stored, err := repo.Upsert(context.Background(), &models.AttendanceRecord{
		SessionID: "sess-1",
		StudentID: "stu-1",
		Status:    models.AttendanceStatusLate,
		MarkedBy:  "teacher-1",
	})
	require.NoError(t, err)
	require.Equal(t, "rec-1", stored.ID)
	require.Equal(t, models.AttendanceStatusLate, stored.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryBulkUpsertRunsInTransaction(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO attendance_records").
		WithArgs(sqlmock.AnyArg(), "sess-1", "stu-1", models.AttendanceStatusPresent, "teacher-1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO attendance_records").
		WithArgs(sqlmock.AnyArg(), "sess-1", "stu-2", models.AttendanceStatusAbsent, "teacher-1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.BulkUpsert(context.Background(), []models.AttendanceRecord{
		{SessionID: "sess-1", StudentID: "stu-1", Status: models.AttendanceStatusPresent, MarkedBy: "teacher-1"},
		{SessionID: "sess-1", StudentID: "stu-2", Status: models.AttendanceStatusAbsent, MarkedBy: "teacher-1"},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryBulkUpsertRollsBackOnFailure(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO attendance_records").
		WillReturnError(context.DeadlineExceeded)
	mock.ExpectRollback()

	err := repo.BulkUpsert(context.Background(), []models.AttendanceRecord{
		{SessionID: "sess-1", StudentID: "stu-1", Status: models.AttendanceStatusPresent},
	})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryStudentCourseSummary(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	rows := sqlmock.NewRows([]string{"status", "cnt"}).
		AddRow("PRESENT", 7).
		AddRow("LATE", 2).
		AddRow("ABSENT", 1)
	mock.ExpectQuery("SELECT ar.status, COUNT").
		WithArgs("stu-1", "course-1").
		WillReturnRows(rows)

	present, late, absent, err := repo.StudentCourseSummary(context.Background(), "stu-1", "course-1")
	require.NoError(t, err)
	require.Equal(t, 7, present)
	require.Equal(t, 2, late)
	require.Equal(t, 1, absent)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryStudentCourseSummaryNoMarks(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectQuery("SELECT ar.status, COUNT").
		WithArgs("stu-1", "course-1").
		WillReturnRows(sqlmock.NewRows([]string{"status", "cnt"}))

	present, late, absent, err := repo.StudentCourseSummary(context.Background(), "stu-1", "course-1")
	require.NoError(t, err)
	require.Zero(t, present)
	require.Zero(t, late)
	require.Zero(t, absent)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositorySessionRoster(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	studentNo := "S-001"
	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"student_id", "student_name", "student_no", "status", "marked_at"}).
		AddRow("stu-1", "Ada Lovelace", studentNo, "PRESENT", now).
		AddRow("stu-2", "Ben Stone", nil, nil, nil)
	mock.ExpectQuery("LEFT JOIN attendance_records ar").
		WithArgs("sess-1", "course-1").
		WillReturnRows(rows)

	roster, err := repo.SessionRoster(context.Background(), "sess-1", "course-1")
	require.NoError(t, err)
	require.Len(t, roster, 2)
	require.Equal(t, models.AttendanceStatusPresent, *roster[0].Status)
	// an enrolled student without a mark still appears, unmarked
	require.Nil(t, roster[1].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryCourseBreakdown(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	rows := sqlmock.NewRows([]string{"student_id", "student_name", "student_no", "sessions_held", "present", "late", "absent"}).
		AddRow("stu-1", "Ada Lovelace", nil, 10, 7, 1, 2).
		AddRow("stu-2", "Ben Stone", nil, 10, 0, 0, 0)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE sc.course_id = $1")).
		WithArgs("course-1").
		WillReturnRows(rows)

	breakdown, err := repo.CourseBreakdown(context.Background(), "course-1")
	require.NoError(t, err)
	require.Len(t, breakdown, 2)
	require.Equal(t, 7, breakdown[0].Present)
	require.Equal(t, 1, breakdown[0].Late)
	require.NoError(t, mock.ExpectationsWereMet())
}
