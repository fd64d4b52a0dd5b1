package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campusmesh/sams-api/internal/models"
)

// AttendanceRepository handles persistence of attendance records and the
// read-side aggregations built on them.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// Upsert inserts or overwrites the mark for a (session, student) pair. The
// last write wins so a teacher can correct a mistaken mark.
func (r *AttendanceRepository) Upsert(ctx context.Context, record *models.AttendanceRecord) (*models.AttendanceRecord, error) {
	now := time.Now().UTC()
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.MarkedAt.IsZero() {
		record.MarkedAt = now
	}
	record.UpdatedAt = now
	const query = `INSERT INTO attendance_records (id, session_id, student_id, status, marked_by, marked_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (session_id, student_id)
DO UPDATE SET status = EXCLUDED.status, marked_by = EXCLUDED.marked_by, marked_at = EXCLUDED.marked_at, updated_at = EXCLUDED.updated_at
RETURNING id, session_id, student_id, status, marked_by, marked_at, updated_at`
	var stored models.AttendanceRecord
	if err := r.db.GetContext(ctx, &stored, query, record.ID, record.SessionID, record.StudentID, record.Status, record.MarkedBy, record.MarkedAt, record.UpdatedAt); err != nil {
		return nil, fmt.Errorf("upsert attendance record: %w", err)
	}
	return &stored, nil
}

// BulkUpsert writes many marks for one session within a transaction.
func (r *AttendanceRepository) BulkUpsert(ctx context.Context, records []models.AttendanceRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin bulk attendance: %w", err)
	}
	commit := false
	defer func() {
		if !commit {
			tx.Rollback()
		}
	}()

	const query = `INSERT INTO attendance_records (id, session_id, student_id, status, marked_by, marked_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (session_id, student_id)
DO UPDATE SET status = EXCLUDED.status, marked_by = EXCLUDED.marked_by, marked_at = EXCLUDED.marked_at, updated_at = EXCLUDED.updated_at`
	now := time.Now().UTC()
	for i := range records {
		rec := &records[i]
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		if rec.MarkedAt.IsZero() {
			rec.MarkedAt = now
		}
		rec.UpdatedAt = now
		if _, err := tx.ExecContext(ctx, query, rec.ID, rec.SessionID, rec.StudentID, rec.Status, rec.MarkedBy, rec.MarkedAt, rec.UpdatedAt); err != nil {
			return fmt.Errorf("bulk mark student %s: %w", rec.StudentID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit bulk attendance: %w", err)
	}
	commit = true
	return nil
}

// List returns attendance records matching the filter with student and
// session info.
func (r *AttendanceRepository) List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecordDetail, int, error) {
	base := `FROM attendance_records ar
JOIN attendance_sessions s ON s.id = ar.session_id
JOIN courses c ON c.id = s.course_id
JOIN users u ON u.id = ar.student_id`
	where := []string{"1=1"}
	var args []interface{}

	if filter.SessionID != "" {
		where = append(where, fmt.Sprintf("ar.session_id = $%d", len(args)+1))
		args = append(args, filter.SessionID)
	}
	if filter.StudentID != "" {
		where = append(where, fmt.Sprintf("ar.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.CourseID != "" {
		where = append(where, fmt.Sprintf("s.course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.AssignedTeacherID != "" {
		where = append(where, fmt.Sprintf("EXISTS (SELECT 1 FROM teacher_courses tc WHERE tc.teacher_id = $%d AND tc.course_id = s.course_id)", len(args)+1))
		args = append(args, filter.AssignedTeacherID)
	}
	if filter.Status != nil && filter.Status.Valid() {
		where = append(where, fmt.Sprintf("ar.status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.DateFrom != nil {
		where = append(where, fmt.Sprintf("s.date >= $%d", len(args)+1))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		where = append(where, fmt.Sprintf("s.date <= $%d", len(args)+1))
		args = append(args, *filter.DateTo)
	}

	whereClause := strings.Join(where, " AND ")

	allowedSorts := map[string]string{
		"date":      "s.date",
		"status":    "ar.status",
		"marked_at": "ar.marked_at",
	}
	sortColumn, ok := allowedSorts[filter.SortBy]
	if !ok {
		sortColumn = "s.date"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT ar.id, ar.session_id, ar.student_id, ar.status, ar.marked_by, ar.marked_at, ar.updated_at,
        u.full_name AS student_name, u.student_no, s.course_id, c.name AS course_name, s.date
        %s WHERE %s
        ORDER BY %s %s
        LIMIT %d OFFSET %d`, base, whereClause, sortColumn, order, size, offset)

	var records []models.AttendanceRecordDetail
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list attendance records: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", base, whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count attendance records: %w", err)
	}
	return records, total, nil
}

// SessionRoster pairs every student enrolled in the session's course with
// their current mark, if any.
func (r *AttendanceRepository) SessionRoster(ctx context.Context, sessionID, courseID string) ([]models.SessionRosterRow, error) {
	const query = `SELECT sc.student_id, u.full_name AS student_name, u.student_no, ar.status, ar.marked_at
FROM student_courses sc
JOIN users u ON u.id = sc.student_id
LEFT JOIN attendance_records ar ON ar.session_id = $1 AND ar.student_id = sc.student_id
WHERE sc.course_id = $2
ORDER BY u.full_name ASC`
	var roster []models.SessionRosterRow
	if err := r.db.SelectContext(ctx, &roster, query, sessionID, courseID); err != nil {
		return nil, fmt.Errorf("session roster: %w", err)
	}
	return roster, nil
}

// StudentCourseSummary aggregates one student's marks within one course.
func (r *AttendanceRepository) StudentCourseSummary(ctx context.Context, studentID, courseID string) (present, late, absent int, err error) {
	const query = `SELECT ar.status, COUNT(*) AS cnt
FROM attendance_records ar
JOIN attendance_sessions s ON s.id = ar.session_id
WHERE ar.student_id = $1 AND s.course_id = $2
GROUP BY ar.status`
	rows := []struct {
		Status string `db:"status"`
		Count  int    `db:"cnt"`
	}{}
	if err := r.db.SelectContext(ctx, &rows, query, studentID, courseID); err != nil {
		return 0, 0, 0, fmt.Errorf("student course summary: %w", err)
	}
	for _, row := range rows {
		switch models.AttendanceStatus(row.Status) {
		case models.AttendanceStatusPresent:
			present += row.Count
		case models.AttendanceStatusLate:
			late += row.Count
		case models.AttendanceStatusAbsent:
			absent += row.Count
		}
	}
	return present, late, absent, nil
}

// CourseBreakdown aggregates per-student marks for every student enrolled in
// a course. Students with no marks still appear with zero counts.
func (r *AttendanceRepository) CourseBreakdown(ctx context.Context, courseID string) ([]models.CourseReportRow, error) {
	const query = `SELECT sc.student_id, u.full_name AS student_name, u.student_no,
        COUNT(DISTINCT s.id) AS sessions_held,
        SUM(CASE WHEN ar.status = 'PRESENT' THEN 1 ELSE 0 END) AS present,
        SUM(CASE WHEN ar.status = 'LATE' THEN 1 ELSE 0 END) AS late,
        SUM(CASE WHEN ar.status = 'ABSENT' THEN 1 ELSE 0 END) AS absent
FROM student_courses sc
JOIN users u ON u.id = sc.student_id
LEFT JOIN attendance_sessions s ON s.course_id = sc.course_id
LEFT JOIN attendance_records ar ON ar.session_id = s.id AND ar.student_id = sc.student_id
WHERE sc.course_id = $1
GROUP BY sc.student_id, u.full_name, u.student_no
ORDER BY u.full_name ASC`
	var rows []models.CourseReportRow
	if err := r.db.SelectContext(ctx, &rows, query, courseID); err != nil {
		return nil, fmt.Errorf("course breakdown: %w", err)
	}
	return rows, nil
}

// StudentBreakdown aggregates a student's marks per enrolled course, with
// the owning semester for grouping.
func (r *AttendanceRepository) StudentBreakdown(ctx context.Context, studentID string) ([]models.StudentCourseBreakdownRow, error) {
	const query = `SELECT c.id AS course_id, c.code AS course_code, c.name AS course_name,
        c.semester_id, sem.name AS semester_name, sem.number AS semester_number,
        COUNT(DISTINCT s.id) AS sessions_held,
        SUM(CASE WHEN ar.status = 'PRESENT' THEN 1 ELSE 0 END) AS present,
        SUM(CASE WHEN ar.status = 'LATE' THEN 1 ELSE 0 END) AS late,
        SUM(CASE WHEN ar.status = 'ABSENT' THEN 1 ELSE 0 END) AS absent
FROM student_courses sc
JOIN courses c ON c.id = sc.course_id
JOIN semesters sem ON sem.id = c.semester_id
LEFT JOIN attendance_sessions s ON s.course_id = c.id
LEFT JOIN attendance_records ar ON ar.session_id = s.id AND ar.student_id = sc.student_id
WHERE sc.student_id = $1
GROUP BY c.id, c.code, c.name, c.semester_id, sem.name, sem.number
ORDER BY sem.number ASC, c.code ASC`
	var rows []models.StudentCourseBreakdownRow
	if err := r.db.SelectContext(ctx, &rows, query, studentID); err != nil {
		return nil, fmt.Errorf("student breakdown: %w", err)
	}
	return rows, nil
}

// GlobalSummary counts all marks per status across every course.
func (r *AttendanceRepository) GlobalSummary(ctx context.Context) (present, late, absent int, err error) {
	const query = `SELECT status, COUNT(*) AS cnt FROM attendance_records GROUP BY status`
	rows := []struct {
		Status string `db:"status"`
		Count  int    `db:"cnt"`
	}{}
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return 0, 0, 0, fmt.Errorf("global attendance summary: %w", err)
	}
	for _, row := range rows {
		switch models.AttendanceStatus(row.Status) {
		case models.AttendanceStatusPresent:
			present += row.Count
		case models.AttendanceStatusLate:
			late += row.Count
		case models.AttendanceStatusAbsent:
			absent += row.Count
		}
	}
	return present, late, absent, nil
}
