package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campusmesh/sams-api/internal/models"
)

// SessionRepository handles persistence of attendance sessions.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository constructs the repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

const sessionDetailColumns = `s.id, s.course_id, s.teacher_id, s.date, s.start_time, s.end_time, s.topic, s.created_at,
        c.code AS course_code, c.name AS course_name, u.full_name AS teacher_name,
        (SELECT COUNT(*) FROM student_courses sc WHERE sc.course_id = s.course_id) AS enrolled,
        SUM(CASE WHEN ar.status = 'PRESENT' THEN 1 ELSE 0 END) AS present,
        SUM(CASE WHEN ar.status = 'ABSENT' THEN 1 ELSE 0 END) AS absent,
        SUM(CASE WHEN ar.status = 'LATE' THEN 1 ELSE 0 END) AS late,
        COUNT(ar.id) AS marked`

const sessionDetailGroupBy = `s.id, s.course_id, s.teacher_id, s.date, s.start_time, s.end_time, s.topic, s.created_at, c.code, c.name, u.full_name`

// Create persists a new session. The (course_id, date, start_time) triple is
// unique in the store; a duplicate insert surfaces as a unique violation.
func (r *SessionRepository) Create(ctx context.Context, session *models.AttendanceSession) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO attendance_sessions (id, course_id, teacher_id, date, start_time, end_time, topic, created_at)
        VALUES (:id, :course_id, :teacher_id, :date, :start_time, :end_time, :topic, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, session); err != nil {
		return err
	}
	return nil
}

// FindByID returns a session by its ID.
func (r *SessionRepository) FindByID(ctx context.Context, id string) (*models.AttendanceSession, error) {
	const query = `SELECT id, course_id, teacher_id, date, start_time, end_time, topic, created_at FROM attendance_sessions WHERE id = $1 LIMIT 1`
	var session models.AttendanceSession
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find session: %w", err)
	}
	return &session, nil
}

// FindDetailByID returns a session with course info and mark counts.
func (r *SessionRepository) FindDetailByID(ctx context.Context, id string) (*models.AttendanceSessionDetail, error) {
	query := fmt.Sprintf(`SELECT %s
        FROM attendance_sessions s
        JOIN courses c ON c.id = s.course_id
        JOIN users u ON u.id = s.teacher_id
        LEFT JOIN attendance_records ar ON ar.session_id = s.id
        WHERE s.id = $1
        GROUP BY %s`, sessionDetailColumns, sessionDetailGroupBy)
	var detail models.AttendanceSessionDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find session detail: %w", err)
	}
	return &detail, nil
}

// List returns sessions matching the filter with per-session mark counts.
func (r *SessionRepository) List(ctx context.Context, filter models.AttendanceSessionFilter) ([]models.AttendanceSessionDetail, int, error) {
	where := []string{"1=1"}
	var args []interface{}

	if filter.CourseID != "" {
		where = append(where, fmt.Sprintf("s.course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.TeacherID != "" {
		where = append(where, fmt.Sprintf("s.teacher_id = $%d", len(args)+1))
		args = append(args, filter.TeacherID)
	}
	if filter.AssignedTeacherID != "" {
		where = append(where, fmt.Sprintf("EXISTS (SELECT 1 FROM teacher_courses tc WHERE tc.teacher_id = $%d AND tc.course_id = s.course_id)", len(args)+1))
		args = append(args, filter.AssignedTeacherID)
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
		"date":       "s.date",
		"created_at": "s.created_at",
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
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s
        FROM attendance_sessions s
        JOIN courses c ON c.id = s.course_id
        JOIN users u ON u.id = s.teacher_id
        LEFT JOIN attendance_records ar ON ar.session_id = s.id
        WHERE %s
        GROUP BY %s
        ORDER BY %s %s, s.start_time %s
        LIMIT %d OFFSET %d`, sessionDetailColumns, whereClause, sessionDetailGroupBy, sortColumn, order, order, size, offset)

	var sessions []models.AttendanceSessionDetail
	if err := r.db.SelectContext(ctx, &sessions, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list sessions: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM attendance_sessions s WHERE %s", whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count sessions: %w", err)
	}

	return sessions, total, nil
}

// Update updates the mutable fields of a session. Moving a session onto an
// occupied (course, date, start_time) slot surfaces as a unique violation.
func (r *SessionRepository) Update(ctx context.Context, session *models.AttendanceSession) error {
	const query = `UPDATE attendance_sessions SET date = :date, start_time = :start_time, end_time = :end_time, topic = :topic WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, session); err != nil {
		return err
	}
	return nil
}

// Delete removes a session and, through the store's cascade, its records.
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM attendance_sessions WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CountByCourse returns the number of sessions held for a course.
func (r *SessionRepository) CountByCourse(ctx context.Context, courseID string) (int, error) {
	const query = `SELECT COUNT(*) FROM attendance_sessions WHERE course_id = $1`
	var total int
	if err := r.db.GetContext(ctx, &total, query, courseID); err != nil {
		return 0, fmt.Errorf("count course sessions: %w", err)
	}
	return total, nil
}

// Count returns the total number of sessions held.
func (r *SessionRepository) Count(ctx context.Context) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM attendance_sessions`); err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return total, nil
}
