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

// AssignmentRepository handles persistence of teacher course assignments.
type AssignmentRepository struct {
	db *sqlx.DB
}

// NewAssignmentRepository constructs the repository.
func NewAssignmentRepository(db *sqlx.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// Create persists a new assignment. The (teacher_id, course_id) pair is
// unique in the store; a duplicate insert surfaces as a unique violation.
func (r *AssignmentRepository) Create(ctx context.Context, assignment *models.TeacherCourse) error {
	if assignment.ID == "" {
		assignment.ID = uuid.NewString()
	}
	if assignment.CreatedAt.IsZero() {
		assignment.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO teacher_courses (id, teacher_id, course_id, created_at)
        VALUES (:id, :teacher_id, :course_id, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, assignment); err != nil {
		return err
	}
	return nil
}

// Delete removes the assignment between a teacher and a course. Attendance
// sessions already recorded by the teacher are untouched.
func (r *AssignmentRepository) Delete(ctx context.Context, teacherID, courseID string) error {
	const query = `DELETE FROM teacher_courses WHERE teacher_id = $1 AND course_id = $2`
	result, err := r.db.ExecContext(ctx, query, teacherID, courseID)
	if err != nil {
		return fmt.Errorf("delete assignment: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete assignment: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Exists reports whether a teacher is assigned to a course.
func (r *AssignmentRepository) Exists(ctx context.Context, teacherID, courseID string) (bool, error) {
	const query = `SELECT 1 FROM teacher_courses WHERE teacher_id = $1 AND course_id = $2 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, teacherID, courseID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check assignment: %w", err)
	}
	return true, nil
}

// List returns assignments matching the filter with teacher and course info.
func (r *AssignmentRepository) List(ctx context.Context, filter models.TeacherCourseFilter) ([]models.TeacherCourseDetail, int, error) {
	base := `FROM teacher_courses tc
JOIN users u ON u.id = tc.teacher_id
JOIN courses c ON c.id = tc.course_id`
	where := []string{"1=1"}
	var args []interface{}

	if filter.TeacherID != "" {
		where = append(where, fmt.Sprintf("tc.teacher_id = $%d", len(args)+1))
		args = append(args, filter.TeacherID)
	}
	if filter.CourseID != "" {
		where = append(where, fmt.Sprintf("tc.course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}

	whereClause := strings.Join(where, " AND ")

	allowedSorts := map[string]string{
		"created_at":   "tc.created_at",
		"teacher_name": "u.full_name",
		"course_code":  "c.code",
	}
	sortColumn, ok := allowedSorts[filter.SortBy]
	if !ok {
		sortColumn = "tc.created_at"
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

	query := fmt.Sprintf(`SELECT tc.id, tc.teacher_id, tc.course_id, tc.created_at,
        u.full_name AS teacher_name, c.code AS course_code, c.name AS course_name
        %s WHERE %s ORDER BY %s %s LIMIT %d OFFSET %d`, base, whereClause, sortColumn, order, size, offset)

	var assignments []models.TeacherCourseDetail
	if err := r.db.SelectContext(ctx, &assignments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list assignments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", base, whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count assignments: %w", err)
	}

	return assignments, total, nil
}

// CourseSummariesByTeacher returns the teacher's assigned courses with
// enrollment and session counts.
func (r *AssignmentRepository) CourseSummariesByTeacher(ctx context.Context, teacherID string) ([]models.TeacherCourseSummary, error) {
	const query = `SELECT tc.course_id, c.code AS course_code, c.name AS course_name,
        (SELECT COUNT(*) FROM student_courses sc WHERE sc.course_id = tc.course_id) AS enrolled,
        (SELECT COUNT(*) FROM attendance_sessions s WHERE s.course_id = tc.course_id) AS sessions_held
FROM teacher_courses tc
JOIN courses c ON c.id = tc.course_id
WHERE tc.teacher_id = $1
ORDER BY c.code ASC`
	var summaries []models.TeacherCourseSummary
	if err := r.db.SelectContext(ctx, &summaries, query, teacherID); err != nil {
		return nil, fmt.Errorf("teacher course summaries: %w", err)
	}
	return summaries, nil
}
