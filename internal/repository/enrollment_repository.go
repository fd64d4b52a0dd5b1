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

// EnrollmentRepository handles persistence of student course enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// Create persists a new enrollment. The (student_id, course_id) pair is
// unique in the store; a duplicate insert surfaces as a unique violation.
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.StudentCourse) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.EnrolledAt.IsZero() {
		enrollment.EnrolledAt = time.Now().UTC()
	}
	const query = `INSERT INTO student_courses (id, student_id, course_id, enrolled_at)
        VALUES (:id, :student_id, :course_id, :enrolled_at)`
	if _, err := r.db.NamedExecContext(ctx, query, enrollment); err != nil {
		return err
	}
	return nil
}

// Delete removes the enrollment of a student in a course. Attendance records
// remain untouched so the history of past sessions is preserved.
func (r *EnrollmentRepository) Delete(ctx context.Context, studentID, courseID string) error {
	const query = `DELETE FROM student_courses WHERE student_id = $1 AND course_id = $2`
	result, err := r.db.ExecContext(ctx, query, studentID, courseID)
	if err != nil {
		return fmt.Errorf("delete enrollment: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete enrollment: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Exists reports whether a student is enrolled in a course.
func (r *EnrollmentRepository) Exists(ctx context.Context, studentID, courseID string) (bool, error) {
	const query = `SELECT 1 FROM student_courses WHERE student_id = $1 AND course_id = $2 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, studentID, courseID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check enrollment: %w", err)
	}
	return true, nil
}

// List returns enrollments matching the filter with student and course info.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.StudentCourseFilter) ([]models.StudentCourseDetail, int, error) {
	base := `FROM student_courses sc
JOIN users u ON u.id = sc.student_id
JOIN courses c ON c.id = sc.course_id`
	where := []string{"1=1"}
	var args []interface{}

	if filter.StudentID != "" {
		where = append(where, fmt.Sprintf("sc.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.CourseID != "" {
		where = append(where, fmt.Sprintf("sc.course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.AssignedTeacherID != "" {
		where = append(where, fmt.Sprintf("EXISTS (SELECT 1 FROM teacher_courses tc WHERE tc.teacher_id = $%d AND tc.course_id = sc.course_id)", len(args)+1))
		args = append(args, filter.AssignedTeacherID)
	}

	whereClause := strings.Join(where, " AND ")

	allowedSorts := map[string]string{
		"enrolled_at":  "sc.enrolled_at",
		"student_name": "u.full_name",
		"course_code":  "c.code",
	}
	sortColumn, ok := allowedSorts[filter.SortBy]
	if !ok {
		sortColumn = "sc.enrolled_at"
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

	query := fmt.Sprintf(`SELECT sc.id, sc.student_id, sc.course_id, sc.enrolled_at,
        u.full_name AS student_name, u.student_no, c.code AS course_code, c.name AS course_name
        %s WHERE %s ORDER BY %s %s LIMIT %d OFFSET %d`, base, whereClause, sortColumn, order, size, offset)

	var enrollments []models.StudentCourseDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", base, whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}

	return enrollments, total, nil
}

// CountByCourse returns the number of students enrolled in a course.
func (r *EnrollmentRepository) CountByCourse(ctx context.Context, courseID string) (int, error) {
	const query = `SELECT COUNT(*) FROM student_courses WHERE course_id = $1`
	var total int
	if err := r.db.GetContext(ctx, &total, query, courseID); err != nil {
		return 0, fmt.Errorf("count course enrollments: %w", err)
	}
	return total, nil
}

// BulkInsert enrolls many students best-effort within one transaction.
// Already enrolled students are skipped and reported back, never failing the
// whole batch.
func (r *EnrollmentRepository) BulkInsert(ctx context.Context, courseID string, studentIDs []string) ([]string, []string, error) {
	if len(studentIDs) == 0 {
		return nil, nil, nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin bulk enrollment: %w", err)
	}
	commit := false
	defer func() {
		if !commit {
			tx.Rollback()
		}
	}()

	const query = `INSERT INTO student_courses (id, student_id, course_id, enrolled_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (student_id, course_id) DO NOTHING RETURNING id`
	now := time.Now().UTC()
	enrolled := make([]string, 0, len(studentIDs))
	var skipped []string
	for _, studentID := range studentIDs {
		var insertedID string
		err := tx.QueryRowxContext(ctx, query, uuid.NewString(), studentID, courseID, now).Scan(&insertedID)
		if err != nil {
			if err == sql.ErrNoRows {
				skipped = append(skipped, studentID)
				continue
			}
			return nil, nil, fmt.Errorf("bulk enroll student %s: %w", studentID, err)
		}
		enrolled = append(enrolled, studentID)
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit bulk enrollment: %w", err)
	}
	commit = true
	return enrolled, skipped, nil
}
