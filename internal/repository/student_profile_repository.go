package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campusmesh/sams-api/internal/models"
)

// StudentProfileRepository handles persistence of student batch placements.
type StudentProfileRepository struct {
	db *sqlx.DB
}

// NewStudentProfileRepository constructs the repository.
func NewStudentProfileRepository(db *sqlx.DB) *StudentProfileRepository {
	return &StudentProfileRepository{db: db}
}

// Create persists a new student profile.
func (r *StudentProfileRepository) Create(ctx context.Context, profile *models.StudentProfile) error {
	if profile.ID == "" {
		profile.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = now
	}
	profile.UpdatedAt = now
	const query = `INSERT INTO student_profiles (id, user_id, batch_id, created_at, updated_at)
        VALUES (:id, :user_id, :batch_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, profile); err != nil {
		return fmt.Errorf("create student profile: %w", err)
	}
	return nil
}

// FindByUserID returns the profile of a student user.
func (r *StudentProfileRepository) FindByUserID(ctx context.Context, userID string) (*models.StudentProfile, error) {
	const query = `SELECT id, user_id, batch_id, created_at, updated_at FROM student_profiles WHERE user_id = $1 LIMIT 1`
	var profile models.StudentProfile
	if err := r.db.GetContext(ctx, &profile, query, userID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find student profile: %w", err)
	}
	return &profile, nil
}

// UpdateBatch moves a student to another batch.
func (r *StudentProfileRepository) UpdateBatch(ctx context.Context, userID, batchID string) error {
	const query = `UPDATE student_profiles SET batch_id = $2, updated_at = $3 WHERE user_id = $1`
	if _, err := r.db.ExecContext(ctx, query, userID, batchID, time.Now().UTC()); err != nil {
		return fmt.Errorf("update student batch: %w", err)
	}
	return nil
}

// ListByBatch returns the student profiles of a batch with user info.
func (r *StudentProfileRepository) ListByBatch(ctx context.Context, batchID string) ([]models.StudentProfileDetail, error) {
	const query = `SELECT sp.id, sp.user_id, sp.batch_id, sp.created_at, sp.updated_at,
        u.full_name, u.student_no, b.start_year, b.end_year
        FROM student_profiles sp
        JOIN users u ON u.id = sp.user_id
        JOIN batches b ON b.id = sp.batch_id
        WHERE sp.batch_id = $1 AND u.active = TRUE
        ORDER BY u.full_name ASC`
	var profiles []models.StudentProfileDetail
	if err := r.db.SelectContext(ctx, &profiles, query, batchID); err != nil {
		return nil, fmt.Errorf("list batch students: %w", err)
	}
	return profiles, nil
}
