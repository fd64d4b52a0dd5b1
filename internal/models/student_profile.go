package models

import "time"

// StudentProfile places a student user into a batch.
type StudentProfile struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	BatchID   string    `db:"batch_id" json:"batch_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// StudentProfileDetail enriches the profile with user and batch fields.
type StudentProfileDetail struct {
	StudentProfile
	FullName  string  `db:"full_name" json:"full_name"`
	StudentNo *string `db:"student_no" json:"student_no,omitempty"`
	StartYear int     `db:"start_year" json:"start_year"`
	EndYear   int     `db:"end_year" json:"end_year"`
}
