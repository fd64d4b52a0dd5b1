package models

import "time"

// Batch is a cohort of students admitted to a program in a given year.
type Batch struct {
	ID           string    `db:"id" json:"id"`
	DepartmentID string    `db:"department_id" json:"department_id"`
	ProgramID    string    `db:"program_id" json:"program_id"`
	StartYear    int       `db:"start_year" json:"start_year"`
	EndYear      int       `db:"end_year" json:"end_year"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// BatchDetail enriches Batch with descriptive parent fields.
type BatchDetail struct {
	Batch
	DepartmentName string `db:"department_name" json:"department_name"`
	ProgramName    string `db:"program_name" json:"program_name"`
}

// BatchFilter captures filtering criteria for listing batches.
type BatchFilter struct {
	DepartmentID string
	ProgramID    string
	StartYear    *int
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}
