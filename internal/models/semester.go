package models

import "time"

// Semester is a numbered term within an academic year.
type Semester struct {
	ID             string    `db:"id" json:"id"`
	AcademicYearID string    `db:"academic_year_id" json:"academic_year_id"`
	Number         int       `db:"number" json:"number"`
	Name           string    `db:"name" json:"name"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// SemesterFilter captures filtering criteria for listing semesters.
type SemesterFilter struct {
	AcademicYearID string
	Page           int
	PageSize       int
	SortBy         string
	SortOrder      string
}
