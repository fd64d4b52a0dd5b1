package models

import "time"

// AcademicYear is one study year within a batch, e.g. "2024-2025".
type AcademicYear struct {
	ID        string    `db:"id" json:"id"`
	BatchID   string    `db:"batch_id" json:"batch_id"`
	YearLabel string    `db:"year_label" json:"year_label"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// AcademicYearFilter captures filtering criteria for listing academic years.
type AcademicYearFilter struct {
	BatchID   string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
