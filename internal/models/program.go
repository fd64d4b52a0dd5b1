package models

import "time"

// Program is a study program offered by a department.
type Program struct {
	ID           string    `db:"id" json:"id"`
	DepartmentID string    `db:"department_id" json:"department_id"`
	Code         string    `db:"code" json:"code"`
	Name         string    `db:"name" json:"name"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// ProgramDetail enriches Program with its department name.
type ProgramDetail struct {
	Program
	DepartmentName string `db:"department_name" json:"department_name"`
}

// ProgramFilter captures filtering criteria for listing programs.
type ProgramFilter struct {
	DepartmentID string
	Search       string
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}
