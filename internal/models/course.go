package models

import "time"

// Course is a taught unit placed in a department and semester.
type Course struct {
	ID           string    `db:"id" json:"id"`
	DepartmentID string    `db:"department_id" json:"department_id"`
	SemesterID   string    `db:"semester_id" json:"semester_id"`
	Code         string    `db:"code" json:"code"`
	Name         string    `db:"name" json:"name"`
	Credits      int       `db:"credits" json:"credits"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// CourseDetail enriches Course with descriptive parent fields.
type CourseDetail struct {
	Course
	DepartmentName string `db:"department_name" json:"department_name"`
	SemesterName   string `db:"semester_name" json:"semester_name"`
	SemesterNumber int    `db:"semester_number" json:"semester_number"`
}

// CourseFilter captures filtering criteria for listing courses.
type CourseFilter struct {
	DepartmentID string
	SemesterID   string
	TeacherID    string
	StudentID    string
	Search       string
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}
