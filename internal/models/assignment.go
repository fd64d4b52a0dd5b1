package models

import "time"

// TeacherCourse links a teacher to a course they deliver.
type TeacherCourse struct {
	ID        string    `db:"id" json:"id"`
	TeacherID string    `db:"teacher_id" json:"teacher_id"`
	CourseID  string    `db:"course_id" json:"course_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// TeacherCourseDetail enriches assignments with descriptive fields.
type TeacherCourseDetail struct {
	TeacherCourse
	TeacherName string `db:"teacher_name" json:"teacher_name"`
	CourseCode  string `db:"course_code" json:"course_code"`
	CourseName  string `db:"course_name" json:"course_name"`
}

// TeacherCourseFilter provides filters for listing assignments.
type TeacherCourseFilter struct {
	TeacherID string
	CourseID  string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
