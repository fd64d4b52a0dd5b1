package models

import "time"

// StudentCourse captures a student's enrollment in a course.
type StudentCourse struct {
	ID         string    `db:"id" json:"id"`
	StudentID  string    `db:"student_id" json:"student_id"`
	CourseID   string    `db:"course_id" json:"course_id"`
	EnrolledAt time.Time `db:"enrolled_at" json:"enrolled_at"`
}

// StudentCourseDetail enriches StudentCourse with student and course info.
type StudentCourseDetail struct {
	StudentCourse
	StudentName string  `db:"student_name" json:"student_name"`
	StudentNo   *string `db:"student_no" json:"student_no,omitempty"`
	CourseCode  string  `db:"course_code" json:"course_code"`
	CourseName  string  `db:"course_name" json:"course_name"`
}

// StudentCourseFilter provides filters for listing enrollments.
// AssignedTeacherID restricts rows to courses the teacher is assigned to.
type StudentCourseFilter struct {
	StudentID         string
	CourseID          string
	AssignedTeacherID string
	Page              int
	PageSize          int
	SortBy            string
	SortOrder         string
}

// EnrollmentSkip reports one student left out of a bulk enrollment.
type EnrollmentSkip struct {
	StudentID string `json:"student_id"`
	Reason    string `json:"reason"`
}

// BulkEnrollmentResult reports the outcome of a bulk enrollment.
type BulkEnrollmentResult struct {
	CourseID string           `json:"course_id"`
	Enrolled []string         `json:"enrolled"`
	Skipped  []EnrollmentSkip `json:"skipped"`
}
