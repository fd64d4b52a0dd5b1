package models

// CourseAttendanceRate summarises one student's attendance in one course.
// Attended counts PRESENT and LATE marks; Percentage is attended over
// sessions held, rounded to two decimals, and 0 when no sessions exist.
type CourseAttendanceRate struct {
	StudentID    string  `json:"student_id"`
	CourseID     string  `json:"course_id"`
	SessionsHeld int     `json:"sessions_held"`
	Present      int     `json:"present"`
	Late         int     `json:"late"`
	Absent       int     `json:"absent"`
	Attended     int     `json:"attended"`
	Percentage   float64 `json:"percentage"`
}

// SemesterAttendanceRate aggregates a student's attendance across all
// enrolled courses of a semester.
type SemesterAttendanceRate struct {
	StudentID    string                `json:"student_id"`
	SemesterID   string                `json:"semester_id"`
	SessionsHeld int                   `json:"sessions_held"`
	Attended     int                   `json:"attended"`
	Percentage   float64               `json:"percentage"`
	Courses      []StudentCourseReport `json:"courses"`
}

// StudentCourseReport is one course row in a student-facing report.
type StudentCourseReport struct {
	CourseID     string  `json:"course_id"`
	CourseCode   string  `json:"course_code"`
	CourseName   string  `json:"course_name"`
	SemesterID   string  `json:"semester_id"`
	SessionsHeld int     `json:"sessions_held"`
	Present      int     `json:"present"`
	Late         int     `json:"late"`
	Absent       int     `json:"absent"`
	Percentage   float64 `json:"percentage"`
}

// StudentCourseBreakdownRow is the flat per-course aggregation row scanned
// for a student, carrying the owning semester for grouping.
type StudentCourseBreakdownRow struct {
	CourseID       string `db:"course_id"`
	CourseCode     string `db:"course_code"`
	CourseName     string `db:"course_name"`
	SemesterID     string `db:"semester_id"`
	SemesterName   string `db:"semester_name"`
	SemesterNumber int    `db:"semester_number"`
	SessionsHeld   int    `db:"sessions_held"`
	Present        int    `db:"present"`
	Late           int    `db:"late"`
	Absent         int    `db:"absent"`
}

// CourseReportRow is one student row in a per-course report.
type CourseReportRow struct {
	StudentID    string  `db:"student_id" json:"student_id"`
	StudentName  string  `db:"student_name" json:"student_name"`
	StudentNo    *string `db:"student_no" json:"student_no,omitempty"`
	SessionsHeld int     `db:"sessions_held" json:"sessions_held"`
	Present      int     `db:"present" json:"present"`
	Late         int     `db:"late" json:"late"`
	Absent       int     `db:"absent" json:"absent"`
	Percentage   float64 `json:"percentage"`
}

// CourseReport is the admin/teacher report for one course.
type CourseReport struct {
	CourseID     string            `json:"course_id"`
	CourseCode   string            `json:"course_code"`
	CourseName   string            `json:"course_name"`
	SessionsHeld int               `json:"sessions_held"`
	Students     []CourseReportRow `json:"students"`
}

// SemesterGroup bundles the course reports of one semester.
type SemesterGroup struct {
	SemesterID     string                `json:"semester_id"`
	SemesterName   string                `json:"semester_name"`
	SemesterNumber int                   `json:"semester_number"`
	Courses        []StudentCourseReport `json:"courses"`
}

// StudentOverview groups a student's course rates by semester.
type StudentOverview struct {
	StudentID string          `json:"student_id"`
	Semesters []SemesterGroup `json:"semesters"`
}
