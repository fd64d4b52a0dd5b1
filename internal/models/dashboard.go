package models

// AdminDashboard aggregates entity counts and the overall attendance rate.
type AdminDashboard struct {
	Departments       int     `json:"departments"`
	Programs          int     `json:"programs"`
	Batches           int     `json:"batches"`
	Courses           int     `json:"courses"`
	Teachers          int     `json:"teachers"`
	Students          int     `json:"students"`
	SessionsHeld      int     `json:"sessions_held"`
	AverageAttendance float64 `json:"average_attendance"`
}

// TeacherCourseSummary is one assigned course on the teacher dashboard.
type TeacherCourseSummary struct {
	CourseID     string `db:"course_id" json:"course_id"`
	CourseCode   string `db:"course_code" json:"course_code"`
	CourseName   string `db:"course_name" json:"course_name"`
	Enrolled     int    `db:"enrolled" json:"enrolled"`
	SessionsHeld int    `db:"sessions_held" json:"sessions_held"`
}

// TeacherDashboard lists the teacher's courses with session counts.
type TeacherDashboard struct {
	TeacherID string                 `json:"teacher_id"`
	Courses   []TeacherCourseSummary `json:"courses"`
}

// StudentDashboard groups the student's attendance rates by semester.
type StudentDashboard struct {
	StudentID string          `json:"student_id"`
	Semesters []SemesterGroup `json:"semesters"`
}
