package models

import "time"

// AttendanceStatus represents the status for attendance records.
type AttendanceStatus string

const (
	AttendanceStatusPresent AttendanceStatus = "PRESENT"
	AttendanceStatusAbsent  AttendanceStatus = "ABSENT"
	AttendanceStatusLate    AttendanceStatus = "LATE"
)

// Valid returns true when the status is a supported value.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendanceStatusPresent, AttendanceStatusAbsent, AttendanceStatusLate:
		return true
	default:
		return false
	}
}

// CountsTowardAttendance reports whether the status counts as attended.
// Late arrivals count the same as present for attendance rates.
func (s AttendanceStatus) CountsTowardAttendance() bool {
	return s == AttendanceStatusPresent || s == AttendanceStatusLate
}

// AttendanceSession is one sitting of a course on a date.
type AttendanceSession struct {
	ID        string    `db:"id" json:"id"`
	CourseID  string    `db:"course_id" json:"course_id"`
	TeacherID string    `db:"teacher_id" json:"teacher_id"`
	Date      time.Time `db:"date" json:"date"`
	StartTime string    `db:"start_time" json:"start_time"`
	EndTime   string    `db:"end_time" json:"end_time"`
	Topic     *string   `db:"topic" json:"topic,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// AttendanceSessionDetail extends a session with course info and mark counts.
// Closed is derived: every enrolled student has a mark. It never blocks
// further marking.
type AttendanceSessionDetail struct {
	AttendanceSession
	CourseCode  string `db:"course_code" json:"course_code"`
	CourseName  string `db:"course_name" json:"course_name"`
	TeacherName string `db:"teacher_name" json:"teacher_name"`
	Enrolled    int    `db:"enrolled" json:"enrolled"`
	Present     int    `db:"present" json:"present"`
	Absent      int    `db:"absent" json:"absent"`
	Late        int    `db:"late" json:"late"`
	Marked      int    `db:"marked" json:"marked"`
	Closed      bool   `json:"closed"`
}

// AttendanceSessionFilter scopes session listing queries.
// AssignedTeacherID restricts rows to courses the teacher is assigned to,
// independent of who recorded the session.
type AttendanceSessionFilter struct {
	CourseID          string
	TeacherID         string
	AssignedTeacherID string
	DateFrom          *time.Time
	DateTo            *time.Time
	Page              int
	PageSize          int
	SortBy            string
	SortOrder         string
}

// AttendanceRecord is a single student's mark for a session.
type AttendanceRecord struct {
	ID        string           `db:"id" json:"id"`
	SessionID string           `db:"session_id" json:"session_id"`
	StudentID string           `db:"student_id" json:"student_id"`
	Status    AttendanceStatus `db:"status" json:"status"`
	MarkedBy  string           `db:"marked_by" json:"marked_by"`
	MarkedAt  time.Time        `db:"marked_at" json:"marked_at"`
	UpdatedAt time.Time        `db:"updated_at" json:"updated_at"`
}

// AttendanceRecordDetail extends a record with student and session info.
type AttendanceRecordDetail struct {
	AttendanceRecord
	StudentName string    `db:"student_name" json:"student_name"`
	StudentNo   *string   `db:"student_no" json:"student_no,omitempty"`
	CourseID    string    `db:"course_id" json:"course_id"`
	CourseName  string    `db:"course_name" json:"course_name"`
	Date        time.Time `db:"date" json:"date"`
}

// AttendanceFilter scopes attendance listing queries. AssignedTeacherID
// restricts rows to courses the teacher is assigned to.
type AttendanceFilter struct {
	SessionID         string
	StudentID         string
	CourseID          string
	AssignedTeacherID string
	Status            *AttendanceStatus
	DateFrom          *time.Time
	DateTo            *time.Time
	Page              int
	PageSize          int
	SortBy            string
	SortOrder         string
}

// SessionRosterRow pairs an enrolled student with their current mark, if any.
type SessionRosterRow struct {
	StudentID   string            `db:"student_id" json:"student_id"`
	StudentName string            `db:"student_name" json:"student_name"`
	StudentNo   *string           `db:"student_no" json:"student_no,omitempty"`
	Status      *AttendanceStatus `db:"status" json:"status,omitempty"`
	MarkedAt    *time.Time        `db:"marked_at" json:"marked_at,omitempty"`
}

// AttendanceMarkConflict reports one student skipped during a bulk mark.
type AttendanceMarkConflict struct {
	StudentID string `json:"student_id"`
	Reason    string `json:"reason"`
}

// BulkMarkResult reports the outcome of a bulk mark operation.
type BulkMarkResult struct {
	SessionID string                   `json:"session_id"`
	Marked    int                      `json:"marked"`
	Conflicts []AttendanceMarkConflict `json:"conflicts,omitempty"`
}
