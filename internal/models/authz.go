package models

// Actor identifies the authenticated user performing an operation.
type Actor struct {
	ID   string
	Role UserRole
}

// Operation names a guarded action on a resource.
type Operation string

const (
	OpHierarchyWrite   Operation = "hierarchy:write"
	OpUserWrite        Operation = "user:write"
	OpAssignWrite      Operation = "assignment:write"
	OpEnrollWrite      Operation = "enrollment:write"
	OpSessionCreate    Operation = "session:create"
	OpSessionUpdate    Operation = "session:update"
	OpAttendanceMark   Operation = "attendance:mark"
	OpCourseRead       Operation = "course:read"
	OpRosterRead       Operation = "roster:read"
	OpStudentRead      Operation = "student:read"
	OpCourseReportRead Operation = "report:course"
)

// Resource scopes a guarded operation to concrete entities. Zero fields
// simply do not constrain the check.
type Resource struct {
	CourseID  string
	SessionID string
	StudentID string
}
