package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/campusmesh/sams-api/internal/models"
	appErrors "github.com/campusmesh/sams-api/pkg/errors"
)

type assignmentChecker interface {
	Exists(ctx context.Context, teacherID, courseID string) (bool, error)
}

type enrollmentChecker interface {
	Exists(ctx context.Context, studentID, courseID string) (bool, error)
}

// authorizer is the slice of Guard the other services depend on.
type authorizer interface {
	Authorize(ctx context.Context, actor models.Actor, op models.Operation, res models.Resource) error
}

// Guard is the single authorization decision point. Services consult it
// before any state change so a denied operation never partially executes.
type Guard struct {
	assignments assignmentChecker
	enrollments enrollmentChecker
	logger      *zap.Logger
}

// NewGuard constructs the Guard.
func NewGuard(assignments assignmentChecker, enrollments enrollmentChecker, logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{assignments: assignments, enrollments: enrollments, logger: logger}
}

// Authorize returns nil when the actor may perform op on the resource and
// a permission error otherwise. Admins pass every check. Teachers pass
// course-scoped operations only for courses they are assigned to. Students
// only read their own data and never write.
func (g *Guard) Authorize(ctx context.Context, actor models.Actor, op models.Operation, res models.Resource) error {
	if actor.ID == "" || !actor.Role.Valid() {
		return appErrors.Clone(appErrors.ErrPermissionDenied, "unknown actor")
	}

	switch actor.Role {
	case models.RoleAdmin:
		return nil
	case models.RoleTeacher:
		return g.authorizeTeacher(ctx, actor, op, res)
	case models.RoleStudent:
		return g.authorizeStudent(actor, op, res)
	}
	return g.deny(actor, op)
}

func (g *Guard) authorizeTeacher(ctx context.Context, actor models.Actor, op models.Operation, res models.Resource) error {
	switch op {
	case models.OpSessionCreate, models.OpSessionUpdate, models.OpAttendanceMark,
		models.OpCourseRead, models.OpRosterRead, models.OpCourseReportRead:
		if res.CourseID == "" {
			return g.deny(actor, op)
		}
		assigned, err := g.assignments.Exists(ctx, actor.ID, res.CourseID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check assignment")
		}
		if !assigned {
			return g.deny(actor, op)
		}
		return nil
	case models.OpStudentRead:
		// A teacher may read one student's data only scoped to a course the
		// teacher delivers and the student attends.
		if res.CourseID == "" || res.StudentID == "" {
			return g.deny(actor, op)
		}
		assigned, err := g.assignments.Exists(ctx, actor.ID, res.CourseID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check assignment")
		}
		if !assigned {
			return g.deny(actor, op)
		}
		enrolled, err := g.enrollments.Exists(ctx, res.StudentID, res.CourseID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
		}
		if !enrolled {
			return g.deny(actor, op)
		}
		return nil
	default:
		return g.deny(actor, op)
	}
}

func (g *Guard) authorizeStudent(actor models.Actor, op models.Operation, res models.Resource) error {
	if op == models.OpStudentRead && res.StudentID == actor.ID {
		return nil
	}
	return g.deny(actor, op)
}

func (g *Guard) deny(actor models.Actor, op models.Operation) error {
	g.logger.Warn("authorization denied",
		zap.String("actor_id", actor.ID),
		zap.String("role", string(actor.Role)),
		zap.String("operation", string(op)),
	)
	return appErrors.Clone(appErrors.ErrPermissionDenied, "operation not permitted for role")
}
