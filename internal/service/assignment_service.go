package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campusmesh/sams-api/internal/models"
	"github.com/campusmesh/sams-api/internal/repository"
	appErrors "github.com/campusmesh/sams-api/pkg/errors"
)

type assignmentRepository interface {
	Create(ctx context.Context, assignment *models.TeacherCourse) error
	Delete(ctx context.Context, teacherID, courseID string) error
	List(ctx context.Context, filter models.TeacherCourseFilter) ([]models.TeacherCourseDetail, int, error)
}

type userReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type courseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

// AssignTeacherRequest links a teacher to a course.
type AssignTeacherRequest struct {
	TeacherID string `json:"teacher_id" validate:"required,uuid4"`
	CourseID  string `json:"course_id" validate:"required,uuid4"`
}

// AssignmentService manages which teacher delivers which course.
type AssignmentService struct {
	repo      assignmentRepository
	users     userReader
	courses   courseReader
	guard     authorizer
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAssignmentService constructs an AssignmentService.
func NewAssignmentService(repo assignmentRepository, users userReader, courses courseReader, guard authorizer, validate *validator.Validate, logger *zap.Logger) *AssignmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssignmentService{repo: repo, users: users, courses: courses, guard: guard, validator: validate, logger: logger}
}

// Assign links a teacher to a course. The user must hold the TEACHER role
// and assigning the same pair twice is rejected.
func (s *AssignmentService) Assign(ctx context.Context, actor models.Actor, req AssignTeacherRequest) (*models.TeacherCourse, error) {
	if err := s.guard.Authorize(ctx, actor, models.OpAssignWrite, models.Resource{}); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}

	teacher, err := s.users.FindByID(ctx, req.TeacherID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch teacher")
	}
	if teacher.Role != models.RoleTeacher {
		return nil, appErrors.Clone(appErrors.ErrValidation, "user is not a teacher")
	}

	if _, err := s.courses.FindByID(ctx, req.CourseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch course")
	}

	assignment := &models.TeacherCourse{
		TeacherID: req.TeacherID,
		CourseID:  req.CourseID,
	}
	if err := s.repo.Create(ctx, assignment); err != nil {
		if repository.IsUniqueViolation(err, "") {
			return nil, appErrors.Clone(appErrors.ErrDuplicateAssignment, "teacher is already assigned to this course")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create assignment")
	}

	s.logger.Info("teacher assigned",
		zap.String("teacher_id", assignment.TeacherID),
		zap.String("course_id", assignment.CourseID))
	return assignment, nil
}

// Unassign removes the link between a teacher and a course. Sessions the
// teacher already recorded stay in place.
func (s *AssignmentService) Unassign(ctx context.Context, actor models.Actor, teacherID, courseID string) error {
	if err := s.guard.Authorize(ctx, actor, models.OpAssignWrite, models.Resource{}); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, teacherID, courseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete assignment")
	}

	s.logger.Info("teacher unassigned", zap.String("teacher_id", teacherID), zap.String("course_id", courseID))
	return nil
}

// List returns assignments matching the filter together with pagination info.
func (s *AssignmentService) List(ctx context.Context, filter models.TeacherCourseFilter) ([]models.TeacherCourseDetail, *models.Pagination, error) {
	assignments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assignments")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return assignments, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}
