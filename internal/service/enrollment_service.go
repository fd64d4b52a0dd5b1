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

type enrollmentRepository interface {
	Create(ctx context.Context, enrollment *models.StudentCourse) error
	Delete(ctx context.Context, studentID, courseID string) error
	List(ctx context.Context, filter models.StudentCourseFilter) ([]models.StudentCourseDetail, int, error)
	BulkInsert(ctx context.Context, courseID string, studentIDs []string) ([]string, []string, error)
}

// EnrollStudentRequest links a student to a course.
type EnrollStudentRequest struct {
	StudentID string `json:"student_id" validate:"required,uuid4"`
	CourseID  string `json:"course_id" validate:"required,uuid4"`
}

// BulkEnrollRequest enrolls many students into one course.
type BulkEnrollRequest struct {
	CourseID   string   `json:"course_id" validate:"required,uuid4"`
	StudentIDs []string `json:"student_ids" validate:"required,min=1,dive,uuid4"`
}

// EnrollmentService manages which student attends which course.
type EnrollmentService struct {
	repo      enrollmentRepository
	users     userReader
	courses   courseReader
	guard     authorizer
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEnrollmentService constructs an EnrollmentService.
func NewEnrollmentService(repo enrollmentRepository, users userReader, courses courseReader, guard authorizer, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{repo: repo, users: users, courses: courses, guard: guard, validator: validate, logger: logger}
}

// Enroll links a student to a course. The user must hold the STUDENT role
// and enrolling the same pair twice is rejected.
func (s *EnrollmentService) Enroll(ctx context.Context, actor models.Actor, req EnrollStudentRequest) (*models.StudentCourse, error) {
	if err := s.guard.Authorize(ctx, actor, models.OpEnrollWrite, models.Resource{}); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	student, err := s.users.FindByID(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch student")
	}
	if student.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrValidation, "user is not a student")
	}

	if _, err := s.courses.FindByID(ctx, req.CourseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch course")
	}

	enrollment := &models.StudentCourse{
		StudentID: req.StudentID,
		CourseID:  req.CourseID,
	}
	if err := s.repo.Create(ctx, enrollment); err != nil {
		if repository.IsUniqueViolation(err, "") {
			return nil, appErrors.Clone(appErrors.ErrDuplicateAssignment, "student is already enrolled in this course")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}

	s.logger.Info("student enrolled",
		zap.String("student_id", enrollment.StudentID),
		zap.String("course_id", enrollment.CourseID))
	return enrollment, nil
}

// Unenroll removes the link between a student and a course. Attendance
// records already written for the student are kept, so re-enrolling later
// resumes with the old history intact.
func (s *EnrollmentService) Unenroll(ctx context.Context, actor models.Actor, studentID, courseID string) error {
	if err := s.guard.Authorize(ctx, actor, models.OpEnrollWrite, models.Resource{}); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, studentID, courseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete enrollment")
	}

	s.logger.Info("student unenrolled", zap.String("student_id", studentID), zap.String("course_id", courseID))
	return nil
}

// List returns enrollments matching the filter together with pagination info.
// Teacher actors only see enrollments of their assigned courses.
func (s *EnrollmentService) List(ctx context.Context, actor models.Actor, filter models.StudentCourseFilter) ([]models.StudentCourseDetail, *models.Pagination, error) {
	if actor.Role == models.RoleTeacher {
		filter.AssignedTeacherID = actor.ID
	}

	enrollments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return enrollments, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// BulkEnroll enrolls many students into one course best-effort. Unknown or
// non-student IDs are skipped with a reason, already enrolled students are
// skipped by the store, and every skip is reported in the result. The batch
// never fails because of individual items.
func (s *EnrollmentService) BulkEnroll(ctx context.Context, actor models.Actor, req BulkEnrollRequest) (*models.BulkEnrollmentResult, error) {
	if err := s.guard.Authorize(ctx, actor, models.OpEnrollWrite, models.Resource{}); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk enrollment payload")
	}

	if _, err := s.courses.FindByID(ctx, req.CourseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch course")
	}

	result := &models.BulkEnrollmentResult{
		CourseID: req.CourseID,
		Enrolled: []string{},
		Skipped:  []models.EnrollmentSkip{},
	}

	candidates := make([]string, 0, len(req.StudentIDs))
	seen := make(map[string]bool, len(req.StudentIDs))
	for _, studentID := range req.StudentIDs {
		if seen[studentID] {
			continue
		}
		seen[studentID] = true

		student, err := s.users.FindByID(ctx, studentID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				result.Skipped = append(result.Skipped, models.EnrollmentSkip{StudentID: studentID, Reason: "student not found"})
				continue
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch student")
		}
		if student.Role != models.RoleStudent {
			result.Skipped = append(result.Skipped, models.EnrollmentSkip{StudentID: studentID, Reason: "user is not a student"})
			continue
		}
		candidates = append(candidates, studentID)
	}

	enrolled, alreadyEnrolled, err := s.repo.BulkInsert(ctx, req.CourseID, candidates)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to bulk enroll students")
	}
	result.Enrolled = append(result.Enrolled, enrolled...)
	for _, studentID := range alreadyEnrolled {
		result.Skipped = append(result.Skipped, models.EnrollmentSkip{StudentID: studentID, Reason: "already enrolled"})
	}

	s.logger.Info("bulk enrollment finished",
		zap.String("course_id", req.CourseID),
		zap.Int("enrolled", len(result.Enrolled)),
		zap.Int("skipped", len(result.Skipped)))
	return result, nil
}
