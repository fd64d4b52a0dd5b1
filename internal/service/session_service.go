package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campusmesh/sams-api/internal/models"
	"github.com/campusmesh/sams-api/internal/repository"
	appErrors "github.com/campusmesh/sams-api/pkg/errors"
)

type sessionRepository interface {
	Create(ctx context.Context, session *models.AttendanceSession) error
	FindByID(ctx context.Context, id string) (*models.AttendanceSession, error)
	FindDetailByID(ctx context.Context, id string) (*models.AttendanceSessionDetail, error)
	List(ctx context.Context, filter models.AttendanceSessionFilter) ([]models.AttendanceSessionDetail, int, error)
	Update(ctx context.Context, session *models.AttendanceSession) error
	Delete(ctx context.Context, id string) error
}

type reportCacheInvalidator interface {
	DeleteByPattern(ctx context.Context, pattern string) error
}

const (
	sessionDateLayout = "2006-01-02"
	sessionTimeLayout = "15:04"
)

// CreateSessionRequest carries the fields for a new attendance session.
// TeacherID is only honored for admin actors; teachers always record
// sessions under their own ID.
type CreateSessionRequest struct {
	CourseID  string  `json:"course_id" validate:"required,uuid4"`
	TeacherID string  `json:"teacher_id" validate:"omitempty,uuid4"`
	Date      string  `json:"date" validate:"required"`
	StartTime string  `json:"start_time" validate:"required"`
	EndTime   string  `json:"end_time" validate:"required"`
	Topic     *string `json:"topic" validate:"omitempty,max=255"`
}

// UpdateSessionRequest carries the mutable session fields.
type UpdateSessionRequest struct {
	Date      *string `json:"date"`
	StartTime *string `json:"start_time"`
	EndTime   *string `json:"end_time"`
	Topic     *string `json:"topic" validate:"omitempty,max=255"`
}

// SessionService manages attendance sessions for courses.
type SessionService struct {
	repo      sessionRepository
	courses   courseReader
	users     userReader
	cache     reportCacheInvalidator
	guard     authorizer
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSessionService constructs a SessionService.
func NewSessionService(repo sessionRepository, courses courseReader, users userReader, cache reportCacheInvalidator, guard authorizer, validate *validator.Validate, logger *zap.Logger) *SessionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{repo: repo, courses: courses, users: users, cache: cache, guard: guard, validator: validate, logger: logger}
}

// Create opens a new session for a course. Teachers must be assigned to the
// course; a second session on the same course, date and start time is
// rejected.
func (s *SessionService) Create(ctx context.Context, actor models.Actor, req CreateSessionRequest) (*models.AttendanceSession, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload")
	}
	if err := s.guard.Authorize(ctx, actor, models.OpSessionCreate, models.Resource{CourseID: req.CourseID}); err != nil {
		return nil, err
	}

	if _, err := s.courses.FindByID(ctx, req.CourseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch course")
	}

	date, err := time.Parse(sessionDateLayout, req.Date)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "date must be formatted as YYYY-MM-DD")
	}
	start, err := time.Parse(sessionTimeLayout, req.StartTime)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "start_time must be formatted as HH:MM")
	}
	end, err := time.Parse(sessionTimeLayout, req.EndTime)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end_time must be formatted as HH:MM")
	}
	if !end.After(start) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end_time must be after start_time")
	}

	teacherID, err := s.resolveSessionTeacher(ctx, actor, req.TeacherID)
	if err != nil {
		return nil, err
	}

	session := &models.AttendanceSession{
		CourseID:  req.CourseID,
		TeacherID: teacherID,
		Date:      date,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Topic:     req.Topic,
	}
	if err := s.repo.Create(ctx, session); err != nil {
		if repository.IsUniqueViolation(err, "") {
			return nil, appErrors.Clone(appErrors.ErrDuplicateEntity, "a session already exists for this course, date and start time")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create session")
	}

	s.invalidateReports(ctx)
	s.logger.Info("session created",
		zap.String("session_id", session.ID),
		zap.String("course_id", session.CourseID),
		zap.String("date", req.Date))
	return session, nil
}

// Get returns a session with course info, per-status counts and the derived
// closed flag.
func (s *SessionService) Get(ctx context.Context, actor models.Actor, id string) (*models.AttendanceSessionDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch session")
	}
	if err := s.guard.Authorize(ctx, actor, models.OpRosterRead, models.Resource{CourseID: detail.CourseID, SessionID: id}); err != nil {
		return nil, err
	}
	detail.Closed = sessionClosed(detail)
	return detail, nil
}

// List returns sessions matching the filter together with pagination info.
// Teacher actors only see sessions of their assigned courses.
func (s *SessionService) List(ctx context.Context, actor models.Actor, filter models.AttendanceSessionFilter) ([]models.AttendanceSessionDetail, *models.Pagination, error) {
	if actor.Role == models.RoleTeacher {
		filter.AssignedTeacherID = actor.ID
	}

	sessions, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}
	for i := range sessions {
		sessions[i].Closed = sessionClosed(&sessions[i])
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return sessions, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Update modifies the date, time window or topic of a session.
func (s *SessionService) Update(ctx context.Context, actor models.Actor, id string, req UpdateSessionRequest) (*models.AttendanceSession, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload")
	}

	session, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch session")
	}
	if err := s.guard.Authorize(ctx, actor, models.OpSessionUpdate, models.Resource{CourseID: session.CourseID, SessionID: id}); err != nil {
		return nil, err
	}

	if req.Date != nil {
		date, err := time.Parse(sessionDateLayout, *req.Date)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "date must be formatted as YYYY-MM-DD")
		}
		session.Date = date
	}
	if req.StartTime != nil {
		if _, err := time.Parse(sessionTimeLayout, *req.StartTime); err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "start_time must be formatted as HH:MM")
		}
		session.StartTime = *req.StartTime
	}
	if req.EndTime != nil {
		if _, err := time.Parse(sessionTimeLayout, *req.EndTime); err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "end_time must be formatted as HH:MM")
		}
		session.EndTime = *req.EndTime
	}
	start, err := time.Parse(sessionTimeLayout, session.StartTime)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "start_time must be formatted as HH:MM")
	}
	end, err := time.Parse(sessionTimeLayout, session.EndTime)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end_time must be formatted as HH:MM")
	}
	if !end.After(start) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end_time must be after start_time")
	}
	if req.Topic != nil {
		session.Topic = req.Topic
	}

	if err := s.repo.Update(ctx, session); err != nil {
		if repository.IsUniqueViolation(err, "") {
			return nil, appErrors.Clone(appErrors.ErrDuplicateEntity, "a session already exists for this course, date and start time")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update session")
	}

	s.invalidateReports(ctx)
	return session, nil
}

// Delete removes a session together with its attendance records.
func (s *SessionService) Delete(ctx context.Context, actor models.Actor, id string) error {
	session, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch session")
	}
	if err := s.guard.Authorize(ctx, actor, models.OpSessionUpdate, models.Resource{CourseID: session.CourseID, SessionID: id}); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete session")
	}

	s.invalidateReports(ctx)
	s.logger.Info("session deleted", zap.String("session_id", id), zap.String("course_id", session.CourseID))
	return nil
}

func (s *SessionService) resolveSessionTeacher(ctx context.Context, actor models.Actor, requested string) (string, error) {
	if actor.Role == models.RoleTeacher {
		return actor.ID, nil
	}
	if requested == "" {
		return "", appErrors.Clone(appErrors.ErrValidation, "teacher_id is required")
	}
	teacher, err := s.users.FindByID(ctx, requested)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch teacher")
	}
	if teacher.Role != models.RoleTeacher {
		return "", appErrors.Clone(appErrors.ErrValidation, "user is not a teacher")
	}
	return teacher.ID, nil
}

func (s *SessionService) invalidateReports(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, "report:*"); err != nil {
		s.logger.Warn("failed to invalidate report cache", zap.Error(err))
	}
}

// sessionClosed derives the session state. A session is closed once every
// enrolled student carries a mark. The flag never blocks further marking.
func sessionClosed(detail *models.AttendanceSessionDetail) bool {
	return detail.Enrolled > 0 && detail.Marked >= detail.Enrolled
}
