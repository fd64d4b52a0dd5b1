package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campusmesh/sams-api/internal/models"
	appErrors "github.com/campusmesh/sams-api/pkg/errors"
)

type attendanceRepository interface {
	Upsert(ctx context.Context, record *models.AttendanceRecord) (*models.AttendanceRecord, error)
	BulkUpsert(ctx context.Context, records []models.AttendanceRecord) error
	List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecordDetail, int, error)
	SessionRoster(ctx context.Context, sessionID, courseID string) ([]models.SessionRosterRow, error)
}

type sessionReader interface {
	FindByID(ctx context.Context, id string) (*models.AttendanceSession, error)
}

// MarkAttendanceRequest marks one student in a session.
type MarkAttendanceRequest struct {
	StudentID string                  `json:"student_id" validate:"required,uuid4"`
	Status    models.AttendanceStatus `json:"status" validate:"required"`
}

// BulkMarkItem is one student/status pair inside a bulk mark.
type BulkMarkItem struct {
	StudentID string                  `json:"student_id" validate:"required,uuid4"`
	Status    models.AttendanceStatus `json:"status" validate:"required"`
}

// BulkMarkRequest marks many students of one session in a single call.
type BulkMarkRequest struct {
	Items []BulkMarkItem `json:"items" validate:"required,min=1,dive"`
}

// AttendanceService records and reads per-session attendance marks.
type AttendanceService struct {
	repo        attendanceRepository
	sessions    sessionReader
	enrollments enrollmentChecker
	cache       reportCacheInvalidator
	guard       authorizer
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewAttendanceService constructs an AttendanceService.
func NewAttendanceService(repo attendanceRepository, sessions sessionReader, enrollments enrollmentChecker, cache reportCacheInvalidator, guard authorizer, validate *validator.Validate, logger *zap.Logger) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttendanceService{repo: repo, sessions: sessions, enrollments: enrollments, cache: cache, guard: guard, validator: validate, logger: logger}
}

// Mark writes one student's status for a session. Marking the same student
// twice overwrites the earlier mark, keeping exactly one record per student
// and session. The acting user is recorded as marked_by.
func (s *AttendanceService) Mark(ctx context.Context, actor models.Actor, sessionID string, req MarkAttendanceRequest) (*models.AttendanceRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload")
	}

	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch session")
	}
	if err := s.guard.Authorize(ctx, actor, models.OpAttendanceMark, models.Resource{CourseID: session.CourseID, SessionID: sessionID}); err != nil {
		return nil, err
	}

	if !req.Status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrInvalidStatus, "status must be PRESENT, ABSENT or LATE")
	}

	enrolled, err := s.enrollments.Exists(ctx, req.StudentID, session.CourseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}
	if !enrolled {
		return nil, appErrors.Clone(appErrors.ErrNotEnrolled, "student is not enrolled in this course")
	}

	record, err := s.repo.Upsert(ctx, &models.AttendanceRecord{
		SessionID: sessionID,
		StudentID: req.StudentID,
		Status:    req.Status,
		MarkedBy:  actor.ID,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark attendance")
	}

	s.invalidateReports(ctx)
	s.logger.Info("attendance marked",
		zap.String("session_id", sessionID),
		zap.String("student_id", req.StudentID),
		zap.String("status", string(req.Status)))
	return record, nil
}

// BulkMark writes many marks for one session best-effort. Items that fail
// their checks are reported back without failing the batch; a payload that
// names the same student twice is rejected outright.
func (s *AttendanceService) BulkMark(ctx context.Context, actor models.Actor, sessionID string, req BulkMarkRequest) (*models.BulkMarkResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk attendance payload")
	}

	seen := make(map[string]bool, len(req.Items))
	for _, item := range req.Items {
		if seen[item.StudentID] {
			return nil, appErrors.Clone(appErrors.ErrValidation, "duplicate student_id in payload")
		}
		seen[item.StudentID] = true
	}

	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch session")
	}
	if err := s.guard.Authorize(ctx, actor, models.OpAttendanceMark, models.Resource{CourseID: session.CourseID, SessionID: sessionID}); err != nil {
		return nil, err
	}

	result := &models.BulkMarkResult{SessionID: sessionID}
	records := make([]models.AttendanceRecord, 0, len(req.Items))
	for _, item := range req.Items {
		if !item.Status.Valid() {
			result.Conflicts = append(result.Conflicts, models.AttendanceMarkConflict{StudentID: item.StudentID, Reason: "invalid status"})
			continue
		}
		enrolled, err := s.enrollments.Exists(ctx, item.StudentID, session.CourseID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
		}
		if !enrolled {
			result.Conflicts = append(result.Conflicts, models.AttendanceMarkConflict{StudentID: item.StudentID, Reason: "not enrolled"})
			continue
		}
		records = append(records, models.AttendanceRecord{
			SessionID: sessionID,
			StudentID: item.StudentID,
			Status:    item.Status,
			MarkedBy:  actor.ID,
		})
	}

	if len(records) > 0 {
		if err := s.repo.BulkUpsert(ctx, records); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to bulk mark attendance")
		}
		s.invalidateReports(ctx)
	}
	result.Marked = len(records)

	s.logger.Info("bulk attendance marked",
		zap.String("session_id", sessionID),
		zap.Int("marked", result.Marked),
		zap.Int("conflicts", len(result.Conflicts)))
	return result, nil
}

// Roster returns the enrolled students of a session's course together with
// their current mark, if any, for the marking screen.
func (s *AttendanceService) Roster(ctx context.Context, actor models.Actor, sessionID string) ([]models.SessionRosterRow, error) {
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch session")
	}
	if err := s.guard.Authorize(ctx, actor, models.OpRosterRead, models.Resource{CourseID: session.CourseID, SessionID: sessionID}); err != nil {
		return nil, err
	}

	roster, err := s.repo.SessionRoster(ctx, sessionID, session.CourseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch session roster")
	}
	return roster, nil
}

// List returns attendance records matching the filter together with
// pagination info. Student actors are restricted to their own records and
// teacher actors to their assigned courses.
func (s *AttendanceService) List(ctx context.Context, actor models.Actor, filter models.AttendanceFilter) ([]models.AttendanceRecordDetail, *models.Pagination, error) {
	if actor.Role == models.RoleStudent {
		if filter.StudentID != "" && filter.StudentID != actor.ID {
			return nil, nil, appErrors.Clone(appErrors.ErrPermissionDenied, "students may only read their own attendance")
		}
		filter.StudentID = actor.ID
	}
	if actor.Role == models.RoleTeacher {
		filter.AssignedTeacherID = actor.ID
	}

	records, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attendance records")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	return records, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

func (s *AttendanceService) invalidateReports(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, "report:*"); err != nil {
		s.logger.Warn("failed to invalidate report cache", zap.Error(err))
	}
}
