package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/campusmesh/sams-api/internal/models"
	"github.com/campusmesh/sams-api/internal/repository"
	appErrors "github.com/campusmesh/sams-api/pkg/errors"
)

type userRepository interface {
	Create(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, id string) (*models.User, error)
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	Update(ctx context.Context, user *models.User) error
	Deactivate(ctx context.Context, id string) error
	RevokeUserRefreshTokens(ctx context.Context, userID string) error
}

type studentProfileRepository interface {
	Create(ctx context.Context, profile *models.StudentProfile) error
	UpdateBatch(ctx context.Context, userID, batchID string) error
}

// CreateUserRequest carries the fields for a new account. BatchID is
// required when the role is STUDENT and rejected otherwise.
type CreateUserRequest struct {
	Username   string          `json:"username" validate:"required,min=3,max=50"`
	Email      string          `json:"email" validate:"required,email"`
	Password   string          `json:"password" validate:"required,min=8"`
	FullName   string          `json:"full_name" validate:"required,max=150"`
	Role       models.UserRole `json:"role" validate:"required,oneof=ADMIN TEACHER STUDENT"`
	EmployeeNo *string         `json:"employee_no" validate:"omitempty,max=30"`
	StudentNo  *string         `json:"student_no" validate:"omitempty,max=30"`
	Phone      *string         `json:"phone" validate:"omitempty,max=20"`
	BatchID    string          `json:"batch_id" validate:"omitempty,uuid4"`
}

// UpdateUserRequest carries the mutable profile fields. Username and role
// are fixed at creation time and not accepted here.
type UpdateUserRequest struct {
	Email      *string `json:"email" validate:"omitempty,email"`
	FullName   *string `json:"full_name" validate:"omitempty,max=150"`
	EmployeeNo *string `json:"employee_no" validate:"omitempty,max=30"`
	StudentNo  *string `json:"student_no" validate:"omitempty,max=30"`
	Phone      *string `json:"phone" validate:"omitempty,max=20"`
	Active     *bool   `json:"active"`
	BatchID    *string `json:"batch_id" validate:"omitempty,uuid4"`
}

// UserService manages accounts for admins, teachers and students.
type UserService struct {
	repo      userRepository
	profiles  studentProfileRepository
	batches   batchReader
	guard     authorizer
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService constructs a UserService.
func NewUserService(repo userRepository, profiles studentProfileRepository, batches batchReader, guard authorizer, validate *validator.Validate, logger *zap.Logger) *UserService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{
		repo:      repo,
		profiles:  profiles,
		batches:   batches,
		guard:     guard,
		validator: validate,
		logger:    logger,
	}
}

// Create registers a new account. Students are placed into their batch via
// a student profile in the same call.
func (s *UserService) Create(ctx context.Context, actor models.Actor, req CreateUserRequest) (*models.User, error) {
	if err := s.guard.Authorize(ctx, actor, models.OpUserWrite, models.Resource{}); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid user payload")
	}
	if req.Role == models.RoleStudent && req.BatchID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "batch_id is required for students")
	}
	if req.Role != models.RoleStudent && req.BatchID != "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "only students belong to a batch")
	}
	if req.Role == models.RoleStudent {
		if _, err := s.batches.FindByID(ctx, req.BatchID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "batch not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch batch")
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: string(hash),
		FullName:     req.FullName,
		Role:         req.Role,
		EmployeeNo:   req.EmployeeNo,
		StudentNo:    req.StudentNo,
		Phone:        req.Phone,
		Active:       true,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		if repository.IsUniqueViolation(err, "") {
			return nil, appErrors.Clone(appErrors.ErrDuplicateEntity, "username or email already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}

	if req.Role == models.RoleStudent {
		profile := &models.StudentProfile{UserID: user.ID, BatchID: req.BatchID}
		if err := s.profiles.Create(ctx, profile); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student profile")
		}
	}

	s.logger.Info("user created",
		zap.String("user_id", user.ID),
		zap.String("username", user.Username),
		zap.String("role", string(user.Role)))
	return user, nil
}

// Get returns a single user. Admins may fetch anyone; other roles only
// their own record.
func (s *UserService) Get(ctx context.Context, actor models.Actor, id string) (*models.User, error) {
	if actor.Role != models.RoleAdmin && actor.ID != id {
		return nil, appErrors.Clone(appErrors.ErrPermissionDenied, "cannot view other users")
	}
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}
	return user, nil
}

// List returns users matching the filter. Admin only.
func (s *UserService) List(ctx context.Context, actor models.Actor, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	if err := s.guard.Authorize(ctx, actor, models.OpUserWrite, models.Resource{}); err != nil {
		return nil, nil, err
	}

	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return users, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Update modifies profile fields. The role never changes after creation;
// moving a student to another batch updates their profile.
func (s *UserService) Update(ctx context.Context, actor models.Actor, id string, req UpdateUserRequest) (*models.User, error) {
	if err := s.guard.Authorize(ctx, actor, models.OpUserWrite, models.Resource{}); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid user payload")
	}

	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}

	if req.BatchID != nil && user.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrValidation, "only students belong to a batch")
	}
	if req.Email != nil {
		user.Email = *req.Email
	}
	if req.FullName != nil {
		user.FullName = *req.FullName
	}
	if req.EmployeeNo != nil {
		user.EmployeeNo = req.EmployeeNo
	}
	if req.StudentNo != nil {
		user.StudentNo = req.StudentNo
	}
	if req.Phone != nil {
		user.Phone = req.Phone
	}
	if req.Active != nil {
		user.Active = *req.Active
	}

	if err := s.repo.Update(ctx, user); err != nil {
		if repository.IsUniqueViolation(err, "") {
			return nil, appErrors.Clone(appErrors.ErrDuplicateEntity, "email already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update user")
	}

	if req.BatchID != nil {
		if _, err := s.batches.FindByID(ctx, *req.BatchID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "batch not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch batch")
		}
		if err := s.profiles.UpdateBatch(ctx, user.ID, *req.BatchID); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to move student to batch")
		}
	}

	s.logger.Info("user updated", zap.String("user_id", user.ID))
	return user, nil
}

// Deactivate disables an account and revokes its refresh tokens. Attendance
// history and enrollments are left untouched.
func (s *UserService) Deactivate(ctx context.Context, actor models.Actor, id string) error {
	if err := s.guard.Authorize(ctx, actor, models.OpUserWrite, models.Resource{}); err != nil {
		return err
	}
	if actor.ID == id {
		return appErrors.Clone(appErrors.ErrValidation, "cannot deactivate your own account")
	}

	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}

	if err := s.repo.Deactivate(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate user")
	}
	if err := s.repo.RevokeUserRefreshTokens(ctx, id); err != nil {
		s.logger.Warn("failed to revoke refresh tokens for deactivated user", zap.String("user_id", id), zap.Error(err))
	}

	s.logger.Info("user deactivated", zap.String("user_id", id))
	return nil
}
