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

type departmentRepository interface {
	Create(ctx context.Context, department *models.Department) error
	FindByID(ctx context.Context, id string) (*models.Department, error)
	List(ctx context.Context, filter models.DepartmentFilter) ([]models.Department, int, error)
	Update(ctx context.Context, department *models.Department) error
	Delete(ctx context.Context, id string) error
}

// CreateDepartmentRequest carries the fields for a new department.
type CreateDepartmentRequest struct {
	Code string `json:"code" validate:"required,max=20"`
	Name string `json:"name" validate:"required,max=150"`
}

// UpdateDepartmentRequest carries the mutable department fields.
type UpdateDepartmentRequest struct {
	Code *string `json:"code" validate:"omitempty,max=20"`
	Name *string `json:"name" validate:"omitempty,max=150"`
}

// DepartmentService manages the top level of the academic hierarchy.
type DepartmentService struct {
	repo      departmentRepository
	guard     authorizer
	validator *validator.Validate
	logger    *zap.Logger
}

// NewDepartmentService constructs a DepartmentService.
func NewDepartmentService(repo departmentRepository, guard authorizer, validate *validator.Validate, logger *zap.Logger) *DepartmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DepartmentService{repo: repo, guard: guard, validator: validate, logger: logger}
}

// Create registers a new department. Duplicate codes or names are rejected
// by the store's unique constraints.
func (s *DepartmentService) Create(ctx context.Context, actor models.Actor, req CreateDepartmentRequest) (*models.Department, error) {
	if err := s.guard.Authorize(ctx, actor, models.OpHierarchyWrite, models.Resource{}); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid department payload")
	}

	department := &models.Department{
		Code: req.Code,
		Name: req.Name,
	}
	if err := s.repo.Create(ctx, department); err != nil {
		if repository.IsUniqueViolation(err, "") {
			return nil, appErrors.Clone(appErrors.ErrDuplicateEntity, "department code or name already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create department")
	}

	s.logger.Info("department created", zap.String("department_id", department.ID), zap.String("code", department.Code))
	return department, nil
}

// Get returns a single department by ID.
func (s *DepartmentService) Get(ctx context.Context, id string) (*models.Department, error) {
	department, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "department not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch department")
	}
	return department, nil
}

// List returns departments matching the filter together with pagination info.
func (s *DepartmentService) List(ctx context.Context, filter models.DepartmentFilter) ([]models.Department, *models.Pagination, error) {
	departments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list departments")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return departments, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Update modifies department code and/or name.
func (s *DepartmentService) Update(ctx context.Context, actor models.Actor, id string, req UpdateDepartmentRequest) (*models.Department, error) {
	if err := s.guard.Authorize(ctx, actor, models.OpHierarchyWrite, models.Resource{}); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid department payload")
	}

	department, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "department not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch department")
	}

	if req.Code != nil {
		department.Code = *req.Code
	}
	if req.Name != nil {
		department.Name = *req.Name
	}

	if err := s.repo.Update(ctx, department); err != nil {
		if repository.IsUniqueViolation(err, "") {
			return nil, appErrors.Clone(appErrors.ErrDuplicateEntity, "department code or name already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update department")
	}
	return department, nil
}

// Delete removes a department without dependents. Departments still
// referenced by programs, batches or courses produce a conflict.
func (s *DepartmentService) Delete(ctx context.Context, actor models.Actor, id string) error {
	if err := s.guard.Authorize(ctx, actor, models.OpHierarchyWrite, models.Resource{}); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "department not found")
		}
		if repository.IsForeignKeyViolation(err) {
			return appErrors.Clone(appErrors.ErrConflict, "department still has programs, batches or courses")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete department")
	}

	s.logger.Info("department deleted", zap.String("department_id", id))
	return nil
}
