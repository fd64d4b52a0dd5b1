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

type programRepository interface {
	Create(ctx context.Context, program *models.Program) error
	FindByID(ctx context.Context, id string) (*models.Program, error)
	List(ctx context.Context, filter models.ProgramFilter) ([]models.ProgramDetail, int, error)
	Update(ctx context.Context, program *models.Program) error
	Delete(ctx context.Context, id string) error
}

type departmentReader interface {
	FindByID(ctx context.Context, id string) (*models.Department, error)
}

// CreateProgramRequest carries the fields for a new program.
type CreateProgramRequest struct {
	DepartmentID string `json:"department_id" validate:"required,uuid4"`
	Code         string `json:"code" validate:"required,max=20"`
	Name         string `json:"name" validate:"required,max=150"`
}

// UpdateProgramRequest carries the mutable program fields.
type UpdateProgramRequest struct {
	Code *string `json:"code" validate:"omitempty,max=20"`
	Name *string `json:"name" validate:"omitempty,max=150"`
}

// ProgramService manages study programs under a department.
type ProgramService struct {
	repo        programRepository
	departments departmentReader
	guard       authorizer
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewProgramService constructs a ProgramService.
func NewProgramService(repo programRepository, departments departmentReader, guard authorizer, validate *validator.Validate, logger *zap.Logger) *ProgramService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProgramService{repo: repo, departments: departments, guard: guard, validator: validate, logger: logger}
}

// Create registers a new program under an existing department.
func (s *ProgramService) Create(ctx context.Context, actor models.Actor, req CreateProgramRequest) (*models.Program, error) {
	if err := s.guard.Authorize(ctx, actor, models.OpHierarchyWrite, models.Resource{}); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid program payload")
	}

	if _, err := s.departments.FindByID(ctx, req.DepartmentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "department not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch department")
	}

	program := &models.Program{
		DepartmentID: req.DepartmentID,
		Code:         req.Code,
		Name:         req.Name,
	}
	if err := s.repo.Create(ctx, program); err != nil {
		if repository.IsUniqueViolation(err, "") {
			return nil, appErrors.Clone(appErrors.ErrDuplicateEntity, "program code already exists in this department")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create program")
	}

	s.logger.Info("program created", zap.String("program_id", program.ID), zap.String("department_id", program.DepartmentID))
	return program, nil
}

// Get returns a single program by ID.
func (s *ProgramService) Get(ctx context.Context, id string) (*models.Program, error) {
	program, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "program not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch program")
	}
	return program, nil
}

// List returns programs matching the filter together with pagination info.
func (s *ProgramService) List(ctx context.Context, filter models.ProgramFilter) ([]models.ProgramDetail, *models.Pagination, error) {
	programs, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list programs")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return programs, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Update modifies program code and/or name. The owning department is fixed.
func (s *ProgramService) Update(ctx context.Context, actor models.Actor, id string, req UpdateProgramRequest) (*models.Program, error) {
	if err := s.guard.Authorize(ctx, actor, models.OpHierarchyWrite, models.Resource{}); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid program payload")
	}

	program, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "program not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch program")
	}

	if req.Code != nil {
		program.Code = *req.Code
	}
	if req.Name != nil {
		program.Name = *req.Name
	}

	if err := s.repo.Update(ctx, program); err != nil {
		if repository.IsUniqueViolation(err, "") {
			return nil, appErrors.Clone(appErrors.ErrDuplicateEntity, "program code already exists in this department")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update program")
	}
	return program, nil
}

// Delete removes a program without dependents.
func (s *ProgramService) Delete(ctx context.Context, actor models.Actor, id string) error {
	if err := s.guard.Authorize(ctx, actor, models.OpHierarchyWrite, models.Resource{}); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "program not found")
		}
		if repository.IsForeignKeyViolation(err) {
			return appErrors.Clone(appErrors.ErrConflict, "program still has batches")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete program")
	}

	s.logger.Info("program deleted", zap.String("program_id", id))
	return nil
}
