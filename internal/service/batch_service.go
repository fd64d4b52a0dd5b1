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

type batchRepository interface {
	Create(ctx context.Context, batch *models.Batch) error
	FindByID(ctx context.Context, id string) (*models.Batch, error)
	List(ctx context.Context, filter models.BatchFilter) ([]models.BatchDetail, int, error)
	Update(ctx context.Context, batch *models.Batch) error
	Delete(ctx context.Context, id string) error
}

type programReader interface {
	FindByID(ctx context.Context, id string) (*models.Program, error)
}

// CreateBatchRequest carries the fields for a new batch.
type CreateBatchRequest struct {
	DepartmentID string `json:"department_id" validate:"required,uuid4"`
	ProgramID    string `json:"program_id" validate:"required,uuid4"`
	StartYear    int    `json:"start_year" validate:"required,min=2000,max=2100"`
	EndYear      int    `json:"end_year" validate:"required,min=2000,max=2100"`
}

// UpdateBatchRequest carries the mutable batch fields.
type UpdateBatchRequest struct {
	StartYear *int `json:"start_year" validate:"omitempty,min=2000,max=2100"`
	EndYear   *int `json:"end_year" validate:"omitempty,min=2000,max=2100"`
}

// BatchService manages student cohorts within a program.
type BatchService struct {
	repo      batchRepository
	programs  programReader
	guard     authorizer
	validator *validator.Validate
	logger    *zap.Logger
}

// NewBatchService constructs a BatchService.
func NewBatchService(repo batchRepository, programs programReader, guard authorizer, validate *validator.Validate, logger *zap.Logger) *BatchService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchService{repo: repo, programs: programs, guard: guard, validator: validate, logger: logger}
}

// Create registers a new batch. The program must exist and belong to the
// given department, and the year range must be ordered.
func (s *BatchService) Create(ctx context.Context, actor models.Actor, req CreateBatchRequest) (*models.Batch, error) {
	if err := s.guard.Authorize(ctx, actor, models.OpHierarchyWrite, models.Resource{}); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid batch payload")
	}
	if req.StartYear >= req.EndYear {
		return nil, appErrors.Clone(appErrors.ErrValidation, "start_year must be before end_year")
	}

	program, err := s.programs.FindByID(ctx, req.ProgramID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "program not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch program")
	}
	if program.DepartmentID != req.DepartmentID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "program does not belong to the given department")
	}

	batch := &models.Batch{
		DepartmentID: req.DepartmentID,
		ProgramID:    req.ProgramID,
		StartYear:    req.StartYear,
		EndYear:      req.EndYear,
	}
	if err := s.repo.Create(ctx, batch); err != nil {
		if repository.IsUniqueViolation(err, "") {
			return nil, appErrors.Clone(appErrors.ErrDuplicateEntity, "batch already exists for this program and start year")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create batch")
	}

	s.logger.Info("batch created", zap.String("batch_id", batch.ID), zap.Int("start_year", batch.StartYear))
	return batch, nil
}

// Get returns a single batch by ID.
func (s *BatchService) Get(ctx context.Context, id string) (*models.Batch, error) {
	batch, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "batch not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch batch")
	}
	return batch, nil
}

// List returns batches matching the filter together with pagination info.
func (s *BatchService) List(ctx context.Context, filter models.BatchFilter) ([]models.BatchDetail, *models.Pagination, error) {
	batches, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list batches")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return batches, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Update modifies the year range of a batch.
func (s *BatchService) Update(ctx context.Context, actor models.Actor, id string, req UpdateBatchRequest) (*models.Batch, error) {
	if err := s.guard.Authorize(ctx, actor, models.OpHierarchyWrite, models.Resource{}); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid batch payload")
	}

	batch, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "batch not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch batch")
	}

	if req.StartYear != nil {
		batch.StartYear = *req.StartYear
	}
	if req.EndYear != nil {
		batch.EndYear = *req.EndYear
	}
	if batch.StartYear >= batch.EndYear {
		return nil, appErrors.Clone(appErrors.ErrValidation, "start_year must be before end_year")
	}

	if err := s.repo.Update(ctx, batch); err != nil {
		if repository.IsUniqueViolation(err, "") {
			return nil, appErrors.Clone(appErrors.ErrDuplicateEntity, "batch already exists for this program and start year")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update batch")
	}
	return batch, nil
}

// Delete removes a batch without dependents.
func (s *BatchService) Delete(ctx context.Context, actor models.Actor, id string) error {
	if err := s.guard.Authorize(ctx, actor, models.OpHierarchyWrite, models.Resource{}); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "batch not found")
		}
		if repository.IsForeignKeyViolation(err) {
			return appErrors.Clone(appErrors.ErrConflict, "batch still has academic years or students")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete batch")
	}

	s.logger.Info("batch deleted", zap.String("batch_id", id))
	return nil
}
