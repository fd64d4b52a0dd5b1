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

type academicYearRepository interface {
	Create(ctx context.Context, year *models.AcademicYear) error
	FindByID(ctx context.Context, id string) (*models.AcademicYear, error)
	List(ctx context.Context, filter models.AcademicYearFilter) ([]models.AcademicYear, int, error)
	Update(ctx context.Context, year *models.AcademicYear) error
	Delete(ctx context.Context, id string) error
}

type batchReader interface {
	FindByID(ctx context.Context, id string) (*models.Batch, error)
}

// CreateAcademicYearRequest carries the fields for a new academic year.
type CreateAcademicYearRequest struct {
	BatchID   string `json:"batch_id" validate:"required,uuid4"`
	YearLabel string `json:"year_label" validate:"required,max=20"`
}

// UpdateAcademicYearRequest carries the mutable academic year fields.
type UpdateAcademicYearRequest struct {
	YearLabel *string `json:"year_label" validate:"omitempty,max=20"`
}

// AcademicYearService manages study years within a batch.
type AcademicYearService struct {
	repo      academicYearRepository
	batches   batchReader
	guard     authorizer
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAcademicYearService constructs an AcademicYearService.
func NewAcademicYearService(repo academicYearRepository, batches batchReader, guard authorizer, validate *validator.Validate, logger *zap.Logger) *AcademicYearService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AcademicYearService{repo: repo, batches: batches, guard: guard, validator: validate, logger: logger}
}

// Create registers a new academic year under an existing batch.
func (s *AcademicYearService) Create(ctx context.Context, actor models.Actor, req CreateAcademicYearRequest) (*models.AcademicYear, error) {
	if err := s.guard.Authorize(ctx, actor, models.OpHierarchyWrite, models.Resource{}); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid academic year payload")
	}

	if _, err := s.batches.FindByID(ctx, req.BatchID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "batch not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch batch")
	}

	year := &models.AcademicYear{
		BatchID:   req.BatchID,
		YearLabel: req.YearLabel,
	}
	if err := s.repo.Create(ctx, year); err != nil {
		if repository.IsUniqueViolation(err, "") {
			return nil, appErrors.Clone(appErrors.ErrDuplicateEntity, "academic year already exists in this batch")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create academic year")
	}

	s.logger.Info("academic year created", zap.String("academic_year_id", year.ID), zap.String("batch_id", year.BatchID))
	return year, nil
}

// Get returns a single academic year by ID.
func (s *AcademicYearService) Get(ctx context.Context, id string) (*models.AcademicYear, error) {
	year, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "academic year not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch academic year")
	}
	return year, nil
}

// List returns academic years matching the filter together with pagination info.
func (s *AcademicYearService) List(ctx context.Context, filter models.AcademicYearFilter) ([]models.AcademicYear, *models.Pagination, error) {
	years, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list academic years")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return years, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Update modifies the label of an academic year.
func (s *AcademicYearService) Update(ctx context.Context, actor models.Actor, id string, req UpdateAcademicYearRequest) (*models.AcademicYear, error) {
	if err := s.guard.Authorize(ctx, actor, models.OpHierarchyWrite, models.Resource{}); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid academic year payload")
	}

	year, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "academic year not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch academic year")
	}

	if req.YearLabel != nil {
		year.YearLabel = *req.YearLabel
	}

	if err := s.repo.Update(ctx, year); err != nil {
		if repository.IsUniqueViolation(err, "") {
			return nil, appErrors.Clone(appErrors.ErrDuplicateEntity, "academic year already exists in this batch")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update academic year")
	}
	return year, nil
}

// Delete removes an academic year without dependents.
func (s *AcademicYearService) Delete(ctx context.Context, actor models.Actor, id string) error {
	if err := s.guard.Authorize(ctx, actor, models.OpHierarchyWrite, models.Resource{}); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "academic year not found")
		}
		if repository.IsForeignKeyViolation(err) {
			return appErrors.Clone(appErrors.ErrConflict, "academic year still has semesters")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete academic year")
	}

	s.logger.Info("academic year deleted", zap.String("academic_year_id", id))
	return nil
}
