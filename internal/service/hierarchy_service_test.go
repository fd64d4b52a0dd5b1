package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campusmesh/sams-api/internal/models"
	appErrors "github.com/campusmesh/sams-api/pkg/errors"
)

func fkViolation() error {
	return &pq.Error{Code: "23503"}
}

type fakeDepartmentRepo struct {
	departments map[string]*models.Department
	deleteErr   error
}

func (f *fakeDepartmentRepo) Create(_ context.Context, department *models.Department) error {
	department.ID = uuid.NewString()
	return nil
}

func (f *fakeDepartmentRepo) FindByID(_ context.Context, id string) (*models.Department, error) {
	if d, ok := f.departments[id]; ok {
		return d, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeDepartmentRepo) List(_ context.Context, _ models.DepartmentFilter) ([]models.Department, int, error) {
	return nil, 0, nil
}

func (f *fakeDepartmentRepo) Update(_ context.Context, _ *models.Department) error { return nil }

func (f *fakeDepartmentRepo) Delete(_ context.Context, _ string) error { return f.deleteErr }

type fakeProgramRepo struct {
	created   []*models.Program
	createErr error
}

func (f *fakeProgramRepo) Create(_ context.Context, program *models.Program) error {
	if f.createErr != nil {
		return f.createErr
	}
	program.ID = uuid.NewString()
	f.created = append(f.created, program)
	return nil
}

func (f *fakeProgramRepo) FindByID(_ context.Context, _ string) (*models.Program, error) {
	return nil, sql.ErrNoRows
}

func (f *fakeProgramRepo) List(_ context.Context, _ models.ProgramFilter) ([]models.ProgramDetail, int, error) {
	return nil, 0, nil
}

func (f *fakeProgramRepo) Update(_ context.Context, _ *models.Program) error { return nil }

func (f *fakeProgramRepo) Delete(_ context.Context, _ string) error { return nil }

type fakeYearRepo struct {
	created   []*models.AcademicYear
	createErr error
}

func (f *fakeYearRepo) Create(_ context.Context, year *models.AcademicYear) error {
	if f.createErr != nil {
		return f.createErr
	}
	year.ID = uuid.NewString()
	f.created = append(f.created, year)
	return nil
}

func (f *fakeYearRepo) FindByID(_ context.Context, _ string) (*models.AcademicYear, error) {
	return nil, sql.ErrNoRows
}

func (f *fakeYearRepo) List(_ context.Context, _ models.AcademicYearFilter) ([]models.AcademicYear, int, error) {
	return nil, 0, nil
}

func (f *fakeYearRepo) Update(_ context.Context, _ *models.AcademicYear) error { return nil }

func (f *fakeYearRepo) Delete(_ context.Context, _ string) error { return nil }

type stubBatchReader struct {
	batches map[string]*models.Batch
}

func (s *stubBatchReader) FindByID(_ context.Context, id string) (*models.Batch, error) {
	if b, ok := s.batches[id]; ok {
		return b, nil
	}
	return nil, sql.ErrNoRows
}

type fakeBatchRepo struct {
	created   []*models.Batch
	createErr error
}

func (f *fakeBatchRepo) Create(_ context.Context, batch *models.Batch) error {
	if f.createErr != nil {
		return f.createErr
	}
	batch.ID = uuid.NewString()
	f.created = append(f.created, batch)
	return nil
}

func (f *fakeBatchRepo) FindByID(_ context.Context, _ string) (*models.Batch, error) {
	return nil, sql.ErrNoRows
}

func (f *fakeBatchRepo) List(_ context.Context, _ models.BatchFilter) ([]models.BatchDetail, int, error) {
	return nil, 0, nil
}

func (f *fakeBatchRepo) Update(_ context.Context, _ *models.Batch) error { return nil }

func (f *fakeBatchRepo) Delete(_ context.Context, _ string) error { return nil }

type stubProgramReader struct {
	programs map[string]*models.Program
}

func (s *stubProgramReader) FindByID(_ context.Context, id string) (*models.Program, error) {
	if p, ok := s.programs[id]; ok {
		return p, nil
	}
	return nil, sql.ErrNoRows
}

type fakeSemesterRepo struct {
	created   []*models.Semester
	createErr error
}

func (f *fakeSemesterRepo) Create(_ context.Context, semester *models.Semester) error {
	if f.createErr != nil {
		return f.createErr
	}
	semester.ID = uuid.NewString()
	f.created = append(f.created, semester)
	return nil
}

func (f *fakeSemesterRepo) FindByID(_ context.Context, _ string) (*models.Semester, error) {
	return nil, sql.ErrNoRows
}

func (f *fakeSemesterRepo) List(_ context.Context, _ models.SemesterFilter) ([]models.Semester, int, error) {
	return nil, 0, nil
}

func (f *fakeSemesterRepo) Update(_ context.Context, _ *models.Semester) error { return nil }

func (f *fakeSemesterRepo) Delete(_ context.Context, _ string) error { return nil }

type stubYearReader struct {
	years map[string]*models.AcademicYear
}

func (s *stubYearReader) FindByID(_ context.Context, id string) (*models.AcademicYear, error) {
	if y, ok := s.years[id]; ok {
		return y, nil
	}
	return nil, sql.ErrNoRows
}

type fakeCourseRepo struct {
	created   []*models.Course
	createErr error
}

func (f *fakeCourseRepo) Create(_ context.Context, course *models.Course) error {
	if f.createErr != nil {
		return f.createErr
	}
	course.ID = uuid.NewString()
	f.created = append(f.created, course)
	return nil
}

func (f *fakeCourseRepo) FindByID(_ context.Context, _ string) (*models.Course, error) {
	return nil, sql.ErrNoRows
}

func (f *fakeCourseRepo) FindDetailByID(_ context.Context, _ string) (*models.CourseDetail, error) {
	return nil, sql.ErrNoRows
}

func (f *fakeCourseRepo) List(_ context.Context, _ models.CourseFilter) ([]models.CourseDetail, int, error) {
	return nil, 0, nil
}

func (f *fakeCourseRepo) Update(_ context.Context, _ *models.Course) error { return nil }

func (f *fakeCourseRepo) Delete(_ context.Context, _ string) error { return nil }

type stubSemesterReader struct {
	semesters map[string]*models.Semester
}

func (s *stubSemesterReader) FindByID(_ context.Context, id string) (*models.Semester, error) {
	if sem, ok := s.semesters[id]; ok {
		return sem, nil
	}
	return nil, sql.ErrNoRows
}

func TestProgramServiceCreateDuplicateCode(t *testing.T) {
	departmentID := uuid.NewString()
	svc := NewProgramService(&fakeProgramRepo{createErr: uniqueViolation()},
		&fakeDepartmentRepo{departments: map[string]*models.Department{departmentID: {ID: departmentID}}},
		allowAllGuard{}, nil, zap.NewNop())

	_, err := svc.Create(context.Background(), models.Actor{ID: "admin-1", Role: models.RoleAdmin}, CreateProgramRequest{
		DepartmentID: departmentID,
		Code:         "CS",
		Name:         "Computer Science",
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrDuplicateEntity.Code, appErr.Code)
	assert.Equal(t, 409, appErr.Status)
}

func TestProgramServiceCreateUnknownDepartment(t *testing.T) {
	svc := NewProgramService(&fakeProgramRepo{}, &fakeDepartmentRepo{}, allowAllGuard{}, nil, zap.NewNop())

	_, err := svc.Create(context.Background(), models.Actor{ID: "admin-1", Role: models.RoleAdmin}, CreateProgramRequest{
		DepartmentID: uuid.NewString(),
		Code:         "CS",
		Name:         "Computer Science",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestAcademicYearServiceCreateDuplicateLabel(t *testing.T) {
	batchID := uuid.NewString()
	svc := NewAcademicYearService(&fakeYearRepo{createErr: uniqueViolation()},
		&stubBatchReader{batches: map[string]*models.Batch{batchID: {ID: batchID}}},
		allowAllGuard{}, nil, zap.NewNop())

	_, err := svc.Create(context.Background(), models.Actor{ID: "admin-1", Role: models.RoleAdmin}, CreateAcademicYearRequest{
		BatchID:   batchID,
		YearLabel: "Year 1",
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrDuplicateEntity.Code, appErr.Code)
	assert.Equal(t, 409, appErr.Status)
}

func TestAcademicYearServiceCreateUnknownBatch(t *testing.T) {
	svc := NewAcademicYearService(&fakeYearRepo{}, &stubBatchReader{}, allowAllGuard{}, nil, zap.NewNop())

	_, err := svc.Create(context.Background(), models.Actor{ID: "admin-1", Role: models.RoleAdmin}, CreateAcademicYearRequest{
		BatchID:   uuid.NewString(),
		YearLabel: "Year 1",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestBatchServiceCreateRejectsUnorderedYears(t *testing.T) {
	departmentID := uuid.NewString()
	programID := uuid.NewString()
	svc := NewBatchService(&fakeBatchRepo{},
		&stubProgramReader{programs: map[string]*models.Program{
			programID: {ID: programID, DepartmentID: departmentID},
		}},
		allowAllGuard{}, nil, zap.NewNop())

	_, err := svc.Create(context.Background(), models.Actor{ID: "admin-1", Role: models.RoleAdmin}, CreateBatchRequest{
		DepartmentID: departmentID,
		ProgramID:    programID,
		StartYear:    2026,
		EndYear:      2024,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.Create(context.Background(), models.Actor{ID: "admin-1", Role: models.RoleAdmin}, CreateBatchRequest{
		DepartmentID: departmentID,
		ProgramID:    programID,
		StartYear:    2025,
		EndYear:      2025,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestBatchServiceCreateChecksProgramParent(t *testing.T) {
	departmentID := uuid.NewString()
	otherDepartment := uuid.NewString()
	programID := uuid.NewString()
	svc := NewBatchService(&fakeBatchRepo{},
		&stubProgramReader{programs: map[string]*models.Program{
			programID: {ID: programID, DepartmentID: otherDepartment},
		}},
		allowAllGuard{}, nil, zap.NewNop())
	admin := models.Actor{ID: "admin-1", Role: models.RoleAdmin}

	_, err := svc.Create(context.Background(), admin, CreateBatchRequest{
		DepartmentID: departmentID,
		ProgramID:    uuid.NewString(),
		StartYear:    2024,
		EndYear:      2027,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	_, err = svc.Create(context.Background(), admin, CreateBatchRequest{
		DepartmentID: departmentID,
		ProgramID:    programID,
		StartYear:    2024,
		EndYear:      2027,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestBatchServiceCreateDuplicate(t *testing.T) {
	departmentID := uuid.NewString()
	programID := uuid.NewString()
	svc := NewBatchService(&fakeBatchRepo{createErr: uniqueViolation()},
		&stubProgramReader{programs: map[string]*models.Program{
			programID: {ID: programID, DepartmentID: departmentID},
		}},
		allowAllGuard{}, nil, zap.NewNop())

	_, err := svc.Create(context.Background(), models.Actor{ID: "admin-1", Role: models.RoleAdmin}, CreateBatchRequest{
		DepartmentID: departmentID,
		ProgramID:    programID,
		StartYear:    2024,
		EndYear:      2027,
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrDuplicateEntity.Code, appErr.Code)
	assert.Equal(t, 409, appErr.Status)
}

func TestSemesterServiceCreateRejectsOutOfRangeNumber(t *testing.T) {
	yearID := uuid.NewString()
	svc := NewSemesterService(&fakeSemesterRepo{},
		&stubYearReader{years: map[string]*models.AcademicYear{yearID: {ID: yearID}}},
		allowAllGuard{}, nil, zap.NewNop())
	admin := models.Actor{ID: "admin-1", Role: models.RoleAdmin}

	for _, number := range []int{0, 9} {
		_, err := svc.Create(context.Background(), admin, CreateSemesterRequest{
			AcademicYearID: yearID,
			Number:         number,
			Name:           "Semester",
		})
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	}

	semester, err := svc.Create(context.Background(), admin, CreateSemesterRequest{
		AcademicYearID: yearID,
		Number:         8,
		Name:           "Semester 8",
	})
	require.NoError(t, err)
	assert.Equal(t, 8, semester.Number)
}

func TestSemesterServiceCreateUnknownAcademicYear(t *testing.T) {
	svc := NewSemesterService(&fakeSemesterRepo{}, &stubYearReader{}, allowAllGuard{}, nil, zap.NewNop())

	_, err := svc.Create(context.Background(), models.Actor{ID: "admin-1", Role: models.RoleAdmin}, CreateSemesterRequest{
		AcademicYearID: uuid.NewString(),
		Number:         1,
		Name:           "Semester 1",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestSemesterServiceCreateDuplicateNumber(t *testing.T) {
	yearID := uuid.NewString()
	svc := NewSemesterService(&fakeSemesterRepo{createErr: uniqueViolation()},
		&stubYearReader{years: map[string]*models.AcademicYear{yearID: {ID: yearID}}},
		allowAllGuard{}, nil, zap.NewNop())

	_, err := svc.Create(context.Background(), models.Actor{ID: "admin-1", Role: models.RoleAdmin}, CreateSemesterRequest{
		AcademicYearID: yearID,
		Number:         2,
		Name:           "Semester 2",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrDuplicateEntity.Code, appErrors.FromError(err).Code)
}

func TestCourseServiceCreateRejectsOutOfRangeCredits(t *testing.T) {
	departmentID := uuid.NewString()
	semesterID := uuid.NewString()
	svc := NewCourseService(&fakeCourseRepo{},
		&fakeDepartmentRepo{departments: map[string]*models.Department{departmentID: {ID: departmentID}}},
		&stubSemesterReader{semesters: map[string]*models.Semester{semesterID: {ID: semesterID}}},
		allowAllGuard{}, nil, zap.NewNop())
	admin := models.Actor{ID: "admin-1", Role: models.RoleAdmin}

	for _, credits := range []int{0, 11} {
		_, err := svc.Create(context.Background(), admin, CreateCourseRequest{
			DepartmentID: departmentID,
			SemesterID:   semesterID,
			Code:         "CS101",
			Name:         "Intro to CS",
			Credits:      credits,
		})
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	}

	course, err := svc.Create(context.Background(), admin, CreateCourseRequest{
		DepartmentID: departmentID,
		SemesterID:   semesterID,
		Code:         "CS101",
		Name:         "Intro to CS",
		Credits:      10,
	})
	require.NoError(t, err)
	assert.Equal(t, 10, course.Credits)
}

func TestCourseServiceCreateUnknownSemester(t *testing.T) {
	departmentID := uuid.NewString()
	svc := NewCourseService(&fakeCourseRepo{},
		&fakeDepartmentRepo{departments: map[string]*models.Department{departmentID: {ID: departmentID}}},
		&stubSemesterReader{}, allowAllGuard{}, nil, zap.NewNop())

	_, err := svc.Create(context.Background(), models.Actor{ID: "admin-1", Role: models.RoleAdmin}, CreateCourseRequest{
		DepartmentID: departmentID,
		SemesterID:   uuid.NewString(),
		Code:         "CS101",
		Name:         "Intro to CS",
		Credits:      3,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestDepartmentServiceDeleteWithDependents(t *testing.T) {
	svc := NewDepartmentService(&fakeDepartmentRepo{deleteErr: fkViolation()}, allowAllGuard{}, nil, zap.NewNop())

	err := svc.Delete(context.Background(), models.Actor{ID: "admin-1", Role: models.RoleAdmin}, uuid.NewString())
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	assert.Equal(t, 409, appErr.Status)
}

func TestHierarchyWritesRequireAdmin(t *testing.T) {
	teacher := models.Actor{ID: "teacher-1", Role: models.RoleTeacher}
	svc := NewDepartmentService(&fakeDepartmentRepo{}, denyAllGuard{}, nil, zap.NewNop())

	_, err := svc.Create(context.Background(), teacher, CreateDepartmentRequest{Code: "ENG", Name: "Engineering"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPermissionDenied.Code, appErrors.FromError(err).Code)
}
