package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/campusmesh/sams-api/internal/models"
	appErrors "github.com/campusmesh/sams-api/pkg/errors"
)

type mockUserRepo struct {
	users       map[string]*models.User
	createErr   error
	deactivated []string
	revoked     []string
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: map[string]*models.User{}}
}

func (m *mockUserRepo) Create(_ context.Context, user *models.User) error {
	if m.createErr != nil {
		return m.createErr
	}
	user.ID = uuid.NewString()
	m.users[user.ID] = user
	return nil
}

func (m *mockUserRepo) FindByID(_ context.Context, id string) (*models.User, error) {
	user, ok := m.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return user, nil
}

func (m *mockUserRepo) List(_ context.Context, _ models.UserFilter) ([]models.User, int, error) {
	return nil, len(m.users), nil
}

func (m *mockUserRepo) Update(_ context.Context, user *models.User) error {
	m.users[user.ID] = user
	return nil
}

func (m *mockUserRepo) Deactivate(_ context.Context, id string) error {
	m.deactivated = append(m.deactivated, id)
	return nil
}

func (m *mockUserRepo) RevokeUserRefreshTokens(_ context.Context, userID string) error {
	m.revoked = append(m.revoked, userID)
	return nil
}

type mockProfileRepo struct {
	profiles []*models.StudentProfile
	moved    map[string]string
}

func (m *mockProfileRepo) Create(_ context.Context, profile *models.StudentProfile) error {
	m.profiles = append(m.profiles, profile)
	return nil
}

func (m *mockProfileRepo) UpdateBatch(_ context.Context, userID, batchID string) error {
	if m.moved == nil {
		m.moved = map[string]string{}
	}
	m.moved[userID] = batchID
	return nil
}

func newUserFixture(batchID string) (*UserService, *mockUserRepo, *mockProfileRepo) {
	repo := newMockUserRepo()
	profiles := &mockProfileRepo{}
	svc := NewUserService(repo, profiles,
		&stubBatchReader{batches: map[string]*models.Batch{batchID: {ID: batchID}}},
		allowAllGuard{}, nil, zap.NewNop())
	return svc, repo, profiles
}

func TestUserServiceCreateStudent(t *testing.T) {
	batchID := uuid.NewString()
	svc, repo, profiles := newUserFixture(batchID)
	admin := models.Actor{ID: "admin-1", Role: models.RoleAdmin}

	user, err := svc.Create(context.Background(), admin, CreateUserRequest{
		Username: "jdoe",
		Email:    "jdoe@example.edu",
		Password: "s3cret-pass",
		FullName: "Jane Doe",
		Role:     models.RoleStudent,
		BatchID:  batchID,
	})
	require.NoError(t, err)
	assert.True(t, user.Active)
	assert.Equal(t, models.RoleStudent, user.Role)
	// the password is stored hashed, never verbatim
	assert.NotEqual(t, "s3cret-pass", user.PasswordHash)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("s3cret-pass")))

	require.Len(t, repo.users, 1)
	require.Len(t, profiles.profiles, 1)
	assert.Equal(t, batchID, profiles.profiles[0].BatchID)
}

func TestUserServiceCreateStudentRequiresBatch(t *testing.T) {
	svc, _, _ := newUserFixture(uuid.NewString())

	_, err := svc.Create(context.Background(), models.Actor{ID: "admin-1", Role: models.RoleAdmin}, CreateUserRequest{
		Username: "jdoe",
		Email:    "jdoe@example.edu",
		Password: "s3cret-pass",
		FullName: "Jane Doe",
		Role:     models.RoleStudent,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestUserServiceCreateTeacherRejectsBatch(t *testing.T) {
	batchID := uuid.NewString()
	svc, _, _ := newUserFixture(batchID)

	_, err := svc.Create(context.Background(), models.Actor{ID: "admin-1", Role: models.RoleAdmin}, CreateUserRequest{
		Username: "tsmith",
		Email:    "tsmith@example.edu",
		Password: "s3cret-pass",
		FullName: "Tom Smith",
		Role:     models.RoleTeacher,
		BatchID:  batchID,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestUserServiceCreateDuplicateUsername(t *testing.T) {
	batchID := uuid.NewString()
	svc, repo, _ := newUserFixture(batchID)
	repo.createErr = uniqueViolation()

	_, err := svc.Create(context.Background(), models.Actor{ID: "admin-1", Role: models.RoleAdmin}, CreateUserRequest{
		Username: "jdoe",
		Email:    "jdoe@example.edu",
		Password: "s3cret-pass",
		FullName: "Jane Doe",
		Role:     models.RoleAdmin,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrDuplicateEntity.Code, appErrors.FromError(err).Code)
}

func TestUserServiceUpdateKeepsRole(t *testing.T) {
	svc, repo, _ := newUserFixture(uuid.NewString())
	teacher := &models.User{ID: uuid.NewString(), Role: models.RoleTeacher, Email: "old@example.edu", Active: true}
	repo.users[teacher.ID] = teacher

	email := "new@example.edu"
	name := "New Name"
	updated, err := svc.Update(context.Background(), models.Actor{ID: "admin-1", Role: models.RoleAdmin}, teacher.ID,
		UpdateUserRequest{Email: &email, FullName: &name})
	require.NoError(t, err)
	assert.Equal(t, "new@example.edu", updated.Email)
	assert.Equal(t, models.RoleTeacher, updated.Role)
}

func TestUserServiceUpdateBatchOnlyForStudents(t *testing.T) {
	batchID := uuid.NewString()
	svc, repo, profiles := newUserFixture(batchID)
	teacher := &models.User{ID: uuid.NewString(), Role: models.RoleTeacher}
	student := &models.User{ID: uuid.NewString(), Role: models.RoleStudent}
	repo.users[teacher.ID] = teacher
	repo.users[student.ID] = student
	admin := models.Actor{ID: "admin-1", Role: models.RoleAdmin}
	ctx := context.Background()

	_, err := svc.Update(ctx, admin, teacher.ID, UpdateUserRequest{BatchID: &batchID})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.Update(ctx, admin, student.ID, UpdateUserRequest{BatchID: &batchID})
	require.NoError(t, err)
	assert.Equal(t, batchID, profiles.moved[student.ID])
}

func TestUserServiceDeactivate(t *testing.T) {
	svc, repo, _ := newUserFixture(uuid.NewString())
	target := &models.User{ID: uuid.NewString(), Role: models.RoleTeacher, Active: true}
	repo.users[target.ID] = target
	admin := models.Actor{ID: "admin-1", Role: models.RoleAdmin}

	require.NoError(t, svc.Deactivate(context.Background(), admin, target.ID))
	assert.Contains(t, repo.deactivated, target.ID)
	assert.Contains(t, repo.revoked, target.ID)

	// nobody locks themselves out
	err := svc.Deactivate(context.Background(), admin, "admin-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestUserServiceGetScopesNonAdmins(t *testing.T) {
	svc, repo, _ := newUserFixture(uuid.NewString())
	student := &models.User{ID: uuid.NewString(), Role: models.RoleStudent}
	repo.users[student.ID] = student

	_, err := svc.Get(context.Background(), models.Actor{ID: student.ID, Role: models.RoleStudent}, student.ID)
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), models.Actor{ID: "someone-else", Role: models.RoleStudent}, student.ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPermissionDenied.Code, appErrors.FromError(err).Code)
}
