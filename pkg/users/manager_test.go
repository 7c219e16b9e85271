package users

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	apperrors "github.com/memtensor/userbio/pkg/errors"
	"github.com/memtensor/userbio/pkg/logger"
	"github.com/memtensor/userbio/pkg/metrics"
	"github.com/memtensor/userbio/pkg/types"
)

// MockBioGenerator is a mock implementation of interfaces.BioGenerator
type MockBioGenerator struct {
	mock.Mock
}

func (m *MockBioGenerator) GenerateBio(ctx context.Context, subjectName, roleLabel string) (string, error) {
	args := m.Called(ctx, subjectName, roleLabel)
	return args.String(0), args.Error(1)
}

type testEnv struct {
	manager *Manager
	repo    *memoryRepository
	bio     *MockBioGenerator
	logs    *bytes.Buffer
	clock   time.Time
}

func setupTestManager(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		repo:  newMemoryRepository(),
		bio:   &MockBioGenerator{},
		logs:  &bytes.Buffer{},
		clock: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	env.manager = NewManager(env.repo, env.bio, logger.NewLogger("debug", "text", env.logs), metrics.NewTestMetrics())
	env.manager.now = func() time.Time {
		env.clock = env.clock.Add(time.Second)
		return env.clock
	}
	t.Cleanup(func() { env.bio.AssertExpectations(t) })
	return env
}

func (env *testEnv) createRole(t *testing.T, name string) *Role {
	t.Helper()
	role, err := env.manager.CreateRole(context.Background(), CreateRoleParams{Name: name})
	require.NoError(t, err)
	return role
}

func (env *testEnv) createUser(t *testing.T, name, email string, role *Role) *User {
	t.Helper()
	env.bio.On("GenerateBio", mock.Anything, name, role.Name).Return(name+" is a "+role.Name+".", nil).Once()
	user, err := env.manager.CreateUser(context.Background(), CreateUserParams{Name: name, Email: email, RoleID: role.ID.Hex()})
	require.NoError(t, err)
	return user
}

func strPtr(s string) *string { return &s }

func TestManager_CreateRole(t *testing.T) {
	env := setupTestManager(t)

	role, err := env.manager.CreateRole(context.Background(), CreateRoleParams{Name: "  Engineer ", Description: "Builds things"})
	require.NoError(t, err)
	assert.False(t, role.ID.IsZero())
	assert.Equal(t, "Engineer", role.Name)
	assert.Equal(t, "Builds things", role.Description)
	assert.False(t, role.CreatedAt.IsZero())

	_, err = env.manager.CreateRole(context.Background(), CreateRoleParams{Name: "Engineer"})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeAlreadyExists))
}

func TestManager_CreateRole_Validation(t *testing.T) {
	env := setupTestManager(t)

	_, err := env.manager.CreateRole(context.Background(), CreateRoleParams{Name: "x"})
	require.Error(t, err)
	appErr := apperrors.GetAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.ErrCodeValidation, appErr.Code)
	assert.Contains(t, appErr.Details, "name")
}

func TestManager_ListRoles(t *testing.T) {
	env := setupTestManager(t)
	for _, name := range []string{"Designer", "Analyst", "Engineer"} {
		env.createRole(t, name)
	}

	page, err := env.manager.ListRoles(context.Background(), types.PageRequest{Page: 1, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)
	assert.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "Analyst", page.Items[0].Name)
	assert.Equal(t, "Designer", page.Items[1].Name)
}

func TestManager_ListPagesRejectHugePage(t *testing.T) {
	env := setupTestManager(t)

	_, err := env.manager.ListRoles(context.Background(), types.PageRequest{Page: 1 << 62, Limit: 100})
	assert.Equal(t, apperrors.ErrCodeValidation, apperrors.GetCode(err))
	assert.Equal(t, 400, apperrors.GetAppError(err).HTTPStatus())

	_, err = env.manager.ListUsers(context.Background(), ListUsersParams{Page: 1 << 62, Limit: 100})
	assert.Equal(t, apperrors.ErrCodeValidation, apperrors.GetCode(err))
}

func TestManager_UpdateRole(t *testing.T) {
	env := setupTestManager(t)
	role := env.createRole(t, "Engineer")

	updated, err := env.manager.UpdateRole(context.Background(), role.ID.Hex(), UpdateRoleParams{Description: strPtr("Writes code")})
	require.NoError(t, err)
	assert.Equal(t, "Engineer", updated.Name)
	assert.Equal(t, "Writes code", updated.Description)
	assert.True(t, updated.UpdatedAt.After(role.CreatedAt))

	_, err = env.manager.UpdateRole(context.Background(), primitive.NewObjectID().Hex(), UpdateRoleParams{Name: strPtr("Other")})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeNotFound))
}

func TestManager_DeleteRole(t *testing.T) {
	env := setupTestManager(t)
	used := env.createRole(t, "Engineer")
	unused := env.createRole(t, "Designer")
	env.createUser(t, "Ada Lovelace", "ada@example.com", used)

	err := env.manager.DeleteRole(context.Background(), used.ID.Hex())
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeConflict))

	require.NoError(t, env.manager.DeleteRole(context.Background(), unused.ID.Hex()))
	_, err = env.manager.GetRole(context.Background(), unused.ID.Hex())
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeNotFound))

	err = env.manager.DeleteRole(context.Background(), "not-an-id")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidFormat))
}

func TestManager_CreateUser(t *testing.T) {
	env := setupTestManager(t)
	role := env.createRole(t, "Engineer")

	env.bio.On("GenerateBio", mock.Anything, "Ada Lovelace", "Engineer").Return("Ada designs engines.", nil).Once()

	user, err := env.manager.CreateUser(context.Background(), CreateUserParams{
		Name:   " Ada Lovelace ",
		Email:  " ADA@Example.com ",
		RoleID: role.ID.Hex(),
	})
	require.NoError(t, err)
	assert.False(t, user.ID.IsZero())
	assert.Equal(t, "Ada Lovelace", user.Name)
	assert.Equal(t, "ada@example.com", user.Email)
	assert.Equal(t, "Ada designs engines.", user.Bio)
	require.NotNil(t, user.Role)
	assert.Equal(t, "Engineer", user.Role.Name)

	stored, err := env.manager.GetUser(context.Background(), user.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, user.Bio, stored.Bio)
	assert.Equal(t, role.ID, stored.Role.ID)
}

func TestManager_CreateUser_BioFailureStoresNothing(t *testing.T) {
	env := setupTestManager(t)
	role := env.createRole(t, "Engineer")

	bioErr := apperrors.NewBioGenerationFailedError("gemini", "openai", errors.New("overloaded"), errors.New("quota"))
	env.bio.On("GenerateBio", mock.Anything, "Ada", "Engineer").Return("", bioErr).Once()

	_, err := env.manager.CreateUser(context.Background(), CreateUserParams{Name: "Ada", Email: "ada@example.com", RoleID: role.ID.Hex()})
	assert.Same(t, bioErr, err)

	page, err := env.manager.ListUsers(context.Background(), ListUsersParams{})
	require.NoError(t, err)
	assert.Zero(t, page.Total)
}

func TestManager_CreateUser_Rejections(t *testing.T) {
	env := setupTestManager(t)
	role := env.createRole(t, "Engineer")
	env.createUser(t, "Ada Lovelace", "ada@example.com", role)

	tests := []struct {
		name   string
		params CreateUserParams
		code   apperrors.ErrorCode
	}{
		{"InvalidEmail", CreateUserParams{Name: "Grace", Email: "nope", RoleID: role.ID.Hex()}, apperrors.ErrCodeValidation},
		{"ShortName", CreateUserParams{Name: "G", Email: "g@example.com", RoleID: role.ID.Hex()}, apperrors.ErrCodeValidation},
		{"MissingRole", CreateUserParams{Name: "Grace", Email: "g@example.com"}, apperrors.ErrCodeValidation},
		{"MalformedRole", CreateUserParams{Name: "Grace", Email: "g@example.com", RoleID: "xyz"}, apperrors.ErrCodeInvalidFormat},
		{"UnknownRole", CreateUserParams{Name: "Grace", Email: "g@example.com", RoleID: primitive.NewObjectID().Hex()}, apperrors.ErrCodeInvalidInput},
		{"DuplicateEmail", CreateUserParams{Name: "Grace", Email: "ADA@example.com", RoleID: role.ID.Hex()}, apperrors.ErrCodeAlreadyExists},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.manager.CreateUser(context.Background(), tt.params)
			require.Error(t, err)
			assert.Equal(t, tt.code, apperrors.GetCode(err))
		})
	}
}

func TestManager_GetUser(t *testing.T) {
	env := setupTestManager(t)

	_, err := env.manager.GetUser(context.Background(), "123")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidFormat))

	_, err = env.manager.GetUser(context.Background(), primitive.NewObjectID().Hex())
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeNotFound))
}

func TestManager_ListUsers(t *testing.T) {
	env := setupTestManager(t)
	eng := env.createRole(t, "Engineer")
	des := env.createRole(t, "Designer")

	env.createUser(t, "Charlie Brown", "charlie@example.com", eng)
	env.createUser(t, "Alice Smith", "alice@example.com", des)
	env.createUser(t, "Bob Stone", "bob@acme.io", eng)

	t.Run("DefaultNewestFirst", func(t *testing.T) {
		page, err := env.manager.ListUsers(context.Background(), ListUsersParams{})
		require.NoError(t, err)
		assert.Equal(t, int64(3), page.Total)
		assert.Equal(t, types.DefaultLimit, page.Limit)
		require.Len(t, page.Items, 3)
		assert.Equal(t, "Bob Stone", page.Items[0].Name)
		assert.Equal(t, "Charlie Brown", page.Items[2].Name)
	})

	t.Run("SortByNameAsc", func(t *testing.T) {
		page, err := env.manager.ListUsers(context.Background(), ListUsersParams{Sort: SortByName})
		require.NoError(t, err)
		names := []string{page.Items[0].Name, page.Items[1].Name, page.Items[2].Name}
		assert.Equal(t, []string{"Alice Smith", "Bob Stone", "Charlie Brown"}, names)
	})

	t.Run("FilterByRole", func(t *testing.T) {
		page, err := env.manager.ListUsers(context.Background(), ListUsersParams{RoleID: eng.ID.Hex()})
		require.NoError(t, err)
		assert.Equal(t, int64(2), page.Total)
		for _, u := range page.Items {
			assert.Equal(t, "Engineer", u.Role.Name)
		}
	})

	t.Run("Search", func(t *testing.T) {
		page, err := env.manager.ListUsers(context.Background(), ListUsersParams{Search: "ACME"})
		require.NoError(t, err)
		require.Len(t, page.Items, 1)
		assert.Equal(t, "bob@acme.io", page.Items[0].Email)
	})

	t.Run("Paging", func(t *testing.T) {
		page, err := env.manager.ListUsers(context.Background(), ListUsersParams{Page: 2, Limit: 2, Sort: SortByEmail})
		require.NoError(t, err)
		assert.Equal(t, 2, page.TotalPages)
		require.Len(t, page.Items, 1)
		assert.Equal(t, "charlie@example.com", page.Items[0].Email)
	})

	t.Run("InvalidParams", func(t *testing.T) {
		_, err := env.manager.ListUsers(context.Background(), ListUsersParams{Limit: 500})
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeValidation))

		_, err = env.manager.ListUsers(context.Background(), ListUsersParams{Sort: "bio"})
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeValidation))

		_, err = env.manager.ListUsers(context.Background(), ListUsersParams{RoleID: "zzz"})
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidFormat))
	})
}

func TestManager_UpdateUser_RoleChangeRegeneratesBio(t *testing.T) {
	env := setupTestManager(t)
	eng := env.createRole(t, "Engineer")
	mgr := env.createRole(t, "Manager")
	user := env.createUser(t, "Ada Lovelace", "ada@example.com", eng)

	env.bio.On("GenerateBio", mock.Anything, "Ada Lovelace", "Manager").Return("Ada leads teams.", nil).Once()

	updated, err := env.manager.UpdateUser(context.Background(), user.ID.Hex(), UpdateUserParams{RoleID: strPtr(mgr.ID.Hex())})
	require.NoError(t, err)
	assert.Equal(t, "Ada leads teams.", updated.Bio)
	assert.Equal(t, mgr.ID, updated.RoleID)
	assert.Equal(t, "Manager", updated.Role.Name)
}

func TestManager_UpdateUser_RoleChangeKeepsBioOnFailure(t *testing.T) {
	env := setupTestManager(t)
	eng := env.createRole(t, "Engineer")
	mgr := env.createRole(t, "Manager")
	user := env.createUser(t, "Ada Lovelace", "ada@example.com", eng)

	env.bio.On("GenerateBio", mock.Anything, "Ada Lovelace", "Manager").
		Return("", apperrors.NewNoProviderConfiguredError()).Once()

	updated, err := env.manager.UpdateUser(context.Background(), user.ID.Hex(), UpdateUserParams{RoleID: strPtr(mgr.ID.Hex())})
	require.NoError(t, err)
	assert.Equal(t, user.Bio, updated.Bio)
	assert.Equal(t, mgr.ID, updated.RoleID)
	assert.Contains(t, env.logs.String(), "keeping previous bio")

	stored, err := env.manager.GetUser(context.Background(), user.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, user.Bio, stored.Bio)
	assert.Equal(t, "Manager", stored.Role.Name)
}

func TestManager_UpdateUser_NoRoleChangeKeepsBio(t *testing.T) {
	env := setupTestManager(t)
	eng := env.createRole(t, "Engineer")
	user := env.createUser(t, "Ada Lovelace", "ada@example.com", eng)

	updated, err := env.manager.UpdateUser(context.Background(), user.ID.Hex(), UpdateUserParams{
		Name:   strPtr("Ada King"),
		RoleID: strPtr(eng.ID.Hex()),
	})
	require.NoError(t, err)
	assert.Equal(t, "Ada King", updated.Name)
	assert.Equal(t, user.Bio, updated.Bio)
	env.bio.AssertNumberOfCalls(t, "GenerateBio", 1)
}

func TestManager_UpdateUser_Email(t *testing.T) {
	env := setupTestManager(t)
	eng := env.createRole(t, "Engineer")
	ada := env.createUser(t, "Ada Lovelace", "ada@example.com", eng)
	env.createUser(t, "Grace Hopper", "grace@example.com", eng)

	_, err := env.manager.UpdateUser(context.Background(), ada.ID.Hex(), UpdateUserParams{Email: strPtr("GRACE@example.com")})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeAlreadyExists))

	updated, err := env.manager.UpdateUser(context.Background(), ada.ID.Hex(), UpdateUserParams{Email: strPtr("Countess@Example.com")})
	require.NoError(t, err)
	assert.Equal(t, "countess@example.com", updated.Email)

	_, err = env.manager.UpdateUser(context.Background(), ada.ID.Hex(), UpdateUserParams{Email: strPtr("bad")})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeValidation))
}

func TestManager_RegenerateBio(t *testing.T) {
	env := setupTestManager(t)
	eng := env.createRole(t, "Engineer")
	user := env.createUser(t, "Ada Lovelace", "ada@example.com", eng)

	env.bio.On("GenerateBio", mock.Anything, "Ada Lovelace", "Engineer").Return("A fresh bio.", nil).Once()
	updated, err := env.manager.RegenerateBio(context.Background(), user.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, "A fresh bio.", updated.Bio)

	failure := fmt.Errorf("provider down")
	env.bio.On("GenerateBio", mock.Anything, "Ada Lovelace", "Engineer").Return("", failure).Once()
	_, err = env.manager.RegenerateBio(context.Background(), user.ID.Hex())
	assert.ErrorIs(t, err, failure)

	stored, err := env.manager.GetUser(context.Background(), user.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, "A fresh bio.", stored.Bio)
}

func TestManager_DeleteUser(t *testing.T) {
	env := setupTestManager(t)
	eng := env.createRole(t, "Engineer")
	user := env.createUser(t, "Ada Lovelace", "ada@example.com", eng)

	require.NoError(t, env.manager.DeleteUser(context.Background(), user.ID.Hex()))

	err := env.manager.DeleteUser(context.Background(), user.ID.Hex())
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeNotFound))
}
