package users

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	apperrors "github.com/memtensor/userbio/pkg/errors"
	"github.com/memtensor/userbio/pkg/interfaces"
	"github.com/memtensor/userbio/pkg/types"
)

// Manager is the user management service that coordinates storage and bio generation
type Manager struct {
	repo    Repository
	bio     interfaces.BioGenerator
	logger  interfaces.Logger
	metrics interfaces.Metrics
	now     func() time.Time
}

// NewManager creates a new user manager instance
func NewManager(repo Repository, bio interfaces.BioGenerator, logger interfaces.Logger, metrics interfaces.Metrics) *Manager {
	return &Manager{
		repo:    repo,
		bio:     bio,
		logger:  logger,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Role Management Operations

// CreateRole creates a role with a unique name
func (m *Manager) CreateRole(ctx context.Context, params CreateRoleParams) (*Role, error) {
	params.Normalize()
	if err := params.Validate(); err != nil {
		return nil, err
	}

	now := m.now()
	role := &Role{
		Name:        params.Name,
		Description: params.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := m.repo.CreateRole(ctx, role); err != nil {
		return nil, err
	}

	m.logger.Info("Role created", map[string]interface{}{"role_id": role.ID.Hex(), "name": role.Name})
	m.metrics.Counter("roles_created_total", 1, nil)
	return role, nil
}

// GetRole returns a role by id
func (m *Manager) GetRole(ctx context.Context, id string) (*Role, error) {
	oid, err := parseID("id", id)
	if err != nil {
		return nil, err
	}
	return m.repo.GetRole(ctx, oid)
}

// ListRoles returns roles sorted by name
func (m *Manager) ListRoles(ctx context.Context, page types.PageRequest) (*types.Page[Role], error) {
	if page.Page > types.MaxPage {
		return nil, apperrors.NewValidationError("invalid parameters").
			WithDetail("page", fmt.Sprintf("must be at most %d", types.MaxPage))
	}
	page = page.Normalize()
	roles, total, err := m.repo.ListRoles(ctx, page)
	if err != nil {
		return nil, err
	}
	result := types.NewPage(roles, total, page)
	return &result, nil
}

// UpdateRole changes a role's name or description. Existing bios are not regenerated.
func (m *Manager) UpdateRole(ctx context.Context, id string, params UpdateRoleParams) (*Role, error) {
	oid, err := parseID("id", id)
	if err != nil {
		return nil, err
	}
	params.Normalize()
	if err := params.Validate(); err != nil {
		return nil, err
	}

	role, err := m.repo.GetRole(ctx, oid)
	if err != nil {
		return nil, err
	}
	if params.Name != nil {
		role.Name = *params.Name
	}
	if params.Description != nil {
		role.Description = *params.Description
	}
	role.UpdatedAt = m.now()

	if err := m.repo.UpdateRole(ctx, role); err != nil {
		return nil, err
	}

	m.logger.Info("Role updated", map[string]interface{}{"role_id": role.ID.Hex()})
	return role, nil
}

// DeleteRole removes a role that no user references
func (m *Manager) DeleteRole(ctx context.Context, id string) error {
	oid, err := parseID("id", id)
	if err != nil {
		return err
	}

	if _, err := m.repo.GetRole(ctx, oid); err != nil {
		return err
	}

	n, err := m.repo.CountUsersWithRole(ctx, oid)
	if err != nil {
		return err
	}
	if n > 0 {
		return apperrors.NewConflictError("role is assigned to users").WithDetail("users", n)
	}

	if err := m.repo.DeleteRole(ctx, oid); err != nil {
		return err
	}

	m.logger.Info("Role deleted", map[string]interface{}{"role_id": id})
	return nil
}

// User Management Operations

// CreateUser creates a user and writes their biography.
// Nothing is stored when the biography cannot be generated.
func (m *Manager) CreateUser(ctx context.Context, params CreateUserParams) (*User, error) {
	params.Normalize()
	if err := params.Validate(); err != nil {
		return nil, err
	}

	role, err := m.resolveRole(ctx, params.RoleID)
	if err != nil {
		return nil, err
	}

	if err := m.ensureEmailAvailable(ctx, params.Email, primitive.NilObjectID); err != nil {
		return nil, err
	}

	bio, err := m.bio.GenerateBio(ctx, params.Name, role.Name)
	if err != nil {
		m.logger.Error("Failed to generate bio for new user", err, map[string]interface{}{
			"email": params.Email,
			"role":  role.Name,
		})
		m.metrics.Counter("user_bio_failures_total", 1, map[string]string{"operation": "create"})
		return nil, err
	}

	now := m.now()
	user := &User{
		Name:      params.Name,
		Email:     params.Email,
		RoleID:    role.ID,
		Bio:       bio,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.repo.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	m.logger.Info("User created", map[string]interface{}{"user_id": user.ID.Hex(), "role": role.Name})
	m.metrics.Counter("users_created_total", 1, nil)
	return user.withRole(role), nil
}

// GetUser returns a user by id
func (m *Manager) GetUser(ctx context.Context, id string) (*User, error) {
	oid, err := parseID("id", id)
	if err != nil {
		return nil, err
	}
	return m.repo.GetUser(ctx, oid)
}

// ListUsers returns a filtered, sorted page of users
func (m *Manager) ListUsers(ctx context.Context, params ListUsersParams) (*types.Page[User], error) {
	params.Normalize()
	if err := params.Validate(); err != nil {
		return nil, err
	}

	filter := UserFilter{
		Search:      params.Search,
		Sort:        params.Sort,
		Order:       params.Order,
		PageRequest: params.PageRequest(),
	}
	if params.RoleID != "" {
		oid, err := parseID("role", params.RoleID)
		if err != nil {
			return nil, err
		}
		filter.RoleID = &oid
	}

	users, total, err := m.repo.ListUsers(ctx, filter)
	if err != nil {
		return nil, err
	}
	page := types.NewPage(users, total, filter.PageRequest)
	return &page, nil
}

// UpdateUser applies a partial update. A role change regenerates the bio;
// if that fails the previous bio is kept and the update still succeeds.
func (m *Manager) UpdateUser(ctx context.Context, id string, params UpdateUserParams) (*User, error) {
	oid, err := parseID("id", id)
	if err != nil {
		return nil, err
	}
	params.Normalize()
	if err := params.Validate(); err != nil {
		return nil, err
	}

	user, err := m.repo.GetUser(ctx, oid)
	if err != nil {
		return nil, err
	}

	if params.Name != nil {
		user.Name = *params.Name
	}

	if params.Email != nil && *params.Email != user.Email {
		if err := m.ensureEmailAvailable(ctx, *params.Email, user.ID); err != nil {
			return nil, err
		}
		user.Email = *params.Email
	}

	if params.RoleID != nil {
		role, err := m.resolveRole(ctx, *params.RoleID)
		if err != nil {
			return nil, err
		}

		if role.ID != user.RoleID {
			user.RoleID = role.ID
			user.withRole(role)

			bio, err := m.bio.GenerateBio(ctx, user.Name, role.Name)
			if err != nil {
				m.logger.Warn("Bio regeneration failed after role change, keeping previous bio", map[string]interface{}{
					"user_id": user.ID.Hex(),
					"role":    role.Name,
					"error":   err.Error(),
				})
				m.metrics.Counter("user_bio_failures_total", 1, map[string]string{"operation": "update"})
			} else {
				user.Bio = bio
			}
		}
	}

	user.UpdatedAt = m.now()
	if err := m.repo.UpdateUser(ctx, user); err != nil {
		return nil, err
	}

	m.logger.Info("User updated", map[string]interface{}{"user_id": user.ID.Hex()})
	return user, nil
}

// RegenerateBio writes a fresh biography for the user's current role
func (m *Manager) RegenerateBio(ctx context.Context, id string) (*User, error) {
	oid, err := parseID("id", id)
	if err != nil {
		return nil, err
	}

	user, err := m.repo.GetUser(ctx, oid)
	if err != nil {
		return nil, err
	}

	role, err := m.repo.GetRole(ctx, user.RoleID)
	if err != nil {
		return nil, err
	}

	bio, err := m.bio.GenerateBio(ctx, user.Name, role.Name)
	if err != nil {
		m.logger.Error("Failed to regenerate bio", err, map[string]interface{}{"user_id": id})
		m.metrics.Counter("user_bio_failures_total", 1, map[string]string{"operation": "regenerate"})
		return nil, err
	}

	user.Bio = bio
	user.UpdatedAt = m.now()
	if err := m.repo.UpdateUser(ctx, user); err != nil {
		return nil, err
	}
	return user.withRole(role), nil
}

// DeleteUser removes a user
func (m *Manager) DeleteUser(ctx context.Context, id string) error {
	oid, err := parseID("id", id)
	if err != nil {
		return err
	}
	if err := m.repo.DeleteUser(ctx, oid); err != nil {
		return err
	}

	m.logger.Info("User deleted", map[string]interface{}{"user_id": id})
	return nil
}

// resolveRole loads the role a user is being assigned to; an unknown role is a validation error
func (m *Manager) resolveRole(ctx context.Context, roleID string) (*Role, error) {
	oid, err := parseID("role_id", roleID)
	if err != nil {
		return nil, err
	}

	role, err := m.repo.GetRole(ctx, oid)
	if apperrors.IsCode(err, apperrors.ErrCodeNotFound) {
		return nil, apperrors.NewInvalidInputError("role does not exist").WithDetail("role_id", roleID)
	}
	return role, err
}

func (m *Manager) ensureEmailAvailable(ctx context.Context, email string, self primitive.ObjectID) error {
	existing, err := m.repo.FindUserByEmail(ctx, email)
	if err != nil {
		return err
	}
	if existing != nil && existing.ID != self {
		return apperrors.NewAlreadyExistsError("user").WithDetail("email", email)
	}
	return nil
}
