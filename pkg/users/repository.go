package users

import (
	"context"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/memtensor/userbio/pkg/types"
)

// RoleRepository stores roles.
// Lookups of missing records return a NOT_FOUND error; duplicate names return ALREADY_EXISTS.
type RoleRepository interface {
	CreateRole(ctx context.Context, role *Role) error
	GetRole(ctx context.Context, id primitive.ObjectID) (*Role, error)
	ListRoles(ctx context.Context, page types.PageRequest) ([]Role, int64, error)
	UpdateRole(ctx context.Context, role *Role) error
	DeleteRole(ctx context.Context, id primitive.ObjectID) error
}

// UserRepository stores users.
// Reads return users with their role summary attached.
type UserRepository interface {
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id primitive.ObjectID) (*User, error)
	// FindUserByEmail returns nil, nil when no user has the email
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	ListUsers(ctx context.Context, filter UserFilter) ([]User, int64, error)
	CountUsersWithRole(ctx context.Context, roleID primitive.ObjectID) (int64, error)
	UpdateUser(ctx context.Context, user *User) error
	DeleteUser(ctx context.Context, id primitive.ObjectID) error
}

// Repository provides data access for user management
type Repository interface {
	RoleRepository
	UserRepository
}
