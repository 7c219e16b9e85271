package users

import (
	"context"
	"sort"
	"strings"
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"

	apperrors "github.com/memtensor/userbio/pkg/errors"
	"github.com/memtensor/userbio/pkg/types"
)

// memoryRepository is an in-process Repository used by manager tests
type memoryRepository struct {
	mu    sync.Mutex
	roles map[primitive.ObjectID]Role
	users map[primitive.ObjectID]User
	fail  error
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{
		roles: make(map[primitive.ObjectID]Role),
		users: make(map[primitive.ObjectID]User),
	}
}

func (r *memoryRepository) CreateRole(_ context.Context, role *Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	for _, existing := range r.roles {
		if existing.Name == role.Name {
			return apperrors.NewAlreadyExistsError("role")
		}
	}
	if role.ID.IsZero() {
		role.ID = primitive.NewObjectID()
	}
	r.roles[role.ID] = *role
	return nil
}

func (r *memoryRepository) GetRole(_ context.Context, id primitive.ObjectID) (*Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	role, ok := r.roles[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("role")
	}
	return &role, nil
}

func (r *memoryRepository) ListRoles(_ context.Context, page types.PageRequest) ([]Role, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	roles := make([]Role, 0, len(r.roles))
	for _, role := range r.roles {
		roles = append(roles, role)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].Name < roles[j].Name })
	return paginate(roles, page), int64(len(roles)), nil
}

func (r *memoryRepository) UpdateRole(_ context.Context, role *Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.roles[role.ID]; !ok {
		return apperrors.NewNotFoundError("role")
	}
	for id, existing := range r.roles {
		if id != role.ID && existing.Name == role.Name {
			return apperrors.NewAlreadyExistsError("role")
		}
	}
	r.roles[role.ID] = *role
	return nil
}

func (r *memoryRepository) DeleteRole(_ context.Context, id primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.roles[id]; !ok {
		return apperrors.NewNotFoundError("role")
	}
	delete(r.roles, id)
	return nil
}

func (r *memoryRepository) CreateUser(_ context.Context, user *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	for _, existing := range r.users {
		if existing.Email == user.Email {
			return apperrors.NewAlreadyExistsError("user")
		}
	}
	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	r.users[user.ID] = *user.stored()
	return nil
}

func (r *memoryRepository) GetUser(_ context.Context, id primitive.ObjectID) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("user")
	}
	return r.attachRole(user), nil
}

func (r *memoryRepository) FindUserByEmail(_ context.Context, email string) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Email == email {
			u := user
			return &u, nil
		}
	}
	return nil, nil
}

func (r *memoryRepository) ListUsers(_ context.Context, filter UserFilter) ([]User, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	search := strings.ToLower(filter.Search)
	var matched []User
	for _, user := range r.users {
		if filter.RoleID != nil && user.RoleID != *filter.RoleID {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(user.Name), search) &&
			!strings.Contains(strings.ToLower(user.Email), search) {
			continue
		}
		matched = append(matched, *r.attachRole(user))
	}

	less := func(a, b User) bool {
		switch filter.Sort {
		case SortByName:
			return a.Name < b.Name
		case SortByEmail:
			return a.Email < b.Email
		default:
			return a.CreatedAt.Before(b.CreatedAt)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if filter.Order == types.SortAsc {
			return less(matched[i], matched[j])
		}
		return less(matched[j], matched[i])
	})

	return paginate(matched, filter.PageRequest), int64(len(matched)), nil
}

func (r *memoryRepository) CountUsersWithRole(_ context.Context, roleID primitive.ObjectID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, user := range r.users {
		if user.RoleID == roleID {
			n++
		}
	}
	return n, nil
}

func (r *memoryRepository) UpdateUser(_ context.Context, user *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.ID]; !ok {
		return apperrors.NewNotFoundError("user")
	}
	r.users[user.ID] = *user.stored()
	return nil
}

func (r *memoryRepository) DeleteUser(_ context.Context, id primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[id]; !ok {
		return apperrors.NewNotFoundError("user")
	}
	delete(r.users, id)
	return nil
}

func (r *memoryRepository) attachRole(user User) *User {
	u := user
	if role, ok := r.roles[u.RoleID]; ok {
		u.withRole(&role)
	}
	return &u
}

func paginate[T any](items []T, page types.PageRequest) []T {
	page = page.Normalize()
	start := int(page.Skip())
	if start >= len(items) {
		return []T{}
	}
	end := start + page.Limit
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

var _ Repository = (*memoryRepository)(nil)
