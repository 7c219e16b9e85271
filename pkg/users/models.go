// Package users provides role and user management for userbio.
// Users always carry an AI-generated biography written for their role.
package users

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Collection names
const (
	RolesCollection = "roles"
	UsersCollection = "users"
)

// Role is a job title users can hold
type Role struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name        string             `bson:"name" json:"name"`
	Description string             `bson:"description,omitempty" json:"description,omitempty"`
	CreatedAt   time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time          `bson:"updated_at" json:"updated_at"`
}

// RoleRef is the role summary embedded in user responses
type RoleRef struct {
	ID   primitive.ObjectID `bson:"_id" json:"id"`
	Name string             `bson:"name" json:"name"`
}

// User is a person with a role and a generated biography
type User struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name      string             `bson:"name" json:"name"`
	Email     string             `bson:"email" json:"email"`
	RoleID    primitive.ObjectID `bson:"role_id" json:"role_id"`
	Bio       string             `bson:"bio" json:"bio"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at" json:"updated_at"`

	// Role is resolved on read and never stored
	Role *RoleRef `bson:"role,omitempty" json:"role,omitempty"`
}

// stored returns a copy without read-only fields
func (u *User) stored() *User {
	c := *u
	c.Role = nil
	return &c
}

// withRole attaches the role summary
func (u *User) withRole(r *Role) *User {
	if r != nil {
		u.Role = &RoleRef{ID: r.ID, Name: r.Name}
	}
	return u
}
