package users

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson/primitive"

	apperrors "github.com/memtensor/userbio/pkg/errors"
	"github.com/memtensor/userbio/pkg/types"
)

var validate = validator.New()

// Sortable user fields
const (
	SortByName      = "name"
	SortByEmail     = "email"
	SortByCreatedAt = "created_at"
)

// CreateRoleParams contains parameters for creating a role
type CreateRoleParams struct {
	Name        string `json:"name" validate:"required,min=2,max=50"`
	Description string `json:"description" validate:"max=200"`
}

// Normalize trims surrounding whitespace
func (p *CreateRoleParams) Normalize() {
	p.Name = strings.TrimSpace(p.Name)
	p.Description = strings.TrimSpace(p.Description)
}

// Validate validates the create role parameters
func (p CreateRoleParams) Validate() error {
	return validationError(validate.Struct(p))
}

// UpdateRoleParams contains the role fields to change; nil fields are kept
type UpdateRoleParams struct {
	Name        *string `json:"name,omitempty" validate:"omitempty,min=2,max=50"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=200"`
}

// Normalize trims surrounding whitespace
func (p *UpdateRoleParams) Normalize() {
	trimPtr(p.Name)
	trimPtr(p.Description)
}

// Validate validates the update role parameters
func (p UpdateRoleParams) Validate() error {
	return validationError(validate.Struct(p))
}

// CreateUserParams contains parameters for creating a user
type CreateUserParams struct {
	Name   string `json:"name" validate:"required,min=2,max=100"`
	Email  string `json:"email" validate:"required,email"`
	RoleID string `json:"role_id" validate:"required"`
}

// Normalize trims fields and lower-cases the email
func (p *CreateUserParams) Normalize() {
	p.Name = strings.TrimSpace(p.Name)
	p.Email = strings.ToLower(strings.TrimSpace(p.Email))
	p.RoleID = strings.TrimSpace(p.RoleID)
}

// Validate validates the create user parameters
func (p CreateUserParams) Validate() error {
	return validationError(validate.Struct(p))
}

// UpdateUserParams contains the user fields to change; nil fields are kept
type UpdateUserParams struct {
	Name   *string `json:"name,omitempty" validate:"omitempty,min=2,max=100"`
	Email  *string `json:"email,omitempty" validate:"omitempty,email"`
	RoleID *string `json:"role_id,omitempty"`
}

// Normalize trims fields and lower-cases the email
func (p *UpdateUserParams) Normalize() {
	trimPtr(p.Name)
	trimPtr(p.RoleID)
	if p.Email != nil {
		*p.Email = strings.ToLower(strings.TrimSpace(*p.Email))
	}
}

// Validate validates the update user parameters
func (p UpdateUserParams) Validate() error {
	return validationError(validate.Struct(p))
}

// ListUsersParams filters, sorts and pages the user list
type ListUsersParams struct {
	Page   int             `json:"page" form:"page" validate:"omitempty,min=1,max=1000000"`
	Limit  int             `json:"limit" form:"limit" validate:"omitempty,min=1,max=100"`
	RoleID string          `json:"role" form:"role"`
	Search string          `json:"search" form:"search" validate:"max=100"`
	Sort   string          `json:"sort" form:"sort" validate:"omitempty,oneof=name email created_at"`
	Order  types.SortOrder `json:"order" form:"order" validate:"omitempty,oneof=asc desc"`
}

// Normalize applies defaults
func (p *ListUsersParams) Normalize() {
	p.Search = strings.TrimSpace(p.Search)
	p.RoleID = strings.TrimSpace(p.RoleID)
	if p.Sort == "" {
		p.Sort = SortByCreatedAt
	}
	if p.Order == "" {
		p.Order = types.SortDesc
		if p.Sort != SortByCreatedAt {
			p.Order = types.SortAsc
		}
	}
}

// Validate validates the list parameters
func (p ListUsersParams) Validate() error {
	return validationError(validate.Struct(p))
}

// PageRequest returns the normalized paging window
func (p ListUsersParams) PageRequest() types.PageRequest {
	return types.PageRequest{Page: p.Page, Limit: p.Limit}.Normalize()
}

// UserFilter is the repository form of ListUsersParams
type UserFilter struct {
	RoleID *primitive.ObjectID
	Search string
	Sort   string
	Order  types.SortOrder
	types.PageRequest
}

func trimPtr(s *string) {
	if s != nil {
		*s = strings.TrimSpace(*s)
	}
}

// parseID converts a hex id into an ObjectID
func parseID(field, id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(strings.TrimSpace(id))
	if err != nil {
		return primitive.NilObjectID, apperrors.NewInvalidFormatError(field, "24-character hex object id")
	}
	return oid, nil
}

// validationError converts validator output into a VALIDATION_ERROR with per-field details
func validationError(err error) error {
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperrors.NewValidationError(err.Error())
	}

	appErr := apperrors.NewValidationError("invalid parameters")
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		field := jsonName(fe.Field())
		msg := describe(fe)
		appErr.WithDetail(field, msg)
		msgs = append(msgs, field+" "+msg)
	}
	appErr.Message = "invalid parameters: " + strings.Join(msgs, "; ")
	return appErr
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	default:
		return "is invalid (" + fe.Tag() + ")"
	}
}

var fieldNames = map[string]string{
	"Name":        "name",
	"Description": "description",
	"Email":       "email",
	"RoleID":      "role_id",
	"Page":        "page",
	"Limit":       "limit",
	"Search":      "search",
	"Sort":        "sort",
	"Order":       "order",
}

func jsonName(field string) string {
	if name, ok := fieldNames[field]; ok {
		return name
	}
	return strings.ToLower(field)
}
