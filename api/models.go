package api

import (
	"github.com/memtensor/userbio/pkg/types"
	"github.com/memtensor/userbio/pkg/users"
)

// BaseResponse represents the base structure for all API responses
type BaseResponse[T any] struct {
	Code    int    `json:"code" example:"200"`
	Message string `json:"message" example:"Operation successful"`
	Data    *T     `json:"data,omitempty"`
}

// SimpleResponse for operations without data return
type SimpleResponse = BaseResponse[interface{}]

// Response types
type RoleResponse = BaseResponse[users.Role]
type RoleListResponse = BaseResponse[types.Page[users.Role]]
type UserResponse = BaseResponse[users.User]
type UserListResponse = BaseResponse[types.Page[users.User]]
type BioStatusResponse = BaseResponse[types.BioStatus]

// HealthResponse represents health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Version   string            `json:"version"`
	Uptime    string            `json:"uptime"`
	Checks    map[string]string `json:"checks"`
	Bio       types.BioStatus   `json:"bio"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Code      int                    `json:"code"`
	Message   string                 `json:"message"`
	Error     string                 `json:"error,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}
