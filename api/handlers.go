package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/memtensor/userbio/pkg/errors"
	"github.com/memtensor/userbio/pkg/llm"
	"github.com/memtensor/userbio/pkg/types"
	"github.com/memtensor/userbio/pkg/users"
)

const healthCheckTimeout = 3 * time.Second

// healthCheck reports liveness, dependency status and bio provider availability
func (s *Server) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	status := "healthy"
	code := http.StatusOK
	checks := make(map[string]string, len(s.checks))
	for _, check := range s.checks {
		if err := check.Check(ctx); err != nil {
			checks[check.Name()] = "error: " + err.Error()
			status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		checks[check.Name()] = "ok"
	}

	c.JSON(code, HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   s.version,
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Checks:    checks,
		Bio:       s.bio.Status(),
	})
}

func (s *Server) getBioStatus(c *gin.Context) {
	status := s.bio.Status()
	c.JSON(http.StatusOK, BioStatusResponse{
		Code:    http.StatusOK,
		Message: "Bio provider status",
		Data:    &status,
	})
}

// Roles

func (s *Server) createRole(c *gin.Context) {
	var req users.CreateRoleParams
	if !s.bindJSON(c, &req) {
		return
	}

	role, err := s.users.CreateRole(c.Request.Context(), req)
	if err != nil {
		s.handleError(c, "Failed to create role", err)
		return
	}

	c.JSON(http.StatusCreated, RoleResponse{Code: http.StatusCreated, Message: "Role created successfully", Data: role})
}

func (s *Server) listRoles(c *gin.Context) {
	var page types.PageRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		s.handleError(c, "Invalid query parameters", apperrors.NewInvalidInputError(err.Error()))
		return
	}

	roles, err := s.users.ListRoles(c.Request.Context(), page)
	if err != nil {
		s.handleError(c, "Failed to list roles", err)
		return
	}

	c.JSON(http.StatusOK, RoleListResponse{Code: http.StatusOK, Message: "Roles retrieved successfully", Data: roles})
}

func (s *Server) getRole(c *gin.Context) {
	role, err := s.users.GetRole(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.handleError(c, "Failed to get role", err)
		return
	}

	c.JSON(http.StatusOK, RoleResponse{Code: http.StatusOK, Message: "Role retrieved successfully", Data: role})
}

func (s *Server) updateRole(c *gin.Context) {
	var req users.UpdateRoleParams
	if !s.bindJSON(c, &req) {
		return
	}

	role, err := s.users.UpdateRole(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		s.handleError(c, "Failed to update role", err)
		return
	}

	c.JSON(http.StatusOK, RoleResponse{Code: http.StatusOK, Message: "Role updated successfully", Data: role})
}

func (s *Server) deleteRole(c *gin.Context) {
	if err := s.users.DeleteRole(c.Request.Context(), c.Param("id")); err != nil {
		s.handleError(c, "Failed to delete role", err)
		return
	}

	c.JSON(http.StatusOK, SimpleResponse{Code: http.StatusOK, Message: "Role deleted successfully"})
}

// Users

func (s *Server) createUser(c *gin.Context) {
	var req users.CreateUserParams
	if !s.bindJSON(c, &req) {
		return
	}

	user, err := s.users.CreateUser(c.Request.Context(), req)
	if err != nil {
		s.handleError(c, "Failed to create user", err)
		return
	}

	c.JSON(http.StatusCreated, UserResponse{Code: http.StatusCreated, Message: "User created successfully", Data: user})
}

func (s *Server) listUsers(c *gin.Context) {
	var req users.ListUsersParams
	if err := c.ShouldBindQuery(&req); err != nil {
		s.handleError(c, "Invalid query parameters", apperrors.NewInvalidInputError(err.Error()))
		return
	}

	page, err := s.users.ListUsers(c.Request.Context(), req)
	if err != nil {
		s.handleError(c, "Failed to list users", err)
		return
	}

	c.JSON(http.StatusOK, UserListResponse{Code: http.StatusOK, Message: "Users retrieved successfully", Data: page})
}

func (s *Server) getUser(c *gin.Context) {
	user, err := s.users.GetUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.handleError(c, "Failed to get user", err)
		return
	}

	c.JSON(http.StatusOK, UserResponse{Code: http.StatusOK, Message: "User retrieved successfully", Data: user})
}

func (s *Server) updateUser(c *gin.Context) {
	var req users.UpdateUserParams
	if !s.bindJSON(c, &req) {
		return
	}

	user, err := s.users.UpdateUser(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		s.handleError(c, "Failed to update user", err)
		return
	}

	c.JSON(http.StatusOK, UserResponse{Code: http.StatusOK, Message: "User updated successfully", Data: user})
}

func (s *Server) regenerateBio(c *gin.Context) {
	user, err := s.users.RegenerateBio(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.handleError(c, "Failed to regenerate bio", err)
		return
	}

	c.JSON(http.StatusOK, UserResponse{Code: http.StatusOK, Message: "Bio regenerated successfully", Data: user})
}

func (s *Server) deleteUser(c *gin.Context) {
	if err := s.users.DeleteUser(c.Request.Context(), c.Param("id")); err != nil {
		s.handleError(c, "Failed to delete user", err)
		return
	}

	c.JSON(http.StatusOK, SimpleResponse{Code: http.StatusOK, Message: "User deleted successfully"})
}

// bindJSON decodes the request body, answering 400 on malformed input
func (s *Server) bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		s.handleError(c, "Invalid request format", apperrors.NewInvalidInputError("invalid request body: "+err.Error()))
		return false
	}
	return true
}

// handleError maps err to a status code and writes an ErrorResponse
func (s *Server) handleError(c *gin.Context, message string, err error) {
	status := http.StatusInternalServerError
	code := string(apperrors.ErrCodeInternal)
	msg := message
	var details map[string]interface{}

	var providerErr *llm.ProviderError
	if appErr := apperrors.GetAppError(err); appErr != nil {
		status = appErr.HTTPStatus()
		code = string(appErr.Code)
		msg = appErr.Message
		details = appErr.Details
	} else if errors.As(err, &providerErr) {
		code = string(apperrors.ErrCodeProviderCallFailed)
		msg = providerErr.Error()
		details = map[string]interface{}{
			"provider":  providerErr.Provider,
			"retryable": providerErr.Retryable(),
		}
		if providerErr.StatusCode != 0 {
			details["provider_status"] = providerErr.StatusCode
		}
		if providerErr.Code != "" {
			details["provider_code"] = providerErr.Code
		}
	}

	fields := map[string]interface{}{
		"request_id": c.GetString(requestIDKey),
		"path":       c.Request.URL.Path,
		"method":     c.Request.Method,
		"status":     status,
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error(message, err, fields)
	} else {
		fields["error"] = err.Error()
		s.logger.Info(message, fields)
	}

	s.writeError(c, status, code, msg, details)
}

func (s *Server) writeError(c *gin.Context, status int, code, message string, details map[string]interface{}) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		Code:      status,
		Message:   message,
		Error:     code,
		Details:   details,
		RequestID: c.GetString(requestIDKey),
	})
}
