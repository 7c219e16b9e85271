// Package errors provides structured error handling for userbio
package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/memtensor/userbio/pkg/types"
)

// ErrorCode represents specific error codes
type ErrorCode string

const (
	// Validation errors
	ErrCodeValidation    ErrorCode = "VALIDATION_ERROR"
	ErrCodeInvalidInput  ErrorCode = "INVALID_INPUT"
	ErrCodeMissingField  ErrorCode = "MISSING_FIELD"
	ErrCodeInvalidFormat ErrorCode = "INVALID_FORMAT"

	// Resource errors
	ErrCodeNotFound      ErrorCode = "NOT_FOUND"
	ErrCodeAlreadyExists ErrorCode = "ALREADY_EXISTS"
	ErrCodeConflict      ErrorCode = "CONFLICT"

	// System errors
	ErrCodeInternal           ErrorCode = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrCodeRateLimited        ErrorCode = "RATE_LIMITED"

	// Database errors
	ErrCodeDatabaseError    ErrorCode = "DATABASE_ERROR"
	ErrCodeConnectionFailed ErrorCode = "CONNECTION_FAILED"

	// Bio generation errors
	ErrCodeProviderNotConfigured ErrorCode = "PROVIDER_NOT_CONFIGURED"
	ErrCodeProviderCallFailed    ErrorCode = "PROVIDER_CALL_FAILED"
	ErrCodeNoProviderConfigured  ErrorCode = "NO_PROVIDER_CONFIGURED"
	ErrCodeBioGenerationFailed   ErrorCode = "BIO_GENERATION_FAILED"

	// Configuration errors
	ErrCodeConfigInvalid ErrorCode = "CONFIG_INVALID"
)

// AppError represents a structured error in userbio
type AppError struct {
	Type      types.ErrorType        `json:"type"`
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Cause     error                  `json:"-"`
	RequestID string                 `json:"request_id,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s (caused by: %v)", e.Code, e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetail adds a detail to the error
func (e *AppError) WithDetail(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithRequestID adds a request ID to the error
func (e *AppError) WithRequestID(requestID string) *AppError {
	e.RequestID = requestID
	return e
}

// HTTPStatus maps the error to the status an HTTP caller should see.
// Bio generation failures are never the caller's fault and map to 5xx.
func (e *AppError) HTTPStatus() int {
	switch e.Type {
	case types.ErrorTypeValidation:
		return http.StatusBadRequest
	case types.ErrorTypeNotFound:
		return http.StatusNotFound
	case types.ErrorTypeConflict:
		return http.StatusConflict
	case types.ErrorTypeUnauthorized:
		return http.StatusUnauthorized
	case types.ErrorTypeRateLimited:
		return http.StatusTooManyRequests
	}
	if e.Code == ErrCodeServiceUnavailable || e.Code == ErrCodeConnectionFailed {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// NewAppError creates a new error
func NewAppError(errType types.ErrorType, code ErrorCode, message string) *AppError {
	return &AppError{
		Type:    errType,
		Code:    code,
		Message: message,
	}
}

// NewAppErrorWithCause creates a new error with a cause
func NewAppErrorWithCause(errType types.ErrorType, code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Type:    errType,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Validation error constructors
func NewValidationError(message string) *AppError {
	return NewAppError(types.ErrorTypeValidation, ErrCodeValidation, message)
}

func NewInvalidInputError(message string) *AppError {
	return NewAppError(types.ErrorTypeValidation, ErrCodeInvalidInput, message)
}

func NewMissingFieldError(field string) *AppError {
	return NewAppError(types.ErrorTypeValidation, ErrCodeMissingField,
		fmt.Sprintf("missing required field: %s", field)).WithDetail("field", field)
}

func NewInvalidFormatError(field, expectedFormat string) *AppError {
	return NewAppError(types.ErrorTypeValidation, ErrCodeInvalidFormat,
		fmt.Sprintf("invalid format for field %s, expected: %s", field, expectedFormat)).
		WithDetail("field", field).WithDetail("expected_format", expectedFormat)
}

// Resource error constructors
func NewNotFoundError(resource string) *AppError {
	return NewAppError(types.ErrorTypeNotFound, ErrCodeNotFound,
		fmt.Sprintf("%s not found", resource)).WithDetail("resource", resource)
}

func NewAlreadyExistsError(resource string) *AppError {
	return NewAppError(types.ErrorTypeConflict, ErrCodeAlreadyExists,
		fmt.Sprintf("%s already exists", resource)).WithDetail("resource", resource)
}

func NewConflictError(message string) *AppError {
	return NewAppError(types.ErrorTypeConflict, ErrCodeConflict, message)
}

// System error constructors
func NewInternalError(message string) *AppError {
	return NewAppError(types.ErrorTypeInternal, ErrCodeInternal, message)
}

func NewInternalErrorWithCause(message string, cause error) *AppError {
	return NewAppErrorWithCause(types.ErrorTypeInternal, ErrCodeInternal, message, cause)
}

func NewServiceUnavailableError(service string) *AppError {
	return NewAppError(types.ErrorTypeInternal, ErrCodeServiceUnavailable,
		fmt.Sprintf("%s service is unavailable", service)).WithDetail("service", service)
}

func NewRateLimitedError(message string) *AppError {
	return NewAppError(types.ErrorTypeRateLimited, ErrCodeRateLimited, message)
}

// Database error constructors
func NewDatabaseErrorWithCause(message string, cause error) *AppError {
	return NewAppErrorWithCause(types.ErrorTypeInternal, ErrCodeDatabaseError, message, cause)
}

func NewConnectionFailedError(target string, cause error) *AppError {
	return NewAppErrorWithCause(types.ErrorTypeInternal, ErrCodeConnectionFailed,
		fmt.Sprintf("failed to connect to %s", target), cause).WithDetail("target", target)
}

// Bio generation error constructors

// NewProviderNotConfiguredError reports a request for a provider that has no usable credentials
func NewProviderNotConfiguredError(provider string) *AppError {
	return NewAppError(types.ErrorTypeInternal, ErrCodeProviderNotConfigured,
		fmt.Sprintf("%s provider is not configured", provider)).WithDetail("provider", provider)
}

// NewNoProviderConfiguredError reports that no text-generation provider is usable
func NewNoProviderConfiguredError() *AppError {
	return NewAppError(types.ErrorTypeInternal, ErrCodeNoProviderConfigured,
		"no bio generation provider is configured")
}

// NewBioGenerationFailedError combines the primary and fallback failures.
// Both causes stay reachable through errors.As on the returned error.
func NewBioGenerationFailedError(primary, fallback string, primaryErr, fallbackErr error) *AppError {
	msg := fmt.Sprintf("bio generation failed: %s: %v; %s: %v", primary, primaryErr, fallback, fallbackErr)
	return NewAppErrorWithCause(types.ErrorTypeExternal, ErrCodeBioGenerationFailed, msg,
		errors.Join(primaryErr, fallbackErr)).
		WithDetail("primary_provider", primary).
		WithDetail("primary_error", errString(primaryErr)).
		WithDetail("fallback_provider", fallback).
		WithDetail("fallback_error", errString(fallbackErr))
}

// Configuration error constructors
func NewConfigInvalidError(message string, cause error) *AppError {
	return NewAppErrorWithCause(types.ErrorTypeValidation, ErrCodeConfigInvalid, message, cause)
}

// Helper functions

// IsAppError checks if an error chain contains an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// GetAppError extracts the first AppError from an error chain
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// GetCode returns the code of the first AppError in the chain, or "" if none
func GetCode(err error) ErrorCode {
	if appErr := GetAppError(err); appErr != nil {
		return appErr.Code
	}
	return ""
}

// IsCode reports whether the error chain carries the given code
func IsCode(err error, code ErrorCode) bool {
	return err != nil && GetCode(err) == code
}

// WrapError wraps an error as an AppError
func WrapError(err error, errType types.ErrorType, code ErrorCode, message string) *AppError {
	return NewAppErrorWithCause(errType, code, message, err)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
