// Package llm provides the text-generation providers used to write user biographies
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/memtensor/userbio/pkg/config"
	apperrors "github.com/memtensor/userbio/pkg/errors"
)

// Provider is a single text-generation backend
type Provider interface {
	// Name returns the provider identifier used in logs, metrics and errors
	Name() string

	// Generate sends exactly one request and returns the trimmed biography text
	Generate(ctx context.Context, req GenerationRequest) (string, error)

	// Retryable reports whether a failure returned by Generate is worth another attempt
	Retryable(err error) bool
}

// GenerationRequest carries the inputs of one biography request
type GenerationRequest struct {
	SubjectName string
	RoleLabel   string
}

// Validate checks that both inputs are present
func (r GenerationRequest) Validate() error {
	if strings.TrimSpace(r.SubjectName) == "" {
		return apperrors.NewMissingFieldError("name")
	}
	if strings.TrimSpace(r.RoleLabel) == "" {
		return apperrors.NewMissingFieldError("role")
	}
	return nil
}

// invalidCredentialCodes are provider error codes meaning the key itself was rejected
var invalidCredentialCodes = map[string]struct{}{
	"API_KEY_INVALID": {},
	"invalid_api_key": {},
}

// Error codes assigned locally when the provider answered without usable text
const (
	CodeEmptyResponse = "EMPTY_RESPONSE"
	CodeBlocked       = "BLOCKED"
)

// ProviderError is the lossless form of a failed provider call
type ProviderError struct {
	Provider   string
	StatusCode int
	Code       string
	Type       string
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	b.WriteString(e.Provider)
	b.WriteString(" request failed")

	var meta []string
	if e.StatusCode != 0 {
		meta = append(meta, fmt.Sprintf("status %d", e.StatusCode))
	}
	if e.Code != "" {
		meta = append(meta, e.Code)
	}
	if len(meta) > 0 {
		b.WriteString(" (" + strings.Join(meta, ", ") + ")")
	}
	if e.Message != "" {
		b.WriteString(": " + e.Message)
	}
	return b.String()
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Retryable is false for rejected credentials and true for everything else
func (e *ProviderError) Retryable() bool {
	if e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden {
		return false
	}
	if _, ok := invalidCredentialCodes[e.Code]; ok {
		return false
	}
	return true
}

// IsRetryable classifies any error returned by a provider.
// Errors that carry no provider detail, such as transport failures, are retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable()
	}
	return true
}

// NewProvider builds the provider named by cfg.Name
func NewProvider(cfg config.ProviderConfig) (Provider, error) {
	switch cfg.Name {
	case config.ProviderGemini:
		return NewGeminiProvider(cfg)
	case config.ProviderOpenAI:
		return NewOpenAIProvider(cfg)
	default:
		return nil, apperrors.NewInvalidInputError(fmt.Sprintf("unsupported provider: %q", cfg.Name))
	}
}
