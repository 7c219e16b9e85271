package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/memtensor/userbio/pkg/config"
	apperrors "github.com/memtensor/userbio/pkg/errors"
)

// OpenAIProvider calls the chat completions API through go-openai
type OpenAIProvider struct {
	name        string
	model       string
	maxTokens   int
	temperature float64
	client      *openai.Client
}

// NewOpenAIProvider creates an OpenAI provider; the config must carry a usable key
func NewOpenAIProvider(cfg config.ProviderConfig) (*OpenAIProvider, error) {
	name := cfg.Name
	if name == "" {
		name = config.ProviderOpenAI
	}
	if !cfg.Configured() {
		return nil, apperrors.NewProviderNotConfiguredError(name)
	}

	model := cfg.Model
	if model == "" {
		model = config.DefaultOpenAIModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	clientConfig := openai.DefaultConfig(strings.TrimSpace(cfg.APIKey))
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	clientConfig.HTTPClient = &http.Client{Timeout: timeout}

	return &OpenAIProvider{
		name:        name,
		model:       model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		client:      openai.NewClientWithConfig(clientConfig),
	}, nil
}

// Name returns the provider identifier
func (o *OpenAIProvider) Name() string {
	return o.name
}

// Retryable classifies a failure returned by Generate
func (o *OpenAIProvider) Retryable(err error) bool {
	return IsRetryable(err)
}

// Generate sends one chat completion request
func (o *OpenAIProvider) Generate(ctx context.Context, req GenerationRequest) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: bioSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildOpenAIPrompt(req)},
		},
		MaxTokens:   o.maxTokens,
		Temperature: float32(o.temperature),
	})
	if err != nil {
		return "", o.wrapError(err)
	}

	if len(resp.Choices) == 0 {
		return "", &ProviderError{
			Provider:   o.name,
			StatusCode: http.StatusOK,
			Code:       CodeEmptyResponse,
			Message:    "no choices returned",
		}
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", &ProviderError{
			Provider:   o.name,
			StatusCode: http.StatusOK,
			Code:       CodeEmptyResponse,
			Message:    "response contained no text",
		}
	}

	return text, nil
}

func (o *OpenAIProvider) wrapError(err error) *ProviderError {
	pe := &ProviderError{Provider: o.name, Message: err.Error(), Err: err}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		pe.StatusCode = apiErr.HTTPStatusCode
		pe.Type = apiErr.Type
		pe.Message = apiErr.Message
		if apiErr.Code != nil {
			pe.Code = fmt.Sprint(apiErr.Code)
		}
		return pe
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		pe.StatusCode = reqErr.HTTPStatusCode
	}
	return pe
}
