package llm

import (
	"context"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/memtensor/userbio/pkg/config"
	apperrors "github.com/memtensor/userbio/pkg/errors"
)

// GeminiProvider calls the Gemini generateContent REST endpoint
type GeminiProvider struct {
	name        string
	model       string
	maxTokens   int
	temperature float64
	client      *resty.Client
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
}

type geminiResponse struct {
	Candidates     []geminiCandidate `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
}

type geminiErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
		Details []struct {
			Type   string `json:"@type"`
			Reason string `json:"reason"`
		} `json:"details"`
	} `json:"error"`
}

// NewGeminiProvider creates a Gemini provider; the config must carry a usable key
func NewGeminiProvider(cfg config.ProviderConfig) (*GeminiProvider, error) {
	name := cfg.Name
	if name == "" {
		name = config.ProviderGemini
	}
	if !cfg.Configured() {
		return nil, apperrors.NewProviderNotConfiguredError(name)
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = config.DefaultGeminiBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = config.DefaultGeminiModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	// Retries belong to the orchestrator, the transport makes one attempt.
	client := resty.New()
	client.SetBaseURL(strings.TrimRight(baseURL, "/"))
	client.SetTimeout(timeout)
	client.SetRetryCount(0)
	client.SetHeader("Content-Type", "application/json")
	client.SetHeader("User-Agent", "userbio/1.0")
	client.SetHeader("x-goog-api-key", strings.TrimSpace(cfg.APIKey))

	return &GeminiProvider{
		name:        name,
		model:       model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		client:      client,
	}, nil
}

// Name returns the provider identifier
func (g *GeminiProvider) Name() string {
	return g.name
}

// Retryable classifies a failure returned by Generate
func (g *GeminiProvider) Retryable(err error) bool {
	return IsRetryable(err)
}

// Generate sends one generateContent request
func (g *GeminiProvider) Generate(ctx context.Context, req GenerationRequest) (string, error) {
	body := geminiRequest{
		Contents: []geminiContent{{
			Role:  "user",
			Parts: []geminiPart{{Text: buildGeminiPrompt(req)}},
		}},
		GenerationConfig: geminiGenerationConfig{
			Temperature:     g.temperature,
			MaxOutputTokens: g.maxTokens,
		},
	}

	var result geminiResponse
	var apiErr geminiErrorResponse

	resp, err := g.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&result).
		SetError(&apiErr).
		Post("/models/" + g.model + ":generateContent")
	if err != nil {
		return "", &ProviderError{Provider: g.name, Message: err.Error(), Err: err}
	}

	if resp.IsError() {
		return "", g.apiError(resp, &apiErr)
	}

	if result.PromptFeedback != nil && result.PromptFeedback.BlockReason != "" {
		return "", &ProviderError{
			Provider:   g.name,
			StatusCode: resp.StatusCode(),
			Code:       CodeBlocked,
			Type:       result.PromptFeedback.BlockReason,
			Message:    "prompt was blocked: " + result.PromptFeedback.BlockReason,
		}
	}

	text := strings.TrimSpace(result.text())
	if text == "" {
		return "", &ProviderError{
			Provider:   g.name,
			StatusCode: resp.StatusCode(),
			Code:       CodeEmptyResponse,
			Message:    "response contained no text",
		}
	}

	return text, nil
}

func (g *GeminiProvider) apiError(resp *resty.Response, apiErr *geminiErrorResponse) *ProviderError {
	pe := &ProviderError{
		Provider:   g.name,
		StatusCode: resp.StatusCode(),
		Type:       apiErr.Error.Status,
		Code:       apiErr.Error.Status,
		Message:    apiErr.Error.Message,
	}
	for _, d := range apiErr.Error.Details {
		if d.Reason != "" {
			pe.Code = d.Reason
			break
		}
	}
	if pe.Message == "" {
		pe.Message = strings.TrimSpace(resp.String())
	}
	if pe.Message == "" {
		pe.Message = resp.Status()
	}
	return pe
}

func (r *geminiResponse) text() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var b strings.Builder
	for _, part := range r.Candidates[0].Content.Parts {
		b.WriteString(part.Text)
	}
	return b.String()
}
