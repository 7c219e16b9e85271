// Package bio coordinates biography generation across a primary and a fallback provider.
//
// The primary provider is retried with exponential backoff; the fallback is
// called at most once, only after the primary has given up. A provider that
// is not configured is represented by a nil llm.Provider.
package bio

import (
	"context"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/memtensor/userbio/pkg/config"
	apperrors "github.com/memtensor/userbio/pkg/errors"
	"github.com/memtensor/userbio/pkg/interfaces"
	"github.com/memtensor/userbio/pkg/llm"
	"github.com/memtensor/userbio/pkg/logger"
	"github.com/memtensor/userbio/pkg/metrics"
	"github.com/memtensor/userbio/pkg/types"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
)

// RetryPolicy controls the primary provider retry loop
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultRetryPolicy returns three attempts starting at one second
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: DefaultMaxAttempts, BaseDelay: DefaultBaseDelay}
}

// SleepFunc waits for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithSleep replaces the wall-clock wait between primary attempts
func WithSleep(sleep SleepFunc) Option {
	return func(o *Orchestrator) {
		if sleep != nil {
			o.sleep = sleep
		}
	}
}

// WithLogger sets the logger
func WithLogger(l interfaces.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics sets the metrics sink
func WithMetrics(m interfaces.Metrics) Option {
	return func(o *Orchestrator) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithProviderNames names the provider slots, used when a slot is empty
func WithProviderNames(primary, fallback string) Option {
	return func(o *Orchestrator) {
		if primary != "" {
			o.primaryName = primary
		}
		if fallback != "" {
			o.fallbackName = fallback
		}
	}
}

// Orchestrator implements interfaces.BioService
type Orchestrator struct {
	primary      llm.Provider
	fallback     llm.Provider
	primaryName  string
	fallbackName string
	policy       RetryPolicy
	sleep        SleepFunc
	logger       interfaces.Logger
	metrics      interfaces.Metrics
}

// New creates an orchestrator. Pass nil for a provider that is not configured.
func New(primary, fallback llm.Provider, policy RetryPolicy, opts ...Option) *Orchestrator {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = DefaultMaxAttempts
	}
	if policy.BaseDelay < 0 {
		policy.BaseDelay = 0
	}

	o := &Orchestrator{
		primary:      primary,
		fallback:     fallback,
		primaryName:  "primary",
		fallbackName: "fallback",
		policy:       policy,
		sleep:        sleepContext,
		logger:       logger.NewTestLogger(),
		metrics:      metrics.NewNoOpMetrics(),
	}
	for _, opt := range opts {
		opt(o)
	}

	if primary != nil {
		o.primaryName = primary.Name()
	}
	if fallback != nil {
		o.fallbackName = fallback.Name()
	}
	// Slot names must stay distinct so RequestDirect can address either one.
	if o.fallbackName == o.primaryName {
		o.fallbackName += "-fallback"
	}

	return o
}

// NewFromConfig builds Gemini as the primary and OpenAI as the fallback provider.
// Providers without usable credentials are left unconfigured.
func NewFromConfig(cfg *config.Config, opts ...Option) (*Orchestrator, error) {
	var primary, fallback llm.Provider

	if cfg.Gemini.Configured() {
		p, err := llm.NewProvider(cfg.Gemini)
		if err != nil {
			return nil, err
		}
		primary = p
	}
	if cfg.OpenAI.Configured() {
		p, err := llm.NewProvider(cfg.OpenAI)
		if err != nil {
			return nil, err
		}
		fallback = p
	}

	policy := RetryPolicy{MaxAttempts: cfg.Bio.MaxAttempts, BaseDelay: cfg.Bio.BaseDelay}
	opts = append([]Option{WithProviderNames(cfg.Gemini.Name, cfg.OpenAI.Name)}, opts...)
	return New(primary, fallback, policy, opts...), nil
}

// Status reports provider availability; it never performs I/O
func (o *Orchestrator) Status() types.BioStatus {
	return types.BioStatus{
		PrimaryProvider:   o.primaryName,
		FallbackProvider:  o.fallbackName,
		Primary:           o.primary != nil,
		Fallback:          o.fallback != nil,
		AnyConfigured:     o.primary != nil || o.fallback != nil,
		FallbackAvailable: o.fallback != nil,
	}
}

// GenerateBio produces a biography for subjectName in roleLabel.
//
// With a primary provider the call is retried per the policy, then handed to
// the fallback once. When both fail the result is BIO_GENERATION_FAILED; when
// only the primary exists its last error is returned as is.
func (o *Orchestrator) GenerateBio(ctx context.Context, subjectName, roleLabel string) (string, error) {
	req := llm.GenerationRequest{SubjectName: subjectName, RoleLabel: roleLabel}
	if err := req.Validate(); err != nil {
		return "", err
	}

	start := time.Now()
	bio, source, err := o.generate(ctx, req)
	o.observe(source, err, time.Since(start))
	return bio, err
}

func (o *Orchestrator) generate(ctx context.Context, req llm.GenerationRequest) (string, string, error) {
	log := o.logger.WithFields(map[string]interface{}{
		"subject": req.SubjectName,
		"role":    req.RoleLabel,
	})

	switch {
	case o.primary != nil:
		bio, primaryErr := o.generateWithRetry(ctx, log, req)
		if primaryErr == nil {
			return bio, o.primaryName, nil
		}
		if ctx.Err() != nil {
			return "", o.primaryName, primaryErr
		}

		if o.fallback == nil {
			log.Error("Bio generation failed and no fallback provider is configured", primaryErr, map[string]interface{}{
				"provider": o.primaryName,
			})
			return "", o.primaryName, primaryErr
		}

		log.Warn("Primary provider failed, switching to fallback", map[string]interface{}{
			"primary":  o.primaryName,
			"fallback": o.fallbackName,
			"error":    primaryErr.Error(),
		})
		o.metrics.Counter("bio_fallback_total", 1, map[string]string{
			"from": o.primaryName,
			"to":   o.fallbackName,
		})

		bio, fallbackErr := o.callOnce(ctx, log, o.fallback, req, 1)
		if fallbackErr == nil {
			return bio, o.fallbackName, nil
		}

		err := apperrors.NewBioGenerationFailedError(o.primaryName, o.fallbackName, primaryErr, fallbackErr)
		log.Error("Bio generation failed on both providers", err)
		return "", o.fallbackName, err

	case o.fallback != nil:
		log.Info("Primary provider not configured, using fallback directly", map[string]interface{}{
			"provider": o.fallbackName,
		})
		bio, err := o.callOnce(ctx, log, o.fallback, req, 1)
		if err != nil {
			log.Error("Bio generation failed", err, map[string]interface{}{"provider": o.fallbackName})
		}
		return bio, o.fallbackName, err

	default:
		err := apperrors.NewNoProviderConfiguredError()
		log.Error("Bio generation requested with no provider configured", err)
		return "", "none", err
	}
}

// generateWithRetry runs the primary loop and returns its last error on failure
func (o *Orchestrator) generateWithRetry(ctx context.Context, log interfaces.Logger, req llm.GenerationRequest) (string, error) {
	delays := o.newBackOff()

	var lastErr error
	for attempt := 1; attempt <= o.policy.MaxAttempts; attempt++ {
		bio, err := o.callOnce(ctx, log, o.primary, req, attempt)
		if err == nil {
			return bio, nil
		}
		lastErr = err

		if !o.primary.Retryable(err) {
			log.Warn("Primary provider returned a non-retryable error", map[string]interface{}{
				"provider": o.primaryName,
				"attempt":  attempt,
				"error":    err.Error(),
			})
			return "", err
		}

		if attempt == o.policy.MaxAttempts {
			break
		}

		delay := delays.NextBackOff()
		log.Warn("Primary provider attempt failed, retrying", map[string]interface{}{
			"provider": o.primaryName,
			"attempt":  attempt,
			"delay":    delay.String(),
			"error":    err.Error(),
		})
		if sleepErr := o.sleep(ctx, delay); sleepErr != nil {
			return "", sleepErr
		}
	}

	log.Warn("Primary provider exhausted all attempts", map[string]interface{}{
		"provider": o.primaryName,
		"attempts": o.policy.MaxAttempts,
	})
	return "", lastErr
}

// callOnce makes exactly one provider request
func (o *Orchestrator) callOnce(ctx context.Context, log interfaces.Logger, p llm.Provider, req llm.GenerationRequest, attempt int) (string, error) {
	name := p.Name()
	log.Info("Requesting bio", map[string]interface{}{
		"provider": name,
		"attempt":  attempt,
	})

	start := time.Now()
	bio, err := p.Generate(ctx, req)
	elapsed := time.Since(start)

	outcome := "success"
	if err != nil {
		outcome = "retryable_error"
		if !p.Retryable(err) {
			outcome = "fatal_error"
		}
	}
	labels := map[string]string{"provider": name, "outcome": outcome}
	o.metrics.Counter("bio_provider_requests_total", 1, labels)
	o.metrics.Timer("bio_provider_request_duration_seconds", elapsed.Seconds(), labels)

	if err != nil {
		return "", err
	}

	log.Info("Bio generated", map[string]interface{}{
		"provider":    name,
		"attempt":     attempt,
		"duration_ms": elapsed.Milliseconds(),
	})
	return bio, nil
}

// RequestDirect sends one request to the named provider with no retry or fallback.
// Provider failures are returned unmodified.
func (o *Orchestrator) RequestDirect(ctx context.Context, provider, subjectName, roleLabel string) (string, error) {
	req := llm.GenerationRequest{SubjectName: subjectName, RoleLabel: roleLabel}
	if err := req.Validate(); err != nil {
		return "", err
	}

	var p llm.Provider
	switch provider {
	case o.primaryName:
		p = o.primary
	case o.fallbackName:
		p = o.fallback
	default:
		return "", apperrors.NewInvalidInputError("unknown provider: " + provider)
	}
	if p == nil {
		return "", apperrors.NewProviderNotConfiguredError(provider)
	}

	log := o.logger.WithFields(map[string]interface{}{
		"subject": subjectName,
		"role":    roleLabel,
	})
	return o.callOnce(ctx, log, p, req, 1)
}

func (o *Orchestrator) observe(source string, err error, elapsed time.Duration) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	labels := map[string]string{"provider": source, "result": result}
	o.metrics.Counter("bio_generation_total", 1, labels)
	o.metrics.Timer("bio_generation_duration_seconds", elapsed.Seconds(), labels)
}

// newBackOff yields BaseDelay * 2^(attempt-1) with no jitter and no cap
func (o *Orchestrator) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = o.policy.BaseDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = time.Duration(math.MaxInt64)
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var _ interfaces.BioService = (*Orchestrator)(nil)
