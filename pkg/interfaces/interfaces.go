// Package interfaces defines the core interfaces for userbio components
package interfaces

import (
	"context"

	"github.com/memtensor/userbio/pkg/types"
)

// BioGenerator produces a biography for a person holding a role
type BioGenerator interface {
	// GenerateBio returns a biography or an error describing why none could be produced
	GenerateBio(ctx context.Context, subjectName, roleLabel string) (string, error)
}

// BioService is a BioGenerator that can also report provider availability
type BioService interface {
	BioGenerator

	// Status reports which providers are usable
	Status() types.BioStatus
}

// Logger defines the interface for logging
type Logger interface {
	// Debug logs debug level messages
	Debug(msg string, fields ...map[string]interface{})

	// Info logs info level messages
	Info(msg string, fields ...map[string]interface{})

	// Warn logs warning level messages
	Warn(msg string, fields ...map[string]interface{})

	// Error logs error level messages
	Error(msg string, err error, fields ...map[string]interface{})

	// Fatal logs fatal level messages and exits
	Fatal(msg string, err error, fields ...map[string]interface{})

	// WithFields returns a logger with additional fields
	WithFields(fields map[string]interface{}) Logger
}

// Metrics defines the interface for metrics collection
type Metrics interface {
	// Counter increments a counter metric
	Counter(name string, value float64, labels map[string]string)

	// Gauge sets a gauge metric
	Gauge(name string, value float64, labels map[string]string)

	// Histogram records a histogram metric
	Histogram(name string, value float64, labels map[string]string)

	// Timer records timing metrics in seconds
	Timer(name string, duration float64, labels map[string]string)
}

// HealthChecker defines the interface for dependency health checks
type HealthChecker interface {
	// Name identifies the dependency in health output
	Name() string

	// Check performs a health check
	Check(ctx context.Context) error
}
