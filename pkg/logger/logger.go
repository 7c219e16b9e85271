// Package logger provides logging implementations for userbio
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/memtensor/userbio/pkg/interfaces"
)

var exit = os.Exit

// StructuredLogger writes leveled, structured records through log/slog
type StructuredLogger struct {
	Level string
	base  *slog.Logger
}

// NewLogger creates a logger writing to w. Format is "json" or "text".
func NewLogger(level, format string, w io.Writer) interfaces.Logger {
	if w == nil {
		w = os.Stdout
	}

	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return &StructuredLogger{
		Level: strings.ToLower(level),
		base:  slog.New(handler),
	}
}

// NewConsoleLogger creates a new console logger
func NewConsoleLogger(level string) interfaces.Logger {
	return NewLogger(level, "text", os.Stdout)
}

// NewTestLogger creates a logger for testing that discards output
func NewTestLogger() interfaces.Logger {
	return NewLogger("debug", "text", io.Discard)
}

// ParseLevel converts a level name to a slog level, defaulting to info
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "fatal":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Debug logs debug level messages
func (l *StructuredLogger) Debug(msg string, fields ...map[string]interface{}) {
	l.log(slog.LevelDebug, msg, nil, fields)
}

// Info logs info level messages
func (l *StructuredLogger) Info(msg string, fields ...map[string]interface{}) {
	l.log(slog.LevelInfo, msg, nil, fields)
}

// Warn logs warning level messages
func (l *StructuredLogger) Warn(msg string, fields ...map[string]interface{}) {
	l.log(slog.LevelWarn, msg, nil, fields)
}

// Error logs error level messages
func (l *StructuredLogger) Error(msg string, err error, fields ...map[string]interface{}) {
	l.log(slog.LevelError, msg, err, fields)
}

// Fatal logs fatal level messages and exits
func (l *StructuredLogger) Fatal(msg string, err error, fields ...map[string]interface{}) {
	l.log(slog.LevelError, msg, err, fields)
	exit(1)
}

// WithFields returns a logger with additional fields
func (l *StructuredLogger) WithFields(fields map[string]interface{}) interfaces.Logger {
	return &StructuredLogger{
		Level: l.Level,
		base:  l.base.With(toArgs(fields)...),
	}
}

func (l *StructuredLogger) log(level slog.Level, msg string, err error, fields []map[string]interface{}) {
	ctx := context.Background()
	if !l.base.Enabled(ctx, level) {
		return
	}

	var args []any
	if err != nil {
		args = append(args, slog.String("error", err.Error()))
	}
	for _, f := range fields {
		args = append(args, toArgs(f)...)
	}
	l.base.Log(ctx, level, msg, args...)
}

// toArgs converts a field map to slog attributes in key order
func toArgs(fields map[string]interface{}) []any {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := make([]any, 0, len(keys))
	for _, k := range keys {
		args = append(args, slog.Any(k, fields[k]))
	}
	return args
}

var _ interfaces.Logger = (*StructuredLogger)(nil)
