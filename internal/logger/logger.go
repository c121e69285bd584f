// Package logger provides structured logging using log/slog.
// It sets up a JSON handler with service-level context and carries a
// batch ID through context.Context so every per-indicator log line of one
// dashboard request can be correlated.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

type ctxKey string

const batchIDKey ctxKey = "batch_id"

// Init creates and returns a structured logger for the given service.
// The logger outputs JSON to stdout with the service name embedded.
func Init(service string, level slog.Level) *slog.Logger {
	return InitWriter(os.Stdout, service, level)
}

// InitWriter is Init with an explicit destination.
func InitWriter(w io.Writer, service string, level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})

	logger := slog.New(handler).With(
		slog.String("service", service),
	)

	// Set as default so slog.Info() etc. also use structured output
	slog.SetDefault(logger)

	return logger
}

// ParseLevel maps "debug", "info", "warn" and "error" to a slog level.
// Unknown values fall back to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithBatchID stores a batch ID in the context for downstream propagation.
func WithBatchID(ctx context.Context, batchID string) context.Context {
	return context.WithValue(ctx, batchIDKey, batchID)
}

// BatchID extracts the batch ID from context. Returns "" if not set.
func BatchID(ctx context.Context) string {
	if v, ok := ctx.Value(batchIDKey).(string); ok {
		return v
	}
	return ""
}

// NewBatchID creates a batch ID from an entity and timestamp.
// Format: "{entity}-{unixNano}".
func NewBatchID(entity string, ts time.Time) string {
	return fmt.Sprintf("%s-%d", entity, ts.UnixNano())
}

// Attrs returns slog key/value pairs including the batch ID from context.
// Usage: slog.Info("msg", logger.Attrs(ctx)...)
func Attrs(ctx context.Context) []any {
	id := BatchID(ctx)
	if id == "" {
		return nil
	}
	return []any{slog.String("batch_id", id)}
}
