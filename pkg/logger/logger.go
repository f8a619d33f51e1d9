// Package logger configures the process-wide slog default and provides
// helpers for component- and query-scoped loggers.
package logger

import (
	"context"
	"log/slog"
	"os"
)

type contextKey struct{}

// Setup installs the default slog handler. Format is "json" or "text".
func Setup(level string, format string) {
	var handler slog.Handler
	opts := &slog.HandlerOptions{
		Level: parseLevel(level),
	}
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// WithQueryID stores a query identifier in the context so that log lines
// produced while serving one retrieval request can be correlated.
func WithQueryID(ctx context.Context, queryID string) context.Context {
	return context.WithValue(ctx, contextKey{}, queryID)
}

// FromContext returns the default logger, annotated with the query ID if
// one is present in the context.
func FromContext(ctx context.Context) *slog.Logger {
	logger := slog.Default()
	if queryID, ok := ctx.Value(contextKey{}).(string); ok {
		logger = logger.With("query_id", queryID)
	}
	return logger
}

// WithComponent returns the default logger annotated with a component name.
func WithComponent(component string) *slog.Logger {
	return slog.Default().With("component", component)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
