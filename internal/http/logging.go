package http

import (
	"context"
	"log/slog"
)

// consoleLogger tags the handler base logger with the transport component.
func consoleLogger(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With("component", "http")
}

// scopedLogger prefers the request logger set by RequestLogger and adds the
// handler, operation and signed-in user.
func scopedLogger(ctx context.Context, base *slog.Logger, handler, operation string, attrs ...any) *slog.Logger {
	logger := LoggerFromContext(ctx)
	if logger == nil {
		logger = base
	}
	if logger == nil {
		logger = slog.Default()
	}

	pairs := make([]any, 0, 6+len(attrs))
	pairs = append(pairs, "handler", handler)
	if operation != "" {
		pairs = append(pairs, "operation", operation)
	}
	if principal, ok := PrincipalFromContext(ctx); ok && principal.UserID != "" {
		pairs = append(pairs, "user_id", principal.UserID)
	}
	return logger.With(append(pairs, attrs...)...)
}
