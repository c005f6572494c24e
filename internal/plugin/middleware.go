package plugin

import (
	"context"
	"log/slog"
	"time"
)

// Logging logs every command invocation with its duration.
func Logging(logger *slog.Logger) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, call *Call) (string, error) {
			start := time.Now()
			reply, err := next(ctx, call)
			attrs := []any{
				slog.String("command", call.Command.Name),
				slog.String("plugin", call.Command.plugin),
				slog.String("sender", call.Event.SenderID),
				slog.Duration("duration", time.Since(start)),
			}
			if err != nil {
				logger.Warn("plugin command failed", append(attrs, slog.String("error", err.Error()))...)
				return reply, err
			}
			logger.Debug("plugin command", attrs...)
			return reply, nil
		}
	}
}

// Private restricts a command to private chats. Elsewhere it replies with a
// hint instead of running.
func Private(next Handler) Handler {
	return func(ctx context.Context, call *Call) (string, error) {
		if !call.Event.IsPrivate() {
			return call.Command.Name + " only works in private chats.", nil
		}
		return next(ctx, call)
	}
}
