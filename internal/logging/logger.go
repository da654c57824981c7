// Package logging is the structured logging facade used by the server, the
// services and the HTTP layer. The production implementation sits on log/slog.
package logging

import "context"

// Logger takes a message plus alternating key/value attributes:
//
//	log.Info(ctx, "refresh token rotated", "user_id", id, "origin", ip)
type Logger interface {
	Debug(ctx context.Context, msg string, args ...any)
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger that carries args on every record.
	With(args ...any) Logger
}
