// Package appctx carries request-scoped values through context.
//
// The server's logging middleware attaches a request-scoped logger
// (request id, client address, endpoint) to each request context;
// handlers and the decision pipeline retrieve it here instead of
// threading *slog.Logger through every call.
package appctx

import (
	"context"
	"log/slog"
)

type loggerKey struct{}

// WithLogger returns a context carrying l.
func WithLogger(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// Logger returns the logger carried by ctx, or slog.Default when none
// was attached (direct unit-test invocations, background tasks).
func Logger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.Default()
}
