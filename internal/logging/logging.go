// Package logging constructs the single *slog.Logger each process
// wires up at startup and threads through every component as an
// explicit collaborator.
package logging

import (
	"context"
	"log/slog"
	"os"
)

// Format selects the slog handler's wire format.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Options configures New.
type Options struct {
	Format Format
	Level  slog.Level
	Output *os.File
}

// New builds a *slog.Logger per Options. Callers own the returned
// logger and pass it explicitly to every component that needs it;
// nothing in this package keeps a reference.
func New(opts Options) *slog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	handlerOpts := &slog.HandlerOptions{Level: opts.Level}

	var handler slog.Handler
	switch opts.Format {
	case FormatJSON:
		handler = slog.NewJSONHandler(out, handlerOpts)
	default:
		handler = slog.NewTextHandler(out, handlerOpts)
	}

	return slog.New(handler)
}

// Discard is a logger whose output is never written, used in tests
// that supply a real logger without asserting on output.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// WithCorrelation returns a child logger carrying a correlation id
// (session id or task id) so every line emitted during one unit of
// work can be grepped together, matching the correlation id carried on
// errorkit.Error values.
func WithCorrelation(log *slog.Logger, correlationID string) *slog.Logger {
	return log.With(slog.String("correlation_id", correlationID))
}

// contextKey avoids collisions with other packages' context keys.
type contextKey struct{}

// IntoContext stashes a logger on a context so deeply nested calls
// that are not worth threading an explicit parameter through (e.g.
// deferred cleanup) can still retrieve it. Prefer explicit parameters;
// this exists for the handful of call sites where plumbing one through
// every signature would be pure noise.
func IntoContext(ctx context.Context, log *slog.Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, log)
}

// FromContext retrieves a logger stashed with IntoContext, falling
// back to slog.Default() if none is present.
func FromContext(ctx context.Context) *slog.Logger {
	if log, ok := ctx.Value(contextKey{}).(*slog.Logger); ok {
		return log
	}
	return slog.Default()
}
