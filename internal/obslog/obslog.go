// Package obslog provides the structured logger shared by every component.
//
// MCP stdio mode must never write to stdout — the teacher's streaming
// package enforces the same rule for notifications. All logging here goes
// to stderr (or an explicitly configured writer) so it never corrupts the
// JSON-RPC stream on stdout.
package obslog

import (
	"context"
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

var (
	mu     sync.RWMutex
	global = zerolog.New(os.Stderr).With().Timestamp().Logger()
)

// SetLogger replaces the process-wide logger. Tests use this to redirect
// output into a buffer.
func SetLogger(l zerolog.Logger) {
	mu.Lock()
	defer mu.Unlock()
	global = l
}

// SetOutput points the process-wide logger at w, keeping level and fields.
func SetOutput(w io.Writer, level zerolog.Level) {
	mu.Lock()
	defer mu.Unlock()
	global = zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// Logger returns the current process-wide logger.
func Logger() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return global
}

type ctxKey struct{}

// WithContext attaches a component-scoped logger to ctx.
func WithContext(ctx context.Context, l zerolog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger attached to ctx, or the process-wide
// logger when none is attached.
func FromContext(ctx context.Context) zerolog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(zerolog.Logger); ok {
		return l
	}
	return Logger()
}

// Component returns a child logger tagged with a "component" field, the
// convention used throughout the server for per-subsystem log scoping.
func Component(name string) zerolog.Logger {
	return Logger().With().Str("component", name).Logger()
}
