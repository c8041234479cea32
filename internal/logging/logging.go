// Package logging is the structured logger shared by the station, the
// device systems and the inspection server. It is a thin layer over slog:
// fields are slog attributes, and a per-request logger rides on the
// context so RPC handlers log with their request ID attached.
package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
)

// ErrUnknownLevel is returned by ParseLevel for an unrecognised level name.
var ErrUnknownLevel = errors.New("unknown log level")

// Field is one structured attribute.
type Field = slog.Attr

// Typed field constructors.
func String(key, value string) Field          { return slog.String(key, value) }
func Int(key string, value int) Field         { return slog.Int(key, value) }
func Bool(key string, value bool) Field       { return slog.Bool(key, value) }
func Float64(key string, value float64) Field { return slog.Float64(key, value) }
func Any(key string, value any) Field         { return slog.Any(key, value) }

// Entity records an entity handle, or anything else printable, by its
// string form.
func Entity(key string, e fmt.Stringer) Field { return slog.String(key, e.String()) }

// Err records err under "error". A nil err adds nothing.
func Err(err error) Field {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String("error", err.Error())
}

// Logger is what every component logs through. The context is passed to
// the handler so trace and request correlation survive.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...Field)
	Info(ctx context.Context, msg string, fields ...Field)
	Warn(ctx context.Context, msg string, fields ...Field)
	Error(ctx context.Context, msg string, fields ...Field)
	With(fields ...Field) Logger
}

// Config selects the handler.
type Config struct {
	Level     string // debug, info, warn or error; empty means info
	Format    string // text or json
	AddSource bool

	// Output defaults to stdout.
	Output io.Writer
}

// ParseLevel maps a level name onto slog's levels.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("%w: %q", ErrUnknownLevel, level)
}

// New builds a slog-backed Logger. An unknown level logs at info; callers
// that care validate it with ParseLevel first.
func New(cfg Config) Logger {
	level, _ := ParseLevel(cfg.Level)
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: level, AddSource: cfg.AddSource}

	var h slog.Handler = slog.NewTextHandler(out, opts)
	if strings.EqualFold(cfg.Format, "json") {
		h = slog.NewJSONHandler(out, opts)
	}
	return slogLogger{slog.New(h)}
}

type slogLogger struct{ l *slog.Logger }

func (s slogLogger) With(fields ...Field) Logger {
	args := make([]any, len(fields))
	for i, f := range fields {
		args[i] = f
	}
	return slogLogger{s.l.With(args...)}
}

func (s slogLogger) Debug(ctx context.Context, msg string, fields ...Field) {
	s.l.LogAttrs(ctx, slog.LevelDebug, msg, fields...)
}

func (s slogLogger) Info(ctx context.Context, msg string, fields ...Field) {
	s.l.LogAttrs(ctx, slog.LevelInfo, msg, fields...)
}

func (s slogLogger) Warn(ctx context.Context, msg string, fields ...Field) {
	s.l.LogAttrs(ctx, slog.LevelWarn, msg, fields...)
}

func (s slogLogger) Error(ctx context.Context, msg string, fields ...Field) {
	s.l.LogAttrs(ctx, slog.LevelError, msg, fields...)
}

// Noop returns a logger that drops everything.
func Noop() Logger { return noop{} }

// OrNoop returns l, or Noop when l is nil.
func OrNoop(l Logger) Logger {
	if l == nil {
		return noop{}
	}
	return l
}

type noop struct{}

func (noop) With(...Field) Logger                    { return noop{} }
func (noop) Debug(context.Context, string, ...Field) {}
func (noop) Info(context.Context, string, ...Field)  {}
func (noop) Warn(context.Context, string, ...Field)  {}
func (noop) Error(context.Context, string, ...Field) {}

type (
	requestIDKey struct{}
	loggerKey    struct{}
)

// ContextWithRequestID stores id as the request ID.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the request ID, or "" when there is none.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// ContextWithLogger stores l on ctx; a nil l stores Noop.
func ContextWithLogger(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, OrNoop(l))
}

// LoggerFromContext returns the logger stored on ctx, or nil.
func LoggerFromContext(ctx context.Context) Logger {
	l, _ := ctx.Value(loggerKey{}).(Logger)
	return l
}

// WithRequestLogger gives ctx a request ID, generating one when absent, and
// stores base annotated with it. The annotated logger is also returned.
func WithRequestLogger(ctx context.Context, base Logger) (context.Context, Logger) {
	id := RequestIDFromContext(ctx)
	if id == "" {
		id = uuid.NewString()
		ctx = ContextWithRequestID(ctx, id)
	}
	l := OrNoop(base).With(String("request_id", id))
	return ContextWithLogger(ctx, l), l
}
