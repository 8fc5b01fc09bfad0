// Package logger provides the process-wide structured logger. It is a thin
// printf-style layer over zerolog so call sites stay short.
package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Level is a zerolog level.
type Level = zerolog.Level

const (
	LevelDebug = zerolog.DebugLevel
	LevelInfo  = zerolog.InfoLevel
	LevelWarn  = zerolog.WarnLevel
	LevelError = zerolog.ErrorLevel
	LevelFatal = zerolog.FatalLevel
)

// ParseLevel maps LOG_LEVEL values onto a Level. Unknown input is info.
func ParseLevel(s string) Level {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "warning" {
		s = "warn"
	}
	level, err := zerolog.ParseLevel(s)
	if err != nil || level == zerolog.NoLevel || level > zerolog.FatalLevel {
		return LevelInfo
	}
	return level
}

type ctxKey string

const (
	// RequestIDKey carries the request id in a context or fiber Locals.
	RequestIDKey ctxKey = "request_id"
	// ClientIDKey carries the authenticated client id.
	ClientIDKey ctxKey = "client_id"
)

type Config struct {
	Level   Level
	Output  io.Writer // stdout when nil
	Service string
	Pretty  bool // console output for local development
}

// Logger wraps a zerolog.Logger. Every With* call returns a child.
type Logger struct {
	zl zerolog.Logger
}

var std atomic.Pointer[Logger]

// Init replaces the default logger.
func Init(cfg Config) {
	if cfg.Service == "" {
		cfg.Service = "guard"
	}
	std.Store(New(cfg))
}

// Default returns the default logger, creating an info-level one on first
// use if Init has not run.
func Default() *Logger {
	if l := std.Load(); l != nil {
		return l
	}
	std.CompareAndSwap(nil, New(Config{Level: LevelInfo, Service: "guard"}))
	return std.Load()
}

func New(cfg Config) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}

	return &Logger{zl: zerolog.New(out).
		Level(cfg.Level).
		With().
		Timestamp().
		Str("service", cfg.Service).
		Logger()}
}

// Zerolog exposes the underlying logger for components that log natively.
func (l *Logger) Zerolog() zerolog.Logger {
	return l.zl
}

func (l *Logger) child(fn func(zerolog.Context) zerolog.Context) *Logger {
	return &Logger{zl: fn(l.zl.With()).Logger()}
}

func (l *Logger) WithField(key string, value any) *Logger {
	return l.child(func(c zerolog.Context) zerolog.Context { return c.Interface(key, value) })
}

func (l *Logger) WithFields(fields map[string]any) *Logger {
	return l.child(func(c zerolog.Context) zerolog.Context { return c.Fields(fields) })
}

// WithContext copies the request and client ids out of ctx.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	return l.child(func(c zerolog.Context) zerolog.Context {
		for _, key := range []ctxKey{RequestIDKey, ClientIDKey} {
			if v, ok := ctx.Value(key).(string); ok && v != "" {
				c = c.Str(string(key), v)
			}
		}
		return c
	})
}

// WithError is a no-op for a nil error.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.child(func(c zerolog.Context) zerolog.Context { return c.Err(err) })
}

func (l *Logger) WithDuration(d time.Duration) *Logger {
	return l.child(func(c zerolog.Context) zerolog.Context {
		return c.Float64("duration_ms", float64(d.Microseconds())/1000.0)
	})
}

func emit(ev *zerolog.Event, msg string, args []any) {
	if ev == nil {
		return
	}
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	ev.Msg(msg)
}

func (l *Logger) Debug(msg string, args ...any) { emit(l.zl.Debug(), msg, args) }
func (l *Logger) Info(msg string, args ...any)  { emit(l.zl.Info(), msg, args) }
func (l *Logger) Warn(msg string, args ...any)  { emit(l.zl.Warn(), msg, args) }
func (l *Logger) Error(msg string, args ...any) { emit(l.zl.Error(), msg, args) }

// Fatal logs and exits the process.
func (l *Logger) Fatal(msg string, args ...any) {
	emit(l.zl.WithLevel(zerolog.FatalLevel), msg, args)
	os.Exit(1)
}

func Debug(msg string, args ...any) { Default().Debug(msg, args...) }
func Info(msg string, args ...any)  { Default().Info(msg, args...) }
func Warn(msg string, args ...any)  { Default().Warn(msg, args...) }
func Error(msg string, args ...any) { Default().Error(msg, args...) }
func Fatal(msg string, args ...any) { Default().Fatal(msg, args...) }

func WithField(key string, value any) *Logger  { return Default().WithField(key, value) }
func WithFields(fields map[string]any) *Logger { return Default().WithFields(fields) }
func WithContext(ctx context.Context) *Logger  { return Default().WithContext(ctx) }
func WithError(err error) *Logger              { return Default().WithError(err) }
func WithDuration(d time.Duration) *Logger     { return Default().WithDuration(d) }
