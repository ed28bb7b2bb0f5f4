// Package logging provides structured logging for the engine. Output goes to
// stdout in JSON or text form; when an OTLP logger provider is supplied,
// records are bridged to it as well.
package logging

import (
	"context"
	"log/slog"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/sdk/log"
)

type contextKey string

const loggerKey contextKey = "logger"

// Logger wraps slog.Logger with convenience methods
type Logger struct {
	*slog.Logger
}

// Config holds logging configuration
type Config struct {
	Level          string              // debug, info, warn, error
	Format         string              // json, text
	LoggerProvider *log.LoggerProvider // Optional OTLP logger provider for exporting logs
}

// NewLogger creates a new structured logger based on configuration
func NewLogger(cfg Config) *Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
		// Add source location for error and above
		AddSource: level <= slog.LevelError,
	}

	var stdoutHandler slog.Handler
	if cfg.Format == "text" {
		stdoutHandler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		stdoutHandler = slog.NewJSONHandler(os.Stdout, opts)
	}

	handler := stdoutHandler
	if cfg.LoggerProvider != nil {
		otlpHandler := otelslog.NewHandler("modelql", otelslog.WithLoggerProvider(cfg.LoggerProvider))
		handler = newMultiHandler(stdoutHandler, otlpHandler)
	}

	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithEntity returns a logger scoped to one entity's operations.
func (l *Logger) WithEntity(entity string) *Logger {
	return &Logger{
		Logger: l.With(slog.String("entity", entity)),
	}
}

// WithFields returns a new logger with additional fields
func (l *Logger) WithFields(fields ...any) *Logger {
	return &Logger{
		Logger: l.With(fields...),
	}
}

// FromContext retrieves the logger from context, or returns a default logger
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(loggerKey).(*Logger); ok {
		return logger
	}
	return &Logger{
		Logger: slog.Default(),
	}
}

// WithLogger adds a logger to the context
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// multiHandler fans records out to every handler that accepts the level.
type multiHandler struct {
	handlers []slog.Handler
}

func newMultiHandler(handlers ...slog.Handler) *multiHandler {
	return &multiHandler{handlers: handlers}
}

func (m *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m *multiHandler) Handle(ctx context.Context, record slog.Record) error {
	for _, h := range m.handlers {
		if h.Enabled(ctx, record.Level) {
			if err := h.Handle(ctx, record); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newHandlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		newHandlers[i] = h.WithAttrs(attrs)
	}
	return &multiHandler{handlers: newHandlers}
}

func (m *multiHandler) WithGroup(name string) slog.Handler {
	newHandlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		newHandlers[i] = h.WithGroup(name)
	}
	return &multiHandler{handlers: newHandlers}
}
