// Package logger builds the server's slog loggers: JSON in production,
// colored single-line output everywhere else.
package logger

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

const (
	formatJSON   = "json"
	formatPretty = "pretty"
)

// Logger is a slog.Logger with scoping helpers for sync and API code.
type Logger struct {
	*slog.Logger
}

// Config holds logger configuration.
type Config struct {
	Writer      io.Writer
	Format      string
	Environment string
	Level       slog.Level
	AddSource   bool
}

// New creates a logger. An empty Format picks JSON for the production
// environment and the pretty handler otherwise. Writer defaults to stdout.
func New(cfg Config) *Logger {
	w := cfg.Writer
	if w == nil {
		w = os.Stdout
	}

	opts := &slog.HandlerOptions{
		Level:       cfg.Level,
		AddSource:   cfg.AddSource,
		ReplaceAttr: trimSource,
	}

	var h slog.Handler
	switch resolveFormat(cfg) {
	case formatJSON:
		h = slog.NewJSONHandler(w, opts)
	default:
		h = NewPrettyHandler(w, opts)
	}
	return &Logger{Logger: slog.New(h)}
}

func resolveFormat(cfg Config) string {
	if cfg.Format != "" {
		return cfg.Format
	}
	if cfg.Environment == "production" {
		return formatJSON
	}
	return formatPretty
}

// trimSource keeps only the file name of source locations.
func trimSource(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.SourceKey {
		return a
	}
	if src, ok := a.Value.Any().(*slog.Source); ok {
		src.File = filepath.Base(src.File)
	}
	return a
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// ParseLevel converts a level name to slog.Level; unknown names are info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (l *Logger) with(args ...any) *Logger {
	return &Logger{Logger: l.With(args...)}
}

// WithError attaches err as the "error" attribute.
func (l *Logger) WithError(err error) *Logger {
	return l.with(slog.String("error", err.Error()))
}

// WithField attaches one attribute.
func (l *Logger) WithField(key string, value any) *Logger {
	return l.with(slog.Any(key, value))
}

// WithUser scopes records to one feed owner.
func (l *Logger) WithUser(userID string) *Logger {
	return l.WithField("user_id", userID)
}

// Fatal logs at error level and exits with status 1.
func (l *Logger) Fatal(msg string, args ...any) {
	l.Error(msg, args...)
	os.Exit(1)
}
