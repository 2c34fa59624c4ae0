package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// LogConfig selects the level and output format of the process logger.
type LogConfig struct {
	Level     string
	Format    string
	AddSource bool
}

// ParseLevel maps a configured level name to slog. Unknown names fall back
// to info and report ok=false.
func ParseLevel(v string) (slog.Level, bool) {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "DEBUG":
		return slog.LevelDebug, true
	case "INFO", "":
		return slog.LevelInfo, true
	case "WARN", "WARNING":
		return slog.LevelWarn, true
	case "ERROR":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

// NewLogger builds a logger writing to w without touching the default.
func NewLogger(w io.Writer, config LogConfig) *slog.Logger {
	level, _ := ParseLevel(config.Level)
	opts := &slog.HandlerOptions{Level: level, AddSource: config.AddSource}
	var handler slog.Handler
	switch strings.ToLower(strings.TrimSpace(config.Format)) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// InitLogger configures the process-wide logger on stdout and installs it
// as the slog default.
func InitLogger(config LogConfig) *slog.Logger {
	logger := NewLogger(os.Stdout, config)
	slog.SetDefault(logger)
	if _, ok := ParseLevel(config.Level); !ok {
		logger.Warn("invalid log level specified, defaulting to INFO", "specified_level", config.Level)
	}
	switch strings.ToLower(strings.TrimSpace(config.Format)) {
	case "json", "text", "":
	default:
		logger.Warn("invalid log format specified, defaulting to text", "specified_format", config.Format)
	}
	return logger
}

// NewComponentLogger creates a component-specific logger with context.
// It adds the component name to all log messages for better traceability.
func NewComponentLogger(base *slog.Logger, component string) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	return base.With(
		slog.String("component", component),
	)
}
