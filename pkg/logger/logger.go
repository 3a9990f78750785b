// Package logger builds the application's slog logger.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/natefinch/lumberjack"

	"ultrashots/pkg/config"
)

// New returns a logger for the given settings: text on stdout for "console", JSON on stdout
// for "json" and JSON into a rotating file for "file".
func New(c config.LogConfig) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{Level: ParseLevel(c.Level)}
	switch c.Type {
	case "", "console":
		return slog.New(slog.NewTextHandler(os.Stdout, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stdout, opts)), nil
	case "file":
		if c.FilePath == "" {
			return nil, fmt.Errorf("file path required for file logger")
		}
		writer := &lumberjack.Logger{
			Filename:   c.FilePath,
			MaxSize:    c.MaxSize,
			MaxBackups: c.MaxBackups,
			MaxAge:     c.MaxAge,
			Compress:   true,
		}
		return slog.New(slog.NewJSONHandler(writer, opts)), nil
	default:
		return nil, fmt.Errorf("unsupported log type: %s", c.Type)
	}
}

// ParseLevel maps a configured level name to a slog level. Unknown names mean info.
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

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
