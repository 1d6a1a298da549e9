// Package logs builds the process logger: leveled slog records written to a
// rotating file and, optionally, to stdout.
package logs

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/tebeka/atexit"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LevelTrace sits below slog.LevelDebug for per-chunk diagnostics.
const LevelTrace = slog.LevelDebug - 4

// Config selects the sinks and the minimum level.
type Config struct {
	// Level is one of trace, debug, info, warn, error or off.
	Level string

	// File is the rotating log file path. Empty disables the file sink.
	File string

	// AlsoStdout duplicates records to stdout.
	AlsoStdout bool
}

// ParseLevel maps a level name to a slog.Level. The boolean reports
// whether logging is switched off entirely.
func ParseLevel(name string) (slog.Level, bool, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "trace":
		return LevelTrace, false, nil
	case "debug":
		return slog.LevelDebug, false, nil
	case "", "info":
		return slog.LevelInfo, false, nil
	case "warn", "warning":
		return slog.LevelWarn, false, nil
	case "error":
		return slog.LevelError, false, nil
	case "off":
		return slog.LevelError, true, nil
	default:
		return slog.LevelInfo, false, fmt.Errorf("unknown log level %q", name)
	}
}

// New builds a logger from cfg. The file sink is closed on atexit.Exit.
func New(cfg Config) (*slog.Logger, error) {
	level, off, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	if off {
		return Discard(), nil
	}

	var sinks []io.Writer
	if cfg.File != "" {
		fileLogger := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    10, // MB
			MaxBackups: 48,
			MaxAge:     30, // days
			Compress:   true,
		}
		atexit.Register(func() {
			_ = fileLogger.Close()
		})
		sinks = append(sinks, fileLogger)
	}
	if cfg.AlsoStdout || len(sinks) == 0 {
		sinks = append(sinks, os.Stdout)
	}

	handler := slog.NewTextHandler(io.MultiWriter(sinks...), &slog.HandlerOptions{
		AddSource:   true,
		Level:       level,
		ReplaceAttr: replaceLevel,
	})

	return slog.New(handler), nil
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// Trace logs at LevelTrace.
func Trace(ctx context.Context, logger *slog.Logger, msg string, args ...any) {
	logger.Log(ctx, LevelTrace, msg, args...)
}

func replaceLevel(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	if level, ok := a.Value.Any().(slog.Level); ok && level == LevelTrace {
		a.Value = slog.StringValue("TRACE")
	}
	return a
}
