package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	slogmulti "github.com/samber/slog-multi"
)

type implLogger struct {
	logger *slog.Logger
	level  slog.Level
}

// New creates a Logger writing text records to stdout.
func New(level string) Logger {
	lvl := levelFromString(level)
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	return &implLogger{logger: slog.New(handler), level: lvl}
}

// NewWithFile writes text to stdout and JSON to the given file.
// Falls back to stdout only when the file cannot be opened.
func NewWithFile(level, path string) (Logger, func() error) {
	if path == "" {
		return New(level), func() error { return nil }
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		l := New(level)
		l.Warn(context.Background(), "Failed to open log file %s, using stdout only: %v", path, err)
		return l, func() error { return nil }
	}

	return NewWithWriters(os.Stdout, file, level), file.Close
}

// NewWithWriters fans out to a text writer and a JSON writer.
func NewWithWriters(text, json io.Writer, level string) Logger {
	lvl := levelFromString(level)
	textHandler := slog.NewTextHandler(text, &slog.HandlerOptions{Level: lvl})
	jsonHandler := slog.NewJSONHandler(json, &slog.HandlerOptions{Level: lvl})
	return &implLogger{
		logger: slog.New(slogmulti.Fanout(textHandler, jsonHandler)),
		level:  lvl,
	}
}

// NewNop discards everything. Used by tests.
func NewNop() Logger {
	return &implLogger{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		level:  slog.LevelError + 4,
	}
}

func levelFromString(value string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
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

func (l *implLogger) shouldLog(level slog.Level) bool {
	return level >= l.level
}

func (l *implLogger) log(ctx context.Context, level slog.Level, msg string, args []interface{}) {
	if !l.shouldLog(level) {
		return
	}
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	l.logger.Log(ctx, level, msg)
}

func (l *implLogger) Debug(ctx context.Context, msg string, args ...interface{}) {
	l.log(ctx, slog.LevelDebug, msg, args)
}

func (l *implLogger) Info(ctx context.Context, msg string, args ...interface{}) {
	l.log(ctx, slog.LevelInfo, msg, args)
}

func (l *implLogger) Warn(ctx context.Context, msg string, args ...interface{}) {
	l.log(ctx, slog.LevelWarn, msg, args)
}

func (l *implLogger) Error(ctx context.Context, msg string, args ...interface{}) {
	l.log(ctx, slog.LevelError, msg, args)
}

func (l *implLogger) With(attrs ...any) Logger {
	return &implLogger{logger: l.logger.With(attrs...), level: l.level}
}
