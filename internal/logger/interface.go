package logger

import "context"

// Logger is the printf-style logging surface used across the pipeline.
type Logger interface {
	Debug(ctx context.Context, msg string, args ...interface{})
	Info(ctx context.Context, msg string, args ...interface{})
	Warn(ctx context.Context, msg string, args ...interface{})
	Error(ctx context.Context, msg string, args ...interface{})
	// With returns a logger that attaches key/value attributes to every record.
	With(attrs ...any) Logger
}
