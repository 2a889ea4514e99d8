package log

import (
	"context"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type ctxKey struct{}

var defaultLogger *zap.Logger

func init() {
	level := zapcore.InfoLevel
	if lvl, ok := os.LookupEnv("LOG_LEVEL"); ok {
		if err := level.Set(lvl); err != nil {
			level = zapcore.InfoLevel
		}
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.MessageKey = "message"
	cfg.EncoderConfig.LevelKey = "severity"
	l, err := cfg.Build()
	if err != nil {
		l = zap.NewExample()
	}
	defaultLogger = l
}

// SetLogger replaces the default logger (used by tests and commands needing a custom sink)
func SetLogger(l *zap.Logger) {
	defaultLogger = l
}

// Logger returns the logger attached to the context, or the default one
func Logger(ctx context.Context) *zap.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(ctxKey{}).(*zap.Logger); ok {
			return l
		}
	}
	return defaultLogger
}

// With returns a new context whose logger carries the key/value field
func With(ctx context.Context, key string, value interface{}) context.Context {
	return context.WithValue(ctx, ctxKey{}, Logger(ctx).With(zap.Any(key, value)))
}

// WithFields returns a new context whose logger carries the fields
func WithFields(ctx context.Context, fields ...zap.Field) context.Context {
	return context.WithValue(ctx, ctxKey{}, Logger(ctx).With(fields...))
}

// Fatal logs the message with the default logger and exits
func Fatal(msg string, fields ...zap.Field) {
	defaultLogger.Fatal(msg, fields...)
}
