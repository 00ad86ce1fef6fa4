package logging

import (
	"context"

	"go.uber.org/zap"
)

type ctxKey string

const (
	// TraceIDKey is the context key for the request trace ID.
	TraceIDKey ctxKey = "trace_id"
	// MediaIDKey is the context key for the media item being edited.
	MediaIDKey ctxKey = "media_id"
)

// WithContext creates a child logger with trace_id and media_id taken from ctx.
func WithContext(logger Logger, ctx context.Context) Logger {
	if ctx == nil {
		return logger
	}

	var fields []zap.Field
	if traceID := GetTraceID(ctx); traceID != "" {
		fields = append(fields, zap.String("trace_id", traceID))
	}
	if mediaID := GetMediaID(ctx); mediaID != "" {
		fields = append(fields, MediaID(mediaID))
	}
	if len(fields) == 0 {
		return logger
	}
	return logger.With(fields...)
}

func GetTraceID(ctx context.Context) string {
	return stringValue(ctx, TraceIDKey)
}

func SetTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

func GetMediaID(ctx context.Context) string {
	return stringValue(ctx, MediaIDKey)
}

func SetMediaID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, MediaIDKey, id)
}

func stringValue(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	s, _ := ctx.Value(key).(string)
	return s
}

type loggerKey struct{}

// FromContext returns the Logger stored in ctx, or a no-op logger.
func FromContext(ctx context.Context) Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey{}).(Logger); ok {
			return l
		}
	}
	return NewNop()
}

// ToContext stores the Logger in the context.
func ToContext(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}
