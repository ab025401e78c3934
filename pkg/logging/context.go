package logging

import (
	"context"
)

type contextKey string

const (
	TraceIDKey     contextKey = "trace_id"
	MessageIDKey   contextKey = "message_id"
	SubjectKey     contextKey = "subject"
	ServiceNameKey contextKey = "service_name"
)

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

func WithMessageID(ctx context.Context, messageID string) context.Context {
	return context.WithValue(ctx, MessageIDKey, messageID)
}

func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, SubjectKey, subject)
}

func WithServiceName(ctx context.Context, serviceName string) context.Context {
	return context.WithValue(ctx, ServiceNameKey, serviceName)
}

func GetTraceID(ctx context.Context) string {
	return stringValue(ctx, TraceIDKey)
}

func GetMessageID(ctx context.Context) string {
	return stringValue(ctx, MessageIDKey)
}

func GetSubject(ctx context.Context) string {
	return stringValue(ctx, SubjectKey)
}

func GetServiceName(ctx context.Context) string {
	return stringValue(ctx, ServiceNameKey)
}

func stringValue(ctx context.Context, key contextKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// GetLogFields flattens known context values into zap key/value pairs.
func GetLogFields(ctx context.Context) []interface{} {
	fields := make([]interface{}, 0, 8)

	if traceID := GetTraceID(ctx); traceID != "" {
		fields = append(fields, "trace_id", traceID)
	}

	if messageID := GetMessageID(ctx); messageID != "" {
		fields = append(fields, "message_id", messageID)
	}

	if subject := GetSubject(ctx); subject != "" {
		fields = append(fields, "subject", subject)
	}

	if serviceName := GetServiceName(ctx); serviceName != "" {
		fields = append(fields, "service_name", serviceName)
	}

	return fields
}
