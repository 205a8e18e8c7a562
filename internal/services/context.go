package services

import "context"

type contextKey string

const (
	sessionIDKey  contextKey = "session_id"
	frameIndexKey contextKey = "frame_index"
	requestIDKey  contextKey = "request_id"
)

// WithSessionID annotates context with the capture session identifier.
func WithSessionID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, sessionIDKey, id)
}

// SessionIDFromContext extracts the capture session identifier if present.
func SessionIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(sessionIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithFrameIndex annotates context with the frame index being processed.
func WithFrameIndex(ctx context.Context, index int) context.Context {
	return context.WithValue(ctx, frameIndexKey, index)
}

// FrameIndexFromContext returns the frame index if present.
func FrameIndexFromContext(ctx context.Context) (int, bool) {
	v, ok := ctx.Value(frameIndexKey).(int)
	return v, ok
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
