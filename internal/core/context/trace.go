package context

import (
	"context"

	"github.com/google/uuid"
)

// TraceContext correlates the log lines, outbox rows and audit rows written
// by one cascade invocation.
type TraceContext struct {
	TraceID   string
	RequestID string
}

type traceContextKey struct{}

// WithTrace adds TraceContext to context.
func WithTrace(ctx context.Context, trace *TraceContext) context.Context {
	return context.WithValue(ctx, traceContextKey{}, trace)
}

// GetTrace returns TraceContext from context.
func GetTrace(ctx context.Context) *TraceContext {
	if v, ok := ctx.Value(traceContextKey{}).(*TraceContext); ok {
		return v
	}
	return nil
}

// GetTraceID returns trace ID from context or empty string.
func GetTraceID(ctx context.Context) string {
	if t := GetTrace(ctx); t != nil {
		return t.TraceID
	}
	return ""
}

// EnsureTrace returns ctx unchanged if it already carries a trace,
// otherwise a child context with freshly generated IDs.
func EnsureTrace(ctx context.Context) context.Context {
	if GetTrace(ctx) != nil {
		return ctx
	}
	return WithTrace(ctx, NewTraceContext())
}

// NewTraceContext creates a new TraceContext with generated IDs.
func NewTraceContext() *TraceContext {
	return &TraceContext{
		TraceID:   uuid.New().String(),
		RequestID: uuid.New().String(),
	}
}
