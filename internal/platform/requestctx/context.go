// Package requestctx carries per-request values: the logger, trace metadata and the caller's
// business scope.
package requestctx

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

type contextKey string

const (
	loggerContextKey contextKey = "requestctx/logger"
	traceContextKey  contextKey = "requestctx/trace"
	scopeContextKey  contextKey = "requestctx/scope"
)

var noopLogger = zap.NewNop()

// TraceInfo captures trace metadata propagated through request context.
type TraceInfo struct {
	TraceID   string
	SpanID    string
	Sampled   bool
	ProjectID string
}

// Scope identifies who is acting and on behalf of which business. Both values arrive from the
// authenticating gateway and are trusted as-is.
type Scope struct {
	BusinessID string
	ActorID    string
}

// Valid reports whether both identifiers are present.
func (s Scope) Valid() bool {
	return strings.TrimSpace(s.BusinessID) != "" && strings.TrimSpace(s.ActorID) != ""
}

// WithLogger stores the logger in context for downstream consumers.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = noopLogger
	}
	return context.WithValue(ctx, loggerContextKey, logger)
}

// Logger retrieves the zap logger from context or returns a no-op logger.
func Logger(ctx context.Context) *zap.Logger {
	if ctx == nil {
		return noopLogger
	}
	if logger, ok := ctx.Value(loggerContextKey).(*zap.Logger); ok && logger != nil {
		return logger
	}
	return noopLogger
}

// NoopLogger exposes the shared no-op logger returned when the context carries none.
func NoopLogger() *zap.Logger { return noopLogger }

// WithTrace stores the trace metadata on the context for downstream usage.
func WithTrace(ctx context.Context, info TraceInfo) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, traceContextKey, info)
}

// Trace retrieves the trace metadata from context when available.
func Trace(ctx context.Context) (TraceInfo, bool) {
	if ctx == nil {
		return TraceInfo{}, false
	}
	info, ok := ctx.Value(traceContextKey).(TraceInfo)
	return info, ok
}

// TraceID extracts the trace identifier from context when present.
func TraceID(ctx context.Context) string {
	info, _ := Trace(ctx)
	return info.TraceID
}

// WithScope stores the business scope on the context.
func WithScope(ctx context.Context, scope Scope) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	scope.BusinessID = strings.TrimSpace(scope.BusinessID)
	scope.ActorID = strings.TrimSpace(scope.ActorID)
	return context.WithValue(ctx, scopeContextKey, scope)
}

// ScopeFrom returns the scope stored by WithScope.
func ScopeFrom(ctx context.Context) (Scope, bool) {
	if ctx == nil {
		return Scope{}, false
	}
	scope, ok := ctx.Value(scopeContextKey).(Scope)
	return scope, ok && scope.Valid()
}
