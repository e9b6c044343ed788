package observability

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ZoliswaDube/BizPilot-sub002/internal/platform/requestctx"
)

const (
	cloudTraceHeader = "X-Cloud-Trace-Context"
	tracerName       = "github.com/ZoliswaDube/BizPilot-sub002/internal/platform/observability"

	// orderIDParam is the chi URL parameter carrying the order id on /orders routes.
	orderIDParam = "orderID"

	attrBusinessID = attribute.Key("bizpilot.business_id")
	attrActorID    = attribute.Key("enduser.id")
	attrOrderID    = attribute.Key("bizpilot.order_id")
)

type traceOptions struct {
	provider trace.TracerProvider
}

// TraceOption customises TraceMiddleware.
type TraceOption func(*traceOptions)

// WithTracerProvider overrides the global tracer provider.
func WithTracerProvider(provider trace.TracerProvider) TraceOption {
	return func(o *traceOptions) {
		if provider != nil {
			o.provider = provider
		}
	}
}

// TraceMiddleware continues the caller's Cloud Trace context, opens a server span and stores the trace
// ids on the request context. Once routing has finished the span is renamed to the route pattern and
// tagged with the order id, so /orders/{orderID} requests share one span name.
func TraceMiddleware(projectID string, opts ...TraceOption) func(http.Handler) http.Handler {
	options := traceOptions{provider: otel.GetTracerProvider()}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	tracer := options.provider.Tracer(tracerName)

	return func(next http.Handler) http.Handler {
		if next == nil {
			next = http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if remote, ok := parseCloudTrace(r.Header.Get(cloudTraceHeader)); ok {
				ctx = trace.ContextWithRemoteSpanContext(ctx, remote)
			}

			ctx, span := tracer.Start(ctx, r.Method+" "+sanitizeRoute(r.URL.Path),
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(requestAttributes(r)...),
			)
			defer span.End()

			spanCtx := span.SpanContext()
			info := requestctx.TraceInfo{
				TraceID:   spanCtx.TraceID().String(),
				SpanID:    spanCtx.SpanID().String(),
				Sampled:   spanCtx.IsSampled(),
				ProjectID: projectID,
			}
			if header := cloudTraceValue(spanCtx); header != "" {
				w.Header().Set(cloudTraceHeader, header)
			}

			r = r.WithContext(requestctx.WithTrace(ctx, info))
			next.ServeHTTP(w, r)

			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					span.SetName(r.Method + " " + sanitizeRoute(pattern))
				}
				if orderID := rctx.URLParam(orderIDParam); orderID != "" {
					span.SetAttributes(attrOrderID.String(sanitizeScopeID(orderID)))
				}
			}
		})
	}
}

// ScopeSpanMiddleware tags the active span with the business and actor resolved for the request.
// Mount it after the scope middleware.
func ScopeSpanMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if scope, ok := requestctx.ScopeFrom(r.Context()); ok {
				trace.SpanFromContext(r.Context()).SetAttributes(scopeAttributes(scope)...)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func scopeAttributes(scope requestctx.Scope) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 2)
	if id := sanitizeScopeID(scope.BusinessID); id != "" {
		attrs = append(attrs, attrBusinessID.String(id))
	}
	if id := sanitizeScopeID(scope.ActorID); id != "" {
		attrs = append(attrs, attrActorID.String(id))
	}
	return attrs
}

// parseCloudTrace reads "TRACE_ID/SPAN_ID;o=OPTIONS" where TRACE_ID is 32 hex characters and SPAN_ID
// is the decimal form of the 64-bit span id.
func parseCloudTrace(header string) (trace.SpanContext, bool) {
	traceHex, rest, found := strings.Cut(strings.TrimSpace(header), "/")
	if !found || len(traceHex) != 32 {
		return trace.SpanContext{}, false
	}
	traceID, err := trace.TraceIDFromHex(traceHex)
	if err != nil {
		return trace.SpanContext{}, false
	}

	spanPart, optionPart, _ := strings.Cut(rest, ";")
	raw, err := strconv.ParseUint(strings.TrimSpace(spanPart), 10, 64)
	if err != nil || raw == 0 {
		return trace.SpanContext{}, false
	}
	var spanID trace.SpanID
	for i := len(spanID) - 1; i >= 0; i-- {
		spanID[i] = byte(raw)
		raw >>= 8
	}

	var flags trace.TraceFlags
	if strings.TrimSpace(optionPart) == "o=1" {
		flags = trace.FlagsSampled
	}
	return trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: flags,
		Remote:     true,
	}), true
}

func cloudTraceValue(spanCtx trace.SpanContext) string {
	if !spanCtx.IsValid() {
		return ""
	}
	var raw uint64
	for _, b := range spanCtx.SpanID() {
		raw = raw<<8 | uint64(b)
	}
	option := "0"
	if spanCtx.IsSampled() {
		option = "1"
	}
	return spanCtx.TraceID().String() + "/" + strconv.FormatUint(raw, 10) + ";o=" + option
}

func requestAttributes(r *http.Request) []attribute.KeyValue {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	attrs := []attribute.KeyValue{
		attribute.String("http.request.method", sanitizeMethod(r.Method)),
		attribute.String("url.scheme", scheme),
		attribute.String("url.path", sanitizeRoute(r.URL.Path)),
	}
	if host := r.Host; host != "" {
		attrs = append(attrs, attribute.String("server.address", host))
	}
	if ua := r.UserAgent(); ua != "" {
		attrs = append(attrs, attribute.String("user_agent.original", cleanLogValue(ua, 256)))
	}
	return attrs
}
