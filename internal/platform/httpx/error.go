package httpx

import (
	"context"
	"encoding/json"
	"maps"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/ZoliswaDube/BizPilot-sub002/internal/platform/requestctx"
)

const maxFieldErrors = 100

// FieldError addresses one rejected request field, e.g. "items[2].quantity".
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is the JSON error envelope returned by the API:
//
//	{"error": code, "message": ..., "status": 422, "request_id": ..., "trace_id": ...,
//	 "retryable": true, "errors": [{"field": ..., "message": ...}], ...details}
//
// Details are merged into the top level. Field errors win over a details entry named "errors".
type Error struct {
	Code      string
	Message   string
	Status    int
	RequestID string
	TraceID   string
	Retryable bool
	Fields    []FieldError
	Details   map[string]any
}

// NewError builds an envelope; a zero status becomes 500.
func NewError(code, message string, status int) Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return Error{
		Code:    sanitize(code, 80),
		Message: sanitize(message, 512),
		Status:  status,
	}
}

func (e Error) WithRequestID(id string) Error {
	e.RequestID = sanitize(id, 80)
	return e
}

func (e Error) WithTraceID(id string) Error {
	e.TraceID = sanitize(id, 64)
	return e
}

// WithFieldErrors attaches field-addressable validation messages, keeping at most 100.
func (e Error) WithFieldErrors(fields ...FieldError) Error {
	if len(fields) > maxFieldErrors {
		fields = fields[:maxFieldErrors]
	}
	out := make([]FieldError, 0, len(fields))
	for _, f := range fields {
		out = append(out, FieldError{Field: sanitize(f.Field, 120), Message: sanitize(f.Message, 512)})
	}
	e.Fields = out
	return e
}

// AsRetryable marks the failure as transient: the caller may re-read state and repeat the request,
// reusing its Idempotency-Key.
func (e Error) AsRetryable() Error {
	e.Retryable = true
	return e
}

// WithDetails attaches additional JSON-serialisable metadata.
func (e Error) WithDetails(details map[string]any) Error {
	if len(details) == 0 {
		return e
	}
	e.Details = maps.Clone(details)
	return e
}

// WriteError writes err as JSON. Request and trace ids default to the ones on ctx.
func WriteError(ctx context.Context, w http.ResponseWriter, err Error) {
	status := err.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}

	requestID := err.RequestID
	if requestID == "" {
		requestID = sanitize(middleware.GetReqID(ctx), 80)
	}
	traceID := err.TraceID
	if traceID == "" {
		traceID = sanitize(requestctx.TraceID(ctx), 64)
	}

	payload := make(map[string]any, len(err.Details)+6)
	maps.Copy(payload, err.Details)
	payload["error"] = err.Code
	payload["message"] = err.Message
	payload["status"] = status
	if requestID != "" {
		payload["request_id"] = requestID
	}
	if traceID != "" {
		payload["trace_id"] = traceID
	}
	if err.Retryable {
		payload["retryable"] = true
	}
	if err.Fields != nil {
		payload["errors"] = err.Fields
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func sanitize(value string, limit int) string {
	value = strings.TrimSpace(strings.NewReplacer("\n", " ", "\r", " ").Replace(value))
	if len(value) > limit {
		value = value[:limit]
	}
	return value
}
