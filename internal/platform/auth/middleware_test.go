package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ZoliswaDube/BizPilot-sub002/internal/platform/requestctx"
)

func TestRequireScope_AllowsGatewayHeaders(t *testing.T) {
	handlerCalled := false
	handler := NewMiddleware().RequireScope()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true

		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			t.Fatalf("expected identity in context")
		}
		if identity.ActorID != "usr_1" || identity.BusinessID != "biz_1" {
			t.Fatalf("unexpected identity %+v", identity)
		}
		if !identity.HasRole("admin") || !identity.HasRole("STAFF") {
			t.Fatalf("expected roles to be parsed, got %v", identity.Roles)
		}
		scope, ok := requestctx.ScopeFrom(r.Context())
		if !ok || scope.BusinessID != "biz_1" || scope.ActorID != "usr_1" {
			t.Fatalf("unexpected scope %+v", scope)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/orders/ord_1", nil)
	req.Header.Set(HeaderBusinessID, "biz_1")
	req.Header.Set(HeaderActorID, " usr_1 ")
	req.Header.Set(HeaderRoles, "staff, Admin,staff")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if !handlerCalled {
		t.Fatalf("expected handler to be called")
	}
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
}

func TestRequireScope_RejectsMissingHeaders(t *testing.T) {
	cases := map[string]map[string]string{
		"no headers":     {},
		"missing actor":  {HeaderBusinessID: "biz_1"},
		"missing biz":    {HeaderActorID: "usr_1"},
		"embedded space": {HeaderBusinessID: "biz 1", HeaderActorID: "usr_1"},
	}
	for name, headers := range cases {
		t.Run(name, func(t *testing.T) {
			handler := NewMiddleware().RequireScope()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
				t.Fatalf("handler should not be called")
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range headers {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", rec.Code)
			}
			var body map[string]any
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body["error"] != "unauthenticated" {
				t.Fatalf("unexpected error code %v", body["error"])
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	mw := NewMiddleware(WithHeaders("X-Tenant", "X-User", "X-Groups"))
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	handler := mw.RequireScope()(RequireRole(RoleAdmin)(inner))

	req := httptest.NewRequest(http.MethodDelete, "/admin/orders/ord_1", nil)
	req.Header.Set("X-Tenant", "biz_1")
	req.Header.Set("X-User", "usr_1")
	req.Header.Set("X-Groups", "staff")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}

	req.Header.Set("X-Groups", "staff,admin")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	RequireRole(RoleAdmin)(inner).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without identity, got %d", rec.Code)
	}
}
