package auth

import (
	"net/http"
	"strings"

	"github.com/ZoliswaDube/BizPilot-sub002/internal/platform/httpx"
	"github.com/ZoliswaDube/BizPilot-sub002/internal/platform/requestctx"
)

// Default header names populated by the gateway.
const (
	HeaderBusinessID = "X-Business-ID"
	HeaderActorID    = "X-Actor-ID"
	HeaderRoles      = "X-Actor-Roles"

	maxHeaderIDLength = 128
)

// Middleware reads identity headers, rejects requests without them and stores both the Identity
// and the requestctx.Scope on the context.
type Middleware struct {
	businessHeader string
	actorHeader    string
	rolesHeader    string
}

// Option customises Middleware.
type Option func(*Middleware)

// WithHeaders overrides the header names. Empty values keep the defaults.
func WithHeaders(business, actor, roles string) Option {
	return func(m *Middleware) {
		if business = strings.TrimSpace(business); business != "" {
			m.businessHeader = business
		}
		if actor = strings.TrimSpace(actor); actor != "" {
			m.actorHeader = actor
		}
		if roles = strings.TrimSpace(roles); roles != "" {
			m.rolesHeader = roles
		}
	}
}

// NewMiddleware constructs the gateway identity middleware.
func NewMiddleware(opts ...Option) *Middleware {
	m := &Middleware{
		businessHeader: HeaderBusinessID,
		actorHeader:    HeaderActorID,
		rolesHeader:    HeaderRoles,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// RequireScope rejects requests that lack a business or actor id.
func (m *Middleware) RequireScope() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			businessID := headerID(r, m.businessHeader)
			actorID := headerID(r, m.actorHeader)
			if businessID == "" || actorID == "" {
				httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "business and actor identity headers are required", http.StatusUnauthorized))
				return
			}

			identity := &Identity{
				ActorID:    actorID,
				BusinessID: businessID,
				Roles:      parseRoles(r.Header.Get(m.rolesHeader)),
			}
			ctx := WithIdentity(r.Context(), identity)
			ctx = requestctx.WithScope(ctx, requestctx.Scope{BusinessID: businessID, ActorID: actorID})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole allows the request through when the identity holds any of roles. It must run after
// RequireScope.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		if role = normaliseRole(role); role != "" {
			allowed[role] = struct{}{}
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := IdentityFromContext(r.Context())
			if !ok {
				httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "identity is required", http.StatusUnauthorized))
				return
			}
			for _, role := range identity.Roles {
				if _, ok := allowed[normaliseRole(role)]; ok {
					next.ServeHTTP(w, r)
					return
				}
			}
			httpx.WriteError(r.Context(), w, httpx.NewError("permission_denied", "insufficient role", http.StatusForbidden))
		})
	}
}

func headerID(r *http.Request, name string) string {
	value := strings.TrimSpace(r.Header.Get(name))
	if len(value) > maxHeaderIDLength || strings.ContainsAny(value, " \t\r\n") {
		return ""
	}
	return value
}

func parseRoles(raw string) []string {
	var roles []string
	seen := make(map[string]struct{})
	for _, part := range strings.Split(raw, ",") {
		role := normaliseRole(part)
		if role == "" {
			continue
		}
		if _, dup := seen[role]; dup {
			continue
		}
		seen[role] = struct{}{}
		roles = append(roles, role)
	}
	return roles
}
