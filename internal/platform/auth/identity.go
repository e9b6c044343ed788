// Package auth turns the identity headers set by the authenticating gateway into a request
// scope. Token verification happens upstream; this package only shapes and checks what arrives.
package auth

import (
	"context"
	"strings"
)

// Role constants used when checking authorisation boundaries.
const (
	RoleStaff = "staff"
	RoleAdmin = "admin"
)

// Identity is the caller as described by the gateway headers.
type Identity struct {
	ActorID    string
	BusinessID string
	Roles      []string
}

// HasRole reports whether the identity includes the requested role (case-insensitive).
func (i *Identity) HasRole(role string) bool {
	if i == nil {
		return false
	}
	role = normaliseRole(role)
	if role == "" {
		return false
	}
	for _, r := range i.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

type identityContextKey struct{}

// WithIdentity stores identity on the context.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, identityContextKey{}, identity)
}

// IdentityFromContext returns the identity placed by the middleware.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	if ctx == nil {
		return nil, false
	}
	identity, ok := ctx.Value(identityContextKey{}).(*Identity)
	return identity, ok && identity != nil
}

func normaliseRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}
