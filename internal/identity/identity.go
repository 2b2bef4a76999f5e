// Package identity resolves the caller's display name for a request.
package identity

import (
	"context"
	"net"
	"net/http"

	"github.com/ashureev/cyberdesk/internal/domain"
)

const (
	// HeaderName carries the caller's display name.
	HeaderName = "X-User-Name"
	// QueryParam is the fallback used by websocket clients.
	QueryParam = "user_name"
)

type contextKey int

const userKey contextKey = iota

// Normalize trims name and collapses empty names to the anonymous identity.
func Normalize(name string) string {
	return domain.NormalizeUser(name)
}

// WithUser stores the normalized user in ctx.
func WithUser(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, userKey, Normalize(name))
}

// UserFromContext extracts the user from the request context. Requests that
// never passed through Middleware are anonymous.
func UserFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userKey).(string); ok {
		return v
	}
	return domain.AnonymousUser
}

// FromRequest reads the identity header, then the query parameter.
func FromRequest(r *http.Request) string {
	name := r.Header.Get(HeaderName)
	if name == "" {
		name = r.URL.Query().Get(QueryParam)
	}
	return Normalize(name)
}

// Middleware injects the caller identity into the request context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), FromRequest(r))))
	})
}

// IPFromRequest returns a normalized remote IP for request tracing.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
