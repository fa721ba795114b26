package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/nairobikonnect/konnect/internal/port"
)

type contextKey struct{}

// RoleAdmin may perform every operation the role gate guards.
const RoleAdmin = "admin"

// Middleware resolves the bearer token and stores the principal in the
// request context. Requests without a resolvable token get 401.
func Middleware(identity port.Identity) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				deny(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			principal, err := identity.Resolve(r.Context(), token)
			if err != nil {
				deny(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), contextKey{}, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole is the single authorization gate: the principal must hold the
// given role (admins always pass).
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := FromContext(r.Context())
			if principal == nil {
				deny(w, http.StatusUnauthorized, "missing bearer token")
				return
			}
			if principal.Role != role && principal.Role != RoleAdmin {
				deny(w, http.StatusForbidden, "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// FromContext returns the authenticated principal, or nil outside the
// middleware.
func FromContext(ctx context.Context) *port.Principal {
	principal, _ := ctx.Value(contextKey{}).(*port.Principal)
	return principal
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(header, "Bearer ")
}

func deny(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
