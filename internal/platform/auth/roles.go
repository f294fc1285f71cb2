package auth

import (
	"net/http"
	"strings"
)

// Roles carried in the "role" claim.
const (
	RoleStudent = "student"
	RoleFamily  = "family"
	RoleAdmin   = "admin"
)

// RequireRole allows the request only if RequireUser already injected the
// given role into context. Comparison is case-insensitive.
func RequireRole(role string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, _ := RoleFromContext(r.Context())
			if !strings.EqualFold(strings.TrimSpace(got), role) {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin is RequireRole(RoleAdmin).
func RequireAdmin(next http.Handler) http.Handler {
	return RequireRole(RoleAdmin)(next)
}
