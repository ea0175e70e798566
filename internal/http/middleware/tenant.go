package middleware

import (
	"net/http"

	"github.com/ohohohreohpul/onbuuk2025-sub001/internal/tenancy"
)

// Tenant lifts the X-Business-ID header into the request context so
// handlers can fall back to it when the payload omits the tenant.
func Tenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if businessID := r.Header.Get("X-Business-ID"); businessID != "" {
			r = r.WithContext(tenancy.WithBusinessID(r.Context(), businessID))
		}
		next.ServeHTTP(w, r)
	})
}
