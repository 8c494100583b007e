package middleware

import (
	"context"
	"net/http"
)

type userIDContextKey struct{}

// UserHeader carries the authenticated user id, injected by the session
// gateway in front of this service. Session issuance itself lives there.
const UserHeader = "X-User-ID"

// Identity requires an upstream-authenticated user on every request it wraps.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get(UserHeader)
		if userID == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), userIDContextKey{}, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UserIDFromContext returns the authenticated user id, or "".
func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userIDContextKey{}).(string); ok {
		return v
	}
	return ""
}
