package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/postcraft-hq/postcraft/guard"
)

type contextKey int

const userIDKey contextKey = iota

// maxUserIDLen bounds the identity header so it cannot bloat storage keys.
const maxUserIDLen = 128

// RequireUser reads the identity header set by the upstream identity
// provider and stores the user id on the request context.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(guard.UserIDHeader))
		if userID == "" {
			writeError(w, http.StatusUnauthorized, CodeUnauthenticated, "missing "+guard.UserIDHeader+" header")
			return
		}
		if len(userID) > maxUserIDLen {
			writeError(w, http.StatusBadRequest, CodeInvalidRequest, guard.UserIDHeader+" header too long")
			return
		}
		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}
