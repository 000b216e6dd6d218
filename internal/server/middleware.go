package server

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const userIDKey contextKey = "user_id"

// authMiddleware extracts and verifies the bearer token, storing the
// authenticated user id in the request context.
func (s *Server) authMiddleware(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				s.writeJSON(w, http.StatusUnauthorized, errorResponse{Message: "missing authorization header"})
				return
			}

			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
				s.writeJSON(w, http.StatusUnauthorized, errorResponse{Message: "invalid authorization header format"})
				return
			}

			userID, err := verifier.VerifyToken(strings.TrimSpace(parts[1]))
			if err != nil {
				s.writeJSON(w, http.StatusUnauthorized, errorResponse{Message: "invalid or expired token"})
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func userIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(userIDKey).(int64)
	return id, ok
}
