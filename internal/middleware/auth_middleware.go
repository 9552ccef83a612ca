package middleware

import (
	"context"
	"net/http"
	"strings"

	"blogdraft-server/pkg/jwt"
	"blogdraft-server/pkg/response"
)

type contextKey string

const UsernameKey contextKey = "username"

// TokenValidator is satisfied by service.AuthService.
type TokenValidator interface {
	Enabled() bool
	ValidateToken(token string) (*jwt.Claims, error)
}

func AuthMiddleware(auth TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !auth.Enabled() {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				response.Unauthorized(w, "Missing authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				response.Unauthorized(w, "Invalid authorization header format")
				return
			}

			claims, err := auth.ValidateToken(strings.TrimSpace(parts[1]))
			if err != nil {
				response.Unauthorized(w, "Invalid or expired token")
				return
			}

			recordUser(r.Context(), claims.Username)
			ctx := context.WithValue(r.Context(), UsernameKey, claims.Username)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func GetUsername(r *http.Request) string {
	username, ok := r.Context().Value(UsernameKey).(string)
	if !ok {
		return ""
	}
	return username
}
