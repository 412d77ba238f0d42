// Package middleware holds the layers a request passes through before it
// reaches a handler.
//
// A middleware is func(next http.Handler) http.Handler: it does its check
// and either calls next or answers the request itself.
//
//	AuthMiddleware → RoomMiddleware → handler
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/handlers"
	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/pkg"
	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/services"
)

// AuthMiddleware verifies the bearer token.
type AuthMiddleware struct {
	tokens services.TokenService
}

// NewAuthMiddleware creates the auth middleware.
func NewAuthMiddleware(tokens services.TokenService) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// Require rejects requests without a valid token with 401 and puts the
// caller's identity in the context.
//
//	Authorization: Bearer <token>
func (m *AuthMiddleware) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			pkg.ErrorWithMessage(w, http.StatusUnauthorized, "authorization header required")
			return
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			pkg.ErrorWithMessage(w, http.StatusUnauthorized, "invalid authorization format, use: Bearer <token>")
			return
		}

		identity, err := m.tokens.Validate(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			pkg.Error(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), handlers.IdentityContextKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
