package middleware

import (
	"context"
	"net/http"

	"shipzone-sync/internal/domain"
	"shipzone-sync/pkg/utils"
)

// AuthMiddleware accepts a bearer token or the accessToken cookie and puts
// the caller into the request context.
func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := utils.ExtractClaims(r)
		if err != nil {
			http.Error(w, "Unauthorized: Invalid token", http.StatusUnauthorized)
			return
		}

		// Claims are trusted as-is; there is no user store to check against.
		user := &domain.User{
			ID:    claims.UserID,
			Email: claims.Email,
			Role:  claims.Role,
		}

		ctx := context.WithValue(r.Context(), domain.UserContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
