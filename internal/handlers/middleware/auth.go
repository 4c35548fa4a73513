package middleware

import (
	"context"
	"errors"
	"net/http"
	"slices"

	"github.com/nkiryanov/bufete/internal/apperrors"
	"github.com/nkiryanov/bufete/internal/handlers/render"
	"github.com/nkiryanov/bufete/internal/handlers/userctx"
	"github.com/nkiryanov/bufete/internal/models"
)

type authService interface {
	Authenticate(ctx context.Context, r *http.Request) (models.Session, error)
}

// Reject request without valid access token, put session to the context otherwise
func AuthMiddleware(as authService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := as.Authenticate(r.Context(), r)
			switch {
			case err == nil:
			case errors.Is(err, apperrors.ErrAccessTokenRevoked):
				render.ServiceError(w, "Token revoked", http.StatusUnauthorized)
				return
			default:
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := userctx.New(r.Context(), sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Allow only users with one of the roles, must be used after AuthMiddleware
func RequireRole(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := userctx.UserFromContext(r.Context())
			if !ok {
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			if !slices.Contains(roles, user.Role) {
				render.ServiceError(w, "Forbidden", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
