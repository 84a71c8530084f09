package middleware

import (
	"context"
	"net/http"

	"github.com/mpetrenko/authgate/internal/handlers/render"
	"github.com/mpetrenko/authgate/internal/handlers/userctx"
	"github.com/mpetrenko/authgate/internal/models"
)

type authService interface {
	// Get request and return user if it authenticated or error
	// Has to reject tokens that are blacklisted even if their signature is valid
	GetUserFromRequest(ctx context.Context, r *http.Request) (models.User, error)
}

func AuthMiddleware(as authService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := as.GetUserFromRequest(r.Context(), r)
			if err != nil {
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			ctx := userctx.New(r.Context(), user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
