package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/mpetrenko/authgate/internal/handlers/middleware"
	"github.com/mpetrenko/authgate/internal/logger"
	"github.com/mpetrenko/authgate/internal/models"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

func NewRouter(auth authService, l logger.Logger) http.Handler {
	authMiddleware := middleware.AuthMiddleware(auth)
	withAuth := func(h http.Handler) http.Handler {
		return authMiddleware(h)
	}

	api := http.NewServeMux()

	api.Handle("POST /register", handleRegister(auth, l))
	api.Handle("POST /login", handleLogin(auth, l))
	api.Handle("POST /refresh-token", handleTokenRefresh(auth, l))
	api.Handle("GET /ping", handlePing())

	// Logout reads the bearer token itself: a missing or malformed token is a
	// client error (400), not an authentication failure
	api.Handle("POST /logout", handleLogout(auth, l))

	api.Handle("GET /users/me", withAuth(handleUserMe()))

	root := http.NewServeMux()
	root.Handle("/api/", http.StripPrefix("/api", api))

	handler := chain(root,
		middleware.LoggerMiddleware(l),
	)

	return handler
}

type authService interface {
	// Register user
	// Has to return apperrors.ErrUserAlreadyExists if the email is taken
	Register(ctx context.Context, email string, password string, firstName string, lastName string) (models.User, error)

	// Login user with email and password
	// Has to return apperrors.ErrInvalidCredentials on unknown email or wrong password
	Login(ctx context.Context, email string, password string) (models.TokenPair, error)

	// Rotate the refresh token for a new pair
	// If token expired: has to return apperrors.ErrRefreshTokenExpired
	// If token not found or used already: apperrors.ErrRefreshTokenNotFound
	Refresh(ctx context.Context, refresh string) (models.TokenPair, error)

	// Blacklist the access token, revoke the refresh token if supplied
	// Only apperrors.ErrTokenMalformed is fatal for the caller
	Logout(ctx context.Context, accessRaw string, refresh string) error

	// Get request and return user if it authenticated or error
	GetUserFromRequest(ctx context.Context, r *http.Request) (models.User, error)

	// Token lifetimes, rendered in token pair responses
	AccessTTL() time.Duration
	RefreshTTL() time.Duration
}
