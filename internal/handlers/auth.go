package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/mpetrenko/authgate/internal/apperrors"
	"github.com/mpetrenko/authgate/internal/handlers/render"
	"github.com/mpetrenko/authgate/internal/logger"
	"github.com/mpetrenko/authgate/internal/models"
	"github.com/mpetrenko/authgate/internal/service/auth"
)

// Token pair response: the dual-token shape, TTLs in seconds
type tokenPairResponse struct {
	AccessToken      string `json:"accessToken"`
	RefreshToken     string `json:"refreshToken"`
	ExpiresIn        int    `json:"expiresIn"`
	RefreshExpiresIn int    `json:"refreshExpiresIn"`
}

func newTokenPairResponse(pair models.TokenPair, s authService) tokenPairResponse {
	return tokenPairResponse{
		AccessToken:      pair.Access.Value,
		RefreshToken:     pair.Refresh.Value,
		ExpiresIn:        int(s.AccessTTL().Seconds()),
		RefreshExpiresIn: int(s.RefreshTTL().Seconds()),
	}
}

func handleRegister(s authService, l logger.Logger) http.Handler {
	type request struct {
		Email     string `json:"email" validate:"required,email"`
		Password  string `json:"password" validate:"required,min=6"`
		FirstName string `json:"firstName" validate:"required,max=100"`
		LastName  string `json:"lastName" validate:"required,max=100"`
	}
	type userResponse struct {
		ID        uuid.UUID `json:"id"`
		Email     string    `json:"email"`
		FirstName string    `json:"firstName"`
		LastName  string    `json:"lastName"`
	}
	type response struct {
		Message string       `json:"message"`
		User    userResponse `json:"user"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		user, err := s.Register(r.Context(), data.Email, data.Password, data.FirstName, data.LastName)
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrUserAlreadyExists):
				render.ServiceError(w, "User already exists", http.StatusConflict)
			default:
				l.Error("user registration failed", "error", err.Error())
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		render.JSONWithStatus(w, response{
			Message: "User registered successfully",
			User: userResponse{
				ID:        user.ID,
				Email:     user.Email,
				FirstName: user.FirstName,
				LastName:  user.LastName,
			},
		}, http.StatusCreated)
	})
}

func handleLogin(s authService, l logger.Logger) http.Handler {
	type request struct {
		Email    string `json:"email" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		pair, err := s.Login(r.Context(), data.Email, data.Password)
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrInvalidCredentials):
				render.ServiceError(w, "Invalid credentials", http.StatusUnauthorized)
			default:
				l.Error("login failed", "error", err.Error())
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		render.JSON(w, newTokenPairResponse(pair, s))
	})
}

func handleTokenRefresh(s authService, l logger.Logger) http.Handler {
	type request struct {
		RefreshToken string `json:"refreshToken" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		pair, err := s.Refresh(r.Context(), data.RefreshToken)
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrRefreshTokenNotFound),
				errors.Is(err, apperrors.ErrRefreshTokenExpired):
				render.ServiceError(w, "Invalid or expired refresh token", http.StatusUnauthorized)
			default:
				l.Error("token refresh failed", "error", err.Error())
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		render.JSON(w, newTokenPairResponse(pair, s))
	})
}

func handleLogout(s authService, l logger.Logger) http.Handler {
	type request struct {
		RefreshToken string `json:"refreshToken"`
	}
	type response struct {
		Message string `json:"message"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The refresh token body is optional, an empty body is fine
		var data request
		if err := json.NewDecoder(r.Body).Decode(&data); err != nil && !errors.Is(err, io.EOF) {
			render.DecodeError(w, err)
			return
		}

		accessRaw, err := auth.AccessFromRequest(r)
		if err != nil {
			render.ServiceError(w, "No token provided", http.StatusBadRequest)
			return
		}

		err = s.Logout(r.Context(), accessRaw, data.RefreshToken)
		switch {
		case errors.Is(err, apperrors.ErrTokenMalformed):
			render.ServiceError(w, "Invalid token format", http.StatusBadRequest)
			return
		case err != nil:
			// Blacklist and revoke are best effort, the session is closed anyway
			l.Error("logout finished with store errors", "error", err.Error())
		}

		render.JSON(w, response{Message: "Logged out successfully"})
	})
}
