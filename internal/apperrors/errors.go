package apperrors

import (
	"errors"
)

var (
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")

	ErrRefreshTokenNotFound = errors.New("refresh token not found")
	ErrRefreshTokenExpired  = errors.New("refresh token is expired")

	ErrTokenMalformed = errors.New("access token is malformed")
	ErrTokenRevoked   = errors.New("access token is revoked")
	ErrTokenInvalid   = errors.New("access token is invalid")
)
