package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mpetrenko/authgate/internal/models"
)

// User repository interface
type UserRepo interface {
	// Create user
	// If user with the same email exists already has to return apperrors.ErrUserAlreadyExists
	CreateUser(ctx context.Context, user models.User) (models.User, error)

	// Get user by its id or email
	// If user not found must return apperrors.ErrUserNotFound
	GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
}

// RefreshToken repository interface
type RefreshTokenRepo interface {
	// Create token in repository
	Save(ctx context.Context, token models.RefreshToken) (models.RefreshToken, error)

	// Return the token if it exists, even expired
	// If the token not found must return apperrors.ErrRefreshTokenNotFound
	Get(ctx context.Context, tokenString string) (models.RefreshToken, error)

	// Delete the token and return it in single statement
	// Concurrent callers racing on the same token value must observe at most
	// one successful result, the others get apperrors.ErrRefreshTokenNotFound
	GetAndDelete(ctx context.Context, tokenString string) (models.RefreshToken, error)

	// Delete the token
	// Deleting a missing token is not an error
	Delete(ctx context.Context, tokenString string) error

	// Delete every token that belongs to the user
	DeleteForUser(ctx context.Context, userID uuid.UUID) error

	// Delete all tokens with expiresAt <= now, return the number removed
	// Safe to call concurrently and repeatedly
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Storage aggregates repositories over a single db connection or transaction
type Storage interface {
	User() UserRepo
	Refresh() RefreshTokenRepo

	InTx(ctx context.Context, fn func(Storage) error) error
}
