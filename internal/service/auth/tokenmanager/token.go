package tokenmanager

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/mpetrenko/authgate/internal/apperrors"
	"github.com/mpetrenko/authgate/internal/models"
	"github.com/mpetrenko/authgate/internal/repository"
)

const (
	defaultAccessTokenTTL  = time.Hour
	defaultRefreshTokenTTL = 90 * 24 * time.Hour
	defaultSigningMethod   = "HS256"

	// Refresh token entropy width
	// Wide enough that collisions with live tokens are not a practical concern
	refreshTokenBytes = 32
)

type AccessTokenClaims struct {
	jwt.RegisteredClaims
	UserID uuid.UUID `json:"uid"`
	Email  string    `json:"email"`
}

// Token manager config with sensible defaults
type Config struct {
	// Secret key to sign access token
	// Required to be set
	SecretKey string

	// JWT MAC (Message Authentication Code) algorithm
	// If not set then default is used
	Alg string

	// Access and refresh token lifetimes
	// If not set then default is used
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

type TokenManager struct {
	// Secret key to sign access token
	key string

	// JWT MAC (Message Authentication Code) algorithm
	alg jwt.SigningMethod

	// Access and refresh token lifetimes
	accessTTL  time.Duration
	refreshTTL time.Duration

	// Refresh token repo
	refreshRepo repository.RefreshTokenRepo
}

func New(cfg Config, refreshRepo repository.RefreshTokenRepo) (*TokenManager, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("secret key must not be empty")
	}

	if cfg.Alg == "" {
		cfg.Alg = defaultSigningMethod
	}

	setDefaultDuration := func(field *time.Duration, def time.Duration) {
		if *field == 0 {
			*field = def
		}
	}
	setDefaultDuration(&cfg.AccessTTL, defaultAccessTokenTTL)
	setDefaultDuration(&cfg.RefreshTTL, defaultRefreshTokenTTL)

	return &TokenManager{
		key:         cfg.SecretKey,
		alg:         jwt.GetSigningMethod(cfg.Alg),
		accessTTL:   cfg.AccessTTL,
		refreshTTL:  cfg.RefreshTTL,
		refreshRepo: refreshRepo,
	}, nil
}

func (m *TokenManager) AccessTTL() time.Duration {
	return m.accessTTL
}

func (m *TokenManager) RefreshTTL() time.Duration {
	return m.refreshTTL
}

// GeneratePair mints the access token and persists a fresh refresh token
func (m *TokenManager) GeneratePair(ctx context.Context, user models.User) (models.TokenPair, error) {
	var pair models.TokenPair
	now := time.Now().Truncate(time.Second)
	accessExpiresAt := now.Add(m.accessTTL)
	refreshExpiresAt := now.Add(m.refreshTTL)

	// Generate JWT access token encoded as string
	accessToken := jwt.NewWithClaims(
		m.alg,
		AccessTokenClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				ID:        uuid.NewString(),
				Subject:   user.ID.String(),
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(accessExpiresAt),
			},
			UserID: user.ID,
			Email:  user.Email,
		},
	)
	access, err := accessToken.SignedString([]byte(m.key))
	if err != nil {
		return pair, fmt.Errorf("error while signing access token. Err: %w", err)
	}

	// Generate random refresh token
	b := make([]byte, refreshTokenBytes)
	_, err = rand.Read(b)
	if err != nil {
		return pair, fmt.Errorf("error while generating refresh token. Err: %w", err)
	}
	refresh := hex.EncodeToString(b)

	_, err = m.refreshRepo.Save(ctx, models.RefreshToken{
		ID:        uuid.New(),
		UserID:    user.ID,
		Token:     refresh,
		CreatedAt: now,
		ExpiresAt: refreshExpiresAt,
	})
	if err != nil {
		return pair, fmt.Errorf("error while saving refresh token. Err: %w", err)
	}

	return models.TokenPair{
		Access:  models.IssuedToken{Value: access, ExpiresAt: accessExpiresAt},
		Refresh: models.IssuedToken{Value: refresh, ExpiresAt: refreshExpiresAt},
	}, nil
}

// Rotate consumes the refresh token: the token is removed and returned in one
// store call, so a second rotation with the same value always fails.
// Removing before the new pair is minted means a crashed rotation leaves no
// valid refresh token rather than two.
func (m *TokenManager) Rotate(ctx context.Context, refresh string) (models.RefreshToken, error) {
	token, err := m.refreshRepo.GetAndDelete(ctx, refresh)
	if err != nil {
		return token, fmt.Errorf("error while consuming refresh token. Err: %w", err)
	}

	// A token is valid strictly before its expiry, expiresAt == now is expired
	if !token.ExpiresAt.After(time.Now()) {
		return token, fmt.Errorf("error while consuming refresh token. Err: %w", apperrors.ErrRefreshTokenExpired)
	}

	return token, nil
}

// Revoke deletes the refresh token, no error if it is gone already
func (m *TokenManager) Revoke(ctx context.Context, refresh string) error {
	return m.refreshRepo.Delete(ctx, refresh)
}

// RevokeAllForUser drops every refresh token the user owns
func (m *TokenManager) RevokeAllForUser(ctx context.Context, userID uuid.UUID) error {
	return m.refreshRepo.DeleteForUser(ctx, userID)
}

// Parse and validate access token
func (m *TokenManager) ParseAccess(ctx context.Context, access string) (userID uuid.UUID, err error) {
	claims := &AccessTokenClaims{}

	_, err = jwt.ParseWithClaims(
		access,
		claims,
		func(t *jwt.Token) (any, error) {
			return []byte(m.key), nil
		},
		jwt.WithValidMethods([]string{m.alg.Alg()}),
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("error while parsing or validating token. Err: %w", apperrors.ErrTokenInvalid)
	}

	return claims.UserID, nil
}

// ExtractExpiry reads the exp claim from the compact token without verifying
// the signature. Used on logout where the request already passed the
// authentication layer and only the expiry is needed for the blacklist TTL.
func (m *TokenManager) ExtractExpiry(access string) (time.Time, error) {
	claims := &jwt.RegisteredClaims{}

	_, _, err := jwt.NewParser().ParseUnverified(access, claims)
	if err != nil {
		return time.Time{}, fmt.Errorf("error while decoding token. Err: %w", apperrors.ErrTokenMalformed)
	}

	if claims.ExpiresAt == nil {
		return time.Time{}, fmt.Errorf("token has no expiration time. Err: %w", apperrors.ErrTokenMalformed)
	}

	return claims.ExpiresAt.Time, nil
}
