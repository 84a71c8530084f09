package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mpetrenko/authgate/internal/apperrors"
	"github.com/mpetrenko/authgate/internal/models"
	"github.com/mpetrenko/authgate/internal/repository"
	"github.com/mpetrenko/authgate/internal/service/auth/tokenmanager"
)

const authScheme = "Bearer"

// Interface to create or compare user password hashes
type PasswordHasher interface {
	// Generate Hash from password
	Hash(password string) (string, error)

	// Compare known hashedPassword and user provided password
	// Must be protected against timing attacks
	Compare(hashedPassword string, password string) error
}

// Deny list of revoked access tokens
type Blacklist interface {
	Blacklist(ctx context.Context, rawToken string, expiresAt time.Time) error
	IsBlacklisted(ctx context.Context, rawToken string) (bool, error)
}

type Config struct {
	// Hasher to use during user registration or login
	// BcryptHasher is used if not set
	Hasher PasswordHasher
}

// Auth service
// The only place that coordinates the token manager, the user repo and the
// blacklist together
type AuthService struct {
	// Manager to issue and rotate token pairs (access and refresh)
	token *tokenmanager.TokenManager

	// hasher to hash or compare user passwords
	hasher PasswordHasher

	// Repository to access long term user data
	userRepo repository.UserRepo

	// Revoked access tokens
	blacklist Blacklist
}

func NewService(cfg Config, token *tokenmanager.TokenManager, userRepo repository.UserRepo, blacklist Blacklist) (*AuthService, error) {
	hasher := cfg.Hasher
	if hasher == nil {
		hasher = BcryptHasher{}
	}

	if token == nil || userRepo == nil || blacklist == nil {
		return nil, errors.New("token manager, user repo and blacklist must not be nil")
	}

	return &AuthService{
		token:     token,
		hasher:    hasher,
		userRepo:  userRepo,
		blacklist: blacklist,
	}, nil
}

func (s *AuthService) AccessTTL() time.Duration {
	return s.token.AccessTTL()
}

func (s *AuthService) RefreshTTL() time.Duration {
	return s.token.RefreshTTL()
}

// Register creates the user
// Tokens are not issued here: the client is expected to log in after
func (s *AuthService) Register(ctx context.Context, email string, password string, firstName string, lastName string) (models.User, error) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return models.User{}, fmt.Errorf("can't use this as password, error=%w", err)
	}

	user, err := s.userRepo.CreateUser(ctx, models.User{
		Email:          email,
		FirstName:      firstName,
		LastName:       lastName,
		HashedPassword: hash,
	})
	if err != nil {
		return models.User{}, err
	}

	return user, nil
}

// Login verifies credentials and issues a fresh token pair
func (s *AuthService) Login(ctx context.Context, email string, password string) (models.TokenPair, error) {
	// Unknown email is tolerated here: comparing against the empty hash below
	// fails the same way as a wrong password, so unknown emails are not
	// distinguishable. Any other store error is a server fault, not a 401.
	user, err := s.userRepo.GetUserByEmail(ctx, email)
	if err != nil && !errors.Is(err, apperrors.ErrUserNotFound) {
		return models.TokenPair{}, fmt.Errorf("user lookup failed. Err: %w", err)
	}

	if err := s.hasher.Compare(user.HashedPassword, password); err != nil {
		return models.TokenPair{}, apperrors.ErrInvalidCredentials
	}

	pair, err := s.token.GeneratePair(ctx, user)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("token could not be generated, sorry. %w", err)
	}

	return pair, nil
}

// Refresh rotates the presented refresh token for a new pair
// The presented token is consumed: a second call with the same value fails
// with apperrors.ErrRefreshTokenNotFound
func (s *AuthService) Refresh(ctx context.Context, refresh string) (models.TokenPair, error) {
	token, err := s.token.Rotate(ctx, refresh)
	if err != nil {
		return models.TokenPair{}, err
	}

	user, err := s.userRepo.GetUserByID(ctx, token.UserID)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("refresh token owner lookup failed. Err: %w", err)
	}

	pair, err := s.token.GeneratePair(ctx, user)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("token could not be generated, sorry. %w", err)
	}

	return pair, nil
}

// Logout blacklists the access token until its natural expiry and revokes the
// refresh token when one is supplied. The two steps are independent: a store
// failure in one doesn't stop the other. Only an unparseable access token is
// fatal, store errors are returned joined so the caller may log them.
func (s *AuthService) Logout(ctx context.Context, accessRaw string, refresh string) error {
	expiresAt, err := s.token.ExtractExpiry(accessRaw)
	if err != nil {
		return err
	}

	blacklistErr := s.blacklist.Blacklist(ctx, accessRaw, expiresAt)

	var revokeErr error
	if refresh != "" {
		revokeErr = s.token.Revoke(ctx, refresh)
	}

	return errors.Join(blacklistErr, revokeErr)
}

// RevokeAll drops every refresh token the user owns
func (s *AuthService) RevokeAll(ctx context.Context, userID uuid.UUID) error {
	return s.token.RevokeAllForUser(ctx, userID)
}

// VerifyNotRevoked reports whether the access token is absent from the
// blacklist. Meant to run after the cryptographic validation: a blacklisted
// token is rejected no matter how valid its signature is.
func (s *AuthService) VerifyNotRevoked(ctx context.Context, accessRaw string) (bool, error) {
	revoked, err := s.blacklist.IsBlacklisted(ctx, accessRaw)
	if err != nil {
		return false, err
	}
	return !revoked, nil
}

// Authenticate validates the raw access token and resolves its user
func (s *AuthService) Authenticate(ctx context.Context, accessRaw string) (models.User, error) {
	userID, err := s.token.ParseAccess(ctx, accessRaw)
	if err != nil {
		return models.User{}, err
	}

	ok, err := s.VerifyNotRevoked(ctx, accessRaw)
	if err != nil {
		return models.User{}, err
	}
	if !ok {
		return models.User{}, apperrors.ErrTokenRevoked
	}

	user, err := s.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		return models.User{}, fmt.Errorf("token user lookup failed. Err: %w", err)
	}

	return user, nil
}

// GetUserFromRequest reads the bearer token and authenticates it
func (s *AuthService) GetUserFromRequest(ctx context.Context, r *http.Request) (models.User, error) {
	accessRaw, err := AccessFromRequest(r)
	if err != nil {
		return models.User{}, err
	}

	return s.Authenticate(ctx, accessRaw)
}

// AccessFromRequest extracts the raw bearer token from Authorization header
func AccessFromRequest(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")

	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, authScheme) || token == "" {
		return "", fmt.Errorf("no bearer token in request. Err: %w", apperrors.ErrTokenMalformed)
	}

	return token, nil
}
