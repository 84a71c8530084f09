// Package blacklist keeps digests of revoked access tokens until the tokens
// expire on their own. A signed JWT can't be invalidated before its exp
// claim, so logout stores the token digest in redis with a TTL equal to the
// token remaining lifetime and every authenticated request checks it.
package blacklist

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "jwt_blacklist"

type Store struct {
	redis  redis.UniversalClient
	prefix string
}

func NewStore(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Store{
		redis:  client,
		prefix: prefix,
	}
}

// key derives the storage key from the raw token
// The digest bounds key size and keeps the bearer credential out of redis
// Must stay the same on write and read paths
func (s *Store) key(rawToken string) string {
	sum := sha256.Sum256([]byte(rawToken))
	return s.prefix + ":" + hex.EncodeToString(sum[:])
}

// Blacklist stores the token digest until expiresAt
// Tokens that expired already are not stored: they can't be presented anyway
func (s *Store) Blacklist(ctx context.Context, rawToken string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}

	if err := s.redis.Set(ctx, s.key(rawToken), 1, ttl).Err(); err != nil {
		return fmt.Errorf("blacklist store error: %w", err)
	}

	return nil
}

// IsBlacklisted reports whether the token digest has a live entry
func (s *Store) IsBlacklisted(ctx context.Context, rawToken string) (bool, error) {
	n, err := s.redis.Exists(ctx, s.key(rawToken)).Result()
	if err != nil {
		return false, fmt.Errorf("blacklist store error: %w", err)
	}

	return n > 0, nil
}
