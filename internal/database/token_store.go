package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrResetTokenInvalid is returned for unknown or expired reset tokens.
var ErrResetTokenInvalid = errors.New("reset token is invalid or expired")

// TokenStore keeps revoked session ids and password reset tokens in Redis.
// Entries expire on their own, so nothing needs sweeping.
type TokenStore struct {
	client *redis.Client
}

func NewTokenStore(client *redis.Client) *TokenStore {
	return &TokenStore{client: client}
}

func revokedKey(tokenID string) string { return "auth:revoked:" + tokenID }
func resetKey(token string) string     { return "auth:reset:" + token }

// Revoke marks a session id as signed out until ttl elapses.
func (s *TokenStore) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, revokedKey(tokenID), "1", ttl).Err(); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

// IsRevoked reports whether tokenID was signed out.
func (s *TokenStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := s.client.Exists(ctx, revokedKey(tokenID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check revoked token: %w", err)
	}
	return n > 0, nil
}

// SaveResetToken stores token for userID with the given lifetime.
func (s *TokenStore) SaveResetToken(ctx context.Context, token, userID string, ttl time.Duration) error {
	if err := s.client.Set(ctx, resetKey(token), userID, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save reset token: %w", err)
	}
	return nil
}

// ConsumeResetToken returns the user the token belongs to and deletes it so
// it cannot be used twice.
func (s *TokenStore) ConsumeResetToken(ctx context.Context, token string) (string, error) {
	userID, err := s.client.GetDel(ctx, resetKey(token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrResetTokenInvalid
		}
		return "", fmt.Errorf("failed to read reset token: %w", err)
	}
	return userID, nil
}
