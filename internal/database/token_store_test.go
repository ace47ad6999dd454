package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenStore_Revoke(t *testing.T) {
	client, srv := setupTestRedis(t)
	store := NewTokenStore(client)
	ctx := context.Background()

	revoked, err := store.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, store.Revoke(ctx, "jti-1", time.Minute))
	revoked, err = store.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	srv.FastForward(2 * time.Minute)
	revoked, err = store.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestTokenStore_RevokeExpiredIsNoop(t *testing.T) {
	client, srv := setupTestRedis(t)
	store := NewTokenStore(client)

	require.NoError(t, store.Revoke(context.Background(), "jti-2", 0))
	assert.False(t, srv.Exists(revokedKey("jti-2")))
}

func TestTokenStore_ResetToken(t *testing.T) {
	client, srv := setupTestRedis(t)
	store := NewTokenStore(client)
	ctx := context.Background()

	require.NoError(t, store.SaveResetToken(ctx, "tok", "u-1", time.Hour))

	userID, err := store.ConsumeResetToken(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, "u-1", userID)

	_, err = store.ConsumeResetToken(ctx, "tok")
	assert.ErrorIs(t, err, ErrResetTokenInvalid)

	require.NoError(t, store.SaveResetToken(ctx, "tok2", "u-1", time.Minute))
	srv.FastForward(time.Hour)
	_, err = store.ConsumeResetToken(ctx, "tok2")
	assert.ErrorIs(t, err, ErrResetTokenInvalid)
}
