package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) *TokenService {
	t.Helper()
	hash, err := HashPassword("swordfish")
	require.NoError(t, err)
	creds := NewStaticCredentialCheck(hash)
	return NewTokenService(Config{SecretKey: "test-secret", TokenDuration: time.Minute}, creds, nil)
}

func TestIssueAndVerifyRoundTrip(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	token, ttl, ok, err := svc.Issue(ctx, "alice", "swordfish", "room-42")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 60, ttl)
	assert.NotEmpty(t, token)

	claims, err := svc.Verify(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, "room-42", claims.Session)
	assert.NotEmpty(t, claims.ID)
}

func TestIssueRejectsBadCredentials(t *testing.T) {
	svc := newTestService(t)
	token, _, ok, err := svc.Issue(context.Background(), "alice", "wrong", "")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, token)
}

func TestVerifyRejectsTamperedSignature(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	token, _, ok, err := svc.Issue(ctx, "alice", "swordfish", "")
	require.NoError(t, err)
	require.True(t, ok)

	other := NewTokenService(Config{SecretKey: "different-secret", TokenDuration: time.Minute}, nil, nil)
	_, err = other.Verify(ctx, token)
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	hash, err := HashPassword("swordfish")
	require.NoError(t, err)
	creds := NewStaticCredentialCheck(hash)
	svc := NewTokenService(Config{SecretKey: "test-secret", TokenDuration: -time.Second}, creds, nil)

	ctx := context.Background()
	token, _, ok, err := svc.Issue(ctx, "alice", "swordfish", "")
	require.NoError(t, err)
	require.True(t, ok)

	_, err = svc.Verify(ctx, token)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestVerifyRejectsMalformedToken(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Verify(context.Background(), "not-a-jwt")
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestRevokeAllSessionsIsNoopWithoutSessionStore(t *testing.T) {
	svc := newTestService(t)
	assert.NoError(t, svc.RevokeAllSessions(context.Background(), "alice"))
}
