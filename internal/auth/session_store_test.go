package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sessionbroker/broker/internal/cache"
)

func TestDisabledSessionStoreTreatsEveryTokenAsValid(t *testing.T) {
	c, err := cache.New(cache.Config{Enabled: false})
	require.NoError(t, err)
	store := NewSessionStore(c)

	assert.False(t, store.IsEnabled())

	ctx := context.Background()
	valid, err := store.IsValid(ctx, "alice", "some-jti")
	require.NoError(t, err)
	assert.True(t, valid)

	require.NoError(t, store.Record(ctx, &SessionRecord{Subject: "alice", JTI: "some-jti"}, time.Minute))
	require.NoError(t, store.Revoke(ctx, "alice", "some-jti"))
	require.NoError(t, store.RevokeAllForSubject(ctx, "alice"))
}

func TestNilSessionStoreIsDisabled(t *testing.T) {
	var store *SessionStore
	assert.False(t, store.IsEnabled())
}
