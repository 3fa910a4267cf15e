package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledCacheIsNoop(t *testing.T) {
	c, err := New(Config{Enabled: false})
	require.NoError(t, err)
	assert.False(t, c.IsEnabled())

	ctx := context.Background()
	assert.NoError(t, c.Set(ctx, "key", "value", 0))

	exists, err := c.Exists(ctx, "key")
	require.NoError(t, err)
	assert.False(t, exists)

	assert.NoError(t, c.Delete(ctx, "key"))
	assert.NoError(t, c.DeletePattern(ctx, "key:*"))
	assert.NoError(t, c.Close())
}

func TestSessionRevocationKeyFormat(t *testing.T) {
	assert.Equal(t, "broker:session:alice:abc-123", SessionRevocationKey("alice", "abc-123"))
}

func TestSessionRevocationPatternFormat(t *testing.T) {
	assert.Equal(t, "broker:session:alice:*", SessionRevocationPattern("alice"))
}
