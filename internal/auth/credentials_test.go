package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticCredentialCheck(t *testing.T) {
	hash, err := HashPassword("correct-horse")
	require.NoError(t, err)

	check := NewStaticCredentialCheck(hash)
	ctx := context.Background()

	assert.True(t, check.Check(ctx, "admin", "correct-horse"))
	assert.True(t, check.Check(ctx, "someone-else", "correct-horse"), "any non-empty username is accepted")
	assert.False(t, check.Check(ctx, "admin", "wrong-password"))
	assert.False(t, check.Check(ctx, "", "correct-horse"), "empty username is always rejected")
}

func TestHashPasswordProducesVerifiableHash(t *testing.T) {
	hash, err := HashPassword("hunter2")
	require.NoError(t, err)
	assert.NotEqual(t, "hunter2", hash)

	check := NewStaticCredentialCheck(hash)
	assert.True(t, check.Check(context.Background(), "u", "hunter2"))
}
