package envelope

import (
	"crypto/ecdh"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpenRoundTrip(t *testing.T) {
	alice, err := GenerateKeyPair()
	require.NoError(t, err)
	bob, err := GenerateKeyPair()
	require.NoError(t, err)

	bobPublic := bob.private.PublicKey().Bytes()
	alicePublic := alice.private.PublicKey().Bytes()

	ciphertext, err := alice.Seal(bobPublic, []byte("hello bob"))
	require.NoError(t, err)

	plaintext, err := bob.Open(alicePublic, ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "hello bob", string(plaintext))
}

func TestOpenRejectsTamperedCiphertext(t *testing.T) {
	alice, err := GenerateKeyPair()
	require.NoError(t, err)
	bob, err := GenerateKeyPair()
	require.NoError(t, err)

	ciphertext, err := alice.Seal(bob.private.PublicKey().Bytes(), []byte("hello"))
	require.NoError(t, err)
	ciphertext[len(ciphertext)-1] ^= 0xFF

	_, err = bob.Open(alice.private.PublicKey().Bytes(), ciphertext)
	assert.Error(t, err)
}

func TestPublicKeyBase64IsDecodable(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)
	encoded := kp.PublicKeyBase64()
	assert.NotEmpty(t, encoded)

	// The decoded key is a valid P-256 point, round-trippable through the
	// same parser Open uses.
	raw, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	assert.Equal(t, kp.private.PublicKey().Bytes(), raw)
	_, err = ecdh.P256().NewPublicKey(raw)
	require.NoError(t, err)
}
