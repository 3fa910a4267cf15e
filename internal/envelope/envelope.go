// Package envelope implements the broker's optional end-to-end payload
// encryption format: an ECDH P-256 key agreement followed by AES-256-GCM.
// The broker exposes its own key pair at GET /enc/public-key but never
// decrypts payloads itself — it treats published payloads as opaque
// UTF-8 regardless of whether this package is in use. internal/client
// wires this package into Publish/OnMessage for callers who opt in via
// EnableEncryption; callers who don't need it can ignore this package
// entirely.
package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// KeyPair holds the broker's (or a client's) P-256 ECDH key pair for the
// optional envelope format.
type KeyPair struct {
	private *ecdh.PrivateKey
}

// GenerateKeyPair creates a fresh P-256 key pair.
func GenerateKeyPair() (*KeyPair, error) {
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating P-256 key: %w", err)
	}
	return &KeyPair{private: priv}, nil
}

// PublicKeyBase64 returns the raw uncompressed public point, base64
// standard-encoded, as served from GET /enc/public-key.
func (k *KeyPair) PublicKeyBase64() string {
	return base64.StdEncoding.EncodeToString(k.private.PublicKey().Bytes())
}

// Seal derives a shared secret with peerPublicKeyRaw (a P-256 uncompressed
// point), then encrypts plaintext with AES-256-GCM under a key derived via
// HKDF-SHA256. The returned ciphertext is nonce||sealed.
func (k *KeyPair) Seal(peerPublicKeyRaw []byte, plaintext []byte) ([]byte, error) {
	aead, err := k.aeadFor(peerPublicKeyRaw)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	sealed := aead.Seal(nil, nonce, plaintext, nil)
	return append(nonce, sealed...), nil
}

// Open reverses Seal: derives the same shared secret and decrypts
// nonce||sealed back to plaintext.
func (k *KeyPair) Open(peerPublicKeyRaw []byte, ciphertext []byte) ([]byte, error) {
	aead, err := k.aeadFor(peerPublicKeyRaw)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < aead.NonceSize() {
		return nil, fmt.Errorf("ciphertext shorter than nonce size")
	}
	nonce, sealed := ciphertext[:aead.NonceSize()], ciphertext[aead.NonceSize():]

	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypting envelope: %w", err)
	}
	return plaintext, nil
}

func (k *KeyPair) aeadFor(peerPublicKeyRaw []byte) (cipher.AEAD, error) {
	peerKey, err := ecdh.P256().NewPublicKey(peerPublicKeyRaw)
	if err != nil {
		return nil, fmt.Errorf("parsing peer public key: %w", err)
	}

	shared, err := k.private.ECDH(peerKey)
	if err != nil {
		return nil, fmt.Errorf("computing shared secret: %w", err)
	}

	kdf := hkdf.New(sha256.New, shared, nil, []byte("session-broker-envelope-v1"))
	derivedKey := make([]byte, 32)
	if _, err := io.ReadFull(kdf, derivedKey); err != nil {
		return nil, fmt.Errorf("deriving AEAD key: %w", err)
	}

	block, err := aes.NewCipher(derivedKey)
	if err != nil {
		return nil, fmt.Errorf("constructing AES cipher: %w", err)
	}
	return cipher.NewGCM(block)
}
