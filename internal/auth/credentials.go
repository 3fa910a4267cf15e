package auth

import (
	"context"

	"golang.org/x/crypto/bcrypt"
)

// StaticCredentialCheck validates against a single configured bcrypt
// password hash, accepting any non-empty username. This matches the
// source system's credential behavior and is the broker's default
// CredentialCheck, suited to local development, CI, and single-tenant
// deployments where a real identity provider is out of scope.
type StaticCredentialCheck struct {
	passwordHash []byte
}

// NewStaticCredentialCheck builds a StaticCredentialCheck from a bcrypt
// hash (as produced by HashPassword). passwordHash is stored, never the
// plaintext.
func NewStaticCredentialCheck(passwordHash string) *StaticCredentialCheck {
	return &StaticCredentialCheck{passwordHash: []byte(passwordHash)}
}

// Check reports whether password matches the configured hash for any
// non-empty username.
func (s *StaticCredentialCheck) Check(ctx context.Context, username, password string) bool {
	if username == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword(s.passwordHash, []byte(password)) == nil
}

// HashPassword bcrypt-hashes a plaintext password for storage in
// BROKER_STATIC_PASSWORD_HASH. Cost 10 matches the teacher stack's
// credential-hashing convention.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), 10)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
