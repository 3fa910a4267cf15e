// Package auth implements the broker's token service: admission-time JWT
// issuance and verification, plus an optional Redis-backed revocation
// store.
//
// SESSION TRACKING:
//
// The revocation store lets an operator force a subject's active tokens
// to stop verifying without rotating the signing secret:
//
//  1. Token Generation: each issued JWT gets a unique jti; a revocation
//     record is written to Redis keyed by jti, TTL matching the token's
//     expiry.
//  2. Token Verification: after signature/expiry checks pass, Verify
//     additionally checks the jti's record still exists when the store
//     is enabled.
//  3. Revoke: deleting the record makes the token fail verification
//     immediately, even though the signature is still valid.
//
// The store is entirely optional (BROKER_REDIS_ENABLED) and never sits on
// the broker's message-routing path — only on admission.
package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/sessionbroker/broker/internal/cache"
)

// SessionStore tracks issued tokens in Redis so they can be revoked
// before their natural expiry.
type SessionStore struct {
	cache *cache.Cache
}

// SessionRecord is the metadata stored for a live token.
type SessionRecord struct {
	JTI       string    `json:"jti"`
	Subject   string    `json:"subject"`
	Session   string    `json:"session,omitempty"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewSessionStore wraps a cache client (possibly disabled).
func NewSessionStore(c *cache.Cache) *SessionStore {
	return &SessionStore{cache: c}
}

// IsEnabled reports whether revocation tracking is backed by live Redis.
func (s *SessionStore) IsEnabled() bool {
	return s != nil && s.cache != nil && s.cache.IsEnabled()
}

// Record stores a revocation record for a newly issued token.
func (s *SessionStore) Record(ctx context.Context, rec *SessionRecord, ttl time.Duration) error {
	if !s.IsEnabled() {
		return nil
	}
	return s.cache.Set(ctx, cache.SessionRevocationKey(rec.Subject, rec.JTI), rec, ttl)
}

// IsValid reports whether subject/jti still has a live revocation record.
// When the store is disabled every token is considered valid
// (signature-only verification).
func (s *SessionStore) IsValid(ctx context.Context, subject, jti string) (bool, error) {
	if !s.IsEnabled() {
		return true, nil
	}
	ok, err := s.cache.Exists(ctx, cache.SessionRevocationKey(subject, jti))
	if err != nil {
		return false, fmt.Errorf("checking session revocation: %w", err)
	}
	return ok, nil
}

// Revoke deletes subject/jti's revocation record, invalidating that token
// immediately.
func (s *SessionStore) Revoke(ctx context.Context, subject, jti string) error {
	if !s.IsEnabled() {
		return nil
	}
	return s.cache.Delete(ctx, cache.SessionRevocationKey(subject, jti))
}

// RevokeAllForSubject invalidates every token this store has tracked for
// subject in one call ("force-logout everywhere"), using a single
// pattern delete rather than enumerating individual jtis.
func (s *SessionStore) RevokeAllForSubject(ctx context.Context, subject string) error {
	if !s.IsEnabled() {
		return nil
	}
	return s.cache.DeletePattern(ctx, cache.SessionRevocationPattern(subject))
}
