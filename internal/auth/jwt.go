// Package auth implements the broker's token service (spec §4.1): a single
// admission credential check, HMAC-SHA256 JWT issuance, and verification.
//
// TOKEN STRUCTURE:
//
// Header: {"alg": "HS256", "typ": "JWT"}
// Payload (Claims): {"sid": "<session, optional>", "jti": "<session record
// id>", "sub": "<subject>", "iat": ..., "exp": ...}
// Signature: HMACSHA256(base64url(header)+"."+base64url(payload), secret)
//
// The signing method is pinned to HMAC on verification to rule out
// algorithm-substitution ("alg": "none", or RS256 signed with the HMAC
// secret treated as an RSA public key).
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims are the JWT payload fields the broker issues and trusts.
type Claims struct {
	Session string `json:"sid,omitempty"`
	jwt.RegisteredClaims
}

// Sentinel errors returned by Verify so callers (the upgrade gate) can
// distinguish admission failure modes without string-matching.
var (
	ErrExpired      = errors.New("token expired")
	ErrBadSignature = errors.New("token signature invalid")
	ErrMalformed    = errors.New("token malformed")
	ErrRevoked      = errors.New("token revoked")
)

// CredentialCheck validates a username/password pair. Swap this out for a
// real identity backend in production; the default is a single static
// credential for local/test use (spec §4.1).
type CredentialCheck interface {
	Check(ctx context.Context, username, password string) bool
}

// Config holds token-service settings.
type Config struct {
	SecretKey     string
	TokenDuration time.Duration
}

// TokenService issues and verifies the broker's bearer tokens.
type TokenService struct {
	config       Config
	credentials  CredentialCheck
	sessionStore *SessionStore
}

// NewTokenService constructs a TokenService. sessionStore may be nil (or
// disabled), in which case verification is signature/expiry-only.
func NewTokenService(cfg Config, credentials CredentialCheck, sessionStore *SessionStore) *TokenService {
	if cfg.TokenDuration == 0 {
		cfg.TokenDuration = time.Hour
	}
	return &TokenService{config: cfg, credentials: credentials, sessionStore: sessionStore}
}

// Issue validates username/password via the configured CredentialCheck and,
// on success, mints a signed token. session is optional; when non-empty it
// becomes the token's authoritative sid claim (spec §4.3 step 1).
//
// Returns apierr-free: callers translate a false ok into InvalidCredentials
// at the HTTP boundary, keeping this package HTTP-agnostic.
func (s *TokenService) Issue(ctx context.Context, username, password, session string) (token string, ttlSeconds int, ok bool, err error) {
	if !s.credentials.Check(ctx, username, password) {
		return "", 0, false, nil
	}

	now := time.Now()
	expiresAt := now.Add(s.config.TokenDuration)
	jti := uuid.New().String()

	claims := &Claims{
		Session: session,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	unsigned := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := unsigned.SignedString([]byte(s.config.SecretKey))
	if err != nil {
		return "", 0, false, fmt.Errorf("signing token: %w", err)
	}

	if s.sessionStore.IsEnabled() {
		rec := &SessionRecord{
			JTI:       jti,
			Subject:   username,
			Session:   session,
			IssuedAt:  now,
			ExpiresAt: expiresAt,
		}
		if err := s.sessionStore.Record(ctx, rec, s.config.TokenDuration); err != nil {
			// Degrade gracefully: the token is still valid, just untracked.
			return signed, int(s.config.TokenDuration.Seconds()), true, nil
		}
	}

	return signed, int(s.config.TokenDuration.Seconds()), true, nil
}

// Verify parses and validates a bearer token, returning its claims.
func (s *TokenService) Verify(ctx context.Context, tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.config.SecretKey), nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			return nil, ErrBadSignature
		}
		return nil, ErrMalformed
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrMalformed
	}

	if s.sessionStore.IsEnabled() {
		valid, err := s.sessionStore.IsValid(ctx, claims.Subject, claims.ID)
		if err == nil && !valid {
			return nil, ErrRevoked
		}
	}

	return claims, nil
}

// RevokeAllSessions force-logs-out subject by invalidating every token
// this service's revocation store has tracked for them. A no-op when the
// store is disabled.
func (s *TokenService) RevokeAllSessions(ctx context.Context, subject string) error {
	if !s.sessionStore.IsEnabled() {
		return nil
	}
	return s.sessionStore.RevokeAllForSubject(ctx, subject)
}
