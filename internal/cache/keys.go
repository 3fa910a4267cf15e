package cache

import "fmt"

// SessionRevocationKey is the Redis key that records a live JWT's jti,
// scoped under its subject. Its presence means the session has not been
// revoked.
func SessionRevocationKey(subject, jti string) string {
	return fmt.Sprintf("broker:session:%s:%s", subject, jti)
}

// SessionRevocationPattern matches every revocation key recorded for
// subject, for bulk force-logout via DeletePattern.
func SessionRevocationPattern(subject string) string {
	return fmt.Sprintf("broker:session:%s:*", subject)
}
