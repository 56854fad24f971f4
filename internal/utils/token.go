package utils // package utils provides helpers for hashing and opaque token creation

import (
    "crypto/rand"   // secure random number generation
    "crypto/sha256" // SHA‑256 digests for stored tokens
    "crypto/subtle" // constant-time comparison of digests
    "encoding/hex"  // hex encoding of random bytes and digests
)

// Byte lengths of the random values behind each opaque identifier.
const (
    SessionIDBytes  = 32 // 64 hex chars
    ResetTokenBytes = 48 // 96 hex chars
)

// NewSessionID returns a fresh unguessable session identifier.
func NewSessionID() (string, error) {
    return RandomHex(SessionIDBytes)
}

// NewResetToken returns a fresh raw password-reset token.  Only its
// Digest may be persisted.
func NewResetToken() (string, error) {
    return RandomHex(ResetTokenBytes)
}

// Digest returns the SHA‑256 hash of s as a hex string.  Storing only the
// digest means a leaked store entry cannot be replayed as a token.
func Digest(s string) string {
    sum := sha256.Sum256([]byte(s))
    return hex.EncodeToString(sum[:])
}

// DigestEqual compares two hex digests in constant time.
func DigestEqual(a, b string) bool {
    return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// RandomHex returns a hex‑encoded string generated from n bytes of
// cryptographically secure random data.
func RandomHex(n int) (string, error) {
    buf := make([]byte, n)
    if _, err := rand.Read(buf); err != nil {
        return "", err
    }
    return hex.EncodeToString(buf), nil
}
