package utils

import (
    "errors"
    "time"

    "github.com/golang-jwt/jwt/v5" // JWT library used to sign the session cookie value
)

// ErrInvalidCookie is returned when a cookie value fails verification.
var ErrInvalidCookie = errors.New("invalid session cookie")

// SessionCookie signs and verifies the value carried in the session
// cookie.  The value is an HS256 JWT whose "sid" claim is the opaque
// session id; the store record stays the source of truth, the signature
// only lets the server drop forged or foreign cookies without a lookup.
type SessionCookie struct {
    Secret []byte
    TTL    time.Duration
}

// NewSessionCookie builds a codec for the given secret and lifetime.
func NewSessionCookie(secret string, ttl time.Duration) SessionCookie {
    return SessionCookie{Secret: []byte(secret), TTL: ttl}
}

// Encode wraps sessionID in a signed token that expires with the session.
func (sc SessionCookie) Encode(sessionID string) (string, error) {
    now := time.Now().UTC()
    claims := jwt.MapClaims{
        "sid": sessionID,
        "iat": now.Unix(),
        "exp": now.Add(sc.TTL).Unix(),
    }
    t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
    return t.SignedString(sc.Secret)
}

// Decode verifies raw and returns the session id inside it.
func (sc SessionCookie) Decode(raw string) (string, error) {
    tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
        // Reject anything that is not HMAC signed.
        if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
            return nil, ErrInvalidCookie
        }
        return sc.Secret, nil
    }, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
    if err != nil || !tok.Valid {
        return "", ErrInvalidCookie
    }
    claims, ok := tok.Claims.(jwt.MapClaims)
    if !ok {
        return "", ErrInvalidCookie
    }
    sid, ok := claims["sid"].(string)
    if !ok || sid == "" {
        return "", ErrInvalidCookie
    }
    return sid, nil
}
