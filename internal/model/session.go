package model

import "time"

// Session is the authorization grant stored under session:<id>.  Only
// UserID and Role are persisted; ID is the key the client carries.  Role is
// a snapshot taken at login and is not re-checked against the user record.
type Session struct {
    ID     string `json:"-"`
    UserID string `json:"userId"`
    Role   Role   `json:"role"`
}

// PasswordResetToken models the record under passwordReset:<userId>.  The
// raw token is handed to the caller once; only its SHA-256 hex digest is
// kept.  A new token for the same user replaces the previous one.
type PasswordResetToken struct {
    UserID    string    `json:"userId"`
    TokenHash string    `json:"tokenHash"`
    ExpiresAt time.Time `json:"expiresAt"`
}

// Expired reports whether the token is no longer usable at now.
func (t PasswordResetToken) Expired(now time.Time) bool {
    return !now.Before(t.ExpiresAt)
}
