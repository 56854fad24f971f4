package model

import (
    "strings"
    "time"
)

// Role names the privilege level of a user.  It is copied into every
// session at issuance time.
type Role string

const (
    RoleAffiliate Role = "affiliate" // may hold a referral code and accrue referrals
    RoleAdmin     Role = "admin"     // may invite affiliates and view aggregate stats
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool { return r == RoleAffiliate || r == RoleAdmin }

// User is the identity record stored under user:<id>.  The JSON tags keep
// the stored document layout stable across releases.
//
// Fields:
//  ID           – opaque unique identifier (UUID).
//  FullName     – display name, optional.
//  Email        – unique, always stored lower-cased.
//  PasswordHash – bcrypt digest, never the raw password.
//  Role         – affiliate or admin.
//  ReferralCode – unique code, affiliates only.
//  ReferredBy   – referral code of the affiliate credited for this signup.
//  CreatedAt    – UTC creation time.
//
// Email and ReferralCode are indexed and must not change after creation.
type User struct {
    ID           string    `json:"id"`
    FullName     string    `json:"fullName"`
    Email        string    `json:"email"`
    PasswordHash string    `json:"passwordHash"`
    Role         Role      `json:"role"`
    ReferralCode string    `json:"referralCode,omitempty"`
    ReferredBy   string    `json:"referredBy,omitempty"`
    CreatedAt    time.Time `json:"createdAt"`
}

// NormalizeEmail returns the canonical form used for storage and lookups.
func NormalizeEmail(email string) string {
    return strings.ToLower(strings.TrimSpace(email))
}
