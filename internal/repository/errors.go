// Package repository implements the identity and referral data layer on
// top of a kv.Store. The sentinel values below let higher layers such as
// handlers distinguish failure scenarios with errors.Is. Storage failures
// are wrapped and passed through unchanged; nothing here retries.
package repository

import "errors"

// ErrNotFound is returned when a lookup misses. It is a normal outcome
// and handlers usually translate it into 404 or a generic failure.
var ErrNotFound = errors.New("not found")

// ErrUnauthenticated means no valid session is bound to the request.
var ErrUnauthenticated = errors.New("unauthenticated")

// ErrForbidden is returned when a valid session lacks the required role.
var ErrForbidden = errors.New("forbidden")

// ErrConflict signals an email or referral code collision detected by a
// pre-check. The store itself does not enforce uniqueness.
var ErrConflict = errors.New("conflict")

// ErrInvalidToken covers reset tokens that mismatch or expired and
// invites that are missing, used or bound to another email.
var ErrInvalidToken = errors.New("invalid or used token")

// ErrValidation marks malformed input rejected before reaching the store.
var ErrValidation = errors.New("validation failed")

// ErrIndexedFieldChanged is returned by UserRepo.Update when the caller
// tries to change email or referral code, which would leave the indexes
// pointing at stale values.
var ErrIndexedFieldChanged = errors.New("email and referral code cannot be updated")
