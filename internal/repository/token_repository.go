package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/referral-tracker/internal/kv"
	"github.com/iliyamo/referral-tracker/internal/model"
	"github.com/iliyamo/referral-tracker/internal/utils"
)

// DefaultResetTTL is how long a password-reset token stays valid.
const DefaultResetTTL = 60 * time.Minute

// ResetRepo persists and validates password-reset tokens (one per user,
// digest only).
type ResetRepo struct {
	KV  kv.Store
	TTL time.Duration
	Now func() time.Time
}

func NewResetRepo(store kv.Store, ttl time.Duration) *ResetRepo {
	if ttl <= 0 {
		ttl = DefaultResetTTL
	}
	return &ResetRepo{KV: store, TTL: ttl, Now: func() time.Time { return time.Now().UTC() }}
}

// Issue creates a token for userID, replacing any previous one, and
// returns the raw value. The raw value cannot be recovered later.
func (r *ResetRepo) Issue(ctx context.Context, userID string) (string, error) {
	raw, err := utils.NewResetToken()
	if err != nil {
		return "", fmt.Errorf("generate reset token: %w", err)
	}
	tok := model.PasswordResetToken{
		UserID:    userID,
		TokenHash: utils.Digest(raw),
		ExpiresAt: r.Now().Add(r.TTL),
	}
	// The record carries its own expiry; the store TTL just reclaims it.
	if err := kv.SetJSON(ctx, r.KV, resetKey(userID), tok, r.TTL); err != nil {
		return "", fmt.Errorf("store reset token: %w", err)
	}
	return raw, nil
}

// Verify reports whether raw matches the live token for userID. It fails
// closed on a missing, expired or mismatched token and does not consume it.
func (r *ResetRepo) Verify(ctx context.Context, userID, raw string) (bool, error) {
	if userID == "" || raw == "" {
		return false, nil
	}
	var tok model.PasswordResetToken
	if err := kv.GetJSON(ctx, r.KV, resetKey(userID), &tok); err != nil {
		if errors.Is(err, kv.ErrNil) {
			return false, nil
		}
		return false, err
	}
	if tok.Expired(r.Now()) {
		return false, nil
	}
	return utils.DigestEqual(tok.TokenHash, utils.Digest(raw)), nil
}

// Clear removes the token for userID. Clearing twice is harmless.
func (r *ResetRepo) Clear(ctx context.Context, userID string) error {
	if err := r.KV.Delete(ctx, resetKey(userID)); err != nil {
		return fmt.Errorf("clear reset token: %w", err)
	}
	return nil
}
