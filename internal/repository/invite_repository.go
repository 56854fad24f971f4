package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/referral-tracker/internal/kv"
	"github.com/iliyamo/referral-tracker/internal/model"
)

// inviteCodeLen is the number of UUID characters kept for an invite code.
const inviteCodeLen = 8

// InviteRepo stores admin-issued affiliate invites keyed by invite code.
type InviteRepo struct{ KV kv.Store }

func NewInviteRepo(store kv.Store) *InviteRepo { return &InviteRepo{KV: store} }

// Create mints a new unused invite bound to email.
func (r *InviteRepo) Create(ctx context.Context, email, adminID string) (model.AffiliateInvite, error) {
	inv := model.AffiliateInvite{
		ID:               uuid.NewString(),
		Email:            model.NormalizeEmail(email),
		InviteCode:       newInviteCode(),
		CreatedByAdminID: adminID,
		CreatedAt:        time.Now().UTC(),
	}
	if err := kv.SetJSON(ctx, r.KV, inviteKey(inv.InviteCode), inv, 0); err != nil {
		return model.AffiliateInvite{}, fmt.Errorf("store invite: %w", err)
	}
	return inv, nil
}

// Get fetches an invite by code.
func (r *InviteRepo) Get(ctx context.Context, code string) (model.AffiliateInvite, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return model.AffiliateInvite{}, ErrNotFound
	}
	var inv model.AffiliateInvite
	if err := kv.GetJSON(ctx, r.KV, inviteKey(code), &inv); err != nil {
		if errors.Is(err, kv.ErrNil) {
			return model.AffiliateInvite{}, ErrNotFound
		}
		return model.AffiliateInvite{}, err
	}
	return inv, nil
}

// MarkUsed flips the invite to used and persists it. The boolean is false
// when no invite exists for code; that case is not an error.
func (r *InviteRepo) MarkUsed(ctx context.Context, code string) (model.AffiliateInvite, bool, error) {
	inv, err := r.Get(ctx, code)
	if errors.Is(err, ErrNotFound) {
		return model.AffiliateInvite{}, false, nil
	}
	if err != nil {
		return model.AffiliateInvite{}, false, err
	}
	inv.Used = true
	if err := kv.SetJSON(ctx, r.KV, inviteKey(inv.InviteCode), inv, 0); err != nil {
		return model.AffiliateInvite{}, false, fmt.Errorf("mark invite used: %w", err)
	}
	return inv, true, nil
}

// InviteAcceptable applies the signup acceptance policy: the invite must
// be unused and bound to email. Both sides are compared lower-cased.
func InviteAcceptable(inv model.AffiliateInvite, email string) error {
	if inv.InviteCode == "" || inv.Used {
		return ErrInvalidToken
	}
	if model.NormalizeEmail(inv.Email) != model.NormalizeEmail(email) {
		return ErrInvalidToken
	}
	return nil
}

func newInviteCode() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:inviteCodeLen]
}
