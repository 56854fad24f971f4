package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/iliyamo/referral-tracker/internal/kv"
	"github.com/iliyamo/referral-tracker/internal/model"
)

// UserRepo is the identity store: user records keyed by id plus the
// email and referral-code indexes and the per-role membership sets.
type UserRepo struct{ KV kv.Store }

func NewUserRepo(store kv.Store) *UserRepo { return &UserRepo{KV: store} }

// Create writes the user record, then its indexes, then the role set.
// Callers must have checked email uniqueness; two concurrent signups for
// the same email both succeed and the later index write wins.
func (r *UserRepo) Create(ctx context.Context, u model.User) error {
	if !u.Role.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrValidation, u.Role)
	}
	u.Email = model.NormalizeEmail(u.Email)
	if err := kv.SetJSON(ctx, r.KV, userKey(u.ID), u, 0); err != nil {
		return fmt.Errorf("store user: %w", err)
	}
	if err := r.KV.Set(ctx, emailIndexKey(u.Email), []byte(u.ID), 0); err != nil {
		return fmt.Errorf("store email index: %w", err)
	}
	switch u.Role {
	case model.RoleAffiliate:
		if err := r.KV.AddToSet(ctx, affiliatesSetKey, u.ID); err != nil {
			return fmt.Errorf("add affiliate: %w", err)
		}
	case model.RoleAdmin:
		if err := r.KV.AddToSet(ctx, adminsSetKey, u.ID); err != nil {
			return fmt.Errorf("add admin: %w", err)
		}
	}
	if u.ReferralCode != "" {
		if err := r.KV.Set(ctx, refCodeIndexKey(u.ReferralCode), []byte(u.ID), 0); err != nil {
			return fmt.Errorf("store referral index: %w", err)
		}
	}
	return nil
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id string) (model.User, error) {
	var u model.User
	if id == "" {
		return u, ErrNotFound
	}
	if err := kv.GetJSON(ctx, r.KV, userKey(id), &u); err != nil {
		if errors.Is(err, kv.ErrNil) {
			return model.User{}, ErrNotFound
		}
		return model.User{}, err
	}
	return u, nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	email = model.NormalizeEmail(email)
	if email == "" {
		return model.User{}, ErrNotFound
	}
	return r.resolve(ctx, emailIndexKey(email))
}

// GetByReferralCode fetches the owner of a referral code.
func (r *UserRepo) GetByReferralCode(ctx context.Context, code string) (model.User, error) {
	if code == "" {
		return model.User{}, ErrNotFound
	}
	return r.resolve(ctx, refCodeIndexKey(code))
}

func (r *UserRepo) resolve(ctx context.Context, indexKey string) (model.User, error) {
	id, err := r.KV.Get(ctx, indexKey)
	if err != nil {
		if errors.Is(err, kv.ErrNil) {
			return model.User{}, ErrNotFound
		}
		return model.User{}, err
	}
	return r.GetByID(ctx, string(id))
}

// Update overwrites the primary record only. Indexes are not touched, so
// a change to Email or ReferralCode is refused with ErrIndexedFieldChanged.
func (r *UserRepo) Update(ctx context.Context, u model.User) error {
	current, err := r.GetByID(ctx, u.ID)
	if err != nil {
		return err
	}
	if model.NormalizeEmail(u.Email) != current.Email || u.ReferralCode != current.ReferralCode {
		return ErrIndexedFieldChanged
	}
	u.Email = current.Email
	if err := kv.SetJSON(ctx, r.KV, userKey(u.ID), u, 0); err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return nil
}

// ListAffiliates returns every user in the affiliates set. Ids whose
// record is missing are skipped. Order is unspecified.
func (r *UserRepo) ListAffiliates(ctx context.Context) ([]model.User, error) {
	return r.listMembers(ctx, affiliatesSetKey)
}

// ListAdmins returns every user in the admins set, same rules as
// ListAffiliates.
func (r *UserRepo) ListAdmins(ctx context.Context) ([]model.User, error) {
	return r.listMembers(ctx, adminsSetKey)
}

func (r *UserRepo) listMembers(ctx context.Context, setKey string) ([]model.User, error) {
	ids, err := r.KV.Members(ctx, setKey)
	if err != nil {
		return nil, err
	}
	users := make([]model.User, 0, len(ids))
	for _, id := range ids {
		u, err := r.GetByID(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, nil
}
