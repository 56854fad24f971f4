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

// DefaultSessionTTL is thirty days.
const DefaultSessionTTL = 2592000 * time.Second

// SessionRepo stores sessions under session:<id> with a store-level TTL.
// An expired session and one that never existed are indistinguishable.
type SessionRepo struct {
	KV  kv.Store
	TTL time.Duration
}

func NewSessionRepo(store kv.Store, ttl time.Duration) *SessionRepo {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionRepo{KV: store, TTL: ttl}
}

// Create issues a new session id and stores {userId, role} under it.
func (r *SessionRepo) Create(ctx context.Context, userID string, role model.Role) (string, error) {
	id, err := utils.NewSessionID()
	if err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	s := model.Session{UserID: userID, Role: role}
	if err := kv.SetJSON(ctx, r.KV, sessionKey(id), s, r.TTL); err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}
	return id, nil
}

// Resolve returns the session stored under id or ErrNotFound.
func (r *SessionRepo) Resolve(ctx context.Context, id string) (model.Session, error) {
	if id == "" {
		return model.Session{}, ErrNotFound
	}
	var s model.Session
	if err := kv.GetJSON(ctx, r.KV, sessionKey(id), &s); err != nil {
		if errors.Is(err, kv.ErrNil) {
			return model.Session{}, ErrNotFound
		}
		return model.Session{}, err
	}
	s.ID = id
	return s, nil
}

// Revoke deletes the session. Revoking an unknown id is a no-op.
func (r *SessionRepo) Revoke(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if err := r.KV.Delete(ctx, sessionKey(id)); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}
