package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/referral-tracker/internal/kv"
	"github.com/iliyamo/referral-tracker/internal/model"
)

// ReferralRepo is the referral ledger: immutable events, a per-referrer
// event-id set and the global counters.
type ReferralRepo struct{ KV kv.Store }

func NewReferralRepo(store kv.Store) *ReferralRepo { return &ReferralRepo{KV: store} }

// Record creates an event for referredUserID credited to referrerCode.
// The event, the set membership and the counter are three separate
// writes; a failure between them leaves the ledger partially updated and
// readers are expected to tolerate that.
func (r *ReferralRepo) Record(ctx context.Context, referrerCode, referredUserID string) (model.ReferralEvent, error) {
	ev := model.ReferralEvent{
		ID:             uuid.NewString(),
		ReferrerCode:   referrerCode,
		ReferredUserID: referredUserID,
		CreatedAt:      time.Now().UTC(),
	}
	if err := kv.SetJSON(ctx, r.KV, referralKey(ev.ID), ev, 0); err != nil {
		return model.ReferralEvent{}, fmt.Errorf("store referral: %w", err)
	}
	if err := r.KV.AddToSet(ctx, referralsByRefKey(referrerCode), ev.ID); err != nil {
		return ev, fmt.Errorf("index referral: %w", err)
	}
	if _, err := r.KV.IncrField(ctx, globalStatsKey, fieldTotalReferrals, 1); err != nil {
		return ev, fmt.Errorf("count referral: %w", err)
	}
	return ev, nil
}

// IncrementAffiliateCount bumps totalAffiliates by one.
func (r *ReferralRepo) IncrementAffiliateCount(ctx context.Context) error {
	if _, err := r.KV.IncrField(ctx, globalStatsKey, fieldTotalAffiliates, 1); err != nil {
		return fmt.Errorf("count affiliate: %w", err)
	}
	return nil
}

// GlobalStats returns the running totals, zero when never written.
func (r *ReferralRepo) GlobalStats(ctx context.Context) (model.GlobalStats, error) {
	fields, err := r.KV.Fields(ctx, globalStatsKey)
	if err != nil {
		return model.GlobalStats{}, err
	}
	return model.GlobalStats{
		TotalAffiliates: fields[fieldTotalAffiliates],
		TotalReferrals:  fields[fieldTotalReferrals],
	}, nil
}

// ForCode returns the events credited to code in set order. Ids whose
// event record is missing are dropped.
func (r *ReferralRepo) ForCode(ctx context.Context, code string) ([]model.ReferralEvent, error) {
	ids, err := r.KV.Members(ctx, referralsByRefKey(code))
	if err != nil {
		return nil, err
	}
	events := make([]model.ReferralEvent, 0, len(ids))
	for _, id := range ids {
		var ev model.ReferralEvent
		err := kv.GetJSON(ctx, r.KV, referralKey(id), &ev)
		if errors.Is(err, kv.ErrNil) {
			continue
		}
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}
