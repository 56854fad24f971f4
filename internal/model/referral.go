package model

import "time"

// AffiliateInvite is an admin-issued, single-use permission to create an
// affiliate account for one email address.  Stored under invite:<code>.
type AffiliateInvite struct {
    ID               string    `json:"id"`
    Email            string    `json:"email"`
    InviteCode       string    `json:"inviteCode"`
    CreatedByAdminID string    `json:"createdByAdminId"`
    CreatedAt        time.Time `json:"createdAt"`
    Used             bool      `json:"used"`
}

// ReferralEvent records one signup credited to a referral code.  Events
// are written once and never modified.
type ReferralEvent struct {
    ID             string    `json:"id"`
    ReferrerCode   string    `json:"referrerCode"`
    ReferredUserID string    `json:"referredUserId"`
    CreatedAt      time.Time `json:"createdAt"`
}

// GlobalStats holds the running totals shown to admins.  They are
// accumulators, not derived from a scan, and may drift after partial
// failures.
type GlobalStats struct {
    TotalAffiliates int64 `json:"totalAffiliates"`
    TotalReferrals  int64 `json:"totalReferrals"`
}
