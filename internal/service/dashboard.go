package service

import (
    "context"
    "errors"
    "fmt"
    "log/slog"
    "net/url"
    "regexp"
    "sort"
    "strings"
    "time"

    "github.com/iliyamo/referral-tracker/internal/logger"
    "github.com/iliyamo/referral-tracker/internal/model"
    "github.com/iliyamo/referral-tracker/internal/repository"
)

// InviteResult is a freshly minted invite and its signup link. Notified
// is false when the link could not be handed to the notifier.
type InviteResult struct {
    Invite   model.AffiliateInvite `json:"invite"`
    Link     string                `json:"link"`
    Notified bool                  `json:"notified"`
}

// InviteAffiliate mints an invite bound to email on behalf of adminID and
// sends the signup link. A notifier failure is logged and reported in
// the result; the invite stays valid.
func (a *Accounts) InviteAffiliate(ctx context.Context, adminID, email string) (InviteResult, error) {
    email = model.NormalizeEmail(email)
    if err := check(struct {
        Email string `validate:"required,email"`
    }{email}); err != nil {
        return InviteResult{}, err
    }

    inv, err := a.Invites.Create(ctx, email, adminID)
    if err != nil {
        return InviteResult{}, err
    }
    a.metrics.Invite("created")

    res := InviteResult{Invite: inv, Link: a.appURL + "/signup?invite=" + url.QueryEscape(inv.InviteCode), Notified: true}
    if err := a.Notifier.AffiliateInvite(ctx, inv.Email, res.Link); err != nil {
        res.Notified = false
        logger.WithContext(ctx, a.log).Warn("send affiliate invite failed",
            slog.String("invite_code", inv.InviteCode), slog.String("error", err.Error()))
    }
    return res, nil
}

// AdminOverview is the admin dashboard data.
type AdminOverview struct {
    Stats      model.GlobalStats `json:"stats"`
    Admins     int               `json:"admins"`
    Affiliates []model.User      `json:"affiliates"`
}

// Overview returns the global counters, the admin head count and every
// affiliate, newest first.
func (a *Accounts) Overview(ctx context.Context) (AdminOverview, error) {
    stats, err := a.Referrals.GlobalStats(ctx)
    if err != nil {
        return AdminOverview{}, err
    }
    affiliates, err := a.Users.ListAffiliates(ctx)
    if err != nil {
        return AdminOverview{}, err
    }
    admins, err := a.Users.ListAdmins(ctx)
    if err != nil {
        return AdminOverview{}, err
    }
    sort.Slice(affiliates, func(i, j int) bool { return affiliates[i].CreatedAt.After(affiliates[j].CreatedAt) })
    return AdminOverview{Stats: stats, Admins: len(admins), Affiliates: affiliates}, nil
}

// ReferralRow is one referred signup as shown to the referrer.
type ReferralRow struct {
    ID       string    `json:"id"`
    Email    string    `json:"email"`
    JoinedAt time.Time `json:"joinedAt"`
}

// AffiliateDashboard is the affiliate dashboard data.
type AffiliateDashboard struct {
    ReferralCode   string        `json:"referralCode"`
    ReferralLink   string        `json:"referralLink"`
    TotalReferrals int           `json:"totalReferrals"`
    Referrals      []ReferralRow `json:"referrals"`
}

// Dashboard returns the referral link and referral history of userID. The
// role is read from the live record, not the session.
func (a *Accounts) Dashboard(ctx context.Context, userID string) (AffiliateDashboard, error) {
    u, err := a.Users.GetByID(ctx, userID)
    if err != nil {
        return AffiliateDashboard{}, err
    }
    if u.Role != model.RoleAffiliate || u.ReferralCode == "" {
        return AffiliateDashboard{}, fmt.Errorf("%w: not an affiliate", repository.ErrForbidden)
    }

    events, err := a.Referrals.ForCode(ctx, u.ReferralCode)
    if err != nil {
        return AffiliateDashboard{}, err
    }
    sort.Slice(events, func(i, j int) bool { return events[i].CreatedAt.After(events[j].CreatedAt) })

    rows := make([]ReferralRow, 0, len(events))
    for _, ev := range events {
        email := "Unknown"
        referred, err := a.Users.GetByID(ctx, ev.ReferredUserID)
        switch {
        case err == nil:
            email = MaskEmail(referred.Email)
        case !errors.Is(err, repository.ErrNotFound):
            return AffiliateDashboard{}, err
        }
        rows = append(rows, ReferralRow{ID: ev.ID, Email: email, JoinedAt: ev.CreatedAt})
    }
    return AffiliateDashboard{
        ReferralCode:   u.ReferralCode,
        ReferralLink:   a.ReferralLink(u.ReferralCode),
        TotalReferrals: len(rows),
        Referrals:      rows,
    }, nil
}

var maskPattern = regexp.MustCompile(`^(.{2}).+(@.+)$`)

// MaskEmail keeps the first two characters and the domain:
// alice@x.com becomes al***@x.com. Short local parts are left alone.
func MaskEmail(email string) string {
    email = strings.TrimSpace(email)
    return maskPattern.ReplaceAllString(email, "$1***$2")
}
