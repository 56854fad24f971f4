// Package service holds the account workflows that sit between the HTTP
// handlers and the repositories: signup, login, password reset, invites
// and the two dashboards.
package service

import (
    "context"
    "errors"
    "fmt"
    "log/slog"
    "net/url"
    "regexp"
    "strings"
    "time"

    "github.com/google/uuid"

    "github.com/iliyamo/referral-tracker/internal/logger"
    "github.com/iliyamo/referral-tracker/internal/metrics"
    "github.com/iliyamo/referral-tracker/internal/model"
    "github.com/iliyamo/referral-tracker/internal/repository"
    "github.com/iliyamo/referral-tracker/internal/utils"
    "github.com/iliyamo/referral-tracker/internal/validator"
)

// Notifier hands outbound links to whatever delivers email. Delivery
// itself is not this service's concern.
type Notifier interface {
    PasswordReset(ctx context.Context, email, link string) error
    AffiliateInvite(ctx context.Context, email, link string) error
}

// Options carries the non-repository settings of Accounts.
type Options struct {
    AppURL     string
    BcryptCost int
    Metrics    *metrics.Metrics
    Log        *slog.Logger
}

// Accounts implements the account workflows over the repositories.
type Accounts struct {
    Users     *repository.UserRepo
    Sessions  *repository.SessionRepo
    Resets    *repository.ResetRepo
    Invites   *repository.InviteRepo
    Referrals *repository.ReferralRepo
    Notifier  Notifier

    appURL     string
    bcryptCost int
    metrics    *metrics.Metrics
    log        *slog.Logger
    newID      func() string
}

// codeAttempts bounds how many fresh ids signup tries before giving up on
// a referral code collision.
const codeAttempts = 3

func NewAccounts(
    users *repository.UserRepo,
    sessions *repository.SessionRepo,
    resets *repository.ResetRepo,
    invites *repository.InviteRepo,
    referrals *repository.ReferralRepo,
    notifier Notifier,
    opts Options,
) *Accounts {
    if opts.Log == nil {
        opts.Log = slog.Default()
    }
    if opts.BcryptCost == 0 {
        opts.BcryptCost = utils.DefaultBcryptCost
    }
    return &Accounts{
        Users:      users,
        Sessions:   sessions,
        Resets:     resets,
        Invites:    invites,
        Referrals:  referrals,
        Notifier:   notifier,
        appURL:     strings.TrimRight(opts.AppURL, "/"),
        bcryptCost: opts.BcryptCost,
        metrics:    opts.Metrics,
        log:        opts.Log,
        newID:      uuid.NewString,
    }
}

// Inputs. Emails are normalized before validation.

type SignupInput struct {
    FullName string `json:"fullName" validate:"max=200"`
    Email    string `json:"email" validate:"required,email"`
    Password string `json:"password" validate:"required,min=6"`
    Ref      string `json:"ref"`
    Invite   string `json:"invite"`
}

type AdminSignupInput struct {
    FullName string `json:"fullName" validate:"max=200"`
    Email    string `json:"email" validate:"required,email"`
    Password string `json:"password" validate:"required,min=8"`
}

type LoginInput struct {
    Email    string `json:"email" validate:"required"`
    Password string `json:"password" validate:"required"`
}

type ResetConfirmInput struct {
    UserID   string `json:"uid" validate:"required"`
    Token    string `json:"token" validate:"required"`
    Password string `json:"password" validate:"required,min=6"`
    Confirm  string `json:"confirm" validate:"required,eqfield=Password"`
}

// AuthResult is a user together with the session just issued for it.
type AuthResult struct {
    User      model.User
    SessionID string
}

func check(in any) error {
    if err := validator.Validate(in); err != nil {
        return fmt.Errorf("%w: %w", repository.ErrValidation, err)
    }
    return nil
}

// SignupAffiliate creates an affiliate account and logs it in. An invite,
// when presented, must be unused and bound to the same email; a referral
// code is credited only when it belongs to an affiliate.
func (a *Accounts) SignupAffiliate(ctx context.Context, in SignupInput) (AuthResult, error) {
    in.Email = model.NormalizeEmail(in.Email)
    in.FullName = strings.TrimSpace(in.FullName)
    in.Ref = strings.TrimSpace(in.Ref)
    in.Invite = strings.TrimSpace(in.Invite)
    if err := check(in); err != nil {
        return AuthResult{}, err
    }

    // The invite is checked first so a replayed invite reports as invalid
    // even though its email is now taken.
    if in.Invite != "" {
        inv, err := a.Invites.Get(ctx, in.Invite)
        if err != nil && !errors.Is(err, repository.ErrNotFound) {
            return AuthResult{}, err
        }
        if err := repository.InviteAcceptable(inv, in.Email); err != nil {
            a.metrics.Invite("rejected")
            return AuthResult{}, err
        }
    }
    if err := a.ensureEmailFree(ctx, in.Email); err != nil {
        return AuthResult{}, err
    }

    hash, err := utils.HashPassword(in.Password, a.bcryptCost)
    if err != nil {
        return AuthResult{}, fmt.Errorf("hash password: %w", err)
    }

    id, code, err := a.freeReferralCode(ctx, in.Email)
    if err != nil {
        return AuthResult{}, err
    }
    u := model.User{
        ID:           id,
        FullName:     in.FullName,
        Email:        in.Email,
        PasswordHash: hash,
        Role:         model.RoleAffiliate,
        ReferralCode: code,
        CreatedAt:    time.Now().UTC(),
    }
    if in.Ref != "" {
        referrer, err := a.Users.GetByReferralCode(ctx, in.Ref)
        switch {
        case err == nil && referrer.Role == model.RoleAffiliate:
            u.ReferredBy = in.Ref
        case err != nil && !errors.Is(err, repository.ErrNotFound):
            return AuthResult{}, err
        }
    }

    if err := a.Users.Create(ctx, u); err != nil {
        return AuthResult{}, err
    }
    if err := a.Referrals.IncrementAffiliateCount(ctx); err != nil {
        return AuthResult{}, err
    }
    if u.ReferredBy != "" {
        if _, err := a.Referrals.Record(ctx, u.ReferredBy, u.ID); err != nil {
            return AuthResult{}, err
        }
        a.metrics.Referral()
    }
    if in.Invite != "" {
        if _, _, err := a.Invites.MarkUsed(ctx, in.Invite); err != nil {
            return AuthResult{}, err
        }
        a.metrics.Invite("accepted")
    }
    a.metrics.Signup(string(model.RoleAffiliate))

    sid, err := a.openSession(ctx, u)
    if err != nil {
        return AuthResult{}, err
    }
    logger.WithContext(ctx, a.log).Info("affiliate signed up",
        slog.String("user_id", u.ID), slog.Bool("referred", u.ReferredBy != ""), slog.Bool("invited", in.Invite != ""))
    return AuthResult{User: u, SessionID: sid}, nil
}

// SignupAdmin creates an admin account and logs it in.
func (a *Accounts) SignupAdmin(ctx context.Context, in AdminSignupInput) (AuthResult, error) {
    in.Email = model.NormalizeEmail(in.Email)
    in.FullName = strings.TrimSpace(in.FullName)
    if err := check(in); err != nil {
        return AuthResult{}, err
    }
    if err := a.ensureEmailFree(ctx, in.Email); err != nil {
        return AuthResult{}, err
    }

    hash, err := utils.HashPassword(in.Password, a.bcryptCost)
    if err != nil {
        return AuthResult{}, fmt.Errorf("hash password: %w", err)
    }
    u := model.User{
        ID:           a.newID(),
        FullName:     in.FullName,
        Email:        in.Email,
        PasswordHash: hash,
        Role:         model.RoleAdmin,
        CreatedAt:    time.Now().UTC(),
    }
    if err := a.Users.Create(ctx, u); err != nil {
        return AuthResult{}, err
    }
    a.metrics.Signup(string(model.RoleAdmin))

    sid, err := a.openSession(ctx, u)
    if err != nil {
        return AuthResult{}, err
    }
    logger.WithContext(ctx, a.log).Info("admin signed up", slog.String("user_id", u.ID))
    return AuthResult{User: u, SessionID: sid}, nil
}

// Login checks credentials for any role and issues a session. Unknown
// email and wrong password are both ErrUnauthenticated.
func (a *Accounts) Login(ctx context.Context, in LoginInput) (AuthResult, error) {
    return a.login(ctx, in, "")
}

// AdminLogin is Login restricted to admins. A non-admin gets the same
// ErrUnauthenticated as a wrong password.
func (a *Accounts) AdminLogin(ctx context.Context, in LoginInput) (AuthResult, error) {
    return a.login(ctx, in, model.RoleAdmin)
}

func (a *Accounts) login(ctx context.Context, in LoginInput, role model.Role) (AuthResult, error) {
    in.Email = model.NormalizeEmail(in.Email)
    if err := check(in); err != nil {
        return AuthResult{}, err
    }
    u, err := a.Users.GetByEmail(ctx, in.Email)
    if errors.Is(err, repository.ErrNotFound) {
        return AuthResult{}, repository.ErrUnauthenticated
    }
    if err != nil {
        return AuthResult{}, err
    }
    if role != "" && u.Role != role {
        return AuthResult{}, repository.ErrUnauthenticated
    }
    if !utils.VerifyPassword(u.PasswordHash, in.Password) {
        return AuthResult{}, repository.ErrUnauthenticated
    }
    sid, err := a.openSession(ctx, u)
    if err != nil {
        return AuthResult{}, err
    }
    return AuthResult{User: u, SessionID: sid}, nil
}

// Logout revokes the session. Unknown ids are ignored.
func (a *Accounts) Logout(ctx context.Context, sessionID string) error {
    if sessionID == "" {
        return nil
    }
    if err := a.Sessions.Revoke(ctx, sessionID); err != nil {
        return err
    }
    a.metrics.Session("revoked")
    return nil
}

func (a *Accounts) openSession(ctx context.Context, u model.User) (string, error) {
    sid, err := a.Sessions.Create(ctx, u.ID, u.Role)
    if err != nil {
        return "", err
    }
    a.metrics.Session("created")
    return sid, nil
}

// freeReferralCode picks a user id whose derived referral code is not
// already indexed. The check and the later index write are not atomic.
func (a *Accounts) freeReferralCode(ctx context.Context, email string) (string, string, error) {
    for range codeAttempts {
        id := a.newID()
        code := ReferralCode(email, id)
        _, err := a.Users.GetByReferralCode(ctx, code)
        if errors.Is(err, repository.ErrNotFound) {
            return id, code, nil
        }
        if err != nil {
            return "", "", err
        }
        logger.WithContext(ctx, a.log).Warn("referral code collision", slog.String("code", code))
    }
    return "", "", fmt.Errorf("%w: referral code already in use", repository.ErrConflict)
}

func (a *Accounts) ensureEmailFree(ctx context.Context, email string) error {
    _, err := a.Users.GetByEmail(ctx, email)
    if err == nil {
        return fmt.Errorf("%w: email already in use", repository.ErrConflict)
    }
    if errors.Is(err, repository.ErrNotFound) {
        return nil
    }
    return err
}

// Me returns the user behind a session.
func (a *Accounts) Me(ctx context.Context, sess model.Session) (model.User, error) {
    return a.Users.GetByID(ctx, sess.UserID)
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9]`)

// ReferralCode derives an affiliate's code from the email local part and
// the first six characters of the user id.
func ReferralCode(email, id string) string {
    local := strings.ToLower(email)
    if i := strings.IndexByte(local, '@'); i >= 0 {
        local = local[:i]
    }
    if len(id) > 6 {
        id = id[:6]
    }
    return nonAlnum.ReplaceAllString(local, "") + "-" + id
}

// ReferralLink is the signup URL that credits code.
func (a *Accounts) ReferralLink(code string) string {
    return a.appURL + "/signup?ref=" + url.QueryEscape(code)
}
