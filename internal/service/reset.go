package service

import (
    "context"
    "errors"
    "log/slog"
    "net/url"
    "strings"

    "github.com/iliyamo/referral-tracker/internal/logger"
    "github.com/iliyamo/referral-tracker/internal/model"
    "github.com/iliyamo/referral-tracker/internal/repository"
    "github.com/iliyamo/referral-tracker/internal/utils"
)

// RequestPasswordReset issues a token and sends the reset link when email
// belongs to a user. The outcome is the same whether or not it does, so
// only storage failures are returned.
func (a *Accounts) RequestPasswordReset(ctx context.Context, email string) error {
    email = model.NormalizeEmail(email)
    if email == "" {
        return nil
    }
    u, err := a.Users.GetByEmail(ctx, email)
    if errors.Is(err, repository.ErrNotFound) {
        return nil
    }
    if err != nil {
        return err
    }

    raw, err := a.Resets.Issue(ctx, u.ID)
    if err != nil {
        return err
    }
    a.metrics.ResetToken("issued")

    if err := a.Notifier.PasswordReset(ctx, u.Email, a.resetLink(raw, u.ID)); err != nil {
        logger.WithContext(ctx, a.log).Warn("send password reset failed",
            slog.String("user_id", u.ID), slog.String("error", err.Error()))
    }
    return nil
}

func (a *Accounts) resetLink(token, userID string) string {
    return a.appURL + "/reset-password/confirm?token=" + url.QueryEscape(token) + "&uid=" + url.QueryEscape(userID)
}

// ConfirmPasswordReset sets a new password when the token is live for the
// user, then clears the token so the link cannot be replayed.
func (a *Accounts) ConfirmPasswordReset(ctx context.Context, in ResetConfirmInput) error {
    in.UserID = strings.TrimSpace(in.UserID)
    in.Token = strings.TrimSpace(in.Token)
    if err := check(in); err != nil {
        return err
    }

    ok, err := a.Resets.Verify(ctx, in.UserID, in.Token)
    if err != nil {
        return err
    }
    if !ok {
        a.metrics.ResetToken("rejected")
        return repository.ErrInvalidToken
    }

    u, err := a.Users.GetByID(ctx, in.UserID)
    if err != nil {
        return err
    }
    hash, err := utils.HashPassword(in.Password, a.bcryptCost)
    if err != nil {
        return err
    }
    u.PasswordHash = hash
    if err := a.Users.Update(ctx, u); err != nil {
        return err
    }
    if err := a.Resets.Clear(ctx, u.ID); err != nil {
        return err
    }
    a.metrics.ResetToken("used")
    logger.WithContext(ctx, a.log).Info("password reset", slog.String("user_id", u.ID))
    return nil
}
