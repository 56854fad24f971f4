package handler

import (
    "context"
    "log/slog"
    "net/http"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/referral-tracker/internal/middleware"
    "github.com/iliyamo/referral-tracker/internal/model"
    "github.com/iliyamo/referral-tracker/internal/service"
)

// DashboardHandler serves the affiliate and admin dashboards and the
// admin invite endpoint.
type DashboardHandler struct {
    Accounts *service.Accounts
    Log      *slog.Logger
}

func NewDashboardHandler(a *service.Accounts, log *slog.Logger) *DashboardHandler {
    if log == nil {
        log = slog.Default()
    }
    return &DashboardHandler{Accounts: a, Log: log}
}

type inviteReq struct {
    Email string `json:"email"`
}

// Affiliate returns the caller's referral link and referrals.
func (h *DashboardHandler) Affiliate(c echo.Context) error {
    sess, err := middleware.SessionWithRole(c, model.RoleAffiliate)
    if err != nil {
        return fail(c, h.Log, "dashboard", err)
    }
    ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
    defer cancel()

    d, err := h.Accounts.Dashboard(ctx, sess.UserID)
    if err != nil {
        return fail(c, h.Log, "dashboard", err)
    }
    return c.JSON(http.StatusOK, d)
}

// Overview returns global stats and the affiliate list.
func (h *DashboardHandler) Overview(c echo.Context) error {
    if _, err := middleware.SessionWithRole(c, model.RoleAdmin); err != nil {
        return fail(c, h.Log, "overview", err)
    }
    ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
    defer cancel()

    o, err := h.Accounts.Overview(ctx)
    if err != nil {
        return fail(c, h.Log, "overview", err)
    }
    affiliates := make([]userPart, 0, len(o.Affiliates))
    for _, u := range o.Affiliates {
        affiliates = append(affiliates, toUserPart(u))
    }
    return c.JSON(http.StatusOK, echo.Map{"stats": o.Stats, "admins": o.Admins, "affiliates": affiliates})
}

// CreateInvite mints an affiliate invite and sends the link.
func (h *DashboardHandler) CreateInvite(c echo.Context) error {
    sess, err := middleware.SessionWithRole(c, model.RoleAdmin)
    if err != nil {
        return fail(c, h.Log, "invite", err)
    }
    var req inviteReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
    }
    ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
    defer cancel()

    res, err := h.Accounts.InviteAffiliate(ctx, sess.UserID, req.Email)
    if err != nil {
        return fail(c, h.Log, "invite", err)
    }
    return c.JSON(http.StatusCreated, res)
}
