package handler

import (
    "context"  // request-scoped timeouts for store calls
    "log/slog" // structured logging
    "net/http" // HTTP status codes
    "time"     // timeout durations

    "github.com/labstack/echo/v4" // Echo framework for HTTP routing

    "github.com/iliyamo/referral-tracker/internal/middleware" // session cookie binding
    "github.com/iliyamo/referral-tracker/internal/model"      // user records
    "github.com/iliyamo/referral-tracker/internal/service"    // account workflows
)

// requestTimeout bounds every handler's store and broker calls.
const requestTimeout = 5 * time.Second

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Accounts *service.Accounts
	Sessions *middleware.SessionAuth
	Log      *slog.Logger
}

func NewAuthHandler(a *service.Accounts, s *middleware.SessionAuth, log *slog.Logger) *AuthHandler {
	if log == nil {
		log = slog.Default()
	}
	return &AuthHandler{Accounts: a, Sessions: s, Log: log}
}

// ----- DTOs -----

type userPart struct {
	ID           string     `json:"id"`
	FullName     string     `json:"fullName,omitempty"`
	Email        string     `json:"email"`
	Role         model.Role `json:"role"`
	ReferralCode string     `json:"referralCode,omitempty"`
	ReferredBy   string     `json:"referredBy,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// toUserPart drops the password hash before a user leaves the service.
func toUserPart(u model.User) userPart {
	return userPart{
		ID:           u.ID,
		FullName:     u.FullName,
		Email:        u.Email,
		Role:         u.Role,
		ReferralCode: u.ReferralCode,
		ReferredBy:   u.ReferredBy,
		CreatedAt:    u.CreatedAt,
	}
}

type resetReq struct {
	Email string `json:"email"`
}

// Signup: create an affiliate account and start a session.
func (h *AuthHandler) Signup(c echo.Context) error {
	var req service.SignupInput
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	res, err := h.Accounts.SignupAffiliate(ctx, req)
	if err != nil {
		return fail(c, h.Log, "signup", err)
	}
	return h.authenticated(c, http.StatusCreated, res)
}

// AdminSignup: create an admin account and start a session.
func (h *AuthHandler) AdminSignup(c echo.Context) error {
	var req service.AdminSignupInput
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	res, err := h.Accounts.SignupAdmin(ctx, req)
	if err != nil {
		return fail(c, h.Log, "admin signup", err)
	}
	return h.authenticated(c, http.StatusCreated, res)
}

// Login: verify credentials for any role.
func (h *AuthHandler) Login(c echo.Context) error {
	return h.login(c, h.Accounts.Login)
}

// AdminLogin: verify credentials, admins only.
func (h *AuthHandler) AdminLogin(c echo.Context) error {
	return h.login(c, h.Accounts.AdminLogin)
}

func (h *AuthHandler) login(c echo.Context, fn func(context.Context, service.LoginInput) (service.AuthResult, error)) error {
	var req service.LoginInput
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	res, err := fn(ctx, req)
	if err != nil {
		if statusFor(err) == http.StatusUnauthorized {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
		}
		return fail(c, h.Log, "login", err)
	}
	return h.authenticated(c, http.StatusOK, res)
}

func (h *AuthHandler) authenticated(c echo.Context, status int, res service.AuthResult) error {
	if err := h.Sessions.BindSession(c, res.SessionID); err != nil {
		return fail(c, h.Log, "bind session", err)
	}
	return c.JSON(status, echo.Map{"user": toUserPart(res.User)})
}

// Logout revokes the current session, if any, and expires the cookie.
func (h *AuthHandler) Logout(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	if sess, err := middleware.RequireAuthenticated(c); err == nil {
		if err := h.Accounts.Logout(ctx, sess.ID); err != nil {
			return fail(c, h.Log, "logout", err)
		}
	}
	h.Sessions.ClearSession(c)
	return c.NoContent(http.StatusNoContent)
}

// RequestReset always answers 202 so callers cannot probe for accounts.
func (h *AuthHandler) RequestReset(c echo.Context) error {
	var req resetReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	if err := h.Accounts.RequestPasswordReset(ctx, req.Email); err != nil {
		return fail(c, h.Log, "password reset", err)
	}
	return c.JSON(http.StatusAccepted, echo.Map{"message": "if the email is registered, a reset link has been sent"})
}

// ConfirmReset sets the new password from a reset link.
func (h *AuthHandler) ConfirmReset(c echo.Context) error {
	var req service.ResetConfirmInput
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	if err := h.Accounts.ConfirmPasswordReset(ctx, req); err != nil {
		return fail(c, h.Log, "password reset", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "password updated"})
}

// Me returns the user behind the current session.
func (h *AuthHandler) Me(c echo.Context) error {
	sess, err := middleware.RequireAuthenticated(c)
	if err != nil {
		return fail(c, h.Log, "me", err)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	u, err := h.Accounts.Me(ctx, sess)
	if err != nil {
		return fail(c, h.Log, "me", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"user": toUserPart(u)})
}
