package middleware

import (
    "errors"
    "log/slog"
    "net/http"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/referral-tracker/internal/logger"
    "github.com/iliyamo/referral-tracker/internal/model"
    "github.com/iliyamo/referral-tracker/internal/repository"
    "github.com/iliyamo/referral-tracker/internal/utils"
)

// Context keys set by LoadSession. user_id and role keep the names the
// rate limiter and handlers already read.
const (
    ctxSession = "session"
    ctxUserID  = "user_id"
    ctxRole    = "role"
)

// SessionAuth binds sessions to the HTTP cookie transport.
type SessionAuth struct {
    Sessions   *repository.SessionRepo
    Cookie     utils.SessionCookie
    CookieName string
    Log        *slog.Logger
}

func NewSessionAuth(sessions *repository.SessionRepo, cookie utils.SessionCookie, name string, log *slog.Logger) *SessionAuth {
    if name == "" {
        name = "session-id"
    }
    if log == nil {
        log = slog.Default()
    }
    return &SessionAuth{Sessions: sessions, Cookie: cookie, CookieName: name, Log: log}
}

// LoadSession resolves the session cookie, if any, and stores the session
// in the echo context. Requests without a valid session pass through
// unauthenticated; the Require* helpers decide what that means.
func (a *SessionAuth) LoadSession() echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            ck, err := c.Cookie(a.CookieName)
            if err != nil || ck.Value == "" {
                return next(c)
            }
            sid, err := a.Cookie.Decode(ck.Value)
            if err != nil {
                return next(c)
            }
            sess, err := a.Sessions.Resolve(c.Request().Context(), sid)
            if errors.Is(err, repository.ErrNotFound) {
                return next(c)
            }
            if err != nil {
                a.Log.Error("resolve session", slog.String("error", err.Error()))
                return c.JSON(http.StatusInternalServerError, echo.Map{"error": "session lookup failed"})
            }

            c.Set(ctxSession, sess)
            c.Set(ctxUserID, sess.UserID)
            c.Set(ctxRole, string(sess.Role))
            req := c.Request()
            c.SetRequest(req.WithContext(logger.WithUserID(req.Context(), sess.UserID)))
            return next(c)
        }
    }
}

// BindSession writes the cookie carrying session id sid.
func (a *SessionAuth) BindSession(c echo.Context, sid string) error {
    value, err := a.Cookie.Encode(sid)
    if err != nil {
        return err
    }
    c.SetCookie(&http.Cookie{
        Name:     a.CookieName,
        Value:    value,
        Path:     "/",
        MaxAge:   int(a.Sessions.TTL.Seconds()),
        HttpOnly: true,
        Secure:   true,
        SameSite: http.SameSiteLaxMode,
    })
    return nil
}

// ClearSession expires the cookie on the client.
func (a *SessionAuth) ClearSession(c echo.Context) {
    c.SetCookie(&http.Cookie{
        Name:     a.CookieName,
        Value:    "",
        Path:     "/",
        MaxAge:   -1,
        HttpOnly: true,
        Secure:   true,
        SameSite: http.SameSiteLaxMode,
    })
}

// RequireAuthenticated returns the session loaded for this request or
// repository.ErrUnauthenticated.
func RequireAuthenticated(c echo.Context) (model.Session, error) {
    sess, ok := c.Get(ctxSession).(model.Session)
    if !ok || sess.UserID == "" {
        return model.Session{}, repository.ErrUnauthenticated
    }
    return sess, nil
}

// SessionWithRole is RequireAuthenticated plus a role check. The role is
// the one captured at login; it is not re-read from the user record.
func SessionWithRole(c echo.Context, role model.Role) (model.Session, error) {
    sess, err := RequireAuthenticated(c)
    if err != nil {
        return model.Session{}, err
    }
    if sess.Role != role {
        return model.Session{}, repository.ErrForbidden
    }
    return sess, nil
}

// RequireAuth rejects requests without a live session.
func RequireAuth() echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            if _, err := RequireAuthenticated(c); err != nil {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthenticated"})
            }
            return next(c)
        }
    }
}
