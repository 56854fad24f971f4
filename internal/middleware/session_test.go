package middleware

import (
    "context"
    "net/http"
    "net/http/httptest"
    "testing"
    "time"

    "github.com/alicebob/miniredis/v2"
    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/iliyamo/referral-tracker/internal/kv"
    "github.com/iliyamo/referral-tracker/internal/model"
    "github.com/iliyamo/referral-tracker/internal/repository"
    "github.com/iliyamo/referral-tracker/internal/utils"
)

const testSecret = "test-secret"

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
    t.Helper()
    mr := miniredis.RunT(t)
    client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
    t.Cleanup(func() { _ = client.Close() })
    return client, mr
}

func newTestAuth(t *testing.T) (*SessionAuth, *miniredis.Miniredis) {
    t.Helper()
    client, mr := setupTestRedis(t)
    sessions := repository.NewSessionRepo(kv.NewRedisStore(client), time.Hour)
    return NewSessionAuth(sessions, utils.NewSessionCookie(testSecret, time.Hour), "session-id", nil), mr
}

// newEcho wires LoadSession in front of a handler reporting the caller.
func newEcho(a *SessionAuth, mw ...echo.MiddlewareFunc) *echo.Echo {
    e := echo.New()
    e.Use(a.LoadSession())
    e.GET("/who", func(c echo.Context) error {
        sess, err := RequireAuthenticated(c)
        if err != nil {
            return c.String(http.StatusOK, "anonymous")
        }
        return c.String(http.StatusOK, sess.UserID+"/"+string(sess.Role))
    }, mw...)
    return e
}

func cookieFor(t *testing.T, a *SessionAuth, userID string, role model.Role) *http.Cookie {
    t.Helper()
    sid, err := a.Sessions.Create(context.Background(), userID, role)
    require.NoError(t, err)
    value, err := a.Cookie.Encode(sid)
    require.NoError(t, err)
    return &http.Cookie{Name: "session-id", Value: value}
}

func do(e *echo.Echo, path string, ck *http.Cookie) *httptest.ResponseRecorder {
    req := httptest.NewRequest(http.MethodGet, path, nil)
    if ck != nil {
        req.AddCookie(ck)
    }
    rec := httptest.NewRecorder()
    e.ServeHTTP(rec, req)
    return rec
}

// ----------------------------------------------------------------------------
// LoadSession
// ----------------------------------------------------------------------------

func TestLoadSession_ValidCookie(t *testing.T) {
    a, _ := newTestAuth(t)
    e := newEcho(a)

    rec := do(e, "/who", cookieFor(t, a, "u-1", model.RoleAffiliate))

    assert.Equal(t, http.StatusOK, rec.Code)
    assert.Equal(t, "u-1/affiliate", rec.Body.String())
}

func TestLoadSession_NoCookie(t *testing.T) {
    a, _ := newTestAuth(t)
    rec := do(newEcho(a), "/who", nil)
    assert.Equal(t, "anonymous", rec.Body.String())
}

func TestLoadSession_ForgedCookie(t *testing.T) {
    a, _ := newTestAuth(t)
    other := utils.NewSessionCookie("other-secret", time.Hour)
    value, err := other.Encode("whatever")
    require.NoError(t, err)

    rec := do(newEcho(a), "/who", &http.Cookie{Name: "session-id", Value: value})
    assert.Equal(t, "anonymous", rec.Body.String())
}

func TestLoadSession_RevokedSession(t *testing.T) {
    a, _ := newTestAuth(t)
    ck := cookieFor(t, a, "u-1", model.RoleAdmin)
    sid, err := a.Cookie.Decode(ck.Value)
    require.NoError(t, err)
    require.NoError(t, a.Sessions.Revoke(context.Background(), sid))

    rec := do(newEcho(a), "/who", ck)
    assert.Equal(t, "anonymous", rec.Body.String())
}

func TestLoadSession_ExpiredSession(t *testing.T) {
    a, mr := newTestAuth(t)
    ck := cookieFor(t, a, "u-1", model.RoleAdmin)
    mr.FastForward(2 * time.Hour)

    rec := do(newEcho(a), "/who", ck)
    assert.Equal(t, "anonymous", rec.Body.String())
}

// ----------------------------------------------------------------------------
// Guards
// ----------------------------------------------------------------------------

func TestRequireAuth(t *testing.T) {
    a, _ := newTestAuth(t)
    e := newEcho(a, RequireAuth())

    assert.Equal(t, http.StatusUnauthorized, do(e, "/who", nil).Code)
    assert.Equal(t, http.StatusOK, do(e, "/who", cookieFor(t, a, "u-1", model.RoleAffiliate)).Code)
}

func TestRequireRole(t *testing.T) {
    a, _ := newTestAuth(t)
    e := newEcho(a, RequireRole(model.RoleAdmin))

    assert.Equal(t, http.StatusUnauthorized, do(e, "/who", nil).Code)
    assert.Equal(t, http.StatusForbidden, do(e, "/who", cookieFor(t, a, "u-1", model.RoleAffiliate)).Code)
    assert.Equal(t, http.StatusOK, do(e, "/who", cookieFor(t, a, "u-2", model.RoleAdmin)).Code)
}

func TestSessionWithRole(t *testing.T) {
    e := echo.New()
    c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

    _, err := SessionWithRole(c, model.RoleAdmin)
    assert.ErrorIs(t, err, repository.ErrUnauthenticated)

    c.Set(ctxSession, model.Session{ID: "s", UserID: "u", Role: model.RoleAffiliate})
    _, err = SessionWithRole(c, model.RoleAdmin)
    assert.ErrorIs(t, err, repository.ErrForbidden)

    sess, err := SessionWithRole(c, model.RoleAffiliate)
    require.NoError(t, err)
    assert.Equal(t, "u", sess.UserID)
}

// ----------------------------------------------------------------------------
// Cookie binding
// ----------------------------------------------------------------------------

func TestBindAndClearSession(t *testing.T) {
    a, _ := newTestAuth(t)
    e := echo.New()

    rec := httptest.NewRecorder()
    c := e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), rec)
    require.NoError(t, a.BindSession(c, "sid-1"))

    cookies := rec.Result().Cookies()
    require.Len(t, cookies, 1)
    ck := cookies[0]
    assert.Equal(t, "session-id", ck.Name)
    assert.True(t, ck.HttpOnly)
    assert.True(t, ck.Secure)
    assert.Equal(t, http.SameSiteLaxMode, ck.SameSite)
    assert.Equal(t, "/", ck.Path)
    assert.Equal(t, 3600, ck.MaxAge)
    sid, err := a.Cookie.Decode(ck.Value)
    require.NoError(t, err)
    assert.Equal(t, "sid-1", sid)

    rec = httptest.NewRecorder()
    c = e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), rec)
    a.ClearSession(c)
    cookies = rec.Result().Cookies()
    require.Len(t, cookies, 1)
    assert.Equal(t, -1, cookies[0].MaxAge)
}
