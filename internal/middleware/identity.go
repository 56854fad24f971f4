package middleware

// identity.go holds helpers shared across middleware files. currentUserID
// reads the user id LoadSession placed in the echo context and falls back
// to "anon" so rate-limit keys stay well formed for signed-out callers.

import (
    "github.com/labstack/echo/v4"
)

func currentUserID(c echo.Context) string {
    if v := c.Get(ctxUserID); v != nil {
        if s, ok := v.(string); ok && s != "" {
            return s
        }
    }
    return "anon"
}
