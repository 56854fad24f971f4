package middleware // middleware provides shared request processing for handlers

import (
    "net/http" // http package defines standard HTTP status codes

    "github.com/labstack/echo/v4" // echo provides middleware chaining and context

    "github.com/iliyamo/referral-tracker/internal/model"
)

// RequireRole returns a middleware function that enforces that the
// session loaded by LoadSession carries one of the given roles.  A
// request with no session is answered with 401; a session with any
// other role gets 403 Forbidden.
func RequireRole(roles ...model.Role) echo.MiddlewareFunc {
    // Build a set of allowed roles for constant‑time lookups.
    allowed := make(map[model.Role]bool, len(roles))
    for _, r := range roles {
        allowed[r] = true
    }
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            sess, err := RequireAuthenticated(c)
            if err != nil {
                return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthenticated"})
            }
            if !allowed[sess.Role] {
                // Role captured at login is not in the allowed set
                return c.JSON(http.StatusForbidden, map[string]string{"error": "forbidden"})
            }
            // Otherwise call the next handler in the chain
            return next(c)
        }
    }
}
