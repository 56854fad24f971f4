package handler // declare the package name; contains HTTP handlers

import (
    "context"  // bounded ping of the backing store
    "net/http" // net/http provides status codes and response helpers
    "time"

    "github.com/labstack/echo/v4" // echo is the web framework used for this project
)

// Pinger is implemented by both KV backends.
type Pinger interface {
    Ping(ctx context.Context) error
}

// Health is a simple health‑check endpoint used by load balancers and
// monitoring systems.  It answers "ok" when the backing store responds
// and 503 otherwise.  A nil store only reports that the process is up.
func Health(store Pinger) echo.HandlerFunc {
    return func(c echo.Context) error {
        if store != nil {
            ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
            defer cancel()
            if err := store.Ping(ctx); err != nil {
                return c.String(http.StatusServiceUnavailable, "store unavailable")
            }
        }
        return c.String(http.StatusOK, "ok") // write "ok" with a 200 OK status
    }
}
