package middleware

import (
    "bytes"
    "context"
    "crypto/sha1"
    "encoding/json"
    "fmt"
    "log/slog"
    "net/http"
    "strings"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"

    "github.com/iliyamo/referral-tracker/internal/config"
)

// cachedResponse is the value stored per cache key.
type cachedResponse struct {
    Status int         `json:"status"`
    Header http.Header `json:"header"`
    Body   []byte      `json:"body"`
}

// bodyRecorder tees the response body into a bounded buffer. Once the
// body exceeds limit the response is marked uncacheable.
type bodyRecorder struct {
    http.ResponseWriter
    status   int
    buf      bytes.Buffer
    limit    int
    overflow bool
}

func (r *bodyRecorder) WriteHeader(code int) {
    r.status = code
    r.ResponseWriter.WriteHeader(code)
}

func (r *bodyRecorder) Write(b []byte) (int, error) {
    if !r.overflow {
        if r.limit > 0 && r.buf.Len()+len(b) > r.limit {
            r.overflow = true
            r.buf.Reset()
        } else {
            r.buf.Write(b)
        }
    }
    return r.ResponseWriter.Write(b)
}

// cacheKey derives the Redis key for the request. Every strategy includes
// the caller's role so a cached body never crosses a privilege boundary.
func cacheKey(cfg config.CacheConfig, c echo.Context) string {
    r := c.Request()
    role, _ := c.Get(ctxRole).(string)
    if role == "" {
        role = "anon"
    }

    parts := []string{"role", role}
    switch strings.ToLower(cfg.KeyStrategy) {
    case "route":
        parts = append(parts, "route", c.Path())
    case "method_route":
        parts = append(parts, "method", r.Method, "route", c.Path())
    case "method_route_query":
        parts = append(parts, "method", r.Method, "route", c.Path(), "q", r.URL.RawQuery)
    default: // "route_query"
        parts = append(parts, "route", c.Path(), "q", r.URL.RawQuery)
    }
    sum := sha1.Sum([]byte(strings.Join(parts, ":")))
    return fmt.Sprintf("%s:%x", cfg.Prefix, sum[:])
}

// NewRedisCache serves repeated reads of the same route from Redis. Only
// 200 responses that do not set cookies are stored. A nil client or a
// disabled config yields a pass-through middleware.
func NewRedisCache(cfg config.CacheConfig, rdb *redis.Client) echo.MiddlewareFunc {
    if !cfg.Enabled || rdb == nil {
        return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
    }
    ttl := cfg.TTL
    if ttl <= 0 {
        ttl = 10 * time.Second
    }
    methods := cfg.MethodSet()

    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            if !methods[c.Request().Method] {
                return next(c)
            }
            key := cacheKey(cfg, c)

            if hit, ok := loadCached(c.Request().Context(), rdb, key); ok {
                h := c.Response().Header()
                for k, vals := range hit.Header {
                    if strings.EqualFold(k, echo.HeaderContentLength) {
                        continue
                    }
                    h[k] = vals
                }
                h.Set("X-Cache", "HIT")
                c.Response().WriteHeader(hit.Status)
                _, err := c.Response().Write(hit.Body)
                return err
            }

            rec := &bodyRecorder{ResponseWriter: c.Response().Writer, status: http.StatusOK, limit: cfg.MaxBodyBytes}
            c.Response().Writer = rec
            c.Response().Header().Set("X-Cache", "MISS")

            if err := next(c); err != nil {
                return err
            }
            if rec.status != http.StatusOK || rec.overflow || c.Response().Header().Get("Set-Cookie") != "" {
                return nil
            }
            payload, err := json.Marshal(cachedResponse{
                Status: rec.status,
                Header: c.Response().Header().Clone(),
                Body:   rec.buf.Bytes(),
            })
            if err != nil {
                return nil
            }
            // The client already has its response; store on a fresh context.
            if err := rdb.Set(context.Background(), key, payload, ttl).Err(); err != nil {
                slog.Warn("response cache store failed", slog.String("key", key), slog.String("error", err.Error()))
            }
            return nil
        }
    }
}

func loadCached(ctx context.Context, rdb *redis.Client, key string) (cachedResponse, bool) {
    bs, err := rdb.Get(ctx, key).Bytes()
    if err != nil {
        return cachedResponse{}, false
    }
    var hit cachedResponse
    if err := json.Unmarshal(bs, &hit); err != nil || hit.Status == 0 {
        return cachedResponse{}, false
    }
    return hit, true
}
