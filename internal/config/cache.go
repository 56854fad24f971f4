package config

import (
    "strings"
    "time"
)

// CacheConfig defines settings for the response cache middleware used on
// the admin overview.  When Enabled is false or no Redis client is
// configured, caching is disabled.  The overview shows best-effort totals,
// so a short TTL is acceptable.
type CacheConfig struct {
    Enabled      bool          `env:"CACHE_ENABLED" envDefault:"true"`
    Methods      []string      `env:"CACHE_METHODS" envDefault:"GET" envSeparator:","`
    TTL          time.Duration `env:"CACHE_TTL" envDefault:"10s"`
    KeyStrategy  string        `env:"CACHE_KEY_STRATEGY" envDefault:"route_query"`
    Prefix       string        `env:"CACHE_PREFIX" envDefault:"cache"`
    MaxBodyBytes int           `env:"CACHE_MAX_BODY_BYTES" envDefault:"1048576"`
}

// MethodSet returns the cacheable methods upper-cased for lookups.
func (c CacheConfig) MethodSet() map[string]bool {
    m := map[string]bool{}
    for _, p := range c.Methods {
        p = strings.TrimSpace(strings.ToUpper(p))
        if p != "" {
            m[p] = true
        }
    }
    return m
}
