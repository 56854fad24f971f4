// Package metrics registers the Prometheus collectors exposed on /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the service collectors. A nil *Metrics is valid and
// records nothing, which keeps tests free of registry wiring.
type Metrics struct {
	Signups        *prometheus.CounterVec
	Sessions       *prometheus.CounterVec
	ResetTokens    *prometheus.CounterVec
	Invites        *prometheus.CounterVec
	ReferralEvents prometheus.Counter
	HTTPDuration   *prometheus.HistogramVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Signups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "referral_signups_total",
			Help: "Accounts created, by kind (affiliate, admin).",
		}, []string{"kind"}),
		Sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "referral_sessions_total",
			Help: "Session lifecycle events (created, revoked).",
		}, []string{"event"}),
		ResetTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "referral_reset_tokens_total",
			Help: "Password reset token events (issued, rejected, used).",
		}, []string{"event"}),
		Invites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "referral_invites_total",
			Help: "Affiliate invite events (created, accepted, rejected).",
		}, []string{"event"}),
		ReferralEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "referral_events_total",
			Help: "Referral events recorded.",
		}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "referral_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	reg.MustRegister(m.Signups, m.Sessions, m.ResetTokens, m.Invites, m.ReferralEvents, m.HTTPDuration)
	return m
}

func (m *Metrics) Signup(kind string) {
	if m != nil {
		m.Signups.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) Session(event string) {
	if m != nil {
		m.Sessions.WithLabelValues(event).Inc()
	}
}

func (m *Metrics) ResetToken(event string) {
	if m != nil {
		m.ResetTokens.WithLabelValues(event).Inc()
	}
}

func (m *Metrics) Invite(event string) {
	if m != nil {
		m.Invites.WithLabelValues(event).Inc()
	}
}

func (m *Metrics) Referral() {
	if m != nil {
		m.ReferralEvents.Inc()
	}
}

// Middleware observes request latency labelled by the matched route.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if m == nil {
				return next(c)
			}
			start := time.Now()
			err := next(c)
			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			m.HTTPDuration.WithLabelValues(c.Request().Method, c.Path(), strconv.Itoa(status)).
				Observe(time.Since(start).Seconds())
			return err
		}
	}
}
