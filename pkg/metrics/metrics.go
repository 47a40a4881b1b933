package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records authentication attempts by provider (password|github|oidc|magic_link) and result (success|failure).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "acesso_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"provider", "result"},
	)

	// Registrations counts account registrations by result (success|duplicate|invalid).
	Registrations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "acesso_registrations_total",
			Help: "Total number of registration attempts",
		},
		[]string{"result"},
	)

	// MagicLinkEmails counts dispatched magic-link emails by result (sent|failed).
	MagicLinkEmails = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "acesso_magic_link_emails_total",
			Help: "Total number of magic-link emails dispatched",
		},
		[]string{"result"},
	)

	// ActiveSessions tracks sessions that are neither expired nor revoked.
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "acesso_active_sessions",
			Help: "Number of active sessions",
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "acesso_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
