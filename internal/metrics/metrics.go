package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Auth-core counters, exposed on /metrics.
var (
	LoginAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_login_attempts_total",
		Help: "Backoffice login attempts by outcome.",
	}, []string{"outcome"})

	TokensIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_tokens_issued_total",
		Help: "Session tokens issued by kind.",
	}, []string{"kind"})

	TokenVerifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_token_verifications_total",
		Help: "Session token verifications by outcome.",
	}, []string{"outcome"})

	ProvisionFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auth_provision_fallback_total",
		Help: "Role resolutions served by the asserted-roles fallback path.",
	})
)
