package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registration outcomes, used as the "outcome" label.
const (
	OutcomeRegistered        = "registered"
	OutcomeCapacityExceeded  = "capacity_exceeded"
	OutcomeAlreadyRegistered = "already_registered"
	OutcomeNotFound          = "not_found"
	OutcomeError             = "error"
)

var (
	// RegistrationAttempts counts POST /events/{id}/register results.
	RegistrationAttempts = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registration_attempts_total",
			Help:      "Event registration attempts by outcome",
		},
		[]string{"outcome"},
	)

	// Unregistrations counts successful unregistrations.
	Unregistrations = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unregistrations_total",
			Help:      "Successful event unregistrations",
		},
	)

	// EventCacheLookups counts event cache reads by result (hit, miss, error).
	EventCacheLookups = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_cache_lookups_total",
			Help:      "Event cache lookups by result",
		},
		[]string{"result"},
	)

	// LoginRateLimited counts requests rejected by the login rate limiter.
	LoginRateLimited = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "login_rate_limited_total",
			Help:      "Login and signup requests rejected with 429",
		},
	)
)
