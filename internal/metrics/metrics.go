// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worktab_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "worktab_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)

	// Assistant metrics
	ChatTurns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worktab_chat_turns_total",
			Help: "Total chat turns by outcome",
		},
		[]string{"outcome"}, // "ok", "invalid", "not_configured", "upstream", "invalid_response", "rate_limited", "error"
	)

	ModelLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "worktab_model_latency_seconds",
			Help:    "Latency of model completion calls",
			Buckets: []float64{.25, .5, 1, 2, 4, 8, 16, 32, 64},
		},
		[]string{"outcome"}, // "ok" or "error"
	)

	ModelTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worktab_model_tokens_total",
			Help: "Tokens reported by the model provider",
		},
		[]string{"direction"}, // "input" or "output"
	)

	ActionsParsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worktab_actions_parsed_total",
			Help: "Action directives extracted from model replies",
		},
		[]string{"type"},
	)

	MalformedDirectives = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "worktab_malformed_directives_total",
			Help: "Action directives whose params were not valid JSON",
		},
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worktab_rate_limit_hits_total",
			Help: "Total rate limit denials",
		},
		[]string{"tier", "window"},
	)

	UsageStoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worktab_usage_store_errors_total",
			Help: "Usage store failures, which never fail a request",
		},
		[]string{"op"},
	)

	// License metrics
	LicenseValidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worktab_license_validations_total",
			Help: "License validation results",
		},
		[]string{"result"}, // "valid", "invalid", "error"
	)

	WebhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worktab_webhook_events_total",
			Help: "License vendor webhook events received",
		},
		[]string{"event"},
	)
)
