package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Webhook outcome labels.
const (
	OutcomeApplied           = "applied"
	OutcomeReplay            = "replay"
	OutcomeIgnored           = "ignored"
	OutcomeInFlight          = "in_flight"
	OutcomeNeedsReview       = "needs_review"
	OutcomeTenantConfigError = "tenant_config_error"
	OutcomeUpstreamError     = "upstream_error"
	OutcomeInternalError     = "internal_error"
	OutcomeMalformed         = "malformed"
)

var WebhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "agendafacil",
	Name:      "webhook_events_total",
	Help:      "Payment events processed, by outcome",
}, []string{"outcome"})

var Reconciliations = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "agendafacil",
	Name:      "reconciliations_total",
	Help:      "Reconciliations applied, by target and resulting status",
}, []string{"target", "status"})

var TenantConfigErrors = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "agendafacil",
	Name:      "tenant_config_errors_total",
	Help:      "Events that could not be processed because the tenant gateway credential is missing or rejected",
})

var SweepRuns = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "agendafacil",
	Name:      "sweep_runs_total",
	Help:      "Background job runs, by job and status",
}, []string{"job", "status"})
