package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Invitation lifecycle outcomes.
const (
	OutcomeCreated  = "created"
	OutcomeAccepted = "accepted"
	OutcomeReplayed = "replayed"
	OutcomeRevoked  = "revoked"
	OutcomeExpired  = "expired"
	OutcomeRejected = "rejected"
	OutcomeResolved = "resolved"
)

var (
	invitationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "backstage_invitations_total",
		Help: "Invitation lifecycle operations by outcome",
	}, []string{"outcome"})

	accessDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "backstage_access_decisions_total",
		Help: "Access resolver decisions by action and result",
	}, []string{"action", "decision"})
)

// RecordInvitation counts one invitation lifecycle outcome.
func RecordInvitation(outcome string) {
	invitationsTotal.WithLabelValues(outcome).Inc()
}

// RecordAccessDecision counts one resolver decision.
func RecordAccessDecision(action, decision string) {
	accessDecisionsTotal.WithLabelValues(action, decision).Inc()
}

// MetricsHandler serves the default registry.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
