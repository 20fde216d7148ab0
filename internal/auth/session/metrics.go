package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	validateTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_session_validate_total",
		Help: "Session validation outcomes.",
	}, []string{"result"})

	deactivatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_session_deactivated_total",
		Help: "Sessions flipped inactive, by reason.",
	}, []string{"reason"})

	auditFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_login_audit_failures_total",
		Help: "Login audit rows that could not be written.",
	})
)

// Validation outcome labels.
const (
	resultOK    = "ok"
	resultMiss  = "miss"
	resultIdle  = "idle"
	resultError = "error"
)
