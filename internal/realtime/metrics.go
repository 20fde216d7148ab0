package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	rejectOrigin      = "origin"
	rejectParams      = "params"
	rejectTag         = "tag"
	rejectSubprotocol = "subprotocol"
)

var (
	wsConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ledger_sync_connections",
		Help: "Live websocket connections on the sync channel.",
	})

	wsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_sync_rejected_total",
		Help: "Websocket admissions rejected, by cause.",
	}, []string{"cause"})

	forceLogoutPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_sync_force_logout_published_total",
		Help: "Forced-logout notices published to the hub.",
	})

	forceLogoutDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_sync_force_logout_delivered_total",
		Help: "Forced-logout notices enqueued to a live connection.",
	})

	forceLogoutDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_sync_force_logout_dropped_total",
		Help: "Forced-logout notices dropped under backpressure.",
	})
)
