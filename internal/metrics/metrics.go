// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "farmpulse_live_connections",
			Help: "Connections currently held by the registry",
		},
	)

	SendFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "farmpulse_registry_send_failures_total",
			Help: "Registry sends that failed and evicted the connection",
		},
	)

	LiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "farmpulse_signaling_sessions",
			Help: "Open signaling sessions",
		},
	)

	RelayedMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "farmpulse_relay_messages_total",
			Help: "Signaling messages forwarded to a peer",
		},
		[]string{"type"},
	)

	RelayDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "farmpulse_relay_dropped_total",
			Help: "Signaling messages dropped",
		},
		[]string{"reason"}, // "peer_absent", "invalid_session", "malformed", "send_failed"
	)

	Deliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "farmpulse_notification_deliveries_total",
			Help: "Notification delivery attempts per channel",
		},
		[]string{"channel", "result"}, // "delivered", "not_connected", "failed"
	)

	OutbreakEvaluations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "farmpulse_outbreak_evaluations_total",
			Help: "Classified events evaluated by the outbreak trigger",
		},
	)

	OutbreakAlerts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "farmpulse_outbreak_alerts_total",
			Help: "Outbreak alerts raised",
		},
		[]string{"disease"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "farmpulse_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path", "status"},
	)
)
