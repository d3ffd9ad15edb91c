// Package metrics exposes Prometheus instrumentation for the gateway and
// session layers.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// WebSocket metrics.
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ws_connections_active",
		Help: "The current number of active WebSocket connections.",
	})
	TotalConnections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ws_connections_total",
		Help: "The total number of WebSocket connections accepted.",
	})
	MessagesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ws_messages_received_total",
		Help: "The total number of messages received from clients.",
	})
	MessagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ws_messages_sent_total",
		Help: "The total number of messages sent to clients.",
	})
	LivenessTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ws_liveness_timeouts_total",
		Help: "The total number of connections torn down for missed liveness acknowledgments.",
	})

	// Auth metrics.
	Logins = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_logins_total",
		Help: "The total number of login requests by outcome.",
	}, []string{"outcome"})
	TokensIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_tokens_issued_total",
		Help: "The total number of tokens minted by reason.",
	}, []string{"reason"})
	RefreshFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auth_refresh_failures_total",
		Help: "The total number of refresh requests rejected with an invalid token.",
	})
)

// Handler returns the HTTP handler serving the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
