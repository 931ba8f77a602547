// Package metrics holds the Prometheus collectors shared by the HTTP layer and the Spotify client.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "spotstats"

// Upstream call outcomes.
const (
	OutcomeOK          = "ok"
	OutcomeAuth        = "auth_error"
	OutcomeUnavailable = "unavailable"
	OutcomeError       = "error"
)

var (
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "HTTP requests served by route and status code."},
		[]string{"route", "code"},
	)
	UpstreamRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "upstream_requests_total", Help: "Calls to the Spotify API by endpoint and outcome."},
		[]string{"endpoint", "outcome"},
	)
	TokenExchanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "token_exchanges_total", Help: "Authorization code exchanges by outcome."},
		[]string{"outcome"},
	)
	RateLimitRejected = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: namespace, Name: "rate_limit_rejected_total", Help: "Requests rejected by the inbound rate limiter."},
	)
	SessionsPruned = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: namespace, Name: "sessions_pruned_total", Help: "Token records dropped after the session retention window."},
	)
)

// RegisterCollectors registers every collector with reg.
func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(HTTPRequests, UpstreamRequests, TokenExchanges, RateLimitRejected, SessionsPruned)
}

// Handler returns an exposition handler for the collectors gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
