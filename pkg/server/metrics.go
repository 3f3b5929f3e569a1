package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus metrics exposed by the coordination server.
// Grounded on the teacher's pkg/server/metrics.go: same registry-per-server
// shape and HTTP middleware, metric names and labels swapped from
// JSON-RPC/game concerns to WebSocket/session/proximity concerns.
type Metrics struct {
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	wsConnections   *prometheus.CounterVec
	activeConns     prometheus.Gauge
	activeSessions  prometheus.Gauge
	eventsInbound   *prometheus.CounterVec
	eventsOutbound  *prometheus.CounterVec
	eventsRejected  *prometheus.CounterVec
	proximityGroups prometheus.Gauge
	healthChecks    *prometheus.CounterVec
	startTime       prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "realmhub_http_requests_total", Help: "Total HTTP requests by method, endpoint, status"},
			[]string{"method", "endpoint", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Name: "realmhub_http_request_duration_seconds", Help: "HTTP request duration", Buckets: prometheus.DefBuckets},
			[]string{"method", "endpoint"},
		),
		wsConnections: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "realmhub_websocket_connections_total", Help: "WebSocket connection lifecycle events"},
			[]string{"event"}, // connected, disconnected, rejected
		),
		activeConns: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "realmhub_websocket_connections_active", Help: "Currently open WebSocket connections"},
		),
		activeSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "realmhub_sessions_active", Help: "Currently active realm sessions"},
		),
		eventsInbound: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "realmhub_events_inbound_total", Help: "Inbound socket events by event name"},
			[]string{"event"},
		),
		eventsOutbound: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "realmhub_events_outbound_total", Help: "Outbound socket events by event name"},
			[]string{"event"},
		),
		eventsRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "realmhub_events_rejected_total", Help: "Rejected inbound events by event name and error kind"},
			[]string{"event", "reason"},
		),
		proximityGroups: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "realmhub_proximity_groups_active", Help: "Approximate count of active proximity groups across all rooms"},
		),
		healthChecks: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "realmhub_health_checks_total", Help: "Health check outcomes by name and status"},
			[]string{"check", "status"},
		),
		startTime: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "realmhub_server_start_time_seconds", Help: "Unix timestamp when the server started"},
		),
		registry: registry,
	}

	m.registry.MustRegister(
		m.httpRequests, m.httpDuration, m.wsConnections, m.activeConns,
		m.activeSessions, m.eventsInbound, m.eventsOutbound, m.eventsRejected,
		m.proximityGroups, m.healthChecks, m.startTime,
	)
	m.startTime.SetToCurrentTime()

	return m
}

// Handler returns an HTTP handler for exposing metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true, Registry: m.registry})
}

// RecordWSConnection records a WebSocket connection lifecycle event.
func (m *Metrics) RecordWSConnection(event string) {
	m.wsConnections.WithLabelValues(event).Inc()
	switch event {
	case "connected":
		m.activeConns.Inc()
	case "disconnected":
		m.activeConns.Dec()
	}
}

// RecordInboundEvent records an inbound event that passed the rate limiter,
// including unknown events and events a handler then rejects.
func (m *Metrics) RecordInboundEvent(event string) {
	m.eventsInbound.WithLabelValues(event).Inc()
}

// RecordOutboundEvent records a broadcast or unicast outbound event.
func (m *Metrics) RecordOutboundEvent(event string) {
	m.eventsOutbound.WithLabelValues(event).Inc()
}

// RecordRejectedEvent records an event dropped for a given reason
// (validation, rate_limited, permission, unknown_event).
func (m *Metrics) RecordRejectedEvent(event, reason string) {
	m.eventsRejected.WithLabelValues(event, reason).Inc()
}

// UpdateActiveSessions sets the active session gauge.
func (m *Metrics) UpdateActiveSessions(count int) {
	m.activeSessions.Set(float64(count))
}

// UpdateProximityGroups sets the active proximity group gauge.
func (m *Metrics) UpdateProximityGroups(count int) {
	m.proximityGroups.Set(float64(count))
}

// RecordHealthCheck records a health check outcome.
func (m *Metrics) RecordHealthCheck(name, status string) {
	m.healthChecks.WithLabelValues(name, status).Inc()
}

// Middleware provides HTTP middleware for recording request metrics.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(recorder, r)

		duration := time.Since(start)
		endpoint := sanitizeEndpoint(r.URL.Path)
		m.httpRequests.WithLabelValues(r.Method, endpoint, strconv.Itoa(recorder.statusCode)).Inc()
		m.httpDuration.WithLabelValues(r.Method, endpoint).Observe(duration.Seconds())
	})
}

func sanitizeEndpoint(path string) string {
	switch path {
	case "/":
		return "root"
	case "/healthz":
		return "healthz"
	case "/readyz":
		return "readyz"
	case "/metrics":
		return "metrics"
	case "/ws":
		return "websocket"
	default:
		if len(path) > 20 {
			return "other"
		}
		return path
	}
}
