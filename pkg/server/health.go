package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// HealthStatus represents the overall health status of the server.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// CheckResult represents the result of a single health check.
type CheckResult struct {
	Name     string        `json:"name"`
	Status   HealthStatus  `json:"status"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// HealthResponse represents the complete health check response.
type HealthResponse struct {
	Status    HealthStatus  `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	Duration  time.Duration `json:"duration"`
	Checks    []CheckResult `json:"checks"`
}

// HealthChecker manages health checks for the dispatcher's dependencies.
// Grounded on the teacher's pkg/server/health.go: same registry-of-named-
// checks shape and HTTP handlers, generalized from game subsystems to the
// session manager, identity provider, and realm store.
type HealthChecker struct {
	checks  map[string]func(context.Context) error
	metrics *Metrics
}

// NewHealthChecker creates a health checker wired to the given server.
func NewHealthChecker(s *Server) *HealthChecker {
	hc := &HealthChecker{
		checks:  make(map[string]func(context.Context) error),
		metrics: s.metrics,
	}

	hc.RegisterCheck("session_manager", func(ctx context.Context) error {
		if s.sessions == nil {
			return fmt.Errorf("session manager not initialized")
		}
		return nil
	})
	hc.RegisterCheck("identity_provider", func(ctx context.Context) error {
		if s.identity == nil {
			return fmt.Errorf("identity provider not configured")
		}
		return nil
	})
	hc.RegisterCheck("realm_store", func(ctx context.Context) error {
		if s.realms == nil {
			return fmt.Errorf("realm store not configured")
		}
		return nil
	})
	hc.RegisterCheck("configuration", func(ctx context.Context) error {
		if s.config == nil || s.config.ServerPort == 0 {
			return fmt.Errorf("server port not configured")
		}
		return nil
	})

	return hc
}

// RegisterCheck adds a new health check with the given name.
func (hc *HealthChecker) RegisterCheck(name string, check func(context.Context) error) {
	hc.checks[name] = check
}

// RunHealthChecks executes all registered health checks and returns the
// aggregated result.
func (hc *HealthChecker) RunHealthChecks(ctx context.Context) HealthResponse {
	start := time.Now()
	response := HealthResponse{Timestamp: start, Checks: make([]CheckResult, 0, len(hc.checks))}
	overall := HealthStatusHealthy

	for name, check := range hc.checks {
		checkStart := time.Now()
		result := CheckResult{Name: name, Status: HealthStatusHealthy}

		checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := check(checkCtx)
		cancel()

		result.Duration = time.Since(checkStart)
		if err != nil {
			result.Status = HealthStatusUnhealthy
			result.Error = err.Error()
			overall = HealthStatusUnhealthy
			if hc.metrics != nil {
				hc.metrics.RecordHealthCheck(name, "failure")
			}
			logrus.WithFields(logrus.Fields{"check": name, "error": err}).Warn("health check failed")
		} else if hc.metrics != nil {
			hc.metrics.RecordHealthCheck(name, "success")
		}

		response.Checks = append(response.Checks, result)
	}

	response.Status = overall
	response.Duration = time.Since(start)
	return response
}

// HealthHandler serves the aggregated health check response at /healthz.
func (hc *HealthChecker) HealthHandler(w http.ResponseWriter, r *http.Request) {
	response := hc.RunHealthChecks(r.Context())

	status := http.StatusOK
	if response.Status == HealthStatusUnhealthy {
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		logrus.WithError(err).Error("failed to encode health response")
	}
}

// ReadinessHandler serves a Kubernetes-style readiness probe at /readyz.
func (hc *HealthChecker) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	response := hc.RunHealthChecks(r.Context())
	if response.Status == HealthStatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("not ready"))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ready"))
}
