// This module extends the server package with configurable timeout and
// retry helpers (TimeoutConfig). Server does not construct a TimeoutConfig,
// so inbound event processing runs without them.
package server

import (
	"context"
	"fmt"
	"time"

	"realmhub/pkg/config"
	"realmhub/pkg/retry"

	"github.com/sirupsen/logrus"
)

// TimeoutConfig holds timeout-related configuration for dispatch operations.
// Grounded on the teacher's pkg/server/timeout.go, unchanged in shape.
type TimeoutConfig struct {
	RequestTimeout  time.Duration
	SessionTimeout  time.Duration
	CleanupInterval time.Duration
	RetryEnabled    bool
	RetryConfig     retry.RetryConfig
}

// NewTimeoutConfig creates a timeout configuration from application config.
func NewTimeoutConfig(cfg *config.Config) *TimeoutConfig {
	var retryConfig retry.RetryConfig
	if cfg.RetryEnabled {
		retryConfig = cfg.GetRetryConfig()
	} else {
		retryConfig = retry.RetryConfig{MaxAttempts: 1, BackoffMultiplier: 1.0}
	}

	return &TimeoutConfig{
		RequestTimeout:  cfg.RequestTimeout,
		SessionTimeout:  cfg.SessionTimeout,
		CleanupInterval: cfg.MetricsInterval,
		RetryEnabled:    cfg.RetryEnabled,
		RetryConfig:     retryConfig,
	}
}

// ExecuteWithTimeout runs an operation with timeout and optional retry logic.
func (tc *TimeoutConfig) ExecuteWithTimeout(ctx context.Context, timeout time.Duration, operation func(context.Context) error) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if tc.RetryEnabled {
		retrier := retry.NewRetrier(tc.RetryConfig)
		return retrier.Execute(timeoutCtx, operation)
	}
	return operation(timeoutCtx)
}

// ExecuteWithRequestTimeout executes an operation with the configured
// request timeout.
func (tc *TimeoutConfig) ExecuteWithRequestTimeout(ctx context.Context, operation func(context.Context) error) error {
	return tc.ExecuteWithTimeout(ctx, tc.RequestTimeout, operation)
}

// Validate checks that the timeout configuration values are reasonable.
func (tc *TimeoutConfig) Validate() error {
	if tc.RequestTimeout < time.Second {
		return fmt.Errorf("request timeout must be at least 1 second, got %v", tc.RequestTimeout)
	}
	if tc.SessionTimeout < time.Minute {
		return fmt.Errorf("session timeout must be at least 1 minute, got %v", tc.SessionTimeout)
	}
	return nil
}

// LogTimeoutConfig logs the current timeout configuration for debugging.
func (tc *TimeoutConfig) LogTimeoutConfig() {
	logrus.WithFields(logrus.Fields{
		"component":        "TimeoutConfig",
		"request_timeout":  tc.RequestTimeout,
		"session_timeout":  tc.SessionTimeout,
		"cleanup_interval": tc.CleanupInterval,
		"retry_enabled":    tc.RetryEnabled,
	}).Info("timeout and retry configuration loaded")
}
