// Package integration provides integration between retry and circuit breaker patterns
// for comprehensive resilience in external dependency operations.
package integration

import (
	"context"

	"realmhub/pkg/resilience"
	"realmhub/pkg/retry"

	"github.com/sirupsen/logrus"
)

// ResilientExecutor combines circuit breaker and retry patterns for maximum resilience
type ResilientExecutor struct {
	circuitBreaker *resilience.CircuitBreaker
	retrier        *retry.Retrier
	logger         *logrus.Entry
}

// NewResilientExecutor creates a new executor combining circuit breaker and retry patterns
func NewResilientExecutor(cbConfig resilience.CircuitBreakerConfig, retryConfig retry.RetryConfig) *ResilientExecutor {
	return &ResilientExecutor{
		circuitBreaker: resilience.NewCircuitBreaker(cbConfig),
		retrier:        retry.NewRetrier(retryConfig),
		logger:         logrus.WithField("component", "ResilientExecutor"),
	}
}

// Execute runs an operation with both circuit breaker and retry protection
func (re *ResilientExecutor) Execute(ctx context.Context, operation func(context.Context) error) error {
	// Wrap the operation with circuit breaker protection first
	wrappedOperation := func(ctx context.Context) error {
		return re.circuitBreaker.Execute(ctx, operation)
	}

	// Then apply retry logic around the circuit breaker
	return re.retrier.Execute(ctx, wrappedOperation)
}

// GetStats returns the circuit breaker's statistics, keys prefixed with
// "circuit_breaker_"; no retry statistics are included
func (re *ResilientExecutor) GetStats() map[string]interface{} {
	stats := make(map[string]interface{})

	// Add circuit breaker stats
	cbStats := re.circuitBreaker.GetStats()
	for key, value := range cbStats {
		stats["circuit_breaker_"+key] = value
	}

	return stats
}

// Predefined resilient executors for realmhub's external collaborators
var (
	// FileSystemExecutor guards the reference realm store's on-disk reads
	// and writes (pkg/realmstore.FileStore) against a flaky mount or lock
	// contention.
	FileSystemExecutor = NewResilientExecutor(
		resilience.FileSystemConfig,
		retry.FileSystemRetryConfig(),
	)

	// IdentityExecutor provides resilient identity-provider token verification
	IdentityExecutor = NewResilientExecutor(
		resilience.IdentityProviderConfig,
		retry.NetworkRetryConfig(),
	)

	// RealmStoreExecutor provides resilient realm/profile store lookups
	RealmStoreExecutor = NewResilientExecutor(
		resilience.RealmStoreConfig,
		retry.NetworkRetryConfig(),
	)
)

// Convenience functions for common resilient operations

// ExecuteFileSystemOperation runs a file system operation with full resilience
func ExecuteFileSystemOperation(ctx context.Context, operation func(context.Context) error) error {
	return FileSystemExecutor.Execute(ctx, operation)
}

// ExecuteIdentityOperation runs an identity-provider token verification with full resilience
func ExecuteIdentityOperation(ctx context.Context, operation func(context.Context) error) error {
	return IdentityExecutor.Execute(ctx, operation)
}

// ExecuteRealmStoreOperation runs a realm-store lookup with full resilience
func ExecuteRealmStoreOperation(ctx context.Context, operation func(context.Context) error) error {
	return RealmStoreExecutor.Execute(ctx, operation)
}
