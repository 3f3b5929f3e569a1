// Package integration combines circuit breaker and retry patterns for
// comprehensive fault tolerance around realmhub's external collaborators:
// the identity provider, the realm store, and the realm store's disk I/O.
//
// This package provides ResilientExecutor, which layers retry logic on top
// of circuit breaker protection, giving operations the benefits of both
// mechanisms: automatic retries for transient failures and fast-fail for
// persistent outages.
//
// # Execution Flow
//
// When executing an operation:
//
//  1. The retrier runs the circuit-breaker-wrapped operation
//  2. Circuit breaker checks if the operation should proceed
//  3. If circuit is open, the attempt fails with ErrCircuitBreakerOpen,
//     which the retrier treats like any other error and retries
//  4. Retry handles failures with exponential backoff
//  5. Circuit breaker records success/failure of each attempt for state management
//
// # Creating Executors
//
// Create a custom executor with specific configuration:
//
//	cbConfig := resilience.CircuitBreakerConfig{
//	    Name:        "my-service",
//	    MaxFailures: 5,
//	    Timeout:     30 * time.Second,
//	}
//	retryConfig := retry.RetryConfig{
//	    MaxAttempts:  3,
//	    InitialDelay: 100 * time.Millisecond,
//	}
//	executor := integration.NewResilientExecutor(cbConfig, retryConfig)
//
// # Executing Operations
//
// Wrap operations with combined protection:
//
//	err := executor.Execute(ctx, func(ctx context.Context) error {
//	    return callExternalAPI(ctx)
//	})
//
// # Pre-configured Executors
//
// realmhub ships three named executors wired onto the dispatcher's external
// boundaries:
//
//	// Identity-provider token verification
//	err := integration.ExecuteIdentityOperation(ctx, operation)
//
//	// Realm store LoadRealm/LoadProfile lookups
//	err := integration.ExecuteRealmStoreOperation(ctx, operation)
//
//	// The reference realm store's on-disk reads/writes
//	err := integration.ExecuteFileSystemOperation(ctx, operation)
//
// # Statistics
//
// Query the executor's circuit breaker statistics (no retry counters are
// included):
//
//	stats := executor.GetStats()
//	// Contains circuit breaker state and counters
package integration
