// Package resilience implements the circuit breaker pattern for fault tolerance.
//
// This package protects external dependencies and prevents cascade failures by
// enabling fast-fail behavior when services become unavailable, with automatic
// recovery testing when conditions improve.
//
// # Circuit Breaker Pattern
//
// A circuit breaker operates in three states:
//
//   - Closed: Normal operation, all requests pass through
//   - Open: Service failing, requests fail immediately (fast-fail)
//   - HalfOpen: Testing recovery with limited requests
//
// State transitions:
//
//	Closed → Open: After MaxFailures consecutive failures
//	Open → HalfOpen: After Timeout period expires
//	HalfOpen → Closed: After successful test requests
//	HalfOpen → Open: If test requests fail
//
// # Creating Circuit Breakers
//
// Create a circuit breaker with custom configuration:
//
//	config := resilience.CircuitBreakerConfig{
//	    Name:        "external-api",
//	    MaxFailures: 5,           // Open after 5 failures
//	    Timeout:     30*time.Second, // Wait 30s before testing
//	    MaxRequests: 3,           // Allow 3 test requests in half-open
//	}
//	cb := resilience.NewCircuitBreaker(config)
//
// # Executing Protected Operations
//
// Wrap operations with circuit breaker protection:
//
//	err := cb.Execute(ctx, func(ctx context.Context) error {
//	    return callExternalService(ctx)
//	})
//	if errors.Is(err, resilience.ErrCircuitBreakerOpen) {
//	    // Service is down, handle gracefully
//	}
//
// # Managing Multiple Breakers
//
// Use CircuitBreakerManager for multiple dependencies:
//
//	manager := resilience.NewCircuitBreakerManager()
//	cb := manager.GetOrCreate("database", &config)
//	stats := manager.GetAllStats()
//
// # Pre-configured Breakers
//
// Global convenience functions over the shared manager, one per external
// dependency realmhub actually has:
//
//	err := resilience.ExecuteWithFileSystemCircuitBreaker(ctx, func(ctx context.Context) error { ... })
//	err := resilience.ExecuteWithIdentityProviderCircuitBreaker(ctx, func(ctx context.Context) error { ... })
//	err := resilience.ExecuteWithRealmStoreCircuitBreaker(ctx, func(ctx context.Context) error { ... })
//
// # Monitoring
//
// Query circuit breaker state and statistics:
//
//	state := cb.GetState()       // StateClosed, StateOpen, or StateHalfOpen
//	stats := cb.GetStats()       // Failure counts, request counts, timestamps
//
// # Thread Safety
//
// All circuit breaker operations are thread-safe via internal mutex protection.
// Multiple goroutines can safely execute through the same breaker.
package resilience
