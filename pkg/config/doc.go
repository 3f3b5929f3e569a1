// Package config provides configuration management for the realmhub
// coordination server.
//
// This package handles environment variable loading with type-safe parsing,
// applies secure production defaults, and performs extensive validation of
// all configuration values.
//
// # Loading Configuration
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # Environment Variables
//
// Server settings:
//   - SERVER_PORT: HTTP/WebSocket port (default: 8080)
//   - WEB_DIR: Static file directory, not served by the server (default: "./web")
//   - LOG_LEVEL: Logging verbosity (default: "info")
//
// Timeouts:
//   - SESSION_TIMEOUT: Inactive-connection timeout (default: 30m)
//   - REQUEST_TIMEOUT: Processing timeout for server.TimeoutConfig; the
//     WebSocket read loop does not apply it (default: 5s)
//
// Security:
//   - ENABLE_DEV_MODE: Enable development mode (default: true)
//   - ALLOWED_ORIGINS: CORS allowed origins (comma-separated)
//   - MAX_REQUEST_SIZE: Maximum inbound message size (default: 64KB)
//   - MAX_CONNS_PER_ADDRESS: Max concurrent connections per source address (default: 10)
//   - JWT_SECRET: HMAC shared secret for the reference identity provider
//
// Proximity engine:
//   - PROXIMITY_RADIUS: distance threshold for grouping players (default: 150)
//
// Rate limiting (per (userId, event) token bucket):
//   - RATE_LIMIT_ENABLED, RATE_LIMIT_MOVE_PLAYER_PER_SECOND,
//     RATE_LIMIT_TELEPORT_PER_SECOND, RATE_LIMIT_CHANGED_SKIN_PER_SECOND,
//     RATE_LIMIT_SEND_MESSAGE_PER_MINUTE, RATE_LIMIT_JOIN_REALM_PER_MINUTE
//
// Retry policy (read by GetRetryConfig; the identity provider and realm
// store executors use fixed pkg/retry presets instead):
//   - RETRY_ENABLED, RETRY_MAX_ATTEMPTS, RETRY_INITIAL_DELAY,
//     RETRY_MAX_DELAY, RETRY_BACKOFF_MULTIPLIER
//
// Reference realm store:
//   - DATA_DIR: YAML fixture directory (default: "./data")
//
// # Validation
//
// All configuration values are validated on load: port range, timeout
// minimums, rate-limit positivity, retry sanity, and proximity radius
// positivity.
//
// # CORS Support
//
// Use OriginAllowed to check WebSocket origins:
//
//	if cfg.OriginAllowed(origin) {
//	    // Allow connection
//	}
//
// In development mode (EnableDevMode=true), all origins are allowed.
package config
