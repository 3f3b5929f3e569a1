// Package server implements the coordination server's dispatcher: the
// WebSocket handshake, join protocol, per-event validation and rate
// limiting, and the broadcast rules that fan inbound events out to the
// right sockets.
//
// Grounded on the teacher's pkg/server (websocket.go, middleware.go,
// ratelimit.go, health.go, metrics.go, timeout.go): same middleware chain
// shape, same token-bucket-per-key rate limiter pattern, same health
// checker registry, generalized from JSON-RPC-over-WebSocket game methods
// to the realm/session event protocol.
package server
