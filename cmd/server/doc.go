// Package main implements the realmhub coordination server application.
//
// realmhub is the authoritative real-time coordination server for a
// multi-user virtual-space application: it tracks who is where across
// realms and rooms, relays movement and chat over a per-connection
// WebSocket channel, and continuously recomputes per-player proximity
// groups that drive peer-to-peer audio/video pairing on the client side.
//
// # Architecture
//
// The server application follows a clean separation of concerns:
//
//   - Configuration loading and validation (via pkg/config)
//   - Logging setup and initialization
//   - Reference identity provider and realm store wiring (via pkg/identity, pkg/realmstore)
//   - Server lifecycle management with graceful shutdown
//   - Signal handling for SIGINT and SIGTERM
//
// # Startup Sequence
//
// 1. Load configuration from environment variables with secure defaults
// 2. Configure logging based on LOG_LEVEL setting
// 3. Build the reference identity provider and realm store
// 4. Initialize the coordination server (WebSocket dispatcher plus health/metrics surface)
// 5. Start listening for connections
// 6. Handle shutdown signals gracefully, terminating live sessions first
//
// # Environment Variables
//
// The server supports the following environment variables (see pkg/config
// for the complete list and defaults):
//
//   - SERVER_PORT: HTTP/WebSocket server port (default: 8080)
//   - SESSION_TIMEOUT: inactive-connection timeout (default: 30m)
//   - LOG_LEVEL: logging verbosity (debug, info, warn, error; default: info)
//   - PROXIMITY_RADIUS: proximity-grouping distance threshold (default: 150)
//   - JWT_SECRET: HMAC shared secret for the reference identity provider
//   - DATA_DIR: reference realm-store fixture directory (default: ./data)
//
// # Usage
//
// Run the server with default settings:
//
//	./server
//
// Run with custom port and debug logging:
//
//	SERVER_PORT=9000 LOG_LEVEL=debug ./server
//
// # Graceful Shutdown
//
// The server handles SIGINT (Ctrl+C) and SIGTERM signals gracefully:
//
// 1. Send sessionTerminated(SERVER_RESTART) to every socket that has joined a realm and close it
// 2. Stop accepting new connections and shut down the HTTP server
// 3. Exit cleanly
//
// The shutdown process honors the configured shutdown timeout before
// forcing exit.
package main
