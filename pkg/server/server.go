package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"realmhub/pkg/config"
	"realmhub/pkg/identity"
	"realmhub/pkg/realmstore"
	"realmhub/pkg/session"
)

// Server is the coordination server's HTTP+WebSocket front door. It owns
// the Dispatcher (the authoritative event loop) plus the ambient HTTP
// surface (health, readiness, metrics) the spec places out of its core
// scope but which every deployment of the core still needs. Grounded on
// the teacher's pkg/server/server.go RPCServer: same
// config/metrics/healthChecker composition and Serve/Shutdown lifecycle,
// generalized from a JSON-RPC-over-HTTP-and-WS server to a pure WebSocket
// coordination server.
type Server struct {
	config      *config.Config
	identity    identity.Provider
	realms      realmstore.Store
	sessions    *session.Manager
	metrics     *Metrics
	health      *HealthChecker
	dispatcher  *Dispatcher
	rateLimiter *EventRateLimiter
	upgrader    *websocket.Upgrader

	connLimiter *addressConnLimiter

	httpServer *http.Server
	addr       net.Addr
}

// NewServer builds a Server from its external collaborators: the identity
// provider and realm store the dispatcher's join protocol depends on
// (spec §1 "Out of scope: external collaborators, interfaces only").
func NewServer(cfg *config.Config, idp identity.Provider, realms realmstore.Store) *Server {
	metrics := NewMetrics()

	var rateLimiter *EventRateLimiter
	if cfg.RateLimitEnabled {
		rateLimiter = NewEventRateLimiter(cfg)
	}

	dispatcher := NewDispatcher(idp, realms, cfg.ProximityRadius, rateLimiter, metrics)

	s := &Server{
		config:      cfg,
		identity:    idp,
		realms:      realms,
		sessions:    dispatcher.Sessions(),
		metrics:     metrics,
		dispatcher:  dispatcher,
		rateLimiter: rateLimiter,
		upgrader:    newUpgrader(cfg.OriginAllowed),
		connLimiter: newAddressConnLimiter(cfg.MaxConnsPerAddress),
	}
	s.health = NewHealthChecker(s)
	return s
}

// Mux builds the HTTP handler tree: the WebSocket upgrade endpoint plus the
// ambient health/readiness/metrics surface, wrapped in the teacher's
// middleware stack (request id, structured logging, panic recovery).
func (s *Server) Mux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/healthz", s.health.HealthHandler)
	mux.HandleFunc("/readyz", s.health.ReadinessHandler)
	mux.Handle("/metrics", s.metrics.Handler())

	var handler http.Handler = mux
	handler = s.metrics.Middleware(handler)
	handler = LoggingMiddleware(handler)
	handler = CORSMiddleware(s.config.OriginAllowed)(handler)
	handler = RequestIDMiddleware(handler)
	handler = RecoveryMiddleware(handler)
	return handler
}

// Serve starts accepting connections on listener and blocks until the
// server is shut down.
func (s *Server) Serve(listener net.Listener) error {
	s.addr = listener.Addr()
	s.httpServer = &http.Server{Handler: s.Mux()}

	logrus.WithField("address", listener.Addr().String()).Info("coordination server listening")

	if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: serve failed: %w", err)
	}
	return nil
}

// Shutdown broadcasts sessionTerminated(SERVER_RESTART) to every connection
// that has joined a realm, stops the rate limiter's cleanup loop, and closes the
// underlying HTTP server (spec §5 "EvictRealm cancels all in-flight
// broadcasts to its sockets by closing them after sending a terminal
// frame" — the same pattern applies to a full-server shutdown).
func (s *Server) Shutdown(ctx context.Context) error {
	logrus.Info("coordination server shutting down")

	s.dispatcher.Shutdown()

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// handleWebSocket performs the handshake authentication (spec §4.6 item 1),
// then upgrades and runs the per-connection read loop.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	addr := clientAddress(r)
	if !s.connLimiter.tryAcquire(addr) {
		logrus.WithField("remote_addr", addr).Warn("websocket connection rejected: per-address limit exceeded")
		http.Error(w, "too many connections", http.StatusTooManyRequests)
		return
	}

	token := r.URL.Query().Get("token")
	claimedUserID := r.URL.Query().Get("uid")

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	user, ok := s.dispatcher.Authenticate(ctx, token, claimedUserID)
	cancel()
	if !ok {
		s.connLimiter.release(addr)
		if s.metrics != nil {
			s.metrics.RecordWSConnection("rejected")
		}
		http.Error(w, "authentication failed", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.connLimiter.release(addr)
		logrus.WithError(err).Warn("websocket upgrade failed")
		return
	}

	socketID := newSocketID()
	wsConn := &wsConnection{conn: conn}

	if s.metrics != nil {
		s.metrics.RecordWSConnection("connected")
	}

	s.runConnection(user, socketID, wsConn, addr)
}

// runConnection is the per-connection read loop: a client's messages are
// processed strictly in arrival order (spec §5 "a single connection's
// inbound messages are processed in arrival order"), with a sliding
// inactivity deadline enforcing the 30-minute idle timeout.
func (s *Server) runConnection(user identity.User, socketID string, wsConn *wsConnection, addr string) {
	defer func() {
		wsConn.conn.Close()
		s.connLimiter.release(addr)
		s.dispatcher.Disconnect(socketID)
		if s.metrics != nil {
			s.metrics.RecordWSConnection("disconnected")
		}
	}()

	wsConn.conn.SetReadLimit(s.config.MaxRequestSize)

	idleTimeout := s.config.SessionTimeout
	wsConn.conn.SetReadDeadline(time.Now().Add(idleTimeout))
	wsConn.conn.SetPongHandler(func(string) error {
		wsConn.conn.SetReadDeadline(time.Now().Add(idleTimeout))
		return nil
	})

	ctx := context.Background()

	for {
		var ev envelope
		if err := wsConn.conn.ReadJSON(&ev); err != nil {
			break
		}
		wsConn.conn.SetReadDeadline(time.Now().Add(idleTimeout))
		s.dispatcher.Dispatch(ctx, user.UserID, user.Username, socketID, wsConn, ev)
	}
}

func clientAddress(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return extractFirstIP(ip)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// addressConnLimiter enforces the spec's "max concurrent connections per
// source address" resource limit (spec §5).
type addressConnLimiter struct {
	mu  sync.Mutex
	max int
	n   map[string]int
}

func newAddressConnLimiter(max int) *addressConnLimiter {
	return &addressConnLimiter{max: max, n: make(map[string]int)}
}

func (l *addressConnLimiter) tryAcquire(addr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.n[addr] >= l.max {
		return false
	}
	l.n[addr]++
	return true
}

func (l *addressConnLimiter) release(addr string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.n[addr]--
	if l.n[addr] <= 0 {
		delete(l.n, addr)
	}
}
