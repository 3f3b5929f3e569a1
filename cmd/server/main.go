package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"realmhub/pkg/config"
	"realmhub/pkg/identity"
	"realmhub/pkg/realmstore"
	"realmhub/pkg/server"
)

func main() {
	cfg := loadAndConfigureSystem()

	srv, listener := initializeServer(cfg)
	executeServerLifecycle(cfg, srv, listener)
}

// loadAndConfigureSystem loads configuration and sets up logging.
func loadAndConfigureSystem() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}

	configureLogging(cfg.LogLevel)
	logStartupInfo(cfg)
	return cfg
}

// configureLogging sets up the logging system based on configuration.
func configureLogging(logLevel string) {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		logrus.WithError(err).Warn("Invalid log level, using info")
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
}

// logStartupInfo logs server startup information.
func logStartupInfo(cfg *config.Config) {
	logrus.WithFields(logrus.Fields{
		"port":            cfg.ServerPort,
		"sessionTimeout":  cfg.SessionTimeout,
		"logLevel":        cfg.LogLevel,
		"devMode":         cfg.EnableDevMode,
		"proximityRadius": cfg.ProximityRadius,
	}).Info("Starting realmhub coordination server")
}

// initializeServer creates the coordination server and its network listener,
// wiring the reference identity provider and realm store (spec §1 "external
// collaborators, interfaces only" — a real deployment swaps these for the
// production identity service and realm CRUD store without the Server
// noticing, since both satisfy the same interfaces).
func initializeServer(cfg *config.Config) (*server.Server, net.Listener) {
	idp := identity.NewJWTProvider(cfg.JWTSecret)

	realms, err := realmstore.NewFileStore(cfg.DataDir)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize realm store")
	}

	srv := server.NewServer(cfg, idp, realms)

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.ServerPort))
	if err != nil {
		logrus.WithError(err).Fatal("Failed to start listener")
	}

	return srv, listener
}

// executeServerLifecycle handles the complete server lifecycle including startup and shutdown.
func executeServerLifecycle(cfg *config.Config, srv *server.Server, listener net.Listener) {
	sigChan, errChan := setupShutdownHandling()
	startServerAsync(srv, listener, errChan)
	waitForShutdownSignal(sigChan, errChan)
	performGracefulShutdown(cfg, srv)
}

// setupShutdownHandling creates channels for graceful shutdown signal handling.
func setupShutdownHandling() (chan os.Signal, chan error) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	errChan := make(chan error, 1)
	return sigChan, errChan
}

// startServerAsync starts the server in a background goroutine, recovering
// from any panic in Serve and reporting it on errChan so the main goroutine
// can still shut down cleanly.
func startServerAsync(srv *server.Server, listener net.Listener, errChan chan error) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				errChan <- fmt.Errorf("server panicked: %v", r)
			}
		}()

		logrus.WithField("address", listener.Addr()).Info("Server listening")
		if err := srv.Serve(listener); err != nil {
			errChan <- fmt.Errorf("server failed: %w", err)
		}
	}()
}

// waitForShutdownSignal waits for either a shutdown signal or server error.
func waitForShutdownSignal(sigChan chan os.Signal, errChan chan error) {
	select {
	case sig := <-sigChan:
		logrus.WithField("signal", sig).Info("Received shutdown signal")
	case err := <-errChan:
		logrus.WithError(err).Error("Server error")
	}
}

// performGracefulShutdown broadcasts sessionTerminated(SERVER_RESTART) to
// every live connection (spec §6 sessionTerminated codes), then closes the
// server within the configured shutdown timeout.
func performGracefulShutdown(cfg *config.Config, srv *server.Server) {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	logrus.Info("Shutting down server gracefully...")

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("Error during server shutdown")
	}

	select {
	case <-shutdownCtx.Done():
		logrus.Warn("Shutdown timeout exceeded, forcing exit")
	case <-time.After(cfg.ShutdownGracePeriod):
		logrus.Info("Server shutdown completed")
	}
}
