// Package config provides configuration management for the realmhub
// coordination server. It handles environment variable loading, validation,
// and secure defaults for production deployment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"realmhub/pkg/retry"

	"github.com/sirupsen/logrus"
)

// Config represents the server configuration with environment variable support.
// Config is thread-safe; all field access should be done through getter methods
// when used concurrently, or by holding the mutex directly.
type Config struct {
	// mu provides thread-safe access to configuration fields when the Config
	// instance is shared across goroutines. Use RLock for reads and Lock for writes.
	mu sync.RWMutex `json:"-"`

	// ServerPort is the port the HTTP server will listen on
	ServerPort int `json:"server_port"`

	// WebDir is the static web file directory setting (WEB_DIR); the server's
	// handler tree (Server.Mux) does not serve files from it
	WebDir string `json:"web_dir"`

	// SessionTimeout is the duration of inbound silence after which a connection
	// is force-closed (spec §5 "inactive connection timeout")
	SessionTimeout time.Duration `json:"session_timeout"`

	// LogLevel controls the logging verbosity (debug, info, warn, error)
	LogLevel string `json:"log_level"`

	// AllowedOrigins is a list of allowed WebSocket origins for CORS
	AllowedOrigins []string `json:"allowed_origins"`

	// MaxRequestSize is the maximum size of an inbound WebSocket message in bytes
	MaxRequestSize int64 `json:"max_request_size"`

	// EnableDevMode enables development-friendly settings (broader CORS, verbose logging)
	EnableDevMode bool `json:"enable_dev_mode"`

	// RequestTimeout is the processing timeout carried into server.TimeoutConfig;
	// the WebSocket read loop does not apply it to inbound messages
	RequestTimeout time.Duration `json:"request_timeout"`

	// Performance monitoring configuration

	// EnableProfiling is the profiling switch (ENABLE_PROFILING); the server
	// registers no pprof endpoints
	EnableProfiling bool `json:"enable_profiling"`

	// ProfilingPort is the profiling port setting (PROFILING_PORT); no
	// profiling server is started
	ProfilingPort int `json:"profiling_port"`

	// MetricsInterval is carried into server.TimeoutConfig as its
	// CleanupInterval; metrics are not collected on a timer
	MetricsInterval time.Duration `json:"metrics_interval"`

	// Proximity engine configuration

	// ProximityRadius is the fixed distance threshold used to group players
	// within a room (spec §4.2 PROXIMITY_RADIUS)
	ProximityRadius float64 `json:"proximity_radius"`

	// Connection limits (spec §5 "Resource limits")

	// MaxConnsPerAddress caps concurrent connections from one source address
	MaxConnsPerAddress int `json:"max_conns_per_address"`

	// Rate limiting configuration (spec §5 per-(userId,event) token buckets)

	// RateLimitEnabled enables per-event rate limiting middleware
	RateLimitEnabled bool `json:"rate_limit_enabled"`

	// RateLimitMovePlayerPerSecond is the movePlayer token-bucket refill rate
	RateLimitMovePlayerPerSecond float64 `json:"rate_limit_move_player_per_second"`

	// RateLimitTeleportPerSecond is the teleport token-bucket refill rate
	RateLimitTeleportPerSecond float64 `json:"rate_limit_teleport_per_second"`

	// RateLimitChangedSkinPerSecond is the changedSkin token-bucket refill rate
	RateLimitChangedSkinPerSecond float64 `json:"rate_limit_changed_skin_per_second"`

	// RateLimitSendMessagePerMinute is the sendMessage token-bucket refill rate
	RateLimitSendMessagePerMinute float64 `json:"rate_limit_send_message_per_minute"`

	// RateLimitJoinRealmPerMinute is the joinRealm token-bucket refill rate
	RateLimitJoinRealmPerMinute float64 `json:"rate_limit_join_realm_per_minute"`

	// RateLimitCleanupInterval is how often idle per-(userId,event) buckets are reaped
	RateLimitCleanupInterval time.Duration `json:"rate_limit_cleanup_interval"`

	// Retry configuration (read by GetRetryConfig, which feeds
	// server.NewTimeoutConfig; the identity provider and realm store
	// executors use fixed pkg/retry presets)

	// RetryEnabled enables retry logic for transient failures
	RetryEnabled bool `json:"retry_enabled"`

	// RetryMaxAttempts is the maximum number of retry attempts (including initial attempt)
	RetryMaxAttempts int `json:"retry_max_attempts"`

	// RetryInitialDelay is the initial delay before the first retry
	RetryInitialDelay time.Duration `json:"retry_initial_delay"`

	// RetryMaxDelay is the maximum delay between retries
	RetryMaxDelay time.Duration `json:"retry_max_delay"`

	// RetryBackoffMultiplier is the multiplier for exponential backoff (typically 2.0)
	RetryBackoffMultiplier float64 `json:"retry_backoff_multiplier"`

	// RetryJitterPercent is the maximum percentage of jitter to add (0-100)
	RetryJitterPercent int `json:"retry_jitter_percent"`

	// Reference realm-store configuration

	// DataDir is the directory holding the reference realm-store's YAML fixtures
	DataDir string `json:"data_dir"`

	// Reference identity-provider configuration

	// JWTSecret is the HMAC shared secret used by the reference identity
	// provider to verify bearer tokens
	JWTSecret string `json:"-"`

	// Server lifecycle timeouts

	// ShutdownTimeout is the maximum duration for graceful server shutdown
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`

	// ShutdownGracePeriod is the grace period after shutdown before forcing exit
	ShutdownGracePeriod time.Duration `json:"shutdown_grace_period"`
}

// Load creates a new Config instance by reading from environment variables
// and applying secure defaults. It validates all configuration values and
// returns an error if any required values are missing or invalid.
func Load() (*Config, error) {
	logrus.WithFields(logrus.Fields{
		"function": "Load",
		"package":  "config",
	}).Debug("entering Load")

	config := &Config{
		ServerPort:     getEnvAsInt("SERVER_PORT", 8080),
		WebDir:         getEnvAsString("WEB_DIR", "./web"),
		SessionTimeout: getEnvAsDuration("SESSION_TIMEOUT", 30*time.Minute),
		LogLevel:       getEnvAsString("LOG_LEVEL", "info"),
		AllowedOrigins: getEnvAsStringSlice("ALLOWED_ORIGINS", []string{}),
		MaxRequestSize: getEnvAsInt64("MAX_REQUEST_SIZE", 64*1024), // 64KB default
		EnableDevMode:  getEnvAsBool("ENABLE_DEV_MODE", true),
		RequestTimeout: getEnvAsDuration("REQUEST_TIMEOUT", 5*time.Second),

		EnableProfiling: getEnvAsBool("ENABLE_PROFILING", false),
		ProfilingPort:   getEnvAsInt("PROFILING_PORT", 0),
		MetricsInterval: getEnvAsDuration("METRICS_INTERVAL", 30*time.Second),

		ProximityRadius: getEnvAsFloat64("PROXIMITY_RADIUS", 150),

		MaxConnsPerAddress: getEnvAsInt("MAX_CONNS_PER_ADDRESS", 10),

		RateLimitEnabled:              getEnvAsBool("RATE_LIMIT_ENABLED", true),
		RateLimitMovePlayerPerSecond:  getEnvAsFloat64("RATE_LIMIT_MOVE_PLAYER_PER_SECOND", 60),
		RateLimitTeleportPerSecond:    getEnvAsFloat64("RATE_LIMIT_TELEPORT_PER_SECOND", 2),
		RateLimitChangedSkinPerSecond: getEnvAsFloat64("RATE_LIMIT_CHANGED_SKIN_PER_SECOND", 1),
		RateLimitSendMessagePerMinute: getEnvAsFloat64("RATE_LIMIT_SEND_MESSAGE_PER_MINUTE", 10),
		RateLimitJoinRealmPerMinute:   getEnvAsFloat64("RATE_LIMIT_JOIN_REALM_PER_MINUTE", 5),
		RateLimitCleanupInterval:      getEnvAsDuration("RATE_LIMIT_CLEANUP_INTERVAL", 5*time.Minute),

		RetryEnabled:           getEnvAsBool("RETRY_ENABLED", true),
		RetryMaxAttempts:       getEnvAsInt("RETRY_MAX_ATTEMPTS", 3),
		RetryInitialDelay:      getEnvAsDuration("RETRY_INITIAL_DELAY", 100*time.Millisecond),
		RetryMaxDelay:          getEnvAsDuration("RETRY_MAX_DELAY", 5*time.Second),
		RetryBackoffMultiplier: getEnvAsFloat64("RETRY_BACKOFF_MULTIPLIER", 2.0),
		RetryJitterPercent:     getEnvAsInt("RETRY_JITTER_PERCENT", 10),

		DataDir: getEnvAsString("DATA_DIR", "./data"),

		JWTSecret: getEnvAsString("JWT_SECRET", "dev-insecure-secret"),

		ShutdownTimeout:     getEnvAsDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		ShutdownGracePeriod: getEnvAsDuration("SHUTDOWN_GRACE_PERIOD", 1*time.Second),
	}

	logrus.WithFields(logrus.Fields{
		"function":    "Load",
		"package":     "config",
		"server_port": config.ServerPort,
		"dev_mode":    config.EnableDevMode,
		"log_level":   config.LogLevel,
	}).Debug("configuration loaded, starting validation")

	if err := config.validate(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Load",
			"package":  "config",
			"error":    err,
		}).Error("configuration validation failed")
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function":    "Load",
		"package":     "config",
		"server_port": config.ServerPort,
		"dev_mode":    config.EnableDevMode,
		"log_level":   config.LogLevel,
	}).Debug("exiting Load - configuration successfully loaded and validated")

	return config, nil
}

// validate performs comprehensive configuration validation with multiple checks.
func (c *Config) validate() error {
	if err := c.validateServerSettings(); err != nil {
		return err
	}

	if err := c.validateTimeouts(); err != nil {
		return err
	}

	if err := c.validateSecuritySettings(); err != nil {
		return err
	}

	if err := c.validateRateLimitConfig(); err != nil {
		return err
	}

	if err := c.validateRetryConfig(); err != nil {
		return err
	}

	if c.ProximityRadius <= 0 {
		return fmt.Errorf("proximity radius must be positive, got %v", c.ProximityRadius)
	}

	if c.MaxConnsPerAddress < 1 {
		return fmt.Errorf("max conns per address must be at least 1, got %d", c.MaxConnsPerAddress)
	}

	return nil
}

// validateServerSettings checks server port and log level configuration.
func (c *Config) validateServerSettings() error {
	if c.ServerPort < 1 || c.ServerPort > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.ServerPort)
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	found := false
	for _, level := range validLogLevels {
		if strings.ToLower(c.LogLevel) == level {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("log level must be one of %v, got %s", validLogLevels, c.LogLevel)
	}

	return nil
}

// validateTimeouts ensures timeout values meet minimum requirements.
func (c *Config) validateTimeouts() error {
	if c.SessionTimeout < time.Minute {
		return fmt.Errorf("session timeout must be at least 1 minute, got %v", c.SessionTimeout)
	}

	if c.RequestTimeout < time.Second {
		return fmt.Errorf("request timeout must be at least 1 second, got %v", c.RequestTimeout)
	}

	return nil
}

// validateSecuritySettings checks security-related configuration.
func (c *Config) validateSecuritySettings() error {
	if c.MaxRequestSize < 256 {
		return fmt.Errorf("max request size must be at least 256 bytes, got %d", c.MaxRequestSize)
	}

	if !c.EnableDevMode && len(c.AllowedOrigins) == 0 {
		return fmt.Errorf("allowed origins must be specified when dev mode is disabled")
	}

	return nil
}

// validateRateLimitConfig ensures rate limiting parameters are valid when enabled.
func (c *Config) validateRateLimitConfig() error {
	if !c.RateLimitEnabled {
		return nil
	}

	limits := map[string]float64{
		"movePlayer":  c.RateLimitMovePlayerPerSecond,
		"teleport":    c.RateLimitTeleportPerSecond,
		"changedSkin": c.RateLimitChangedSkinPerSecond,
		"sendMessage": c.RateLimitSendMessagePerMinute,
		"joinRealm":   c.RateLimitJoinRealmPerMinute,
	}
	for event, rate := range limits {
		if rate <= 0 {
			return fmt.Errorf("rate limit for %s must be greater than 0 when rate limiting is enabled", event)
		}
	}

	return nil
}

// validateRetryConfig ensures retry policy parameters are valid when enabled.
func (c *Config) validateRetryConfig() error {
	if c.RetryEnabled {
		if c.RetryMaxAttempts < 1 {
			return fmt.Errorf("retry max attempts must be at least 1 when retry is enabled")
		}
		if c.RetryInitialDelay < 0 {
			return fmt.Errorf("retry initial delay must be non-negative when retry is enabled")
		}
		if c.RetryMaxDelay < c.RetryInitialDelay {
			return fmt.Errorf("retry max delay must be greater than or equal to initial delay when retry is enabled")
		}
		if c.RetryBackoffMultiplier <= 1.0 {
			return fmt.Errorf("retry backoff multiplier must be greater than 1.0 when retry is enabled")
		}
		if c.RetryJitterPercent < 0 || c.RetryJitterPercent > 100 {
			return fmt.Errorf("retry jitter percent must be between 0 and 100 when retry is enabled")
		}
	}

	return nil
}

// OriginAllowed checks if the given origin is allowed for WebSocket connections.
// This method is thread-safe.
func (c *Config) OriginAllowed(origin string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.EnableDevMode {
		return true
	}

	for _, allowed := range c.AllowedOrigins {
		if origin == allowed {
			return true
		}
	}

	return false
}

// GetRetryConfig creates a retry.RetryConfig from the current configuration.
func (c *Config) GetRetryConfig() retry.RetryConfig {
	return retry.RetryConfig{
		MaxAttempts:       c.RetryMaxAttempts,
		InitialDelay:      c.RetryInitialDelay,
		MaxDelay:          c.RetryMaxDelay,
		BackoffMultiplier: c.RetryBackoffMultiplier,
		JitterMaxPercent:  c.RetryJitterPercent,
		RetryableErrors:   []error{},
	}
}

// Helper functions for environment variable parsing with type safety and defaults

func getEnvAsString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
