package server

import (
	"context"
	"net"
	"net/http"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ContextKey is a type for context keys to avoid collisions.
type ContextKey string

const (
	// RequestIDKey is the context key for request correlation IDs.
	RequestIDKey ContextKey = "request_id"
	loggerKey    ContextKey = "logger"
)

// RequestIDMiddleware adds request correlation IDs to all HTTP requests. If
// a request already has an X-Request-ID header, it uses that value;
// otherwise it generates a new UUID.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", requestID)

		ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
		logger := logrus.WithField("request_id", requestID)
		ctx = context.WithValue(ctx, loggerKey, logger)
		r = r.WithContext(ctx)

		logger.WithFields(logrus.Fields{
			"method":    r.Method,
			"path":      r.URL.Path,
			"remote_ip": getClientIP(r),
		}).Debug("processing request")

		next.ServeHTTP(w, r)
	})
}

// LoggingMiddleware provides structured logging for HTTP requests.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := getLoggerFromContext(r.Context())
		wrapper := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		logger.WithFields(logrus.Fields{
			"status_code": wrapper.statusCode,
			"method":      r.Method,
			"path":        r.URL.Path,
		}).Info("request completed")
	})
}

// RecoveryMiddleware recovers from panics and logs them with request context.
func RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				logger := getLoggerFromContext(r.Context())
				logger.WithFields(logrus.Fields{
					"panic":  err,
					"method": r.Method,
					"path":   r.URL.Path,
				}).Error("recovered from panic")
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// CORSMiddleware handles Cross-Origin Resource Sharing headers.
func CORSMiddleware(originAllowed func(string) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if originAllowed(origin) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
			w.Header().Set("Access-Control-Allow-Credentials", "true")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func getLoggerFromContext(ctx context.Context) *logrus.Entry {
	if logger, ok := ctx.Value(loggerKey).(*logrus.Entry); ok {
		return logger
	}
	return logrus.NewEntry(logrus.StandardLogger())
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

func getClientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		if firstIP := extractFirstIP(ip); firstIP != "" {
			return firstIP
		}
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func extractFirstIP(ips string) string {
	for i := 0; i < len(ips); i++ {
		if ips[i] == ',' {
			return trimSpaces(ips[:i])
		}
	}
	return trimSpaces(ips)
}

func trimSpaces(s string) string {
	start, end := 0, len(s)
	for start < end && s[start] == ' ' {
		start++
	}
	for end > start && s[end-1] == ' ' {
		end--
	}
	return s[start:end]
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *loggingResponseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
