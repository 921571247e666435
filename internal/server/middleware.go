package server

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/morket/scraper/internal/common"
	"github.com/morket/scraper/internal/models"
)

// requestIDHeader is echoed back on every response. A fresh id is
// generated when the caller omits it.
const requestIDHeader = "X-Request-ID"

// serviceKeyHeader carries the shared key for authed routes.
const serviceKeyHeader = "X-Service-Key"

// publicPaths are reachable without a service key.
var publicPaths = map[string]struct{}{
	"/health":    {},
	"/readiness": {},
	"/metrics":   {},
}

// withMiddleware wraps the router with the middleware chain.
func (s *Server) withMiddleware(handler http.Handler) http.Handler {
	// Apply middleware in reverse order (last applied = first executed)
	handler = s.authMiddleware(handler)
	handler = s.loggingMiddleware(handler)
	handler = s.requestIDMiddleware(handler)
	handler = s.recoveryMiddleware(handler)
	return handler
}

// requestIDMiddleware echoes the caller's X-Request-ID or generates one.
// It runs before auth so even rejected requests carry the id.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = common.NewRequestID()
		}
		w.Header().Set(requestIDHeader, requestID)
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests and responses.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		s.app.Logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote", r.RemoteAddr).
			Str("request_id", w.Header().Get(requestIDHeader)).
			Msg("HTTP request")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		s.app.Logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rw.statusCode).
			Dur("duration", time.Since(start)).
			Msg("HTTP response")
	})
}

// authMiddleware enforces the X-Service-Key header on every route except
// the public probes. The comparison is constant-time.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := publicPaths[r.URL.Path]; ok {
			next.ServeHTTP(w, r)
			return
		}

		presented := r.Header.Get(serviceKeyHeader)
		expected := s.app.Config.Auth.ServiceKey
		if presented == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(expected)) != 1 {
			appErr := models.NewAuthenticationError("")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(appErr.Status)
			json.NewEncoder(w).Encode(models.ErrorResponse(appErr))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// recoveryMiddleware recovers from panics and returns a 500 envelope.
// The panic value is logged, never included in the response.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.app.Logger.Error().
					Str("error", common.Sanitize(fmt.Sprintf("%v", err))).
					Str("path", r.URL.Path).
					Msg("Panic recovered")

				appErr := models.NewInternalError("")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(appErr.Status)
				json.NewEncoder(w).Encode(models.ErrorResponse(appErr))
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
