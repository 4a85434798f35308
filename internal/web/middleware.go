// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftwood Contributors

package web

import (
	"context"
	"net/http"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/lcaswell/driftwood/internal/auth"
)

// sessionHeader carries the session token on authenticated requests.
const sessionHeader = "Session-Key"

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	usernameKey  contextKey = "username"
)

// RequestID returns the correlation id assigned to the request.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// Username returns the authenticated username, if any.
func Username(ctx context.Context) (string, bool) {
	username, ok := ctx.Value(usernameKey).(string)
	return username, ok
}

// withRequestID assigns a ULID to every request and echoes it back to the
// client for support correlation.
func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := ulid.Make().String()
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

// statusRecorder captures the response status for logging and metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(status int) {
	rec.status = status
	rec.ResponseWriter.WriteHeader(status)
}

func (s *Server) withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The live feed hijacks the connection; a wrapped writer would
		// break the websocket upgrade.
		if r.URL.Path == "/arcade/leaderboard/live" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		if s.metrics != nil {
			s.metrics.RequestsTotal.WithLabelValues(route, http.StatusText(rec.status)).Inc()
		}
		s.logger.Debug("request handled",
			"request_id", RequestID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

// requireAuth resolves the Session-Key header to a username before calling
// next. An expired token is indistinguishable from one that was never
// issued.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		value := r.Header.Get(sessionHeader)
		if value == "" {
			http.Error(w, sessionHeader+" header is empty", http.StatusBadRequest)
			return
		}
		if len(value) != auth.SessionIDLength {
			http.Error(w, sessionHeader+" header is malformed", http.StatusBadRequest)
			return
		}

		username, ok := s.sessions.GetSessionOwner(auth.SessionID(value))
		if !ok {
			http.Error(w, sessionHeader+" header value is either invalid or expired", http.StatusUnauthorized)
			return
		}

		next(w, r.WithContext(context.WithValue(r.Context(), usernameKey, username)))
	}
}
