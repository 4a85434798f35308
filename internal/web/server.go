// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftwood Contributors

// Package web is the public HTTP surface: auth endpoints, blog listing,
// arcade endpoints, and static site serving.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/samber/oops"

	"github.com/lcaswell/driftwood/internal/arcade"
	"github.com/lcaswell/driftwood/internal/auth"
	"github.com/lcaswell/driftwood/internal/blog"
	"github.com/lcaswell/driftwood/internal/observability"
	"github.com/lcaswell/driftwood/internal/store"
)

// bugMessage is the generic reply for internal faults. Detail goes to the
// log, never to the client.
const bugMessage = "We encountered a bug on our end. Please try again later"

// Server wires the service objects into an http.Server.
type Server struct {
	addr      string
	staticDir string
	logger    *slog.Logger

	logins   *auth.Logins
	sessions *auth.Sessions
	store    *store.Store
	blog     *blog.Library
	arcade   *arcade.Service
	metrics  *observability.Metrics

	listener   net.Listener
	httpServer *http.Server
}

// Config carries the collaborators the server needs.
type Config struct {
	Addr      string
	StaticDir string
	Logger    *slog.Logger
	Logins    *auth.Logins
	Sessions  *auth.Sessions
	Store     *store.Store
	Blog      *blog.Library
	Arcade    *arcade.Service
	Metrics   *observability.Metrics
}

// NewServer builds the HTTP server. Logger may be nil.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		addr:      cfg.Addr,
		staticDir: cfg.StaticDir,
		logger:    logger,
		logins:    cfg.Logins,
		sessions:  cfg.Sessions,
		store:     cfg.Store,
		blog:      cfg.Blog,
		arcade:    cfg.Arcade,
		metrics:   cfg.Metrics,
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /auth/login", s.handleLogin)
	mux.HandleFunc("POST /auth/signup", s.handleSignup)
	mux.HandleFunc("POST /auth/logout", s.requireAuth(s.handleLogout))
	mux.HandleFunc("POST /auth/renew", s.requireAuth(s.handleRenew))
	mux.HandleFunc("GET /auth/whoami", s.requireAuth(s.handleWhoami))

	mux.HandleFunc("GET /blogs", s.handleBlogs)

	mux.HandleFunc("GET /arcade/tournament", s.handleTournament)
	mux.HandleFunc("POST /arcade/tournament", s.requireAuth(s.handleWinTournament))
	mux.HandleFunc("GET /arcade/leaderboard", s.handleLeaderboard)
	mux.HandleFunc("POST /arcade/leaderboard", s.requireAuth(s.handleSubmitScore))
	mux.HandleFunc("GET /arcade/leaderboard/live", s.handleLeaderboardLive)

	mux.HandleFunc("GET /", s.handleStatic)

	return s.withRequestID(s.withRequestLog(mux))
}

// Start begins serving. The returned channel reports a serve failure and is
// closed on graceful shutdown.
func (s *Server) Start() (<-chan error, error) {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return nil, oops.Code("WEB_LISTEN_FAILED").With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	httpSrv := s.httpServer
	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			s.logger.Error("web server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	s.logger.Info("web server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return oops.Code("WEB_SHUTDOWN_FAILED").Wrap(err)
	}
	s.logger.Info("web server stopped")
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// handleStatic serves the site files, mapping directories to their
// index.html. Files outside the static root are unreachable.
func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	if s.staticDir == "" {
		http.NotFound(w, r)
		return
	}

	rel := path.Clean("/" + r.URL.Path)
	target := filepath.Join(s.staticDir, filepath.FromSlash(rel))

	info, err := os.Stat(target)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if info.IsDir() {
		target = filepath.Join(target, "index.html")
		if _, err := os.Stat(target); err != nil {
			http.NotFound(w, r)
			return
		}
	}

	http.ServeFile(w, r, target)
}
