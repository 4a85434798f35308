// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftwood Contributors

package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"

	"github.com/lcaswell/driftwood/internal/arcade"
	"github.com/lcaswell/driftwood/internal/auth"
	"github.com/lcaswell/driftwood/internal/store"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// runCleanups gives the expiry sweeps a chance to run on request traffic.
// Both are rate-limited no-ops unless their interval has elapsed, so this is
// cheap to call on every auth request.
func (s *Server) runCleanups() {
	s.logins.PruneExpired()
	s.sessions.PruneExpired()
}

// handleLogin starts a session for a username and password. If the user
// already has a live session it is superseded.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	s.runCleanups()

	username := r.PostFormValue("username")
	password := r.PostFormValue("password")

	if remaining, locked := s.logins.IsUserLockedOut(username); locked {
		s.countLogin("locked_out")
		if s.metrics != nil {
			s.metrics.LockoutsTotal.Inc()
		}
		http.Error(w, fmt.Sprintf("Locked out temporarily for %d secs", int(remaining.Seconds())), http.StatusForbidden)
		return
	}

	cred, err := s.store.GetCredential(r.Context(), username)
	if errors.Is(err, store.ErrNotFound) {
		s.countLogin("unknown_user")
		http.Error(w, "User does not exist", http.StatusBadRequest)
		return
	}
	if err != nil {
		s.internalError(w, r, "querying credentials", err)
		return
	}

	ok, err := s.logins.VerifyPassword(password, cred.Salt, cred.Hash)
	if err != nil {
		s.internalError(w, r, "verifying password", err)
		return
	}
	if !ok {
		s.logins.MarkFailedLogin(username)
		s.countLogin("wrong_password")
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	s.logins.MarkSuccessfulLogin(username)
	token, err := s.sessions.CreateSession(username)
	if err != nil {
		s.internalError(w, r, "creating session", err)
		return
	}
	s.countLogin("success")
	fmt.Fprint(w, string(token))
}

// handleSignup registers a new user and starts their first session.
func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	s.runCleanups()

	username := r.PostFormValue("username")
	password := r.PostFormValue("password")

	if err := s.logins.ValidateUsername(username); err != nil {
		s.countSignup("invalid_username")
		http.Error(w, usernameErrorMessage(err), http.StatusBadRequest)
		return
	}
	if !s.logins.ValidPassword(password) {
		s.countSignup("invalid_password")
		http.Error(w, "Password does not fit the requirements", http.StatusBadRequest)
		return
	}

	reservation, ok := s.logins.ReserveUsername(username)
	if !ok {
		s.countSignup("conflict")
		http.Error(w, "Username already in use", http.StatusBadRequest)
		return
	}
	defer reservation.Release()

	hashed, err := s.logins.HashPassword(password)
	if err != nil {
		s.internalError(w, r, "hashing password", err)
		return
	}

	if err := s.store.CreateCredential(r.Context(), username, hashed.Salt, hashed.Hash); err != nil {
		if errors.Is(err, store.ErrUsernameTaken) {
			s.countSignup("conflict")
			http.Error(w, "Username is already in use", http.StatusBadRequest)
			return
		}
		s.internalError(w, r, "inserting credential", err)
		return
	}

	token, err := s.sessions.CreateSession(username)
	if err != nil {
		s.internalError(w, r, "creating session", err)
		return
	}
	s.countSignup("success")
	fmt.Fprint(w, string(token))
}

func usernameErrorMessage(err error) string {
	switch {
	case errors.Is(err, auth.ErrUsernameWhitespace):
		return "Username contains whitespace"
	case errors.Is(err, auth.ErrUsernameTooShort):
		return "Username is too short"
	case errors.Is(err, auth.ErrUsernameTooLong):
		return "Username is too long"
	case errors.Is(err, auth.ErrUsernameNotAlphanumeric):
		return "Username is not alphanumeric"
	case errors.Is(err, auth.ErrUsernameInappropriate):
		return "Username is inappropriate"
	default:
		return "Username is invalid"
	}
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	username, _ := Username(r.Context())
	s.sessions.RemoveSession(username)
	fmt.Fprint(w, "Logged out")
}

func (s *Server) handleRenew(w http.ResponseWriter, r *http.Request) {
	s.runCleanups()

	username, _ := Username(r.Context())
	remaining, ok := s.sessions.RenewSession(username)
	if !ok {
		http.Error(w, "Session can no longer be renewed", http.StatusForbidden)
		return
	}
	fmt.Fprint(w, strconv.Itoa(int(remaining)))
}

func (s *Server) handleWhoami(w http.ResponseWriter, r *http.Request) {
	username, _ := Username(r.Context())
	fmt.Fprint(w, username)
}

// handleBlogs lists blog posts, newest first. count bounds the result and
// defaults to 20.
func (s *Server) handleBlogs(w http.ResponseWriter, r *http.Request) {
	count := 20
	if raw := r.URL.Query().Get("count"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			http.Error(w, "count must be a positive integer", http.StatusBadRequest)
			return
		}
		count = parsed
	}

	posts, err := s.blog.List(count)
	if err != nil {
		s.internalError(w, r, "listing blog posts", err)
		return
	}
	s.writeJSON(w, r, posts)
}

func (s *Server) handleTournament(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, s.arcade.Tournament())
}

// handleWinTournament records a tournament win for the authenticated user.
// The claimed week must match the running tournament.
func (s *Server) handleWinTournament(w http.ResponseWriter, r *http.Request) {
	week, err := strconv.ParseUint(r.URL.Query().Get("week"), 10, 32)
	if err != nil {
		http.Error(w, "week must be a tournament week number", http.StatusBadRequest)
		return
	}

	username, _ := Username(r.Context())
	switch err := s.arcade.RecordWin(r.Context(), username, uint32(week)); {
	case errors.Is(err, arcade.ErrWrongWeek):
		http.Error(w, "Tournament week is not current", http.StatusBadRequest)
	case errors.Is(err, store.ErrWinAlreadyRecorded):
		http.Error(w, "Tournament win already recorded", http.StatusBadRequest)
	case err != nil:
		s.internalError(w, r, "recording tournament win", err)
	default:
		fmt.Fprint(w, "Win recorded")
	}
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	board, err := s.arcade.Leaderboard(r.Context())
	if err != nil {
		s.internalError(w, r, "loading leaderboard", err)
		return
	}
	s.writeJSON(w, r, board)
}

// handleSubmitScore records an endless-mode run for the authenticated user.
func (s *Server) handleSubmitScore(w http.ResponseWriter, r *http.Request) {
	difficulty, errD := strconv.ParseUint(r.PostFormValue("difficulty"), 10, 8)
	levels, errL := strconv.ParseUint(r.PostFormValue("levels"), 10, 8)
	if errD != nil || errL != nil {
		http.Error(w, "difficulty and levels must be small non-negative integers", http.StatusBadRequest)
		return
	}

	username, _ := Username(r.Context())
	entry := store.LeaderboardEntry{
		Username:   username,
		Difficulty: uint8(difficulty),
		Levels:     uint8(levels),
	}
	if err := s.arcade.SubmitScore(r.Context(), entry); err != nil {
		s.internalError(w, r, "submitting score", err)
		return
	}
	if s.metrics != nil {
		s.metrics.ScoresSubmitted.Inc()
	}
	fmt.Fprint(w, "Score submitted")
}

// handleLeaderboardLive upgrades to a websocket and subscribes the client
// to leaderboard updates.
func (s *Server) handleLeaderboardLive(w http.ResponseWriter, r *http.Request) {
	board, err := s.arcade.Leaderboard(r.Context())
	if err != nil {
		s.internalError(w, r, "loading leaderboard", err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	if err := s.arcade.Hub().Subscribe(conn, board); err != nil {
		s.logger.Warn("websocket subscribe failed", "error", err)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response",
			"request_id", RequestID(r.Context()),
			"error", err,
		)
	}
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, action string, err error) {
	s.logger.Error("request failed",
		"request_id", RequestID(r.Context()),
		"action", action,
		"error", err,
	)
	http.Error(w, bugMessage, http.StatusInternalServerError)
}

func (s *Server) countLogin(outcome string) {
	if s.metrics != nil {
		s.metrics.LoginsTotal.WithLabelValues(outcome).Inc()
	}
}

func (s *Server) countSignup(outcome string) {
	if s.metrics != nil {
		s.metrics.SignupsTotal.WithLabelValues(outcome).Inc()
	}
}
