// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftwood Contributors

// Package arcade runs the weekly game tournament and the endless-mode
// leaderboard.
package arcade

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/samber/oops"

	"github.com/lcaswell/driftwood/internal/store"
)

// Tournament weeks count epoch weeks with a fixed offset, so week 0 is the
// first tournament ever held rather than January 1970.
const (
	weekSeconds = 3600 * 24 * 7
	weekOffset  = 2761
)

// ErrWrongWeek is returned when a win is submitted for anything other than
// the current tournament week.
var ErrWrongWeek = oops.Code("ARCADE_WRONG_WEEK").Errorf("tournament week is not current")

// TournamentInfo describes the currently running tournament. Seed is the
// deterministic level-generation seed all players share this week.
type TournamentInfo struct {
	Week  uint32 `json:"week"`
	Seed  uint32 `json:"seed"`
	Since int64  `json:"since"`
	Until int64  `json:"until"`
}

// Store is the persistence the arcade needs.
type Store interface {
	SubmitScore(ctx context.Context, entry store.LeaderboardEntry) error
	Leaderboard(ctx context.Context) ([]store.LeaderboardEntry, error)
	RecordTournamentWin(ctx context.Context, username string, week uint32) error
	TournamentWinners(ctx context.Context, week uint32) ([]string, error)
}

// Service coordinates tournament state, score persistence, and the live
// leaderboard feed.
type Service struct {
	store  Store
	hub    *Hub
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates an arcade service. logger may be nil.
func NewService(st Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  st,
		hub:    newHub(logger),
		logger: logger,
		now:    time.Now,
	}
}

// CurrentWeek returns the running tournament week number.
func (s *Service) CurrentWeek() uint32 {
	return uint32(s.now().Unix()/weekSeconds) - weekOffset
}

// Tournament returns the current tournament's week, shared seed, and
// start/end times (unix seconds).
func (s *Service) Tournament() TournamentInfo {
	week := s.CurrentWeek()
	return TournamentInfo{
		Week: week,
		//nolint:gosec // deterministic shared seed, not a secret
		Seed:  rand.New(rand.NewSource(int64(week))).Uint32(),
		Since: int64(week+weekOffset) * weekSeconds,
		Until: int64(week+weekOffset+1) * weekSeconds,
	}
}

// RecordWin stores a tournament win for username. The claimed week must be
// the current one; a win can only be recorded once per user per week.
func (s *Service) RecordWin(ctx context.Context, username string, week uint32) error {
	if week != s.CurrentWeek() {
		return ErrWrongWeek
	}
	return s.store.RecordTournamentWin(ctx, username, week)
}

// Winners returns the users who won the given tournament week.
func (s *Service) Winners(ctx context.Context, week uint32) ([]string, error) {
	return s.store.TournamentWinners(ctx, week)
}

// SubmitScore records an endless-mode run and pushes the updated leaderboard
// to live subscribers. Only a user's best run per difficulty is kept.
func (s *Service) SubmitScore(ctx context.Context, entry store.LeaderboardEntry) error {
	if err := s.store.SubmitScore(ctx, entry); err != nil {
		return err
	}

	board, err := s.store.Leaderboard(ctx)
	if err != nil {
		s.logger.Warn("failed to load leaderboard for broadcast", "error", err)
		return nil
	}
	s.hub.Broadcast(board)
	return nil
}

// Leaderboard returns the endless-mode leaderboard, best runs first.
func (s *Service) Leaderboard(ctx context.Context) ([]store.LeaderboardEntry, error) {
	return s.store.Leaderboard(ctx)
}

// Hub returns the live-feed hub for websocket subscriptions.
func (s *Service) Hub() *Hub {
	return s.hub
}
