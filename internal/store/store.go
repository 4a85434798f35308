// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftwood Contributors

// Package store provides the SQLite-backed persistence for credentials,
// the arcade leaderboard, and tournament winners.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
	// Pure Go SQLite driver.
	_ "modernc.org/sqlite"
)

// Sentinel errors for the user-facing taxonomy. Anything else coming out of
// this package is an internal fault.
var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUsernameTaken is returned when inserting a credential whose
	// username already exists.
	ErrUsernameTaken = errors.New("username already in use")

	// ErrWinAlreadyRecorded is returned when a user submits a tournament
	// win for a week they have already won.
	ErrWinAlreadyRecorded = errors.New("tournament win already recorded")
)

// Credential is one registered user's stored login material. Salt and Hash
// are opaque bytes produced by the auth package and never interpreted here.
type Credential struct {
	Username  string
	Salt      []byte
	Hash      []byte
	CreatedAt time.Time
}

// LeaderboardEntry is one row of the endless-mode leaderboard.
type LeaderboardEntry struct {
	Username   string `json:"username"`
	Difficulty uint8  `json:"difficulty"`
	Levels     uint8  `json:"levels"`
}

// Store wraps the SQLite database.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if necessary) the SQLite database at path and
// verifies connectivity. The initial ping is retried with backoff because a
// previous process instance may still hold the write lock for a moment
// during restarts.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, oops.Code("STORE_OPEN_FAILED").With("path", path).Wrap(err)
	}

	backoff := retry.WithMaxRetries(5, retry.NewExponential(100*time.Millisecond))
	if err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if pingErr := db.PingContext(ctx); pingErr != nil {
			return retry.RetryableError(pingErr)
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, oops.Code("STORE_OPEN_FAILED").With("path", path).Wrap(err)
	}

	return &Store{db: db, path: path}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return oops.Code("STORE_CLOSE_FAILED").Wrap(err)
	}
	return nil
}

// Migrate applies all pending schema migrations.
func (s *Store) Migrate() error {
	m, err := NewMigrator(s.path)
	if err != nil {
		return err
	}
	defer m.Close()
	return m.Up()
}

// isUniqueViolation reports whether err is SQLite's unique-constraint
// failure. The modernc driver surfaces it in the error text.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// CreateCredential inserts a new credential row. Returns ErrUsernameTaken
// when the username already exists; the primary key is the durable
// uniqueness claim that outlives the signup-time reservation.
func (s *Store) CreateCredential(ctx context.Context, username string, salt, hash []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO credentials (username, salt, hash) VALUES (?, ?, ?)`,
		username, salt, hash,
	)
	if isUniqueViolation(err) {
		return ErrUsernameTaken
	}
	if err != nil {
		return oops.Code("STORE_QUERY_FAILED").With("operation", "insert credential").Wrap(err)
	}
	return nil
}

// GetCredential fetches the stored salt and hash for username.
func (s *Store) GetCredential(ctx context.Context, username string) (*Credential, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT username, salt, hash, created_at FROM credentials WHERE username = ?`,
		username,
	)

	var cred Credential
	if err := row.Scan(&cred.Username, &cred.Salt, &cred.Hash, &cred.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, oops.Code("STORE_QUERY_FAILED").With("operation", "get credential").Wrap(err)
	}
	return &cred, nil
}

// DeleteCredential removes a user's credential row.
func (s *Store) DeleteCredential(ctx context.Context, username string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM credentials WHERE username = ?`, username)
	if err != nil {
		return oops.Code("STORE_QUERY_FAILED").With("operation", "delete credential").Wrap(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return oops.Code("STORE_QUERY_FAILED").With("operation", "delete credential").Wrap(err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// SubmitScore upserts a leaderboard row, keeping the best level count the
// user has reached at that difficulty.
func (s *Store) SubmitScore(ctx context.Context, entry LeaderboardEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO leaderboard (username, difficulty, levels) VALUES (?, ?, ?)
		 ON CONFLICT (username, difficulty)
		 DO UPDATE SET levels = MAX(levels, excluded.levels)`,
		entry.Username, entry.Difficulty, entry.Levels,
	)
	if err != nil {
		return oops.Code("STORE_QUERY_FAILED").With("operation", "submit score").Wrap(err)
	}
	return nil
}

// Leaderboard returns all entries, best first.
func (s *Store) Leaderboard(ctx context.Context) ([]LeaderboardEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT username, difficulty, levels FROM leaderboard
		 ORDER BY difficulty DESC, levels DESC, username ASC`,
	)
	if err != nil {
		return nil, oops.Code("STORE_QUERY_FAILED").With("operation", "list leaderboard").Wrap(err)
	}
	defer rows.Close()

	var entries []LeaderboardEntry
	for rows.Next() {
		var e LeaderboardEntry
		if err := rows.Scan(&e.Username, &e.Difficulty, &e.Levels); err != nil {
			return nil, oops.Code("STORE_QUERY_FAILED").With("operation", "scan leaderboard row").Wrap(err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("STORE_QUERY_FAILED").With("operation", "iterate leaderboard").Wrap(err)
	}
	return entries, nil
}

// RecordTournamentWin records that username won the given tournament week.
func (s *Store) RecordTournamentWin(ctx context.Context, username string, week uint32) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tournament_winners (username, week) VALUES (?, ?)`,
		username, week,
	)
	if isUniqueViolation(err) {
		return ErrWinAlreadyRecorded
	}
	if err != nil {
		return oops.Code("STORE_QUERY_FAILED").With("operation", "record tournament win").Wrap(err)
	}
	return nil
}

// TournamentWinners lists the users who won the given week.
func (s *Store) TournamentWinners(ctx context.Context, week uint32) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT username FROM tournament_winners WHERE week = ? ORDER BY username`,
		week,
	)
	if err != nil {
		return nil, oops.Code("STORE_QUERY_FAILED").With("operation", "list tournament winners").Wrap(err)
	}
	defer rows.Close()

	var winners []string
	for rows.Next() {
		var username string
		if err := rows.Scan(&username); err != nil {
			return nil, oops.Code("STORE_QUERY_FAILED").With("operation", "scan tournament winner").Wrap(err)
		}
		winners = append(winners, username)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("STORE_QUERY_FAILED").With("operation", "iterate tournament winners").Wrap(err)
	}
	return winners, nil
}
