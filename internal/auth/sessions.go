// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftwood Contributors

package auth

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/samber/oops"
)

// SessionIDLength is the fixed length of every session token.
const SessionIDLength = 32

// sessionAlphabet is the character set for session tokens.
const sessionAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// SessionID is an opaque, unguessable token proving a prior authentication.
// It is the only artifact from this package that crosses the process
// boundary, carried by the HTTP layer in a header.
type SessionID string

// sessionData is the server-side record behind one token.
type sessionData struct {
	id           SessionID
	owner        string
	creationTime time.Time
	renewCount   uint8
}

// SessionsConfig is the construction-time policy for a Sessions store.
type SessionsConfig struct {
	// MaxSessionDuration is how long a session stays valid after creation
	// or renewal.
	MaxSessionDuration time.Duration

	// CleanupInterval rate-limits PruneExpired the same way as Logins.
	CleanupInterval time.Duration

	// MaxRenewCount bounds how many times a session can slide its expiry
	// without a fresh login.
	MaxRenewCount uint8
}

// Sessions owns the bidirectional mapping between authenticated usernames
// and live session tokens. Exactly one session is active per username.
// All methods are safe for concurrent use; a lookup never observes a
// half-installed mapping because both directions are updated inside one
// critical section.
type Sessions struct {
	cfg           SessionsConfig
	mu            sync.RWMutex
	byUser        map[string]*sessionData
	byID          map[SessionID]*sessionData
	lastCleanupMu sync.Mutex
	lastCleanup   time.Time
}

// NewSessions builds a Sessions store.
func NewSessions(cfg SessionsConfig) *Sessions {
	return &Sessions{
		cfg:         cfg,
		byUser:      make(map[string]*sessionData),
		byID:        make(map[SessionID]*sessionData),
		lastCleanup: time.Now(),
	}
}

// sessionByteLimit is the largest multiple of the alphabet size that fits
// in a byte. Random bytes at or above it are rejected so every alphabet
// character stays equally likely.
const sessionByteLimit = 256 - 256%len(sessionAlphabet)

// appendSessionChars maps random bytes onto the session alphabet, stopping
// at a full token length.
func appendSessionChars(dst, src []byte) []byte {
	for _, b := range src {
		if len(dst) == SessionIDLength {
			break
		}
		if int(b) >= sessionByteLimit {
			continue
		}
		dst = append(dst, sessionAlphabet[int(b)%len(sessionAlphabet)])
	}
	return dst
}

// newSessionID generates a random fixed-length alphanumeric token.
func newSessionID() (SessionID, error) {
	id := make([]byte, 0, SessionIDLength)
	buf := make([]byte, SessionIDLength)
	for len(id) < SessionIDLength {
		if _, err := rand.Read(buf); err != nil {
			return "", oops.Code("SESSION_TOKEN_FAILED").
				With("operation", "crypto/rand.Read").
				Wrap(err)
		}
		id = appendSessionChars(id, buf)
	}
	return SessionID(id), nil
}

// CreateSession mints a token for username, replacing any prior session so
// that exactly one is active per user; the superseded token becomes invalid
// immediately. Token generation retries until the token does not collide
// with a live one. Does not check that the user has been authenticated.
func (s *Sessions) CreateSession(username string) (SessionID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := newSessionID()
	if err != nil {
		return "", err
	}
	for {
		if _, exists := s.byID[id]; !exists {
			break
		}
		if id, err = newSessionID(); err != nil {
			return "", err
		}
	}

	if old, ok := s.byUser[username]; ok {
		delete(s.byID, old.id)
	}

	data := &sessionData{
		id:           id,
		owner:        username,
		creationTime: time.Now(),
	}
	s.byUser[username] = data
	s.byID[id] = data

	return id, nil
}

// RenewSession slides the expiry of the user's current session forward and
// reports the renewals remaining. It fails when the user has no live
// session or the renewal budget is exhausted; renewal is atomic from the
// caller's perspective.
func (s *Sessions) RenewSession(username string) (uint8, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.byUser[username]
	if !ok {
		return 0, false
	}
	if data.renewCount >= s.cfg.MaxRenewCount {
		return 0, false
	}

	data.renewCount++
	data.creationTime = time.Now()

	return s.cfg.MaxRenewCount - data.renewCount, true
}

// RemoveSession is the explicit logout path; it removes the user's mapping
// unconditionally.
func (s *Sessions) RemoveSession(username string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if data, ok := s.byUser[username]; ok {
		delete(s.byID, data.id)
		delete(s.byUser, username)
	}
}

// GetSessionOwner resolves a token to its owning username. A missing and
// an expired token are indistinguishable to the caller, which keeps token
// probing uninformative.
func (s *Sessions) GetSessionOwner(id SessionID) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.byID[id]
	if !ok {
		return "", false
	}
	if time.Since(data.creationTime) >= s.cfg.MaxSessionDuration {
		return "", false
	}
	return data.owner, true
}

// Count reports the number of live sessions, including any that have
// expired but not yet been swept.
func (s *Sessions) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// PruneExpired evicts sessions older than MaxSessionDuration. Same
// rate-limiting discipline as Logins.PruneExpired.
func (s *Sessions) PruneExpired() {
	s.lastCleanupMu.Lock()
	if time.Since(s.lastCleanup) < s.cfg.CleanupInterval {
		s.lastCleanupMu.Unlock()
		return
	}
	s.lastCleanup = time.Now()
	s.lastCleanupMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	for username, data := range s.byUser {
		if time.Since(data.creationTime) >= s.cfg.MaxSessionDuration {
			delete(s.byID, data.id)
			delete(s.byUser, username)
		}
	}
}
