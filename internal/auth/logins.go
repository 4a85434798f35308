// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftwood Contributors

package auth

import (
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/gobwas/glob"
	"github.com/samber/oops"
)

// Username validation errors, returned by ValidateUsername in a fixed check
// order so the first failing check always wins. All are safe to render to
// the end user verbatim.
var (
	ErrUsernameWhitespace      = oops.Code("AUTH_USERNAME_WHITESPACE").Errorf("username contains whitespace")
	ErrUsernameTooShort        = oops.Code("AUTH_USERNAME_TOO_SHORT").Errorf("username is too short")
	ErrUsernameTooLong         = oops.Code("AUTH_USERNAME_TOO_LONG").Errorf("username is too long")
	ErrUsernameNotAlphanumeric = oops.Code("AUTH_USERNAME_NOT_ALPHANUMERIC").Errorf("username is not alphanumeric")
	ErrUsernameInappropriate   = oops.Code("AUTH_USERNAME_INAPPROPRIATE").Errorf("username is inappropriate")
)

// failedAttempt tracks the running failure streak for one username.
type failedAttempt struct {
	runningCount uint8
	lastAttempt  time.Time
}

// LoginsConfig is the construction-time policy for a Logins instance.
type LoginsConfig struct {
	// LockoutDuration is the window during which login is refused after
	// MaxFails consecutive failures.
	LockoutDuration time.Duration

	// MaxFails is the failure streak length that triggers a lockout.
	MaxFails uint8

	// SaltLength and HashLength size the derived credential material in bytes.
	SaltLength uint32
	HashLength uint32

	// MinUsernameLen and MaxUsernameLen bound username length in bytes.
	MinUsernameLen int
	MaxUsernameLen int

	// PasswordPattern is the complexity pattern a plaintext password must
	// match (RE2 syntax).
	PasswordPattern string

	// CleanupInterval rate-limits PruneExpired: calls within the interval
	// of the previous sweep are no-ops.
	CleanupInterval time.Duration

	// Blocklist holds glob patterns for inappropriate usernames, matched
	// case-insensitively (e.g. "*admin*").
	Blocklist []string
}

// Logins manages password policy, failed-login tracking with lockout, and
// signup-time username reservations. All methods are safe for concurrent
// use.
type Logins struct {
	cfg           LoginsConfig
	hasher        *Hasher
	passwordRe    *regexp.Regexp
	blocklist     []glob.Glob
	auditLog      *slog.Logger
	failedMu      sync.Mutex
	failed        map[string]*failedAttempt
	reservedMu    sync.Mutex
	reserved      map[string]struct{}
	lastCleanupMu sync.Mutex
	lastCleanup   time.Time
}

// NewLogins validates cfg and builds a Logins instance. auditLog receives
// a warn record whenever a username crosses the lockout threshold; pass
// slog.Default() when no dedicated failed-logins channel is configured.
func NewLogins(cfg LoginsConfig, auditLog *slog.Logger) (*Logins, error) {
	if cfg.MaxUsernameLen < cfg.MinUsernameLen {
		return nil, oops.Code("AUTH_BAD_CONFIG").
			Errorf("max username length %d is smaller than min %d", cfg.MaxUsernameLen, cfg.MinUsernameLen)
	}
	if cfg.MaxFails == 0 {
		return nil, oops.Code("AUTH_BAD_CONFIG").Errorf("max fails must be at least 1")
	}

	passwordRe, err := regexp.Compile(cfg.PasswordPattern)
	if err != nil {
		return nil, oops.Code("AUTH_BAD_CONFIG").
			With("pattern", cfg.PasswordPattern).
			Wrapf(err, "compiling password pattern")
	}

	blocklist := make([]glob.Glob, 0, len(cfg.Blocklist))
	for _, pattern := range cfg.Blocklist {
		g, err := glob.Compile(strings.ToLower(pattern))
		if err != nil {
			return nil, oops.Code("AUTH_BAD_CONFIG").
				With("pattern", pattern).
				Wrapf(err, "compiling blocklist pattern")
		}
		blocklist = append(blocklist, g)
	}

	hasher, err := NewHasher(cfg.SaltLength, cfg.HashLength)
	if err != nil {
		return nil, err
	}

	if auditLog == nil {
		auditLog = slog.Default()
	}

	return &Logins{
		cfg:         cfg,
		hasher:      hasher,
		passwordRe:  passwordRe,
		blocklist:   blocklist,
		auditLog:    auditLog,
		failed:      make(map[string]*failedAttempt),
		reserved:    make(map[string]struct{}),
		lastCleanup: time.Now(),
	}, nil
}

// IsUserLockedOut reports the time left in the lockout window if the
// username's failure streak has reached the threshold and the window has
// not elapsed. It is a pure read with no side effects.
func (l *Logins) IsUserLockedOut(username string) (time.Duration, bool) {
	l.failedMu.Lock()
	defer l.failedMu.Unlock()

	attempt, ok := l.failed[username]
	if !ok {
		return 0, false
	}

	elapsed := time.Since(attempt.lastAttempt)
	if attempt.runningCount >= l.cfg.MaxFails && elapsed < l.cfg.LockoutDuration {
		return l.cfg.LockoutDuration - elapsed, true
	}
	return 0, false
}

// MarkFailedLogin records a failed attempt for username. A streak that had
// already reached the lockout threshold restarts at 1: lockout is
// time-boxed, not permanent, and a completed lockout resets the attacker's
// streak. The read-modify-write is one critical section.
func (l *Logins) MarkFailedLogin(username string) {
	l.failedMu.Lock()
	defer l.failedMu.Unlock()

	attempt, ok := l.failed[username]
	if !ok {
		l.failed[username] = &failedAttempt{runningCount: 1, lastAttempt: time.Now()}
		return
	}

	if attempt.runningCount >= l.cfg.MaxFails {
		attempt.runningCount = 1
	} else {
		attempt.runningCount++
		if attempt.runningCount == l.cfg.MaxFails {
			l.auditLog.Warn("user locked out after repeated failed logins",
				"username", username,
				"fails", attempt.runningCount,
			)
		}
	}
	attempt.lastAttempt = time.Now()
}

// MarkSuccessfulLogin clears any failure streak for username.
func (l *Logins) MarkSuccessfulLogin(username string) {
	l.failedMu.Lock()
	defer l.failedMu.Unlock()
	delete(l.failed, username)
}

// ValidateUsername checks username shape in a fixed order: whitespace,
// too-short, too-long, not-alphanumeric, inappropriate. The first failing
// check wins so error messages are deterministic.
func (l *Logins) ValidateUsername(username string) error {
	if strings.ContainsFunc(username, unicode.IsSpace) {
		return ErrUsernameWhitespace
	}
	if len(username) < l.cfg.MinUsernameLen {
		return ErrUsernameTooShort
	}
	if len(username) > l.cfg.MaxUsernameLen {
		return ErrUsernameTooLong
	}
	for _, r := range username {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return ErrUsernameNotAlphanumeric
		}
	}
	lowered := strings.ToLower(username)
	for _, g := range l.blocklist {
		if g.Match(lowered) {
			return ErrUsernameInappropriate
		}
	}
	return nil
}

// ValidPassword reports whether password matches the configured
// complexity pattern.
func (l *Logins) ValidPassword(password string) bool {
	return l.passwordRe.MatchString(password)
}

// HashPassword derives credential material for a new password.
func (l *Logins) HashPassword(password string) (PasswordHash, error) {
	return l.hasher.Hash(password)
}

// VerifyPassword checks password against a stored salt and hash.
// A mismatch is (false, nil); errors indicate corrupt stored parameters.
func (l *Logins) VerifyPassword(password string, salt, hash []byte) (bool, error) {
	return l.hasher.Verify(password, salt, hash)
}

// PruneExpired discards failure streaks whose last attempt is older than
// the lockout window. Rate-limited: a call within CleanupInterval of the
// previous sweep is a no-op, so callers may invoke it on every request.
func (l *Logins) PruneExpired() {
	l.lastCleanupMu.Lock()
	if time.Since(l.lastCleanup) < l.cfg.CleanupInterval {
		l.lastCleanupMu.Unlock()
		return
	}
	l.lastCleanup = time.Now()
	l.lastCleanupMu.Unlock()

	l.failedMu.Lock()
	defer l.failedMu.Unlock()
	for username, attempt := range l.failed {
		if time.Since(attempt.lastAttempt) >= l.cfg.LockoutDuration {
			delete(l.failed, username)
		}
	}
}
