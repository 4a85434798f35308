// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftwood Contributors

// Package auth implements the credential and session engine behind the
// website's login system: argon2id password hashing, per-username
// failed-attempt tracking with time-boxed lockout, short-lived username
// reservations used during signup, and an in-memory session store with
// bounded renewal.
//
// Logins and Sessions are process-wide service objects constructed once at
// startup and shared by every request handler. Neither performs any I/O;
// callers exchange only usernames, tokens, and small result values across
// the boundary.
package auth
