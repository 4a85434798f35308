// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftwood Contributors

package auth

import "sync"

// Reservation is a temporary exclusive claim on a username held while a
// signup is constructing the durable credential record. Callers must
// arrange for Release to run on every exit path, typically:
//
//	res, ok := logins.ReserveUsername(username)
//	if !ok { ... }
//	defer res.Release()
//
// Once the credential row is durable the reservation has done its job;
// releasing it then simply allows the store's uniqueness constraint to take
// over as the permanent claim.
type Reservation struct {
	logins   *Logins
	username string
	once     sync.Once
}

// Username returns the reserved name.
func (r *Reservation) Username() string {
	return r.username
}

// Release frees the username for re-reservation. It is idempotent and safe
// to defer alongside an earlier explicit call.
func (r *Reservation) Release() {
	r.once.Do(func() {
		r.logins.reservedMu.Lock()
		defer r.logins.reservedMu.Unlock()
		delete(r.logins.reserved, r.username)
	})
}

// ReserveUsername atomically claims username for the duration of a signup.
// It fails when the name is already reserved by a concurrent signup.
// The insert-if-absent is a single critical section, so two concurrent
// calls for the same name never both succeed.
func (l *Logins) ReserveUsername(username string) (*Reservation, bool) {
	l.reservedMu.Lock()
	defer l.reservedMu.Unlock()

	if _, taken := l.reserved[username]; taken {
		return nil, false
	}
	l.reserved[username] = struct{}{}

	return &Reservation{logins: l, username: username}, true
}
