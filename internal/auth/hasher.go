// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftwood Contributors

package auth

import (
	"crypto/rand"
	"crypto/subtle"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
)

// OWASP-recommended argon2id cost parameters. Salt and key lengths are
// configured per deployment; the stored record keeps hash and salt as
// separate opaque byte columns.
const (
	argon2Time    = 1         // iterations
	argon2Memory  = 64 * 1024 // 64 MB
	argon2Threads = 4         // parallelism
)

// PasswordHash is the derived credential material stored for a user.
// Neither field is ever logged or rendered in cleartext contexts.
type PasswordHash struct {
	Hash []byte
	Salt []byte
}

// Hasher derives and verifies argon2id password hashes with raw salt and
// hash bytes. Output lengths are fixed at construction.
type Hasher struct {
	saltLen uint32
	keyLen  uint32
}

// NewHasher creates a Hasher producing salts of saltLen bytes and derived
// keys of keyLen bytes.
func NewHasher(saltLen, keyLen uint32) (*Hasher, error) {
	if saltLen < 16 {
		return nil, oops.Code("AUTH_BAD_HASH_CONFIG").Errorf("salt length must be >= 16 bytes, got %d", saltLen)
	}
	if keyLen < 16 {
		return nil, oops.Code("AUTH_BAD_HASH_CONFIG").Errorf("key length must be >= 16 bytes, got %d", keyLen)
	}
	return &Hasher{saltLen: saltLen, keyLen: keyLen}, nil
}

// Hash generates a random salt and derives the argon2id hash of password.
// A failure here is an internal fault, never a user error.
func (h *Hasher) Hash(password string) (PasswordHash, error) {
	salt := make([]byte, h.saltLen)
	if _, err := rand.Read(salt); err != nil {
		return PasswordHash{}, oops.Code("AUTH_SALT_FAILED").
			With("operation", "crypto/rand.Read").
			Wrap(err)
	}

	hash := argon2.IDKey([]byte(password), salt, argon2Time, argon2Memory, argon2Threads, h.keyLen)

	return PasswordHash{Hash: hash, Salt: salt}, nil
}

// Verify recomputes the hash of password with the stored salt and compares
// it to the stored hash in constant time. A mismatch is (false, nil); an
// error is returned only for corrupt stored parameters.
func (h *Hasher) Verify(password string, salt, hash []byte) (bool, error) {
	if len(salt) == 0 {
		return false, oops.Code("AUTH_CORRUPT_CREDENTIAL").Errorf("stored salt is empty")
	}
	if len(hash) == 0 || len(hash) > 1<<30 {
		return false, oops.Code("AUTH_CORRUPT_CREDENTIAL").Errorf("stored hash has invalid length %d", len(hash))
	}

	computed := argon2.IDKey([]byte(password), salt, argon2Time, argon2Memory, argon2Threads, uint32(len(hash)))

	return subtle.ConstantTimeCompare(computed, hash) == 1, nil
}
