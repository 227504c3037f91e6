// Package tag derives the fixed-width storage keys used for entries and users.
//
// A tag is the first 16 hex characters of SHA-1(path + "/" + key + salt).
// The salt is a server-side secret, so tags cannot be reconstructed from
// path/key names alone. SHA-1 keeps tags compatible with already persisted data.
package tag

import (
	"crypto/sha1"
	"encoding/hex"
)

// Len is the number of hex characters in a tag or user hash.
const Len = 16

// Derive returns the tag for (path, key) under salt. Pure; empty inputs are valid.
func Derive(path, key, salt string) string {
	return prefix(path + "/" + key + salt)
}

// HashEmail returns the opaque user identity for an author email.
func HashEmail(email, salt string) string {
	return prefix(email + salt)
}

func prefix(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])[:Len]
}

// Codec binds a salt so callers don't pass the secret around.
type Codec struct {
	salt string
}

func New(salt string) Codec { return Codec{salt: salt} }

func (c Codec) Derive(path, key string) string { return Derive(path, key, c.salt) }

func (c Codec) User(email string) string { return HashEmail(email, c.salt) }
