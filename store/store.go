// Package store defines the persistent system of record behind the entry cache.
//
// The graph it models:
//
//	(:User {email})-[:UPDATED {ts, value}]->(:Entry {tag, value, ts_updated})
//
// Users are keyed by a salted email hash, entries by tag. Every write adds one
// UPDATED relationship (audit history); the Entry always carries the latest
// value and timestamp. Entries are never deleted; a nil value clears one.
package store

import (
	"context"
	"errors"
)

// ErrUnavailable marks failures to reach the backend.
var ErrUnavailable = errors.New("store: unavailable")

// Entry is the current state of one (path, key) pair.
type Entry struct {
	Tag       string
	Value     *string
	UpdatedAt int64 // unix seconds
}

// Write is a single update applied by an author.
type Write struct {
	Tag    string
	Value  *string
	Author string // email hash
	TS     int64  // unix seconds
}

// Store is the narrow contract the cache and service consume.
type Store interface {
	// UpsertUser creates the user if missing.
	UpsertUser(ctx context.Context, emailHash string) error
	// UpsertEntry creates or updates the entry and records the write.
	// The author must exist.
	UpsertEntry(ctx context.Context, w Write) error
	// Scan calls fn for every entry. Returning an error from fn stops the scan.
	Scan(ctx context.Context, fn func(Entry) error) error
	// Lookup returns one entry's value; found is false if the tag was never written.
	Lookup(ctx context.Context, tag string) (value *string, found bool, err error)
	// EnsureSchema creates constraints/tables. Idempotent.
	EnsureSchema(ctx context.Context) error
	// Ping checks connectivity.
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Unavailable wraps err so errors.Is(err, ErrUnavailable) holds.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return &unavailableError{op: op, err: err}
}

type unavailableError struct {
	op  string
	err error
}

func (e *unavailableError) Error() string { return "store: " + e.op + ": " + e.err.Error() }

func (e *unavailableError) Unwrap() []error { return []error{ErrUnavailable, e.err} }
