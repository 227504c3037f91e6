// Package provider defines the byte store behind the tresor entry cache.
//
// Implementations MUST be byte-for-byte transparent: Get returns exactly the
// bytes previously passed to Set for a key. The "entry:<ns>:" keyspace is owned
// by tresor; foreign values under it are treated as corrupt and deleted.
//
// Providers that may drop entries on their own (eviction, admission, TTL) must
// report Lossy() == true. The cache then requires a read-through loader so a
// dropped entry is refetched from the persistent store instead of being
// reported as never written.
package provider

import (
	"context"
	"time"
)

// Provider is a minimal byte store. Safe for concurrent use.
type Provider interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	// If an IO/remote error happens, return (nil, false, err).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value. cost and ttl may be ignored if unsupported; ttl <= 0 means no expiry.
	// Returns ok=false when the store rejected the write under pressure.
	Set(ctx context.Context, key string, value []byte, cost int64, ttl time.Duration) (ok bool, err error)

	// Del removes a key (best-effort).
	Del(ctx context.Context, key string) error

	// Reset drops every key under prefix. Used when the cache is re-warmed.
	Reset(ctx context.Context, prefix string) error

	// Lossy reports whether the store may drop entries without a Del.
	Lossy() bool

	// Close releases resources.
	Close(ctx context.Context) error
}
