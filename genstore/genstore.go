// Package genstore keeps a generation counter per cached tag.
//
// Every cache Put bumps the tag's generation and stamps the frame with it; a
// frame whose generation no longer matches is stale and gets dropped on read.
// Generations are never pruned: the entry cache is authoritative, so losing a
// generation would turn live entries into misses.
package genstore

import "context"

// GenStore abstracts where generations live.
// Use Local (default) for in-process gens, or Redis to share them with a redis provider.
type GenStore interface {
	// Snapshot returns the current generation; missing => 0.
	Snapshot(ctx context.Context, storageKey string) (uint64, error)
	// SnapshotMany returns gens for many keys; missing => 0.
	SnapshotMany(ctx context.Context, storageKeys []string) (map[string]uint64, error)
	// Bump atomically increments and returns the new generation.
	Bump(ctx context.Context, storageKey string) (uint64, error)
	// Close releases resources (no-op ok).
	Close(context.Context) error
}
