// Package keylock serializes work per key with a fixed set of striped mutexes.
package keylock

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

const DefaultStripes = 256

// Striped maps keys onto a fixed pool of mutexes. Two keys may share a stripe;
// the same key always maps to the same one.
type Striped struct {
	mus []sync.Mutex
}

func New(stripes int) *Striped {
	if stripes <= 0 {
		stripes = DefaultStripes
	}
	return &Striped{mus: make([]sync.Mutex, stripes)}
}

// Lock acquires the stripe for key and returns its unlock func.
func (s *Striped) Lock(key string) (unlock func()) {
	m := &s.mus[s.stripe(key)]
	m.Lock()
	return m.Unlock
}

func (s *Striped) stripe(key string) int {
	return int(xxhash.Sum64String(key) % uint64(len(s.mus)))
}
