// Package memstore is an in-process Store used for development and tests.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/unkn0wn-root/tresor/store"
)

type Store struct {
	mu      sync.RWMutex
	users   map[string]struct{}
	entries map[string]store.Entry
	history map[string][]store.Write
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		users:   make(map[string]struct{}),
		entries: make(map[string]store.Entry),
		history: make(map[string][]store.Write),
	}
}

func (s *Store) UpsertUser(_ context.Context, emailHash string) error {
	s.mu.Lock()
	s.users[emailHash] = struct{}{}
	s.mu.Unlock()
	return nil
}

func (s *Store) UpsertEntry(_ context.Context, w store.Write) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[w.Author]; !ok {
		return fmt.Errorf("memstore: unknown author %q", w.Author)
	}
	s.entries[w.Tag] = store.Entry{Tag: w.Tag, Value: clone(w.Value), UpdatedAt: w.TS}
	w.Value = clone(w.Value)
	s.history[w.Tag] = append(s.history[w.Tag], w)
	return nil
}

// Scan visits entries in tag order.
func (s *Store) Scan(ctx context.Context, fn func(store.Entry) error) error {
	s.mu.RLock()
	entries := make([]store.Entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.RUnlock()
	sort.Slice(entries, func(i, j int) bool { return entries[i].Tag < entries[j].Tag })

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Lookup(_ context.Context, tag string) (*string, bool, error) {
	s.mu.RLock()
	e, ok := s.entries[tag]
	s.mu.RUnlock()
	return clone(e.Value), ok, nil
}

// History returns the recorded writes for tag, oldest first.
func (s *Store) History(tag string) []store.Write {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.Write, len(s.history[tag]))
	copy(out, s.history[tag])
	return out
}

// HasUser reports whether the email hash has written before.
func (s *Store) HasUser(emailHash string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.users[emailHash]
	return ok
}

func (s *Store) EnsureSchema(context.Context) error { return nil }
func (s *Store) Ping(context.Context) error         { return nil }
func (s *Store) Close(context.Context) error        { return nil }

func clone(v *string) *string {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
