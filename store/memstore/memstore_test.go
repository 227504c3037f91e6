package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/unkn0wn-root/tresor/store"
)

func sp(s string) *string { return &s }

func TestUpsertEntryRecordsHistory(t *testing.T) {
	ctx := context.Background()
	s := New()
	if err := s.UpsertUser(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertEntry(ctx, store.Write{Tag: "t", Value: sp("a"), Author: "u1", TS: 1}); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertEntry(ctx, store.Write{Tag: "t", Value: nil, Author: "u1", TS: 2}); err != nil {
		t.Fatal(err)
	}

	v, found, err := s.Lookup(ctx, "t")
	if err != nil || !found || v != nil {
		t.Fatalf("Lookup cleared entry: v=%v found=%v err=%v", v, found, err)
	}
	h := s.History("t")
	if len(h) != 2 || *h[0].Value != "a" || h[1].Value != nil || h[1].TS != 2 {
		t.Fatalf("history: %+v", h)
	}
}

func TestUpsertEntryRequiresUser(t *testing.T) {
	s := New()
	if err := s.UpsertEntry(context.Background(), store.Write{Tag: "t", Author: "ghost"}); err == nil {
		t.Fatalf("expected unknown author error")
	}
}

func TestScanOrderAndStop(t *testing.T) {
	ctx := context.Background()
	s := New()
	_ = s.UpsertUser(ctx, "u")
	for _, tg := range []string{"c", "a", "b"} {
		_ = s.UpsertEntry(ctx, store.Write{Tag: tg, Value: sp(tg), Author: "u", TS: 1})
	}
	var seen []string
	if err := s.Scan(ctx, func(e store.Entry) error {
		seen = append(seen, e.Tag)
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if len(seen) != 3 || seen[0] != "a" || seen[2] != "c" {
		t.Fatalf("scan order: %v", seen)
	}

	stop := errors.New("stop")
	n := 0
	err := s.Scan(ctx, func(store.Entry) error { n++; return stop })
	if !errors.Is(err, stop) || n != 1 {
		t.Fatalf("scan stop: n=%d err=%v", n, err)
	}
}

func TestLookupMissing(t *testing.T) {
	if _, found, err := New().Lookup(context.Background(), "nope"); found || err != nil {
		t.Fatalf("found=%v err=%v", found, err)
	}
}

func TestUnavailableWrapping(t *testing.T) {
	base := errors.New("dial tcp: refused")
	err := store.Unavailable("scan", base)
	if !errors.Is(err, store.ErrUnavailable) || !errors.Is(err, base) {
		t.Fatalf("wrapping lost: %v", err)
	}
	if store.Unavailable("x", nil) != nil {
		t.Fatalf("nil should stay nil")
	}
}
