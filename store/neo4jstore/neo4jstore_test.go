package neo4jstore

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/unkn0wn-root/tresor/store"
)

func TestConversionHelpers(t *testing.T) {
	if param(nil) != nil {
		t.Fatalf("nil param should be nil")
	}
	v := "x"
	if param(&v) != "x" {
		t.Fatalf("param deref")
	}
	if optString(nil) != nil || optString(int64(3)) != nil {
		t.Fatalf("non-string should be absent")
	}
	if p := optString(""); p == nil || *p != "" {
		t.Fatalf("empty string is a value, not absent")
	}
}

// fakeRows replays recs and then fails with err, if set.
type fakeRows struct {
	recs []*neo4j.Record
	i    int
	err  error
}

func (r *fakeRows) Next(context.Context) bool {
	if r.i >= len(r.recs) {
		return false
	}
	r.i++
	return true
}
func (r *fakeRows) Record() *neo4j.Record { return r.recs[r.i-1] }
func (r *fakeRows) Err() error            { return r.err }

func entryRecord(tag string, value any, ts int64) *neo4j.Record {
	return &neo4j.Record{Keys: []string{"tag", "value", "ts"}, Values: []any{tag, value, ts}}
}

func TestCollectDropsRowsOfFailedAttempt(t *testing.T) {
	ctx := context.Background()
	recs := []*neo4j.Record{entryRecord("t1", "a", 1), entryRecord("", "x", 2), entryRecord("t2", nil, 3)}

	// a transient failure after a partial stream yields nothing
	got, err := collect(ctx, &fakeRows{recs: recs[:1], err: errors.New("leader switched")})
	if err == nil || got != nil {
		t.Fatalf("failed attempt returned %v, %v", got, err)
	}

	// the retried attempt starts from scratch
	got, err = collect(ctx, &fakeRows{recs: recs})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Tag != "t1" || got[1].Tag != "t2" {
		t.Fatalf("entries = %+v", got)
	}
	if got[0].Value == nil || *got[0].Value != "a" || got[1].Value != nil || got[1].UpdatedAt != 3 {
		t.Fatalf("entry fields = %+v", got)
	}
}

func TestNewRequiresURI(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected error")
	}
}

func openTest(t *testing.T) *Store {
	t.Helper()
	uri := os.Getenv("TRESOR_TEST_NEO4J_URI")
	if uri == "" {
		t.Skip("TRESOR_TEST_NEO4J_URI not set")
	}
	s, err := New(Config{
		URI:      uri,
		Username: os.Getenv("TRESOR_TEST_NEO4J_USER"),
		Password: os.Getenv("TRESOR_TEST_NEO4J_PASSWORD"),
	})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if err := s.EnsureSchema(ctx); err != nil {
		t.Fatalf("schema: %v", err)
	}
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func TestRoundTrip(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	author := uuid.NewString()[:16]
	tg := uuid.NewString()[:16]

	if err := s.UpsertUser(ctx, author); err != nil {
		t.Fatal(err)
	}
	v := "3+"
	if err := s.UpsertEntry(ctx, store.Write{Tag: tg, Value: &v, Author: author, TS: 10}); err != nil {
		t.Fatal(err)
	}
	got, found, err := s.Lookup(ctx, tg)
	if err != nil || !found || got == nil || *got != "3+" {
		t.Fatalf("lookup: %v %v %v", got, found, err)
	}
	if err := s.UpsertEntry(ctx, store.Write{Tag: tg, Value: nil, Author: author, TS: 11}); err != nil {
		t.Fatal(err)
	}
	got, found, _ = s.Lookup(ctx, tg)
	if !found || got != nil {
		t.Fatalf("cleared entry should be found with nil value")
	}

	seen := false
	if err := s.Scan(ctx, func(e store.Entry) error {
		if e.Tag == tg {
			seen = true
		}
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if !seen {
		t.Fatalf("scan missed %s", tg)
	}
}

func TestUpsertEntryUnknownAuthor(t *testing.T) {
	s := openTest(t)
	err := s.UpsertEntry(context.Background(), store.Write{Tag: uuid.NewString()[:16], Author: "no-such-user"})
	if err == nil {
		t.Fatalf("expected error for unknown author")
	}
}
