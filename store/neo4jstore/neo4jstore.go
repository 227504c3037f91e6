// Package neo4jstore persists entries in Neo4j as (:User)-[:UPDATED]->(:Entry).
package neo4jstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/unkn0wn-root/tresor/store"
)

type Config struct {
	URI      string // e.g. bolt://neo4j:7687
	Username string
	Password string
	Database string // empty = server default
}

type Store struct {
	driver neo4j.DriverWithContext
	db     string
}

var _ store.Store = (*Store)(nil)

var errUnknownAuthor = errors.New("neo4jstore: author not found")

const (
	qUpsertUser = `MERGE (u:User {email: $email})`

	qUpsertEntry = `
MATCH (u:User {email: $email})
MERGE (e:Entry {tag: $tag})
CREATE (u)-[r:UPDATED]->(e)
SET r.ts = $ts
SET r.value = $value
SET e.value = $value
SET e.ts_updated = $ts`

	qScan   = `MATCH (e:Entry) RETURN e.tag AS tag, e.value AS value, e.ts_updated AS ts`
	qLookup = `MATCH (e:Entry {tag: $tag}) RETURN e.value AS value`
)

var constraints = []string{
	`CREATE CONSTRAINT entry_tag IF NOT EXISTS FOR (e:Entry) REQUIRE e.tag IS UNIQUE`,
	`CREATE CONSTRAINT user_email IF NOT EXISTS FOR (u:User) REQUIRE u.email IS UNIQUE`,
}

// New opens a driver. Connectivity is not checked; call Ping.
func New(cfg Config) (*Store, error) {
	if cfg.URI == "" {
		return nil, errors.New("neo4jstore: URI required")
	}
	auth := neo4j.NoAuth()
	if cfg.Username != "" {
		auth = neo4j.BasicAuth(cfg.Username, cfg.Password, "")
	}
	d, err := neo4j.NewDriverWithContext(cfg.URI, auth)
	if err != nil {
		return nil, fmt.Errorf("neo4jstore: driver: %w", err)
	}
	return &Store{driver: d, db: cfg.Database}, nil
}

func (s *Store) exec(ctx context.Context, q string, params map[string]any) (*neo4j.EagerResult, error) {
	return neo4j.ExecuteQuery(ctx, s.driver, q, params,
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(s.db))
}

func (s *Store) UpsertUser(ctx context.Context, emailHash string) error {
	_, err := s.exec(ctx, qUpsertUser, map[string]any{"email": emailHash})
	return store.Unavailable("upsert user", err)
}

func (s *Store) UpsertEntry(ctx context.Context, w store.Write) error {
	res, err := s.exec(ctx, qUpsertEntry, map[string]any{
		"email": w.Author,
		"tag":   w.Tag,
		"value": param(w.Value),
		"ts":    w.TS,
	})
	if err != nil {
		return store.Unavailable("upsert entry", err)
	}
	if res.Summary.Counters().RelationshipsCreated() == 0 {
		return fmt.Errorf("%w: %s", errUnknownAuthor, w.Author)
	}
	return nil
}

// Scan reads all entries inside one read transaction and passes them to fn
// after it commits. The driver retries the transaction function on transient
// errors, so rows are buffered per attempt and only the successful attempt's
// rows reach fn.
func (s *Store) Scan(ctx context.Context, fn func(store.Entry) error) error {
	sess := s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: s.db,
	})
	defer sess.Close(ctx)

	out, err := sess.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, qScan, nil)
		if err != nil {
			return nil, err
		}
		return collect(ctx, res)
	})
	if err != nil {
		return store.Unavailable("scan", err)
	}
	entries, _ := out.([]store.Entry)
	for _, e := range entries {
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

// rows is the part of neo4j.ResultWithContext collect reads.
type rows interface {
	Next(ctx context.Context) bool
	Record() *neo4j.Record
	Err() error
}

func collect(ctx context.Context, res rows) ([]store.Entry, error) {
	var out []store.Entry
	for res.Next(ctx) {
		rec := res.Record()
		e := store.Entry{}
		if v, ok := rec.Get("tag"); ok {
			e.Tag, _ = v.(string)
		}
		if v, ok := rec.Get("value"); ok {
			e.Value = optString(v)
		}
		if v, ok := rec.Get("ts"); ok {
			e.UpdatedAt, _ = v.(int64)
		}
		if e.Tag == "" {
			continue
		}
		out = append(out, e)
	}
	if err := res.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) Lookup(ctx context.Context, tag string) (*string, bool, error) {
	res, err := s.exec(ctx, qLookup, map[string]any{"tag": tag})
	if err != nil {
		return nil, false, store.Unavailable("lookup", err)
	}
	if len(res.Records) == 0 {
		return nil, false, nil
	}
	v, _ := res.Records[0].Get("value")
	return optString(v), true, nil
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, q := range constraints {
		if _, err := s.exec(ctx, q, nil); err != nil {
			return store.Unavailable("ensure schema", err)
		}
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return store.Unavailable("ping", s.driver.VerifyConnectivity(ctx))
}

func (s *Store) Close(ctx context.Context) error { return s.driver.Close(ctx) }

func param(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func optString(v any) *string {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	return &s
}
