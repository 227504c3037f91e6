// Package pgstore persists entries in PostgreSQL via pgx.
//
// Tables mirror the graph model: tresor_users, tresor_entries (latest value)
// and tresor_updates (one row per write).
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/unkn0wn-root/tresor/store"
)

type Store struct {
	pool *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS tresor_users (
		email TEXT PRIMARY KEY
	)`,
	`CREATE TABLE IF NOT EXISTS tresor_entries (
		tag        TEXT PRIMARY KEY,
		value      TEXT,
		ts_updated BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS tresor_updates (
		id    BIGSERIAL PRIMARY KEY,
		email TEXT NOT NULL REFERENCES tresor_users(email),
		tag   TEXT NOT NULL REFERENCES tresor_entries(tag),
		value TEXT,
		ts    BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS tresor_updates_tag_idx ON tresor_updates (tag)`,
}

// Open creates a pool for dsn. Connectivity is not checked; call Ping.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("pgstore: dsn required")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("pgstore: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, store.Unavailable("open", err)
	}
	return &Store{pool: pool}, nil
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool) *Store { return &Store{pool: pool} }

func (s *Store) UpsertUser(ctx context.Context, emailHash string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO tresor_users (email) VALUES ($1) ON CONFLICT (email) DO NOTHING`,
		emailHash)
	return classify("upsert user", err)
}

// UpsertEntry writes the latest value and the history row in one transaction.
func (s *Store) UpsertEntry(ctx context.Context, w store.Write) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO tresor_entries (tag, value, ts_updated) VALUES ($1, $2, $3)
			ON CONFLICT (tag) DO UPDATE SET value = EXCLUDED.value, ts_updated = EXCLUDED.ts_updated`,
			w.Tag, w.Value, w.TS); err != nil {
			return err
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO tresor_updates (email, tag, value, ts) VALUES ($1, $2, $3, $4)`,
			w.Author, w.Tag, w.Value, w.TS)
		return err
	})
	return classify("upsert entry", err)
}

func (s *Store) Scan(ctx context.Context, fn func(store.Entry) error) error {
	rows, err := s.pool.Query(ctx, `SELECT tag, value, ts_updated FROM tresor_entries`)
	if err != nil {
		return classify("scan", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e store.Entry
		if err := rows.Scan(&e.Tag, &e.Value, &e.UpdatedAt); err != nil {
			return classify("scan", err)
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return classify("scan", rows.Err())
}

func (s *Store) Lookup(ctx context.Context, tag string) (*string, bool, error) {
	var v *string
	err := s.pool.QueryRow(ctx, `SELECT value FROM tresor_entries WHERE tag = $1`, tag).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, classify("lookup", err)
	}
	return v, true, nil
}

// History returns the writes recorded for tag, oldest first.
func (s *Store) History(ctx context.Context, tag string) ([]store.Write, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT email, value, ts FROM tresor_updates WHERE tag = $1 ORDER BY id`, tag)
	if err != nil {
		return nil, classify("history", err)
	}
	defer rows.Close()

	var out []store.Write
	for rows.Next() {
		w := store.Write{Tag: tag}
		if err := rows.Scan(&w.Author, &w.Value, &w.TS); err != nil {
			return nil, classify("history", err)
		}
		out = append(out, w)
	}
	return out, classify("history", rows.Err())
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, q := range schema {
		if _, err := s.pool.Exec(ctx, q); err != nil {
			return classify("ensure schema", err)
		}
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return classify("ping", s.pool.Ping(ctx))
}

// classify marks connection-level failures as store.ErrUnavailable. Errors the
// server reports for a statement (constraint and foreign key violations,
// syntax) pass through unmarked, except the connection and resource classes.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return store.Unavailable(op, err)
	}
	switch {
	case strings.HasPrefix(pgErr.Code, "08"), // connection exception
		strings.HasPrefix(pgErr.Code, "53"), // insufficient resources
		strings.HasPrefix(pgErr.Code, "57P"): // operator intervention, shutdown
		return store.Unavailable(op, err)
	}
	return fmt.Errorf("pgstore: %s: %w", op, err)
}

func (s *Store) Close(context.Context) error {
	s.pool.Close()
	return nil
}
