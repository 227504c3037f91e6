package pgstore

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/tresor/store"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("TRESOR_TEST_POSTGRES_URL")
	if dsn == "" {
		t.Skip("TRESOR_TEST_POSTGRES_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s, err := Open(ctx, dsn)
	require.NoError(t, err)
	require.NoError(t, s.Ping(ctx))
	require.NoError(t, s.EnsureSchema(ctx))
	require.NoError(t, s.EnsureSchema(ctx), "schema must be idempotent")
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func TestOpenRequiresDSN(t *testing.T) {
	_, err := Open(context.Background(), "")
	assert.Error(t, err)
}

func TestRoundTrip(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	author := uuid.NewString()[:16]
	tg := uuid.NewString()[:16]

	require.NoError(t, s.UpsertUser(ctx, author))
	require.NoError(t, s.UpsertUser(ctx, author))

	v := "2-"
	require.NoError(t, s.UpsertEntry(ctx, store.Write{Tag: tg, Value: &v, Author: author, TS: 100}))
	require.NoError(t, s.UpsertEntry(ctx, store.Write{Tag: tg, Value: nil, Author: author, TS: 101}))

	got, found, err := s.Lookup(ctx, tg)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Nil(t, got)

	h, err := s.History(ctx, tg)
	require.NoError(t, err)
	require.Len(t, h, 2)
	require.NotNil(t, h[0].Value)
	assert.Equal(t, "2-", *h[0].Value)
	assert.Nil(t, h[1].Value)
	assert.Equal(t, int64(101), h[1].TS)

	_, found, err = s.Lookup(ctx, "missing-"+tg)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestUpsertEntryUnknownAuthorRollsBack(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	tg := uuid.NewString()[:16]

	err := s.UpsertEntry(ctx, store.Write{Tag: tg, Author: "nobody-" + tg, TS: 1})
	require.Error(t, err)
	assert.NotErrorIs(t, err, store.ErrUnavailable, "a foreign key violation is not an outage")

	_, found, err := s.Lookup(ctx, tg)
	require.NoError(t, err)
	assert.False(t, found, "entry insert must roll back with the history row")
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name        string
		err         error
		unavailable bool
	}{
		{"foreign key", &pgconn.PgError{Code: "23503"}, false},
		{"unique", &pgconn.PgError{Code: "23505"}, false},
		{"syntax", &pgconn.PgError{Code: "42601"}, false},
		{"connection failure", &pgconn.PgError{Code: "08006"}, true},
		{"too many connections", &pgconn.PgError{Code: "53300"}, true},
		{"admin shutdown", &pgconn.PgError{Code: "57P01"}, true},
		{"dial", errors.New("dial tcp: connection refused"), true},
		{"deadline", context.DeadlineExceeded, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := classify("op", tc.err)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.err)
			assert.Equal(t, tc.unavailable, errors.Is(err, store.ErrUnavailable))
		})
	}
	assert.NoError(t, classify("op", nil))
}
