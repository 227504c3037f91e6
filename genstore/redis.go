package genstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// Redis keeps generations next to frames stored by the redis provider, so a
// restarted process does not trust frames stamped by an earlier one.
// Keys never expire (see package doc).
type Redis struct {
	rdb         redis.UniversalClient
	ns          string // logical namespace; should match the cache namespace
	closeClient bool
}

var _ GenStore = (*Redis)(nil)

// NewRedis creates a Redis-backed generation store. closeClient makes Close
// close the client; leave it false when the client is shared with the provider.
func NewRedis(client redis.UniversalClient, namespace string, closeClient bool) *Redis {
	return &Redis{rdb: client, ns: namespace, closeClient: closeClient}
}

func (s *Redis) key(k string) string { return "gen:" + s.ns + ":" + k }

// Snapshot returns the current generation.
// Missing keys are treated as generation 0.
func (s *Redis) Snapshot(ctx context.Context, storageKey string) (uint64, error) {
	res, err := s.rdb.Get(ctx, s.key(storageKey)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	u, err := strconv.ParseUint(res, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("redis gen parse: %w", err)
	}
	return u, nil
}

// SnapshotMany returns generations for multiple keys with one MGET.
// Missing keys map to 0.
func (s *Redis) SnapshotMany(ctx context.Context, storageKeys []string) (map[string]uint64, error) {
	if len(storageKeys) == 0 {
		return map[string]uint64{}, nil
	}
	keys := make([]string, len(storageKeys))
	for i, k := range storageKeys {
		keys[i] = s.key(k)
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	out := make(map[string]uint64, len(storageKeys))
	for i, v := range vals {
		var str string
		switch vv := v.(type) {
		case nil:
			out[storageKeys[i]] = 0
			continue
		case string:
			str = vv
		case []byte:
			str = string(vv)
		default:
			str = fmt.Sprint(vv)
		}
		u, err := strconv.ParseUint(str, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("redis gen parse at %s: %w", storageKeys[i], err)
		}
		out[storageKeys[i]] = u
	}
	return out, nil
}

// Bump atomically increments the generation with INCR.
func (s *Redis) Bump(ctx context.Context, storageKey string) (uint64, error) {
	v, err := s.rdb.Incr(ctx, s.key(storageKey)).Result()
	if err != nil {
		return 0, err
	}
	return uint64(v), nil
}

func (s *Redis) Close(context.Context) error {
	if !s.closeClient {
		return nil
	}
	if err := s.rdb.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
		return err
	}
	return nil
}
