package tresor

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/unkn0wn-root/tresor/expand"
	"github.com/unkn0wn-root/tresor/internal/keylock"
	"github.com/unkn0wn-root/tresor/store"
	"github.com/unkn0wn-root/tresor/tag"
	"github.com/unkn0wn-root/tresor/tensor"
)

// Options wire a Service. Store is required.
type Options struct {
	Salt          string
	Store         store.Store
	Cache         *CacheStore // nil => CacheStore over provider/local
	Logger        Logger
	Hooks         Hooks
	Now           func() int64 // unix seconds; default time.Now
	Stripes       int          // write lock stripes; 0 => 256
	MaxBatchCells int          // 0 => 100000; negative disables the limit
}

// Service is the write/read surface used by transports.
type Service struct {
	codec    tag.Codec
	store    store.Store
	cache    *CacheStore
	log      Logger
	hooks    Hooks
	now      func() int64
	locks    *keylock.Striped
	maxCells int
}

func New(opts Options) (*Service, error) {
	if opts.Store == nil {
		return nil, errors.New("tresor: store is required")
	}
	s := &Service{
		codec:    tag.New(opts.Salt),
		store:    opts.Store,
		cache:    opts.Cache,
		now:      opts.Now,
		locks:    keylock.New(opts.Stripes),
		maxCells: coalesce(opts.MaxBatchCells, defaultMaxBatchCells),
	}
	s.log = coalesce[Logger](opts.Logger, NopLogger{})
	s.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	if s.now == nil {
		s.now = unixNow
	}
	if s.cache == nil {
		c, err := NewCacheStore(CacheOptions{Logger: s.log, Hooks: s.hooks})
		if err != nil {
			return nil, err
		}
		s.cache = c
	}
	return s, nil
}

// Cache exposes the underlying cache (readiness probes, metrics).
func (s *Service) Cache() *CacheStore { return s.cache }

// Codec returns the salted tag codec.
func (s *Service) Codec() tag.Codec { return s.codec }

// Ready reports whether the service can serve reads.
func (s *Service) Ready() bool { return s.cache.Ready() }

// Write persists value for (path, key) on behalf of author and then installs it
// in the cache. The path is trimmed; a blank value clears the entry.
// Same-tag writes are serialized so the cache ends with the last persisted value.
func (s *Service) Write(ctx context.Context, author, path, key string, value *string) error {
	const op = "write"
	if author == "" {
		return &Error{Kind: KindAuthRequired, Op: op, Msg: "authentication required"}
	}
	if !s.cache.Ready() {
		return storageErr(op, errNotReady)
	}
	path = strings.TrimSpace(path)
	if value != nil && strings.TrimSpace(*value) == "" {
		value = nil
	}

	t := s.codec.Derive(path, key)
	user := s.codec.User(author)

	unlock := s.locks.Lock(t)
	defer unlock()

	if err := s.store.UpsertUser(ctx, user); err != nil {
		return s.persistFailed(op, "upsert_user", err)
	}
	if err := s.store.UpsertEntry(ctx, store.Write{Tag: t, Value: value, Author: user, TS: s.now()}); err != nil {
		return s.persistFailed(op, "upsert_entry", err)
	}

	if err := s.cache.Put(ctx, t, value); err != nil {
		s.log.Error("cache put after persist failed", Fields{"tag": t, "err": err})
		if derr := s.cache.Invalidate(ctx, t); derr != nil {
			s.log.Error("cache invalidate failed", Fields{"tag": t, "err": derr})
		}
		return internalErr(op, "cache update", err)
	}
	s.log.Debug("entry written", Fields{"tag": t, "cleared": value == nil})
	return nil
}

func (s *Service) persistFailed(op, step string, err error) error {
	s.hooks.PersistFailed(step, err)
	s.log.Warn("persist failed", Fields{"step": step, "err": err})
	if errors.Is(err, store.ErrUnavailable) || errors.Is(err, context.DeadlineExceeded) {
		return storageErr(op, err)
	}
	return internalErr(op, step, err)
}

var errNotReady = errors.New("cache not warmed")

// Read returns the current value for (path, key); nil if absent.
func (s *Service) Read(ctx context.Context, path, key string) (*string, error) {
	if !s.cache.Ready() {
		return nil, storageErr("read", errNotReady)
	}
	return s.cache.Get(ctx, s.codec.Derive(strings.TrimSpace(path), key))
}

// ReadBatch resolves every template for key. See ResolveBatch.
func (s *Service) ReadBatch(ctx context.Context, templates []expand.Template, key string) ([]*tensor.Tensor, error) {
	const op = "read_batch"
	total := 0
	for _, tpl := range templates {
		if err := tpl.Validate(); err != nil {
			return nil, &Error{Kind: KindValidation, Op: op, Msg: "invalid path array", Err: err}
		}
		size := tpl.Size()
		if size == math.MaxInt || size > math.MaxInt-total {
			return nil, validationErr(op, "batch too large")
		}
		total += size
		if s.maxCells > 0 && total > s.maxCells {
			return nil, validationErr(op, "batch too large")
		}
	}
	if !s.cache.Ready() {
		return nil, storageErr(op, errNotReady)
	}
	return ResolveBatch(ctx, templates, key, s.codec, s.cache)
}

// Warm reloads the cache from the store.
func (s *Service) Warm(ctx context.Context) (int, error) {
	return s.cache.Warm(ctx, s.store)
}

// WarmWithRetry warms with exponential backoff, giving up after maxTries
// attempts or when ctx is done. Internal (non-storage) failures are not retried.
func (s *Service) WarmWithRetry(ctx context.Context, maxTries uint) (int, error) {
	return backoff.Retry(ctx, func() (int, error) {
		n, err := s.Warm(ctx)
		if err != nil && KindOf(err) != KindStorageUnavailable {
			return n, backoff.Permanent(err)
		}
		return n, err
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(maxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			s.log.Warn("warm failed; retrying", Fields{"err": err, "in": next.String()})
		}),
	)
}

// Setup checks connectivity and creates store constraints, retrying with a
// growing delay while the store comes up.
func (s *Service) Setup(ctx context.Context, maxTries uint) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		if err := s.store.Ping(ctx); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, s.store.EnsureSchema(ctx)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(maxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			s.log.Warn("store setup failed; retrying", Fields{"err": err, "in": next.String()})
		}),
	)
	if err != nil {
		return storageErr("setup", err)
	}
	s.log.Debug("store setup finished", nil)
	return nil
}

// Ping checks the persistent store.
func (s *Service) Ping(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return storageErr("ping", err)
	}
	return nil
}

func (s *Service) Close(ctx context.Context) error {
	return errors.Join(s.cache.Close(ctx), s.store.Close(ctx))
}
