package tresor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/tresor/codec"
	"github.com/unkn0wn-root/tresor/genstore"
	"github.com/unkn0wn-root/tresor/internal/keylock"
	"github.com/unkn0wn-root/tresor/internal/wire"
	"github.com/unkn0wn-root/tresor/provider"
	"github.com/unkn0wn-root/tresor/provider/local"
	"github.com/unkn0wn-root/tresor/store"
)

type SetCostFunc func(storageKey string, raw []byte) int64

// Scanner is the warm source: every persisted (tag, value) pair.
type Scanner interface {
	Scan(ctx context.Context, fn func(store.Entry) error) error
}

// Loader resolves a single tag against the persistent store on a cache miss.
type Loader interface {
	Lookup(ctx context.Context, tag string) (value *string, found bool, err error)
}

// Getter is what batch reads need from the cache.
type Getter interface {
	Get(ctx context.Context, tag string) (*string, error)
}

// ManyGetter is implemented by getters that can resolve several tags at once.
type ManyGetter interface {
	Getter
	GetMany(ctx context.Context, tags []string) ([]*string, error)
}

// CacheOptions configure a CacheStore. Everything is optional.
type CacheOptions struct {
	Namespace      string            // default "tresor"
	Provider       provider.Provider // nil => provider/local (authoritative)
	Codec          codec.Optional    // nil => JSON
	GenStore       genstore.GenStore // nil => in-process generations
	Loader         Loader            // required when Provider.Lossy()
	Logger         Logger
	Hooks          Hooks
	ComputeSetCost SetCostFunc // default 1
}

// CacheStore maps tag -> optional value. Frames carry the tag's generation;
// a frame is served only while its generation is current.
type CacheStore struct {
	ns       string
	prefix   string
	provider provider.Provider
	codec    codec.Optional
	gen      genstore.GenStore
	loader   Loader
	log      Logger
	hooks    Hooks
	cost     SetCostFunc

	mu    sync.RWMutex // Get/Put share, Warm is exclusive
	locks *keylock.Striped
	ready atomic.Bool
}

var _ ManyGetter = (*CacheStore)(nil)

func NewCacheStore(opts CacheOptions) (*CacheStore, error) {
	c := &CacheStore{
		ns:       coalesce(opts.Namespace, defaultNamespace),
		provider: opts.Provider,
		codec:    opts.Codec,
		gen:      opts.GenStore,
		loader:   opts.Loader,
		locks:    keylock.New(keylock.DefaultStripes),
	}
	c.prefix = "entry:" + c.ns + ":"
	c.log = coalesce[Logger](opts.Logger, NopLogger{})
	c.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})

	if c.provider == nil {
		c.provider = local.New()
	}
	if c.codec == nil {
		c.codec = codec.JSON{}
	}
	if c.gen == nil {
		c.gen = genstore.NewLocal()
	}
	if c.provider.Lossy() && c.loader == nil {
		return nil, fmt.Errorf("tresor: provider may drop entries; a Loader is required")
	}
	if opts.ComputeSetCost != nil {
		c.cost = opts.ComputeSetCost
	} else {
		c.cost = func(string, []byte) int64 { return 1 }
	}
	return c, nil
}

// Ready reports whether the last Warm completed successfully.
func (c *CacheStore) Ready() bool { return c.ready.Load() }

func (c *CacheStore) Close(ctx context.Context) error {
	// Close gen store first (best effort)
	_ = c.gen.Close(ctx)
	return c.provider.Close(ctx)
}

// Warm drops every cached entry and reloads all pairs from src.
// It blocks Get and Put until done. On failure the cache is marked not ready.
func (c *CacheStore) Warm(ctx context.Context, src Scanner) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ready.Store(false)
	start := time.Now()
	if err := c.provider.Reset(ctx, c.prefix); err != nil {
		return 0, internalErr("warm", "provider reset", err)
	}

	n := 0
	err := src.Scan(ctx, func(e store.Entry) error {
		if err := c.install(ctx, e.Tag, e.Value); err != nil {
			return err
		}
		n++
		return nil
	})
	if err != nil {
		var te *Error
		if errors.As(err, &te) {
			return n, err
		}
		return n, storageErr("warm", err)
	}

	took := time.Since(start)
	c.ready.Store(true)
	c.hooks.WarmCompleted(n, took)
	c.log.Info("cache warmed", Fields{"entries": n, "took": took.String()})
	return n, nil
}

// install stamps a warm entry with the current generation. Caller holds mu exclusively.
func (c *CacheStore) install(ctx context.Context, tag string, v *string) error {
	k := c.key(tag)
	g, err := c.gen.Snapshot(ctx, k)
	if err != nil {
		c.hooks.GenError("snapshot", 1, err)
		return internalErr("warm", "generation snapshot", err)
	}
	return c.setFrame(ctx, "warm", k, g, v)
}

// Get returns the cached value for tag; nil for never-written or cleared tags.
func (c *CacheStore) Get(ctx context.Context, tag string) (*string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	k := c.key(tag)
	v, hit, err := c.getFrame(ctx, k)
	if err != nil {
		if c.loader == nil {
			return nil, internalErr("get", "cache read", err)
		}
		c.log.Warn("cache read failed; reading through", Fields{"key": k, "err": err})
		v, _, err := c.lookup(ctx, tag, k)
		return v, err
	}
	if hit || c.loader == nil {
		return v, nil
	}
	return c.readThrough(ctx, tag, k)
}

// GetMany resolves tags in order with a single generation snapshot.
func (c *CacheStore) GetMany(ctx context.Context, tags []string) ([]*string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*string, len(tags))
	if len(tags) == 0 {
		return out, nil
	}
	keys := make([]string, len(tags))
	for i, t := range tags {
		keys[i] = c.key(t)
	}
	gens, err := c.gen.SnapshotMany(ctx, keys)
	if err != nil {
		c.hooks.GenError("snapshot_many", len(keys), err)
		if c.loader == nil {
			return nil, internalErr("get_many", "generation snapshot", err)
		}
		gens = nil
	}

	for i, k := range keys {
		if gens != nil {
			v, hit, err := c.decode(ctx, k, gens[k])
			if err == nil && hit {
				out[i] = v
				continue
			}
			if err != nil && c.loader == nil {
				return nil, internalErr("get_many", "cache read", err)
			}
			if err == nil && c.loader == nil {
				continue
			}
		}
		v, err := c.readThrough(ctx, tags[i], k)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Put installs v for tag after a confirmed persistent write.
func (c *CacheStore) Put(ctx context.Context, tag string, v *string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	k := c.key(tag)
	unlock := c.locks.Lock(k)
	defer unlock()

	g, err := c.gen.Bump(ctx, k)
	if err != nil {
		c.hooks.GenError("bump", 1, err)
		// the old frame would still validate; drop it
		_ = c.provider.Del(ctx, k)
		return internalErr("put", "generation bump", err)
	}
	return c.setFrame(ctx, "put", k, g, v)
}

// Invalidate drops the cached frame for tag so the next Get reads through.
func (c *CacheStore) Invalidate(ctx context.Context, tag string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	k := c.key(tag)
	unlock := c.locks.Lock(k)
	defer unlock()

	if _, err := c.gen.Bump(ctx, k); err != nil {
		c.hooks.GenError("bump", 1, err)
	}
	if err := c.provider.Del(ctx, k); err != nil {
		return internalErr("invalidate", "provider delete", err)
	}
	return nil
}

func (c *CacheStore) setFrame(ctx context.Context, op, k string, g uint64, v *string) error {
	payload, err := c.codec.Encode(v)
	if err != nil {
		return internalErr(op, "encode value", err)
	}
	frame := wire.EncodeEntry(g, payload)
	ok, err := c.provider.Set(ctx, k, frame, c.cost(k, frame), 0)
	if err != nil {
		_ = c.provider.Del(ctx, k)
		return internalErr(op, "provider set", err)
	}
	if !ok {
		c.hooks.ProviderSetRejected(k)
		if !c.provider.Lossy() {
			return internalErr(op, "provider rejected set", nil)
		}
		c.log.Debug("set rejected by provider (pressure)", Fields{"key": k})
	}
	return nil
}

// getFrame returns (value, hit, err). Stale or corrupt frames are deleted and
// reported as misses.
func (c *CacheStore) getFrame(ctx context.Context, k string) (*string, bool, error) {
	cur, err := c.gen.Snapshot(ctx, k)
	if err != nil {
		c.hooks.GenError("snapshot", 1, err)
		return nil, false, err
	}
	return c.decode(ctx, k, cur)
}

func (c *CacheStore) decode(ctx context.Context, k string, cur uint64) (*string, bool, error) {
	raw, ok, err := c.provider.Get(ctx, k)
	if err != nil || !ok {
		return nil, false, err
	}
	v, reason := c.parse(raw, cur)
	if reason == "" {
		return v, true, nil
	}

	// recheck under the tag lock so a frame installed by a concurrent Put survives
	unlock := c.locks.Lock(k)
	defer unlock()
	if cur, err = c.gen.Snapshot(ctx, k); err != nil {
		c.hooks.GenError("snapshot", 1, err)
		return nil, false, err
	}
	raw, ok, err = c.provider.Get(ctx, k)
	if err != nil || !ok {
		return nil, false, err
	}
	if v, reason = c.parse(raw, cur); reason == "" {
		return v, true, nil
	}
	_ = c.provider.Del(ctx, k)
	c.hooks.SelfHeal(k, reason)
	return nil, false, nil
}

// parse returns the value, or the self-heal reason when the frame is unusable.
func (c *CacheStore) parse(raw []byte, cur uint64) (*string, string) {
	g, payload, err := wire.DecodeEntry(raw)
	if err != nil {
		return nil, "corrupt"
	}
	if g != cur {
		return nil, "gen_mismatch"
	}
	v, err := c.codec.Decode(payload)
	if err != nil {
		return nil, "value_decode"
	}
	return v, ""
}

// readThrough looks tag up in the loader and fills the cache unless a Put
// moved the generation in between.
func (c *CacheStore) readThrough(ctx context.Context, tag, k string) (*string, error) {
	obs, err := c.gen.Snapshot(ctx, k)
	if err != nil {
		c.hooks.GenError("snapshot", 1, err)
		v, _, err := c.lookup(ctx, tag, k)
		return v, err
	}
	v, _, err := c.lookup(ctx, tag, k)
	if err != nil {
		return nil, err
	}

	unlock := c.locks.Lock(k)
	defer unlock()
	cur, err := c.gen.Snapshot(ctx, k)
	if err != nil || cur != obs {
		c.log.Debug("read-through fill skipped (gen moved)", Fields{"key": k, "obs": obs})
		return v, nil
	}
	if err := c.setFrame(ctx, "get", k, obs, v); err != nil {
		c.log.Warn("read-through fill failed", Fields{"key": k, "err": err})
	}
	return v, nil
}

func (c *CacheStore) lookup(ctx context.Context, tag, k string) (*string, bool, error) {
	v, found, err := c.loader.Lookup(ctx, tag)
	if err != nil {
		return nil, false, storageErr("get", err)
	}
	c.hooks.ReadThrough(k, found)
	return v, found, nil
}

func (c *CacheStore) key(tag string) string {
	// isolate by namespace
	return c.prefix + tag
}
