package tresor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/unkn0wn-root/tresor/codec"
	"github.com/unkn0wn-root/tresor/genstore"
	"github.com/unkn0wn-root/tresor/internal/wire"
	pr "github.com/unkn0wn-root/tresor/provider"
	"github.com/unkn0wn-root/tresor/store"
)

// memProvider is a lossy-capable in-memory provider for tests.
type memProvider struct {
	mu     sync.Mutex
	m      map[string][]byte
	lossy  bool
	reject bool
	getErr error
}

var _ pr.Provider = (*memProvider)(nil)

func newMemProvider() *memProvider { return &memProvider{m: make(map[string][]byte)} }

func (p *memProvider) Get(_ context.Context, key string) ([]byte, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.getErr != nil {
		return nil, false, p.getErr
	}
	v, ok := p.m[key]
	return v, ok, nil
}

func (p *memProvider) Set(_ context.Context, key string, value []byte, _ int64, _ time.Duration) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.reject {
		return false, nil
	}
	p.m[key] = append([]byte(nil), value...)
	return true, nil
}

func (p *memProvider) Del(_ context.Context, key string) error {
	p.mu.Lock()
	delete(p.m, key)
	p.mu.Unlock()
	return nil
}

func (p *memProvider) Reset(_ context.Context, prefix string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for k := range p.m {
		if strings.HasPrefix(k, prefix) {
			delete(p.m, k)
		}
	}
	return nil
}

func (p *memProvider) Lossy() bool                   { return p.lossy }
func (p *memProvider) Close(_ context.Context) error { return nil }

func (p *memProvider) evict(key string) { _ = p.Del(context.Background(), key) }

func (p *memProvider) raw(key string) ([]byte, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.m[key]
	return v, ok
}

func (p *memProvider) put(key string, b []byte) {
	p.mu.Lock()
	p.m[key] = b
	p.mu.Unlock()
}

// countingLoader wraps a map and counts lookups.
type countingLoader struct {
	mu    sync.Mutex
	m     map[string]*string
	calls atomic.Int64
	err   error
	// hook runs inside Lookup before the value is read.
	during func()
}

func (l *countingLoader) Lookup(_ context.Context, tag string) (*string, bool, error) {
	l.calls.Add(1)
	if l.during != nil {
		l.during()
	}
	if l.err != nil {
		return nil, false, l.err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	v, ok := l.m[tag]
	return v, ok, nil
}

type recHooks struct {
	NopHooks
	mu       sync.Mutex
	heals    []string
	rejected int
	through  int
	warmed   int
}

func (h *recHooks) SelfHeal(_ string, reason string) {
	h.mu.Lock()
	h.heals = append(h.heals, reason)
	h.mu.Unlock()
}

func (h *recHooks) ProviderSetRejected(string) {
	h.mu.Lock()
	h.rejected++
	h.mu.Unlock()
}

func (h *recHooks) ReadThrough(string, bool) {
	h.mu.Lock()
	h.through++
	h.mu.Unlock()
}

func (h *recHooks) WarmCompleted(n int, _ time.Duration) {
	h.mu.Lock()
	h.warmed = n
	h.mu.Unlock()
}

type sliceScanner []store.Entry

func (s sliceScanner) Scan(ctx context.Context, fn func(store.Entry) error) error {
	for _, e := range s {
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

type failScanner struct{ err error }

func (f failScanner) Scan(context.Context, func(store.Entry) error) error { return f.err }

// failingGen fails on demand.
type failingGen struct {
	genstore.GenStore
	bumpErr error
	snapErr error
}

func (g *failingGen) Snapshot(ctx context.Context, k string) (uint64, error) {
	if g.snapErr != nil {
		return 0, g.snapErr
	}
	return g.GenStore.Snapshot(ctx, k)
}

func (g *failingGen) SnapshotMany(ctx context.Context, ks []string) (map[string]uint64, error) {
	if g.snapErr != nil {
		return nil, g.snapErr
	}
	return g.GenStore.SnapshotMany(ctx, ks)
}

func (g *failingGen) Bump(ctx context.Context, k string) (uint64, error) {
	if g.bumpErr != nil {
		return 0, g.bumpErr
	}
	return g.GenStore.Bump(ctx, k)
}

func sp(s string) *string { return &s }

func newTestCache(t *testing.T, opt func(*CacheOptions)) *CacheStore {
	t.Helper()
	opts := CacheOptions{Namespace: "t"}
	if opt != nil {
		opt(&opts)
	}
	c, err := NewCacheStore(opts)
	if err != nil {
		t.Fatalf("NewCacheStore: %v", err)
	}
	return c
}

func mustGet(t *testing.T, c *CacheStore, tag string) *string {
	t.Helper()
	v, err := c.Get(context.Background(), tag)
	if err != nil {
		t.Fatalf("Get(%s): %v", tag, err)
	}
	return v
}

func eq(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// ==============================
// Warm / Get / Put
// ==============================

func TestWarmGetPut(t *testing.T) {
	ctx := context.Background()
	h := &recHooks{}
	c := newTestCache(t, func(o *CacheOptions) { o.Hooks = h })

	if c.Ready() {
		t.Fatalf("cache must not be ready before warm")
	}
	n, err := c.Warm(ctx, sliceScanner{
		{Tag: "a", Value: sp("1")},
		{Tag: "b", Value: nil},
		{Tag: "c", Value: sp("")},
	})
	if err != nil || n != 3 {
		t.Fatalf("Warm: n=%d err=%v", n, err)
	}
	if !c.Ready() || h.warmed != 3 {
		t.Fatalf("ready=%v warmed=%d", c.Ready(), h.warmed)
	}

	if v := mustGet(t, c, "a"); !eq(v, sp("1")) {
		t.Fatalf("a: %v", v)
	}
	if v := mustGet(t, c, "b"); v != nil {
		t.Fatalf("b should be absent")
	}
	if v := mustGet(t, c, "c"); !eq(v, sp("")) {
		t.Fatalf("c: empty string must survive as a value")
	}
	if v := mustGet(t, c, "never"); v != nil {
		t.Fatalf("never-written should be nil")
	}

	if err := c.Put(ctx, "a", sp("2")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if v := mustGet(t, c, "a"); !eq(v, sp("2")) {
		t.Fatalf("read-your-write: %v", v)
	}
	if err := c.Put(ctx, "a", nil); err != nil {
		t.Fatalf("Put nil: %v", err)
	}
	if v := mustGet(t, c, "a"); v != nil {
		t.Fatalf("cleared value should read nil")
	}
}

func TestWarmReplacesContents(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, nil)
	if _, err := c.Warm(ctx, sliceScanner{{Tag: "old", Value: sp("x")}}); err != nil {
		t.Fatal(err)
	}
	_ = c.Put(ctx, "extra", sp("y"))
	if _, err := c.Warm(ctx, sliceScanner{{Tag: "new", Value: sp("z")}}); err != nil {
		t.Fatal(err)
	}
	if mustGet(t, c, "old") != nil || mustGet(t, c, "extra") != nil {
		t.Fatalf("re-warm must drop entries not in the source")
	}
	if v := mustGet(t, c, "new"); !eq(v, sp("z")) {
		t.Fatalf("new: %v", v)
	}
}

func TestWarmFailureMarksNotReady(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, nil)
	if _, err := c.Warm(ctx, sliceScanner{}); err != nil {
		t.Fatal(err)
	}
	_, err := c.Warm(ctx, failScanner{err: errors.New("connection refused")})
	if !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("want storage unavailable, got %v", err)
	}
	if c.Ready() {
		t.Fatalf("failed warm must clear readiness")
	}
}

func TestLossyProviderRequiresLoader(t *testing.T) {
	mp := newMemProvider()
	mp.lossy = true
	if _, err := NewCacheStore(CacheOptions{Provider: mp}); err == nil {
		t.Fatalf("expected error for lossy provider without loader")
	}
}

// ==============================
// Self-heal
// ==============================

func TestSelfHealCorruptFrame(t *testing.T) {
	ctx := context.Background()
	mp := newMemProvider()
	h := &recHooks{}
	c := newTestCache(t, func(o *CacheOptions) { o.Provider = mp; o.Hooks = h })
	_ = c.Put(ctx, "k", sp("v"))

	mp.put(c.key("k"), []byte("garbage"))
	if v := mustGet(t, c, "k"); v != nil {
		t.Fatalf("corrupt frame must read as miss")
	}
	if _, ok := mp.raw(c.key("k")); ok {
		t.Fatalf("corrupt frame must be deleted")
	}
	if len(h.heals) != 1 || h.heals[0] != "corrupt" {
		t.Fatalf("heals: %v", h.heals)
	}
}

func TestSelfHealStaleGeneration(t *testing.T) {
	ctx := context.Background()
	mp := newMemProvider()
	h := &recHooks{}
	c := newTestCache(t, func(o *CacheOptions) { o.Provider = mp; o.Hooks = h })
	_ = c.Put(ctx, "k", sp("v1"))
	stale, _ := mp.raw(c.key("k"))
	_ = c.Put(ctx, "k", sp("v2"))

	mp.put(c.key("k"), stale)
	if v := mustGet(t, c, "k"); v != nil {
		t.Fatalf("stale frame must not be served, got %v", *v)
	}
	if len(h.heals) != 1 || h.heals[0] != "gen_mismatch" {
		t.Fatalf("heals: %v", h.heals)
	}
}

func TestSelfHealValueDecode(t *testing.T) {
	ctx := context.Background()
	mp := newMemProvider()
	h := &recHooks{}
	c := newTestCache(t, func(o *CacheOptions) { o.Provider = mp; o.Hooks = h })
	_ = c.Put(ctx, "k", sp("v"))

	g, _ := c.gen.Snapshot(ctx, c.key("k"))
	mp.put(c.key("k"), wire.EncodeEntry(g, []byte("{not json")))
	if v := mustGet(t, c, "k"); v != nil {
		t.Fatalf("undecodable payload must read as miss")
	}
	if len(h.heals) != 1 || h.heals[0] != "value_decode" {
		t.Fatalf("heals: %v", h.heals)
	}
}

// ==============================
// Read-through
// ==============================

func TestReadThroughFillsAndCachesNegatives(t *testing.T) {
	mp := newMemProvider()
	mp.lossy = true
	ld := &countingLoader{m: map[string]*string{"a": sp("1")}}
	c := newTestCache(t, func(o *CacheOptions) { o.Provider = mp; o.Loader = ld })

	if v := mustGet(t, c, "a"); !eq(v, sp("1")) {
		t.Fatalf("a: %v", v)
	}
	if v := mustGet(t, c, "a"); !eq(v, sp("1")) {
		t.Fatalf("a (cached): %v", v)
	}
	if got := ld.calls.Load(); got != 1 {
		t.Fatalf("loader calls after hit: %d", got)
	}

	if v := mustGet(t, c, "missing"); v != nil {
		t.Fatalf("missing: %v", v)
	}
	_ = mustGet(t, c, "missing")
	if got := ld.calls.Load(); got != 2 {
		t.Fatalf("negative lookup should be cached, calls=%d", got)
	}

	mp.evict(c.key("a"))
	if v := mustGet(t, c, "a"); !eq(v, sp("1")) {
		t.Fatalf("evicted entry must be refetched, got %v", v)
	}
	if got := ld.calls.Load(); got != 3 {
		t.Fatalf("calls after eviction: %d", got)
	}
}

func TestReadThroughSkipsFillWhenGenerationMoves(t *testing.T) {
	ctx := context.Background()
	mp := newMemProvider()
	mp.lossy = true
	ld := &countingLoader{m: map[string]*string{"k": sp("old")}}
	c := newTestCache(t, func(o *CacheOptions) { o.Provider = mp; o.Loader = ld })

	// A write lands while the loader is in flight.
	ld.during = func() {
		ld.during = nil
		ld.mu.Lock()
		ld.m["k"] = sp("new")
		ld.mu.Unlock()
		if _, err := c.gen.Bump(ctx, c.key("k")); err != nil {
			t.Errorf("bump: %v", err)
		}
	}
	_ = mustGet(t, c, "k")
	if _, ok := mp.raw(c.key("k")); ok {
		t.Fatalf("fill must be skipped after the generation moved")
	}
	if v := mustGet(t, c, "k"); !eq(v, sp("new")) {
		t.Fatalf("next read must see the new value, got %v", v)
	}
}

func TestReadThroughLoaderError(t *testing.T) {
	mp := newMemProvider()
	mp.lossy = true
	ld := &countingLoader{err: errors.New("db down")}
	c := newTestCache(t, func(o *CacheOptions) { o.Provider = mp; o.Loader = ld })
	_, err := c.Get(context.Background(), "x")
	if !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("want storage unavailable, got %v", err)
	}
}

func TestProviderErrorFallsBackToLoader(t *testing.T) {
	mp := newMemProvider()
	mp.lossy = true
	mp.getErr = errors.New("redis timeout")
	ld := &countingLoader{m: map[string]*string{"k": sp("v")}}
	c := newTestCache(t, func(o *CacheOptions) { o.Provider = mp; o.Loader = ld })
	if v := mustGet(t, c, "k"); !eq(v, sp("v")) {
		t.Fatalf("fallback: %v", v)
	}
}

func TestProviderErrorWithoutLoader(t *testing.T) {
	mp := newMemProvider()
	mp.getErr = errors.New("boom")
	c := newTestCache(t, func(o *CacheOptions) { o.Provider = mp })
	if _, err := c.Get(context.Background(), "k"); KindOf(err) != KindInternal || err == nil {
		t.Fatalf("want internal error, got %v", err)
	}
}

// ==============================
// Put failure paths
// ==============================

func TestPutBumpFailureDropsFrame(t *testing.T) {
	ctx := context.Background()
	mp := newMemProvider()
	fg := &failingGen{GenStore: genstore.NewLocal()}
	c := newTestCache(t, func(o *CacheOptions) { o.Provider = mp; o.GenStore = fg })
	_ = c.Put(ctx, "k", sp("v1"))

	fg.bumpErr = errors.New("gen down")
	if err := c.Put(ctx, "k", sp("v2")); !errors.Is(err, ErrInternal) {
		t.Fatalf("want internal error, got %v", err)
	}
	if _, ok := mp.raw(c.key("k")); ok {
		t.Fatalf("old frame must be dropped when the bump fails")
	}
}

func TestPutRejectedByAuthoritativeProvider(t *testing.T) {
	mp := newMemProvider()
	mp.reject = true
	h := &recHooks{}
	c := newTestCache(t, func(o *CacheOptions) { o.Provider = mp; o.Hooks = h })
	if err := c.Put(context.Background(), "k", sp("v")); err == nil {
		t.Fatalf("authoritative provider rejecting a set must fail the put")
	}
	if h.rejected != 1 {
		t.Fatalf("rejected hook: %d", h.rejected)
	}
}

func TestPutRejectedByLossyProviderIsTolerated(t *testing.T) {
	mp := newMemProvider()
	mp.lossy = true
	mp.reject = true
	ld := &countingLoader{m: map[string]*string{"k": sp("v")}}
	c := newTestCache(t, func(o *CacheOptions) { o.Provider = mp; o.Loader = ld })
	if err := c.Put(context.Background(), "k", sp("v")); err != nil {
		t.Fatalf("lossy reject should be tolerated: %v", err)
	}
	if v := mustGet(t, c, "k"); !eq(v, sp("v")) {
		t.Fatalf("read-through after reject: %v", v)
	}
}

func TestGenSnapshotFailureWithoutLoader(t *testing.T) {
	ctx := context.Background()
	fg := &failingGen{GenStore: genstore.NewLocal()}
	c := newTestCache(t, func(o *CacheOptions) { o.GenStore = fg })
	_ = c.Put(ctx, "k", sp("v"))
	fg.snapErr = errors.New("gen down")
	if _, err := c.Get(ctx, "k"); err == nil {
		t.Fatalf("snapshot failure must surface without a loader")
	}
	if _, err := c.GetMany(ctx, []string{"k"}); err == nil {
		t.Fatalf("snapshot failure must surface from GetMany without a loader")
	}
}

// ==============================
// GetMany
// ==============================

func TestGetManyOrderAndMisses(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, nil)
	_, _ = c.Warm(ctx, sliceScanner{{Tag: "a", Value: sp("A")}, {Tag: "c", Value: sp("C")}})

	vals, err := c.GetMany(ctx, []string{"c", "b", "a"})
	if err != nil {
		t.Fatal(err)
	}
	if !eq(vals[0], sp("C")) || vals[1] != nil || !eq(vals[2], sp("A")) {
		t.Fatalf("GetMany: %v", vals)
	}
	if vals, _ := c.GetMany(ctx, nil); len(vals) != 0 {
		t.Fatalf("empty GetMany")
	}
}

func TestGetManyReadThrough(t *testing.T) {
	ctx := context.Background()
	mp := newMemProvider()
	mp.lossy = true
	ld := &countingLoader{m: map[string]*string{"a": sp("A")}}
	c := newTestCache(t, func(o *CacheOptions) { o.Provider = mp; o.Loader = ld })
	vals, err := c.GetMany(ctx, []string{"a", "z"})
	if err != nil {
		t.Fatal(err)
	}
	if !eq(vals[0], sp("A")) || vals[1] != nil {
		t.Fatalf("GetMany: %v", vals)
	}
}

// ==============================
// Codecs and concurrency
// ==============================

func TestCacheWithEachCodec(t *testing.T) {
	for _, name := range []string{codec.NameJSON, codec.NameCBOR, codec.NameMsgpack, codec.NameProto} {
		t.Run(name, func(t *testing.T) {
			cd, err := codec.ByName(name)
			if err != nil {
				t.Fatal(err)
			}
			c := newTestCache(t, func(o *CacheOptions) { o.Codec = cd })
			ctx := context.Background()
			_ = c.Put(ctx, "v", sp("3+"))
			_ = c.Put(ctx, "e", sp(""))
			_ = c.Put(ctx, "n", nil)
			if !eq(mustGet(t, c, "v"), sp("3+")) || !eq(mustGet(t, c, "e"), sp("")) || mustGet(t, c, "n") != nil {
				t.Fatalf("codec %s round trip failed", name)
			}
		})
	}
}

func TestConcurrentPutGetConverges(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, nil)
	_, _ = c.Warm(ctx, sliceScanner{})

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				_ = c.Put(ctx, "hot", sp("x"))
			}
		}()
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				if v, err := c.Get(ctx, "hot"); err != nil || (v != nil && *v != "x") {
					t.Errorf("Get: v=%v err=%v", v, err)
					return
				}
			}
		}()
	}
	wg.Wait()
	if !eq(mustGet(t, c, "hot"), sp("x")) {
		t.Fatalf("final value lost")
	}
}
