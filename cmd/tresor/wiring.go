package main

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/tresor"
	"github.com/unkn0wn-root/tresor/codec"
	"github.com/unkn0wn-root/tresor/config"
	"github.com/unkn0wn-root/tresor/genstore"
	tlogrus "github.com/unkn0wn-root/tresor/log/logrus"
	tslog "github.com/unkn0wn-root/tresor/log/slog"
	tzap "github.com/unkn0wn-root/tresor/log/zap"
	"github.com/unkn0wn-root/tresor/provider"
	"github.com/unkn0wn-root/tresor/provider/bigcache"
	"github.com/unkn0wn-root/tresor/provider/local"
	rprov "github.com/unkn0wn-root/tresor/provider/redis"
	"github.com/unkn0wn-root/tresor/provider/ristretto"
	"github.com/unkn0wn-root/tresor/sloghooks"
	"github.com/unkn0wn-root/tresor/store"
	"github.com/unkn0wn-root/tresor/store/memstore"
	"github.com/unkn0wn-root/tresor/store/neo4jstore"
	"github.com/unkn0wn-root/tresor/store/pgstore"
)

// logging is the configured logger plus the backend-specific pieces serve needs.
type logging struct {
	tresor.Logger
	// hooks logs cache events; nil unless the backend is slog.
	hooks tresor.Hooks
	sync  func() error
}

func buildLogger(cfg config.LogConfig) (*logging, error) {
	switch cfg.Backend {
	case "zap":
		l, err := tzap.New(cfg.Level, cfg.Format)
		if err != nil {
			return nil, err
		}
		return &logging{Logger: l, sync: l.Sync}, nil
	case "logrus":
		l, err := tlogrus.New(cfg.Level, cfg.Format)
		if err != nil {
			return nil, err
		}
		return &logging{Logger: l}, nil
	case "slog":
		l, err := tslog.New(cfg.Level, cfg.Format)
		if err != nil {
			return nil, err
		}
		h := sloghooks.New(l.L, sloghooks.Options{SelfHealEvery: 10, ReadThroughEvery: 100})
		return &logging{Logger: l, hooks: h}, nil
	default:
		return nil, fmt.Errorf("unknown log backend %q", cfg.Backend)
	}
}

func buildStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Backend {
	case "memory":
		return memstore.New(), nil
	case "neo4j":
		return neo4jstore.New(neo4jstore.Config{
			URI:      cfg.Neo4j.URI,
			Username: cfg.Neo4j.Username,
			Password: cfg.Neo4j.Password,
			Database: cfg.Neo4j.Database,
		})
	case "postgres":
		return pgstore.Open(ctx, cfg.Postgres.DSN)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// cacheParts holds what buildCache opened so serve can release it.
type cacheParts struct {
	cache *tresor.CacheStore
	rdb   goredis.UniversalClient
}

// closeRedis releases the shared client. The cache itself is closed by the
// service that owns it.
func (p *cacheParts) closeRedis() error {
	if p.rdb == nil {
		return nil
	}
	return p.rdb.Close()
}

// buildCache assembles the cache from config. Lossy providers read through
// to loader, which is normally the persistent store.
func buildCache(ctx context.Context, cfg config.CacheConfig, loader tresor.Loader, log tresor.Logger, hooks tresor.Hooks) (*cacheParts, error) {
	parts := &cacheParts{}
	redisClient := func() goredis.UniversalClient {
		if parts.rdb == nil {
			parts.rdb = goredis.NewClient(&goredis.Options{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
		}
		return parts.rdb
	}

	cdc, err := codec.ByName(cfg.Codec)
	if err != nil {
		return nil, err
	}
	cdc = codec.Limit(cdc, cfg.MaxValueBytes)

	var gen genstore.GenStore
	switch cfg.GenStore {
	case "", "local":
		gen = genstore.NewLocal()
	case "redis":
		gen = genstore.NewRedis(redisClient(), cfg.Namespace, false)
	default:
		return nil, fmt.Errorf("unknown genstore %q", cfg.GenStore)
	}

	var (
		prov provider.Provider
		cost tresor.SetCostFunc
	)
	switch cfg.Provider {
	case "", "local":
		prov = local.New()
	case "ristretto":
		prov, err = ristretto.New(ristretto.Config{
			NumCounters: cfg.Ristretto.NumCounters,
			MaxCost:     cfg.Ristretto.MaxCost,
			BufferItems: cfg.Ristretto.BufferItems,
		})
		cost = func(_ string, raw []byte) int64 { return int64(len(raw)) }
	case "bigcache":
		prov, err = bigcache.New(ctx, bigcache.Config{
			LifeWindow:         cfg.BigCache.LifeWindow,
			HardMaxCacheSizeMB: cfg.BigCache.HardMaxCacheSizeMB,
		})
	case "redis":
		prov, err = rprov.New(rprov.Config{Client: redisClient()})
	default:
		err = fmt.Errorf("unknown cache provider %q", cfg.Provider)
	}
	if err != nil {
		_ = gen.Close(ctx)
		_ = parts.closeRedis()
		return nil, err
	}

	opts := tresor.CacheOptions{
		Namespace:      cfg.Namespace,
		Provider:       prov,
		Codec:          cdc,
		GenStore:       gen,
		Logger:         log,
		Hooks:          hooks,
		ComputeSetCost: cost,
	}
	if prov.Lossy() {
		opts.Loader = loader
	}
	parts.cache, err = tresor.NewCacheStore(opts)
	if err != nil {
		_ = errors.Join(prov.Close(ctx), gen.Close(ctx), parts.closeRedis())
		return nil, err
	}
	return parts, nil
}
