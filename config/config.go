// Package config loads the tresor server configuration.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config aggregates configuration for the server.
type Config struct {
	// Salt is mixed into every tag and user hash. Changing it orphans all data.
	Salt  string      `mapstructure:"salt"`
	Log   LogConfig   `mapstructure:"log"`
	HTTP  HTTPConfig  `mapstructure:"http"`
	Auth  AuthConfig  `mapstructure:"auth"`
	Store StoreConfig `mapstructure:"store"`
	Cache CacheConfig `mapstructure:"cache"`
}

type LogConfig struct {
	Backend string `mapstructure:"backend"` // zap | logrus | slog
	Level   string `mapstructure:"level"`
	Format  string `mapstructure:"format"` // json | console/text
}

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// Development switches CORS to DevOrigin.
	Development bool   `mapstructure:"development"`
	DevOrigin   string `mapstructure:"dev_origin"`
	Origin      string `mapstructure:"origin"`
	MaxBody     int    `mapstructure:"max_body"`
	MaxString   int    `mapstructure:"max_string"`
	MaxManyBody int    `mapstructure:"max_many_body"`
	Metrics     bool   `mapstructure:"metrics"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

type StoreConfig struct {
	Backend       string         `mapstructure:"backend"` // memory | neo4j | postgres
	SetupAttempts uint           `mapstructure:"setup_attempts"`
	Neo4j         Neo4jConfig    `mapstructure:"neo4j"`
	Postgres      PostgresConfig `mapstructure:"postgres"`
}

type Neo4jConfig struct {
	URI      string `mapstructure:"uri"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

type CacheConfig struct {
	Namespace     string          `mapstructure:"namespace"`
	Provider      string          `mapstructure:"provider"` // local | ristretto | bigcache | redis
	Codec         string          `mapstructure:"codec"`    // json | cbor | msgpack | proto
	GenStore      string          `mapstructure:"genstore"` // local | redis
	WarmAttempts  uint            `mapstructure:"warm_attempts"`
	MaxBatchCells int             `mapstructure:"max_batch_cells"`
	// MaxValueBytes bounds encoded values read from or written to the provider.
	MaxValueBytes int             `mapstructure:"max_value_bytes"`
	Redis         RedisConfig     `mapstructure:"redis"`
	Ristretto     RistrettoConfig `mapstructure:"ristretto"`
	BigCache      BigCacheConfig  `mapstructure:"bigcache"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type RistrettoConfig struct {
	NumCounters int64 `mapstructure:"num_counters"`
	MaxCost     int64 `mapstructure:"max_cost"`
	BufferItems int64 `mapstructure:"buffer_items"`
}

type BigCacheConfig struct {
	LifeWindow         time.Duration `mapstructure:"life_window"`
	HardMaxCacheSizeMB int           `mapstructure:"hard_max_cache_size_mb"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Log: LogConfig{Backend: "zap", Level: "info", Format: "json"},
		HTTP: HTTPConfig{
			Addr:            ":3000",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			DevOrigin:       "http://localhost:8025",
			MaxBody:         512,
			MaxString:       512,
			MaxManyBody:     1024 * 1024,
			Metrics:         true,
		},
		Store: StoreConfig{
			Backend:       "memory",
			SetupAttempts: 10,
			Neo4j:         Neo4jConfig{URI: "bolt://neo4j:7687"},
		},
		Cache: CacheConfig{
			Namespace:     "tresor",
			Provider:      "local",
			Codec:         "json",
			GenStore:      "local",
			WarmAttempts:  10,
			MaxBatchCells: 100_000,
			MaxValueBytes: 64 << 10,
			Ristretto:     RistrettoConfig{NumCounters: 1e6, MaxCost: 1 << 26, BufferItems: 64},
			BigCache:      BigCacheConfig{LifeWindow: time.Hour},
		},
	}
}

// Load reads configuration from an optional file and environment variables.
// Environment variables use the prefix "TRESOR" and the dot character in keys
// is replaced by an underscore: "store.neo4j.uri" becomes "TRESOR_STORE_NEO4J_URI".
// An empty path searches for ./tresor.{yaml,json,toml}.
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("tresor")
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix("TRESOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &nf) {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
}

// Validate reports settings the server cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.Salt == "" {
		errs = append(errs, errors.New("salt is required"))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required"))
	}
	switch c.Store.Backend {
	case "memory":
	case "neo4j":
		if c.Store.Neo4j.URI == "" {
			errs = append(errs, errors.New("store.neo4j.uri is required"))
		}
	case "postgres":
		if c.Store.Postgres.DSN == "" {
			errs = append(errs, errors.New("store.postgres.dsn is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store.backend %q", c.Store.Backend))
	}
	switch c.Cache.Provider {
	case "local", "ristretto", "bigcache":
	case "redis":
		if c.Cache.Redis.Addr == "" {
			errs = append(errs, errors.New("cache.redis.addr is required for the redis provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown cache.provider %q", c.Cache.Provider))
	}
	switch c.Cache.GenStore {
	case "local":
	case "redis":
		if c.Cache.Redis.Addr == "" {
			errs = append(errs, errors.New("cache.redis.addr is required for the redis genstore"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown cache.genstore %q", c.Cache.GenStore))
	}
	switch c.Log.Backend {
	case "zap", "logrus", "slog":
	default:
		errs = append(errs, fmt.Errorf("unknown log.backend %q", c.Log.Backend))
	}
	if c.HTTP.MaxBody <= 0 || c.HTTP.MaxString <= 0 || c.HTTP.MaxManyBody <= 0 {
		errs = append(errs, errors.New("http body and string limits must be positive"))
	}
	return errors.Join(errs...)
}

// bindEnvs registers all keys within cfg so that viper will look up
// corresponding environment variables when unmarshalling.
func bindEnvs(v *viper.Viper, cfg any, parts ...string) {
	val := reflect.ValueOf(cfg)
	typ := reflect.TypeOf(cfg)
	if typ.Kind() == reflect.Ptr {
		val = val.Elem()
		typ = typ.Elem()
	}
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" {
			tag = strings.ToLower(f.Name)
		}
		key := append(append([]string(nil), parts...), tag)
		if f.Type.Kind() == reflect.Struct {
			bindEnvs(v, val.Field(i).Interface(), key...)
			continue
		}
		_ = v.BindEnv(strings.Join(key, "."))
	}
}
