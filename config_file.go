package authclient

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/MrEthical07/authclient/tokenstore"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"
)

// Environment variables applied by LoadConfigFile after the YAML document.
const (
	EnvBaseURL         = "AUTHCLIENT_BASE_URL"
	EnvTimeout         = "AUTHCLIENT_TIMEOUT"
	EnvStore           = "AUTHCLIENT_STORE"
	EnvStoreDir        = "AUTHCLIENT_STORE_DIR"
	EnvRedisAddr       = "AUTHCLIENT_REDIS_ADDR"
	EnvSQLitePath      = "AUTHCLIENT_SQLITE_PATH"
	EnvStoreKey        = "AUTHCLIENT_STORE_KEY"
	EnvLogLevel        = "AUTHCLIENT_LOG_LEVEL"
	EnvRefreshCoalesce = "AUTHCLIENT_REFRESH_COALESCE"
)

// LoadConfigFile reads a YAML config on top of DefaultConfig, then applies .env and environment
// overrides. A missing file is not an error. path may be empty.
func LoadConfigFile(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config yaml: %w", err)
			}
		} else if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg, err := applyEnv(cfg)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg Config) (Config, error) {
	if val := os.Getenv(EnvBaseURL); val != "" {
		cfg.HTTP.BaseURL = val
	}
	if val := os.Getenv(EnvTimeout); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", EnvTimeout, err)
		}
		cfg.HTTP.Timeout = d
	}
	if val := os.Getenv(EnvStore); val != "" {
		cfg.Store.Backend = val
	}
	if val := os.Getenv(EnvStoreDir); val != "" {
		cfg.Store.Dir = val
	}
	if val := os.Getenv(EnvRedisAddr); val != "" {
		cfg.Store.RedisAddr = val
	}
	if val := os.Getenv(EnvSQLitePath); val != "" {
		cfg.Store.SQLitePath = val
	}
	if val := os.Getenv(EnvStoreKey); val != "" {
		cfg.Store.EncryptionKey = val
	}
	if val := os.Getenv(EnvLogLevel); val != "" {
		cfg.Log.Level = val
	}
	if val := os.Getenv(EnvRefreshCoalesce); val != "" {
		b, err := strconv.ParseBool(val)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", EnvRefreshCoalesce, err)
		}
		cfg.Refresh.Coalesce = b
	}
	return cfg, nil
}

func decodeStoreKey(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, errors.New("Store EncryptionKey must be base64")
	}
	if len(key) != 32 {
		return nil, errors.New("Store EncryptionKey must decode to 32 bytes")
	}
	return key, nil
}

// OpenStore builds the backend named by cfg.Backend. The returned close function releases any
// connection the store holds and is never nil.
func OpenStore(ctx context.Context, cfg StoreConfig) (tokenstore.Store, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Backend {
	case "", StoreMemory:
		return tokenstore.NewMemoryStore(), noop, nil

	case StoreFile:
		var key []byte
		if cfg.EncryptionKey != "" {
			k, err := decodeStoreKey(cfg.EncryptionKey)
			if err != nil {
				return nil, noop, err
			}
			key = k
		}
		fs, err := tokenstore.NewFileStore(cfg.Dir, cfg.Instance, key)
		if err != nil {
			return nil, noop, err
		}
		return fs, noop, nil

	case StoreRedis:
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, noop, fmt.Errorf("%w: redis ping: %v", tokenstore.ErrStoreUnavailable, err)
		}
		rs, err := tokenstore.NewRedisStore(rdb, cfg.RedisPrefix, cfg.Instance, cfg.RedisTTL)
		if err != nil {
			_ = rdb.Close()
			return nil, noop, err
		}
		return rs, rdb.Close, nil

	case StoreSQLite:
		ss, err := tokenstore.OpenSQLite(ctx, cfg.SQLitePath, cfg.Instance)
		if err != nil {
			return nil, noop, err
		}
		return ss, ss.Close, nil

	default:
		return nil, noop, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
