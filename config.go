package authclient

import (
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config controls a Client. Build one with DefaultConfig and override fields, or load it with
// LoadConfigFile.
//
// The default token store is in-memory and does not survive the process. A client that must
// keep its session across restarts selects StoreFile (for example under DefaultStoreDir),
// StoreSQLite or StoreRedis, or injects a store with Builder.WithStore.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Endpoints EndpointsConfig `yaml:"endpoints"`
	Refresh   RefreshConfig   `yaml:"refresh"`
	Store     StoreConfig     `yaml:"store"`
	Events    EventsConfig    `yaml:"events"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Log       LogConfig       `yaml:"log"`
}

/*
====================================
HTTP CONFIG
====================================
*/

// HTTPConfig configures the backend connection. Timeout bounds each gateway call, and each
// request sent through Client.HTTPClient including its refresh and replay.
type HTTPConfig struct {
	BaseURL   string        `yaml:"base_url"`
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`
}

// EndpointsConfig holds paths relative to HTTP.BaseURL.
type EndpointsConfig struct {
	Login    string `yaml:"login"`
	Register string `yaml:"register"`
	Refresh  string `yaml:"refresh"`
}

// RefreshConfig controls 401 recovery. With Coalesce, concurrent 401s share one refresh call.
type RefreshConfig struct {
	Coalesce bool `yaml:"coalesce"`
}

/*
====================================
STORE CONFIG
====================================
*/

// Store backends accepted by StoreConfig.Backend.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreRedis  = "redis"
	StoreSQLite = "sqlite"
)

// StoreConfig selects and configures the token store opened by OpenStore.
type StoreConfig struct {
	// Backend defaults to StoreMemory, which is not durable.
	Backend  string `yaml:"backend"`
	Dir      string `yaml:"dir"`
	Instance string `yaml:"instance"`
	// EncryptionKey is a base64-encoded 32-byte key. When set, FileStore seals its document.
	EncryptionKey string        `yaml:"encryption_key"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPrefix   string        `yaml:"redis_prefix"`
	RedisTTL      time.Duration `yaml:"redis_ttl"`
	SQLitePath    string        `yaml:"sqlite_path"`
}

/*
====================================
OBSERVABILITY CONFIG
====================================
*/

// EventsConfig controls lifecycle event dispatch.
type EventsConfig struct {
	Enabled    bool `yaml:"enabled"`
	BufferSize int  `yaml:"buffer_size"`
	DropIfFull bool `yaml:"drop_if_full"`
}

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled                 bool `yaml:"enabled"`
	EnableLatencyHistograms bool `yaml:"enable_latency_histograms"`
}

// LogConfig is consumed by NewLogger. Level is debug, info, warn or error; Format is text or json.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

/*
====================================
DEFAULT CONFIG
====================================
*/

const (
	DefaultBaseURL  = "http://localhost:8000"
	DefaultTimeout  = 30 * time.Second
	DefaultLogin    = "/api/auth/login"
	DefaultRegister = "/api/auth/register"
	DefaultRefresh  = "/api/auth/refresh"
)

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig() Config {
	return Config{
		HTTP: HTTPConfig{
			BaseURL:   DefaultBaseURL,
			Timeout:   DefaultTimeout,
			UserAgent: "authclient/1",
		},
		Endpoints: EndpointsConfig{
			Login:    DefaultLogin,
			Register: DefaultRegister,
			Refresh:  DefaultRefresh,
		},
		Refresh: RefreshConfig{
			Coalesce: true,
		},
		Store: StoreConfig{
			Backend:     StoreMemory,
			Instance:    "default",
			RedisPrefix: "authclient",
			SQLitePath:  "authclient.db",
		},
		Events: EventsConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// DefaultStoreDir is the per-user directory for file-backed token stores. It falls back to
// ".authclient" in the working directory when the platform has no user config dir.
func DefaultStoreDir() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		return ".authclient"
	}
	return filepath.Join(dir, "authclient")
}

func cloneConfig(cfg Config) Config {
	return cfg
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	// HTTP
	if strings.TrimSpace(c.HTTP.BaseURL) == "" {
		return errors.New("HTTP BaseURL is required")
	}
	u, err := url.Parse(c.HTTP.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("HTTP BaseURL must be an absolute http(s) URL")
	}
	if c.HTTP.Timeout <= 0 {
		return errors.New("HTTP Timeout must be > 0")
	}

	// Endpoints
	if c.Endpoints.Login == "" || c.Endpoints.Register == "" || c.Endpoints.Refresh == "" {
		return errors.New("Endpoints Login, Register and Refresh are required")
	}

	// Store
	switch c.Store.Backend {
	case StoreMemory:
	case StoreFile:
		if strings.TrimSpace(c.Store.Dir) == "" {
			return errors.New("Store Dir is required for the file backend")
		}
	case StoreRedis:
		if strings.TrimSpace(c.Store.RedisAddr) == "" {
			return errors.New("Store RedisAddr is required for the redis backend")
		}
		if c.Store.RedisTTL < 0 {
			return errors.New("Store RedisTTL must be >= 0")
		}
	case StoreSQLite:
		if strings.TrimSpace(c.Store.SQLitePath) == "" {
			return errors.New("Store SQLitePath is required for the sqlite backend")
		}
	default:
		return errors.New("Store Backend must be one of memory, file, redis, sqlite")
	}
	if c.Store.EncryptionKey != "" {
		if _, err := decodeStoreKey(c.Store.EncryptionKey); err != nil {
			return err
		}
	}

	// Events
	if c.Events.Enabled && c.Events.BufferSize <= 0 {
		return errors.New("Events BufferSize must be > 0 when Enabled is true")
	}

	// Log
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return errors.New("Log Format must be 'text' or 'json'")
	}

	return nil
}
