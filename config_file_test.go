package authclient

import (
	"context"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/MrEthical07/authclient/tokenstore"
)

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "authclient.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigFileOverlaysDefaults(t *testing.T) {
	path := writeConfigFile(t, `
http:
  base_url: https://api.example.com
  timeout: 5s
refresh:
  coalesce: false
events:
  enabled: true
log:
  level: debug
  format: json
`)

	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile: %v", err)
	}
	if cfg.HTTP.BaseURL != "https://api.example.com" || cfg.HTTP.Timeout != 5*time.Second {
		t.Fatalf("unexpected http config %+v", cfg.HTTP)
	}
	if cfg.Refresh.Coalesce {
		t.Fatal("expected coalesce disabled from file")
	}
	if cfg.Endpoints.Login != DefaultLogin || cfg.HTTP.UserAgent == "" {
		t.Fatal("expected unspecified fields to keep defaults")
	}
	if !cfg.Events.Enabled || cfg.Events.BufferSize != 1024 {
		t.Fatalf("unexpected events config %+v", cfg.Events)
	}
	if cfg.Log.Format != "json" {
		t.Fatalf("unexpected log config %+v", cfg.Log)
	}
}

func TestLoadConfigFileMissingUsesDefaults(t *testing.T) {
	cfg, err := LoadConfigFile(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadConfigFile: %v", err)
	}
	if cfg.HTTP.BaseURL != DefaultBaseURL {
		t.Fatalf("expected default base url, got %q", cfg.HTTP.BaseURL)
	}
}

func TestLoadConfigFileEnvOverrides(t *testing.T) {
	path := writeConfigFile(t, "http:\n  base_url: https://file.example.com\n")
	dir := t.TempDir()

	t.Setenv(EnvBaseURL, "http://env.example.com:9000")
	t.Setenv(EnvTimeout, "750ms")
	t.Setenv(EnvStore, StoreFile)
	t.Setenv(EnvStoreDir, dir)
	t.Setenv(EnvLogLevel, "warn")
	t.Setenv(EnvRefreshCoalesce, "false")

	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile: %v", err)
	}
	if cfg.HTTP.BaseURL != "http://env.example.com:9000" || cfg.HTTP.Timeout != 750*time.Millisecond {
		t.Fatalf("env did not override http config: %+v", cfg.HTTP)
	}
	if cfg.Store.Backend != StoreFile || cfg.Store.Dir != dir {
		t.Fatalf("env did not override store config: %+v", cfg.Store)
	}
	if cfg.Log.Level != "warn" || cfg.Refresh.Coalesce {
		t.Fatal("env did not override log level or coalesce")
	}
}

func TestLoadConfigFileRejectsBadInput(t *testing.T) {
	t.Run("yaml", func(t *testing.T) {
		path := writeConfigFile(t, "http: [unterminated")
		if _, err := LoadConfigFile(path); err == nil {
			t.Fatal("expected yaml error")
		}
	})
	t.Run("duration", func(t *testing.T) {
		t.Setenv(EnvTimeout, "soon")
		if _, err := LoadConfigFile(""); err == nil || !strings.Contains(err.Error(), EnvTimeout) {
			t.Fatalf("expected timeout env error, got %v", err)
		}
	})
	t.Run("bool", func(t *testing.T) {
		t.Setenv(EnvRefreshCoalesce, "maybe")
		if _, err := LoadConfigFile(""); err == nil {
			t.Fatal("expected bool env error")
		}
	})
	t.Run("validation", func(t *testing.T) {
		t.Setenv(EnvStore, StoreRedis)
		if _, err := LoadConfigFile(""); err == nil {
			t.Fatal("expected redis without addr to fail validation")
		}
	})
}

func TestOpenStoreMemory(t *testing.T) {
	store, closeFn, err := OpenStore(context.Background(), StoreConfig{Backend: StoreMemory})
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	defer closeFn()
	if _, ok := store.(*tokenstore.MemoryStore); !ok {
		t.Fatalf("expected memory store, got %T", store)
	}
}

func TestOpenStoreFileEncrypted(t *testing.T) {
	key := base64.StdEncoding.EncodeToString([]byte(strings.Repeat("x", 32)))
	cfg := StoreConfig{Backend: StoreFile, Dir: t.TempDir(), Instance: "test", EncryptionKey: key}

	store, closeFn, err := OpenStore(context.Background(), cfg)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	defer closeFn()

	pair := TokenPair{AccessToken: "access-value", RefreshToken: "refresh-value"}
	if err := store.Set(context.Background(), pair); err != nil {
		t.Fatalf("set: %v", err)
	}

	fs := store.(*tokenstore.FileStore)
	raw, err := os.ReadFile(fs.Path())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if strings.Contains(string(raw), "access-value") {
		t.Fatal("expected sealed document on disk")
	}

	reopened, _, err := OpenStore(context.Background(), cfg)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, err := reopened.Get(context.Background())
	if err != nil || got.AccessToken != "access-value" {
		t.Fatalf("expected pair after reopen, got %+v %v", got, err)
	}
}

func TestOpenStoreRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()

	store, closeFn, err := OpenStore(context.Background(), StoreConfig{
		Backend:     StoreRedis,
		RedisAddr:   mr.Addr(),
		RedisPrefix: "authclient",
		Instance:    "test",
	})
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	defer closeFn()

	if err := store.Set(context.Background(), TokenPair{AccessToken: "a", RefreshToken: "r"}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if len(mr.Keys()) == 0 {
		t.Fatal("expected pair written to redis")
	}
}

func TestOpenStoreRedisUnreachable(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	addr := mr.Addr()
	mr.Close()

	_, _, err = OpenStore(context.Background(), StoreConfig{Backend: StoreRedis, RedisAddr: addr})
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestOpenStoreUnknownBackend(t *testing.T) {
	if _, _, err := OpenStore(context.Background(), StoreConfig{Backend: "etcd"}); err == nil {
		t.Fatal("expected unknown backend error")
	}
}

func TestBuildOpensConfiguredStore(t *testing.T) {
	s := newBackend(t)
	cfg := testConfig(s.URL())
	cfg.Store = StoreConfig{Backend: StoreFile, Dir: t.TempDir(), Instance: "build"}

	c := buildClient(t, New().WithConfig(cfg))
	if _, err := c.Login(context.Background(), testUser, testPassword); err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, ok := c.Store().(*tokenstore.FileStore); !ok {
		t.Fatalf("expected file store, got %T", c.Store())
	}

	again := buildClient(t, New().WithConfig(cfg))
	if !again.Authenticated() {
		t.Fatal("expected a second client over the same file to start authenticated")
	}
}
