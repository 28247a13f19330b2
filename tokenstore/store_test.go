package tokenstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type storeFactory struct {
	name string
	open func(t *testing.T) Store
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

func testKey() []byte {
	return bytes.Repeat([]byte{7}, 32)
}

func factories() []storeFactory {
	return []storeFactory{
		{name: "memory", open: func(*testing.T) Store { return NewMemoryStore() }},
		{name: "file", open: func(t *testing.T) Store {
			s, err := NewFileStore(t.TempDir(), "studio", nil)
			if err != nil {
				t.Fatalf("NewFileStore: %v", err)
			}
			return s
		}},
		{name: "file-sealed", open: func(t *testing.T) Store {
			s, err := NewFileStore(t.TempDir(), "studio", testKey())
			if err != nil {
				t.Fatalf("NewFileStore: %v", err)
			}
			return s
		}},
		{name: "sqlite", open: func(t *testing.T) Store {
			s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "t.db"), "studio")
			if err != nil {
				t.Fatalf("OpenSQLite: %v", err)
			}
			t.Cleanup(func() { _ = s.Close() })
			return s
		}},
		{name: "redis", open: func(t *testing.T) Store {
			_, rdb := newTestRedis(t)
			s, err := NewRedisStore(rdb, "test", "studio", 0)
			if err != nil {
				t.Fatalf("NewRedisStore: %v", err)
			}
			return s
		}},
	}
}

func TestStoreRoundTrip(t *testing.T) {
	for _, f := range factories() {
		t.Run(f.name, func(t *testing.T) {
			ctx := context.Background()
			s := f.open(t)

			want := Pair{AccessToken: "A1", RefreshToken: "R1", TokenType: "bearer"}
			if err := s.Set(ctx, want); err != nil {
				t.Fatalf("Set: %v", err)
			}
			got, err := s.Get(ctx)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if got != want {
				t.Fatalf("expected %+v, got %+v", want, got)
			}
		})
	}
}

func TestStoreEmptyAndClear(t *testing.T) {
	for _, f := range factories() {
		t.Run(f.name, func(t *testing.T) {
			ctx := context.Background()
			s := f.open(t)

			if _, err := s.Get(ctx); !errors.Is(err, ErrEmpty) {
				t.Fatalf("expected ErrEmpty on fresh store, got %v", err)
			}
			if err := s.Set(ctx, Pair{AccessToken: "A1", RefreshToken: "R1"}); err != nil {
				t.Fatalf("Set: %v", err)
			}
			if err := s.Clear(ctx); err != nil {
				t.Fatalf("Clear: %v", err)
			}
			if _, err := s.Get(ctx); !errors.Is(err, ErrEmpty) {
				t.Fatalf("expected ErrEmpty after Clear, got %v", err)
			}
			if err := s.Clear(ctx); err != nil {
				t.Fatalf("second Clear: %v", err)
			}
		})
	}
}

func TestStoreRejectsPartialPair(t *testing.T) {
	for _, f := range factories() {
		t.Run(f.name, func(t *testing.T) {
			ctx := context.Background()
			s := f.open(t)

			if err := s.Set(ctx, Pair{AccessToken: "A1", RefreshToken: "R1"}); err != nil {
				t.Fatalf("Set: %v", err)
			}
			for _, p := range []Pair{{AccessToken: "A2"}, {RefreshToken: "R2"}, {AccessToken: " ", RefreshToken: "R2"}} {
				if err := s.Set(ctx, p); !errors.Is(err, ErrPartialPair) {
					t.Fatalf("expected ErrPartialPair for %+v, got %v", p, err)
				}
			}
			got, err := s.Get(ctx)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if got.AccessToken != "A1" || got.RefreshToken != "R1" {
				t.Fatalf("partial write leaked into store: %+v", got)
			}
		})
	}
}

func TestStoreDefaultsTokenType(t *testing.T) {
	for _, f := range factories() {
		t.Run(f.name, func(t *testing.T) {
			ctx := context.Background()
			s := f.open(t)
			if err := s.Set(ctx, Pair{AccessToken: "A1", RefreshToken: "R1"}); err != nil {
				t.Fatalf("Set: %v", err)
			}
			got, err := s.Get(ctx)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if got.TokenType != DefaultTokenType {
				t.Fatalf("expected token type %q, got %q", DefaultTokenType, got.TokenType)
			}
		})
	}
}

func TestStoreConcurrentWritesNeverMixPairs(t *testing.T) {
	for _, f := range factories() {
		t.Run(f.name, func(t *testing.T) {
			ctx := context.Background()
			s := f.open(t)
			if err := s.Set(ctx, Pair{AccessToken: "A-0", RefreshToken: "R-0"}); err != nil {
				t.Fatalf("seed: %v", err)
			}

			const writers = 8
			const perWriter = 25

			var wg sync.WaitGroup
			errs := make(chan error, writers*perWriter*2)

			for w := 0; w < writers; w++ {
				wg.Add(2)
				go func(w int) {
					defer wg.Done()
					for i := 0; i < perWriter; i++ {
						n := fmt.Sprintf("%d-%d", w, i)
						if err := s.Set(ctx, Pair{AccessToken: "A-" + n, RefreshToken: "R-" + n}); err != nil {
							errs <- err
						}
					}
				}(w)
				go func() {
					defer wg.Done()
					for i := 0; i < perWriter; i++ {
						p, err := s.Get(ctx)
						if err != nil {
							errs <- err
							continue
						}
						if strings.TrimPrefix(p.AccessToken, "A-") != strings.TrimPrefix(p.RefreshToken, "R-") {
							errs <- fmt.Errorf("mixed pair observed: %+v", p)
						}
					}
				}()
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				t.Fatal(err)
			}
		})
	}
}

func TestRedisStorePartialHashIsEmpty(t *testing.T) {
	ctx := context.Background()
	_, rdb := newTestRedis(t)
	s, err := NewRedisStore(rdb, "test", "studio", 0)
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}

	if err := rdb.HSet(ctx, s.Key(), KeyAccessToken, "A1").Err(); err != nil {
		t.Fatalf("hset: %v", err)
	}
	if _, err := s.Get(ctx); !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected ErrEmpty for access-only hash, got %v", err)
	}
}

func TestRedisStoreAppliesTTL(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newTestRedis(t)
	s, err := NewRedisStore(rdb, "", "", time.Hour)
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}
	if s.Key() != "authclient:default" {
		t.Fatalf("unexpected key %q", s.Key())
	}
	if err := s.Set(ctx, Pair{AccessToken: "A1", RefreshToken: "R1"}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if ttl := mr.TTL(s.Key()); ttl <= 0 {
		t.Fatalf("expected positive ttl, got %v", ttl)
	}
}

func TestFileStoreSealedDocumentIsOpaque(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewFileStore(dir, "studio", testKey())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if err := s.Set(ctx, Pair{AccessToken: "secret-access", RefreshToken: "secret-refresh"}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	raw, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if bytes.Contains(raw, []byte("secret-access")) || bytes.Contains(raw, []byte("secret-refresh")) {
		t.Fatal("sealed document contains plaintext tokens")
	}

	wrongKey, err := NewFileStore(dir, "studio", bytes.Repeat([]byte{9}, 32))
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if _, err := wrongKey.Get(ctx); !errors.Is(err, ErrSealedFile) {
		t.Fatalf("expected ErrSealedFile with wrong key, got %v", err)
	}

	noKey, err := NewFileStore(dir, "studio", nil)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if _, err := noKey.Get(ctx); !errors.Is(err, ErrSealedFile) {
		t.Fatalf("expected ErrSealedFile without key, got %v", err)
	}
}

func TestFileStoreInstancesAreIsolated(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	a, _ := NewFileStore(dir, "a", nil)
	b, _ := NewFileStore(dir, "b", nil)

	if err := a.Set(ctx, Pair{AccessToken: "A1", RefreshToken: "R1"}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, err := b.Get(ctx); !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected instance b empty, got %v", err)
	}
}

func TestFileStoreRejectsBadConfig(t *testing.T) {
	if _, err := NewFileStore("", "x", nil); err == nil {
		t.Fatal("expected error for empty dir")
	}
	if _, err := NewFileStore(t.TempDir(), "../escape", nil); err == nil {
		t.Fatal("expected error for path-like instance")
	}
	if _, err := NewFileStore(t.TempDir(), "x", []byte("short")); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
}
