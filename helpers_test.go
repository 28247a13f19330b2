package authclient

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/MrEthical07/authclient/authtest"
	"github.com/MrEthical07/authclient/tokenstore"
)

const (
	testUser     = "alice"
	testPassword = "secret1"
)

func testConfig(baseURL string) Config {
	cfg := DefaultConfig()
	cfg.HTTP.BaseURL = baseURL
	cfg.HTTP.Timeout = 5 * time.Second
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true
	return cfg
}

func newBackend(t *testing.T) *authtest.Server {
	t.Helper()
	s := authtest.NewServer()
	t.Cleanup(s.Close)
	if _, err := s.AddUser(testUser, testPassword, "alice@example.com"); err != nil {
		t.Fatalf("add user: %v", err)
	}
	return s
}

func buildClient(t *testing.T, b *Builder) *Client {
	t.Helper()
	c, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func newTestClient(t *testing.T, baseURL string, store tokenstore.Store) *Client {
	t.Helper()
	return buildClient(t, New().WithConfig(testConfig(baseURL)).WithStore(store))
}

func loggedInClient(t *testing.T, s *authtest.Server) (*Client, *tokenstore.MemoryStore) {
	t.Helper()
	store := tokenstore.NewMemoryStore()
	c := newTestClient(t, s.URL(), store)
	if _, err := c.Login(context.Background(), testUser, testPassword); err != nil {
		t.Fatalf("login failed: %v", err)
	}
	return c, store
}

func get(t *testing.T, c *Client, path string) (*http.Response, error) {
	t.Helper()
	req, err := c.NewRequest(context.Background(), http.MethodGet, path, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	return c.HTTPClient().Do(req)
}

func storedPair(t *testing.T, store tokenstore.Store) (TokenPair, bool) {
	t.Helper()
	pair, err := store.Get(context.Background())
	if errors.Is(err, tokenstore.ErrEmpty) {
		return TokenPair{}, false
	}
	if err != nil {
		t.Fatalf("store get: %v", err)
	}
	return pair, true
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

type failingClearStore struct {
	*tokenstore.MemoryStore
}

func (failingClearStore) Clear(context.Context) error {
	return errors.New("disk full")
}

// loggedInClientWith builds b over a fresh memory store and logs in.
func loggedInClientWith(t *testing.T, s *authtest.Server, b *Builder) (*Client, *tokenstore.MemoryStore) {
	t.Helper()
	store := tokenstore.NewMemoryStore()
	c := buildClient(t, b.WithStore(store))
	if _, err := c.Login(context.Background(), testUser, testPassword); err != nil {
		t.Fatalf("login failed: %v", err)
	}
	return c, store
}
