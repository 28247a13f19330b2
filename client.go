package authclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/MrEthical07/authclient/internal/flows"
	"github.com/MrEthical07/authclient/internal/intercept"
	"github.com/MrEthical07/authclient/session"
	"github.com/MrEthical07/authclient/tokenstore"
	"golang.org/x/sync/singleflight"
)

const refreshFlightKey = "refresh"

// Client is an authenticated HTTP client for one backend. It owns the token store, the session
// state, and the request interceptor. All methods are safe for concurrent use.
type Client struct {
	config     Config
	store      tokenstore.Store
	storeClose func() error
	session    *session.State
	flows      flows.Service
	transport  *intercept.Transport
	rawHTTP    *http.Client
	authHTTP   *http.Client
	refreshes  singleflight.Group
	events     *eventDispatcher
	metrics    *Metrics
	logger     *slog.Logger

	// mu orders token store writes against session teardown. generation advances on every
	// login, logout and expiry; a flow may persist its pair only under the generation it
	// started in.
	mu         sync.Mutex
	generation uint64

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// Login exchanges credentials for a token pair, persists it, and marks the session authenticated.
func (c *Client) Login(ctx context.Context, username, password string) (TokenPair, error) {
	if c.closed.Load() {
		return TokenPair{}, ErrClientClosed
	}

	c.session.SetError("")
	c.session.SetLoading(true)
	res := c.flows.WithCommit(c.commitFor(c.currentGeneration(), true)).Login(ctx, username, password)

	if !res.OK() {
		err := flowError("login", res)
		c.session.SetError(UserMessage(err))
		c.session.SetLoading(false)
		c.metricInc(MetricLoginFailure)
		c.emit(ctx, Event{Type: EventLogin, Username: username, Success: false, Error: errorCode(err)})
		c.logger.Info("login failed", "username", username, "status", res.StatusCode, "error", err)
		return TokenPair{}, err
	}

	c.session.SetLoading(false)
	c.metricInc(MetricLoginSuccess)
	c.emit(ctx, Event{Type: EventLogin, Username: username, UserID: userID(res.User), Success: true})
	c.logger.Info("login succeeded", "username", username)
	return res.Pair, nil
}

// Register creates an account and, on success, behaves like Login. Form errors and backend 4xx
// responses both yield a *ValidationError.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (TokenPair, error) {
	if c.closed.Load() {
		return TokenPair{}, ErrClientClosed
	}

	c.session.SetError("")
	c.session.SetLoading(true)
	res := c.flows.WithCommit(c.commitFor(c.currentGeneration(), true)).Register(ctx, flows.RegisterInput{
		Username: req.Username,
		Password: req.Password,
		Email:    req.Email,
	})

	if !res.OK() {
		err := flowError("register", res)
		c.session.SetError(UserMessage(err))
		c.session.SetLoading(false)
		c.metricInc(MetricRegisterFailure)
		c.emit(ctx, Event{Type: EventRegister, Username: req.Username, Success: false, Error: errorCode(err)})
		c.logger.Info("registration failed", "username", req.Username, "status", res.StatusCode, "error", err)
		return TokenPair{}, err
	}

	c.session.SetLoading(false)
	c.metricInc(MetricRegisterSuccess)
	c.emit(ctx, Event{Type: EventRegister, Username: req.Username, UserID: userID(res.User), Success: true})
	c.logger.Info("registration succeeded", "username", req.Username)
	return res.Pair, nil
}

// Refresh exchanges the stored refresh token for a new pair. It does not touch the session on
// failure; only the request interceptor expires sessions.
func (c *Client) Refresh(ctx context.Context) (TokenPair, error) {
	if c.closed.Load() {
		return TokenPair{}, ErrClientClosed
	}
	return c.refresh(ctx, "")
}

// refresh runs one refresh, sharing an in-flight call when coalescing is enabled. The shared call
// is detached from any single caller's cancellation and bounded by the HTTP timeout.
//
// stale is the access token a 401 rejected. When the store already holds a different token, a
// concurrent refresh has rotated the pair and it is reused without another network call.
func (c *Client) refresh(ctx context.Context, stale string) (TokenPair, error) {
	if !c.config.Refresh.Coalesce {
		return c.refreshOnce(ctx)
	}

	var ran bool
	ch := c.refreshes.DoChan(refreshFlightKey, func() (any, error) {
		flightCtx := context.WithoutCancel(ctx)
		if stale != "" {
			if current, err := c.store.Get(flightCtx); err == nil && current.AccessToken != stale {
				return current, nil
			}
		}
		ran = true
		return c.refreshOnce(flightCtx)
	})

	select {
	case <-ctx.Done():
		return TokenPair{}, ctx.Err()
	case r := <-ch:
		if !ran {
			c.metricInc(MetricRefreshCoalesced)
		}
		if r.Err != nil {
			return TokenPair{}, r.Err
		}
		return r.Val.(TokenPair), nil
	}
}

func (c *Client) refreshOnce(ctx context.Context) (TokenPair, error) {
	gen := c.currentGeneration()
	res := c.flows.WithCommit(c.commitFor(gen, false)).Refresh(ctx)
	if !res.OK() {
		err := flowError("refresh", res)
		if res.Failure != flows.FailureSuperseded && c.currentGeneration() != gen {
			// The session this refresh belonged to is gone; its failure must not tear down
			// whatever replaced it.
			err = fmt.Errorf("refresh: %w: %w", ErrSessionExpired, flows.ErrSuperseded)
		}
		c.metricInc(MetricRefreshFailure)
		c.emit(ctx, Event{Type: EventRefresh, Success: false, Error: errorCode(err)})
		c.logger.Warn("token refresh failed", "status", res.StatusCode, "error", err)
		return TokenPair{}, err
	}

	c.metricInc(MetricRefreshSuccess)
	c.emit(ctx, Event{Type: EventRefresh, Success: true})
	c.logger.Debug("token refreshed")
	return res.Pair, nil
}

// Logout clears the token store and the session. The session is cleared even when the store
// fails; the store error is returned.
func (c *Client) Logout(ctx context.Context) error {
	err := c.endSession(ctx, c.session.Clear)
	c.metricInc(MetricLogout)
	c.emit(ctx, Event{Type: EventLogout, Success: err == nil, Error: errorCode(err)})
	if err != nil {
		c.logger.Warn("token store clear failed", "error", err)
		return fmt.Errorf("logout: %w", err)
	}
	c.logger.Info("logged out")
	return nil
}

// Sync re-derives the authenticated flag from the token store and returns it.
func (c *Client) Sync(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	has, err := accessTokenPresent(ctx, c.store)
	if err != nil {
		return c.session.Authenticated(), err
	}
	return c.session.Sync(has), nil
}

// Session returns a snapshot of the session state.
func (c *Client) Session() Session {
	return c.session.Snapshot()
}

// SessionState returns the live session state for subscription.
func (c *Client) SessionState() *session.State {
	return c.session
}

// Authenticated reports the flag consulted by navigation guards.
func (c *Client) Authenticated() bool {
	return c.session.Authenticated()
}

// Store returns the token store the client reads and writes.
func (c *Client) Store() tokenstore.Store {
	return c.store
}

// RoundTrip implements http.RoundTripper with bearer attachment and 401 recovery.
func (c *Client) RoundTrip(req *http.Request) (*http.Response, error) {
	if c.closed.Load() {
		if req.Body != nil {
			_ = req.Body.Close()
		}
		return nil, ErrClientClosed
	}
	return c.transport.RoundTrip(req)
}

// Transport returns the authenticated round tripper for use in other http.Clients.
func (c *Client) Transport() http.RoundTripper {
	return c
}

// HTTPClient returns an http.Client that sends through the authenticated transport.
func (c *Client) HTTPClient() *http.Client {
	return c.authHTTP
}

// Do sends req through the authenticated transport. A relative req.URL is resolved against
// the configured base URL.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if !req.URL.IsAbs() {
		base, err := url.Parse(c.config.HTTP.BaseURL)
		if err != nil {
			return nil, err
		}
		req.URL = base.ResolveReference(req.URL)
		req.Host = ""
	}
	return c.authHTTP.Do(req)
}

// NewRequest builds a request for a path relative to the configured base URL.
func (c *Client) NewRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	return newJSONRequest(ctx, method, c.config.HTTP.BaseURL, path, body)
}

// Close stops the event dispatcher and releases the store opened by Build. It is idempotent.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.events.Close()
		if c.storeClose != nil {
			c.closeErr = c.storeClose()
		}
	})
	return c.closeErr
}

// EventsDropped is the number of lifecycle events lost to a full queue or a cancelled sink.
func (c *Client) EventsDropped() uint64 {
	if c == nil || c.events == nil {
		return 0
	}
	return c.events.Dropped()
}

// MetricsSnapshot returns a copy of the client counters; empty when metrics are disabled.
func (c *Client) MetricsSnapshot() MetricsSnapshot {
	if c == nil || c.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return c.metrics.Snapshot()
}

/*
====================================
INTERCEPTOR WIRING
====================================
*/

func (c *Client) accessToken(ctx context.Context) (string, error) {
	pair, err := c.store.Get(ctx)
	if errors.Is(err, tokenstore.ErrEmpty) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return pair.AccessToken, nil
}

func (c *Client) refreshAccessToken(ctx context.Context, stale string) (string, error) {
	pair, err := c.refresh(ctx, stale)
	if err != nil {
		return "", err
	}
	return pair.AccessToken, nil
}

// expire clears every trace of the session after a 401 could not be recovered.
func (c *Client) expire(ctx context.Context, req *http.Request, status int, cause error) error {
	expired := &SessionExpiredError{
		Method:     req.Method,
		URL:        req.URL.Redacted(),
		StatusCode: status,
		Cause:      cause,
	}
	if errors.Is(cause, flows.ErrSuperseded) {
		c.logger.Debug("request outlived its session", "method", req.Method, "path", req.URL.Path)
		return expired
	}

	clearCtx := context.WithoutCancel(ctx)
	if err := c.endSession(clearCtx, func() { c.session.Expire(msgSessionExpired) }); err != nil {
		c.logger.Warn("token store clear failed", "error", err)
	}
	c.metricInc(MetricSessionExpired)
	ev := requestEvent(EventSessionExpired, req.Method, req.URL.Path, status)
	ev.Error = errorCode(cause)
	c.emit(clearCtx, ev)
	c.logger.Warn("session expired", "method", req.Method, "path", req.URL.Path, "error", cause)
	return expired
}

/*
====================================
SESSION GENERATIONS
====================================
*/

func (c *Client) currentGeneration() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// commitFor persists a flow's pair only while the generation is still gen. A commit that
// opens a session advances the generation and marks the session authenticated in the same
// critical section.
func (c *Client) commitFor(gen uint64, opensSession bool) flows.Commit {
	return func(ctx context.Context, pair tokenstore.Pair, user *session.UserProfile) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.generation != gen {
			return flows.ErrSuperseded
		}
		if err := c.store.Set(ctx, pair); err != nil {
			return err
		}
		if opensSession {
			c.generation++
			c.session.MarkAuthenticated(user)
		}
		return nil
	}
}

// endSession clears the store and runs teardown on the session state. Both happen even when
// the store fails.
func (c *Client) endSession(ctx context.Context, teardown func()) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	err := c.store.Clear(ctx)
	teardown()
	return err
}

func (c *Client) observe(o intercept.Observation) {
	if c.metrics.LatencyEnabled() {
		c.metrics.Observe(MetricRequestLatency, o.Duration)
	}
	if o.Retried {
		c.metricInc(MetricRequestRetried)
		ev := requestEvent(EventRequestRetried, o.Method, o.Path, o.Status)
		ev.Success = o.Outcome == intercept.OutcomeSucceeded
		c.emit(context.Background(), ev)
	}
	if o.Status == http.StatusUnauthorized {
		c.metricInc(MetricRequestUnauthorized)
	}
	if o.Outcome == intercept.OutcomeFailed && o.Status == 0 {
		c.metricInc(MetricTransportError)
	}
	c.logger.Debug("request sent",
		"method", o.Method,
		"path", o.Path,
		"status", o.Status,
		"outcome", o.Outcome.String(),
		"retried", o.Retried,
		"elapsed", o.Duration,
	)
}

func (c *Client) metricInc(id MetricID) {
	if c == nil || c.metrics == nil {
		return
	}
	c.metrics.Inc(id)
}

func (c *Client) emit(ctx context.Context, event Event) {
	c.events.Emit(ctx, event)
}

func userID(u *UserProfile) string {
	if u == nil {
		return ""
	}
	return u.ID.String()
}
