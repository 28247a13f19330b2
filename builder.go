package authclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/MrEthical07/authclient/internal/flows"
	"github.com/MrEthical07/authclient/internal/intercept"
	"github.com/MrEthical07/authclient/session"
	"github.com/MrEthical07/authclient/tokenstore"
)

// Builder assembles a Client. A Builder can be used once.
type Builder struct {
	config Config

	store         tokenstore.Store
	baseTransport http.RoundTripper
	eventSink     EventSink
	logger        *slog.Logger
	session       *session.State

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration. Later With* calls override its fields.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStore overrides Config.Store. The caller keeps ownership of the store's connections.
func (b *Builder) WithStore(store tokenstore.Store) *Builder {
	b.store = store
	return b
}

// WithBaseTransport sets the transport both the raw and the authenticated clients send through.
func (b *Builder) WithBaseTransport(rt http.RoundTripper) *Builder {
	b.baseTransport = rt
	return b
}

// WithEventSink sets where lifecycle events go. Events are only dispatched when
// Config.Events.Enabled is set.
func (b *Builder) WithEventSink(sink EventSink) *Builder {
	b.eventSink = sink
	return b
}

// WithLogger sets the structured logger. A nil logger discards output.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithSession injects the session state observed by UI layers. By default the Client creates its own.
func (b *Builder) WithSession(state *session.State) *Builder {
	b.session = state
	return b
}

// WithMetricsEnabled toggles the in-process counters read by MetricsSnapshot and the exporters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the per-attempt latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration, opens the store when none was injected, and derives the
// initial authenticated flag from the stored access token.
func (b *Builder) Build() (*Client, error) {
	return b.BuildContext(context.Background())
}

// BuildContext is Build with a context for opening and reading the token store.
func (b *Builder) BuildContext(ctx context.Context) (*Client, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = discardLogger()
	}

	store := b.store
	storeClose := func() error { return nil }
	if store == nil {
		s, closeFn, err := OpenStore(ctx, cfg.Store)
		if err != nil {
			return nil, fmt.Errorf("open token store: %w", err)
		}
		store, storeClose = s, closeFn
	}

	base := b.baseTransport
	if base == nil {
		base = http.DefaultTransport
	}

	hasToken, err := accessTokenPresent(ctx, store)
	if err != nil {
		logger.Warn("token store unreadable at startup", "error", err)
	}

	state := b.session
	if state == nil {
		state = session.NewState(hasToken)
	} else {
		state.Sync(hasToken)
	}

	c := &Client{
		config:     cfg,
		store:      store,
		storeClose: storeClose,
		session:    state,
		logger:     logger,
		metrics:    NewMetrics(cfg.Metrics),
		events:     newEventDispatcher(cfg.Events, b.eventSink),
		rawHTTP: &http.Client{
			Transport: base,
			Timeout:   cfg.HTTP.Timeout,
		},
	}

	c.flows = flows.New(flows.Deps{
		HTTPClient: c.rawHTTP,
		BaseURL:    cfg.HTTP.BaseURL,
		Endpoints: flows.Endpoints{
			Login:    cfg.Endpoints.Login,
			Register: cfg.Endpoints.Register,
			Refresh:  cfg.Endpoints.Refresh,
		},
		Store:     store,
		UserAgent: cfg.HTTP.UserAgent,
		Debug: func(msg string, args ...any) {
			logger.Debug(msg, args...)
		},
	})

	tr, err := intercept.New(intercept.Deps{
		Base:        base,
		AccessToken: c.accessToken,
		Refresh:     c.refreshAccessToken,
		Expire:      c.expire,
		Observe:     c.observe,
	})
	if err != nil {
		_ = storeClose()
		c.events.Close()
		return nil, err
	}
	c.transport = tr
	c.authHTTP = &http.Client{
		Transport: c,
		Timeout:   cfg.HTTP.Timeout,
	}

	b.built = true

	return c, nil
}

func accessTokenPresent(ctx context.Context, store tokenstore.Store) (bool, error) {
	pair, err := store.Get(ctx)
	if errors.Is(err, tokenstore.ErrEmpty) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return pair.AccessToken != "", nil
}
