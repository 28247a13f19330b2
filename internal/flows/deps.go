package flows

import (
	"context"
	"errors"
	"net/http"

	"github.com/MrEthical07/authclient/session"
	"github.com/MrEthical07/authclient/tokenstore"
)

// ErrSuperseded is returned by a Commit when the session ended or changed while the flow's
// request was in flight. The flow's pair is discarded.
var ErrSuperseded = errors.New("flows: session changed while the request was in flight")

// Endpoints holds the backend paths relative to BaseURL.
type Endpoints struct {
	Login    string
	Register string
	Refresh  string
}

// Commit persists the pair a flow obtained. user is nil for refresh responses.
type Commit func(ctx context.Context, pair tokenstore.Pair, user *session.UserProfile) error

// Deps captures what every auth flow needs. HTTPClient must be the raw client, carrying the
// per-call timeout but none of the bearer/refresh middleware.
type Deps struct {
	HTTPClient *http.Client
	BaseURL    string
	Endpoints  Endpoints
	Store      tokenstore.Store
	// Commit replaces the plain Store.Set write when set.
	Commit    Commit
	UserAgent string
	Debug     func(msg string, args ...any)
}

func (d Deps) debug(msg string, args ...any) {
	if d.Debug != nil {
		d.Debug(msg, args...)
	}
}

func (d Deps) commit(ctx context.Context, pair tokenstore.Pair, user *session.UserProfile) error {
	if d.Commit != nil {
		return d.Commit(ctx, pair, user)
	}
	return d.Store.Set(ctx, pair)
}
