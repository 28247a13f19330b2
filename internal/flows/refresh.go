package flows

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/MrEthical07/authclient/tokenstore"
)

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// RunRefresh exchanges the stored refresh token for a new pair and persists it.
func RunRefresh(ctx context.Context, deps Deps) Result {
	current, err := deps.Store.Get(ctx)
	if err != nil {
		if errors.Is(err, tokenstore.ErrEmpty) {
			return Result{Failure: FailureNoRefreshToken, Err: err}
		}
		return Result{Failure: FailureStore, Err: err}
	}

	target, err := endpointURL(deps.BaseURL, deps.Endpoints.Refresh)
	if err != nil {
		return Result{Failure: FailureTransport, Err: err}
	}

	payload, err := json.Marshal(refreshRequest{RefreshToken: current.RefreshToken})
	if err != nil {
		return Result{Failure: FailureMalformed, Err: err}
	}

	req, err := http.NewRequest(http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return Result{Failure: FailureTransport, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	return exchange(ctx, deps, "refresh", req, classifyRefresh)
}

func classifyRefresh(int) FailureKind {
	return FailureRejected
}
