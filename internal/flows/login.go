package flows

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

// RunLogin posts form-encoded credentials and persists the returned pair.
func RunLogin(ctx context.Context, username, password string, deps Deps) Result {
	target, err := endpointURL(deps.BaseURL, deps.Endpoints.Login)
	if err != nil {
		return Result{Failure: FailureTransport, Err: err}
	}

	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)

	req, err := http.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	if err != nil {
		return Result{Failure: FailureTransport, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return exchange(ctx, deps, "login", req, classifyLogin)
}

func classifyLogin(status int) FailureKind {
	if status >= 400 && status < 500 {
		return FailureRejected
	}
	return FailureStatus
}
