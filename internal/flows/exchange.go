package flows

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MrEthical07/authclient/session"
	"github.com/MrEthical07/authclient/tokenstore"
	"github.com/google/uuid"
)

const maxResponseBytes = 1 << 20

// FailureKind classifies flow failures for root-level mapping.
type FailureKind int

const (
	FailureNone FailureKind = iota
	// FailureRejected is a 4xx on login, or any non-2xx on refresh.
	FailureRejected
	// FailureValidation is a client-side form check or a 4xx on register.
	FailureValidation
	FailureNoRefreshToken
	FailureTransport
	// FailureStatus is a status the endpoint contract does not cover (5xx on login/register).
	FailureStatus
	FailureMalformed
	FailureStore
	// FailureSuperseded means the session ended while the request was in flight.
	FailureSuperseded
)

// Result carries either the persisted pair or failure metadata.
type Result struct {
	Failure    FailureKind
	Err        error
	StatusCode int
	Detail     string
	Pair       tokenstore.Pair
	User       *session.UserProfile
}

// OK reports whether the flow succeeded.
func (r Result) OK() bool {
	return r.Failure == FailureNone
}

type tokenResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	User         *wireUser `json:"user,omitempty"`
}

type wireUser struct {
	UserID    string `json:"user_id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	CreatedAt string `json:"created_at"`
	IsActive  bool   `json:"is_active"`
}

type errorResponse struct {
	Detail json.RawMessage `json:"detail"`
}

type fieldError struct {
	Msg string `json:"msg"`
}

// classifyStatus maps a non-2xx status to a failure kind for one endpoint.
type classifyStatus func(status int) FailureKind

// exchange sends req, decodes a token response, and persists the pair.
func exchange(ctx context.Context, deps Deps, op string, req *http.Request, classify classifyStatus) Result {
	if deps.UserAgent != "" {
		req.Header.Set("User-Agent", deps.UserAgent)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := deps.HTTPClient.Do(req.WithContext(ctx))
	if err != nil {
		deps.debug("auth request failed", "op", op, "error", err)
		return Result{Failure: FailureTransport, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Result{Failure: FailureTransport, Err: err, StatusCode: resp.StatusCode}
	}
	deps.debug("auth request completed", "op", op, "status", resp.StatusCode, "elapsed", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail := errorDetail(body)
		return Result{
			Failure:    classify(resp.StatusCode),
			Err:        fmt.Errorf("%s: status %d", op, resp.StatusCode),
			StatusCode: resp.StatusCode,
			Detail:     detail,
		}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return Result{Failure: FailureMalformed, Err: err, StatusCode: resp.StatusCode}
	}
	pair := tokenstore.Pair{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		TokenType:    tr.TokenType,
	}
	if err := pair.Validate(); err != nil {
		return Result{Failure: FailureMalformed, Err: err, StatusCode: resp.StatusCode}
	}
	pair = pair.Normalized()

	user := tr.User.profile()
	if err := deps.commit(ctx, pair, user); err != nil {
		if errors.Is(err, ErrSuperseded) {
			deps.debug("auth response discarded", "op", op)
			return Result{Failure: FailureSuperseded, Err: err, StatusCode: resp.StatusCode}
		}
		return Result{Failure: FailureStore, Err: err, StatusCode: resp.StatusCode}
	}

	return Result{
		StatusCode: resp.StatusCode,
		Pair:       pair,
		User:       user,
	}
}

func (u *wireUser) profile() *session.UserProfile {
	if u == nil {
		return nil
	}
	p := &session.UserProfile{
		Username:  u.Username,
		Email:     u.Email,
		IsActive:  u.IsActive,
		CreatedAt: parseTimestamp(u.CreatedAt),
	}
	if id, err := uuid.Parse(u.UserID); err == nil {
		p.ID = id
	}
	return p
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999-07:00",
	"2006-01-02 15:04:05.999999",
}

// parseTimestamp accepts RFC 3339 and the naive ISO forms the backend emits; unknown forms
// yield the zero time.
func parseTimestamp(v string) time.Time {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t
		}
	}
	return time.Time{}
}

// errorDetail extracts "detail" as either a string or a list of field errors.
func errorDetail(body []byte) string {
	var er errorResponse
	if err := json.Unmarshal(body, &er); err != nil || len(er.Detail) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(er.Detail, &s); err == nil {
		return strings.TrimSpace(s)
	}

	var fields []fieldError
	if err := json.Unmarshal(er.Detail, &fields); err == nil {
		msgs := make([]string, 0, len(fields))
		for _, f := range fields {
			if m := strings.TrimSpace(f.Msg); m != "" {
				msgs = append(msgs, m)
			}
		}
		return strings.Join(msgs, "; ")
	}
	return ""
}

func endpointURL(base, path string) (string, error) {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		return "", errors.New("base URL required")
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path, nil
}
