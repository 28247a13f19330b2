package intercept

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Outcome classifies one sent attempt.
type Outcome int

const (
	// OutcomeSucceeded is any non-401 response; it is handed to the caller untouched.
	OutcomeSucceeded Outcome = iota
	// OutcomeUnauthorized is a 401 on an attempt that has not been replayed yet.
	OutcomeUnauthorized
	// OutcomeFailed is a transport error, or a 401 on a replayed attempt.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeUnauthorized:
		return "unauthorized"
	case OutcomeFailed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Attempt is one send of the caller's request. The caller's request is never mutated.
type Attempt struct {
	Original *http.Request
	Retried  bool
	// token overrides the store lookup on a replay with the freshly refreshed access token.
	token string
	// body yields a fresh copy of the request body for each send; nil when there is none.
	body func() (io.ReadCloser, error)
}

// Step is the result of sending an attempt.
type Step struct {
	Outcome  Outcome
	Response *http.Response
	Err      error
	// Token is the access token the attempt carried, "" when sent without one.
	Token string
}

// Observation is reported once per sent attempt.
type Observation struct {
	Method   string
	Path     string
	Outcome  Outcome
	Status   int
	Retried  bool
	Duration time.Duration
}

// Deps wires the pipeline to token state.
type Deps struct {
	// Base sends requests. Defaults to http.DefaultTransport.
	Base http.RoundTripper
	// AccessToken returns the stored access token, or "" when none is stored.
	AccessToken func(ctx context.Context) (string, error)
	// Refresh obtains a new pair and returns its access token. stale is the token the rejected
	// attempt carried; an implementation may return a newer stored token without a network call.
	Refresh func(ctx context.Context, stale string) (string, error)
	// Expire tears down the session after a failed refresh and returns the caller-facing error.
	Expire func(ctx context.Context, req *http.Request, status int, cause error) error
	// Observe is optional.
	Observe func(Observation)
}

// Transport is an http.RoundTripper running the pipeline.
type Transport struct {
	deps Deps
}

// New returns a Transport. AccessToken, Refresh, and Expire are required.
func New(deps Deps) (*Transport, error) {
	if deps.AccessToken == nil || deps.Refresh == nil || deps.Expire == nil {
		return nil, errors.New("intercept: AccessToken, Refresh and Expire are required")
	}
	if deps.Base == nil {
		deps.Base = http.DefaultTransport
	}
	return &Transport{deps: deps}, nil
}

// RoundTrip implements http.RoundTripper. The caller's body is closed on every path and only
// copies of it are sent.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	body, err := replayableBody(req)
	if err != nil {
		return nil, err
	}

	att := Attempt{Original: req, body: body}
	for {
		step := t.send(att)
		switch step.Outcome {
		case OutcomeSucceeded, OutcomeFailed:
			return step.Response, step.Err
		}

		// OutcomeUnauthorized: refresh once, replay once.
		discard(step.Response)
		ctx := req.Context()
		token, err := t.deps.Refresh(ctx, step.Token)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, t.deps.Expire(ctx, req, http.StatusUnauthorized, err)
		}
		att = Attempt{Original: req, Retried: true, token: token, body: body}
	}
}

func (t *Transport) send(att Attempt) Step {
	start := time.Now()
	out, token, err := t.attach(att)
	if err != nil {
		return Step{Outcome: OutcomeFailed, Err: err}
	}

	resp, err := t.deps.Base.RoundTrip(out)
	step := classify(att, resp, err)
	step.Token = token

	if t.deps.Observe != nil {
		obs := Observation{
			Method:   att.Original.Method,
			Path:     att.Original.URL.Path,
			Outcome:  step.Outcome,
			Retried:  att.Retried,
			Duration: time.Since(start),
		}
		if resp != nil {
			obs.Status = resp.StatusCode
		}
		t.deps.Observe(obs)
	}
	return step
}

// attach clones the original request and sets the Authorization header when a token exists.
func (t *Transport) attach(att Attempt) (*http.Request, string, error) {
	ctx := att.Original.Context()
	out := att.Original.Clone(ctx)
	if att.body != nil {
		body, err := att.body()
		if err != nil {
			return nil, "", fmt.Errorf("intercept: rewind body: %w", err)
		}
		out.Body = body
		out.GetBody = att.body
	}

	token := att.token
	if token == "" {
		var err error
		token, err = t.deps.AccessToken(ctx)
		if err != nil {
			return nil, "", fmt.Errorf("intercept: read access token: %w", err)
		}
	}

	out.Header.Del("Authorization")
	if token != "" {
		out.Header.Set("Authorization", "Bearer "+token)
	}
	return out, token, nil
}

func classify(att Attempt, resp *http.Response, err error) Step {
	switch {
	case err != nil:
		return Step{Outcome: OutcomeFailed, Err: err}
	case resp.StatusCode != http.StatusUnauthorized:
		return Step{Outcome: OutcomeSucceeded, Response: resp}
	case att.Retried:
		return Step{Outcome: OutcomeFailed, Response: resp}
	default:
		return Step{Outcome: OutcomeUnauthorized, Response: resp}
	}
}

// replayableBody returns a source of body copies and closes req.Body. A request that already
// carries GetBody is copied through it; any other body is buffered once.
func replayableBody(req *http.Request) (func() (io.ReadCloser, error), error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	if req.GetBody != nil {
		_ = req.Body.Close()
		return req.GetBody, nil
	}
	buf, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("intercept: buffer body: %w", err)
	}
	return func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(buf)), nil
	}, nil
}

const maxDiscard = 64 << 10

func discard(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDiscard))
	_ = resp.Body.Close()
}
