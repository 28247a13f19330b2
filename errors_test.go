package authclient

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/MrEthical07/authclient/internal/flows"
)

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "server detail wins", err: &APIError{Op: "login", StatusCode: 401, Detail: "Incorrect username or password", Kind: ErrInvalidCredentials}, want: "Incorrect username or password"},
		{name: "login default", err: &APIError{Op: "login", StatusCode: 401, Kind: ErrInvalidCredentials}, want: msgLoginFailed},
		{name: "validation message", err: &ValidationError{Message: "Username already registered"}, want: "Username already registered"},
		{name: "validation default", err: &ValidationError{}, want: msgRegisterFailed},
		{name: "expired beats cause detail", err: &SessionExpiredError{Cause: &APIError{Detail: "Invalid refresh token", Kind: ErrRefreshRejected}}, want: msgSessionExpired},
		{name: "no refresh token", err: ErrNoRefreshToken, want: msgSessionExpired},
		{name: "transport", err: &TransportError{Op: "login", Err: errors.New("dial tcp: refused")}, want: msgNetwork},
		{name: "unknown", err: errors.New("boom"), want: msgUnexpected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := UserMessage(tt.err); got != tt.want {
				t.Fatalf("UserMessage = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFlowErrorMapping(t *testing.T) {
	tests := []struct {
		op     string
		res    flows.Result
		target error
		code   string
	}{
		{op: "login", res: flows.Result{Failure: flows.FailureRejected, StatusCode: 401}, target: ErrInvalidCredentials, code: "invalid_credentials"},
		{op: "refresh", res: flows.Result{Failure: flows.FailureRejected, StatusCode: 401}, target: ErrRefreshRejected, code: "refresh_rejected"},
		{op: "register", res: flows.Result{Failure: flows.FailureValidation, Detail: "bad"}, target: ErrValidation, code: "validation"},
		{op: "refresh", res: flows.Result{Failure: flows.FailureNoRefreshToken}, target: ErrNoRefreshToken, code: "no_refresh_token"},
		{op: "login", res: flows.Result{Failure: flows.FailureTransport, Err: errors.New("timeout")}, target: ErrTransport, code: "transport"},
		{op: "login", res: flows.Result{Failure: flows.FailureStatus, StatusCode: http.StatusBadGateway}, target: ErrUnexpectedStatus, code: "unexpected_status"},
		{op: "login", res: flows.Result{Failure: flows.FailureMalformed, Err: errors.New("eof")}, target: ErrMalformedResponse, code: "malformed_response"},
		{op: "login", res: flows.Result{Failure: flows.FailureStore, Err: errors.New("disk")}, target: ErrStoreUnavailable, code: "store_unavailable"},
		{op: "refresh", res: flows.Result{Failure: flows.FailureSuperseded, Err: flows.ErrSuperseded}, target: ErrSessionExpired, code: "session_expired"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%s", tt.op, tt.code), func(t *testing.T) {
			err := flowError(tt.op, tt.res)
			if !errors.Is(err, tt.target) {
				t.Fatalf("expected %v, got %v", tt.target, err)
			}
			if got := errorCode(err); got != tt.code {
				t.Fatalf("errorCode = %q, want %q", got, tt.code)
			}
		})
	}

	if flowError("login", flows.Result{}) != nil {
		t.Fatal("success must map to nil")
	}
}

func TestSessionExpiredErrorMessageHasNoToken(t *testing.T) {
	err := &SessionExpiredError{Method: "GET", URL: "http://localhost/api/projects", StatusCode: 401, Cause: ErrRefreshRejected}
	if !errors.Is(err, ErrSessionExpired) || !errors.Is(err, ErrRefreshRejected) {
		t.Fatal("expected both sentinel and cause to match")
	}
	want := "GET http://localhost/api/projects: session expired (status 401): refresh token rejected"
	if err.Error() != want {
		t.Fatalf("Error() = %q", err.Error())
	}
}
