package authclient

import (
	"errors"
	"fmt"

	"github.com/MrEthical07/authclient/tokenstore"
)

var (
	// ErrInvalidCredentials is returned when the backend rejects a login.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrValidation is matched by every *ValidationError.
	ErrValidation = errors.New("validation error")
	// ErrNoRefreshToken is returned by Refresh when no refresh token is stored.
	ErrNoRefreshToken = errors.New("no refresh token available")
	// ErrRefreshRejected is returned when the backend refuses a refresh token.
	ErrRefreshRejected = errors.New("refresh token rejected")
	// ErrTransport is matched by every *TransportError.
	ErrTransport = errors.New("transport error")
	// ErrSessionExpired is matched by every *SessionExpiredError.
	ErrSessionExpired = errors.New("session expired")
	// ErrUnexpectedStatus is returned for backend responses outside the documented contract.
	ErrUnexpectedStatus = errors.New("unexpected backend status")
	// ErrMalformedResponse is returned when a token response cannot be decoded or lacks tokens.
	ErrMalformedResponse = errors.New("malformed token response")
	// ErrClientClosed is returned by operations on a closed Client.
	ErrClientClosed = errors.New("client closed")
	// ErrStoreUnavailable is returned when the token store fails.
	ErrStoreUnavailable = tokenstore.ErrStoreUnavailable
)

// ValidationError carries the message to show next to a registration form.
type ValidationError struct {
	Message    string
	StatusCode int
}

func (e *ValidationError) Error() string {
	if e.Message == "" {
		return ErrValidation.Error()
	}
	return "validation error: " + e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// APIError describes a non-success backend response. Kind is one of the sentinel errors above.
type APIError struct {
	Op         string
	StatusCode int
	Detail     string
	Kind       error
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("%s: %s (status %d)", e.Op, e.Kind, e.StatusCode)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *APIError) Unwrap() error {
	return e.Kind
}

// TransportError wraps a network failure or timeout. It is never retried.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport error: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() []error {
	return []error{ErrTransport, e.Err}
}

// SessionExpiredError is what a caller of the authenticated transport receives when a 401 could
// not be recovered by refreshing. Cause is the refresh failure.
type SessionExpiredError struct {
	Method     string
	URL        string
	StatusCode int
	Cause      error
}

func (e *SessionExpiredError) Error() string {
	return fmt.Sprintf("%s %s: %s (status %d): %v", e.Method, e.URL, ErrSessionExpired, e.StatusCode, e.Cause)
}

func (e *SessionExpiredError) Unwrap() []error {
	return []error{ErrSessionExpired, e.Cause}
}

const (
	msgLoginFailed    = "login failed, please check your username and password"
	msgRegisterFailed = "registration failed, please try again"
	msgSessionExpired = "your session has expired, please sign in again"
	msgNetwork        = "cannot reach the server, please check your connection"
	msgUnexpected     = "something went wrong, please try again"
)

// UserMessage returns a message suitable for display. Server-supplied detail wins when present.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	if errors.Is(err, ErrSessionExpired) {
		return msgSessionExpired
	}

	var verr *ValidationError
	if errors.As(err, &verr) {
		if verr.Message != "" {
			return verr.Message
		}
		return msgRegisterFailed
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Detail != "" {
		return apiErr.Detail
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return msgLoginFailed
	case errors.Is(err, ErrRefreshRejected), errors.Is(err, ErrNoRefreshToken):
		return msgSessionExpired
	case errors.Is(err, ErrTransport):
		return msgNetwork
	default:
		return msgUnexpected
	}
}
