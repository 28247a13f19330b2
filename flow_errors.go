package authclient

import (
	"errors"
	"fmt"

	"github.com/MrEthical07/authclient/internal/flows"
)

// flowError maps a failed flow result onto the public error taxonomy.
func flowError(op string, res flows.Result) error {
	switch res.Failure {
	case flows.FailureNone:
		return nil
	case flows.FailureRejected:
		kind := ErrInvalidCredentials
		if op == "refresh" {
			kind = ErrRefreshRejected
		}
		return &APIError{Op: op, StatusCode: res.StatusCode, Detail: res.Detail, Kind: kind}
	case flows.FailureValidation:
		return &ValidationError{Message: res.Detail, StatusCode: res.StatusCode}
	case flows.FailureNoRefreshToken:
		return ErrNoRefreshToken
	case flows.FailureTransport:
		return &TransportError{Op: op, Err: res.Err}
	case flows.FailureStatus:
		return &APIError{Op: op, StatusCode: res.StatusCode, Detail: res.Detail, Kind: ErrUnexpectedStatus}
	case flows.FailureMalformed:
		return fmt.Errorf("%s: %w: %v", op, ErrMalformedResponse, res.Err)
	case flows.FailureStore:
		if errors.Is(res.Err, ErrStoreUnavailable) {
			return fmt.Errorf("%s: %w", op, res.Err)
		}
		return fmt.Errorf("%s: %w: %v", op, ErrStoreUnavailable, res.Err)
	case flows.FailureSuperseded:
		return fmt.Errorf("%s: %w: %w", op, ErrSessionExpired, res.Err)
	default:
		return fmt.Errorf("%s: %w", op, res.Err)
	}
}

// errorCode is the token-free error label carried by events.
func errorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNoRefreshToken):
		return "no_refresh_token"
	case errors.Is(err, ErrRefreshRejected):
		return "refresh_rejected"
	case errors.Is(err, ErrSessionExpired):
		return "session_expired"
	case errors.Is(err, ErrTransport):
		return "transport"
	case errors.Is(err, ErrUnexpectedStatus):
		return "unexpected_status"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed_response"
	case errors.Is(err, ErrStoreUnavailable):
		return "store_unavailable"
	default:
		return "internal"
	}
}
