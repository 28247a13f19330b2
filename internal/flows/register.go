package flows

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"unicode/utf8"
)

// Registration form limits enforced by the backend schema.
const (
	UsernameMinLen = 3
	UsernameMaxLen = 50
	PasswordMinLen = 6
	PasswordMaxLen = 100
)

// RegisterInput is the registration form.
type RegisterInput struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email,omitempty"`
}

// ValidateRegistration applies the form rules locally and returns a displayable message, or "".
func ValidateRegistration(in RegisterInput) string {
	switch n := utf8.RuneCountInString(strings.TrimSpace(in.Username)); {
	case n == 0:
		return "username is required"
	case n < UsernameMinLen:
		return "username must be at least 3 characters"
	case n > UsernameMaxLen:
		return "username must be at most 50 characters"
	}
	switch n := utf8.RuneCountInString(in.Password); {
	case n == 0:
		return "password is required"
	case n < PasswordMinLen:
		return "password must be at least 6 characters"
	case n > PasswordMaxLen:
		return "password must be at most 100 characters"
	}
	if email := strings.TrimSpace(in.Email); email != "" {
		addr, err := mail.ParseAddress(email)
		if err != nil || addr.Address != email {
			return "email address is invalid"
		}
	}
	return ""
}

// RunRegister validates the form, posts it as JSON, and persists the returned pair.
func RunRegister(ctx context.Context, in RegisterInput, deps Deps) Result {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	if msg := ValidateRegistration(in); msg != "" {
		return Result{Failure: FailureValidation, Err: errors.New(msg), Detail: msg}
	}

	target, err := endpointURL(deps.BaseURL, deps.Endpoints.Register)
	if err != nil {
		return Result{Failure: FailureTransport, Err: err}
	}

	payload, err := json.Marshal(in)
	if err != nil {
		return Result{Failure: FailureValidation, Err: err}
	}

	req, err := http.NewRequest(http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return Result{Failure: FailureTransport, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	return exchange(ctx, deps, "register", req, classifyRegister)
}

func classifyRegister(status int) FailureKind {
	if status >= 400 && status < 500 {
		return FailureValidation
	}
	return FailureStatus
}
