package tokenstore

import (
	"context"
	"errors"
	"strings"
)

// Persisted entry names. They match the keys the desktop shell keeps in local storage.
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyTokenType    = "token_type"
)

// DefaultTokenType is used when the backend omits token_type.
const DefaultTokenType = "bearer"

var (
	// ErrEmpty is returned by Get when no complete pair is stored.
	ErrEmpty = errors.New("token store empty")
	// ErrPartialPair is returned by Set when either token is missing.
	ErrPartialPair = errors.New("token pair requires both access and refresh tokens")
	// ErrStoreUnavailable wraps backend I/O failures.
	ErrStoreUnavailable = errors.New("token store unavailable")
)

// Pair is the access/refresh token pair issued by the backend.
type Pair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type,omitempty"`
}

// Validate reports ErrPartialPair unless both tokens are present.
func (p Pair) Validate() error {
	if strings.TrimSpace(p.AccessToken) == "" || strings.TrimSpace(p.RefreshToken) == "" {
		return ErrPartialPair
	}
	return nil
}

// Normalized returns p with the token type defaulted.
func (p Pair) Normalized() Pair {
	if strings.TrimSpace(p.TokenType) == "" {
		p.TokenType = DefaultTokenType
	}
	return p
}

// Store holds at most one token pair.
type Store interface {
	Get(ctx context.Context) (Pair, error)
	Set(ctx context.Context, pair Pair) error
	Clear(ctx context.Context) error
}

// fromEntries rebuilds a pair from raw entries; a partial set is treated as empty.
func fromEntries(access, refresh, tokenType string) (Pair, error) {
	if access == "" || refresh == "" {
		return Pair{}, ErrEmpty
	}
	return Pair{AccessToken: access, RefreshToken: refresh, TokenType: tokenType}.Normalized(), nil
}
