package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
)

// TokenID identifies one issued refresh token. Only the hash of the secret half is kept by
// the issuer.
type TokenID [16]byte

const (
	refreshSecretSize   = 32
	refreshTokenRawSize = len(TokenID{}) + refreshSecretSize
)

var ErrMalformedRefreshToken = errors.New("malformed refresh token")

func (id TokenID) String() string {
	return base64.RawURLEncoding.EncodeToString(id[:])
}

// IssuedRefreshToken is a freshly minted opaque token and what the issuer stores for it.
type IssuedRefreshToken struct {
	Token string
	ID    TokenID
	Hash  [32]byte
}

// NewRefreshToken generates a token together with the id and hash the issuer stores.
func NewRefreshToken() (IssuedRefreshToken, error) {
	var raw [refreshTokenRawSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return IssuedRefreshToken{}, err
	}

	var out IssuedRefreshToken
	copy(out.ID[:], raw[:len(out.ID)])
	out.Hash = sha256.Sum256(raw[len(out.ID):])
	out.Token = base64.RawURLEncoding.EncodeToString(raw[:])
	return out, nil
}

// DecodeRefreshToken splits token into its id and the hash of its secret.
func DecodeRefreshToken(token string) (TokenID, [32]byte, error) {
	var id TokenID
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || len(raw) != refreshTokenRawSize {
		return id, [32]byte{}, ErrMalformedRefreshToken
	}
	copy(id[:], raw[:len(id)])
	return id, sha256.Sum256(raw[len(id):]), nil
}

// HashesEqual compares secret hashes in constant time.
func HashesEqual(a, b [32]byte) bool {
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}
