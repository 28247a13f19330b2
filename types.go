package authclient

import (
	"github.com/MrEthical07/authclient/session"
	"github.com/MrEthical07/authclient/tokenstore"
)

// TokenPair is the access/refresh credential pair issued by the backend.
type TokenPair = tokenstore.Pair

// TokenStore persists the current TokenPair.
type TokenStore = tokenstore.Store

// UserProfile is the user object returned alongside tokens.
type UserProfile = session.UserProfile

// Session is a point-in-time view of the session state.
type Session = session.Snapshot

// RegisterRequest is the registration form. Email is optional.
type RegisterRequest struct {
	Username string
	Password string
	Email    string
}
