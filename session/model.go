package session

import (
	"time"

	"github.com/google/uuid"
)

// UserProfile defines the signed-in user as reported by the backend.
//
// A profile is replaced wholesale on login/register and cleared on logout; it is never patched.
type UserProfile struct {
	ID        uuid.UUID `json:"user_id"`
	Username  string    `json:"username"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	IsActive  bool      `json:"is_active"`
}

// Snapshot defines a point-in-time copy of the session state.
type Snapshot struct {
	User          *UserProfile
	Authenticated bool
	Loading       bool
	LastError     string
}

func (s Snapshot) clone() Snapshot {
	if s.User != nil {
		u := *s.User
		s.User = &u
	}
	return s
}
