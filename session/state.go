package session

import "sync"

// State is the mutable session shared by the gateway, the request interceptor, and UI observers.
// It is safe for concurrent use.
type State struct {
	mu     sync.RWMutex
	snap   Snapshot
	subs   map[uint64]chan Snapshot
	nextID uint64
}

// NewState creates a State. authenticated should reflect whether an access token is stored.
func NewState(authenticated bool) *State {
	return &State{
		snap: Snapshot{Authenticated: authenticated},
		subs: make(map[uint64]chan Snapshot),
	}
}

// Snapshot returns a copy of the current state.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.clone()
}

// Authenticated reports the flag navigation guards consult.
func (s *State) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Authenticated
}

// User returns a copy of the current user, or nil.
func (s *State) User() *UserProfile {
	return s.Snapshot().User
}

// SetUser replaces the user; authenticated follows whether a user is present.
func (s *State) SetUser(user *UserProfile) {
	s.update(func(snap *Snapshot) {
		snap.User = copyUser(user)
		snap.Authenticated = user != nil
	})
}

// MarkAuthenticated records a verified login. user may be nil when the backend did not return one.
func (s *State) MarkAuthenticated(user *UserProfile) {
	s.update(func(snap *Snapshot) {
		snap.User = copyUser(user)
		snap.Authenticated = true
		snap.LastError = ""
	})
}

// SetLoading toggles the loading flag.
func (s *State) SetLoading(loading bool) {
	s.update(func(snap *Snapshot) {
		snap.Loading = loading
	})
}

// SetError sets the last displayable error; an empty string clears it.
func (s *State) SetError(msg string) {
	s.update(func(snap *Snapshot) {
		snap.LastError = msg
	})
}

// Sync re-derives the authenticated flag from token presence and returns it.
// A user recorded by a previous login is dropped once the token is gone.
func (s *State) Sync(hasAccessToken bool) bool {
	s.update(func(snap *Snapshot) {
		snap.Authenticated = hasAccessToken
		if !hasAccessToken {
			snap.User = nil
		}
	})
	return hasAccessToken
}

// Clear tears the session down after logout.
func (s *State) Clear() {
	s.update(func(snap *Snapshot) {
		snap.User = nil
		snap.Authenticated = false
		snap.Loading = false
	})
}

// Expire tears the session down after an unrecoverable refresh failure and records msg.
func (s *State) Expire(msg string) {
	s.update(func(snap *Snapshot) {
		snap.User = nil
		snap.Authenticated = false
		snap.Loading = false
		snap.LastError = msg
	})
}

// Subscribe registers an observer. The returned channel holds at most the latest snapshot and
// is closed by the cancel function.
func (s *State) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	ch <- s.snap.clone()
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
			close(ch)
		})
	}
}

func (s *State) update(fn func(*Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.snap)
	for _, ch := range s.subs {
		publish(ch, s.snap.clone())
	}
}

// publish replaces any unread snapshot. Only update sends, and it holds the write lock.
func publish(ch chan Snapshot, snap Snapshot) {
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- snap:
	default:
	}
}

func copyUser(u *UserProfile) *UserProfile {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}
