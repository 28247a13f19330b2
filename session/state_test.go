package session

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

func testUser() *UserProfile {
	return &UserProfile{
		ID:        uuid.MustParse("6f1c2a8e-3a55-4c3e-9a57-1f4f0e6f2b10"),
		Username:  "alice",
		Email:     "alice@example.com",
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		IsActive:  true,
	}
}

func TestNewStateReflectsTokenPresence(t *testing.T) {
	if !NewState(true).Authenticated() {
		t.Fatal("expected authenticated when token present")
	}
	if NewState(false).Authenticated() {
		t.Fatal("expected unauthenticated when token absent")
	}
}

func TestSetUserDrivesAuthenticated(t *testing.T) {
	s := NewState(false)
	s.SetUser(testUser())
	if !s.Authenticated() {
		t.Fatal("expected authenticated after SetUser")
	}
	s.SetUser(nil)
	if s.Authenticated() {
		t.Fatal("expected unauthenticated after SetUser(nil)")
	}
}

func TestMarkAuthenticatedClearsError(t *testing.T) {
	s := NewState(false)
	s.SetError("bad password")
	s.MarkAuthenticated(nil)

	snap := s.Snapshot()
	if !snap.Authenticated || snap.User != nil || snap.LastError != "" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	s := NewState(false)
	u := testUser()
	s.SetUser(u)

	u.Username = "mallory"
	snap := s.Snapshot()
	if snap.User.Username != "alice" {
		t.Fatalf("state aliased caller's user: %q", snap.User.Username)
	}
	snap.User.Username = "eve"
	if s.User().Username != "alice" {
		t.Fatal("snapshot aliased state's user")
	}
}

func TestClearAlwaysUnauthenticates(t *testing.T) {
	cases := []*State{NewState(false), NewState(true)}
	loggedIn := NewState(false)
	loggedIn.MarkAuthenticated(testUser())
	loggedIn.SetLoading(true)
	cases = append(cases, loggedIn)

	for i, s := range cases {
		s.Clear()
		snap := s.Snapshot()
		if snap.Authenticated || snap.User != nil || snap.Loading {
			t.Fatalf("case %d: expected cleared session, got %+v", i, snap)
		}
	}
}

func TestExpireRecordsMessage(t *testing.T) {
	s := NewState(true)
	s.Expire("session expired")
	snap := s.Snapshot()
	if snap.Authenticated || snap.LastError != "session expired" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestSyncDropsUserWhenTokenGone(t *testing.T) {
	s := NewState(false)
	s.MarkAuthenticated(testUser())
	if got := s.Sync(false); got {
		t.Fatal("expected Sync(false) to report false")
	}
	if s.User() != nil {
		t.Fatal("expected user dropped")
	}
	if !s.Sync(true) || !s.Authenticated() {
		t.Fatal("expected Sync(true) to authenticate")
	}
}

func TestSubscribeDeliversLatest(t *testing.T) {
	s := NewState(false)
	ch, cancel := s.Subscribe()
	defer cancel()

	initial := <-ch
	if initial.Authenticated {
		t.Fatal("expected initial snapshot unauthenticated")
	}

	s.SetLoading(true)
	s.MarkAuthenticated(testUser())
	s.SetLoading(false)

	latest := <-ch
	if !latest.Authenticated || latest.Loading || latest.User == nil {
		t.Fatalf("expected latest snapshot, got %+v", latest)
	}
	select {
	case extra := <-ch:
		t.Fatalf("expected only latest snapshot buffered, got extra %+v", extra)
	default:
	}
}

func TestSubscribeCancelClosesChannel(t *testing.T) {
	s := NewState(false)
	ch, cancel := s.Subscribe()
	<-ch
	cancel()
	cancel()

	s.SetLoading(true)
	if _, ok := <-ch; ok {
		t.Fatal("expected channel closed after cancel")
	}
}

func TestConcurrentMutationAndObservation(t *testing.T) {
	s := NewState(false)
	ch, cancel := s.Subscribe()
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if (i+j)%2 == 0 {
					s.MarkAuthenticated(testUser())
				} else {
					s.Clear()
				}
				_ = s.Snapshot()
			}
		}(i)
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ch:
			case <-done:
				return
			}
		}
	}()
	wg.Wait()
	close(done)

	s.Clear()
	if s.Authenticated() {
		t.Fatal("expected final Clear to win")
	}
}
