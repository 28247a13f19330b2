package tokenstore

import (
	"context"
	"sync"
)

// MemoryStore keeps the pair in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	pair Pair
	set  bool
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Get(context.Context) (Pair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.set {
		return Pair{}, ErrEmpty
	}
	return s.pair, nil
}

func (s *MemoryStore) Set(_ context.Context, pair Pair) error {
	if err := pair.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.pair = pair.Normalized()
	s.set = true
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Clear(context.Context) error {
	s.mu.Lock()
	s.pair = Pair{}
	s.set = false
	s.mu.Unlock()
	return nil
}
