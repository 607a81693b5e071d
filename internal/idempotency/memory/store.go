package memory

import (
	"context"
	"sync"
)

// Store is an in-memory claim registry for tests and local development.
// The mutex plays the role of the database uniqueness constraint.
type Store struct {
	mu     sync.Mutex
	claims map[string]struct{}
}

// NewStore creates an empty in-memory claim store.
func NewStore() *Store {
	return &Store{claims: make(map[string]struct{})}
}

func (s *Store) Acquire(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.claims[key]; exists {
		return false, nil
	}
	s.claims[key] = struct{}{}
	return true, nil
}

func (s *Store) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.claims, key)
	return nil
}

// Claimed reports whether a key is currently held. Test helper.
func (s *Store) Claimed(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, exists := s.claims[key]
	return exists
}
