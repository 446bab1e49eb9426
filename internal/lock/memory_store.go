package lock

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory implementation of Store for testing and development.
// A single mutex serializes every check-then-act sequence.
type MemoryStore struct {
	mu    sync.Mutex
	locks map[int64]ArticleLock
}

// NewMemoryStore creates a new in-memory lock store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		locks: make(map[int64]ArticleLock),
	}
}

// TryAcquire implements Store.TryAcquire.
func (s *MemoryStore) TryAcquire(ctx context.Context, articleID, userID int64, now time.Time, ttl time.Duration) (Outcome, *ArticleLock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var current *ArticleLock
	if existing, ok := s.locks[articleID]; ok {
		current = &existing
	}

	outcome, next := decide(current, articleID, userID, now, ttl)
	if outcome.Acquired() {
		s.locks[articleID] = *next
	}

	return outcome, next, nil
}

// Get implements Store.Get.
func (s *MemoryStore) Get(ctx context.Context, articleID int64) (*ArticleLock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[articleID]
	if !ok {
		return nil, ErrNoLock
	}
	return &l, nil
}

// Delete implements Store.Delete.
func (s *MemoryStore) Delete(ctx context.Context, articleID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.locks[articleID]; !ok {
		return false, nil
	}
	delete(s.locks, articleID)
	return true, nil
}

// Len returns the number of stored lock rows (for testing).
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.locks)
}
