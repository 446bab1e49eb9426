package user

import (
	"context"
	"sync"
	"time"
)

type followKey struct {
	follower int64
	followee int64
}

// InMemoryStore is an in-memory implementation of Store for testing and development.
type InMemoryStore struct {
	mu      sync.RWMutex
	users   map[int64]*User
	byEmail map[string]int64
	follows map[followKey]struct{}
	nextID  int64
}

// NewInMemoryStore creates a new in-memory user store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		users:   make(map[int64]*User),
		byEmail: make(map[string]int64),
		follows: make(map[followKey]struct{}),
	}
}

// Create creates a new user.
func (s *InMemoryStore) Create(ctx context.Context, u *User) (*User, error) {
	if u == nil || u.Email == "" || u.Username == "" {
		return nil, ErrInvalidUser
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	email := NormalizeEmail(u.Email)
	if _, ok := s.byEmail[email]; ok {
		return nil, ErrDuplicateUser
	}
	for _, existing := range s.users {
		if existing.Username == u.Username {
			return nil, ErrDuplicateUser
		}
	}

	s.nextID++
	u.ID = s.nextID
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}

	stored := *u
	s.users[u.ID] = &stored
	s.byEmail[email] = u.ID

	return u, nil
}

// GetByID retrieves a user by ID.
func (s *InMemoryStore) GetByID(ctx context.Context, id int64) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	result := *u
	return &result, nil
}

// GetByEmail retrieves a user by email.
func (s *InMemoryStore) GetByEmail(ctx context.Context, email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[NormalizeEmail(email)]
	if !ok {
		return nil, ErrNotFound
	}
	result := *s.users[id]
	return &result, nil
}

// IsFollowing reports whether follower follows followee.
func (s *InMemoryStore) IsFollowing(ctx context.Context, followerID, followeeID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.follows[followKey{followerID, followeeID}]
	return ok, nil
}

// Follow records that follower follows followee.
func (s *InMemoryStore) Follow(followerID, followeeID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.follows[followKey{followerID, followeeID}] = struct{}{}
}
