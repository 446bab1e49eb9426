package user

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/kneutral-org/articlelock/internal/metrics"
)

const cacheName = "users"

// CachedStore fronts a Store with a ristretto cache for ID and email lookups.
// Misses are not cached, so a newly registered co-author resolves immediately.
type CachedStore struct {
	next  Store
	cache *ristretto.Cache
	ttl   time.Duration
}

// NewCachedStore wraps next with a cache whose entries live for ttl.
func NewCachedStore(next Store, ttl time.Duration) (*CachedStore, error) {
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e4,
		MaxCost:     1 << 12,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create user cache: %w", err)
	}
	return &CachedStore{next: next, cache: c, ttl: ttl}, nil
}

// Create creates a user in the underlying store.
func (s *CachedStore) Create(ctx context.Context, u *User) (*User, error) {
	return s.next.Create(ctx, u)
}

// GetByID retrieves a user by ID, consulting the cache first.
func (s *CachedStore) GetByID(ctx context.Context, id int64) (*User, error) {
	return s.lookup("id:"+strconv.FormatInt(id, 10), func() (*User, error) {
		return s.next.GetByID(ctx, id)
	})
}

// GetByEmail retrieves a user by email, consulting the cache first.
func (s *CachedStore) GetByEmail(ctx context.Context, email string) (*User, error) {
	return s.lookup("email:"+NormalizeEmail(email), func() (*User, error) {
		return s.next.GetByEmail(ctx, email)
	})
}

// IsFollowing is not cached.
func (s *CachedStore) IsFollowing(ctx context.Context, followerID, followeeID int64) (bool, error) {
	return s.next.IsFollowing(ctx, followerID, followeeID)
}

// Close releases the cache.
func (s *CachedStore) Close() {
	s.cache.Close()
}

func (s *CachedStore) lookup(key string, load func() (*User, error)) (*User, error) {
	if v, ok := s.cache.Get(key); ok {
		if u, ok := v.(User); ok {
			metrics.RecordCacheOperation(cacheName, "hit")
			return &u, nil
		}
	}
	metrics.RecordCacheOperation(cacheName, "miss")

	u, err := load()
	if err != nil {
		return nil, err
	}

	s.cache.SetWithTTL(key, *u, 1, s.ttl)
	s.cache.Wait()
	return u, nil
}
