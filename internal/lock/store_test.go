package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeFixture names the article and user ids a Store suite may lock with.
type storeFixture struct {
	articles []int64
	users    []int64
}

func syntheticFixture() storeFixture {
	return storeFixture{
		articles: []int64{101, 102, 103, 104, 105, 106},
		users:    []int64{1, 2, 3, 4, 5, 6, 7, 8},
	}
}

var baseTime = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

// runStoreSuite exercises a Store implementation against the shared contract.
func runStoreSuite(t *testing.T, store Store, fx storeFixture) {
	ctx := context.Background()
	userA, userB := fx.users[0], fx.users[1]

	t.Run("create on unlocked article", func(t *testing.T) {
		articleID := fx.articles[0]

		_, err := store.Get(ctx, articleID)
		require.ErrorIs(t, err, ErrNoLock)

		outcome, l, err := store.TryAcquire(ctx, articleID, userA, baseTime, DefaultTTL)
		require.NoError(t, err)
		assert.Equal(t, OutcomeCreated, outcome)
		assert.Equal(t, userA, l.UserID)
		assert.True(t, l.ExpiresAt.Equal(baseTime.Add(DefaultTTL)))

		stored, err := store.Get(ctx, articleID)
		require.NoError(t, err)
		assert.Equal(t, l.ID, stored.ID)
		assert.Equal(t, articleID, stored.ArticleID)
	})

	t.Run("conflict leaves lock unchanged", func(t *testing.T) {
		articleID := fx.articles[1]
		_, held, err := store.TryAcquire(ctx, articleID, userA, baseTime, DefaultTTL)
		require.NoError(t, err)

		outcome, l, err := store.TryAcquire(ctx, articleID, userB, baseTime.Add(time.Minute), DefaultTTL)
		require.NoError(t, err)
		assert.Equal(t, OutcomeConflict, outcome)
		require.NotNil(t, l)
		assert.Equal(t, userA, l.UserID)

		stored, err := store.Get(ctx, articleID)
		require.NoError(t, err)
		assert.Equal(t, held.ID, stored.ID)
		assert.Equal(t, userA, stored.UserID)
		assert.True(t, stored.ExpiresAt.Equal(held.ExpiresAt))
	})

	t.Run("renewal extends from renewal time", func(t *testing.T) {
		articleID := fx.articles[2]
		_, first, err := store.TryAcquire(ctx, articleID, userA, baseTime, DefaultTTL)
		require.NoError(t, err)

		renewAt := baseTime.Add(3 * time.Minute)
		outcome, renewed, err := store.TryAcquire(ctx, articleID, userA, renewAt, DefaultTTL)
		require.NoError(t, err)
		assert.Equal(t, OutcomeRenewed, outcome)
		assert.Equal(t, first.ID, renewed.ID)
		assert.True(t, renewed.ExpiresAt.Equal(renewAt.Add(DefaultTTL)))
		assert.True(t, renewed.AcquiredAt.Equal(first.AcquiredAt))
	})

	t.Run("expired lock is replaced", func(t *testing.T) {
		articleID := fx.articles[3]
		_, stale, err := store.TryAcquire(ctx, articleID, userA, baseTime, DefaultTTL)
		require.NoError(t, err)

		later := baseTime.Add(DefaultTTL + time.Second)
		outcome, fresh, err := store.TryAcquire(ctx, articleID, userB, later, DefaultTTL)
		require.NoError(t, err)
		assert.Equal(t, OutcomeReplaced, outcome)
		assert.NotEqual(t, stale.ID, fresh.ID)
		assert.Equal(t, userB, fresh.UserID)
		assert.True(t, fresh.ExpiresAt.Equal(later.Add(DefaultTTL)))

		stored, err := store.Get(ctx, articleID)
		require.NoError(t, err)
		assert.Equal(t, fresh.ID, stored.ID)
	})

	t.Run("lock expiring exactly now is still valid", func(t *testing.T) {
		articleID := fx.articles[4]
		_, _, err := store.TryAcquire(ctx, articleID, userA, baseTime, DefaultTTL)
		require.NoError(t, err)

		outcome, _, err := store.TryAcquire(ctx, articleID, userB, baseTime.Add(DefaultTTL), DefaultTTL)
		require.NoError(t, err)
		assert.Equal(t, OutcomeConflict, outcome)
	})

	t.Run("delete", func(t *testing.T) {
		articleID := fx.articles[0]

		deleted, err := store.Delete(ctx, articleID)
		require.NoError(t, err)
		assert.True(t, deleted)

		deleted, err = store.Delete(ctx, articleID)
		require.NoError(t, err)
		assert.False(t, deleted)

		_, err = store.Get(ctx, articleID)
		assert.ErrorIs(t, err, ErrNoLock)
	})

	t.Run("concurrent acquires have one winner", func(t *testing.T) {
		articleID := fx.articles[5]
		now := baseTime

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			winners []int64
		)
		for _, uid := range fx.users {
			wg.Add(1)
			go func(uid int64) {
				defer wg.Done()
				outcome, _, err := store.TryAcquire(ctx, articleID, uid, now, DefaultTTL)
				assert.NoError(t, err)
				if outcome.Acquired() {
					mu.Lock()
					winners = append(winners, uid)
					mu.Unlock()
				}
			}(uid)
		}
		wg.Wait()

		require.Len(t, winners, 1)
		stored, err := store.Get(ctx, articleID)
		require.NoError(t, err)
		assert.Equal(t, winners[0], stored.UserID)
	})
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	runStoreSuite(t, store, syntheticFixture())
}

func TestMemoryStore_Len(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _, err := store.TryAcquire(ctx, 7, int64(i+1), baseTime, DefaultTTL)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, store.Len())
}

func TestBadgerStore(t *testing.T) {
	db, err := OpenBadger("")
	require.NoError(t, err)
	defer db.Close()

	runStoreSuite(t, NewBadgerStore(db), syntheticFixture())
}

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisStore(client), mr
}

func TestRedisStore(t *testing.T) {
	store, _ := newTestRedisStore(t)
	runStoreSuite(t, store, syntheticFixture())
}

func TestRedisStore_KeyLayout(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()

	_, l, err := store.TryAcquire(ctx, 42, 7, baseTime, DefaultTTL)
	require.NoError(t, err)

	assert.True(t, mr.Exists("article-lock:42"))
	assert.Equal(t, "7", mr.HGet("article-lock:42", "user_id"))
	assert.Equal(t, l.ID.String(), mr.HGet("article-lock:42", "id"))
	assert.Equal(t, DefaultTTL+keyExpiryGrace, mr.TTL("article-lock:42"))
}

func TestRedisStore_KeyExpiresAfterTTL(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()

	_, _, err := store.TryAcquire(ctx, 42, 7, baseTime, DefaultTTL)
	require.NoError(t, err)

	mr.FastForward(DefaultTTL + 2*keyExpiryGrace)

	_, err = store.Get(ctx, 42)
	assert.ErrorIs(t, err, ErrNoLock)
}

func TestRedisStore_WithKeyPrefix(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := NewRedisStore(client, WithKeyPrefix("test:locks:"))
	_, _, err = store.TryAcquire(context.Background(), 1, 2, baseTime, DefaultTTL)
	require.NoError(t, err)

	assert.True(t, mr.Exists("test:locks:1"))
}

func TestDecide(t *testing.T) {
	current := &ArticleLock{ArticleID: 1, UserID: 1, AcquiredAt: baseTime, ExpiresAt: baseTime.Add(DefaultTTL)}

	outcome, l := decide(nil, 1, 1, baseTime, DefaultTTL)
	assert.Equal(t, OutcomeCreated, outcome)
	assert.Equal(t, baseTime.Add(DefaultTTL), l.ExpiresAt)

	outcome, l = decide(current, 1, 2, baseTime.Add(time.Minute), DefaultTTL)
	assert.Equal(t, OutcomeConflict, outcome)
	assert.Equal(t, *current, *l)

	outcome, l = decide(current, 1, 1, baseTime.Add(time.Minute), DefaultTTL)
	assert.Equal(t, OutcomeRenewed, outcome)
	assert.Equal(t, baseTime.Add(time.Minute+DefaultTTL), l.ExpiresAt)
	assert.Equal(t, baseTime.Add(DefaultTTL), current.ExpiresAt, "current lock must not be mutated")

	outcome, l = decide(current, 1, 2, baseTime.Add(DefaultTTL+time.Nanosecond), DefaultTTL)
	assert.Equal(t, OutcomeReplaced, outcome)
	assert.Equal(t, int64(2), l.UserID)
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "created", OutcomeCreated.String())
	assert.Equal(t, "renewed", OutcomeRenewed.String())
	assert.Equal(t, "replaced", OutcomeReplaced.String())
	assert.Equal(t, "conflict", OutcomeConflict.String())
	assert.False(t, OutcomeConflict.Acquired())
	assert.True(t, OutcomeReplaced.Acquired())
}
