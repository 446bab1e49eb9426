package lock

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// keyExpiryGrace keeps the Redis key around slightly longer than the logical
// lock so a lock expiring exactly at now is still readable.
const keyExpiryGrace = time.Second

// tryAcquireScript reads and writes the per-article hash in one script call.
// KEYS[1] lock key
// ARGV[1] candidate id, ARGV[2] user id, ARGV[3] now (ms), ARGV[4] expires at (ms), ARGV[5] key ttl (ms)
// Returns {outcome, id, user_id, acquired_at, expires_at}.
var tryAcquireScript = redis.NewScript(`
	local cur = redis.call("HMGET", KEYS[1], "id", "user_id", "acquired_at", "expires_at")
	if cur[1] == false or tonumber(cur[4]) < tonumber(ARGV[3]) then
		local outcome = "1"
		if cur[1] ~= false then
			outcome = "3"
		end
		redis.call("HSET", KEYS[1], "id", ARGV[1], "user_id", ARGV[2], "acquired_at", ARGV[3], "expires_at", ARGV[4])
		redis.call("PEXPIRE", KEYS[1], ARGV[5])
		return {outcome, ARGV[1], ARGV[2], ARGV[3], ARGV[4]}
	end
	if cur[2] == ARGV[2] then
		redis.call("HSET", KEYS[1], "expires_at", ARGV[4])
		redis.call("PEXPIRE", KEYS[1], ARGV[5])
		return {"2", cur[1], cur[2], cur[3], ARGV[4]}
	end
	return {"0", cur[1], cur[2], cur[3], cur[4]}
`)

// RedisStore is a Redis implementation of Store. Each lock is a hash under
// "<prefix><articleID>" and acquisition runs as a single Lua script, so the
// check-then-set is atomic across every process sharing the Redis instance.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// RedisStoreOption configures a RedisStore.
type RedisStoreOption func(*RedisStore)

// WithKeyPrefix sets the key prefix for lock hashes.
func WithKeyPrefix(prefix string) RedisStoreOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// NewRedisStore creates a new Redis-backed lock store.
func NewRedisStore(client *redis.Client, opts ...RedisStoreOption) *RedisStore {
	s := &RedisStore{
		client: client,
		prefix: "article-lock:",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) key(articleID int64) string {
	return s.prefix + strconv.FormatInt(articleID, 10)
}

// TryAcquire implements Store.TryAcquire.
func (s *RedisStore) TryAcquire(ctx context.Context, articleID, userID int64, now time.Time, ttl time.Duration) (Outcome, *ArticleLock, error) {
	expiresAt := now.Add(ttl)
	fields, err := tryAcquireScript.Run(ctx, s.client, []string{s.key(articleID)},
		uuid.NewString(),
		strconv.FormatInt(userID, 10),
		strconv.FormatInt(now.UnixMilli(), 10),
		strconv.FormatInt(expiresAt.UnixMilli(), 10),
		strconv.FormatInt((ttl+keyExpiryGrace).Milliseconds(), 10),
	).StringSlice()
	if err != nil {
		return OutcomeConflict, nil, fmt.Errorf("run acquire script: %w", err)
	}
	if len(fields) != 5 {
		return OutcomeConflict, nil, fmt.Errorf("acquire script returned %d fields", len(fields))
	}

	code, err := strconv.Atoi(fields[0])
	if err != nil {
		return OutcomeConflict, nil, fmt.Errorf("parse outcome: %w", err)
	}
	l, err := parseLockFields(articleID, fields[1], fields[2], fields[3], fields[4])
	if err != nil {
		return OutcomeConflict, nil, err
	}
	return Outcome(code), l, nil
}

// Get implements Store.Get.
func (s *RedisStore) Get(ctx context.Context, articleID int64) (*ArticleLock, error) {
	values, err := s.client.HGetAll(ctx, s.key(articleID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNoLock
		}
		return nil, fmt.Errorf("read lock hash: %w", err)
	}
	if len(values) == 0 {
		return nil, ErrNoLock
	}
	return parseLockFields(articleID, values["id"], values["user_id"], values["acquired_at"], values["expires_at"])
}

// Delete implements Store.Delete.
func (s *RedisStore) Delete(ctx context.Context, articleID int64) (bool, error) {
	n, err := s.client.Del(ctx, s.key(articleID)).Result()
	if err != nil {
		return false, fmt.Errorf("delete lock hash: %w", err)
	}
	return n > 0, nil
}

func parseLockFields(articleID int64, id, userID, acquiredAt, expiresAt string) (*ArticleLock, error) {
	lockID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse lock id: %w", err)
	}
	uid, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse lock user: %w", err)
	}
	acquired, err := strconv.ParseInt(acquiredAt, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse lock acquired_at: %w", err)
	}
	expires, err := strconv.ParseInt(expiresAt, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse lock expires_at: %w", err)
	}
	return &ArticleLock{
		ID:         lockID,
		ArticleID:  articleID,
		UserID:     uid,
		AcquiredAt: time.UnixMilli(acquired).UTC(),
		ExpiresAt:  time.UnixMilli(expires).UTC(),
	}, nil
}
