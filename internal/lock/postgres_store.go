package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kneutral-org/articlelock/internal/metrics"
)

// tryAcquireQuery is a single conditional upsert keyed on the unique article_id.
// The DO UPDATE branch only fires when the stored lock has expired or belongs to
// the requester; otherwise no row is returned and the caller lost the race.
// A renewal keeps the stored id and acquired_at; a takeover writes a fresh row.
const tryAcquireQuery = `
	INSERT INTO article_locks (id, article_id, user_id, acquired_at, expires_at)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (article_id) DO UPDATE
	SET id = CASE WHEN article_locks.expires_at >= $4 THEN article_locks.id ELSE EXCLUDED.id END,
	    acquired_at = CASE WHEN article_locks.expires_at >= $4 THEN article_locks.acquired_at ELSE EXCLUDED.acquired_at END,
	    user_id = EXCLUDED.user_id,
	    expires_at = EXCLUDED.expires_at
	WHERE article_locks.expires_at < $4 OR article_locks.user_id = EXCLUDED.user_id
	RETURNING id, article_id, user_id, acquired_at, expires_at, (xmax = 0) AS inserted`

// PostgresStore is a PostgreSQL implementation of Store.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed lock store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// TryAcquire implements Store.TryAcquire with INSERT ... ON CONFLICT.
func (s *PostgresStore) TryAcquire(ctx context.Context, articleID, userID int64, now time.Time, ttl time.Duration) (Outcome, *ArticleLock, error) {
	defer metrics.ObserveDatabaseQuery("lock.try_acquire", time.Now())

	candidate := uuid.New()
	var (
		l        ArticleLock
		inserted bool
	)
	err := s.pool.QueryRow(ctx, tryAcquireQuery, candidate, articleID, userID, now, now.Add(ttl)).
		Scan(&l.ID, &l.ArticleID, &l.UserID, &l.AcquiredAt, &l.ExpiresAt, &inserted)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			held, getErr := s.Get(ctx, articleID)
			if getErr != nil && !errors.Is(getErr, ErrNoLock) {
				return OutcomeConflict, nil, getErr
			}
			return OutcomeConflict, held, nil
		}
		return OutcomeConflict, nil, fmt.Errorf("upsert article lock: %w", err)
	}

	switch {
	case inserted:
		return OutcomeCreated, &l, nil
	case l.ID == candidate:
		return OutcomeReplaced, &l, nil
	default:
		return OutcomeRenewed, &l, nil
	}
}

// Get implements Store.Get.
func (s *PostgresStore) Get(ctx context.Context, articleID int64) (*ArticleLock, error) {
	defer metrics.ObserveDatabaseQuery("lock.get", time.Now())

	var l ArticleLock
	err := s.pool.QueryRow(ctx, `
		SELECT id, article_id, user_id, acquired_at, expires_at
		FROM article_locks
		WHERE article_id = $1`, articleID).
		Scan(&l.ID, &l.ArticleID, &l.UserID, &l.AcquiredAt, &l.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoLock
		}
		return nil, fmt.Errorf("query article lock: %w", err)
	}
	return &l, nil
}

// Delete implements Store.Delete.
func (s *PostgresStore) Delete(ctx context.Context, articleID int64) (bool, error) {
	defer metrics.ObserveDatabaseQuery("lock.delete", time.Now())

	result, err := s.pool.Exec(ctx, "DELETE FROM article_locks WHERE article_id = $1", articleID)
	if err != nil {
		return false, fmt.Errorf("delete article lock: %w", err)
	}
	return result.RowsAffected() > 0, nil
}
