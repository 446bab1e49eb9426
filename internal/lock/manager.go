package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/kneutral-org/articlelock/internal/article"
	"github.com/kneutral-org/articlelock/internal/metrics"
	"github.com/kneutral-org/articlelock/internal/user"
)

// Manager grants, renews and releases article edit locks.
type Manager struct {
	store    Store
	articles article.Store
	users    user.Store
	logger   zerolog.Logger
	ttl      time.Duration
	now      func() time.Time
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) ManagerOption {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithClock sets the time source used for expiry decisions.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a lock manager over the given stores.
func NewManager(store Store, articles article.Store, users user.Store, logger zerolog.Logger, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:    store,
		articles: articles,
		users:    users,
		logger:   logger.With().Str("component", "lock-manager").Logger(),
		ttl:      DefaultTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// TTL returns the lock lifetime granted on acquisition or renewal.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Acquire takes or renews the edit lock on articleID for userID.
// It returns false without error when the user or article does not exist
// or when another user holds a valid lock.
func (m *Manager) Acquire(ctx context.Context, articleID, userID int64) (bool, error) {
	if _, err := m.users.GetByID(ctx, userID); err != nil {
		if errors.Is(err, user.ErrNotFound) {
			metrics.RecordLockOperation("acquire", "user_not_found")
			return false, nil
		}
		metrics.RecordLockOperation("acquire", "error")
		return false, fmt.Errorf("load user: %w", err)
	}
	if _, err := m.articles.GetByID(ctx, articleID); err != nil {
		if errors.Is(err, article.ErrNotFound) {
			metrics.RecordLockOperation("acquire", "article_not_found")
			return false, nil
		}
		metrics.RecordLockOperation("acquire", "error")
		return false, fmt.Errorf("load article: %w", err)
	}

	return m.acquire(ctx, articleID, userID)
}

func (m *Manager) acquire(ctx context.Context, articleID, userID int64) (bool, error) {
	outcome, l, err := m.store.TryAcquire(ctx, articleID, userID, m.now(), m.ttl)
	if err != nil {
		metrics.RecordLockOperation("acquire", "error")
		m.logger.Error().
			Err(err).
			Int64("article_id", articleID).
			Int64("user_id", userID).
			Msg("Lock acquisition failed")
		return false, fmt.Errorf("acquire lock: %w", err)
	}

	metrics.RecordLockOperation("acquire", outcome.String())

	event := m.logger.Debug()
	if !outcome.Acquired() {
		event = m.logger.Info()
	}
	event = event.
		Int64("article_id", articleID).
		Int64("user_id", userID).
		Str("outcome", outcome.String())
	if l != nil {
		event = event.Int64("holder_id", l.UserID).Time("expires_at", l.ExpiresAt)
	}
	event.Msg("Lock acquisition decided")

	return outcome.Acquired(), nil
}

// Release removes any lock on articleID. It returns false only when the
// article does not exist; releasing an unlocked article succeeds.
func (m *Manager) Release(ctx context.Context, articleID int64) (bool, error) {
	if _, err := m.articles.GetByID(ctx, articleID); err != nil {
		if errors.Is(err, article.ErrNotFound) {
			metrics.RecordLockOperation("release", "article_not_found")
			return false, nil
		}
		metrics.RecordLockOperation("release", "error")
		return false, fmt.Errorf("load article: %w", err)
	}

	return m.release(ctx, articleID)
}

func (m *Manager) release(ctx context.Context, articleID int64) (bool, error) {
	deleted, err := m.store.Delete(ctx, articleID)
	if err != nil {
		metrics.RecordLockOperation("release", "error")
		return false, fmt.Errorf("release lock: %w", err)
	}

	result := "noop"
	if deleted {
		result = "released"
	}
	metrics.RecordLockOperation("release", result)
	m.logger.Debug().
		Int64("article_id", articleID).
		Bool("deleted", deleted).
		Msg("Lock released")

	return true, nil
}

// LockArticle acquires the lock on the article identified by slug.
// Unlike Acquire it reports a missing article or user as article.ErrNotFound or
// user.ErrNotFound, so false always means another user holds a valid lock.
func (m *Manager) LockArticle(ctx context.Context, userID int64, slug string) (bool, error) {
	a, err := m.articles.GetBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, article.ErrNotFound) {
			metrics.RecordLockOperation("acquire", "article_not_found")
			return false, err
		}
		return false, fmt.Errorf("load article: %w", err)
	}
	if _, err := m.users.GetByID(ctx, userID); err != nil {
		if errors.Is(err, user.ErrNotFound) {
			metrics.RecordLockOperation("acquire", "user_not_found")
			return false, err
		}
		return false, fmt.Errorf("load user: %w", err)
	}

	return m.acquire(ctx, a.ID, userID)
}

// UnlockArticle releases the lock on the article identified by slug.
func (m *Manager) UnlockArticle(ctx context.Context, slug string) (bool, error) {
	a, err := m.articles.GetBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, article.ErrNotFound) {
			metrics.RecordLockOperation("release", "article_not_found")
			return false, nil
		}
		return false, fmt.Errorf("load article: %w", err)
	}

	return m.release(ctx, a.ID)
}

// Status returns the valid lock on the article identified by slug.
// It returns article.ErrNotFound for an unknown slug and ErrNoLock when the
// article is unlocked or its lock has expired.
func (m *Manager) Status(ctx context.Context, slug string) (*ArticleLock, error) {
	a, err := m.articles.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}

	l, err := m.store.Get(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	if l.Expired(m.now()) {
		return nil, ErrNoLock
	}
	return l, nil
}
