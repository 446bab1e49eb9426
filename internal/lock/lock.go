// Package lock provides the time-boxed article edit lock. At most one lock
// exists per article; it is held by one user until it is released or expires.
package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// DefaultTTL is how long an edit lock stays valid after acquisition or renewal.
const DefaultTTL = 5 * time.Minute

var (
	// ErrNoLock is returned when an article has no active lock.
	ErrNoLock = errors.New("article has no active lock")
	// ErrLocked is returned when another user holds a valid lock on the article.
	ErrLocked = errors.New("article is locked by another user")
)

// ArticleLock is the exclusive edit intent of one user on one article.
type ArticleLock struct {
	ID         uuid.UUID `json:"id"`
	ArticleID  int64     `json:"articleId"`
	UserID     int64     `json:"userId"`
	AcquiredAt time.Time `json:"acquiredAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// Expired reports whether the lock expiration is strictly before now.
func (l *ArticleLock) Expired(now time.Time) bool {
	return l.ExpiresAt.Before(now)
}

// Outcome is the result of an acquisition attempt.
type Outcome int

const (
	// OutcomeConflict means a different user holds a valid lock. Nothing changed.
	OutcomeConflict Outcome = iota
	// OutcomeCreated means no lock existed and a fresh one was created.
	OutcomeCreated
	// OutcomeRenewed means the requester already held the lock and its expiration was extended.
	OutcomeRenewed
	// OutcomeReplaced means an expired lock was superseded by a fresh one.
	OutcomeReplaced
)

// Acquired reports whether the requester holds the lock after the attempt.
func (o Outcome) Acquired() bool {
	return o != OutcomeConflict
}

func (o Outcome) String() string {
	switch o {
	case OutcomeCreated:
		return "created"
	case OutcomeRenewed:
		return "renewed"
	case OutcomeReplaced:
		return "replaced"
	default:
		return "conflict"
	}
}

// Store persists lock rows. Implementations must make TryAcquire atomic per
// article: the read of the current lock and the resulting write happen as one
// unit, so two concurrent callers can never both observe "no valid lock".
type Store interface {
	// TryAcquire applies the acquisition rules for userID on articleID at now.
	// It returns the lock as stored after the attempt; on conflict that is the
	// unchanged lock of the current holder.
	TryAcquire(ctx context.Context, articleID, userID int64, now time.Time, ttl time.Duration) (Outcome, *ArticleLock, error)

	// Get returns the stored lock for the article, or ErrNoLock.
	Get(ctx context.Context, articleID int64) (*ArticleLock, error)

	// Delete removes the lock for the article. It reports whether a row was removed.
	Delete(ctx context.Context, articleID int64) (bool, error)
}

// decide applies the acquisition rules to the current lock, which may be nil.
// Stores call it inside their critical section.
func decide(current *ArticleLock, articleID, userID int64, now time.Time, ttl time.Duration) (Outcome, *ArticleLock) {
	fresh := func() *ArticleLock {
		return &ArticleLock{
			ID:         uuid.New(),
			ArticleID:  articleID,
			UserID:     userID,
			AcquiredAt: now,
			ExpiresAt:  now.Add(ttl),
		}
	}

	switch {
	case current == nil:
		return OutcomeCreated, fresh()
	case current.Expired(now):
		return OutcomeReplaced, fresh()
	case current.UserID == userID:
		renewed := *current
		renewed.ExpiresAt = now.Add(ttl)
		return OutcomeRenewed, &renewed
	default:
		held := *current
		return OutcomeConflict, &held
	}
}
