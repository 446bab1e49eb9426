package lock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const maxBadgerRetries = 10

// BadgerStore is an embedded Badger implementation of Store for single-node
// deployments. Acquisition is a read-modify-write transaction; Badger aborts
// one of two overlapping transactions with ErrConflict and the loser retries.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore wraps an open Badger database.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

// OpenBadger opens a Badger database at path. An empty path opens an in-memory database.
func OpenBadger(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	return db, nil
}

func badgerKey(articleID int64) []byte {
	return []byte("article-lock:" + strconv.FormatInt(articleID, 10))
}

// TryAcquire implements Store.TryAcquire.
func (s *BadgerStore) TryAcquire(ctx context.Context, articleID, userID int64, now time.Time, ttl time.Duration) (Outcome, *ArticleLock, error) {
	var (
		outcome Outcome
		result  *ArticleLock
	)

	for attempt := 0; attempt < maxBadgerRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return OutcomeConflict, nil, err
		}

		err := s.db.Update(func(txn *badger.Txn) error {
			current, err := readLock(txn, articleID)
			if err != nil && !errors.Is(err, ErrNoLock) {
				return err
			}

			outcome, result = decide(current, articleID, userID, now, ttl)
			if !outcome.Acquired() {
				return nil
			}

			data, err := json.Marshal(result)
			if err != nil {
				return err
			}
			return txn.Set(badgerKey(articleID), data)
		})
		if errors.Is(err, badger.ErrConflict) {
			continue
		}
		if err != nil {
			return OutcomeConflict, nil, fmt.Errorf("acquire lock transaction: %w", err)
		}
		return outcome, result, nil
	}

	return OutcomeConflict, nil, fmt.Errorf("acquire lock transaction: %w", badger.ErrConflict)
}

// Get implements Store.Get.
func (s *BadgerStore) Get(ctx context.Context, articleID int64) (*ArticleLock, error) {
	var l *ArticleLock
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		l, err = readLock(txn, articleID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return l, nil
}

// Delete implements Store.Delete.
func (s *BadgerStore) Delete(ctx context.Context, articleID int64) (bool, error) {
	deleted := false
	err := s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(badgerKey(articleID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		deleted = true
		return txn.Delete(badgerKey(articleID))
	})
	if err != nil {
		return false, fmt.Errorf("delete lock: %w", err)
	}
	return deleted, nil
}

func readLock(txn *badger.Txn, articleID int64) (*ArticleLock, error) {
	item, err := txn.Get(badgerKey(articleID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNoLock
	}
	if err != nil {
		return nil, err
	}

	var l ArticleLock
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &l)
	})
	if err != nil {
		return nil, fmt.Errorf("decode lock: %w", err)
	}
	return &l, nil
}
