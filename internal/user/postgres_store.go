package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kneutral-org/articlelock/internal/database"
	"github.com/kneutral-org/articlelock/internal/metrics"
)

const userColumns = `id, username, email, bio, image, created_at`

// PostgresStore is the PostgreSQL implementation of Store.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL user store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Create creates a new user.
func (s *PostgresStore) Create(ctx context.Context, u *User) (*User, error) {
	if u == nil || u.Email == "" || u.Username == "" {
		return nil, ErrInvalidUser
	}
	defer metrics.ObserveDatabaseQuery("user.create", time.Now())

	row := s.pool.QueryRow(ctx, `
		INSERT INTO users (username, email, bio, image)
		VALUES ($1, $2, $3, $4)
		RETURNING `+userColumns,
		u.Username, u.Email, u.Bio, u.Image,
	)
	created, err := scanUser(row)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, ErrDuplicateUser
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return created, nil
}

// GetByID retrieves a user by ID.
func (s *PostgresStore) GetByID(ctx context.Context, id int64) (*User, error) {
	defer metrics.ObserveDatabaseQuery("user.get_by_id", time.Now())

	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query user by id: %w", err)
	}
	return u, nil
}

// GetByEmail retrieves a user by email.
func (s *PostgresStore) GetByEmail(ctx context.Context, email string) (*User, error) {
	defer metrics.ObserveDatabaseQuery("user.get_by_email", time.Now())

	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(email) = $1`, NormalizeEmail(email))
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query user by email: %w", err)
	}
	return u, nil
}

// IsFollowing reports whether follower follows followee.
func (s *PostgresStore) IsFollowing(ctx context.Context, followerID, followeeID int64) (bool, error) {
	defer metrics.ObserveDatabaseQuery("user.is_following", time.Now())

	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM user_follows WHERE follower_id = $1 AND followee_id = $2
		)`, followerID, followeeID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query follow: %w", err)
	}
	return exists, nil
}

func scanUser(row pgx.Row) (*User, error) {
	u := &User{}
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.Bio, &u.Image, &u.CreatedAt); err != nil {
		return nil, err
	}
	return u, nil
}
