package user

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a user cannot be found.
	ErrNotFound = errors.New("user not found")
	// ErrInvalidUser is returned when a user is missing required fields.
	ErrInvalidUser = errors.New("invalid user")
	// ErrDuplicateUser is returned when the email or username is already taken.
	ErrDuplicateUser = errors.New("duplicate user")
)

// Store defines the interface for user persistence.
type Store interface {
	// Create creates a new user.
	Create(ctx context.Context, u *User) (*User, error)

	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id int64) (*User, error)

	// GetByEmail retrieves a user by email, case-insensitively.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// IsFollowing reports whether follower follows followee.
	IsFollowing(ctx context.Context, followerID, followeeID int64) (bool, error)
}
