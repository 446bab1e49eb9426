package editor

import (
	"errors"
	"fmt"

	"github.com/kneutral-org/articlelock/internal/user"
)

// ErrPersistence is returned when the article store fails to save an update.
var ErrPersistence = errors.New("failed to persist article")

// CoAuthorError reports a co-author email that does not belong to any user.
type CoAuthorError struct {
	Email string
}

func (e *CoAuthorError) Error() string {
	return fmt.Sprintf("co-author not found: %s", e.Email)
}

// Unwrap lets callers match the error with errors.Is(err, user.ErrNotFound).
func (e *CoAuthorError) Unwrap() error {
	return user.ErrNotFound
}
