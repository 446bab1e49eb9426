package article

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when an article cannot be found.
	ErrNotFound = errors.New("article not found")
	// ErrInvalidArticle is returned when an article is missing required fields.
	ErrInvalidArticle = errors.New("invalid article")
	// ErrDuplicateSlug is returned when the slug is already taken.
	ErrDuplicateSlug = errors.New("duplicate slug")
	// ErrAuthorIsCoAuthor is returned when the author appears in the co-author set.
	ErrAuthorIsCoAuthor = errors.New("author cannot be a co-author")
)

// Store defines the interface for article persistence.
type Store interface {
	// Create creates a new article. The slug is derived from the title when empty.
	Create(ctx context.Context, a *Article) (*Article, error)

	// GetByID retrieves an article with its author. Co-authors are not loaded.
	GetByID(ctx context.Context, id int64) (*Article, error)

	// GetBySlug retrieves an article with its author. Co-authors are not loaded.
	GetBySlug(ctx context.Context, slug string) (*Article, error)

	// LoadCoAuthors populates a.CoAuthors from the stored relation.
	LoadCoAuthors(ctx context.Context, a *Article) error

	// Update persists the mutable content fields and, when loaded, the co-author set.
	// The write is atomic: either every change is stored or none is.
	Update(ctx context.Context, a *Article) (*Article, error)

	// IsFavorited reports whether the user favorited the article.
	IsFavorited(ctx context.Context, articleID, userID int64) (bool, error)
}
