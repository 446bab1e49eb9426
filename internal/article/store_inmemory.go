package article

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kneutral-org/articlelock/internal/user"
)

type storedArticle struct {
	article   Article
	coAuthors []int64
	favorites map[int64]struct{}
}

// InMemoryStore is an in-memory implementation of Store for testing and development.
// Authors and co-authors are hydrated from the user store on read.
type InMemoryStore struct {
	mu       sync.RWMutex
	users    user.Store
	articles map[int64]*storedArticle
	bySlug   map[string]int64
	nextID   int64
	now      func() time.Time
}

// NewInMemoryStore creates a new in-memory article store.
func NewInMemoryStore(users user.Store) *InMemoryStore {
	return &InMemoryStore{
		users:    users,
		articles: make(map[int64]*storedArticle),
		bySlug:   make(map[string]int64),
		now:      time.Now,
	}
}

// Create creates a new article.
func (s *InMemoryStore) Create(ctx context.Context, a *Article) (*Article, error) {
	if a == nil || a.Title == "" || a.AuthorID == 0 {
		return nil, ErrInvalidArticle
	}
	if a.Slug == "" {
		a.Slug = Slugify(a.Title)
	}
	for _, c := range a.CoAuthors {
		if c.ID == a.AuthorID {
			return nil, ErrAuthorIsCoAuthor
		}
	}

	author, err := s.users.GetByID(ctx, a.AuthorID)
	if err != nil {
		return nil, fmt.Errorf("load author: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.bySlug[a.Slug]; ok {
		return nil, ErrDuplicateSlug
	}

	s.nextID++
	now := s.now()
	a.ID = s.nextID
	a.Author = *author
	a.CreatedAt = now
	a.UpdatedAt = now
	a.CoAuthorsLoaded = true

	stored := &storedArticle{
		article:   *a,
		coAuthors: a.CoAuthorIDs(),
		favorites: make(map[int64]struct{}),
	}
	stored.article.TagList = append([]string(nil), a.TagList...)
	stored.article.CoAuthors = nil
	s.articles[a.ID] = stored
	s.bySlug[a.Slug] = a.ID

	return a, nil
}

// GetByID retrieves an article with its author.
func (s *InMemoryStore) GetByID(ctx context.Context, id int64) (*Article, error) {
	s.mu.RLock()
	stored, ok := s.articles[id]
	if !ok {
		s.mu.RUnlock()
		return nil, ErrNotFound
	}
	result := stored.article
	s.mu.RUnlock()

	return s.hydrate(ctx, result)
}

// GetBySlug retrieves an article with its author.
func (s *InMemoryStore) GetBySlug(ctx context.Context, slug string) (*Article, error) {
	s.mu.RLock()
	id, ok := s.bySlug[slug]
	if !ok {
		s.mu.RUnlock()
		return nil, ErrNotFound
	}
	result := s.articles[id].article
	s.mu.RUnlock()

	return s.hydrate(ctx, result)
}

func (s *InMemoryStore) hydrate(ctx context.Context, result Article) (*Article, error) {
	result.TagList = append([]string(nil), result.TagList...)
	result.CoAuthors = nil
	result.CoAuthorsLoaded = false

	author, err := s.users.GetByID(ctx, result.AuthorID)
	if err != nil {
		return nil, fmt.Errorf("load author: %w", err)
	}
	result.Author = *author

	return &result, nil
}

// LoadCoAuthors populates a.CoAuthors.
func (s *InMemoryStore) LoadCoAuthors(ctx context.Context, a *Article) error {
	s.mu.RLock()
	stored, ok := s.articles[a.ID]
	if !ok {
		s.mu.RUnlock()
		return ErrNotFound
	}
	ids := append([]int64(nil), stored.coAuthors...)
	s.mu.RUnlock()

	coAuthors := make([]user.User, 0, len(ids))
	for _, id := range ids {
		u, err := s.users.GetByID(ctx, id)
		if err != nil {
			return fmt.Errorf("load co-author %d: %w", id, err)
		}
		coAuthors = append(coAuthors, *u)
	}

	a.CoAuthors = coAuthors
	a.CoAuthorsLoaded = true
	return nil
}

// Update persists content fields and, when loaded, the co-author set.
func (s *InMemoryStore) Update(ctx context.Context, a *Article) (*Article, error) {
	if a == nil || a.Title == "" {
		return nil, ErrInvalidArticle
	}
	if a.CoAuthorsLoaded && a.HasCoAuthor(a.AuthorID) {
		return nil, ErrAuthorIsCoAuthor
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.articles[a.ID]
	if !ok {
		return nil, ErrNotFound
	}

	stored.article.Title = a.Title
	stored.article.Description = a.Description
	stored.article.Body = a.Body
	stored.article.TagList = append([]string(nil), a.TagList...)
	stored.article.UpdatedAt = s.now()
	if a.CoAuthorsLoaded {
		stored.coAuthors = a.CoAuthorIDs()
	}

	a.UpdatedAt = stored.article.UpdatedAt
	return a, nil
}

// IsFavorited reports whether the user favorited the article.
func (s *InMemoryStore) IsFavorited(ctx context.Context, articleID, userID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.articles[articleID]
	if !ok {
		return false, ErrNotFound
	}
	_, fav := stored.favorites[userID]
	return fav, nil
}

// Favorite marks the article as favorited by the user.
func (s *InMemoryStore) Favorite(articleID, userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.articles[articleID]
	if !ok {
		return
	}
	if _, fav := stored.favorites[userID]; !fav {
		stored.favorites[userID] = struct{}{}
		stored.article.FavoritesCount++
	}
}
