package article

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kneutral-org/articlelock/internal/database"
	"github.com/kneutral-org/articlelock/internal/metrics"
	"github.com/kneutral-org/articlelock/internal/user"
)

const articleSelect = `
	SELECT a.id, a.slug, a.title, a.description, a.body, a.tag_list, a.author_id,
	       a.favorites_count, a.created_at, a.updated_at,
	       u.id, u.username, u.email, u.bio, u.image, u.created_at
	FROM articles a
	JOIN users u ON u.id = a.author_id`

// PostgresStore is the PostgreSQL implementation of Store.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL article store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Create creates a new article together with its co-author relation.
func (s *PostgresStore) Create(ctx context.Context, a *Article) (*Article, error) {
	if a == nil || a.Title == "" || a.AuthorID == 0 {
		return nil, ErrInvalidArticle
	}
	if a.Slug == "" {
		a.Slug = Slugify(a.Title)
	}
	if a.HasCoAuthor(a.AuthorID) {
		return nil, ErrAuthorIsCoAuthor
	}
	if a.TagList == nil {
		a.TagList = []string{}
	}
	defer metrics.ObserveDatabaseQuery("article.create", time.Now())

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO articles (slug, title, description, body, tag_list, author_id)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id, created_at, updated_at`,
			a.Slug, a.Title, a.Description, a.Body, a.TagList, a.AuthorID,
		).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
		if err != nil {
			return err
		}
		return replaceCoAuthors(ctx, tx, a.ID, a.CoAuthorIDs())
	})
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, ErrDuplicateSlug
		}
		return nil, fmt.Errorf("insert article: %w", err)
	}

	created, err := s.GetBySlug(ctx, a.Slug)
	if err != nil {
		return nil, err
	}
	if err := s.LoadCoAuthors(ctx, created); err != nil {
		return nil, err
	}
	return created, nil
}

// GetByID retrieves an article with its author.
func (s *PostgresStore) GetByID(ctx context.Context, id int64) (*Article, error) {
	defer metrics.ObserveDatabaseQuery("article.get_by_id", time.Now())
	return scanArticle(s.pool.QueryRow(ctx, articleSelect+` WHERE a.id = $1`, id))
}

// GetBySlug retrieves an article with its author.
func (s *PostgresStore) GetBySlug(ctx context.Context, slug string) (*Article, error) {
	defer metrics.ObserveDatabaseQuery("article.get_by_slug", time.Now())
	return scanArticle(s.pool.QueryRow(ctx, articleSelect+` WHERE a.slug = $1`, slug))
}

func scanArticle(row pgx.Row) (*Article, error) {
	a := &Article{}
	err := row.Scan(
		&a.ID, &a.Slug, &a.Title, &a.Description, &a.Body, &a.TagList, &a.AuthorID,
		&a.FavoritesCount, &a.CreatedAt, &a.UpdatedAt,
		&a.Author.ID, &a.Author.Username, &a.Author.Email, &a.Author.Bio, &a.Author.Image, &a.Author.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query article: %w", err)
	}
	return a, nil
}

// LoadCoAuthors populates a.CoAuthors.
func (s *PostgresStore) LoadCoAuthors(ctx context.Context, a *Article) error {
	defer metrics.ObserveDatabaseQuery("article.load_co_authors", time.Now())

	rows, err := s.pool.Query(ctx, `
		SELECT u.id, u.username, u.email, u.bio, u.image, u.created_at
		FROM article_co_authors c
		JOIN users u ON u.id = c.user_id
		WHERE c.article_id = $1
		ORDER BY u.id`, a.ID)
	if err != nil {
		return fmt.Errorf("query co-authors: %w", err)
	}
	defer rows.Close()

	coAuthors := []user.User{}
	for rows.Next() {
		var u user.User
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.Bio, &u.Image, &u.CreatedAt); err != nil {
			return fmt.Errorf("scan co-author: %w", err)
		}
		coAuthors = append(coAuthors, u)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate co-authors: %w", err)
	}

	a.CoAuthors = coAuthors
	a.CoAuthorsLoaded = true
	return nil
}

// Update persists content fields and, when loaded, the co-author set in one transaction.
func (s *PostgresStore) Update(ctx context.Context, a *Article) (*Article, error) {
	if a == nil || a.Title == "" {
		return nil, ErrInvalidArticle
	}
	if a.CoAuthorsLoaded && a.HasCoAuthor(a.AuthorID) {
		return nil, ErrAuthorIsCoAuthor
	}
	if a.TagList == nil {
		a.TagList = []string{}
	}
	defer metrics.ObserveDatabaseQuery("article.update", time.Now())

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			UPDATE articles
			SET title = $2, description = $3, body = $4, tag_list = $5, updated_at = NOW()
			WHERE id = $1
			RETURNING updated_at`,
			a.ID, a.Title, a.Description, a.Body, a.TagList,
		).Scan(&a.UpdatedAt)
		if err != nil {
			return err
		}
		if !a.CoAuthorsLoaded {
			return nil
		}
		return replaceCoAuthors(ctx, tx, a.ID, a.CoAuthorIDs())
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update article: %w", err)
	}
	return a, nil
}

// IsFavorited reports whether the user favorited the article.
func (s *PostgresStore) IsFavorited(ctx context.Context, articleID, userID int64) (bool, error) {
	defer metrics.ObserveDatabaseQuery("article.is_favorited", time.Now())

	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM article_favorites WHERE article_id = $1 AND user_id = $2
		)`, articleID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query favorite: %w", err)
	}
	return exists, nil
}

func replaceCoAuthors(ctx context.Context, tx pgx.Tx, articleID int64, userIDs []int64) error {
	if _, err := tx.Exec(ctx, `DELETE FROM article_co_authors WHERE article_id = $1`, articleID); err != nil {
		return fmt.Errorf("clear co-authors: %w", err)
	}
	if len(userIDs) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO article_co_authors (article_id, user_id)
		SELECT $1, UNNEST($2::BIGINT[])
		ON CONFLICT DO NOTHING`, articleID, userIDs)
	if err != nil {
		return fmt.Errorf("insert co-authors: %w", err)
	}
	return nil
}
