// Package editor coordinates article updates under the edit lock.
package editor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kneutral-org/articlelock/internal/article"
	"github.com/kneutral-org/articlelock/internal/lock"
	"github.com/kneutral-org/articlelock/internal/logging"
	"github.com/kneutral-org/articlelock/internal/metrics"
	"github.com/kneutral-org/articlelock/internal/user"
)

var tracer = otel.Tracer("github.com/kneutral-org/articlelock/internal/editor")

// Locker grants and releases the per-article edit lock.
type Locker interface {
	Acquire(ctx context.Context, articleID, userID int64) (bool, error)
	Release(ctx context.Context, articleID int64) (bool, error)
}

// Coordinator applies article patches while holding the article's edit lock.
type Coordinator struct {
	articles article.Store
	users    user.Store
	locker   Locker
	logger   zerolog.Logger
}

// NewCoordinator creates a new update coordinator.
func NewCoordinator(articles article.Store, users user.Store, locker Locker, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		articles: articles,
		users:    users,
		locker:   locker,
		logger:   logger.With().Str("component", "editor").Logger(),
	}
}

// UpdateArticle applies patch to the article identified by slug on behalf of
// userID and returns the updated representation as seen by that user.
//
// Errors: user.ErrNotFound or article.ErrNotFound for unknown ids, lock.ErrLocked
// when another user holds the lock, *CoAuthorError for an unknown co-author
// email, ErrPersistence when the store rejects the write. Nothing is written
// unless the update succeeds.
func (c *Coordinator) UpdateArticle(ctx context.Context, userID int64, slug string, patch article.Patch) (view *article.View, err error) {
	ctx, span := tracer.Start(ctx, "editor.UpdateArticle", trace.WithAttributes(
		attribute.String("article.slug", slug),
		attribute.Int64("user.id", userID),
	))
	start := time.Now()
	defer func() {
		metrics.RecordArticleUpdate(updateResult(err), time.Since(start).Seconds())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	logger := logging.ArticleLogger(logging.LoggerFromContext(ctx, c.logger), slug, userID)

	requester, err := c.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load requester: %w", err)
	}
	a, err := c.articles.GetBySlug(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("load article: %w", err)
	}

	acquired, err := c.locker.Acquire(ctx, a.ID, requester.ID)
	if err != nil {
		return nil, err
	}
	if !acquired {
		logger.Info().Msg("Update rejected, article is being edited by another user")
		return nil, lock.ErrLocked
	}
	span.AddEvent("lock acquired")
	defer c.release(ctx, logger, a.ID)

	change, err := c.resolveCoAuthors(ctx, a, requester.ID, patch.CoAuthors)
	if err != nil {
		logger.Info().Err(err).Msg("Update rejected, co-authors did not resolve")
		return nil, err
	}

	if !a.CoAuthorsLoaded {
		if err := c.articles.LoadCoAuthors(ctx, a); err != nil {
			return nil, fmt.Errorf("load co-authors: %w", err)
		}
	}
	if change.replace {
		a.CoAuthors = change.users
	}
	patch.Apply(a)

	updated, err := c.articles.Update(ctx, a)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to persist article update")
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	logger.Info().
		Int64("articleId", updated.ID).
		Bool("coAuthorsReplaced", change.replace).
		Int("coAuthors", len(updated.CoAuthors)).
		Msg("Article updated")

	return c.view(ctx, updated, requester.ID), nil
}

// release drops the lock after an update. Failures are logged, never returned,
// because the update outcome is already decided.
func (c *Coordinator) release(ctx context.Context, logger zerolog.Logger, articleID int64) {
	released, err := c.locker.Release(context.WithoutCancel(ctx), articleID)
	switch {
	case err != nil:
		logger.Warn().Err(err).Int64("articleId", articleID).Msg("Failed to release article lock")
	case !released:
		logger.Warn().Int64("articleId", articleID).Msg("Article lock release reported no article")
	}
}

// Article returns the representation of the article identified by slug as
// seen by viewerID. A zero viewerID is an anonymous reader.
func (c *Coordinator) Article(ctx context.Context, viewerID int64, slug string) (*article.View, error) {
	a, err := c.articles.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if err := c.articles.LoadCoAuthors(ctx, a); err != nil {
		return nil, fmt.Errorf("load co-authors: %w", err)
	}
	return c.view(ctx, a, viewerID), nil
}

// view builds the representation of a for viewerID. Lookup failures for
// favorited and following flags degrade to false.
func (c *Coordinator) view(ctx context.Context, a *article.Article, viewerID int64) *article.View {
	if viewerID == 0 {
		return article.NewView(a, false, nil)
	}

	favorited, err := c.articles.IsFavorited(ctx, a.ID, viewerID)
	if err != nil {
		c.logger.Warn().Err(err).Int64("articleId", a.ID).Msg("Failed to load favorite flag")
	}

	following := func(id int64) bool {
		ok, err := c.users.IsFollowing(ctx, viewerID, id)
		if err != nil {
			c.logger.Warn().Err(err).Int64("userId", id).Msg("Failed to load following flag")
		}
		return ok
	}

	return article.NewView(a, favorited, following)
}

func updateResult(err error) string {
	var coAuthorErr *CoAuthorError
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, lock.ErrLocked):
		return "locked"
	case errors.As(err, &coAuthorErr):
		return "co_author_not_found"
	case errors.Is(err, user.ErrNotFound), errors.Is(err, article.ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrPersistence):
		return "persistence_error"
	default:
		return "error"
	}
}
