// Package api provides the HTTP handlers for article editing and edit locks.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/kneutral-org/articlelock/internal/article"
	"github.com/kneutral-org/articlelock/internal/editor"
	"github.com/kneutral-org/articlelock/internal/lock"
	"github.com/kneutral-org/articlelock/internal/middleware"
	"github.com/kneutral-org/articlelock/internal/user"
)

// Editor reads and updates articles.
type Editor interface {
	Article(ctx context.Context, viewerID int64, slug string) (*article.View, error)
	UpdateArticle(ctx context.Context, userID int64, slug string, patch article.Patch) (*article.View, error)
}

// Locks exposes the edit lock operations by slug.
type Locks interface {
	LockArticle(ctx context.Context, userID int64, slug string) (bool, error)
	UnlockArticle(ctx context.Context, slug string) (bool, error)
	Status(ctx context.Context, slug string) (*lock.ArticleLock, error)
}

// Handler serves the article API.
type Handler struct {
	editor Editor
	locks  Locks
	logger zerolog.Logger
}

// NewHandler creates a new API handler.
func NewHandler(editor Editor, locks Locks, logger zerolog.Logger) *Handler {
	return &Handler{
		editor: editor,
		locks:  locks,
		logger: logger.With().Str("component", "api").Logger(),
	}
}

// RegisterRoutes registers the article routes on the provided router group.
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	articles := router.Group("/articles")

	articles.GET("/:slug", middleware.Identity(false), h.GetArticle)
	articles.PUT("/:slug", middleware.Identity(true), h.UpdateArticle)

	articles.GET("/:slug/lock", h.GetLock)
	articles.POST("/:slug/lock", middleware.Identity(true), h.LockArticle)
	articles.DELETE("/:slug/lock", middleware.Identity(true), h.UnlockArticle)
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ArticleResponse wraps a single article representation.
type ArticleResponse struct {
	Article *article.View `json:"article"`
}

// LockResponse describes the edit lock state of an article.
type LockResponse struct {
	Locked    bool       `json:"locked"`
	HolderID  int64      `json:"holderId,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// GetArticle returns the article representation.
func (h *Handler) GetArticle(c *gin.Context) {
	viewerID, _ := middleware.UserID(c)

	view, err := h.editor.Article(c.Request.Context(), viewerID, c.Param("slug"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ArticleResponse{Article: view})
}

// UpdateArticle applies a partial update under the article's edit lock.
func (h *Handler) UpdateArticle(c *gin.Context) {
	userID, _ := middleware.UserID(c)

	patch, err := article.DecodePatch(c.Request.Body)
	if err != nil {
		if middleware.IsPayloadTooLarge(err) {
			_ = c.Error(err)
			return
		}
		h.writeError(c, err)
		return
	}

	view, err := h.editor.UpdateArticle(c.Request.Context(), userID, c.Param("slug"), patch)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ArticleResponse{Article: view})
}

// GetLock reports who holds the edit lock.
func (h *Handler) GetLock(c *gin.Context) {
	l, err := h.locks.Status(c.Request.Context(), c.Param("slug"))
	if errors.Is(err, lock.ErrNoLock) {
		c.JSON(http.StatusOK, LockResponse{Locked: false})
		return
	}
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newLockResponse(l))
}

// LockArticle acquires or renews the edit lock for the requester.
func (h *Handler) LockArticle(c *gin.Context) {
	ctx := c.Request.Context()
	userID, _ := middleware.UserID(c)
	slug := c.Param("slug")

	ok, err := h.locks.LockArticle(ctx, userID, slug)
	if err != nil {
		h.writeError(c, err)
		return
	}

	if !ok {
		h.writeError(c, lock.ErrLocked)
		return
	}

	l, err := h.locks.Status(ctx, slug)
	if err != nil {
		c.JSON(http.StatusOK, LockResponse{Locked: true, HolderID: userID})
		return
	}
	c.JSON(http.StatusOK, newLockResponse(l))
}

// UnlockArticle releases the edit lock.
func (h *Handler) UnlockArticle(c *gin.Context) {
	ok, err := h.locks.UnlockArticle(c.Request.Context(), c.Param("slug"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if !ok {
		h.writeError(c, article.ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, LockResponse{Locked: false})
}

func newLockResponse(l *lock.ArticleLock) LockResponse {
	expiresAt := l.ExpiresAt
	return LockResponse{Locked: true, HolderID: l.UserID, ExpiresAt: &expiresAt}
}

// writeError maps domain errors onto HTTP responses.
func (h *Handler) writeError(c *gin.Context, err error) {
	var coAuthorErr *editor.CoAuthorError

	switch {
	case errors.As(err, &coAuthorErr):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "coAuthorNotFound",
			Message: coAuthorErr.Error(),
		})
	case errors.Is(err, lock.ErrLocked):
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "articleLocked",
			Message: "the article is being edited by another user",
		})
	case errors.Is(err, article.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "articleNotFound",
			Message: "article not found",
		})
	case errors.Is(err, user.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "userNotFound",
			Message: "user not found",
		})
	case errors.Is(err, article.ErrUnknownField), errors.Is(err, article.ErrInvalidPatch):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalidPatch",
			Message: err.Error(),
		})
	case errors.Is(err, editor.ErrPersistence):
		h.logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg("article persistence failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "persistenceFailure",
			Message: "failed to save the article",
		})
	default:
		h.logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal",
			Message: "internal server error",
		})
	}
}
