package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kneutral-org/articlelock/internal/article"
	"github.com/kneutral-org/articlelock/internal/editor"
	"github.com/kneutral-org/articlelock/internal/lock"
	"github.com/kneutral-org/articlelock/internal/middleware"
	"github.com/kneutral-org/articlelock/internal/user"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	router   *gin.Engine
	articles *article.InMemoryStore
	author   *user.User
	alice    *user.User
	post     *article.Article
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	users := user.NewInMemoryStore()
	author, err := users.Create(ctx, &user.User{Username: "author", Email: "author@x.com"})
	require.NoError(t, err)
	alice, err := users.Create(ctx, &user.User{Username: "alice", Email: "alice@x.com"})
	require.NoError(t, err)

	articles := article.NewInMemoryStore(users)
	post, err := articles.Create(ctx, &article.Article{Title: "Old", Body: "body", AuthorID: author.ID})
	require.NoError(t, err)

	manager := lock.NewManager(lock.NewMemoryStore(), articles, users, zerolog.Nop())
	coordinator := editor.NewCoordinator(articles, users, manager, zerolog.Nop())

	router := gin.New()
	router.Use(middleware.PayloadLimit(1024, zerolog.Nop()))
	NewHandler(coordinator, manager, zerolog.Nop()).RegisterRoutes(router.Group("/api"))

	return &testEnv{router: router, articles: articles, author: author, alice: alice, post: post}
}

func (e *testEnv) do(method, path string, userID int64, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != 0 {
		req.Header.Set(middleware.UserIDHeader, strconv.FormatInt(userID, 10))
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestGetArticle(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/api/articles/old", 0, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ArticleResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Old", resp.Article.Title)
	assert.Equal(t, "author", resp.Article.Author.Username)
	assert.NotNil(t, resp.Article.CoAuthors)

	rec = env.do(http.MethodGet, "/api/articles/missing", 0, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "articleNotFound", decodeError(t, rec).Error)
}

func TestUpdateArticle(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPut, "/api/articles/old", env.author.ID,
		`{"article":{"title":"New","createdAt":"2020-01-01T00:00:00Z","coAuthors":"alice@x.com"}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp ArticleResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "New", resp.Article.Title)
	require.Len(t, resp.Article.CoAuthors, 1)
	assert.Equal(t, "alice@x.com", resp.Article.CoAuthors[0].Email)
	assert.Equal(t, env.post.CreatedAt.Unix(), resp.Article.CreatedAt.Unix())

	lockRec := env.do(http.MethodGet, "/api/articles/old/lock", 0, "")
	assert.JSONEq(t, `{"locked":false}`, lockRec.Body.String())
}

func TestUpdateArticle_Errors(t *testing.T) {
	tests := []struct {
		name   string
		slug   string
		userID func(e *testEnv) int64
		body   string
		status int
		code   string
	}{
		{"unknown field", "old", func(e *testEnv) int64 { return e.author.ID }, `{"slug":"hijack"}`, http.StatusBadRequest, "invalidPatch"},
		{"malformed json", "old", func(e *testEnv) int64 { return e.author.ID }, `{"title":`, http.StatusBadRequest, "invalidPatch"},
		{"unknown co-author", "old", func(e *testEnv) int64 { return e.author.ID }, `{"coAuthors":"ghost@x.com"}`, http.StatusUnprocessableEntity, "coAuthorNotFound"},
		{"unknown article", "missing", func(e *testEnv) int64 { return e.author.ID }, `{"title":"x"}`, http.StatusNotFound, "articleNotFound"},
		{"unknown user", "old", func(e *testEnv) int64 { return 999 }, `{"title":"x"}`, http.StatusNotFound, "userNotFound"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			rec := env.do(http.MethodPut, "/api/articles/"+tt.slug, tt.userID(env), tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, decodeError(t, rec).Error)
		})
	}
}

func TestUpdateArticle_RequiresIdentity(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPut, "/api/articles/old", 0, `{"title":"New"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUpdateArticle_PayloadTooLarge(t *testing.T) {
	env := newTestEnv(t)

	body := `{"body":"` + strings.Repeat("x", 2048) + `"}`
	req := httptest.NewRequest(http.MethodPut, "/api/articles/old", strings.NewReader(body))
	req.ContentLength = -1
	req.Header.Set(middleware.UserIDHeader, strconv.FormatInt(env.author.ID, 10))
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestLockLifecycle(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/articles/old/lock", env.alice.ID, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var held LockResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &held))
	assert.True(t, held.Locked)
	assert.Equal(t, env.alice.ID, held.HolderID)
	require.NotNil(t, held.ExpiresAt)

	rec = env.do(http.MethodGet, "/api/articles/old/lock", 0, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var status LockResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, env.alice.ID, status.HolderID)

	rec = env.do(http.MethodPost, "/api/articles/old/lock", env.author.ID, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "articleLocked", decodeError(t, rec).Error)

	rec = env.do(http.MethodPut, "/api/articles/old", env.author.ID, `{"title":"Mine"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(http.MethodDelete, "/api/articles/old/lock", env.alice.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(http.MethodDelete, "/api/articles/old/lock", env.alice.ID, "")
	require.Equal(t, http.StatusOK, rec.Code, "release is idempotent")

	rec = env.do(http.MethodPost, "/api/articles/old/lock", env.author.ID, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLockArticle_NotFound(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/articles/missing/lock", env.alice.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "articleNotFound", decodeError(t, rec).Error)

	rec = env.do(http.MethodPost, "/api/articles/old/lock", 999, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "userNotFound", decodeError(t, rec).Error)

	rec = env.do(http.MethodDelete, "/api/articles/missing/lock", env.alice.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(http.MethodGet, "/api/articles/missing/lock", 0, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLockArticle_UnknownUserOnLockedArticle(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/articles/old/lock", env.alice.ID, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(http.MethodPost, "/api/articles/old/lock", 999, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "userNotFound", decodeError(t, rec).Error)

	rec = env.do(http.MethodGet, "/api/articles/old/lock", 0, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var status LockResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, env.alice.ID, status.HolderID)
}

type brokenEditor struct{}

func (brokenEditor) Article(context.Context, int64, string) (*article.View, error) {
	return nil, assert.AnError
}

func (brokenEditor) UpdateArticle(context.Context, int64, string, article.Patch) (*article.View, error) {
	return nil, editor.ErrPersistence
}

func TestWriteError_Internal(t *testing.T) {
	router := gin.New()
	NewHandler(brokenEditor{}, nil, zerolog.Nop()).RegisterRoutes(router.Group("/api"))

	req := httptest.NewRequest(http.MethodGet, "/api/articles/old", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal", decodeError(t, rec).Error)

	req = httptest.NewRequest(http.MethodPut, "/api/articles/old", strings.NewReader(`{"title":"x"}`))
	req.Header.Set(middleware.UserIDHeader, "1")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "persistenceFailure", decodeError(t, rec).Error)
}
