package article

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kneutral-org/articlelock/internal/user"
)

func seedUsers(t *testing.T, users user.Store, names ...string) []*user.User {
	t.Helper()
	out := make([]*user.User, 0, len(names))
	for _, name := range names {
		u, err := users.Create(context.Background(), &user.User{Username: name, Email: name + "@x.com"})
		require.NoError(t, err)
		out = append(out, u)
	}
	return out
}

// runStoreSuite exercises a Store implementation against the shared contract.
func runStoreSuite(t *testing.T, users user.Store, store Store) {
	ctx := context.Background()
	people := seedUsers(t, users, "author", "co1", "co2")
	author, co1, co2 := people[0], people[1], people[2]

	t.Run("create and get", func(t *testing.T) {
		created, err := store.Create(ctx, &Article{
			Title:     "Hello World",
			Body:      "body",
			TagList:   []string{"go"},
			AuthorID:  author.ID,
			CoAuthors: []user.User{*co1},
		})
		require.NoError(t, err)
		assert.Equal(t, "hello-world", created.Slug)

		got, err := store.GetBySlug(ctx, "hello-world")
		require.NoError(t, err)
		assert.Equal(t, created.ID, got.ID)
		assert.Equal(t, "author", got.Author.Username)
		assert.False(t, got.CoAuthorsLoaded)

		require.NoError(t, store.LoadCoAuthors(ctx, got))
		assert.True(t, got.CoAuthorsLoaded)
		assert.Equal(t, []int64{co1.ID}, got.CoAuthorIDs())
	})

	t.Run("duplicate slug", func(t *testing.T) {
		_, err := store.Create(ctx, &Article{Title: "Hello World", AuthorID: author.ID})
		assert.ErrorIs(t, err, ErrDuplicateSlug)
	})

	t.Run("author cannot be co-author on create", func(t *testing.T) {
		_, err := store.Create(ctx, &Article{Title: "Self", AuthorID: author.ID, CoAuthors: []user.User{*author}})
		assert.ErrorIs(t, err, ErrAuthorIsCoAuthor)
	})

	t.Run("update content leaves unloaded co-authors", func(t *testing.T) {
		got, err := store.GetBySlug(ctx, "hello-world")
		require.NoError(t, err)

		got.Title = "Renamed"
		got.TagList = []string{"go", "db"}
		_, err = store.Update(ctx, got)
		require.NoError(t, err)

		again, err := store.GetBySlug(ctx, "hello-world")
		require.NoError(t, err)
		assert.Equal(t, "Renamed", again.Title)
		assert.Equal(t, []string{"go", "db"}, again.TagList)

		require.NoError(t, store.LoadCoAuthors(ctx, again))
		assert.Equal(t, []int64{co1.ID}, again.CoAuthorIDs())
	})

	t.Run("update replaces loaded co-authors", func(t *testing.T) {
		got, err := store.GetBySlug(ctx, "hello-world")
		require.NoError(t, err)
		require.NoError(t, store.LoadCoAuthors(ctx, got))

		got.CoAuthors = []user.User{*co2}
		_, err = store.Update(ctx, got)
		require.NoError(t, err)

		again, err := store.GetBySlug(ctx, "hello-world")
		require.NoError(t, err)
		require.NoError(t, store.LoadCoAuthors(ctx, again))
		assert.Equal(t, []int64{co2.ID}, again.CoAuthorIDs())
	})

	t.Run("update rejects author as co-author", func(t *testing.T) {
		got, err := store.GetBySlug(ctx, "hello-world")
		require.NoError(t, err)
		require.NoError(t, store.LoadCoAuthors(ctx, got))

		got.CoAuthors = append(got.CoAuthors, *author)
		_, err = store.Update(ctx, got)
		assert.ErrorIs(t, err, ErrAuthorIsCoAuthor)
	})

	t.Run("get by id", func(t *testing.T) {
		bySlug, err := store.GetBySlug(ctx, "hello-world")
		require.NoError(t, err)

		byID, err := store.GetByID(ctx, bySlug.ID)
		require.NoError(t, err)
		assert.Equal(t, "hello-world", byID.Slug)

		_, err = store.GetByID(ctx, bySlug.ID+1000)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("get missing", func(t *testing.T) {
		_, err := store.GetBySlug(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("update missing", func(t *testing.T) {
		_, err := store.Update(ctx, &Article{ID: 12345, Title: "x"})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("not favorited", func(t *testing.T) {
		got, err := store.GetBySlug(ctx, "hello-world")
		require.NoError(t, err)

		fav, err := store.IsFavorited(ctx, got.ID, co1.ID)
		require.NoError(t, err)
		assert.False(t, fav)
	})
}

func TestInMemoryStore(t *testing.T) {
	users := user.NewInMemoryStore()
	runStoreSuite(t, users, NewInMemoryStore(users))
}

func TestInMemoryStore_Favorite(t *testing.T) {
	ctx := context.Background()
	users := user.NewInMemoryStore()
	store := NewInMemoryStore(users)
	people := seedUsers(t, users, "writer", "fan")

	created, err := store.Create(ctx, &Article{Title: "Fav", AuthorID: people[0].ID})
	require.NoError(t, err)

	store.Favorite(created.ID, people[1].ID)
	store.Favorite(created.ID, people[1].ID)

	fav, err := store.IsFavorited(ctx, created.ID, people[1].ID)
	require.NoError(t, err)
	assert.True(t, fav)

	got, err := store.GetBySlug(ctx, "fav")
	require.NoError(t, err)
	assert.Equal(t, 1, got.FavoritesCount)
}
