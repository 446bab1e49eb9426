// Package article provides article records, the editable-field patch, and the
// public article representation.
package article

import (
	"strings"
	"time"
	"unicode"

	"github.com/kneutral-org/articlelock/internal/user"
)

// Article is a published article. Author is never listed in CoAuthors.
type Article struct {
	ID             int64
	Slug           string
	Title          string
	Description    string
	Body           string
	TagList        []string
	AuthorID       int64
	Author         user.User
	CoAuthors      []user.User
	FavoritesCount int
	CreatedAt      time.Time
	UpdatedAt      time.Time

	// CoAuthorsLoaded is set once CoAuthors reflects the stored relation.
	// Stores only rewrite the co-author relation of a loaded article.
	CoAuthorsLoaded bool
}

// HasCoAuthor reports whether userID is a co-author.
func (a *Article) HasCoAuthor(userID int64) bool {
	for _, c := range a.CoAuthors {
		if c.ID == userID {
			return true
		}
	}
	return false
}

// CoAuthorIDs returns the co-author ids in order.
func (a *Article) CoAuthorIDs() []int64 {
	ids := make([]int64, 0, len(a.CoAuthors))
	for _, c := range a.CoAuthors {
		ids = append(ids, c.ID)
	}
	return ids
}

// Profile is the public view of a user attached to an article.
type Profile struct {
	Username  string `json:"username"`
	Bio       string `json:"bio"`
	Image     string `json:"image"`
	Following bool   `json:"following"`
	Email     string `json:"email"`
}

// View is the public representation of an article.
type View struct {
	Slug           string    `json:"slug"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	Body           string    `json:"body"`
	TagList        []string  `json:"tagList"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
	Favorited      bool      `json:"favorited"`
	FavoritesCount int       `json:"favoritesCount"`
	Author         Profile   `json:"author"`
	CoAuthors      []Profile `json:"coAuthors"`
}

// NewView builds the representation of a as seen by a viewer.
// following reports whether the viewer follows a given user id.
func NewView(a *Article, favorited bool, following func(userID int64) bool) *View {
	if following == nil {
		following = func(int64) bool { return false }
	}

	tags := a.TagList
	if tags == nil {
		tags = []string{}
	}

	coAuthors := make([]Profile, 0, len(a.CoAuthors))
	for _, c := range a.CoAuthors {
		coAuthors = append(coAuthors, newProfile(c, following(c.ID)))
	}

	return &View{
		Slug:           a.Slug,
		Title:          a.Title,
		Description:    a.Description,
		Body:           a.Body,
		TagList:        tags,
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
		Favorited:      favorited,
		FavoritesCount: a.FavoritesCount,
		Author:         newProfile(a.Author, following(a.Author.ID)),
		CoAuthors:      coAuthors,
	}
}

func newProfile(u user.User, following bool) Profile {
	return Profile{
		Username:  u.Username,
		Bio:       u.Bio,
		Image:     u.Image,
		Following: following,
		Email:     u.Email,
	}
}

// Slugify derives a URL slug from a title.
func Slugify(title string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(title)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
