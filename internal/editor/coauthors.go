package editor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/kneutral-org/articlelock/internal/article"
	"github.com/kneutral-org/articlelock/internal/user"
)

const maxConcurrentLookups = 8

// coAuthorChange is the resolved co-author mutation of a patch.
type coAuthorChange struct {
	replace bool
	users   []user.User
}

// splitEmails splits a comma-separated list, trimming entries and dropping
// empty and repeated ones. Order of first appearance is kept.
func splitEmails(raw string) []string {
	seen := make(map[string]struct{})
	var emails []string
	for _, part := range strings.Split(raw, ",") {
		email := strings.TrimSpace(part)
		if email == "" {
			continue
		}
		key := user.NormalizeEmail(email)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		emails = append(emails, email)
	}
	return emails
}

// resolveCoAuthors decides how the co-author set changes.
//
// An absent field changes nothing. A blank field clears the set when the
// requester is the author and changes nothing otherwise. A non-blank field must
// resolve every email; the author is dropped from the result, and an empty
// result changes nothing.
func (c *Coordinator) resolveCoAuthors(ctx context.Context, a *article.Article, requesterID int64, raw *string) (coAuthorChange, error) {
	if raw == nil {
		return coAuthorChange{}, nil
	}
	if strings.TrimSpace(*raw) == "" {
		if requesterID == a.AuthorID {
			return coAuthorChange{replace: true, users: []user.User{}}, nil
		}
		return coAuthorChange{}, nil
	}

	emails := splitEmails(*raw)
	found := make([]*user.User, len(emails))
	errs := make([]error, len(emails))

	var g errgroup.Group
	g.SetLimit(maxConcurrentLookups)
	for i, email := range emails {
		g.Go(func() error {
			found[i], errs[i] = c.users.GetByEmail(ctx, email)
			return nil
		})
	}
	_ = g.Wait()

	// Report the first failing email in input order.
	for i, err := range errs {
		if err == nil {
			continue
		}
		if errors.Is(err, user.ErrNotFound) {
			return coAuthorChange{}, &CoAuthorError{Email: emails[i]}
		}
		return coAuthorChange{}, fmt.Errorf("look up co-author %s: %w", emails[i], err)
	}

	seen := make(map[int64]struct{}, len(found))
	resolved := make([]user.User, 0, len(found))
	for _, u := range found {
		if u.ID == a.AuthorID {
			continue
		}
		if _, dup := seen[u.ID]; dup {
			continue
		}
		seen[u.ID] = struct{}{}
		resolved = append(resolved, *u)
	}

	if len(resolved) == 0 {
		return coAuthorChange{}, nil
	}
	return coAuthorChange{replace: true, users: resolved}, nil
}
