package supabase

import (
	"context"
	"fmt"
	"time"

	postgrest "github.com/supabase-community/postgrest-go"

	"github.com/shelf-sh/shelf/internal/domain"
)

const bookmarksTable = "bookmarks"

// bookmarkRow mirrors the persisted record layout: id and created_at
// are assigned server-side, owner is gated by row-level security.
type bookmarkRow struct {
	ID        string    `json:"id"`
	Owner     string    `json:"owner"`
	Title     string    `json:"title"`
	Target    string    `json:"target"`
	CreatedAt time.Time `json:"created_at"`
}

// BookmarkStore is the persistent store for bookmark rows. The backend
// scopes reads and writes to the authenticated owner; the owner field
// here is only used to stamp inserts.
type BookmarkStore struct {
	client *Client
	owner  string
}

// NewBookmarkStore creates a store bound to the authenticated owner.
func NewBookmarkStore(client *Client, owner string) *BookmarkStore {
	return &BookmarkStore{client: client, owner: owner}
}

// ListAll returns the owner's full bookmark set, newest first.
func (s *BookmarkStore) ListAll(ctx context.Context) ([]domain.Bookmark, error) {
	var rows []bookmarkRow
	err := s.call(ctx, func() error {
		_, execErr := s.client.Rest().
			From(bookmarksTable).
			Select("*", "", false).
			Order("created_at", &postgrest.OrderOpts{Ascending: false}).
			ExecuteTo(&rows)
		return execErr
	})
	if err != nil {
		return nil, fmt.Errorf("list bookmarks: %w", err)
	}

	out := make([]domain.Bookmark, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

// Insert durably writes one bookmark and returns the authoritative
// record with its store-assigned id and created_at.
func (s *BookmarkStore) Insert(ctx context.Context, title, target string) (domain.Bookmark, error) {
	payload := map[string]string{
		"owner":  s.owner,
		"title":  title,
		"target": target,
	}

	var rows []bookmarkRow
	err := s.call(ctx, func() error {
		_, execErr := s.client.Rest().
			From(bookmarksTable).
			Insert(payload, false, "", "representation", "").
			ExecuteTo(&rows)
		return execErr
	})
	if err != nil {
		return domain.Bookmark{}, fmt.Errorf("insert bookmark: %w", err)
	}
	if len(rows) == 0 {
		return domain.Bookmark{}, fmt.Errorf("insert bookmark: store returned no record")
	}

	return rows[0].toDomain(), nil
}

// DeleteByID durably removes one bookmark. Deleting an id that no
// longer exists is not an error (the row filter simply matches nothing).
func (s *BookmarkStore) DeleteByID(ctx context.Context, id string) error {
	err := s.call(ctx, func() error {
		_, _, execErr := s.client.Rest().
			From(bookmarksTable).
			Delete("", "").
			Eq("id", id).
			Execute()
		return execErr
	})
	if err != nil {
		return fmt.Errorf("delete bookmark %s: %w", id, err)
	}
	return nil
}

// call runs fn honoring ctx. The underlying SDK does not accept a
// context, so expiry abandons the round trip and reports failure.
func (s *BookmarkStore) call(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r bookmarkRow) toDomain() domain.Bookmark {
	return domain.Bookmark{
		ID:        r.ID,
		Owner:     r.Owner,
		Title:     r.Title,
		Target:    r.Target,
		CreatedAt: r.CreatedAt,
	}
}
