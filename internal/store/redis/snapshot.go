package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shelf-sh/shelf/internal/domain"
)

// DefaultSnapshotTTL bounds how long a cached snapshot may serve as
// warm-start data (48 hours).
const DefaultSnapshotTTL = 48 * time.Hour

// Store caches the last authoritative bookmark list per owner so a
// restarting daemon can show data before the first full resync
// completes. It is a cache, never a source of truth: the store's
// authoritative read always replaces it.
type Store struct {
	client *redis.Client
}

// NewStore creates a new snapshot store.
func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

// SaveSnapshot stores the owner's current visible list.
func (s *Store) SaveSnapshot(ctx context.Context, owner string, list []domain.Bookmark) error {
	data, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	if err := s.client.Set(ctx, SnapshotKey(owner), data, DefaultSnapshotTTL).Err(); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot retrieves the owner's cached list. A missing key is not
// an error: it returns an empty list.
func (s *Store) LoadSnapshot(ctx context.Context, owner string) ([]domain.Bookmark, error) {
	data, err := s.client.Get(ctx, SnapshotKey(owner)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}

	var list []domain.Bookmark
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return list, nil
}
