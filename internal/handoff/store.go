// Package handoff stores one-time auth handoff tokens keyed by an opaque
// state value. The store is backed by Redis with a TTL so it stays correct
// across process restarts and horizontally scaled deployments; an in-process
// map would not survive a different instance serving the lookup.
package handoff

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"server/internal/domain"
)

const keyPrefix = "authhandoff:"

// Store is a single-consume token store. Put writes a token under a state
// key; Consume reads it exactly once and deletes it atomically.
type Store struct {
	client *redis.Client
}

// NewStore creates a Store over the given Redis client.
func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

// Put stores token under state for ttl. A state value may only be written
// once; a duplicate write returns ErrConflict.
func (s *Store) Put(ctx context.Context, state, token string, ttl time.Duration) error {
	if state == "" || token == "" {
		return &domain.ValidationError{Message: "state and token are required"}
	}
	ok, err := s.client.SetNX(ctx, keyPrefix+state, token, ttl).Result()
	if err != nil {
		return fmt.Errorf("store handoff token: %w", err)
	}
	if !ok {
		return domain.ErrConflict
	}
	return nil
}

// Consume returns the token for state and deletes it in the same round trip.
// A second consume, or a consume after the TTL elapsed, returns ErrNotFound.
func (s *Store) Consume(ctx context.Context, state string) (string, error) {
	token, err := s.client.GetDel(ctx, keyPrefix+state).Result()
	if errors.Is(err, redis.Nil) {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("consume handoff token: %w", err)
	}
	return token, nil
}
