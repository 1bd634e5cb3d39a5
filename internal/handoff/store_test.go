package handoff

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"server/internal/domain"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewStore(client), mr
}

func TestPutAndConsume(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "state-1", "token-1", time.Minute))

	token, err := store.Consume(ctx, "state-1")
	require.NoError(t, err)
	assert.Equal(t, "token-1", token)
}

func TestConsumeIsOneTime(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "state-1", "token-1", time.Minute))

	_, err := store.Consume(ctx, "state-1")
	require.NoError(t, err)

	_, err = store.Consume(ctx, "state-1")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestConsumeUnknownState(t *testing.T) {
	store, _ := newTestStore(t)
	_, err := store.Consume(context.Background(), "never-stored")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPutDuplicateState(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "state-1", "token-1", time.Minute))
	err := store.Put(ctx, "state-1", "token-2", time.Minute)
	require.ErrorIs(t, err, domain.ErrConflict)

	// The original token is untouched.
	token, err := store.Consume(ctx, "state-1")
	require.NoError(t, err)
	assert.Equal(t, "token-1", token)
}

func TestPutRejectsEmptyValues(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	var verr *domain.ValidationError
	require.ErrorAs(t, store.Put(ctx, "", "token", time.Minute), &verr)
	require.ErrorAs(t, store.Put(ctx, "state", "", time.Minute), &verr)
}

func TestTokenExpires(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "state-1", "token-1", 30*time.Second))
	mr.FastForward(31 * time.Second)

	_, err := store.Consume(ctx, "state-1")
	require.ErrorIs(t, err, domain.ErrNotFound)

	// The state key is free again after expiry.
	require.NoError(t, store.Put(ctx, "state-1", "token-2", time.Minute))
}
