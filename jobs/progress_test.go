package jobs

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestProgressStore(t *testing.T) *ProgressStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewProgressStore(client)
}

func TestProgressSetAndGet(t *testing.T) {
	store := newTestProgressStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "task-1", 70))
	pct, ok, err := store.Get(ctx, "task-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 70, pct)
}

func TestProgressGetMissingReturnsNotFound(t *testing.T) {
	store := newTestProgressStore(t)
	_, ok, err := store.Get(context.Background(), "never-started")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestProgressSetAndGetResult(t *testing.T) {
	store := newTestProgressStore(t)
	ctx := context.Background()

	result := JobResult{Status: "completed", OrderID: "order_1"}
	require.NoError(t, store.SetResult(ctx, "task-2", result))

	got, ok, err := store.GetResult(ctx, "task-2")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, result, got)
}

func TestProgressGetResultMissingReturnsNotFound(t *testing.T) {
	store := newTestProgressStore(t)
	_, ok, err := store.GetResult(context.Background(), "never-finished")
	require.NoError(t, err)
	require.False(t, ok)
}
