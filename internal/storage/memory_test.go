package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryStore_IncrIsAtomic(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Incr(ctx, "counter"); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	count, err := store.Count(ctx, "counter")
	require.NoError(t, err)
	require.Equal(t, int64(50), count)
}

func TestMemoryStore_ExpireKeepsValue(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.Incr(ctx, "counter")
	require.NoError(t, err)
	require.NoError(t, store.Expire(ctx, "counter", 50*time.Millisecond))

	count, err := store.Count(ctx, "counter")
	require.NoError(t, err)
	require.Equal(t, int64(1), count)

	require.Eventually(t, func() bool {
		c, _ := store.Count(ctx, "counter")
		return c == 0
	}, time.Second, 10*time.Millisecond)

	n, err := store.Incr(ctx, "counter")
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestMemoryStore_GetSetDel(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.Get(ctx, "k")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Set(ctx, "k", "v", time.Minute))
	val, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "v", val)

	require.NoError(t, store.Del(ctx, "k"))
	_, err = store.Get(ctx, "k")
	require.ErrorIs(t, err, ErrNotFound)
}
