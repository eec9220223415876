package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cache "github.com/pkarpov/swrcache"
)

func TestInvalidator_Invalidate(t *testing.T) {
	store1 := cache.NewStore(cache.Config{CleanupInterval: -1})
	defer store1.Close()

	store2 := cache.NewStore(cache.Config{CleanupInterval: -1})
	defer store2.Close()

	i := &cache.Invalidator{}

	err := i.Invalidate()
	assert.Error(t, err) // nothing to invalidate

	ctx := context.Background()

	i.Callbacks = append(i.Callbacks, store1.ExpireAll, store2.ExpireAll)

	require.NoError(t, store1.Set(ctx, "key", 1, time.Minute))
	require.NoError(t, store2.Set(ctx, "key", 2, time.Minute))

	val, err := store1.Get(ctx, "key")
	assert.NoError(t, err)
	assert.Equal(t, 1, val)

	val, err = store2.Get(ctx, "key")
	assert.NoError(t, err)
	assert.Equal(t, 2, val)

	err = i.Invalidate()
	assert.NoError(t, err)
	time.Sleep(time.Millisecond)

	assert.True(t, store1.IsStale("key"))
	assert.True(t, store2.IsStale("key"))

	err = i.Invalidate()
	assert.Error(t, err) // already invalidated
}
