package preference

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "browser-1:apiUrl", Key("browser-1"))
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.Get(ctx, Key("a"))
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Set(ctx, Key("a"), "https://one.ngrok-free.app"))
	require.NoError(t, store.Set(ctx, Key("a"), "https://two.ngrok-free.app"))

	v, err := store.Get(ctx, Key("a"))
	require.NoError(t, err)
	assert.Equal(t, "https://two.ngrok-free.app", v)

	require.NoError(t, store.Delete(ctx, Key("a")))
	_, err = store.Get(ctx, Key("a"))
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, store.Delete(ctx, Key("missing")))
}

func TestMemoryStore_Concurrent(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := Key(fmt.Sprintf("client-%d", i%5))
			_ = store.Set(ctx, key, fmt.Sprintf("http://host-%d", i))
			_, _ = store.Get(ctx, key)
		}(i)
	}
	wg.Wait()

	for i := 0; i < 5; i++ {
		_, err := store.Get(ctx, Key(fmt.Sprintf("client-%d", i)))
		assert.NoError(t, err)
	}
}
