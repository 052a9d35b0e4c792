package modelcache

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, cache := range backends(t) {
		t.Run(name, func(t *testing.T) {
			key := Key{Source: "en", Order: 2, Cutoff: 0.1}
			model := buildModel(t, key)

			_, ok := cache.Load(ctx, key)
			assert.False(t, ok, "empty cache should miss")

			require.NoError(t, cache.Store(ctx, key, model))

			loaded, ok := cache.Load(ctx, key)
			require.True(t, ok, "stored model should hit")
			assert.Equal(t, model.Export(), loaded.Export())

			// Different parameters are a different entry.
			_, ok = cache.Load(ctx, Key{Source: "en", Order: 3, Cutoff: 0.1})
			assert.False(t, ok)
			_, ok = cache.Load(ctx, Key{Source: "en", Order: 2, Cutoff: 0.1, Reversed: true})
			assert.False(t, ok)
		})
	}
}

func TestCacheStoreReplaces(t *testing.T) {
	ctx := context.Background()
	for name, cache := range backends(t) {
		t.Run(name, func(t *testing.T) {
			key := Key{Source: "en", Order: 1, Cutoff: 0}
			require.NoError(t, cache.Store(ctx, key, buildModel(t, key)))
			require.NoError(t, cache.Store(ctx, key, buildModel(t, key)))

			entries, err := cache.List(ctx, "*")
			require.NoError(t, err)
			assert.Len(t, entries, 1)
		})
	}
}

func TestCacheStoreKeyMismatch(t *testing.T) {
	ctx := context.Background()
	for name, cache := range backends(t) {
		t.Run(name, func(t *testing.T) {
			model := buildModel(t, Key{Source: "en", Order: 2, Cutoff: 0.1})
			err := cache.Store(ctx, Key{Source: "fr", Order: 2, Cutoff: 0.1}, model)
			assert.Error(t, err)
		})
	}
}

func TestCacheListAndClear(t *testing.T) {
	ctx := context.Background()
	for name, cache := range backends(t) {
		t.Run(name, func(t *testing.T) {
			keys := []Key{
				{Source: "en", Order: 2, Cutoff: 0.1},
				{Source: "en", Order: 3, Cutoff: 0.1},
				{Source: "es", Order: 2, Cutoff: 0.1},
				{Source: "names", Order: 2, Cutoff: 0.1, Reversed: true},
			}
			for _, key := range keys {
				require.NoError(t, cache.Store(ctx, key, buildModel(t, key)))
			}

			entries, err := cache.List(ctx, "")
			require.NoError(t, err)
			require.Len(t, entries, 4)
			assert.Equal(t, keys[0], entries[0].Key)
			assert.Positive(t, entries[0].Stats.Contexts)
			assert.Positive(t, entries[0].Size)

			entries, err = cache.List(ctx, "e*")
			require.NoError(t, err)
			assert.Len(t, entries, 3)

			removed, err := cache.Clear(ctx, "en")
			require.NoError(t, err)
			assert.Equal(t, 2, removed)

			_, ok := cache.Load(ctx, keys[0])
			assert.False(t, ok)
			_, ok = cache.Load(ctx, keys[2])
			assert.True(t, ok)

			removed, err = cache.Clear(ctx, "*")
			require.NoError(t, err)
			assert.Equal(t, 2, removed)

			entries, err = cache.List(ctx, "*")
			require.NoError(t, err)
			assert.Empty(t, entries)
		})
	}
}

func TestCacheConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	for name, cache := range backends(t) {
		t.Run(name, func(t *testing.T) {
			key := Key{Source: "en", Order: 2, Cutoff: 0.1}
			model := buildModel(t, key)
			want := model.Export()

			var wg sync.WaitGroup
			for i := 0; i < 8; i++ {
				wg.Add(2)
				go func() {
					defer wg.Done()
					assert.NoError(t, cache.Store(ctx, key, model))
				}()
				go func() {
					defer wg.Done()
					if loaded, ok := cache.Load(ctx, key); ok {
						assert.Equal(t, want, loaded.Export())
					}
				}()
			}
			wg.Wait()

			_, ok := cache.Load(ctx, key)
			assert.True(t, ok)
		})
	}
}

func TestKeyString(t *testing.T) {
	assert.Equal(t, "en/o2/c0.1", Key{Source: "en", Order: 2, Cutoff: 0.1}.String())
	assert.Equal(t, "names/o3/c0/rev", Key{Source: "names", Order: 3, Reversed: true}.String())
}
