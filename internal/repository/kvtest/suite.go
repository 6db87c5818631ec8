// Package kvtest holds the behaviour every domain.KeyValueStore backend must
// share. Backend packages run it from their own tests.
package kvtest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tender-admin/internal/domain"
)

// Run exercises store. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) domain.KeyValueStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("get_missing_key", func(t *testing.T) {
		s := newStore(t)

		value, ok, err := s.Get(ctx, "absent")

		require.NoError(t, err)
		assert.False(t, ok)
		assert.Empty(t, value)
	})

	t.Run("set_and_overwrite", func(t *testing.T) {
		s := newStore(t)

		require.NoError(t, s.Set(ctx, "k", "v1"))
		require.NoError(t, s.Set(ctx, "k", "v2"))

		value, ok, err := s.Get(ctx, "k")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "v2", value)
	})

	t.Run("empty_value_is_stored", func(t *testing.T) {
		s := newStore(t)

		require.NoError(t, s.Set(ctx, "k", ""))

		_, ok, err := s.Get(ctx, "k")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("set_many_writes_every_entry", func(t *testing.T) {
		s := newStore(t)

		require.NoError(t, s.SetMany(ctx, map[string]string{
			"client:a:token": "opaque:abcdefghijkl",
			"client:a:user":  `{"id":1,"username":"alice"}`,
		}))

		token, ok, err := s.Get(ctx, "client:a:token")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "opaque:abcdefghijkl", token)

		user, ok, err := s.Get(ctx, "client:a:user")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.JSONEq(t, `{"id":1,"username":"alice"}`, user)
	})

	t.Run("remove_several_keys", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.SetMany(ctx, map[string]string{"a": "1", "b": "2", "c": "3"}))

		require.NoError(t, s.Remove(ctx, "a", "b", "never-set"))

		for _, k := range []string{"a", "b"} {
			_, ok, err := s.Get(ctx, k)
			require.NoError(t, err)
			assert.False(t, ok, k)
		}
		_, ok, err := s.Get(ctx, "c")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("remove_nothing", func(t *testing.T) {
		s := newStore(t)
		assert.NoError(t, s.Remove(ctx))
	})

	t.Run("ping", func(t *testing.T) {
		s := newStore(t)
		assert.NoError(t, s.Ping(ctx))
	})

	t.Run("concurrent_set_many_never_mixes_pairs", func(t *testing.T) {
		s := newStore(t)

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				v := fmt.Sprintf("writer-%d", i)
				assert.NoError(t, s.SetMany(ctx, map[string]string{"x": v, "y": v}))
			}(i)
		}
		wg.Wait()

		x, _, err := s.Get(ctx, "x")
		require.NoError(t, err)
		y, _, err := s.Get(ctx, "y")
		require.NoError(t, err)
		assert.Equal(t, x, y)
	})
}
