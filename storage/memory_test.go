package storage_test

import (
	"testing"

	"github.com/jrsteele09/go-auth-client/storage"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	t.Run("set get delete", func(t *testing.T) {
		s := storage.NewMemoryStore()
		_, ok, err := s.Get("missing")
		require.NoError(t, err)
		require.False(t, ok)

		require.NoError(t, s.Set("k", "v"))
		v, ok, err := s.Get("k")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "v", v)

		require.NoError(t, s.Delete("k"))
		_, ok, _ = s.Get("k")
		require.False(t, ok)
	})

	t.Run("notifies subscribers of writes", func(t *testing.T) {
		s := storage.NewMemoryStore()
		var seen []string
		unsubscribe := s.Subscribe(func(key string) { seen = append(seen, key) })

		require.NoError(t, s.Set("a", "1"))
		require.NoError(t, s.Set("b", "2"))
		require.NoError(t, s.Delete("a"))
		require.Equal(t, []string{"a", "b", "a"}, seen)

		unsubscribe()
		require.NoError(t, s.Set("c", "3"))
		require.Len(t, seen, 3)
	})

	t.Run("deleting an absent key does not notify", func(t *testing.T) {
		s := storage.NewMemoryStore()
		notified := false
		s.Subscribe(func(string) { notified = true })
		require.NoError(t, s.Delete("nope"))
		require.False(t, notified)
	})
}
