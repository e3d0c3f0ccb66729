package storage_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-auth-client/storage"
	"github.com/stretchr/testify/require"
)

func TestFileStore(t *testing.T) {
	t.Run("persists across reopen", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "session.json")

		s, err := storage.NewFileStore(path)
		require.NoError(t, err)
		require.NoError(t, s.Set("token", "abc"))
		require.NoError(t, s.Close())

		s2, err := storage.NewFileStore(path)
		require.NoError(t, err)
		defer func() { _ = s2.Close() }()

		v, ok, err := s2.Get("token")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "abc", v)
	})

	t.Run("local writes notify synchronously", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "session.json")
		s, err := storage.NewFileStore(path)
		require.NoError(t, err)
		defer func() { _ = s.Close() }()

		var seen []string
		s.Subscribe(func(key string) { seen = append(seen, key) })
		require.NoError(t, s.Set("a", "1"))
		require.Equal(t, []string{"a"}, seen)
	})

	t.Run("external rewrite notifies changed keys", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "session.json")
		s, err := storage.NewFileStore(path)
		require.NoError(t, err)
		defer func() { _ = s.Close() }()
		require.NoError(t, s.Set("a", "1"))

		var mu sync.Mutex
		seen := map[string]string{}
		s.Subscribe(func(key string) {
			v, _, _ := s.Get(key)
			mu.Lock()
			seen[key] = v
			mu.Unlock()
		})

		// Another process rewriting the whole document.
		require.NoError(t, os.WriteFile(path, []byte(`{"a":"2","b":"3"}`), 0o600))

		require.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return seen["a"] == "2" && seen["b"] == "3"
		}, 3*time.Second, 10*time.Millisecond)
	})

	t.Run("starts empty when file is missing", func(t *testing.T) {
		s, err := storage.NewFileStore(filepath.Join(t.TempDir(), "nope.json"))
		require.NoError(t, err)
		defer func() { _ = s.Close() }()
		_, ok, err := s.Get("anything")
		require.NoError(t, err)
		require.False(t, ok)
	})
}
