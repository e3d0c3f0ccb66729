package storage_test

import (
	"testing"
	"time"

	"github.com/jrsteele09/go-auth-client/storage"
	"github.com/stretchr/testify/require"
)

func newTestSession(t *testing.T) (*storage.SessionStore, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	now := func() time.Time { return time.Unix(1_700_000_000, 0) }
	return storage.NewSessionStore(store, "ROCP_", storage.WithNowFunc(now)), store
}

func TestSessionStore(t *testing.T) {
	t.Run("keys are prefix scoped", func(t *testing.T) {
		session, store := newTestSession(t)
		require.NoError(t, session.SetToken("abc"))

		v, ok, err := store.Get("ROCP_token")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "abc", v)
	})

	t.Run("typed round trips", func(t *testing.T) {
		session, _ := newTestSession(t)

		require.NoError(t, session.SetTokenExpire(1_700_000_300))
		require.Equal(t, int64(1_700_000_300), session.TokenExpire())

		require.NoError(t, session.SetLoginInProgress(true))
		require.True(t, session.LoginInProgress())

		require.NoError(t, session.SetRefreshInProgress(true))
		require.True(t, session.RefreshInProgress())

		require.NoError(t, session.SetCodeVerifier("arandomstring"))
		require.Equal(t, "arandomstring", session.CodeVerifier())

		require.NoError(t, session.SetAuthState("testState"))
		require.Equal(t, "testState", session.AuthState())
	})

	t.Run("corrupt number degrades to zero", func(t *testing.T) {
		session, store := newTestSession(t)
		require.NoError(t, store.Set("ROCP_tokenExpire", "not-a-number"))
		require.Zero(t, session.TokenExpire())
	})

	t.Run("clear resets to the unauthenticated baseline", func(t *testing.T) {
		session, _ := newTestSession(t)
		require.NoError(t, session.SetToken("abc"))
		require.NoError(t, session.SetRefreshToken("rt"))
		require.NoError(t, session.SetIDToken("idt"))
		require.NoError(t, session.SetLoginInProgress(true))
		require.NoError(t, session.SetRefreshInProgress(true))
		require.NoError(t, session.SetCodeVerifier("v"))
		require.NoError(t, session.SetAuthState("s"))

		require.NoError(t, session.Clear())

		require.Empty(t, session.Token())
		require.Empty(t, session.RefreshToken())
		require.Empty(t, session.IDToken())
		require.False(t, session.LoginInProgress())
		require.False(t, session.RefreshInProgress())
		require.Empty(t, session.CodeVerifier())
		require.Empty(t, session.AuthState())
		require.Equal(t, int64(1_700_000_000+storage.FallbackExpireSeconds), session.TokenExpire())
		require.Equal(t, int64(1_700_000_000+storage.FallbackExpireSeconds), session.RefreshTokenExpire())
	})

	t.Run("subscribe strips the prefix and ignores foreign keys", func(t *testing.T) {
		session, store := newTestSession(t)
		var seen []string
		session.Subscribe(func(key string) { seen = append(seen, key) })

		require.NoError(t, session.SetToken("abc"))
		require.NoError(t, store.Set("OTHER_token", "zzz"))
		require.Equal(t, []string{"token"}, seen)
	})
}
