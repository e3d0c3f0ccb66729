package auth_test

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/jrsteele09/go-auth-client/auth"
	"github.com/jrsteele09/go-auth-client/internal/utils"
	"github.com/stretchr/testify/require"
)

// startLogin drives the manager through LogIn and hands back the query
// a well-behaved provider would redirect with.
func startLogin(t *testing.T, tm *testManager, code string) url.Values {
	t.Helper()
	require.NoError(t, tm.LogIn("", nil, ""))
	return url.Values{
		"code":  {code},
		"state": {tm.session.AuthState()},
	}
}

func TestHandleCallback(t *testing.T) {
	t.Run("successful exchange establishes the session", func(t *testing.T) {
		tm := newTestManager(t, nil)
		query := startLogin(t, tm, "auth-code-1")
		verifier := tm.session.CodeVerifier()

		require.NoError(t, tm.HandleCallback(context.Background(), query))

		require.Len(t, tm.server.requests(), 1)
		body := tm.server.requests()[0]
		require.Contains(t, body, "grant_type=authorization_code")
		require.Contains(t, body, "code=auth-code-1")
		require.Contains(t, body, "code_verifier="+verifier)

		require.Equal(t, "at-1", tm.AccessToken())
		require.False(t, tm.LoginInProgress())
		require.Equal(t, auth.StateLoggedIn, tm.State())
		require.Empty(t, tm.Err())
		require.Equal(t, 1, tm.nav.concluded)

		// single-use secrets are consumed
		require.Empty(t, tm.session.CodeVerifier())
		require.Empty(t, tm.session.AuthState())
	})

	t.Run("not pending", func(t *testing.T) {
		tm := newTestManager(t, nil)
		err := tm.HandleCallback(context.Background(), url.Values{"code": {"x"}})
		require.ErrorIs(t, err, auth.ErrCallbackNotPending)
		require.Empty(t, tm.server.requests())
	})

	t.Run("duplicate callback exchanges the code once", func(t *testing.T) {
		tm := newTestManager(t, nil)
		query := startLogin(t, tm, "auth-code-1")

		require.NoError(t, tm.HandleCallback(context.Background(), query))
		// second delivery of the same redirect, before the login flag
		// change has been observed by the host
		require.NoError(t, tm.session.SetLoginInProgress(true))
		require.NoError(t, tm.HandleCallback(context.Background(), query))

		require.Len(t, tm.server.requests(), 1)
	})

	t.Run("logout then second login exchanges the fresh code", func(t *testing.T) {
		tm := newTestManager(t, nil)
		query := startLogin(t, tm, "auth-code-1")
		require.NoError(t, tm.HandleCallback(context.Background(), query))
		require.NoError(t, tm.LogOut("", "", nil))

		query = startLogin(t, tm, "auth-code-2")
		require.NoError(t, tm.HandleCallback(context.Background(), query))

		require.Len(t, tm.server.requests(), 2)
		require.Contains(t, tm.server.requests()[1], "code=auth-code-2")
		require.Equal(t, "at-1", tm.AccessToken())
		require.Equal(t, auth.StateLoggedIn, tm.State())
	})

	t.Run("expired session relogin exchanges again", func(t *testing.T) {
		tm := newTestManager(t, nil)
		query := startLogin(t, tm, "auth-code-1")
		require.NoError(t, tm.HandleCallback(context.Background(), query))

		// session runs out entirely, triggering an automatic re-login
		tm.clock.Advance(24 * time.Hour)
		require.NoError(t, tm.RefreshAccessToken(context.Background()))
		require.True(t, tm.LoginInProgress())

		query = startLogin(t, tm, "auth-code-2")
		require.NoError(t, tm.HandleCallback(context.Background(), query))
		require.Len(t, tm.server.requests(), 2)
		require.Equal(t, "at-1", tm.AccessToken())
	})

	t.Run("rejected forgery does not consume the exchange", func(t *testing.T) {
		tm := newTestManager(t, nil)
		query := startLogin(t, tm, "auth-code-1")
		query.Set("state", "forged")
		require.ErrorIs(t, tm.HandleCallback(context.Background(), query), auth.ErrStateMismatch)
		require.Empty(t, tm.server.requests())

		query = startLogin(t, tm, "auth-code-2")
		require.NoError(t, tm.HandleCallback(context.Background(), query))
		require.Len(t, tm.server.requests(), 1)
		require.Equal(t, "at-1", tm.AccessToken())
	})

	t.Run("state mismatch aborts before the exchange", func(t *testing.T) {
		tm := newTestManager(t, nil)
		query := startLogin(t, tm, "auth-code-1")
		query.Set("state", "forged")

		err := tm.HandleCallback(context.Background(), query)
		require.ErrorIs(t, err, auth.ErrStateMismatch)
		require.Empty(t, tm.server.requests())
		require.Empty(t, tm.AccessToken())
		require.NotEmpty(t, tm.Err())
		require.False(t, tm.LoginInProgress())
	})

	t.Run("missing code surfaces the provider description", func(t *testing.T) {
		tm := newTestManager(t, nil)
		require.NoError(t, tm.LogIn("", nil, ""))

		err := tm.HandleCallback(context.Background(), url.Values{
			"error":             {"access_denied"},
			"error_description": {"User cancelled the login"},
		})
		require.ErrorIs(t, err, auth.ErrMissingAuthCode)
		require.Equal(t, "User cancelled the login", tm.Err())
		require.Empty(t, tm.server.requests())
		require.False(t, tm.LoginInProgress())
	})

	t.Run("missing code without description gets the generic message", func(t *testing.T) {
		tm := newTestManager(t, nil)
		require.NoError(t, tm.LogIn("", nil, ""))

		err := tm.HandleCallback(context.Background(), url.Values{})
		require.ErrorIs(t, err, auth.ErrMissingAuthCode)
		require.Contains(t, tm.Err(), "Bad authorization state")
	})

	t.Run("provider error response surfaces", func(t *testing.T) {
		tm := newTestManager(t, nil)
		tm.server.respond(http.StatusBadRequest, `{"error":"invalid_grant","error_description":"code expired"}`)
		query := startLogin(t, tm, "stale-code")

		err := tm.HandleCallback(context.Background(), query)
		require.Error(t, err)
		require.Contains(t, tm.Err(), "code expired")
		require.Empty(t, tm.AccessToken())
		require.False(t, tm.LoginInProgress())
	})

	t.Run("post login hook fires after tokens are stored", func(t *testing.T) {
		var tokenAtHook string
		var tm *testManager
		tm = newTestManager(t, func(c *auth.Config) {
			c.PostLogin = func() { tokenAtHook = tm.AccessToken() }
		})
		query := startLogin(t, tm, "auth-code-1")
		require.NoError(t, tm.HandleCallback(context.Background(), query))
		require.Equal(t, "at-1", tokenAtHook)
	})
}

func TestTokenExpiryResolution(t *testing.T) {
	// ID token claims carrying exp = 1916239022 (far future), built on
	// the alg=none layout so decoding needs no key.
	const idToken = "eyJhbGciOiJub25lIn0.eyJzdWIiOiIxMjM0NTY3ODkwIiwiZXhwIjoxOTE2MjM5MDIyfQ."

	t.Run("server expires_in wins when no override is set", func(t *testing.T) {
		tm := newTestManager(t, nil)
		query := startLogin(t, tm, "c")
		require.NoError(t, tm.HandleCallback(context.Background(), query))
		require.Equal(t, tm.clock.Now().Add(300*time.Second).Unix(), tm.session.TokenExpire())
	})

	t.Run("configured override beats the server", func(t *testing.T) {
		tm := newTestManager(t, func(c *auth.Config) {
			c.TokenExpiresIn = utils.Ptr(int64(60))
		})
		query := startLogin(t, tm, "c")
		require.NoError(t, tm.HandleCallback(context.Background(), query))
		require.Equal(t, tm.clock.Now().Add(60*time.Second).Unix(), tm.session.TokenExpire())
	})

	t.Run("id token exp claim fills a silent server", func(t *testing.T) {
		tm := newTestManager(t, nil)
		tm.server.respond(http.StatusOK, `{"access_token":"at-1","id_token":"`+idToken+`"}`)
		query := startLogin(t, tm, "c")
		require.NoError(t, tm.HandleCallback(context.Background(), query))
		require.Equal(t, int64(1916239022), tm.session.TokenExpire())
	})

	t.Run("fixed fallback when nothing declares a lifetime", func(t *testing.T) {
		tm := newTestManager(t, nil)
		tm.server.respond(http.StatusOK, `{"access_token":"at-1"}`)
		query := startLogin(t, tm, "c")
		require.NoError(t, tm.HandleCallback(context.Background(), query))
		require.Equal(t, tm.clock.Now().Add(600*time.Second).Unix(), tm.session.TokenExpire())
	})

	t.Run("refresh token expiry override", func(t *testing.T) {
		tm := newTestManager(t, func(c *auth.Config) {
			c.RefreshTokenExpiresIn = utils.Ptr(int64(3600))
		})
		query := startLogin(t, tm, "c")
		require.NoError(t, tm.HandleCallback(context.Background(), query))
		require.Equal(t, tm.clock.Now().Add(time.Hour).Unix(), tm.session.RefreshTokenExpire())
	})
}

func TestDecodedClaims(t *testing.T) {
	// {"sub":"1234567890","name":"John Doe"} under an alg=none header.
	const jwtAccess = "eyJhbGciOiJub25lIn0.eyJzdWIiOiIxMjM0NTY3ODkwIiwibmFtZSI6IkpvaG4gRG9lIn0."

	t.Run("access token claims decoded by default", func(t *testing.T) {
		tm := newTestManager(t, nil)
		tm.server.respond(http.StatusOK, `{"access_token":"`+jwtAccess+`","expires_in":300}`)
		query := startLogin(t, tm, "c")
		require.NoError(t, tm.HandleCallback(context.Background(), query))

		claims := tm.Claims()
		require.NotNil(t, claims)
		sub, ok := claims.Subject()
		require.True(t, ok)
		require.Equal(t, "1234567890", sub)
	})

	t.Run("opaque access token leaves claims nil", func(t *testing.T) {
		tm := newTestManager(t, nil)
		tm.server.respond(http.StatusOK, `{"access_token":"opaque-string","expires_in":300}`)
		query := startLogin(t, tm, "c")
		require.NoError(t, tm.HandleCallback(context.Background(), query))
		require.Nil(t, tm.Claims())
	})

	t.Run("decoding disabled by configuration", func(t *testing.T) {
		tm := newTestManager(t, func(c *auth.Config) {
			c.DecodeToken = utils.Ptr(false)
		})
		tm.server.respond(http.StatusOK, `{"access_token":"`+jwtAccess+`","expires_in":300}`)
		query := startLogin(t, tm, "c")
		require.NoError(t, tm.HandleCallback(context.Background(), query))
		require.Nil(t, tm.Claims())
	})

	t.Run("id token claims decoded independently", func(t *testing.T) {
		tm := newTestManager(t, nil)
		tm.server.respond(http.StatusOK, `{"access_token":"opaque","expires_in":300,"id_token":"`+jwtAccess+`"}`)
		query := startLogin(t, tm, "c")
		require.NoError(t, tm.HandleCallback(context.Background(), query))

		require.Nil(t, tm.Claims())
		idClaims := tm.IDTokenClaims()
		require.NotNil(t, idClaims)
		require.Equal(t, "John Doe", idClaims["name"])
	})
}
