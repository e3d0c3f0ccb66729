package urlenc_test

import (
	"testing"

	"github.com/jrsteele09/go-auth-client/internal/urlenc"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	t.Run("preserves insertion order", func(t *testing.T) {
		encoded := urlenc.Params{}.
			Append("zeta", "1").
			Append("alpha", "2").
			Append("mid", "3").
			Encode()
		require.Equal(t, "zeta=1&alpha=2&mid=3", encoded)
	})

	t.Run("escapes values", func(t *testing.T) {
		encoded := urlenc.Params{}.
			Append("redirect_uri", "http://localhost/").
			Append("scope", "someScope openid").
			Encode()
		require.Equal(t, "redirect_uri=http%3A%2F%2Flocalhost%2F&scope=someScope+openid", encoded)
	})

	t.Run("extras appended in sorted order", func(t *testing.T) {
		encoded := urlenc.Params{}.
			Append("grant_type", "authorization_code").
			AppendExtras(map[string]string{"prompt": "consent", "audience": "api"}).
			Encode()
		require.Equal(t, "grant_type=authorization_code&audience=api&prompt=consent", encoded)
	})

	t.Run("empty params encode to nothing", func(t *testing.T) {
		require.Empty(t, urlenc.Params{}.Encode())
	})
}
