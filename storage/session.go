package storage

import (
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Storage key suffixes, scoped by the configured prefix. Tokens are
// stored as raw strings; numbers and booleans as their JSON forms.
const (
	KeyToken              = "token"
	KeyTokenExpire        = "tokenExpire"
	KeyRefreshToken       = "refreshToken"
	KeyRefreshTokenExpire = "refreshTokenExpire"
	KeyIDToken            = "idToken"
	KeyLoginInProgress    = "loginInProgress"
	KeyRefreshInProgress  = "refreshInProgress"
	KeyLoginMethod        = "loginMethod"
	KeyCodeVerifier       = "PKCE_code_verifier"
	KeyAuthState          = "auth_state"
)

// FallbackExpireSeconds mirrors the token package's fallback lifetime;
// cleared sessions reset their expiry instants this far ahead.
const FallbackExpireSeconds = 600

// SessionStore is the typed, prefix-scoped view of the persisted OAuth2
// session. Read errors and unparseable values degrade to zero values
// with a log line rather than failing the caller: a corrupt entry is
// equivalent to an absent one.
type SessionStore struct {
	store   Store
	prefix  string
	nowFunc func() time.Time
}

// SessionOption modifies a SessionStore.
type SessionOption func(*SessionStore)

// WithNowFunc sets the time source (primarily for testing).
func WithNowFunc(now func() time.Time) SessionOption {
	return func(s *SessionStore) {
		s.nowFunc = now
	}
}

// NewSessionStore wraps a Store with the session field accessors. All
// keys are prefixed so multiple sessions can share one substrate.
func NewSessionStore(store Store, prefix string, options ...SessionOption) *SessionStore {
	s := &SessionStore{
		store:   store,
		prefix:  prefix,
		nowFunc: time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Token returns the stored access token, empty when unauthenticated.
func (s *SessionStore) Token() string { return s.getString(KeyToken) }

func (s *SessionStore) SetToken(v string) error { return s.setString(KeyToken, v) }

// TokenExpire returns the absolute epoch-seconds access token expiry.
func (s *SessionStore) TokenExpire() int64 { return s.getInt64(KeyTokenExpire) }

func (s *SessionStore) SetTokenExpire(v int64) error { return s.setInt64(KeyTokenExpire, v) }

// RefreshToken returns the stored refresh token, empty when silent
// renewal is not possible.
func (s *SessionStore) RefreshToken() string { return s.getString(KeyRefreshToken) }

func (s *SessionStore) SetRefreshToken(v string) error { return s.setString(KeyRefreshToken, v) }

func (s *SessionStore) DeleteRefreshToken() error { return s.store.Delete(s.prefix + KeyRefreshToken) }

// RefreshTokenExpire returns the absolute epoch-seconds refresh token
// expiry. Zero means no expiry has been established yet.
func (s *SessionStore) RefreshTokenExpire() int64 { return s.getInt64(KeyRefreshTokenExpire) }

func (s *SessionStore) SetRefreshTokenExpire(v int64) error {
	return s.setInt64(KeyRefreshTokenExpire, v)
}

func (s *SessionStore) IDToken() string { return s.getString(KeyIDToken) }

func (s *SessionStore) SetIDToken(v string) error { return s.setString(KeyIDToken, v) }

func (s *SessionStore) DeleteIDToken() error { return s.store.Delete(s.prefix + KeyIDToken) }

// LoginInProgress marks "redirect issued, awaiting callback".
func (s *SessionStore) LoginInProgress() bool { return s.getBool(KeyLoginInProgress) }

func (s *SessionStore) SetLoginInProgress(v bool) error { return s.setBool(KeyLoginInProgress, v) }

// RefreshInProgress marks an outstanding refresh call, used to suppress
// duplicate refreshes from concurrent peers sharing this store.
func (s *SessionStore) RefreshInProgress() bool { return s.getBool(KeyRefreshInProgress) }

func (s *SessionStore) SetRefreshInProgress(v bool) error { return s.setBool(KeyRefreshInProgress, v) }

// LoginMethod records how the pending login was launched so the
// callback handler knows how to conclude it.
func (s *SessionStore) LoginMethod() string { return s.getString(KeyLoginMethod) }

func (s *SessionStore) SetLoginMethod(v string) error { return s.setString(KeyLoginMethod, v) }

// CodeVerifier is the PKCE secret persisted across the redirect
// boundary, consumed exactly once on callback.
func (s *SessionStore) CodeVerifier() string { return s.getString(KeyCodeVerifier) }

func (s *SessionStore) SetCodeVerifier(v string) error { return s.setString(KeyCodeVerifier, v) }

func (s *SessionStore) DeleteCodeVerifier() error { return s.store.Delete(s.prefix + KeyCodeVerifier) }

// AuthState is the anti-CSRF nonce persisted across the redirect
// boundary and matched against the provider's echoed state parameter.
func (s *SessionStore) AuthState() string { return s.getString(KeyAuthState) }

func (s *SessionStore) SetAuthState(v string) error { return s.setString(KeyAuthState, v) }

func (s *SessionStore) DeleteAuthState() error { return s.store.Delete(s.prefix + KeyAuthState) }

// Clear resets the session to the unauthenticated baseline: tokens and
// redirect-boundary secrets removed, progress flags lowered, expiry
// instants re-seeded with the fallback lifetime.
func (s *SessionStore) Clear() error {
	now := s.nowFunc()
	steps := []func() error{
		func() error { return s.SetToken("") },
		func() error { return s.DeleteRefreshToken() },
		func() error { return s.DeleteIDToken() },
		func() error { return s.SetTokenExpire(now.Unix() + FallbackExpireSeconds) },
		func() error { return s.SetRefreshTokenExpire(now.Unix() + FallbackExpireSeconds) },
		func() error { return s.SetLoginInProgress(false) },
		func() error { return s.SetRefreshInProgress(false) },
		func() error { return s.DeleteCodeVerifier() },
		func() error { return s.DeleteAuthState() },
		func() error { return s.store.Delete(s.prefix + KeyLoginMethod) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return errors.Wrap(err, "[SessionStore.Clear]")
		}
	}
	return nil
}

// Subscribe forwards change notifications for this session's keys, with
// the prefix stripped.
func (s *SessionStore) Subscribe(fn func(key string)) func() {
	return s.store.Subscribe(func(key string) {
		if !strings.HasPrefix(key, s.prefix) {
			return
		}
		fn(strings.TrimPrefix(key, s.prefix))
	})
}

func (s *SessionStore) getString(key string) string {
	v, _, err := s.store.Get(s.prefix + key)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("session store read failed")
		return ""
	}
	return v
}

func (s *SessionStore) setString(key, value string) error {
	return s.store.Set(s.prefix+key, value)
}

func (s *SessionStore) getInt64(key string) int64 {
	v := s.getString(key)
	if v == "" {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		log.Warn().Str("key", key).Str("value", v).Msg("session store value is not a number")
		return 0
	}
	return n
}

func (s *SessionStore) setInt64(key string, value int64) error {
	return s.setString(key, strconv.FormatInt(value, 10))
}

func (s *SessionStore) getBool(key string) bool {
	return s.getString(key) == "true"
}

func (s *SessionStore) setBool(key string, value bool) error {
	return s.setString(key, strconv.FormatBool(value))
}
