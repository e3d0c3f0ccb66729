package auth

import (
	"time"

	"github.com/jrsteele09/go-auth-client/internal/utils"
	"github.com/jrsteele09/go-auth-client/storage"
	"github.com/pkg/errors"
)

// LoginMethod selects how the authorization navigation is performed.
type LoginMethod string

const (
	// LoginMethodRedirect performs a full navigation of the current
	// browsing context.
	LoginMethodRedirect LoginMethod = "redirect"

	// LoginMethodReplace performs a full navigation without leaving a
	// history entry.
	LoginMethodReplace LoginMethod = "replace"

	// LoginMethodPopup opens a separate browsing context and concludes
	// it from the callback handler.
	LoginMethodPopup LoginMethod = "popup"
)

// RefreshExpiryStrategy controls how the refresh token expiry instant
// evolves across successful refreshes.
type RefreshExpiryStrategy string

const (
	// RefreshExpiryRenewable extends the refresh expiry on every
	// successful refresh.
	RefreshExpiryRenewable RefreshExpiryStrategy = "renewable"

	// RefreshExpiryAbsolute treats the first established expiry as a
	// hard session ceiling that later responses never push forward.
	RefreshExpiryAbsolute RefreshExpiryStrategy = "absolute"
)

// RefreshTokenExpiredEvent is handed to the OnRefreshTokenExpire hook
// so the host application can decide how to prompt the user.
type RefreshTokenExpiredEvent struct {
	// LogIn starts a fresh interactive login.
	LogIn func()
}

// Config is the user supplied configuration. Required fields are
// ClientID, AuthorizationEndpoint, TokenEndpoint and RedirectURI;
// endpoints may instead be resolved from Issuer via OIDC discovery.
type Config struct {
	ClientID              string
	AuthorizationEndpoint string
	TokenEndpoint         string
	RedirectURI           string

	// Issuer enables OIDC discovery: when set and the endpoints above
	// are empty, they are resolved from the issuer's well-known
	// configuration document.
	Issuer string

	Scope string

	// State is the default anti-CSRF state value. When empty a random
	// value is generated per login.
	State string

	LogoutEndpoint string
	LogoutRedirect string

	// UILocales is forwarded to the logout endpoint as a locale hint.
	UILocales string

	// PreLogin runs just before the authorization navigation.
	PreLogin func()

	// PostLogin runs after a successful code exchange.
	PostLogin func()

	// OnRefreshTokenExpire is invoked, on its own goroutine, when the
	// session has truly expired during active use. When nil, an
	// automatic fresh login is triggered instead.
	OnRefreshTokenExpire func(RefreshTokenExpiredEvent)

	LoginMethod LoginMethod

	// DecodeToken controls whether access token claims are decoded.
	// Defaults to true.
	DecodeToken *bool

	// AutoLogin triggers an interactive login on the initial check when
	// no token is stored. Defaults to true.
	AutoLogin *bool

	// ClearURL asks the navigator to rewrite the visible URL after the
	// callback, removing the code and state query parameters.
	// Defaults to true.
	ClearURL *bool

	ExtraAuthParameters   map[string]string
	ExtraTokenParameters  map[string]string
	ExtraLogoutParameters map[string]string

	// TokenExpiresIn overrides the server declared access token
	// lifetime, in seconds.
	TokenExpiresIn *int64

	// RefreshTokenExpiresIn overrides the resolved refresh token
	// lifetime, in seconds.
	RefreshTokenExpiresIn *int64

	RefreshTokenExpiryStrategy RefreshExpiryStrategy

	// RefreshWithScope includes the configured scope in refresh
	// requests. Defaults to true.
	RefreshWithScope *bool

	// Storage is the persistence substrate shared with peer processes.
	// Defaults to an in-memory store (session-scoped semantics).
	Storage storage.Store

	StorageKeyPrefix string

	// CheckInterval is the base period of the expiry check timer.
	CheckInterval time.Duration

	// CheckJitter is the maximum random stagger added to the check
	// interval, de-synchronizing refreshes across peer processes.
	CheckJitter time.Duration
}

const (
	defaultStorageKeyPrefix = "ROCP_"
	defaultCheckInterval    = 10 * time.Second
	defaultCheckJitter      = 5 * time.Second
)

// ConfigError marks an invalid configuration: a programming mistake
// surfaced at construction time, never at runtime.
type ConfigError struct {
	msg string
}

func (e *ConfigError) Error() string { return "invalid auth config: " + e.msg }

func configErrorf(format string, args ...any) error {
	return &ConfigError{msg: errors.Errorf(format, args...).Error()}
}

// internalConfig is Config with every default resolved.
type internalConfig struct {
	Config

	decodeToken      bool
	autoLogin        bool
	clearURL         bool
	refreshWithScope bool
}

func newInternalConfig(cfg Config) (internalConfig, error) {
	ic := internalConfig{
		Config:           cfg,
		decodeToken:      utils.ValueOr(cfg.DecodeToken, true),
		autoLogin:        utils.ValueOr(cfg.AutoLogin, true),
		clearURL:         utils.ValueOr(cfg.ClearURL, true),
		refreshWithScope: utils.ValueOr(cfg.RefreshWithScope, true),
	}

	if ic.LoginMethod == "" {
		ic.LoginMethod = LoginMethodRedirect
	}
	if ic.RefreshTokenExpiryStrategy == "" {
		ic.RefreshTokenExpiryStrategy = RefreshExpiryRenewable
	}
	if ic.StorageKeyPrefix == "" {
		ic.StorageKeyPrefix = defaultStorageKeyPrefix
	}
	if ic.CheckInterval == 0 {
		ic.CheckInterval = defaultCheckInterval
	}
	if ic.CheckJitter == 0 {
		ic.CheckJitter = defaultCheckJitter
	}
	if ic.Storage == nil {
		ic.Storage = storage.NewMemoryStore()
	}

	if err := ic.validate(); err != nil {
		return internalConfig{}, err
	}
	return ic, nil
}

func (ic *internalConfig) validate() error {
	if ic.ClientID == "" {
		return configErrorf("'ClientID' must be set")
	}
	if ic.Issuer == "" {
		if ic.AuthorizationEndpoint == "" {
			return configErrorf("'AuthorizationEndpoint' must be set (or provide 'Issuer' for discovery)")
		}
		if ic.TokenEndpoint == "" {
			return configErrorf("'TokenEndpoint' must be set (or provide 'Issuer' for discovery)")
		}
	}
	if ic.RedirectURI == "" {
		return configErrorf("'RedirectURI' must be set")
	}
	switch ic.LoginMethod {
	case LoginMethodRedirect, LoginMethodReplace, LoginMethodPopup:
	default:
		return configErrorf("'LoginMethod' must be one of (redirect, replace, popup), got %q", ic.LoginMethod)
	}
	switch ic.RefreshTokenExpiryStrategy {
	case RefreshExpiryRenewable, RefreshExpiryAbsolute:
	default:
		return configErrorf("'RefreshTokenExpiryStrategy' must be one of (renewable, absolute), got %q", ic.RefreshTokenExpiryStrategy)
	}
	return nil
}
