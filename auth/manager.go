// Package auth implements the client side token lifecycle state
// machine of the OAuth2 authorization code flow with PKCE: login
// redirect construction, callback handling, token storage and expiry
// tracking, silent renewal and logout.
package auth

import (
	"context"
	"math/rand"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jrsteele09/go-auth-client/exchange"
	"github.com/jrsteele09/go-auth-client/storage"
	"github.com/jrsteele09/go-auth-client/token"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// checkResolution is how often the periodic checker compares the wall
// clock against its schedule. Comparing wall clock time instead of
// counting ticks makes the checker catch up immediately after the host
// process is suspended and resumed.
const checkResolution = 500 * time.Millisecond

// Manager owns one OAuth2 session: it decides whether the user is
// unauthenticated, mid-login, holding a valid token or needing renewal,
// and drives the side effects that move between those states. All
// transitions within one process are serialized; peer processes sharing
// the same storage coordinate through advisory flags in the store.
type Manager struct {
	cfg        internalConfig
	session    *storage.SessionStore
	exchange   *exchange.Client
	httpClient *http.Client
	nav        Navigator
	nowFunc    func() time.Time

	// flowMu serializes state transitions, standing in for the single
	// threaded event loop of a browser context.
	flowMu sync.Mutex

	stateMu       sync.RWMutex
	tokenClaims   token.Claims
	idTokenClaims token.Claims
	lastError     string

	// didExchange guards the pending login attempt's authorization
	// code: it is raised just before the code is sent to the token
	// endpoint and reset when a new login starts, so each attempt's
	// code is exchanged at most once. A replayed code is guaranteed to
	// be rejected by the provider.
	didExchange atomic.Bool

	done        chan struct{}
	closeOnce   sync.Once
	wg          sync.WaitGroup
	unsubscribe func()
}

// Option modifies a Manager.
type Option func(*Manager)

// WithNavigator sets the delegate that performs browser navigations.
func WithNavigator(nav Navigator) Option {
	return func(m *Manager) {
		m.nav = nav
	}
}

// WithNowFunc sets the time source (primarily for testing).
func WithNowFunc(now func() time.Time) Option {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

// WithHTTPClient sets the HTTP client used for token endpoint calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(m *Manager) {
		m.httpClient = hc
	}
}

// New validates and resolves the configuration, wires the session store
// and starts the periodic expiry checker. Configuration problems are
// returned here and nowhere else: they are programming mistakes, not
// runtime conditions.
func New(ctx context.Context, cfg Config, options ...Option) (*Manager, error) {
	ic, err := newInternalConfig(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "[auth.New]")
	}
	if err := ic.resolveEndpoints(ctx); err != nil {
		return nil, errors.Wrap(err, "[auth.New]")
	}

	m := &Manager{
		cfg:     ic,
		nowFunc: time.Now,
		nav: NavigatorFunc(func(string, LoginMethod) error {
			return errors.New("no Navigator configured")
		}),
		done: make(chan struct{}),
	}
	for _, opt := range options {
		opt(m)
	}

	m.session = storage.NewSessionStore(ic.Storage, ic.StorageKeyPrefix, storage.WithNowFunc(m.nowFunc))

	var exchangeOpts []exchange.Option
	if m.httpClient != nil {
		exchangeOpts = append(exchangeOpts, exchange.WithHTTPClient(m.httpClient))
	}
	m.exchange = exchange.New(ic.TokenEndpoint, exchangeOpts...)

	// Claims are ephemeral: recompute them whenever a peer process
	// rewrites the persisted tokens.
	m.unsubscribe = m.session.Subscribe(func(key string) {
		switch key {
		case storage.KeyToken, storage.KeyIDToken:
			m.recomputeClaims()
		}
	})

	m.wg.Add(1)
	go m.runChecker(m.nowFunc())
	return m, nil
}

// InitialCheck runs the once-per-start dispatch. query carries the
// current invocation's query parameters, which hold the authorization
// code when this start is the redirect back from the provider.
// It distinguishes three disjoint cases: mid-callback, no token with
// auto-login enabled, and an existing session.
func (m *Manager) InitialCheck(ctx context.Context, query url.Values) error {
	m.flowMu.Lock()
	defer m.flowMu.Unlock()

	if m.session.LoginInProgress() {
		return m.handleCallbackLocked(ctx, query)
	}

	if m.session.Token() == "" {
		if m.cfg.autoLogin {
			return m.logInLocked("", nil, "")
		}
		return nil
	}

	// Existing session: rebuild ephemeral claims, then run the renewal
	// tree with the initial flag raised so failures are handled
	// aggressively before the host starts relying on the token.
	m.recomputeClaims()
	return m.refreshLocked(ctx, true)
}

// RefreshAccessToken runs the renewal decision tree on demand. The
// periodic checker calls this on its jittered schedule; hosts may also
// call it directly.
func (m *Manager) RefreshAccessToken(ctx context.Context) error {
	m.flowMu.Lock()
	defer m.flowMu.Unlock()
	return m.refreshLocked(ctx, false)
}

// Token returns a currently valid access token, refreshing first when
// needed. Concurrent callers serialize on the manager's lock and share
// the single in-flight refresh.
func (m *Manager) Token(ctx context.Context) (string, error) {
	m.flowMu.Lock()
	defer m.flowMu.Unlock()

	if err := m.refreshLocked(ctx, false); err != nil {
		return "", errors.Wrap(err, "[Token] refresh")
	}
	tok := m.session.Token()
	if tok == "" {
		return "", ErrNotAuthenticated
	}
	return tok, nil
}

// AccessToken returns the stored access token without refreshing,
// empty when unauthenticated.
func (m *Manager) AccessToken() string { return m.session.Token() }

// IDToken returns the stored ID token, empty when none was issued.
func (m *Manager) IDToken() string { return m.session.IDToken() }

// Claims returns the decoded access token claims, nil when decoding is
// disabled, failed, or no token is held.
func (m *Manager) Claims() token.Claims {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.tokenClaims
}

// IDTokenClaims returns the decoded ID token claims, nil when absent.
func (m *Manager) IDTokenClaims() token.Claims {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.idTokenClaims
}

// Err returns the last observed failure message, empty when the last
// transition succeeded. It is the single channel for surfacing
// authentication problems to the host UI.
func (m *Manager) Err() string {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.lastError
}

// LoginInProgress reports whether a login redirect has been issued and
// its callback not yet concluded.
func (m *Manager) LoginInProgress() bool { return m.session.LoginInProgress() }

// OAuth2Token adapts the session into an x/oauth2 token so it can feed
// any oauth2-aware API client. Returns nil when unauthenticated.
func (m *Manager) OAuth2Token() *oauth2.Token {
	tok := m.session.Token()
	if tok == "" {
		return nil
	}
	return &oauth2.Token{
		AccessToken:  tok,
		RefreshToken: m.session.RefreshToken(),
		TokenType:    "Bearer",
		Expiry:       time.Unix(m.session.TokenExpire(), 0),
	}
}

// Close tears down the periodic checker and the storage subscription.
// It does not close the underlying store, which the host owns, and it
// does not cancel an in-flight exchange; settled results are simply no
// longer observed.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		close(m.done)
		m.wg.Wait()
		if m.unsubscribe != nil {
			m.unsubscribe()
		}
	})
}

// runChecker invokes the renewal tree on a jittered schedule. The
// stagger is drawn once per manager so peer processes whose tokens
// expire at the same instant do not stampede the token endpoint
// together; wall clock comparison (rather than tick counting) means a
// suspended and resumed process fires immediately instead of waiting a
// full interval. lastRun is captured by the caller before this
// goroutine starts, so the schedule's start point does not depend on
// goroutine scheduling.
func (m *Manager) runChecker(lastRun time.Time) {
	defer m.wg.Done()

	stagger := time.Duration(0)
	if m.cfg.CheckJitter > 0 {
		stagger = time.Duration(rand.Int63n(int64(m.cfg.CheckJitter)))
	}

	ticker := time.NewTicker(checkResolution)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			target := m.cfg.CheckInterval + time.Duration(rand.Float64()*float64(stagger))
			if m.nowFunc().Sub(lastRun) < target {
				continue
			}
			lastRun = m.nowFunc()
			if err := m.RefreshAccessToken(context.Background()); err != nil {
				log.Debug().Err(err).Msg("periodic token check failed")
			}
		}
	}
}

func (m *Manager) recomputeClaims() {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()

	m.tokenClaims = nil
	m.idTokenClaims = nil

	if idToken := m.session.IDToken(); idToken != "" {
		claims, err := token.Decode(idToken)
		if err != nil {
			log.Warn().Err(err).Msg("failed to decode id token")
		} else {
			m.idTokenClaims = claims
		}
	}
	if tok := m.session.Token(); tok != "" && m.cfg.decodeToken {
		claims, err := token.Decode(tok)
		if err != nil {
			log.Warn().Err(err).Msg("failed to decode access token")
		} else {
			m.tokenClaims = claims
		}
	}
}

func (m *Manager) setError(err error) {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	m.lastError = err.Error()
}

func (m *Manager) clearError() {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	m.lastError = ""
}
