package auth

import (
	"context"
	"net/url"

	"github.com/jrsteele09/go-auth-client/exchange"
	"github.com/jrsteele09/go-auth-client/internal/utils"
	"github.com/jrsteele09/go-auth-client/token"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// badAuthStateMessage is surfaced when the callback arrives without an
// authorization code. It is intentionally user facing: the host is
// expected to display Err() verbatim.
const badAuthStateMessage = "Bad authorization state. Refreshing the page and log in again might solve the issue."

// HandleCallback consumes the redirect back from the authorization
// endpoint. query is the full query of the callback request, carrying
// the code and state parameters. It is safe to call on every page load;
// when no login is pending it returns ErrCallbackNotPending and does
// nothing else.
func (m *Manager) HandleCallback(ctx context.Context, query url.Values) error {
	m.flowMu.Lock()
	defer m.flowMu.Unlock()
	return m.handleCallbackLocked(ctx, query)
}

func (m *Manager) handleCallbackLocked(ctx context.Context, query url.Values) error {
	if !m.session.LoginInProgress() {
		return ErrCallbackNotPending
	}

	code := query.Get("code")
	if code == "" {
		// The provider bounced us back without a code: either a
		// provider-side error or a stray reload of the callback URL.
		msg := query.Get("error_description")
		if msg == "" {
			msg = badAuthStateMessage
		}
		m.setError(errors.New(msg))
		if clearErr := m.session.Clear(); clearErr != nil {
			log.Warn().Err(clearErr).Msg("failed to clear session after bad callback")
		}
		m.recomputeClaims()
		return errors.Wrapf(ErrMissingAuthCode, "[HandleCallback] %s", msg)
	}

	// The second arrival of an already exchanged code is silently
	// ignored rather than failed: hosts with re-entrant startup paths
	// invoke the callback handler twice.
	if m.didExchange.Load() {
		log.Debug().Msg("authorization code already exchanged, ignoring duplicate callback")
		return nil
	}

	method := LoginMethod(m.session.LoginMethod())
	if method == "" {
		method = m.cfg.LoginMethod
	}
	defer func() {
		if err := m.session.SetLoginInProgress(false); err != nil {
			log.Warn().Err(err).Msg("failed to clear login flag")
		}
		m.nav.Conclude(method, m.cfg.clearURL)
	}()

	if stored := m.session.AuthState(); stored != query.Get("state") {
		m.setError(ErrStateMismatch)
		if clearErr := m.session.Clear(); clearErr != nil {
			log.Warn().Err(clearErr).Msg("failed to clear session after state mismatch")
		}
		m.recomputeClaims()
		return errors.Wrap(ErrStateMismatch, "[HandleCallback]")
	}

	verifier := m.session.CodeVerifier()
	if verifier == "" {
		m.setError(ErrMissingCodeVerifier)
		return errors.Wrap(ErrMissingCodeVerifier, "[HandleCallback]")
	}

	// The guard is consumed only for a validated callback: a rejected
	// forgery is not an exchange attempt.
	m.didExchange.Store(true)

	resp, err := m.exchange.ExchangeCode(ctx, exchange.CodeRequest{
		ClientID:     m.cfg.ClientID,
		RedirectURI:  m.cfg.RedirectURI,
		Code:         code,
		CodeVerifier: verifier,
		Extra:        m.cfg.ExtraTokenParameters,
	})
	if err != nil {
		m.setError(err)
		return errors.Wrap(err, "[HandleCallback] code exchange")
	}

	// Both are single-use: the verifier matched its code, and the state
	// guarded this one round trip.
	if err := m.session.DeleteCodeVerifier(); err != nil {
		log.Warn().Err(err).Msg("failed to delete code verifier")
	}
	if err := m.session.DeleteAuthState(); err != nil {
		log.Warn().Err(err).Msg("failed to delete auth state")
	}

	if err := m.applyTokenResponse(resp, true); err != nil {
		m.setError(err)
		return errors.Wrap(err, "[HandleCallback] storing tokens")
	}

	log.Info().Msg("authorization code exchanged, session established")
	if m.cfg.PostLogin != nil {
		m.cfg.PostLogin()
	}
	return nil
}

// applyTokenResponse persists a successful token endpoint response and
// rebuilds the derived in-memory state. initialLogin distinguishes the
// code exchange from later refreshes, which matters for the absolute
// refresh expiry strategy.
func (m *Manager) applyTokenResponse(resp *token.Response, initialLogin bool) error {
	now := m.nowFunc()

	// Access token lifetime priority: configured override, the server's
	// expires_in, the ID token exp claim, fixed fallback.
	var tokenExpiresIn int64
	switch {
	case m.cfg.TokenExpiresIn != nil:
		tokenExpiresIn = *m.cfg.TokenExpiresIn
	case resp.ExpiresIn != nil:
		tokenExpiresIn = *resp.ExpiresIn
	default:
		tokenExpiresIn = int64(token.FallbackExpireTime)
		if idToken := utils.Value(resp.IDToken); idToken != "" {
			if claims, err := token.Decode(idToken); err == nil {
				if exp, ok := claims.ExpiresAt(); ok {
					tokenExpiresIn = exp - now.Unix()
				}
			}
		}
	}

	refreshExpiresIn := token.RefreshExpiresIn(tokenExpiresIn, resp)
	if m.cfg.RefreshTokenExpiresIn != nil {
		refreshExpiresIn = *m.cfg.RefreshTokenExpiresIn
	}

	if err := m.session.SetToken(resp.AccessToken); err != nil {
		return errors.Wrap(err, "[applyTokenResponse] access token")
	}
	if err := m.session.SetTokenExpire(token.EpochAtSecondsFromNow(tokenExpiresIn, now)); err != nil {
		return errors.Wrap(err, "[applyTokenResponse] access token expiry")
	}
	if rt := utils.Value(resp.RefreshToken); rt != "" {
		if err := m.session.SetRefreshToken(rt); err != nil {
			return errors.Wrap(err, "[applyTokenResponse] refresh token")
		}
		// Under the absolute strategy the expiry set at login is a hard
		// session ceiling; refreshes never push it forward.
		if initialLogin || m.cfg.RefreshTokenExpiryStrategy == RefreshExpiryRenewable {
			if err := m.session.SetRefreshTokenExpire(token.EpochAtSecondsFromNow(refreshExpiresIn, now)); err != nil {
				return errors.Wrap(err, "[applyTokenResponse] refresh token expiry")
			}
		}
	}
	if idToken := utils.Value(resp.IDToken); idToken != "" {
		if err := m.session.SetIDToken(idToken); err != nil {
			return errors.Wrap(err, "[applyTokenResponse] id token")
		}
	}

	m.recomputeClaims()
	m.clearError()
	return nil
}
