package auth

import (
	"github.com/google/uuid"
	"github.com/jrsteele09/go-auth-client/internal/urlenc"
	"github.com/jrsteele09/go-auth-client/pkce"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// LogIn clears any prior session remnants, generates a fresh PKCE pair,
// persists the verifier and the anti-CSRF state across the redirect
// boundary, then navigates to the authorization endpoint.
//
// state overrides the configured default state; when both are empty a
// random value is generated, so every login carries CSRF protection.
// extraParams are appended to the authorization URL on top of the
// configured extra parameters. method overrides the configured login
// method.
func (m *Manager) LogIn(state string, extraParams map[string]string, method LoginMethod) error {
	m.flowMu.Lock()
	defer m.flowMu.Unlock()
	return m.logInLocked(state, extraParams, method)
}

func (m *Manager) logInLocked(state string, extraParams map[string]string, method LoginMethod) error {
	if err := m.session.Clear(); err != nil {
		return errors.Wrap(err, "[LogIn] clearing session")
	}
	m.recomputeClaims()
	// A fresh attempt gets a fresh code, so the exchange guard resets.
	m.didExchange.Store(false)

	verifier, challenge, err := pkce.NewPair()
	if err != nil {
		// Insecure context: fatal to this login attempt, and
		// loginInProgress stays false so the host is not stuck.
		m.setError(err)
		return errors.Wrap(err, "[LogIn] generating PKCE pair")
	}

	if method == "" {
		method = m.cfg.LoginMethod
	}
	if state == "" {
		state = m.cfg.State
	}
	if state == "" {
		state = uuid.New().String()
	}

	if err := m.session.SetCodeVerifier(verifier); err != nil {
		return errors.Wrap(err, "[LogIn] persisting code verifier")
	}
	if err := m.session.SetAuthState(state); err != nil {
		return errors.Wrap(err, "[LogIn] persisting auth state")
	}
	if err := m.session.SetLoginMethod(string(method)); err != nil {
		return errors.Wrap(err, "[LogIn] persisting login method")
	}
	if err := m.session.SetLoginInProgress(true); err != nil {
		return errors.Wrap(err, "[LogIn] persisting login flag")
	}

	params := urlenc.Params{}.
		Append("response_type", "code").
		Append("client_id", m.cfg.ClientID).
		Append("redirect_uri", m.cfg.RedirectURI).
		Append("code_challenge", challenge).
		Append("code_challenge_method", "S256")
	if m.cfg.Scope != "" {
		params = params.Append("scope", m.cfg.Scope)
	}
	params = params.AppendExtras(mergeParams(m.cfg.ExtraAuthParameters, extraParams))
	params = params.Append("state", state)

	loginURL := m.cfg.AuthorizationEndpoint + "?" + params.Encode()

	if m.cfg.PreLogin != nil {
		m.cfg.PreLogin()
	}

	log.Info().Str("method", string(method)).Msg("redirecting to authorization endpoint")
	if err := m.nav.Navigate(loginURL, method); err != nil {
		m.setError(err)
		_ = m.session.SetLoginInProgress(false)
		return errors.Wrap(err, "[LogIn] navigation")
	}
	return nil
}

// LogOut clears all session state and, when a logout endpoint is
// configured and a token was held, navigates to it so the provider can
// revoke the credential and end its own session. The refresh token is
// preferred as the revocation target - it has the longer blast radius -
// falling back to the access token. With no logout endpoint, clearing
// local state alone constitutes logout.
func (m *Manager) LogOut(state, logoutHint string, extraParams map[string]string) error {
	m.flowMu.Lock()
	defer m.flowMu.Unlock()

	accessToken := m.session.Token()
	refreshToken := m.session.RefreshToken()
	idToken := m.session.IDToken()

	if err := m.session.Clear(); err != nil {
		return errors.Wrap(err, "[LogOut] clearing session")
	}
	m.recomputeClaims()
	m.clearError()

	if m.cfg.LogoutEndpoint == "" || accessToken == "" {
		return nil
	}

	revokeToken, tokenTypeHint := accessToken, "access_token"
	if refreshToken != "" {
		revokeToken, tokenTypeHint = refreshToken, "refresh_token"
	}

	postLogoutRedirect := m.cfg.LogoutRedirect
	if postLogoutRedirect == "" {
		postLogoutRedirect = m.cfg.RedirectURI
	}

	params := urlenc.Params{}.
		Append("token", revokeToken).
		Append("token_type_hint", tokenTypeHint).
		Append("client_id", m.cfg.ClientID).
		Append("post_logout_redirect_uri", postLogoutRedirect)
	if m.cfg.UILocales != "" {
		params = params.Append("ui_locales", m.cfg.UILocales)
	}
	if idToken != "" {
		params = params.Append("id_token_hint", idToken)
	}
	if state != "" {
		params = params.Append("state", state)
	}
	if logoutHint != "" {
		params = params.Append("logout_hint", logoutHint)
	}
	params = params.AppendExtras(mergeParams(m.cfg.ExtraLogoutParameters, extraParams))

	logoutURL := m.cfg.LogoutEndpoint + "?" + params.Encode()

	log.Info().Str("token_type_hint", tokenTypeHint).Msg("redirecting to logout endpoint")
	if err := m.nav.Navigate(logoutURL, m.cfg.LoginMethod); err != nil {
		m.setError(err)
		return errors.Wrap(err, "[LogOut] navigation")
	}
	return nil
}

// mergeParams overlays call-site parameters on configured ones.
func mergeParams(configured, passed map[string]string) map[string]string {
	if len(passed) == 0 {
		return configured
	}
	merged := make(map[string]string, len(configured)+len(passed))
	for k, v := range configured {
		merged[k] = v
	}
	for k, v := range passed {
		merged[k] = v
	}
	return merged
}
