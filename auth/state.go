package auth

import (
	"time"

	"github.com/jrsteele09/go-auth-client/token"
)

// State is the session's position in the token lifecycle, derived from
// the persisted session fields. Exactly one state describes the session
// at any instant.
type State string

const (
	// StateLoggedOut - no tokens stored.
	StateLoggedOut State = "logged_out"

	// StateLoginInProgress - redirect issued, awaiting callback.
	StateLoginInProgress State = "login_in_progress"

	// StateLoggedIn - a valid access token is held.
	StateLoggedIn State = "logged_in"

	// StateRefreshDue - the access token has expired and a usable
	// refresh token is available.
	StateRefreshDue State = "refresh_due"

	// StateRefreshing - a refresh call is outstanding, possibly in a
	// peer process sharing the store.
	StateRefreshing State = "refreshing"

	// StateExpired - the session cannot be renewed silently: there is
	// no refresh token, or it has itself expired.
	StateExpired State = "expired"
)

// State reports the current lifecycle state.
func (m *Manager) State() State {
	return m.stateAt(m.nowFunc())
}

// stateAt is the single place session fields are folded into a state;
// the renewal decision tree dispatches on its result.
func (m *Manager) stateAt(now time.Time) State {
	if m.session.LoginInProgress() {
		return StateLoginInProgress
	}
	if m.session.Token() == "" {
		return StateLoggedOut
	}
	if !token.EpochTimeIsPast(m.session.TokenExpire(), now) {
		return StateLoggedIn
	}
	refreshToken := m.session.RefreshToken()
	if refreshToken == "" || token.EpochTimeIsPast(m.session.RefreshTokenExpire(), now) {
		return StateExpired
	}
	if m.session.RefreshInProgress() {
		return StateRefreshing
	}
	return StateRefreshDue
}
