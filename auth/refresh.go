package auth

import (
	"context"

	"github.com/jrsteele09/go-auth-client/exchange"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// refreshLocked is the renewal decision tree: it folds the session into
// a lifecycle state and performs whatever that state demands. initial
// marks the once-per-start invocation, which bypasses the peer refresh
// guard (a crashed peer may have left the flag set) and handles
// expiry by logging in directly instead of deferring to the host hook.
func (m *Manager) refreshLocked(ctx context.Context, initial bool) error {
	switch state := m.stateAt(m.nowFunc()); state {
	case StateLoggedOut, StateLoginInProgress, StateLoggedIn:
		return nil

	case StateExpired:
		return m.handleExpiredRefreshToken(initial)

	case StateRefreshing:
		if !initial {
			// A peer process owns the in-flight refresh; its result
			// arrives through the shared store.
			return nil
		}
		return m.performRefresh(ctx, initial)

	case StateRefreshDue:
		return m.performRefresh(ctx, initial)

	default:
		return errors.Errorf("[refresh] unhandled state %q", state)
	}
}

func (m *Manager) performRefresh(ctx context.Context, initial bool) error {
	if err := m.session.SetRefreshInProgress(true); err != nil {
		return errors.Wrap(err, "[refresh] raising refresh flag")
	}
	defer func() {
		if err := m.session.SetRefreshInProgress(false); err != nil {
			log.Warn().Err(err).Msg("failed to lower refresh flag")
		}
	}()

	scope := ""
	if m.cfg.refreshWithScope {
		scope = m.cfg.Scope
	}

	resp, err := m.exchange.ExchangeRefresh(ctx, exchange.RefreshRequest{
		ClientID:     m.cfg.ClientID,
		RedirectURI:  m.cfg.RedirectURI,
		RefreshToken: m.session.RefreshToken(),
		Scope:        scope,
		Extra:        m.cfg.ExtraTokenParameters,
	})
	if err != nil {
		var exchErr *exchange.Error
		if errors.As(err, &exchErr) && exchErr.InvalidGrant() {
			// The provider revoked or already consumed the refresh
			// token; its stored expiry is a lie. Same exit as a
			// normally expired session.
			log.Info().Msg("refresh token rejected by provider, session expired")
			return m.handleExpiredRefreshToken(initial)
		}
		m.setError(err)
		if initial {
			// Starting up with a token we cannot renew is not a state
			// worth preserving; re-authenticate interactively.
			return m.logInLocked("", nil, "")
		}
		return errors.Wrap(err, "[refresh] token exchange")
	}

	if err := m.applyTokenResponse(resp, false); err != nil {
		m.setError(err)
		return errors.Wrap(err, "[refresh] storing tokens")
	}
	log.Debug().Msg("access token refreshed")
	return nil
}

// handleExpiredRefreshToken runs when silent renewal is impossible. On
// the initial check, or when the host installed no hook, a fresh
// interactive login starts immediately; otherwise the host decides, via
// the hook, when to interrupt the user.
func (m *Manager) handleExpiredRefreshToken(initial bool) error {
	if initial || m.cfg.OnRefreshTokenExpire == nil {
		return m.logInLocked("", nil, "")
	}
	// The hook runs outside the flow lock so its LogIn closure can be
	// invoked from within the hook body as well as later from the host.
	go m.cfg.OnRefreshTokenExpire(RefreshTokenExpiredEvent{
		LogIn: func() {
			if err := m.LogIn("", nil, ""); err != nil {
				log.Warn().Err(err).Msg("login after refresh token expiry failed")
			}
		},
	})
	return nil
}
