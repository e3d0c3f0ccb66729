package auth

import (
	"context"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// discoveredEndpoints are the extra claims read from the provider's
// well-known configuration document beyond what go-oidc surfaces
// directly.
type discoveredEndpoints struct {
	EndSessionEndpoint string `json:"end_session_endpoint"`
}

// resolveEndpoints fills empty endpoint fields from the issuer's OIDC
// discovery document. Explicitly configured endpoints always win.
func (ic *internalConfig) resolveEndpoints(ctx context.Context) error {
	if ic.Issuer == "" {
		return nil
	}
	if ic.AuthorizationEndpoint != "" && ic.TokenEndpoint != "" && ic.LogoutEndpoint != "" {
		return nil
	}

	provider, err := oidc.NewProvider(ctx, ic.Issuer)
	if err != nil {
		return errors.Wrap(err, "[resolveEndpoints] oidc.NewProvider")
	}

	endpoint := provider.Endpoint()
	if ic.AuthorizationEndpoint == "" {
		ic.AuthorizationEndpoint = endpoint.AuthURL
	}
	if ic.TokenEndpoint == "" {
		ic.TokenEndpoint = endpoint.TokenURL
	}

	var extra discoveredEndpoints
	if err := provider.Claims(&extra); err != nil {
		log.Warn().Err(err).Str("issuer", ic.Issuer).Msg("could not read extra discovery claims")
	} else if ic.LogoutEndpoint == "" {
		ic.LogoutEndpoint = extra.EndSessionEndpoint
	}

	log.Debug().
		Str("issuer", ic.Issuer).
		Str("authorization_endpoint", ic.AuthorizationEndpoint).
		Str("token_endpoint", ic.TokenEndpoint).
		Msg("resolved endpoints from discovery")
	return nil
}
