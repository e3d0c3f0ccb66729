// Package token holds the client-side view of the OAuth2 token endpoint:
// the wire response, unverified claims decoding, and expiry arithmetic.
package token

// Response represents the response from an OAuth2 token request.
// This is the standard token endpoint response format as defined in
// RFC 6749, extended with the refresh-expiry fields used by common
// identity providers (Keycloak, Azure AD, Google).
type Response struct {
	// AccessToken is the bearer credential used to access protected resources.
	// Example: "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9..."
	// Usage: Include in Authorization header: "Bearer <access_token>"
	// Lifespan: Short-lived (typically 15 minutes - 1 hour)
	AccessToken string `json:"access_token"`

	// TokenType indicates how to use the access token (typically "bearer").
	TokenType string `json:"token_type,omitempty"`

	// Scope is the space-separated list of granted permissions.
	// May be narrower than the requested scope if some were denied.
	Scope string `json:"scope,omitempty"`

	// ExpiresIn is the lifetime in seconds of the access token.
	// Optional - providers may omit it, in which case the client falls
	// back to the ID token's exp claim or a fixed default.
	ExpiresIn *int64 `json:"expires_in,omitempty"`

	// RefreshToken is an opaque token used to obtain new access tokens
	// without re-prompting the user. Absent means silent renewal is
	// not possible for this session.
	RefreshToken *string `json:"refresh_token,omitempty"`

	// RefreshTokenExpiresIn is the refresh token lifetime in seconds.
	// Field name used by Azure AD and Google.
	RefreshTokenExpiresIn *int64 `json:"refresh_token_expires_in,omitempty"`

	// RefreshExpiresIn is the refresh token lifetime in seconds.
	// Field name used by Keycloak.
	RefreshExpiresIn *int64 `json:"refresh_expires_in,omitempty"`

	// IDToken is the OpenID Connect ID token carrying identity claims.
	// Only present when the "openid" scope was requested.
	IDToken *string `json:"id_token,omitempty"`

	// ErrorDescription carries the provider's human readable failure
	// reason on malformed responses that still return HTTP 200.
	ErrorDescription string `json:"error_description,omitempty"`
}
