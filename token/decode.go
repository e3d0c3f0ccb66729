package token

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-auth-client/internal/utils"
	"github.com/pkg/errors"
)

// DecodeError wraps any failure to extract the payload of a JWT-shaped
// token. Callers should treat it as recoverable: the raw token remains
// usable as an opaque bearer credential, only the decoded claims are
// unavailable.
type DecodeError struct {
	cause error
}

func (e *DecodeError) Error() string {
	return "failed to decode token payload, is it a proper JSON Web Token? " + e.cause.Error()
}

func (e *DecodeError) Unwrap() error { return e.cause }

// Claims is the decoded payload of a compact signed token.
type Claims map[string]any

// ExpiresAt returns the exp claim as epoch seconds, if present.
func (c Claims) ExpiresAt() (int64, bool) {
	exp, ok := c["exp"].(float64)
	if !ok {
		return 0, false
	}
	return int64(exp), true
}

// Subject returns the sub claim, if present.
func (c Claims) Subject() (string, bool) {
	sub, ok := c["sub"].(string)
	return sub, ok
}

// Audience returns the aud claim, normalized to a slice. Providers emit
// it as either a single string or an array of strings.
func (c Claims) Audience() []string {
	switch aud := c["aud"].(type) {
	case string:
		return []string{aud}
	case []any:
		return utils.ToStringSlice(aud)
	}
	return nil
}

// Decode extracts the payload segment of a compact signed token into a
// claims map. The signature is NOT verified - verification is the
// identity provider's job, this client only mirrors what it was handed.
func Decode(raw string) (Claims, error) {
	unverified, _, err := jwt.NewParser().ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		return nil, &DecodeError{cause: err}
	}
	claims, ok := unverified.Claims.(jwt.MapClaims)
	if !ok {
		return nil, &DecodeError{cause: errors.New("payload is not a JSON object")}
	}
	return Claims(claims), nil
}
