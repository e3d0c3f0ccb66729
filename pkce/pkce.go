// Package pkce implements the Proof Key for Code Exchange (RFC 7636)
// verifier and challenge pair used by the authorization code flow.
package pkce

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"

	"github.com/pkg/errors"
)

// ErrInsecureContext is returned when no cryptographically secure random
// source is available. Callers must treat this as fatal to the login
// attempt rather than falling back to a weak generator.
var ErrInsecureContext = errors.New("insecure context: secure random source unavailable")

// VerifierLength is the default code verifier length. RFC 7636 allows
// 43-128 characters.
const VerifierLength = 96

// verifierAlphabet is the unreserved character set used for code verifiers.
const verifierAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// RandomString draws length characters from the verifier alphabet using
// crypto/rand. Bytes are rejection-sampled against the alphabet size so
// the output is uniform, avoiding modulo bias.
func RandomString(length int) (string, error) {
	if length <= 0 {
		return "", errors.New("[RandomString] length must be positive")
	}

	// Largest multiple of len(verifierAlphabet) that fits in a byte.
	// Bytes at or above this bound are discarded and redrawn.
	bound := byte(256 - (256 % len(verifierAlphabet)))

	out := make([]byte, 0, length)
	buf := make([]byte, length)
	for len(out) < length {
		if _, err := rand.Read(buf); err != nil {
			return "", errors.Wrap(ErrInsecureContext, err.Error())
		}
		for _, b := range buf {
			if b >= bound {
				continue
			}
			out = append(out, verifierAlphabet[int(b)%len(verifierAlphabet)])
			if len(out) == length {
				break
			}
		}
	}
	return string(out), nil
}

// CodeChallenge derives the S256 code challenge from a verifier:
// base64url(sha256(verifier)) without padding.
func CodeChallenge(verifier string) string {
	hash := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}

// NewPair generates a fresh verifier of the default length and its
// matching S256 challenge.
func NewPair() (verifier, challenge string, err error) {
	verifier, err = RandomString(VerifierLength)
	if err != nil {
		return "", "", errors.Wrap(err, "[NewPair] RandomString")
	}
	return verifier, CodeChallenge(verifier), nil
}
