// Package exchange performs the two token endpoint request shapes of
// the authorization code flow: trading an authorization code for tokens
// and renewing tokens with a refresh token.
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/jrsteele09/go-auth-client/internal/urlenc"
	"github.com/jrsteele09/go-auth-client/token"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const defaultTimeout = 30 * time.Second

// Error is a typed token endpoint failure carrying the HTTP status and
// the raw response body. The body is never swallowed - it is the only
// diagnostic the provider gives.
type Error struct {
	Status int
	Body   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("token endpoint returned %d: %s", e.Status, e.Body)
}

// InvalidGrant reports whether the provider rejected the credential
// itself (HTTP 400), which callers treat as a truly expired session
// rather than a transient failure.
func (e *Error) InvalidGrant() bool { return e.Status == http.StatusBadRequest }

// ErrMalformedResponse marks a success status whose body lacks an
// access token field.
var ErrMalformedResponse = errors.New("token response did not contain an access_token")

// CodeRequest holds the parameters for an authorization code exchange.
type CodeRequest struct {
	ClientID     string
	RedirectURI  string
	Code         string
	CodeVerifier string
	Extra        map[string]string // extra configured token parameters
}

// RefreshRequest holds the parameters for a refresh token exchange.
type RefreshRequest struct {
	ClientID     string
	RedirectURI  string
	RefreshToken string
	Scope        string // included only when non-empty
	Extra        map[string]string
}

// Client posts form encoded requests to a single token endpoint.
type Client struct {
	tokenEndpoint   string
	httpClient      *http.Client
	withCredentials bool
}

// Option modifies a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithCredentials attaches a cookie jar so provider session cookies
// accompany token requests. This mirrors deployments where the token
// endpoint sits behind a cookie-authenticated gateway.
func WithCredentials() Option {
	return func(c *Client) {
		c.withCredentials = true
	}
}

// New creates a Client for the given token endpoint. The cookie jar of
// credentials mode is attached after all options apply, on a copy of
// the HTTP client, so option order does not matter and a caller
// supplied client is never mutated.
func New(tokenEndpoint string, options ...Option) *Client {
	c := &Client{
		tokenEndpoint: tokenEndpoint,
		httpClient:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range options {
		opt(c)
	}
	if c.withCredentials {
		if jar, err := cookiejar.New(nil); err != nil {
			log.Warn().Err(err).Msg("cookie jar unavailable, credentials mode disabled")
		} else {
			hc := *c.httpClient
			hc.Jar = jar
			c.httpClient = &hc
		}
	}
	return c
}

// ExchangeCode trades a single-use authorization code plus its PKCE
// verifier for tokens.
func (c *Client) ExchangeCode(ctx context.Context, req CodeRequest) (*token.Response, error) {
	params := urlenc.Params{}.
		Append("grant_type", "authorization_code").
		Append("code", req.Code).
		Append("client_id", req.ClientID).
		Append("redirect_uri", req.RedirectURI).
		Append("code_verifier", req.CodeVerifier).
		AppendExtras(req.Extra)

	resp, err := c.post(ctx, params)
	if err != nil {
		return nil, errors.Wrap(err, "[ExchangeCode] post")
	}
	return resp, nil
}

// ExchangeRefresh renews tokens with a refresh token.
func (c *Client) ExchangeRefresh(ctx context.Context, req RefreshRequest) (*token.Response, error) {
	params := urlenc.Params{}.
		Append("grant_type", "refresh_token").
		Append("refresh_token", req.RefreshToken).
		Append("client_id", req.ClientID).
		Append("redirect_uri", req.RedirectURI)
	if req.Scope != "" {
		params = params.Append("scope", req.Scope)
	}
	params = params.AppendExtras(req.Extra)

	resp, err := c.post(ctx, params)
	if err != nil {
		return nil, errors.Wrap(err, "[ExchangeRefresh] post")
	}
	return resp, nil
}

func (c *Client) post(ctx context.Context, params urlenc.Params) (*token.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenEndpoint, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, errors.Wrap(err, "http.NewRequestWithContext")
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "httpClient.Do")
	}
	defer func() { _ = httpResp.Body.Close() }()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "reading response body")
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		log.Error().Int("status", httpResp.StatusCode).Str("endpoint", c.tokenEndpoint).Msg("token endpoint rejected request")
		return nil, &Error{Status: httpResp.StatusCode, Body: string(body)}
	}

	var tokenResp token.Response
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, errors.Wrap(err, "decoding token response")
	}
	// A success status without an access token is a malformed provider
	// response, not a success.
	if tokenResp.AccessToken == "" {
		if tokenResp.ErrorDescription != "" {
			return nil, errors.Wrap(ErrMalformedResponse, tokenResp.ErrorDescription)
		}
		return nil, ErrMalformedResponse
	}
	return &tokenResp, nil
}
