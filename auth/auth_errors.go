package auth

import "errors"

var (
	// ErrNotAuthenticated is returned by Token when no valid session
	// exists and none could be established.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrMissingAuthCode marks a callback without a 'code' query
	// parameter: the flow was aborted or interrupted upstream.
	ErrMissingAuthCode = errors.New("parameter 'code' not found in callback query, has authentication taken place")

	// ErrMissingCodeVerifier marks a callback where the persisted PKCE
	// verifier is gone, so the code cannot be exchanged.
	ErrMissingCodeVerifier = errors.New("cannot exchange the authorization code without the stored code verifier")

	// ErrStateMismatch marks a callback whose echoed state parameter
	// does not exactly match the persisted anti-CSRF value. The
	// callback is treated as a forgery attempt and no exchange occurs.
	ErrStateMismatch = errors.New("returned state does not match the stored anti-CSRF state")

	// ErrCallbackNotPending is returned when HandleCallback is invoked
	// with no login in progress.
	ErrCallbackNotPending = errors.New("no login is in progress")
)
