package auth

// Navigator performs the irreversible user-agent navigations the flow
// manager cannot do itself: sending the user to the authorization or
// logout endpoint, and concluding a finished login (closing a popup,
// rewriting the visible URL to drop the code and state parameters).
//
// Implementations live in the host: a CLI opens the system browser, a
// webview host drives its view, tests record the URL.
type Navigator interface {
	// Navigate sends the user agent to url using the given method.
	Navigate(url string, method LoginMethod) error

	// Conclude is called once the callback has been handled, with
	// clearURL reporting whether the host should rewrite the visible
	// URL. For popup logins the popup should be closed here.
	Conclude(method LoginMethod, clearURL bool)
}

// NavigatorFunc adapts a bare navigation function into a Navigator with
// a no-op Conclude.
type NavigatorFunc func(url string, method LoginMethod) error

func (f NavigatorFunc) Navigate(url string, method LoginMethod) error { return f(url, method) }

func (f NavigatorFunc) Conclude(LoginMethod, bool) {}
