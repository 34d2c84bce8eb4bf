// Package route maps the client's screens to paths and guards the
// protected ones.
package route

import "strings"

// Route identifies a screen.
type Route string

const (
	Login  Route = "/login"
	Signup Route = "/signup"
	Chat   Route = "/chat"
	Root   Route = "/"
)

// Authenticator reports whether a session credential is present.
// *auth.Context satisfies it.
type Authenticator interface {
	Authenticated() bool
}

var protected = map[Route]bool{
	Chat: true,
}

// Protected reports whether r requires a session.
func Protected(r Route) bool { return protected[r] }

// Guard returns r when it may be rendered, or Login when r is protected and
// no credential is present. Expiry is not checked here.
func Guard(r Route, a Authenticator) Route {
	if Protected(r) && (a == nil || !a.Authenticated()) {
		return Login
	}
	return r
}

// Resolve turns a requested path into the screen to render: "/" redirects
// to the chat screen, unknown paths do the same, and the result is guarded.
func Resolve(path string, a Authenticator) Route {
	p := "/" + strings.Trim(strings.TrimSpace(path), "/")
	var r Route
	switch Route(p) {
	case Login, Signup, Chat:
		r = Route(p)
	default:
		r = Chat
	}
	return Guard(r, a)
}
