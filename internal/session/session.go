// Package session persists the signed-in user's bearer token and profile
// between runs. The saved state is two keys, "token" and "user", with no
// versioning.
package session

import (
	"errors"
	"time"
)

// ErrNoSession is returned by Store.Load when nothing has been saved or the
// session was cleared.
var ErrNoSession = errors.New("no saved session")

// User is the minimal profile the backend returns alongside a token.
type User struct {
	ID       int64  `json:"id,omitempty"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}

// Session holds the authenticated user's bearer token plus profile.
type Session struct {
	Token   string
	User    User
	SavedAt time.Time
}

// Valid reports whether s carries a credential. Expiry is never checked
// client-side; the server answers 401 for stale tokens.
func (s *Session) Valid() bool {
	return s != nil && s.Token != ""
}

// DisplayName returns the username, or "User" when the profile is empty.
func (s *Session) DisplayName() string {
	if s == nil || s.User.Username == "" {
		return "User"
	}
	return s.User.Username
}

// Store abstracts session persistence.
type Store interface {
	Save(s *Session) error
	Load() (*Session, error)
	Clear() error
	Close() error
}
