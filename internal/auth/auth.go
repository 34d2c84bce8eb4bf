// Package auth owns the signed-in state. A Context is created once per
// process and handed to the API client (for the bearer token) and to the
// route guard (for the signed-in check).
package auth

import (
	"errors"
	"fmt"
	"sync"

	"github.com/chatvk/chatvk/internal/session"
	"go.uber.org/zap"
)

// Context is the explicit lifecycle for the session: SignIn, SignOut, Current.
// All methods are safe for concurrent use.
type Context struct {
	store  session.Store
	logger *zap.Logger

	mu      sync.RWMutex
	current *session.Session
}

// NewContext loads any saved session from store.
func NewContext(store session.Store, logger *zap.Logger) (*Context, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Context{store: store, logger: logger}

	s, err := store.Load()
	switch {
	case errors.Is(err, session.ErrNoSession):
	case err != nil:
		return nil, fmt.Errorf("load session: %w", err)
	default:
		c.current = s
		logger.Debug("restored session", zap.String("user", s.DisplayName()))
	}
	return c, nil
}

// SignIn persists s and makes it current.
func (c *Context) SignIn(s *session.Session) error {
	if !s.Valid() {
		return fmt.Errorf("sign in: empty token")
	}
	if err := c.store.Save(s); err != nil {
		return fmt.Errorf("sign in: %w", err)
	}
	cp := *s

	c.mu.Lock()
	c.current = &cp
	c.mu.Unlock()

	c.logger.Info("signed in", zap.String("user", cp.DisplayName()))
	return nil
}

// SignOut clears the persisted session. The in-memory state is cleared even
// when the store fails so the process stops sending the token.
func (c *Context) SignOut() error {
	c.mu.Lock()
	c.current = nil
	c.mu.Unlock()

	if err := c.store.Clear(); err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	c.logger.Info("signed out")
	return nil
}

// Current returns a copy of the active session and whether one exists.
func (c *Context) Current() (session.Session, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.current.Valid() {
		return session.Session{}, false
	}
	return *c.current, true
}

// Authenticated reports whether a credential is present.
func (c *Context) Authenticated() bool {
	_, ok := c.Current()
	return ok
}

// Token returns the bearer token, or "" when signed out.
func (c *Context) Token() string {
	s, _ := c.Current()
	return s.Token
}
