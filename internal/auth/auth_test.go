package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/chatvk/chatvk/internal/session"
	"github.com/golang-jwt/jwt/v5"
)

// failingStore wraps a MemStore and fails Clear.
type failingStore struct {
	*session.MemStore
}

func (failingStore) Clear() error { return errors.New("disk full") }

func TestNewContext_RestoresSavedSession(t *testing.T) {
	store := session.NewMemStore(&session.Session{Token: "saved", User: session.User{Username: "alice"}})

	c, err := NewContext(store, nil)
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	s, ok := c.Current()
	if !ok {
		t.Fatal("expected restored session")
	}
	if s.Token != "saved" || s.User.Username != "alice" {
		t.Errorf("Current = %+v", s)
	}
	if c.Token() != "saved" {
		t.Errorf("Token = %q, want saved", c.Token())
	}
}

func TestNewContext_Empty(t *testing.T) {
	c, err := NewContext(session.NewMemStore(nil), nil)
	if err != nil {
		t.Fatal(err)
	}
	if c.Authenticated() {
		t.Error("expected signed out")
	}
	if c.Token() != "" {
		t.Errorf("Token = %q, want empty", c.Token())
	}
}

func TestSignInSignOut(t *testing.T) {
	store := session.NewMemStore(nil)
	c, _ := NewContext(store, nil)

	if err := c.SignIn(&session.Session{Token: "t1", User: session.User{Username: "bob"}}); err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if !c.Authenticated() {
		t.Fatal("expected signed in")
	}
	saved, err := store.Load()
	if err != nil || saved.Token != "t1" {
		t.Fatalf("store not written: %+v, %v", saved, err)
	}

	if err := c.SignOut(); err != nil {
		t.Fatalf("SignOut: %v", err)
	}
	if c.Authenticated() {
		t.Error("expected signed out after SignOut")
	}
	if _, err := store.Load(); !errors.Is(err, session.ErrNoSession) {
		t.Errorf("store still holds a session: %v", err)
	}
}

func TestSignIn_RejectsEmptyToken(t *testing.T) {
	c, _ := NewContext(session.NewMemStore(nil), nil)
	if err := c.SignIn(&session.Session{User: session.User{Username: "x"}}); err == nil {
		t.Fatal("expected error for empty token")
	}
	if c.Authenticated() {
		t.Error("failed SignIn must not authenticate")
	}
}

func TestSignOut_ClearsMemoryEvenIfStoreFails(t *testing.T) {
	store := failingStore{session.NewMemStore(&session.Session{Token: "t"})}
	c, _ := NewContext(store, nil)

	if err := c.SignOut(); err == nil {
		t.Fatal("expected store error")
	}
	if c.Authenticated() {
		t.Error("in-memory session should be cleared")
	}
}

func TestInspectToken(t *testing.T) {
	exp := time.Now().Add(24 * time.Hour).Truncate(time.Second)
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "42",
		ExpiresAt: jwt.NewNumericDate(exp),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	})
	signed, err := tok.SignedString([]byte("secret"))
	if err != nil {
		t.Fatal(err)
	}

	ti, err := InspectToken(signed)
	if err != nil {
		t.Fatalf("InspectToken: %v", err)
	}
	if ti.Subject != "42" {
		t.Errorf("Subject = %q, want 42", ti.Subject)
	}
	if !ti.ExpiresAt.Equal(exp) {
		t.Errorf("ExpiresAt = %v, want %v", ti.ExpiresAt, exp)
	}
	if ti.Expired(time.Now()) {
		t.Error("token should not be expired")
	}
	if !ti.Expired(exp.Add(time.Minute)) {
		t.Error("token should be expired after exp")
	}
}

func TestInspectToken_Opaque(t *testing.T) {
	if _, err := InspectToken("not-a-jwt"); err == nil {
		t.Error("expected error for opaque token")
	}
}
