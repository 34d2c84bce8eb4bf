package session

import (
	"errors"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSaveAndLoad(t *testing.T) {
	store := newTestStore(t)

	s := &Session{
		Token: "tok-abc",
		User:  User{ID: 3, Username: "alice", Email: "alice@example.com"},
	}
	if err := store.Save(s); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Token != "tok-abc" {
		t.Errorf("Token = %q, want %q", loaded.Token, "tok-abc")
	}
	if loaded.User != s.User {
		t.Errorf("User = %+v, want %+v", loaded.User, s.User)
	}
	if loaded.SavedAt.IsZero() {
		t.Error("SavedAt should be set after Save")
	}
}

func TestLoadEmpty(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Load()
	if !errors.Is(err, ErrNoSession) {
		t.Fatalf("Load on empty store = %v, want ErrNoSession", err)
	}
}

func TestSaveRejectsEmptyToken(t *testing.T) {
	store := newTestStore(t)

	if err := store.Save(&Session{User: User{Username: "bob"}}); err == nil {
		t.Fatal("expected error saving session without token")
	}
}

func TestSaveReplacesExisting(t *testing.T) {
	store := newTestStore(t)

	if err := store.Save(&Session{Token: "old", User: User{Username: "alice"}}); err != nil {
		t.Fatal(err)
	}
	if err := store.Save(&Session{Token: "new", User: User{Username: "bob"}}); err != nil {
		t.Fatal(err)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Token != "new" || loaded.User.Username != "bob" {
		t.Errorf("loaded = %+v, want token=new user=bob", loaded)
	}
}

func TestClear(t *testing.T) {
	store := newTestStore(t)

	if err := store.Save(&Session{Token: "t", User: User{Username: "alice"}}); err != nil {
		t.Fatal(err)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, err := store.Load(); !errors.Is(err, ErrNoSession) {
		t.Fatalf("Load after Clear = %v, want ErrNoSession", err)
	}

	// Clearing twice is fine.
	if err := store.Clear(); err != nil {
		t.Fatalf("second Clear: %v", err)
	}
}

func TestSurvivesReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "session.db")
	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Save(&Session{Token: "persisted", User: User{Username: "carol"}}); err != nil {
		t.Fatal(err)
	}
	store.Close()

	reopened, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	loaded, err := reopened.Load()
	if err != nil {
		t.Fatalf("Load after reopen: %v", err)
	}
	if loaded.Token != "persisted" || loaded.User.Username != "carol" {
		t.Errorf("loaded = %+v", loaded)
	}
}

func TestMemStore(t *testing.T) {
	m := NewMemStore(nil)
	if _, err := m.Load(); !errors.Is(err, ErrNoSession) {
		t.Fatalf("empty MemStore Load = %v, want ErrNoSession", err)
	}

	if err := m.Save(nil); err == nil {
		t.Error("Save(nil) should fail")
	}
	if err := m.Save(&Session{User: User{Username: "dave"}}); err == nil {
		t.Error("Save without a token should fail")
	}
	if _, err := m.Load(); !errors.Is(err, ErrNoSession) {
		t.Fatalf("Load after rejected saves = %v, want ErrNoSession", err)
	}

	s := &Session{Token: "t1", User: User{Username: "dave"}}
	if err := m.Save(s); err != nil {
		t.Fatal(err)
	}
	s.Token = "mutated"

	loaded, err := m.Load()
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Token != "t1" {
		t.Errorf("MemStore should copy on save, got token %q", loaded.Token)
	}

	m.Clear()
	if _, err := m.Load(); !errors.Is(err, ErrNoSession) {
		t.Fatalf("Load after Clear = %v, want ErrNoSession", err)
	}
}

func TestDisplayName(t *testing.T) {
	var nilSess *Session
	if got := nilSess.DisplayName(); got != "User" {
		t.Errorf("nil DisplayName = %q, want User", got)
	}
	s := &Session{Token: "t", User: User{Username: "erin"}}
	if got := s.DisplayName(); got != "erin" {
		t.Errorf("DisplayName = %q, want erin", got)
	}
}
