package session

import (
	"fmt"
	"sync"
	"time"
)

// MemStore is an in-process Store. It is used by one-shot commands run with
// --token and by tests.
type MemStore struct {
	mu   sync.Mutex
	sess *Session
}

var _ Store = (*MemStore)(nil)

// NewMemStore returns a MemStore, optionally pre-loaded with s.
func NewMemStore(s *Session) *MemStore {
	m := &MemStore{}
	if s.Valid() {
		cp := *s
		m.sess = &cp
	}
	return m
}

func (m *MemStore) Save(s *Session) error {
	if !s.Valid() {
		return fmt.Errorf("save session: empty token")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s.SavedAt = time.Now()
	cp := *s
	m.sess = &cp
	return nil
}

func (m *MemStore) Load() (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess == nil {
		return nil, ErrNoSession
	}
	cp := *m.sess
	return &cp, nil
}

func (m *MemStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sess = nil
	return nil
}

func (m *MemStore) Close() error { return nil }
