package session

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const (
	keyToken = "token"
	keyUser  = "user"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS kv (
    key        TEXT PRIMARY KEY,
    value      TEXT NOT NULL,
    updated_at TEXT NOT NULL
);
`

// SQLiteStore implements Store backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and ensures the schema exists.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Enable WAL mode so a second chatvk process can read while one writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Save writes the token and user profile in one transaction.
func (s *SQLiteStore) Save(sess *Session) error {
	if !sess.Valid() {
		return fmt.Errorf("save session: empty token")
	}
	sess.SavedAt = time.Now()

	userJSON, err := json.Marshal(sess.User)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	defer tx.Rollback()

	ts := sess.SavedAt.Format(time.RFC3339Nano)
	for _, kv := range [][2]string{{keyToken, sess.Token}, {keyUser, string(userJSON)}} {
		if _, err := tx.Exec(
			`INSERT OR REPLACE INTO kv (key, value, updated_at) VALUES (?, ?, ?)`,
			kv[0], kv[1], ts,
		); err != nil {
			return fmt.Errorf("save %s: %w", kv[0], err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Load returns the saved session or ErrNoSession.
func (s *SQLiteStore) Load() (*Session, error) {
	var sess Session
	var savedAt string
	err := s.db.QueryRow(`SELECT value, updated_at FROM kv WHERE key = ?`, keyToken).Scan(&sess.Token, &savedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("load token: %w", err)
	}
	if sess.Token == "" {
		return nil, ErrNoSession
	}
	sess.SavedAt, _ = time.Parse(time.RFC3339Nano, savedAt)

	var userJSON string
	err = s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, keyUser).Scan(&userJSON)
	switch {
	case err == sql.ErrNoRows:
		// A token without a profile still authenticates.
	case err != nil:
		return nil, fmt.Errorf("load user: %w", err)
	default:
		if err := json.Unmarshal([]byte(userJSON), &sess.User); err != nil {
			return nil, fmt.Errorf("unmarshal user: %w", err)
		}
	}
	return &sess, nil
}

// Clear removes both keys. Clearing an empty store is not an error.
func (s *SQLiteStore) Clear() error {
	if _, err := s.db.Exec(`DELETE FROM kv WHERE key IN (?, ?)`, keyToken, keyUser); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
