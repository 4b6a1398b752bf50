package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// SQLite stores entries in a kv_storage table scoped by namespace.
type SQLite struct {
	mu        sync.RWMutex
	db        *sql.DB
	namespace string
}

// NewSQLite opens the database at path and creates the table if needed.
func NewSQLite(path, namespace string) (*SQLite, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// A single connection keeps ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)

	if namespace == "" {
		namespace = "snowball"
	}
	s := &SQLite{db: db, namespace: namespace}
	if err := s.initTables(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// initTables creates the necessary tables for key-value storage
func (s *SQLite) initTables() error {
	createTableSQL := `
		CREATE TABLE IF NOT EXISTS kv_storage (
			namespace TEXT NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (namespace, key)
		)
	`
	if _, err := s.db.Exec(createTableSQL); err != nil {
		return fmt.Errorf("failed to create storage table: %w", err)
	}
	return nil
}

func (s *SQLite) Get(key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var value string
	err := s.db.QueryRow(`SELECT value FROM kv_storage WHERE namespace = ? AND key = ?`, s.namespace, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get key: %w", err)
	}
	return value, true, nil
}

func (s *SQLite) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Use REPLACE to handle both insert and update
	query := `
		REPLACE INTO kv_storage (namespace, key, value, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
	`
	if _, err := s.db.Exec(query, s.namespace, key, value); err != nil {
		return fmt.Errorf("failed to store key: %w", err)
	}
	return nil
}

func (s *SQLite) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM kv_storage WHERE namespace = ? AND key = ?`, s.namespace, key); err != nil {
		return fmt.Errorf("failed to delete key: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}
