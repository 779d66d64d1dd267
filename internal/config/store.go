package config

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Store yields the current Configuration. Get returns ErrNotFound when nothing
// has been saved.
type Store interface {
	Get(ctx context.Context) (*Configuration, error)
}

// OpenStore opens the store described by source: "sqlite:<path>" or
// "file:<path>" (YAML). A bare path is treated as sqlite.
func OpenStore(source string) (Store, error) {
	kind, path, found := strings.Cut(source, ":")
	if !found {
		kind, path = "sqlite", source
	}
	switch kind {
	case "sqlite":
		return NewSQLiteStore(path)
	case "file":
		return NewFileStore(path), nil
	default:
		return nil, fmt.Errorf("unknown configuration source %q", kind)
	}
}

// SQLiteStore keeps the configuration as a single JSON document row.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore opens (and migrates) the database at path. Use ":memory:"
// for an in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		// every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS config (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		config_json TEXT NOT NULL,
		updated_at TEXT NOT NULL DEFAULT (datetime('now'))
	);`)
	return err
}

// Get returns the stored configuration.
func (s *SQLiteStore) Get(ctx context.Context) (*Configuration, error) {
	raw, err := s.GetRaw(ctx)
	if err != nil {
		return nil, err
	}
	var cfg Configuration
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode stored configuration: %w", err)
	}
	return &cfg, nil
}

// GetRaw returns the stored JSON document as saved.
func (s *SQLiteStore) GetRaw(ctx context.Context) (json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT config_json FROM config WHERE id = 1`).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration: %w", err)
	}
	return json.RawMessage(raw), nil
}

// Save replaces the stored configuration document.
func (s *SQLiteStore) Save(ctx context.Context, raw json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var compact bytes.Buffer
	if err := json.Compact(&compact, raw); err != nil {
		return fmt.Errorf("invalid configuration JSON: %w", err)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO config (id, config_json, updated_at) VALUES (1, ?, datetime('now'))
		ON CONFLICT(id) DO UPDATE SET config_json = excluded.config_json, updated_at = excluded.updated_at`,
		compact.String())
	if err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}
	log.Info().Int("bytes", compact.Len()).Msg("Saved configuration")
	return nil
}

// FileStore reads the configuration from a YAML file on every Get, so edits
// take effect on the next poll cycle.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Get(ctx context.Context) (*Configuration, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrNotFound
	}
	var cfg Configuration
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %s: %w", s.path, err)
	}
	return &cfg, nil
}
